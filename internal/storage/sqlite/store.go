package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MARistheone/Bother-Bot/internal/models"
)

// Store wraps access to the SQLite database and exposes high level helpers.
// ALL SQL lives here and nowhere else.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            score INTEGER NOT NULL DEFAULT 0,
            private_channel_id TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL REFERENCES users(id),
            description TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            message_id TEXT NOT NULL DEFAULT '',
            due_date TEXT,
            recurrence TEXT NOT NULL DEFAULT 'none',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS config (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due_date);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// AddUser inserts a new user. Registering an existing id is a no-op.
func (s *Store) AddUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users(id) VALUES(?)`, userID)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id, or nil when absent.
func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, score, private_channel_id FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Score, &u.PrivateChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SetUserPrivateChannel stores the private channel id for a user.
// Writes against a missing user are silent no-ops.
func (s *Store) SetUserPrivateChannel(ctx context.Context, userID, channelID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET private_channel_id = ? WHERE id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("set private channel: %w", err)
	}
	return nil
}

// AdjustScore adds delta to a user's score as a single additive update.
// A delta against a missing user affects zero rows and is ignored.
func (s *Store) AdjustScore(ctx context.Context, userID string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET score = score + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("adjust score: %w", err)
	}
	return nil
}

// AddTask inserts a task and returns its id. Status defaults to pending.
func (s *Store) AddTask(ctx context.Context, userID, description string, dueDate time.Time, recurrence models.Recurrence) (int64, error) {
	if strings.TrimSpace(description) == "" {
		return 0, fmt.Errorf("task description must not be empty")
	}
	if !recurrence.Valid() {
		recurrence = models.RecurNone
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(user_id, description, due_date, recurrence) VALUES(?, ?, ?, ?)`,
		userID, strings.TrimSpace(description), dueDate.Format(models.DueDateLayout), string(recurrence))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	return id, nil
}

const taskColumns = `id, user_id, description, status, message_id, due_date, recurrence, created_at`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var (
		t       models.Task
		status  string
		recur   string
		dueDate sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &status, &t.MessageID, &dueDate, &recur, &t.CreatedAt); err != nil {
		return models.Task{}, err
	}
	t.Status = models.Status(status)
	t.Recurrence = models.Recurrence(recur)
	if dueDate.Valid && dueDate.String != "" {
		due, err := models.ParseDueDate(dueDate.String)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.DueDate = due
	}
	return t, nil
}

// GetTask retrieves a task by id, or nil when absent.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// GetTasksForUser returns all tasks for a user in insertion order,
// optionally filtered by status.
func (s *Store) GetTasksForUser(ctx context.Context, userID string, status *models.Status) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY id`

	return s.queryTasks(ctx, query, args...)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateStatus updates a task's status. Missing ids are silent no-ops.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// UpdateDueDate updates a task's due date. Missing ids are silent no-ops.
func (s *Store) UpdateDueDate(ctx context.Context, id int64, dueDate time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET due_date = ? WHERE id = ?`,
		dueDate.Format(models.DueDateLayout), id)
	if err != nil {
		return fmt.Errorf("update due date: %w", err)
	}
	return nil
}

// UpdateMessageID stores the platform message id for a task.
func (s *Store) UpdateMessageID(ctx context.Context, id int64, messageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET message_id = ? WHERE id = ?`, messageID, id)
	if err != nil {
		return fmt.Errorf("update message id: %w", err)
	}
	return nil
}

// UpdateRecurrence rewrites a task's recurrence value.
func (s *Store) UpdateRecurrence(ctx context.Context, id int64, recurrence models.Recurrence) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET recurrence = ? WHERE id = ?`, string(recurrence), id)
	if err != nil {
		return fmt.Errorf("update recurrence: %w", err)
	}
	return nil
}

// UpdateDetails rewrites the main details of a task in one statement.
func (s *Store) UpdateDetails(ctx context.Context, id int64, description string, dueDate time.Time, recurrence models.Recurrence) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("task description must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET description = ?, due_date = ?, recurrence = ? WHERE id = ?`,
		strings.TrimSpace(description), dueDate.Format(models.DueDateLayout), string(recurrence), id)
	if err != nil {
		return fmt.Errorf("update details: %w", err)
	}
	return nil
}

// OverdueCandidates returns pending tasks whose due date is strictly
// before now's calendar date.
func (s *Store) OverdueCandidates(ctx context.Context, now time.Time) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'pending' AND date(due_date) < date(?) ORDER BY id`,
		now.UTC().Format(models.DueDateLayout))
}

// DueTodayOrEarlier returns pending and overdue tasks due on now's
// calendar date or before it, for the shame sweep.
func (s *Store) DueTodayOrEarlier(ctx context.Context, now time.Time) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status IN ('pending', 'overdue') AND date(due_date) <= date(?) ORDER BY id`,
		now.UTC().Format(models.DueDateLayout))
}

// CompletedRecurring returns completed tasks that still carry a
// recurrence pattern, for the daily reset sweep.
func (s *Store) CompletedRecurring(ctx context.Context) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'completed' AND recurrence != 'none' ORDER BY id`)
}

// ActiveTaskIDs returns the ids of all pending and overdue tasks, so the
// delivery layer can re-register message affordances after a restart.
func (s *Store) ActiveTaskIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE status IN ('pending', 'overdue') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active task ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UsersWithTasks returns every user joined with their tasks, ordered by
// score descending, for the accountability board.
func (s *Store) UsersWithTasks(ctx context.Context) ([]models.UserTasks, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT u.id, u.score, u.private_channel_id,
               t.id, t.user_id, t.description, t.status, t.message_id, t.due_date, t.recurrence, t.created_at
        FROM users u
        LEFT JOIN tasks t ON u.id = t.user_id
        ORDER BY u.score DESC, u.id, t.id`)
	if err != nil {
		return nil, fmt.Errorf("users with tasks: %w", err)
	}
	defer rows.Close()

	var (
		board []models.UserTasks
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			u       models.User
			taskID  sql.NullInt64
			userID  sql.NullString
			desc    sql.NullString
			status  sql.NullString
			msgID   sql.NullString
			dueDate sql.NullString
			recur   sql.NullString
			created sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Score, &u.PrivateChannelID,
			&taskID, &userID, &desc, &status, &msgID, &dueDate, &recur, &created); err != nil {
			return nil, fmt.Errorf("scan board row: %w", err)
		}

		i, ok := index[u.ID]
		if !ok {
			i = len(board)
			index[u.ID] = i
			board = append(board, models.UserTasks{User: u})
		}

		if !taskID.Valid {
			continue
		}
		t := models.Task{
			ID:          taskID.Int64,
			UserID:      userID.String,
			Description: desc.String,
			Status:      models.Status(status.String),
			MessageID:   msgID.String,
			Recurrence:  models.Recurrence(recur.String),
			CreatedAt:   created.Time,
		}
		if dueDate.Valid && dueDate.String != "" {
			due, err := models.ParseDueDate(dueDate.String)
			if err != nil {
				return nil, fmt.Errorf("task %d: %w", t.ID, err)
			}
			t.DueDate = due
		}
		board[i].Tasks = append(board[i].Tasks, t)
	}
	return board, rows.Err()
}

// GetConfig returns a config value, or "" when the key is unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config: %w", err)
	}
	return value, nil
}

// SetConfig inserts or replaces a config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO config(key, value) VALUES(?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}
