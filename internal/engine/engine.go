// Package engine implements the task lifecycle state machine and the
// scoring transitions driven by user commands and periodic sweeps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MARistheone/Bother-Bot/internal/models"
	"github.com/MARistheone/Bother-Bot/internal/scoring"
)

// Outcome discriminates command results for the delivery layer.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeAlreadyRegistered Outcome = "already-registered"
	OutcomeAlreadyDone       Outcome = "already-done"
	OutcomeNotFound          Outcome = "not-found"
	OutcomeInvalid           Outcome = "invalid"
)

// Result is the soft outcome of a command. Reason is set for
// OutcomeInvalid; Task and Successor are set where a row was touched.
type Result struct {
	Outcome   Outcome      `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	Task      *models.Task `json:"task,omitempty"`
	Successor *models.Task `json:"successor,omitempty"`
}

func invalid(format string, args ...any) Result {
	return Result{Outcome: OutcomeInvalid, Reason: fmt.Sprintf(format, args...)}
}

// Engine drives the task state machine. All dependencies are injected;
// there is no global state.
type Engine struct {
	repo   Repository
	cfg    ConfigStore
	clock  Clock
	sink   Sink
	logger *slog.Logger
	locks  *taskLocks
}

// New constructs an Engine around a repository, config store, clock and
// notification sink.
func New(repo Repository, cfg ConfigStore, clock Clock, sink Sink, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:   repo,
		cfg:    cfg,
		clock:  clock,
		sink:   sink,
		logger: logger,
		locks:  newTaskLocks(),
	}
}

// RegisterUser creates the user record. Re-registering an existing id is
// a distinguishable no-op.
func (e *Engine) RegisterUser(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return invalid("user id must not be empty"), nil
	}

	existing, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{Outcome: OutcomeAlreadyRegistered}, nil
	}

	if err := e.repo.AddUser(ctx, userID); err != nil {
		return Result{}, err
	}
	e.logger.Info("user registered", slog.String("user", userID))
	return Result{Outcome: OutcomeOK}, nil
}

// AssignPrivateChannel records the user's private channel after the
// delivery layer has provisioned it, and emits the welcome intent on
// first assignment.
func (e *Engine) AssignPrivateChannel(ctx context.Context, userID, channelID string) (Result, error) {
	if channelID == "" {
		return invalid("channel id must not be empty"), nil
	}

	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if user == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	first := user.PrivateChannelID == ""
	if err := e.repo.SetUserPrivateChannel(ctx, userID, channelID); err != nil {
		return Result{}, err
	}
	if first {
		e.sink.Emit(Intent{
			Kind:      IntentWelcome,
			UserID:    userID,
			ChannelID: channelID,
			At:        e.clock.Now(),
		})
	}
	return Result{Outcome: OutcomeOK}, nil
}

// AddTask validates and creates a task for a registered user. A zero due
// date defaults to tomorrow.
func (e *Engine) AddTask(ctx context.Context, userID, description string, dueDate time.Time, recurrence models.Recurrence) (Result, error) {
	if strings.TrimSpace(description) == "" {
		return invalid("description must not be empty"), nil
	}
	if !recurrence.Valid() {
		return invalid("invalid recurrence %q", recurrence), nil
	}

	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if user == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	now := e.clock.Now()
	if dueDate.IsZero() {
		dueDate = now.Add(24 * time.Hour)
	}
	dueDate = truncateToDate(dueDate)

	id, err := e.repo.AddTask(ctx, userID, description, dueDate, recurrence)
	if err != nil {
		return Result{}, err
	}

	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}

	e.sink.Emit(Intent{
		Kind:      IntentTaskCreated,
		UserID:    userID,
		Task:      task,
		ChannelID: user.PrivateChannelID,
		At:        now,
	})
	e.logger.Info("task created",
		slog.Int64("task", id), slog.String("user", userID))
	return Result{Outcome: OutcomeOK, Task: task}, nil
}

// EditChanges is a partial edit of a task's details. Nil fields are
// left untouched.
type EditChanges struct {
	Description *string
	DueDate     *time.Time
	Recurrence  *models.Recurrence
}

// EditTask rewrites a task's details. Completed tasks are immutable.
func (e *Engine) EditTask(ctx context.Context, id int64, changes EditChanges) (Result, error) {
	if changes.Description != nil && strings.TrimSpace(*changes.Description) == "" {
		return invalid("description must not be empty"), nil
	}
	if changes.Recurrence != nil && !changes.Recurrence.Valid() {
		return invalid("invalid recurrence %q", *changes.Recurrence), nil
	}

	unlock := e.locks.lock(id)
	defer unlock()

	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if task == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if task.Status == models.StatusCompleted {
		return Result{Outcome: OutcomeAlreadyDone, Task: task}, nil
	}

	description := task.Description
	dueDate := task.DueDate
	recurrence := task.Recurrence
	if changes.Description != nil {
		description = strings.TrimSpace(*changes.Description)
	}
	if changes.DueDate != nil {
		dueDate = truncateToDate(*changes.DueDate)
	}
	if changes.Recurrence != nil {
		recurrence = *changes.Recurrence
	}

	if err := e.repo.UpdateDetails(ctx, id, description, dueDate, recurrence); err != nil {
		return Result{}, err
	}

	updated, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}
	e.emitTaskUpdated(ctx, updated)
	return Result{Outcome: OutcomeOK, Task: updated}, nil
}

// MarkDone transitions a pending or overdue task to completed, credits
// the completion score and regenerates the next occurrence of a
// recurring task. Completing an already-completed task is a soft no-op.
func (e *Engine) MarkDone(ctx context.Context, id int64) (Result, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if task == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if task.Status == models.StatusCompleted {
		return Result{Outcome: OutcomeAlreadyDone, Task: task}, nil
	}

	now := e.clock.Now()

	if err := e.repo.UpdateStatus(ctx, id, models.StatusCompleted); err != nil {
		return Result{}, err
	}
	if err := e.repo.AdjustScore(ctx, task.UserID, scoring.CompletionScore()); err != nil {
		return Result{}, err
	}
	task.Status = models.StatusCompleted

	var successor *models.Task
	if task.Recurrence != models.RecurNone {
		successor, err = e.regenerate(ctx, task, now)
		if err != nil {
			// The completion itself already committed; report the
			// regeneration failure without unwinding it.
			e.logger.Error("recurring regeneration failed",
				slog.Int64("task", id), slog.String("error", err.Error()))
		}
	}

	e.sink.Emit(Intent{
		Kind:      IntentTaskCompleted,
		UserID:    task.UserID,
		Task:      task,
		ChannelID: e.configValue(ctx, ConfigShameChannel),
		At:        now,
	})
	e.logger.Info("task completed",
		slog.Int64("task", id), slog.String("user", task.UserID),
		slog.Int("delta", scoring.CompletionScore()))
	return Result{Outcome: OutcomeOK, Task: task, Successor: successor}, nil
}

// regenerate creates the next occurrence of a completed recurring task
// and clears the predecessor's recurrence so the daily reset sweep
// cannot regenerate it a second time.
func (e *Engine) regenerate(ctx context.Context, task *models.Task, now time.Time) (*models.Task, error) {
	nextDue := nextOccurrence(task.DueDate, task.Recurrence, now)

	id, err := e.repo.AddTask(ctx, task.UserID, task.Description, nextDue, task.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("create successor: %w", err)
	}
	if err := e.repo.UpdateRecurrence(ctx, task.ID, models.RecurNone); err != nil {
		return nil, fmt.Errorf("clear recurrence: %w", err)
	}

	successor, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	channelID := ""
	if user, err := e.repo.GetUser(ctx, task.UserID); err == nil && user != nil {
		channelID = user.PrivateChannelID
	}
	e.sink.Emit(Intent{
		Kind:      IntentRecurringCreated,
		UserID:    task.UserID,
		Task:      successor,
		ChannelID: channelID,
		At:        now,
	})
	e.logger.Info("recurring task regenerated",
		slog.Int64("from", task.ID), slog.Int64("to", id),
		slog.String("recurrence", string(task.Recurrence)),
		slog.String("due", nextDue.Format(models.DueDateLayout)))
	return successor, nil
}

// Snooze pushes a task's due date out by one day for a small penalty.
// An overdue task returns to pending.
func (e *Engine) Snooze(ctx context.Context, id int64) (Result, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if task == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if task.Status == models.StatusCompleted {
		return Result{Outcome: OutcomeAlreadyDone, Task: task}, nil
	}

	now := e.clock.Now()
	base := task.DueDate
	if base.IsZero() {
		base = truncateToDate(now)
	}
	newDue := base.Add(24 * time.Hour)

	if err := e.repo.UpdateDueDate(ctx, id, newDue); err != nil {
		return Result{}, err
	}
	if task.Status == models.StatusOverdue {
		if err := e.repo.UpdateStatus(ctx, id, models.StatusPending); err != nil {
			return Result{}, err
		}
	}
	if err := e.repo.AdjustScore(ctx, task.UserID, scoring.SnoozePenalty()); err != nil {
		return Result{}, err
	}

	task.DueDate = newDue
	task.Status = models.StatusPending
	e.emitTaskUpdated(ctx, task)
	e.logger.Info("task snoozed",
		slog.Int64("task", id), slog.String("user", task.UserID),
		slog.String("due", newDue.Format(models.DueDateLayout)),
		slog.Int("delta", scoring.SnoozePenalty()))
	return Result{Outcome: OutcomeOK, Task: task}, nil
}

// RecordMessageID stores the platform message id the delivery layer got
// back after sending a task's first notification.
func (e *Engine) RecordMessageID(ctx context.Context, id int64, messageID string) (Result, error) {
	if messageID == "" {
		return invalid("message id must not be empty"), nil
	}
	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if task == nil {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if err := e.repo.UpdateMessageID(ctx, id, messageID); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeOK}, nil
}

// CheckOverdue is the hourly sweep: pending tasks past their due date
// become overdue and their owner takes the per-day penalty. Returns the
// number of transitions, which doubles as a board-refresh signal.
func (e *Engine) CheckOverdue(ctx context.Context) (int, error) {
	now := e.clock.Now()
	candidates, err := e.repo.OverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	transitioned := 0
	for _, candidate := range candidates {
		if err := e.markOverdue(ctx, candidate.ID, now); err != nil {
			// One bad row must not abort the sweep.
			e.logger.Error("overdue transition failed",
				slog.Int64("task", candidate.ID), slog.String("error", err.Error()))
			continue
		}
		transitioned++
	}
	return transitioned, nil
}

func (e *Engine) markOverdue(ctx context.Context, id int64, now time.Time) error {
	unlock := e.locks.lock(id)
	defer unlock()

	// Re-read under the lock: a concurrent MarkDone or Snooze may have
	// moved the row since the candidate scan.
	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil || task.Status != models.StatusPending {
		return nil
	}
	if !task.DueDate.Before(truncateToDate(now)) {
		return nil
	}

	if err := e.repo.UpdateStatus(ctx, id, models.StatusOverdue); err != nil {
		return err
	}
	if days := scoring.DaysOverdue(task.DueDate, now); days > 0 {
		if err := e.repo.AdjustScore(ctx, task.UserID, scoring.OverduePenalty(days)); err != nil {
			return err
		}
	}

	task.Status = models.StatusOverdue
	e.emitTaskUpdated(ctx, task)
	e.logger.Info("task marked overdue",
		slog.Int64("task", id), slog.String("user", task.UserID))
	return nil
}

// WallOfShame is the daily shame sweep: one shame intent per owner,
// bundling all of that owner's tasks due today or earlier. No-op when no
// shame channel is configured.
func (e *Engine) WallOfShame(ctx context.Context) error {
	channelID, err := e.cfg.GetConfig(ctx, ConfigShameChannel)
	if err != nil {
		return err
	}
	if channelID == "" {
		return nil
	}

	now := e.clock.Now()
	rows, err := e.repo.DueTodayOrEarlier(ctx, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var order []string
	grouped := map[string][]string{}
	for _, task := range rows {
		if _, ok := grouped[task.UserID]; !ok {
			order = append(order, task.UserID)
		}
		grouped[task.UserID] = append(grouped[task.UserID], task.Description)
	}

	for _, userID := range order {
		e.sink.Emit(Intent{
			Kind:      IntentShame,
			UserID:    userID,
			Tasks:     grouped[userID],
			ChannelID: channelID,
			At:        now,
		})
		e.logger.Info("shame posted",
			slog.String("user", userID), slog.Int("tasks", len(grouped[userID])))
	}
	return nil
}

// DailyReset is the midnight sweep: completed recurring tasks that were
// never regenerated (completed while the process was down, or by older
// writers) get their successor created. Returns the number regenerated.
func (e *Engine) DailyReset(ctx context.Context) (int, error) {
	completed, err := e.repo.CompletedRecurring(ctx)
	if err != nil {
		return 0, err
	}
	if len(completed) == 0 {
		return 0, nil
	}

	now := e.clock.Now()
	regenerated := 0
	for _, row := range completed {
		if err := e.resetOne(ctx, row.ID, now); err != nil {
			e.logger.Error("daily reset failed for task",
				slog.Int64("task", row.ID), slog.String("error", err.Error()))
			continue
		}
		regenerated++
	}
	return regenerated, nil
}

func (e *Engine) resetOne(ctx context.Context, id int64, now time.Time) error {
	unlock := e.locks.lock(id)
	defer unlock()

	task, err := e.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	// Skip rows that vanished or were regenerated since the scan.
	if task == nil || task.Status != models.StatusCompleted || task.Recurrence == models.RecurNone {
		return nil
	}

	_, err = e.regenerate(ctx, task, now)
	return err
}

// ActiveTaskIDs exposes the ids the delivery layer needs to re-register
// message affordances after a restart.
func (e *Engine) ActiveTaskIDs(ctx context.Context) ([]int64, error) {
	return e.repo.ActiveTaskIDs(ctx)
}

// Board returns every user with their tasks, ordered by score.
func (e *Engine) Board(ctx context.Context) ([]models.UserTasks, error) {
	return e.repo.UsersWithTasks(ctx)
}

// TasksForUser lists a user's tasks, optionally filtered by status.
func (e *Engine) TasksForUser(ctx context.Context, userID string, status *models.Status) ([]models.Task, error) {
	return e.repo.GetTasksForUser(ctx, userID, status)
}

func (e *Engine) emitTaskUpdated(ctx context.Context, task *models.Task) {
	channelID := ""
	if user, err := e.repo.GetUser(ctx, task.UserID); err == nil && user != nil {
		channelID = user.PrivateChannelID
	}
	e.sink.Emit(Intent{
		Kind:      IntentTaskUpdated,
		UserID:    task.UserID,
		Task:      task,
		ChannelID: channelID,
		At:        e.clock.Now(),
	})
}

func (e *Engine) configValue(ctx context.Context, key string) string {
	value, err := e.cfg.GetConfig(ctx, key)
	if err != nil {
		e.logger.Warn("config lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		return ""
	}
	return value
}

// nextOccurrence advances a due date by the recurrence interval. An
// unset due date falls back to the processing instant.
func nextOccurrence(due time.Time, recurrence models.Recurrence, now time.Time) time.Time {
	base := due
	if base.IsZero() {
		base = now
	}
	return truncateToDate(base.Add(recurrence.Interval()))
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
