package engine

import (
	"context"
	"time"

	"github.com/MARistheone/Bother-Bot/internal/models"
)

// Repository is the persistence contract the engine drives. The sqlite
// store implements it; tests may substitute their own.
type Repository interface {
	AddUser(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SetUserPrivateChannel(ctx context.Context, userID, channelID string) error
	AdjustScore(ctx context.Context, userID string, delta int) error

	AddTask(ctx context.Context, userID, description string, dueDate time.Time, recurrence models.Recurrence) (int64, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	GetTasksForUser(ctx context.Context, userID string, status *models.Status) ([]models.Task, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
	UpdateDueDate(ctx context.Context, id int64, dueDate time.Time) error
	UpdateMessageID(ctx context.Context, id int64, messageID string) error
	UpdateRecurrence(ctx context.Context, id int64, recurrence models.Recurrence) error
	UpdateDetails(ctx context.Context, id int64, description string, dueDate time.Time, recurrence models.Recurrence) error

	OverdueCandidates(ctx context.Context, now time.Time) ([]models.Task, error)
	DueTodayOrEarlier(ctx context.Context, now time.Time) ([]models.Task, error)
	CompletedRecurring(ctx context.Context) ([]models.Task, error)
	ActiveTaskIDs(ctx context.Context) ([]int64, error)
	UsersWithTasks(ctx context.Context) ([]models.UserTasks, error)
}

// ConfigStore is the process-wide key-value settings lookup.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Config keys the engine reads.
const (
	ConfigShameChannel = "shame_channel_id"
	ConfigBoardChannel = "board_channel_id"
	ConfigBoardMessage = "board_message_id"
)

// Clock supplies the current instant. Injected so sweeps and due-date
// arithmetic are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC instant.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
