package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MARistheone/Bother-Bot/internal/models"
)

// IntentKind discriminates notification intents.
type IntentKind string

const (
	IntentTaskCreated      IntentKind = "task-created"
	IntentTaskUpdated      IntentKind = "task-updated"
	IntentTaskCompleted    IntentKind = "task-completed"
	IntentRecurringCreated IntentKind = "recurring-created"
	IntentShame            IntentKind = "shame"
	IntentWelcome          IntentKind = "welcome"
)

// Intent is an unsent description of a user-facing message. The delivery
// layer drains intents and renders them; the engine never formats text.
// ID lets an at-least-once consumer de-duplicate.
type Intent struct {
	ID        string       `json:"id"`
	Kind      IntentKind   `json:"kind"`
	UserID    string       `json:"user_id"`
	Task      *models.Task `json:"task,omitempty"`
	Tasks     []string     `json:"tasks,omitempty"`
	ChannelID string       `json:"channel_id,omitempty"`
	At        time.Time    `json:"at"`
}

// Sink receives notification intents as state transitions commit.
// Emission is best-effort: a sink must never fail a transition.
type Sink interface {
	Emit(intent Intent)
}

// IntentQueue is a threadsafe in-memory Sink drained by the delivery
// layer.
type IntentQueue struct {
	mu      sync.Mutex
	pending []Intent
}

// NewIntentQueue returns an empty queue.
func NewIntentQueue() *IntentQueue {
	return &IntentQueue{}
}

// Emit appends an intent, stamping its id when unset.
func (q *IntentQueue) Emit(intent Intent) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	q.mu.Lock()
	q.pending = append(q.pending, intent)
	q.mu.Unlock()
}

// Drain removes and returns all pending intents in emission order.
func (q *IntentQueue) Drain() []Intent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of pending intents.
func (q *IntentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
