package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOverdue, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the task still demands attention.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusOverdue
}

// Recurrence describes how often a completed task regenerates.
type Recurrence string

const (
	RecurNone   Recurrence = "none"
	RecurDaily  Recurrence = "daily"
	RecurWeekly Recurrence = "weekly"
)

// Valid reports whether r is one of the known recurrence values.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly:
		return true
	}
	return false
}

// Interval returns the gap between occurrences, or 0 for RecurNone.
func (r Recurrence) Interval() time.Duration {
	switch r {
	case RecurDaily:
		return 24 * time.Hour
	case RecurWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// ParseRecurrence validates a wire-format recurrence value. Empty input
// falls back to RecurNone.
func ParseRecurrence(raw string) (Recurrence, error) {
	if raw == "" {
		return RecurNone, nil
	}
	r := Recurrence(raw)
	if !r.Valid() {
		return "", fmt.Errorf("invalid recurrence %q", raw)
	}
	return r, nil
}

// DueDateLayout is the wire and storage format for due dates. Due dates
// carry calendar-day granularity only.
const DueDateLayout = "2006-01-02"

// ParseDueDate parses a YYYY-MM-DD due date. The result is midnight UTC;
// input without timezone information is treated as UTC.
func ParseDueDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DueDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q (want YYYY-MM-DD)", raw)
	}
	return t, nil
}

// User is a registered participant with a running score.
type User struct {
	ID               string `json:"id"`
	Score            int    `json:"score"`
	PrivateChannelID string `json:"private_channel_id,omitempty"`
}

// Task is a single accountability item owned by a user.
type Task struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	MessageID   string     `json:"message_id,omitempty"`
	DueDate     time.Time  `json:"due_date"`
	Recurrence  Recurrence `json:"recurrence"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserTasks pairs a user with their tasks for the accountability board.
type UserTasks struct {
	User  User   `json:"user"`
	Tasks []Task `json:"tasks"`
}
