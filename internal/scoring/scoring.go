// Package scoring holds the pure scoring policy. No storage, no
// transport, no side effects.
package scoring

import "time"

const (
	scoreComplete      = 10
	scoreOverduePerDay = -5
	scoreSnooze        = -2
)

// CompletionScore returns the points awarded for completing a task.
func CompletionScore() int {
	return scoreComplete
}

// OverduePenalty returns the points deducted for a task that is the
// given number of whole days overdue. Zero or negative days cost nothing.
func OverduePenalty(daysOverdue int) int {
	if daysOverdue <= 0 {
		return 0
	}
	return scoreOverduePerDay * daysOverdue
}

// SnoozePenalty returns the points deducted for snoozing a task.
func SnoozePenalty() int {
	return scoreSnooze
}

// DaysOverdue returns the number of whole days now is past due, floored
// at zero. A due date without timezone information is treated as UTC.
func DaysOverdue(due, now time.Time) int {
	if due.Location() == time.Local {
		due = time.Date(due.Year(), due.Month(), due.Day(),
			due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), time.UTC)
	}
	days := int(now.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
