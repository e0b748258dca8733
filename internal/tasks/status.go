package tasks

import "strings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// NormalizeStatus folds backend spellings ("RUNNING", " Pending ") onto the
// local vocabulary. Unrecognized values map to unknown, which counts as
// terminal so polling never spins on a status it cannot interpret.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "waiting":
		return StatusPending
	case "running", "processing":
		return StatusRunning
	case "completed", "success", "succeeded":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Active reports whether the status keeps a poll session alive.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

func (s Status) Terminal() bool {
	return !s.Active()
}
