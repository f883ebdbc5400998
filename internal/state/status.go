package state

import "strings"

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusNeedsClarification Status = "needs_clarification"
	StatusCompleted          Status = "completed"
	StatusError              Status = "error"
	StatusPaused             Status = "paused"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusNeedsClarification,
	StatusCompleted,
	StatusError,
	StatusPaused,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted:          {},
	StatusError:              {},
	StatusNeedsClarification: {},
}

// allowedTransitions lists every legal from -> to move. The empty status is a
// record that has never been persisted.
var allowedTransitions = map[Status][]Status{
	"":                       {StatusPending},
	StatusPending:            {StatusProcessing},
	StatusProcessing:         {StatusCompleted, StatusError, StatusNeedsClarification},
	StatusCompleted:          {StatusPending},
	StatusError:              {StatusPending, StatusPaused},
	StatusNeedsClarification: {StatusPending},
	StatusPaused:             {StatusPending},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends an attempt.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
