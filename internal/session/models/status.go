package models

// SessionStatus is the work session's lifecycle state. Closed enum:
// transitions happen only through WorkSession methods, never by assigning
// the field directly, so illegal states are unrepresentable outside this
// package.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusPaused     SessionStatus = "paused"
	StatusAborted    SessionStatus = "aborted"
	StatusCompleted  SessionStatus = "completed"
	StatusApproved   SessionStatus = "approved"
	StatusRejected   SessionStatus = "rejected"
)

var validStatuses = map[SessionStatus]bool{
	StatusInProgress: true,
	StatusPaused:     true,
	StatusAborted:    true,
	StatusCompleted:  true,
	StatusApproved:   true,
	StatusRejected:   true,
}

func (s SessionStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether the status permits no further mutation.
// ABORTED is terminal for the worker but never reviewable; APPROVED and
// REJECTED additionally imply the locked flag.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusAborted, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CheckResult is the outcome of one safety check.
type CheckResult string

const (
	ResultPass     CheckResult = "pass"
	ResultFail     CheckResult = "fail"
	ResultOverride CheckResult = "override"
)

func (r CheckResult) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultOverride:
		return true
	default:
		return false
	}
}
