package domain

import "strings"

// Status is the approval stage of an event
type Status string

const (
	StatusPendingHOD  Status = "PENDING_HOD"
	StatusPendingDean Status = "PENDING_DEAN"
	StatusPendingHead Status = "PENDING_HEAD"
	StatusApproved    Status = "APPROVED"
	StatusRunning     Status = "RUNNING"
	StatusCompleted   Status = "COMPLETED"
	StatusRejected    Status = "REJECTED"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{
	StatusPendingHOD,
	StatusPendingDean,
	StatusPendingHead,
	StatusApproved,
	StatusRunning,
	StatusCompleted,
	StatusRejected,
}

// ParseStatus parses s case-insensitively
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrUnknownStatus
	}
	return st, nil
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// IsPending reports whether s awaits an approver
func (s Status) IsPending() bool {
	return s == StatusPendingHOD || s == StatusPendingDean || s == StatusPendingHead
}

func (s Status) String() string { return string(s) }

// Action is what a caller asks the state machine to do
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
)

// ParseAction parses a case-insensitively
func ParseAction(a string) (Action, error) {
	switch act := Action(strings.ToLower(strings.TrimSpace(a))); act {
	case ActionApprove, ActionReject, ActionStart, ActionComplete:
		return act, nil
	default:
		return "", ErrUnknownAction
	}
}

func (a Action) String() string { return string(a) }
