package domain

import "strings"

// Authorizer decides whether actor may move ev along an edge
type Authorizer func(actor Actor, ev *Event) error

// Rule is one edge of the approval state machine
type Rule struct {
	From           Status
	Action         Action
	To             Status
	RequiresReason bool
	Authorize      Authorizer
}

type edge struct {
	from   Status
	action Action
}

func hodOfEventDepartment(actor Actor, ev *Event) error {
	if actor.Role != RoleHOD || actor.Department == "" || actor.Department != ev.Department {
		return ErrNotApprover
	}
	return nil
}

func role(r Role) Authorizer {
	return func(actor Actor, _ *Event) error {
		if actor.Role != r {
			return ErrNotApprover
		}
		return nil
	}
}

func owningCoordinator(actor Actor, ev *Event) error {
	if actor.Role != RoleCoordinator || actor.ID != ev.CoordinatorID {
		return ErrNotOwner
	}
	return nil
}

// Transitions is the single authorization table of the approval chain.
// Terminal statuses have no outgoing edges.
var Transitions = map[edge]Rule{}

func init() {
	for _, r := range []Rule{
		{From: StatusPendingHOD, Action: ActionApprove, To: StatusPendingDean, Authorize: hodOfEventDepartment},
		{From: StatusPendingDean, Action: ActionApprove, To: StatusPendingHead, Authorize: role(RoleDean)},
		{From: StatusPendingHead, Action: ActionApprove, To: StatusApproved, Authorize: role(RoleInstitutionalHead)},
		{From: StatusPendingHOD, Action: ActionReject, To: StatusRejected, RequiresReason: true, Authorize: hodOfEventDepartment},
		{From: StatusPendingDean, Action: ActionReject, To: StatusRejected, RequiresReason: true, Authorize: role(RoleDean)},
		{From: StatusPendingHead, Action: ActionReject, To: StatusRejected, RequiresReason: true, Authorize: role(RoleInstitutionalHead)},
		{From: StatusApproved, Action: ActionStart, To: StatusRunning, Authorize: owningCoordinator},
		{From: StatusRunning, Action: ActionComplete, To: StatusCompleted, Authorize: owningCoordinator},
	} {
		Transitions[edge{r.From, r.Action}] = r
	}
}

// LookupTransition returns the rule for action from status
func LookupTransition(from Status, action Action) (Rule, error) {
	r, ok := Transitions[edge{from, action}]
	if !ok {
		return Rule{}, &IllegalTransitionError{From: from, Action: action}
	}
	return r, nil
}

// Check authorizes actor and validates the reason, in that order
func (r Rule) Check(actor Actor, ev *Event, reason string) error {
	if err := r.Authorize(actor, ev); err != nil {
		return err
	}
	if r.RequiresReason && strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// Apply moves ev to the rule's target status
func (r Rule) Apply(ev *Event, reason string) {
	ev.Status = r.To
	if r.To == StatusRejected {
		ev.RejectionReason = strings.TrimSpace(reason)
	} else {
		ev.RejectionReason = ""
	}
}

// ActionTo returns the single action that moves an event from one status to
// another. It lets callers that speak in target statuses go through the table.
func ActionTo(from, to Status) (Action, error) {
	if !to.Valid() {
		return "", ErrUnknownStatus
	}
	for e, r := range Transitions {
		if e.from == from && r.To == to {
			return e.action, nil
		}
	}
	return "", &IllegalTransitionError{From: from, To: to}
}
