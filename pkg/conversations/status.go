package conversations

import "strings"

// Status is the lifecycle state of a conversation. Closed is not terminal.
type Status string

const (
	StatusTodo      Status = "todo"
	StatusAssigned  Status = "assigned"
	StatusEscalated Status = "escalated"
	StatusClosed    Status = "closed"
)

// Statuses lists every valid status
var Statuses = []Status{StatusTodo, StatusAssigned, StatusEscalated, StatusClosed}

// Valid reports whether s is one of the four statuses
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusAssigned, StatusEscalated, StatusClosed:
		return true
	}
	return false
}

// ParseStatus accepts any casing; anything else is an *InvalidStateError.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &InvalidStateError{Value: s}
	}
	return st, nil
}

// transitionRules maps a current status to its reachable targets
type transitionRules map[Status][]Status

func (r transitionRules) allows(from, to Status) bool {
	for _, t := range r[from] {
		if t == to {
			return true
		}
	}
	return false
}

// legalTransitions is the table enforced for caller-chosen targets.
var legalTransitions = transitionRules{
	StatusTodo:      {StatusAssigned, StatusEscalated},
	StatusAssigned:  {StatusClosed},
	StatusEscalated: {StatusAssigned},
	StatusClosed:    {StatusTodo, StatusAssigned},
}

// inboundRules extends the legal table with the one edge inbound messages
// need: a reply to an assigned conversation puts it back in the queue.
var inboundRules = transitionRules{
	StatusTodo:      {StatusAssigned, StatusEscalated},
	StatusAssigned:  {StatusClosed, StatusTodo},
	StatusEscalated: {StatusAssigned},
	StatusClosed:    {StatusTodo, StatusAssigned},
}

// inboundTargets is the status an externally originated message implies.
var inboundTargets = map[Status]Status{
	StatusClosed:    StatusTodo,
	StatusAssigned:  StatusTodo,
	StatusEscalated: StatusEscalated,
	StatusTodo:      StatusTodo,
}

// CanTransition reports whether a caller may move a conversation from -> to
func CanTransition(from, to Status) bool {
	return legalTransitions.allows(from, to)
}

// LegalTargets returns the statuses reachable from from
func LegalTargets(from Status) []Status {
	return append([]Status(nil), legalTransitions[from]...)
}

// InboundTarget returns the status an inbound message normalizes from to.
// ok is false for an unrecognized status.
func InboundTarget(from Status) (to Status, ok bool) {
	to, ok = inboundTargets[from]
	return to, ok
}
