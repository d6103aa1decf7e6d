// Package conversations implements the conversation lifecycle.
//
// Statuses are Todo, Assigned, Escalated and Closed; Closed is not
// terminal. Caller-chosen transitions must appear in the legal table:
//
//	Todo      -> Assigned, Escalated
//	Assigned  -> Closed
//	Escalated -> Assigned
//	Closed    -> Todo, Assigned
//
// An inbound customer message normalizes the status first (Closed and
// Assigned go back to Todo, Escalated and Todo stay) through the same gate
// as SetState, with Assigned -> Todo permitted on that path only.
//
// Every status write is conditional on the status read before it. Two
// racing callers get one success and one ErrConcurrentModification; the
// inbound path retries once.
//
// Assignment is a separate field. Assign and Unassign never change status;
// an assignee on a Todo conversation is logged and counted.
package conversations
