package connection

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a connection request.
// pending is the only non-terminal state; re-attempting contact after any
// terminal state requires a new request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusWithdrawn Status = "withdrawn"
)

// Terminal reports whether a status permits no further transitions
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusWithdrawn
}

// Request is a connection request between two users. At most one pending
// request exists per ordered (sender, recipient) pair at a time; the reverse
// pair is also blocked while pending.
type Request struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"` // zero until terminal
}

// Errors

// ErrRequestNotFound is returned when a request id is unknown
type ErrRequestNotFound struct {
	RequestID string
}

func (e ErrRequestNotFound) Error() string {
	return fmt.Sprintf("connection request not found: %s", e.RequestID)
}

// ErrDuplicateRequest is returned when a pending request already exists for
// the pair, or the pair is already connected through an accepted one. When
// Reverse is true the existing request is pending in the other direction and
// the caller should offer accepting it instead: symmetric intent must not
// create two parallel pending requests.
type ErrDuplicateRequest struct {
	Existing *Request
	Reverse  bool
}

func (e ErrDuplicateRequest) Error() string {
	if e.Reverse {
		return fmt.Sprintf("pending request already exists in reverse: %s", e.Existing.ID)
	}
	return fmt.Sprintf("pending request already exists: %s", e.Existing.ID)
}

// ErrNotAuthorized is returned when the acting user may not perform the
// transition (accept/decline are recipient-only, withdraw is sender-only)
type ErrNotAuthorized struct {
	RequestID string
	ActorID   string
	Action    string
}

func (e ErrNotAuthorized) Error() string {
	return fmt.Sprintf("user %s is not authorized to %s request %s", e.ActorID, e.Action, e.RequestID)
}

// ErrInvalidState is returned when a transition's guard does not match the
// observed status, including when another transition won a race
type ErrInvalidState struct {
	RequestID string
	Status    Status
	Action    string
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s request %s in state %s", e.Action, e.RequestID, e.Status)
}
