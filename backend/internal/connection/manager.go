package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resonance/backend/pkg/logger"
)

// Manager owns the connection-request lifecycle. It is the only component in
// the engine with contended mutable state (request status); every transition
// is an optimistic compare-and-swap so at most one of any set of racing
// accept/decline/withdraw attempts wins, the rest observe InvalidState.
type Manager struct {
	store  Store
	bus    *Bus
	logger *zap.Logger
	now    func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager around a store and event bus
func NewManager(store Store, bus *Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		bus:    bus,
		logger: logger.Named("connection"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a pending request from sender to recipient. A pending request
// for the same pair fails with DuplicateRequest; a pending request in the
// reverse direction also fails with DuplicateRequest carrying the reverse
// request so the caller can offer accepting it instead.
func (m *Manager) Create(ctx context.Context, senderID, recipientID string) (*Request, error) {
	if senderID == "" || recipientID == "" {
		return nil, fmt.Errorf("sender and recipient ids are required")
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("cannot create a connection request to yourself")
	}

	req := &Request{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      StatusPending,
		CreatedAt:   m.now(),
	}

	if err := m.store.Create(ctx, req); err != nil {
		return nil, err
	}

	m.logger.Info("Connection request created",
		zap.String("request_id", req.ID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", recipientID),
	)
	m.bus.Publish(Event{Kind: EventCreated, Request: *req, OccurredAt: req.CreatedAt})

	return req, nil
}

// Accept resolves a pending request; recipient only
func (m *Manager) Accept(ctx context.Context, actorID, requestID string) (*Request, error) {
	return m.transition(ctx, actorID, requestID, "accept", StatusAccepted, EventAccepted, actorIsRecipient)
}

// Decline resolves a pending request; recipient only
func (m *Manager) Decline(ctx context.Context, actorID, requestID string) (*Request, error) {
	return m.transition(ctx, actorID, requestID, "decline", StatusDeclined, EventDeclined, actorIsRecipient)
}

// Withdraw resolves a pending request; sender only
func (m *Manager) Withdraw(ctx context.Context, actorID, requestID string) (*Request, error) {
	return m.transition(ctx, actorID, requestID, "withdraw", StatusWithdrawn, EventWithdrawn, actorIsSender)
}

// Get returns a request by id
func (m *Manager) Get(ctx context.Context, requestID string) (*Request, error) {
	return m.store.Get(ctx, requestID)
}

type authz func(req *Request, actorID string) bool

func actorIsRecipient(req *Request, actorID string) bool { return req.RecipientID == actorID }
func actorIsSender(req *Request, actorID string) bool    { return req.SenderID == actorID }

func (m *Manager) transition(ctx context.Context, actorID, requestID, action string, to Status, kind EventKind, allowed authz) (*Request, error) {
	req, err := m.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Authorization is checked before state so an unauthorized actor learns
	// nothing about a race outcome
	if !allowed(req, actorID) {
		return nil, ErrNotAuthorized{RequestID: requestID, ActorID: actorID, Action: action}
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidState{RequestID: requestID, Status: req.Status, Action: action}
	}

	resolvedAt := m.now()
	won, err := m.store.CompareAndSwapStatus(ctx, requestID, StatusPending, to, resolvedAt)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another transition resolved the request between our read and the swap
		current, err := m.store.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		return nil, ErrInvalidState{RequestID: requestID, Status: current.Status, Action: action}
	}

	req.Status = to
	req.ResolvedAt = resolvedAt

	m.logger.Info("Connection request resolved",
		zap.String("request_id", requestID),
		zap.String("action", action),
		zap.String("actor_id", actorID),
	)
	m.bus.Publish(Event{Kind: kind, Request: *req, OccurredAt: resolvedAt})

	return req, nil
}
