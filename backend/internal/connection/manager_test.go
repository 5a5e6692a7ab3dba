package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), NewBus())
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.False(t, req.CreatedAt.IsZero())
	assert.True(t, req.ResolvedAt.IsZero())

	got, err := m.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestManager_CreateValidation(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "", "bob")
	assert.Error(t, err)

	_, err = m.Create(ctx, "alice", "alice")
	assert.Error(t, err)
}

func TestManager_DuplicatePendingRequest(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = m.Create(ctx, "alice", "bob")
	var dup ErrDuplicateRequest
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.False(t, dup.Reverse)
}

func TestManager_ReversePendingRequest(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	// bob reaching back while alice's request is pending should be steered
	// toward accepting it, not opening a second one
	_, err = m.Create(ctx, "bob", "alice")
	var dup ErrDuplicateRequest
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Reverse)
	assert.Equal(t, first.ID, dup.Existing.ID)
}

func TestManager_AcceptedPairBlocksNewRequests(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)

	_, err = m.Create(ctx, "alice", "bob")
	var dup ErrDuplicateRequest
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, StatusAccepted, dup.Existing.Status)
	assert.False(t, dup.Reverse)

	_, err = m.Create(ctx, "bob", "alice")
	require.ErrorAs(t, err, &dup)
	assert.False(t, dup.Reverse)
}

func TestManager_DeclineAllowsRetry(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	resolved, err := m.Decline(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, resolved.Status)
	assert.False(t, resolved.ResolvedAt.IsZero())

	second, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, second.ID)
}

func TestManager_WithdrawAllowsRetry(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.Withdraw(ctx, "alice", req.ID)
	require.NoError(t, err)

	_, err = m.Create(ctx, "bob", "alice")
	require.NoError(t, err)
}

func TestManager_TransitionAuthorization(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	var notAuth ErrNotAuthorized

	// Sender cannot resolve their own request
	_, err = m.Accept(ctx, "alice", req.ID)
	require.ErrorAs(t, err, &notAuth)
	assert.Equal(t, "accept", notAuth.Action)

	_, err = m.Decline(ctx, "alice", req.ID)
	assert.ErrorAs(t, err, &notAuth)

	// Recipient cannot withdraw
	_, err = m.Withdraw(ctx, "bob", req.ID)
	require.ErrorAs(t, err, &notAuth)
	assert.Equal(t, "withdraw", notAuth.Action)

	// A third party can do nothing
	_, err = m.Accept(ctx, "mallory", req.ID)
	assert.ErrorAs(t, err, &notAuth)

	// Still pending after all the refused attempts
	got, err := m.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestManager_TerminalStatesRejectFurtherTransitions(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)

	var invalid ErrInvalidState
	_, err = m.Decline(ctx, "bob", req.ID)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusAccepted, invalid.Status)

	_, err = m.Withdraw(ctx, "alice", req.ID)
	assert.ErrorAs(t, err, &invalid)
}

func TestManager_UnknownRequest(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	var notFound ErrRequestNotFound
	_, err := m.Get(ctx, "missing")
	assert.ErrorAs(t, err, &notFound)

	_, err = m.Accept(ctx, "bob", "missing")
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_ConcurrentResolutionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		m := newTestManager()
		req, err := m.Create(ctx, "alice", "bob")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = m.Accept(ctx, "bob", req.ID)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = m.Decline(ctx, "bob", req.ID)
		}()
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			var invalid ErrInvalidState
			assert.ErrorAs(t, err, &invalid)
		}
		assert.Equal(t, 1, winners)

		got, err := m.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, got.Status.Terminal())
	}
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	store := NewMemoryStore()
	bus := NewBus()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(store, bus, WithClock(func() time.Time { return fixed }))

	events := bus.Subscribe(8)
	ctx := context.Background()

	req, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)

	created := <-events
	assert.Equal(t, EventCreated, created.Kind)
	assert.Equal(t, req.ID, created.Request.ID)
	assert.Equal(t, fixed, created.OccurredAt)

	accepted := <-events
	assert.Equal(t, EventAccepted, accepted.Kind)
	assert.Equal(t, StatusAccepted, accepted.Request.Status)
	assert.Equal(t, fixed, accepted.Request.ResolvedAt)
}

func TestBus_DropsEventsForSlowSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.Publish(Event{Kind: EventCreated})
	bus.Publish(Event{Kind: EventWithdrawn}) // buffer full, dropped

	first := <-ch
	assert.Equal(t, EventCreated, first.Kind)
	select {
	case e := <-ch:
		t.Fatalf("expected dropped event, got %v", e.Kind)
	default:
	}
}
