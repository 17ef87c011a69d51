package runtime

import (
	"context"
	"testing"

	"chat-direct/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []event.Outbound
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, e event.Outbound) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() {
	s.closed = true
}

func TestRegistry_Register_And_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.New()
	sink := &recordingSink{}

	// Given no user is connected
	req.Empty(registry.Snapshot())

	// When a user registers
	registry.Register(userID, sink)

	// Then the sink is reachable
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(sink, found.(*recordingSink))
	req.Len(registry.Snapshot(), 1)
}

func TestRegistry_Register_Supersedes_And_Closes_Previous(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.New()
	first := &recordingSink{}
	second := &recordingSink{}

	// Given a connected user
	registry.Register(userID, first)

	// When the same user connects again
	registry.Register(userID, second)

	// Then the new sink replaced the old one, which was closed
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(second, found.(*recordingSink))
	req.True(first.closed)
	req.False(second.closed)
}

func TestRegistry_Unregister_Only_Removes_Current_Sink(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.New()
	stale := &recordingSink{}
	current := &recordingSink{}

	// Given a superseded connection
	registry.Register(userID, stale)
	registry.Register(userID, current)

	// When the stale connection's cleanup fires
	registry.Unregister(userID, stale)

	// Then the replacement stays registered
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(current, found.(*recordingSink))

	// And unregistering the current sink removes it
	registry.Unregister(userID, current)
	_, ok = registry.Lookup(userID)
	req.False(ok)
}
