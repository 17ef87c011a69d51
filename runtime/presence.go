package runtime

import (
	"context"
	"log/slog"
	"time"

	"chat-direct/contract"
	"chat-direct/domain"
	"chat-direct/domain/event"
	"chat-direct/repositories"

	"github.com/google/uuid"
)

// PresenceTracker derives presence from the registry: a user is online
// exactly while a sink is registered for them. Transitions are persisted
// and broadcast to every connected user.
type PresenceTracker struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	registry contract.IRegistry
}

func NewPresenceTracker(log *slog.Logger, users repositories.IUserRepository, registry contract.IRegistry) *PresenceTracker {
	return &PresenceTracker{log: log, users: users, registry: registry}
}

func (p *PresenceTracker) Connected(ctx context.Context, userID uuid.UUID) {
	p.transition(ctx, userID, domain.StatusOnline)
}

// Disconnected also stamps the last-seen time, which clients surface as
// "last seen at".
func (p *PresenceTracker) Disconnected(ctx context.Context, userID uuid.UUID) {
	p.transition(ctx, userID, domain.StatusOffline)
}

func (p *PresenceTracker) transition(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus) {
	now := time.Now().UTC()
	if err := p.users.UpdatePresence(userID, status, now); err != nil {
		// Broadcast anyway: connected peers care about the live status
		// more than the persisted copy.
		p.log.Error("Failed to persist presence", "user", userID, "status", status, "error", err)
	}

	notice := event.UserStatusChange{UserID: userID, Status: status, LastSeen: now}
	for id, s := range p.registry.Snapshot() {
		if id == userID {
			continue
		}
		if err := s.Consume(ctx, notice); err != nil {
			p.log.Warn("Failed to notify presence change", "user", id, "error", err)
		}
	}
}
