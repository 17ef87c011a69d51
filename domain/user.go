// Package domain contains core concepts of the direct-messaging system.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// User is an account holder. Presence fields are mutated only through
// the presence tracker on connect/disconnect.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Status       PresenceStatus
	LastSeenAt   time.Time
	CreatedAt    time.Time
}
