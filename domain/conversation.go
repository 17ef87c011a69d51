package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation links an unordered pair of users. UserA/UserB are stored in
// normalized order (lexicographic by UUID string) so a pair always maps to
// the same row regardless of who spoke first.
type Conversation struct {
	ID             uuid.UUID
	UserA          uuid.UUID
	UserB          uuid.UUID
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// NormalizePair orders two user ids deterministically.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

func NewConversation(a, b uuid.UUID, at time.Time) Conversation {
	a, b = NormalizePair(a, b)
	return Conversation{
		ID:             uuid.New(),
		UserA:          a,
		UserB:          b,
		LastActivityAt: at,
		CreatedAt:      at,
	}
}

// Has reports whether the given user is one of the two participants.
func (c Conversation) Has(userID uuid.UUID) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other returns the participant facing userID.
// ok is false when userID is not part of the conversation.
func (c Conversation) Other(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.UserA:
		return c.UserB, true
	case c.UserB:
		return c.UserA, true
	default:
		return uuid.Nil, false
	}
}

// ConversationView is the wire shape of a conversation. Internal rows
// never marshal directly, keeping the REST surface on the same camelCase
// keys as the real-time events.
type ConversationView struct {
	ID             uuid.UUID `json:"id"`
	UserA          uuid.UUID `json:"userA"`
	UserB          uuid.UUID `json:"userB"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (c Conversation) View() ConversationView {
	return ConversationView{
		ID:             c.ID,
		UserA:          c.UserA,
		UserB:          c.UserB,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}
