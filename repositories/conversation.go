package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"chat-direct/domain"
	"chat-direct/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IConversationRepository interface {
	Resolve(a, b uuid.UUID, at time.Time) (domain.Conversation, bool, error)
	GetByID(id uuid.UUID) (domain.Conversation, error)
	Touch(id uuid.UUID, at time.Time) error
	ListForUser(userID uuid.UUID) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type conversationRecord struct {
	ID             string `json:"id"`
	UserA          string `json:"user_a"`
	UserB          string `json:"user_b"`
	LastActivityAt int64  `json:"last_activity_at"`
	CreatedAt      int64  `json:"created_at"`
}

func convKey(id uuid.UUID) []byte { return []byte("conv:id:" + id.String()) }

// pairKey is the normalized unordered-pair index. Both (a,b) and (b,a)
// hit the same key, which is what enforces one conversation per pair.
func pairKey(a, b uuid.UUID) []byte {
	a, b = domain.NormalizePair(a, b)
	return []byte("conv:pair:" + a.String() + ":" + b.String())
}

func memberKey(userID, convID uuid.UUID) []byte {
	return []byte("conv:member:" + userID.String() + ":" + convID.String())
}

// Resolve finds or creates the single conversation for an unordered pair.
// The lookup and the insert run in one serializable transaction keyed by
// the normalized pair, so two concurrent resolves for the same pair cannot
// both insert: the conflicting commit is detected and retried, and the
// retry reads the winner's row. Returns created=true on first contact.
func (c *ConversationRepository) Resolve(a, b uuid.UUID, at time.Time) (domain.Conversation, bool, error) {
	if a == b {
		return domain.Conversation{}, false, errors.ErrSelfConversation
	}

	var conversation domain.Conversation
	var created bool
	err := update(c.db, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(pairKey(a, b))
		if err == nil {
			var id uuid.UUID
			if err := item.Value(func(val []byte) error {
				parsed, err := uuid.Parse(string(val))
				if err != nil {
					return err
				}
				id = parsed
				return nil
			}); err != nil {
				return err
			}
			conversation, err = getConversation(txn, id)
			return err
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		conversation = domain.NewConversation(a, b, at)
		data, err := json.Marshal(fromConversation(conversation))
		if err != nil {
			return err
		}
		if err := txn.Set(convKey(conversation.ID), data); err != nil {
			return err
		}
		if err := txn.Set(pairKey(a, b), []byte(conversation.ID.String())); err != nil {
			return err
		}
		if err := txn.Set(memberKey(conversation.UserA, conversation.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(memberKey(conversation.UserB, conversation.ID), nil); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversation, created, nil
}

func (c *ConversationRepository) GetByID(id uuid.UUID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

// Touch bumps the recency timestamp in a single transaction.
func (c *ConversationRepository) Touch(id uuid.UUID, at time.Time) error {
	return update(c.db, func(txn *badger.Txn) error {
		conversation, err := getConversation(txn, id)
		if err != nil {
			return err
		}
		conversation.LastActivityAt = at
		data, err := json.Marshal(fromConversation(conversation))
		if err != nil {
			return err
		}
		return txn.Set(convKey(id), data)
	})
}

// ListForUser returns the user's conversations, most recent activity first.
func (c *ConversationRepository) ListForUser(userID uuid.UUID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:member:" + userID.String() + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rawID := it.Item().Key()[len(prefix):]
			id, err := uuid.Parse(string(rawID))
			if err != nil {
				return err
			}
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastActivityAt.After(conversations[j].LastActivityAt)
	})
	return conversations, nil
}

func getConversation(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	item, err := txn.Get(convKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var record conversationRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(record)
}

func fromConversation(conversation domain.Conversation) conversationRecord {
	return conversationRecord{
		ID:             conversation.ID.String(),
		UserA:          conversation.UserA.String(),
		UserB:          conversation.UserB.String(),
		LastActivityAt: conversation.LastActivityAt.UnixNano(),
		CreatedAt:      conversation.CreatedAt.UnixNano(),
	}
}

func toConversation(record conversationRecord) (domain.Conversation, error) {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	userA, err := uuid.Parse(record.UserA)
	if err != nil {
		return domain.Conversation{}, err
	}
	userB, err := uuid.Parse(record.UserB)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:             id,
		UserA:          userA,
		UserB:          userB,
		LastActivityAt: time.Unix(0, record.LastActivityAt).UTC(),
		CreatedAt:      time.Unix(0, record.CreatedAt).UTC(),
	}, nil
}
