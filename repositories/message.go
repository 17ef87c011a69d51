package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-direct/domain"
	"chat-direct/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Create(message domain.Message) error
	GetByID(id uuid.UUID) (domain.Message, error)
	Mutate(id uuid.UUID, fn func(message *domain.Message) error) (domain.Message, error)
	ListByConversation(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error)
	ListUnread(conversationID, receiverID uuid.UUID) ([]domain.Message, error)
	ListUndelivered(receiverID uuid.UUID) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// messageRecord is the on-disk shape of a message, including the backup
// fields that the sanitized views strip.
type messageRecord struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversation_id"`
	SenderID        string            `json:"sender_id"`
	ReceiverID      string            `json:"receiver_id"`
	Content         string            `json:"content"`
	OriginalContent string            `json:"original_content"`
	History         []editEntryRecord `json:"history,omitempty"`
	State           string            `json:"state"`
	Delivered       bool              `json:"delivered"`
	Read            bool              `json:"read"`
	CreatedAt       int64             `json:"created_at"`
	EditedAt        *int64            `json:"edited_at,omitempty"`
	DeletedAt       *int64            `json:"deleted_at,omitempty"`
}

type editEntryRecord struct {
	PriorContent string `json:"prior_content"`
	EditedAt     int64  `json:"edited_at"`
}

func messageKey(id uuid.UUID) []byte { return []byte("msg:id:" + id.String()) }

// timelineKey orders a conversation's messages chronologically.
// The 19-digit zero padding keeps lexicographic order aligned with time;
// the trailing UUID disconnects collisions at the same nanosecond.
func timelineKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:conv:%s:%019d:%s",
		message.ConversationID, message.CreatedAt.UnixNano(), message.ID))
}

func unreadKey(conversationID, receiverID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:unread:%s:%s:%s", conversationID, receiverID, messageID))
}

func undeliveredKey(receiverID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:undelivered:%s:%s", receiverID, messageID))
}

// Create persists a new message and its secondary index entries (timeline,
// unread, undelivered) in one transaction.
func (m *MessageRepository) Create(message domain.Message) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return update(m.db, func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), data); err != nil {
			return err
		}
		if err := txn.Set(timelineKey(message), []byte(message.ID.String())); err != nil {
			return err
		}
		if !message.Read {
			if err := txn.Set(unreadKey(message.ConversationID, message.ReceiverID, message.ID), nil); err != nil {
				return err
			}
		}
		if !message.Delivered {
			if err := txn.Set(undeliveredKey(message.ReceiverID, message.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MessageRepository) GetByID(id uuid.UUID) (domain.Message, error) {
	var record messageRecord
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(record)
}

// Mutate loads the message, applies fn and persists the result, all in
// one transaction, reconciling the unread/undelivered indexes with the
// new flags. The in-transaction read is what makes concurrent mutations
// safe: two commits touching the same row conflict, the loser reruns fn
// against the winner's state, and a racing read receipt can never erase
// a committed edit. Returns the message as persisted.
func (m *MessageRepository) Mutate(id uuid.UUID, fn func(message *domain.Message) error) (domain.Message, error) {
	var mutated domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		var record messageRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		message, err := toMessage(record)
		if err != nil {
			return err
		}
		if err := fn(&message); err != nil {
			return err
		}

		data, err := json.Marshal(fromMessage(message))
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		if err := txn.Set(messageKey(id), data); err != nil {
			return err
		}
		if message.Read {
			if err := txn.Delete(unreadKey(message.ConversationID, message.ReceiverID, message.ID)); err != nil {
				return err
			}
		}
		if message.Delivered {
			if err := txn.Delete(undeliveredKey(message.ReceiverID, message.ID)); err != nil {
				return err
			}
		}
		mutated = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return mutated, nil
}

// ListByConversation pages through a conversation newest first, following
// the cursor scheme of the timeline keys. The returned cursor points at the
// last visited key suffix; passing it back resumes right after it.
func (m *MessageRepository) ListByConversation(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error) {
	var ids []uuid.UUID
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:conv:%s:", conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(ids) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(val []byte) error {
				id, err := uuid.Parse(string(val))
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages, err := m.loadAll(ids)
	if err != nil {
		return nil, nil, err
	}
	// No rows visited means the page is past the end; a nil cursor tells
	// the client to stop paging.
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, lo.ToPtr(lastKey), nil
}

// ListUnread returns every message in the conversation addressed to
// receiverID that has not been read yet.
func (m *MessageRepository) ListUnread(conversationID, receiverID uuid.UUID) ([]domain.Message, error) {
	prefix := fmt.Sprintf("idx:unread:%s:%s:", conversationID, receiverID)
	ids, err := m.scanIndex(prefix)
	if err != nil {
		return nil, err
	}
	return m.loadAll(ids)
}

// ListUndelivered returns every message addressed to receiverID that has
// not reached a live channel yet. Feeds the reconnect delivery sweep.
func (m *MessageRepository) ListUndelivered(receiverID uuid.UUID) ([]domain.Message, error) {
	prefix := fmt.Sprintf("idx:undelivered:%s:", receiverID)
	ids, err := m.scanIndex(prefix)
	if err != nil {
		return nil, err
	}
	return m.loadAll(ids)
}

// scanIndex collects the message ids encoded in the key suffixes of an
// index prefix. Index entries carry no value; the id is the last segment.
func (m *MessageRepository) scanIndex(prefixStr string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rawID := it.Item().Key()[len(prefixStr):]
			id, err := uuid.Parse(string(rawID))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *MessageRepository) loadAll(ids []uuid.UUID) ([]domain.Message, error) {
	var messages []domain.Message
	for _, id := range ids {
		message, err := m.GetByID(id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func fromMessage(message domain.Message) messageRecord {
	return messageRecord{
		ID:              message.ID.String(),
		ConversationID:  message.ConversationID.String(),
		SenderID:        message.SenderID.String(),
		ReceiverID:      message.ReceiverID.String(),
		Content:         message.Content,
		OriginalContent: message.OriginalContent,
		History:         historyRecords(message.History),
		State:           string(message.State),
		Delivered:       message.Delivered,
		Read:            message.Read,
		CreatedAt:       message.CreatedAt.UnixNano(),
		EditedAt:        nanosOrNil(message.EditedAt),
		DeletedAt:       nanosOrNil(message.DeletedAt),
	}
}

func toMessage(record messageRecord) (domain.Message, error) {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conversationID, err := uuid.Parse(record.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	senderID, err := uuid.Parse(record.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	receiverID, err := uuid.Parse(record.ReceiverID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:              id,
		ConversationID:  conversationID,
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         record.Content,
		OriginalContent: record.OriginalContent,
		History:         historyEntries(record.History),
		State:           domain.MessageState(record.State),
		Delivered:       record.Delivered,
		Read:            record.Read,
		CreatedAt:       time.Unix(0, record.CreatedAt).UTC(),
		EditedAt:        timeOrNil(record.EditedAt),
		DeletedAt:       timeOrNil(record.DeletedAt),
	}, nil
}

// A message without edits keeps a nil history on both sides of the
// conversion.
func historyRecords(entries []domain.EditEntry) []editEntryRecord {
	if len(entries) == 0 {
		return nil
	}
	return lo.Map(entries, func(entry domain.EditEntry, _ int) editEntryRecord {
		return editEntryRecord{PriorContent: entry.PriorContent, EditedAt: entry.EditedAt.UnixNano()}
	})
}

func historyEntries(entries []editEntryRecord) []domain.EditEntry {
	if len(entries) == 0 {
		return nil
	}
	return lo.Map(entries, func(entry editEntryRecord, _ int) domain.EditEntry {
		return domain.EditEntry{PriorContent: entry.PriorContent, EditedAt: time.Unix(0, entry.EditedAt).UTC()}
	})
}

func nanosOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	return lo.ToPtr(t.UnixNano())
}

func timeOrNil(nanos *int64) *time.Time {
	if nanos == nil {
		return nil
	}
	return lo.ToPtr(time.Unix(0, *nanos).UTC())
}
