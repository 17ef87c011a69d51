package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-direct/domain"
	"chat-direct/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Message_Create_And_Roundtrip(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	message := domain.NewMessage(uuid.New(), uuid.New(), uuid.New(), "hello there", time.Now().UTC().Truncate(time.Millisecond))

	req.NoError(repository.Create(message))

	fetched, err := repository.GetByID(message.ID)
	req.NoError(err)
	req.Equal(message, fetched)
}

func Test_Message_GetByID_Unknown(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.GetByID(uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Message_Mutate_Reconciles_Indexes(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	conversationID := uuid.New()
	receiverID := uuid.New()
	message := domain.NewMessage(conversationID, uuid.New(), receiverID, "pending", time.Now().UTC())
	req.NoError(repository.Create(message))

	// Given the message shows up as unread and undelivered
	unread, err := repository.ListUnread(conversationID, receiverID)
	req.NoError(err)
	req.Len(unread, 1)
	undelivered, err := repository.ListUndelivered(receiverID)
	req.NoError(err)
	req.Len(undelivered, 1)

	// When the message is read
	_, err = repository.Mutate(message.ID, func(m *domain.Message) error {
		m.MarkRead()
		return nil
	})
	req.NoError(err)

	// Then both indexes are empty
	unread, err = repository.ListUnread(conversationID, receiverID)
	req.NoError(err)
	req.Empty(unread)
	undelivered, err = repository.ListUndelivered(receiverID)
	req.NoError(err)
	req.Empty(undelivered)
}

func Test_Message_Mutate_Unknown(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.Mutate(uuid.New(), func(m *domain.Message) error {
		m.MarkRead()
		return nil
	})
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Message_Mutate_Rolls_Back_On_Error(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	message := domain.NewMessage(uuid.New(), uuid.New(), uuid.New(), "untouched", time.Now().UTC())
	req.NoError(repository.Create(message))

	// When fn rejects the transition, nothing is written
	_, err := repository.Mutate(message.ID, func(m *domain.Message) error {
		m.Content = "half-applied"
		return errors.ErrUnauthorized
	})
	req.ErrorIs(err, errors.ErrUnauthorized)

	stored, err := repository.GetByID(message.ID)
	req.NoError(err)
	req.Equal("untouched", stored.Content)
}

func Test_Message_Edit_History_Roundtrip(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	message := domain.NewMessage(uuid.New(), uuid.New(), uuid.New(), "v1", time.Now().UTC().Truncate(time.Millisecond))
	req.NoError(repository.Create(message))

	for _, revision := range []string{"v2", "v3"} {
		_, err := repository.Mutate(message.ID, func(m *domain.Message) error {
			return m.ApplyEdit(revision, time.Now().UTC().Truncate(time.Millisecond))
		})
		req.NoError(err)
	}

	fetched, err := repository.GetByID(message.ID)
	req.NoError(err)
	req.Equal("v3", fetched.Content)
	req.Equal("v1", fetched.OriginalContent)
	req.Len(fetched.History, 2)
	req.Equal("v1", fetched.History[0].PriorContent)
	req.Equal("v2", fetched.History[1].PriorContent)
}

func Test_Message_Mutate_Read_Receipt_Preserves_Prior_Edit(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	message := domain.NewMessage(uuid.New(), uuid.New(), uuid.New(), "a", time.Now().UTC())
	req.NoError(repository.Create(message))

	// Given an edit committed after the receipt handler last saw the row
	_, err := repository.Mutate(message.ID, func(m *domain.Message) error {
		return m.ApplyEdit("b", time.Now().UTC())
	})
	req.NoError(err)

	// When the read receipt lands, it transitions the current row rather
	// than rewriting a stale copy
	_, err = repository.Mutate(message.ID, func(m *domain.Message) error {
		m.MarkRead()
		return nil
	})
	req.NoError(err)

	// Then the edit, its history entry and the read flag all survive
	stored, err := repository.GetByID(message.ID)
	req.NoError(err)
	req.Equal("b", stored.Content)
	req.Len(stored.History, 1)
	req.Equal("a", stored.History[0].PriorContent)
	req.True(stored.Read)
}

func Test_Message_ListByConversation_Pagination(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)
	conversationID := uuid.New()
	senderID := uuid.New()
	receiverID := uuid.New()
	at := time.Now().UTC()

	var created []domain.Message
	for i := 0; i < 5; i++ {
		message := domain.NewMessage(conversationID, senderID, receiverID,
			fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.Create(message))
		created = append(created, message)
	}

	// First page: newest two messages
	page, cursor, err := repository.ListByConversation(conversationID, nil)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal(created[4].ID, page[0].ID)
	req.Equal(created[3].ID, page[1].ID)
	req.NotNil(cursor)

	// Second page resumes right after the cursor
	page, cursor, err = repository.ListByConversation(conversationID, cursor)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal(created[2].ID, page[0].ID)
	req.Equal(created[1].ID, page[1].ID)

	// Last page holds the oldest message
	page, cursor, err = repository.ListByConversation(conversationID, cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(created[0].ID, page[0].ID)

	// Paging past the end yields nothing and a nil cursor
	page, cursor, err = repository.ListByConversation(conversationID, cursor)
	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}

func Test_Message_ListByConversation_Empty(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	page, cursor, err := repository.ListByConversation(uuid.New(), nil)
	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}

func Test_Message_ListUndelivered_Scoped_To_Receiver(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	conversationID := uuid.New()
	receiverID := uuid.New()
	otherID := uuid.New()
	at := time.Now().UTC()

	forReceiver := domain.NewMessage(conversationID, otherID, receiverID, "for you", at)
	forOther := domain.NewMessage(conversationID, receiverID, otherID, "for them", at)
	req.NoError(repository.Create(forReceiver))
	req.NoError(repository.Create(forOther))

	pending, err := repository.ListUndelivered(receiverID)
	req.NoError(err)
	req.Equal([]uuid.UUID{forReceiver.ID}, lo.Map(pending, func(m domain.Message, _ int) uuid.UUID { return m.ID }))
}
