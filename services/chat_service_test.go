package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-direct/domain"
	"chat-direct/domain/event"
	"chat-direct/errors"
	"chat-direct/moderation"
	"chat-direct/repositories"
	"chat-direct/runtime"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
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

type chatFixture struct {
	service       IChatService
	registry      *runtime.Registry
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	search        repositories.ISearchRepository
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	moderator, err := moderation.NewModerator([]string{"scumbag"}, '*')
	req.NoError(err)

	log := slog.Default()
	registry := runtime.NewRegistry()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	search := repositories.NewSearchRepository(writer, log, 10)
	queue := make(chan domain.Message, 16)

	presence := runtime.NewPresenceTracker(log, users, registry)
	router := runtime.NewDeliveryRouter(log, users, conversations, messages, registry, &moderator, queue)
	lifecycle := runtime.NewMessageLifecycle(log, messages, registry, &moderator, queue)
	dispatcher := runtime.NewDispatcher(log, router, lifecycle, registry)

	return &chatFixture{
		service:       NewChatService(log, registry, presence, router, lifecycle, dispatcher, conversations, messages, search),
		registry:      registry,
		users:         users,
		conversations: conversations,
		messages:      messages,
		search:        search,
	}
}

func (f *chatFixture) newUser(t *testing.T, email string) uuid.UUID {
	t.Helper()
	user, err := f.users.Create(email, "hash")
	require.NoError(t, err)
	return user.ID
}

func eventTypes(events []event.Outbound) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType())
	}
	return types
}

func Test_ChatService_Connect_Delivers_Backlog_And_Presence(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()
	senderID := f.newUser(t, "sender@example.com")
	receiverID := f.newUser(t, "receiver@example.com")
	senderSink := &recordingSink{}
	f.service.Connect(ctx, senderID, senderSink)

	// Given a message sent while the receiver was offline
	f.service.Handle(ctx, senderID, []byte(`{"event":"sendMessage","data":{"receiverId":"`+receiverID.String()+`","content":"are you there?"}}`))
	req.Equal([]event.Type{event.NewMessageType}, eventTypes(senderSink.events))

	// When the receiver connects
	receiverSink := &recordingSink{}
	f.service.Connect(ctx, receiverID, receiverSink)

	// Then the sender sees the presence change and the delivery receipt
	req.Equal([]event.Type{
		event.NewMessageType,
		event.UserStatusChangeType,
		event.MessageDeliveredType,
	}, eventTypes(senderSink.events))
	statusChange := senderSink.events[1].(event.UserStatusChange)
	req.Equal(receiverID, statusChange.UserID)
	req.Equal(domain.StatusOnline, statusChange.Status)

	// And the receiver's stored presence is online
	receiver, err := f.users.GetByID(receiverID)
	req.NoError(err)
	req.Equal(domain.StatusOnline, receiver.Status)
}

func Test_ChatService_Disconnect_Is_Sink_Scoped(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()
	userID := f.newUser(t, "user@example.com")
	first := &recordingSink{}
	second := &recordingSink{}

	// Given a reconnect that superseded the first connection
	f.service.Connect(ctx, userID, first)
	f.service.Connect(ctx, userID, second)
	req.True(first.closed)

	// When the stale connection's cleanup fires
	f.service.Disconnect(ctx, userID, first)

	// Then the user is still online through the second connection
	user, err := f.users.GetByID(userID)
	req.NoError(err)
	req.Equal(domain.StatusOnline, user.Status)

	// And dropping the live connection takes them offline
	f.service.Disconnect(ctx, userID, second)
	user, err = f.users.GetByID(userID)
	req.NoError(err)
	req.Equal(domain.StatusOffline, user.Status)
}

func Test_ChatService_Messages_Requires_Participant(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()
	senderID := f.newUser(t, "sender@example.com")
	receiverID := f.newUser(t, "receiver@example.com")
	strangerID := f.newUser(t, "stranger@example.com")
	senderSink := &recordingSink{}
	f.service.Connect(ctx, senderID, senderSink)
	f.service.Handle(ctx, senderID, []byte(`{"event":"sendMessage","data":{"receiverId":"`+receiverID.String()+`","content":"hello"}}`))

	conversations, err := f.service.Conversations(senderID)
	req.NoError(err)
	req.Len(conversations, 1)
	conversationID := conversations[0].ID

	// Both participants can read
	views, _, err := f.service.Messages(receiverID, conversationID, nil)
	req.NoError(err)
	req.Len(views, 1)
	req.Equal("hello", views[0].Content)

	// A stranger cannot
	_, _, err = f.service.Messages(strangerID, conversationID, nil)
	req.ErrorIs(err, errors.ErrUnauthorized)

	// Unknown conversations stay unknown
	_, _, err = f.service.Messages(senderID, uuid.New(), nil)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_ChatService_Search_Hydrates_And_Filters(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()
	senderID := f.newUser(t, "sender@example.com")
	receiverID := f.newUser(t, "receiver@example.com")
	strangerID := f.newUser(t, "stranger@example.com")

	conversation, _, err := f.conversations.Resolve(senderID, receiverID, time.Now().UTC())
	req.NoError(err)

	kept := domain.NewMessage(conversation.ID, senderID, receiverID, "quarterly budget numbers", time.Now().UTC())
	deleted := domain.NewMessage(conversation.ID, senderID, receiverID, "budget draft, ignore", time.Now().UTC())
	req.NoError(f.messages.Create(kept))
	req.NoError(f.messages.Create(deleted))
	req.NoError(f.search.Index(kept, deleted))

	// Given one of the indexed messages was deleted afterwards
	_, err = f.messages.Mutate(deleted.ID, func(m *domain.Message) error {
		m.ApplyDelete(time.Now().UTC())
		return nil
	})
	req.NoError(err)

	// When a participant searches
	views, err := f.service.Search(ctx, senderID, conversation.ID, "budget")
	req.NoError(err)

	// Then only the live message comes back, with its current content
	req.Len(views, 1)
	req.Equal(kept.ID, views[0].ID)
	req.Equal("quarterly budget numbers", views[0].Content)

	// And a stranger gets nothing at all
	_, err = f.service.Search(ctx, strangerID, conversation.ID, "budget")
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func Test_ChatService_History_Goes_Through_Lifecycle(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()
	senderID := f.newUser(t, "sender@example.com")
	receiverID := f.newUser(t, "receiver@example.com")
	senderSink := &recordingSink{}
	f.service.Connect(ctx, senderID, senderSink)
	f.service.Handle(ctx, senderID, []byte(`{"event":"sendMessage","data":{"receiverId":"`+receiverID.String()+`","content":"first draft"}}`))

	conversations, err := f.service.Conversations(senderID)
	req.NoError(err)
	views, _, err := f.service.Messages(senderID, conversations[0].ID, nil)
	req.NoError(err)
	messageID := views[0].ID

	f.service.Handle(ctx, senderID, []byte(`{"event":"updateMessage","data":{"messageId":"`+messageID.String()+`","content":"final version"}}`))

	// The sender can pull the full record
	history, err := f.service.History(senderID, messageID)
	req.NoError(err)
	req.Equal("first draft", history.OriginalContent)
	req.Equal("final version", history.Content)
	req.Len(history.History, 1)

	// A third party cannot
	strangerID := f.newUser(t, "stranger@example.com")
	_, err = f.service.History(strangerID, messageID)
	req.ErrorIs(err, errors.ErrUnauthorized)
}
