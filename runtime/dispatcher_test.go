package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"chat-direct/domain"
	"chat-direct/domain/event"
	"chat-direct/moderation"
	"chat-direct/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	users      repositories.IUserRepository
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	moderator, err := moderation.NewModerator([]string{"scumbag"}, '*')
	req.NoError(err)

	log := slog.Default()
	registry := NewRegistry()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	queue := make(chan domain.Message, 16)

	router := NewDeliveryRouter(log, users, conversations, messages, registry, &moderator, queue)
	lifecycle := NewMessageLifecycle(log, messages, registry, &moderator, queue)

	return &dispatcherFixture{
		dispatcher: NewDispatcher(log, router, lifecycle, registry),
		registry:   registry,
		users:      users,
	}
}

func envelope(t *testing.T, eventType event.Type, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(event.Envelope{Event: eventType, Data: data})
	require.NoError(t, err)
	return raw
}

func Test_Dispatcher_Routes_SendMessage(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()
	sender, err := f.users.Create("sender@example.com", "hash")
	req.NoError(err)
	receiver, err := f.users.Create("receiver@example.com", "hash")
	req.NoError(err)
	receiverSink := &recordingSink{}
	f.registry.Register(receiver.ID, receiverSink)

	f.dispatcher.Dispatch(ctx, sender.ID,
		envelope(t, event.SendMessageType, event.SendMessage{ReceiverID: receiver.ID, Content: "hi"}))

	req.Equal([]event.Type{event.NewMessageType}, eventTypes(receiverSink.events))
}

func Test_Dispatcher_Reports_Errors_On_Own_Sink(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()
	sender, err := f.users.Create("sender@example.com", "hash")
	req.NoError(err)
	senderSink := &recordingSink{}
	f.registry.Register(sender.ID, senderSink)

	// Sending to an unknown user comes back as an error event
	f.dispatcher.Dispatch(ctx, sender.ID,
		envelope(t, event.SendMessageType, event.SendMessage{ReceiverID: uuid.New(), Content: "anyone?"}))

	req.Equal([]event.Type{event.ErrorType}, eventTypes(senderSink.events))
	req.Contains(senderSink.events[0].(event.Error).Message, "not found")
}

func Test_Dispatcher_Rejects_Malformed_Input(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sink := &recordingSink{}
	f.registry.Register(userID, sink)

	cases := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("{nope")},
		{"unknown event", envelope(t, "launchMissiles", struct{}{})},
		{"missing content", envelope(t, event.SendMessageType, map[string]any{"receiverId": uuid.NewString()})},
		{"markAsRead with no target", envelope(t, event.MarkAsReadType, event.MarkAsRead{})},
		{"markAsRead with both targets", envelope(t, event.MarkAsReadType, event.MarkAsRead{
			MessageID:      lo.ToPtr(uuid.New()),
			ConversationID: lo.ToPtr(uuid.New()),
		})},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.dispatcher.Dispatch(ctx, userID, tc.raw)
			require.Len(t, sink.events, i+1)
			require.Equal(t, event.ErrorType, sink.events[i].EventType())
		})
	}
}

func Test_Dispatcher_MarkAsRead_Single_Message_Is_Quiet(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sink := &recordingSink{}
	f.registry.Register(userID, sink)

	// Reading an unknown message is not an error
	f.dispatcher.Dispatch(ctx, userID,
		envelope(t, event.MarkAsReadType, event.MarkAsRead{MessageID: lo.ToPtr(uuid.New())}))

	req.Empty(sink.events)
}

