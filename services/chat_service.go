package services

import (
	"context"
	"fmt"
	"log/slog"

	"chat-direct/contract"
	"chat-direct/domain"
	"chat-direct/errors"
	"chat-direct/repositories"
	"chat-direct/runtime"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	Connect(ctx context.Context, userID uuid.UUID, sink contract.EventSink)
	Disconnect(ctx context.Context, userID uuid.UUID, sink contract.EventSink)
	Handle(ctx context.Context, userID uuid.UUID, raw []byte)
	Conversations(userID uuid.UUID) ([]domain.ConversationView, error)
	Messages(userID, conversationID uuid.UUID, cursor *string) ([]domain.View, *string, error)
	Search(ctx context.Context, userID, conversationID uuid.UUID, query string) ([]domain.View, error)
	History(userID, messageID uuid.UUID) (domain.HistoryView, error)
}

// ChatService ties the routing core together behind one facade the
// transports call into. It owns the connect/disconnect choreography:
// register, presence, then the delivery sweep for whatever piled up
// while the user was away.
type ChatService struct {
	log           *slog.Logger
	registry      contract.IRegistry
	presence      *runtime.PresenceTracker
	router        *runtime.DeliveryRouter
	lifecycle     *runtime.MessageLifecycle
	dispatcher    *runtime.Dispatcher
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	search        repositories.ISearchRepository
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	presence *runtime.PresenceTracker,
	router *runtime.DeliveryRouter,
	lifecycle *runtime.MessageLifecycle,
	dispatcher *runtime.Dispatcher,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	search repositories.ISearchRepository,
) IChatService {
	return &ChatService{
		log:           log,
		registry:      registry,
		presence:      presence,
		router:        router,
		lifecycle:     lifecycle,
		dispatcher:    dispatcher,
		conversations: conversations,
		messages:      messages,
		search:        search,
	}
}

func (s *ChatService) Connect(ctx context.Context, userID uuid.UUID, sink contract.EventSink) {
	s.registry.Register(userID, sink)
	s.presence.Connected(ctx, userID)
	if err := s.router.SweepUndelivered(ctx, userID); err != nil {
		s.log.Error("Delivery sweep failed", "user", userID, "error", err)
	}
}

// Disconnect is sink-scoped: when a newer connection already replaced
// this one, the registry keeps the replacement and the user stays online.
func (s *ChatService) Disconnect(ctx context.Context, userID uuid.UUID, sink contract.EventSink) {
	s.registry.Unregister(userID, sink)
	if _, stillConnected := s.registry.Lookup(userID); !stillConnected {
		s.presence.Disconnected(ctx, userID)
	}
}

func (s *ChatService) Handle(ctx context.Context, userID uuid.UUID, raw []byte) {
	s.dispatcher.Dispatch(ctx, userID, raw)
}

func (s *ChatService) Conversations(userID uuid.UUID) ([]domain.ConversationView, error) {
	conversations, err := s.conversations.ListForUser(userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(conversations, func(conversation domain.Conversation, _ int) domain.ConversationView {
		return conversation.View()
	}), nil
}

// Messages pages through a conversation's timeline, newest first,
// restricted to its two participants.
func (s *ChatService) Messages(userID, conversationID uuid.UUID, cursor *string) ([]domain.View, *string, error) {
	if err := s.requireParticipant(userID, conversationID); err != nil {
		return nil, nil, err
	}
	messages, next, err := s.messages.ListByConversation(conversationID, cursor)
	if err != nil {
		return nil, nil, err
	}
	return toViews(messages), next, nil
}

// Search runs a full-text query scoped to one conversation. Hits are
// hydrated from the message store so results reflect the current content,
// including edits the index has not caught up with.
func (s *ChatService) Search(ctx context.Context, userID, conversationID uuid.UUID, query string) ([]domain.View, error) {
	if err := s.requireParticipant(userID, conversationID); err != nil {
		return nil, err
	}
	ids, err := s.search.Search(ctx, conversationID, query)
	if err != nil {
		return nil, err
	}

	var views []domain.View
	for _, id := range ids {
		message, err := s.messages.GetByID(id)
		if err != nil {
			s.log.Warn("Search hit without backing message", "message", id, "error", err)
			continue
		}
		if message.IsDeleted() {
			continue
		}
		views = append(views, message.View())
	}
	return views, nil
}

func (s *ChatService) History(userID, messageID uuid.UUID) (domain.HistoryView, error) {
	return s.lifecycle.GetHistory(userID, messageID)
}

func (s *ChatService) requireParticipant(userID, conversationID uuid.UUID) error {
	conversation, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return err
	}
	if !conversation.Has(userID) {
		return fmt.Errorf("%w: not a participant of %s", errors.ErrUnauthorized, conversationID)
	}
	return nil
}

func toViews(messages []domain.Message) []domain.View {
	return lo.Map(messages, func(message domain.Message, _ int) domain.View {
		return message.View()
	})
}
