package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-direct/contract"
	"chat-direct/domain"
	"chat-direct/domain/event"
	"chat-direct/errors"
	"chat-direct/moderation"
	"chat-direct/repositories"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// DeliveryRouter carries a message from its sender to its receiver:
// moderation, persistence, routing to the receiver's live sink when
// there is one, and the delivery/read receipts flowing back.
type DeliveryRouter struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	registry      contract.IRegistry
	moderator     *moderation.Moderator
	indexQueue    chan<- domain.Message
}

func NewDeliveryRouter(
	log *slog.Logger,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	registry contract.IRegistry,
	moderator *moderation.Moderator,
	indexQueue chan<- domain.Message,
) *DeliveryRouter {
	return &DeliveryRouter{
		log:           log,
		users:         users,
		conversations: conversations,
		messages:      messages,
		registry:      registry,
		moderator:     moderator,
		indexQueue:    indexQueue,
	}
}

// Send persists and routes one message. The sender always gets the echo
// with the persisted state; the receiver gets it only while connected,
// in which case the delivered receipt follows immediately. An offline
// receiver picks the message up through SweepUndelivered on reconnect.
func (r *DeliveryRouter) Send(ctx context.Context, senderID uuid.UUID, cmd event.SendMessage) error {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return errors.ErrEmptyContent
	}
	if senderID == cmd.ReceiverID {
		return errors.ErrSelfConversation
	}
	if _, err := r.users.GetByID(cmd.ReceiverID); err != nil {
		return err
	}

	content = r.censor(content, senderID)

	now := time.Now().UTC()
	conversation, created, err := r.conversations.Resolve(senderID, cmd.ReceiverID, now)
	if err != nil {
		return err
	}
	if created {
		r.log.Info("Conversation created", "conversation", conversation.ID)
	}

	message := domain.NewMessage(conversation.ID, senderID, cmd.ReceiverID, content, now)
	if err := r.messages.Create(message); err != nil {
		return err
	}
	if err := r.conversations.Touch(conversation.ID, now); err != nil {
		r.log.Warn("Failed to bump conversation activity", "conversation", conversation.ID, "error", err)
	}
	r.enqueueIndex(message)

	receiverSink, online := r.registry.Lookup(cmd.ReceiverID)
	if online {
		message, err = r.messages.Mutate(message.ID, func(m *domain.Message) error {
			m.MarkDelivered()
			return nil
		})
		if err != nil {
			return err
		}
		if err := receiverSink.Consume(ctx, event.NewMessage{Message: message.View()}); err != nil {
			r.log.Warn("Failed to deliver message", "message", message.ID, "error", err)
		}
	}

	if senderSink, ok := r.registry.Lookup(senderID); ok {
		if err := senderSink.Consume(ctx, event.NewMessage{Message: message.View()}); err != nil {
			r.log.Warn("Failed to echo message", "message", message.ID, "error", err)
		}
		if online {
			r.notifyDelivered(ctx, senderSink, message)
		}
	}
	return nil
}

// MarkAsReadConversation reads everything addressed to readerID in the
// conversation. Calling it with nothing unread is a no-op, so clients can
// fire it on every focus change.
func (r *DeliveryRouter) MarkAsReadConversation(ctx context.Context, readerID, conversationID uuid.UUID) error {
	conversation, err := r.conversations.GetByID(conversationID)
	if err != nil {
		return err
	}
	if !conversation.Has(readerID) {
		return fmt.Errorf("%w: not a participant of %s", errors.ErrUnauthorized, conversationID)
	}

	unread, err := r.messages.ListUnread(conversationID, readerID)
	if err != nil {
		return err
	}
	for _, message := range unread {
		if err := r.markRead(ctx, message.ID); err != nil {
			return err
		}
	}
	return nil
}

// MarkAsReadMessage reads a single message. Unknown ids, messages
// addressed to someone else and already-read messages are all quiet
// no-ops: a read receipt is advisory, not a command worth failing.
func (r *DeliveryRouter) MarkAsReadMessage(ctx context.Context, readerID, messageID uuid.UUID) error {
	message, err := r.messages.GetByID(messageID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if message.ReceiverID != readerID || message.Read {
		return nil
	}
	return r.markRead(ctx, message.ID)
}

// markRead flips the flag inside the repository's transaction, so a read
// receipt racing a concurrent edit lands on the edited row instead of
// overwriting it with a stale copy.
func (r *DeliveryRouter) markRead(ctx context.Context, messageID uuid.UUID) error {
	message, err := r.messages.Mutate(messageID, func(m *domain.Message) error {
		m.MarkRead()
		return nil
	})
	if err != nil {
		return err
	}
	if senderSink, ok := r.registry.Lookup(message.SenderID); ok {
		receipt := event.MessageRead{MessageID: message.ID, ConversationID: message.ConversationID}
		if err := senderSink.Consume(ctx, receipt); err != nil {
			r.log.Warn("Failed to send read receipt", "message", message.ID, "error", err)
		}
	}
	return nil
}

// Typing forwards an ephemeral typing notice to the other participant.
// Nothing is persisted; a non-participant's notice is dropped with a log
// line instead of an error, since there is nothing for the caller to fix
// mid-keystroke.
func (r *DeliveryRouter) Typing(ctx context.Context, typistID uuid.UUID, cmd event.Typing) {
	conversation, err := r.conversations.GetByID(cmd.ConversationID)
	if err != nil {
		r.log.Warn("Typing notice for unknown conversation", "conversation", cmd.ConversationID, "error", err)
		return
	}
	if !conversation.Has(typistID) {
		r.log.Warn("Typing notice from non-participant", "conversation", cmd.ConversationID, "user", typistID)
		return
	}
	peerID, _ := conversation.Other(typistID)
	if peerSink, ok := r.registry.Lookup(peerID); ok {
		notice := event.TypingNotice{UserID: typistID, ConversationID: cmd.ConversationID}
		if err := peerSink.Consume(ctx, notice); err != nil {
			r.log.Warn("Failed to forward typing notice", "conversation", cmd.ConversationID, "error", err)
		}
	}
}

// SweepUndelivered runs when a user connects: every message that was
// waiting for them is flagged delivered and each sender still online gets
// the receipt. The messages themselves reach the client through history,
// not through a replay.
func (r *DeliveryRouter) SweepUndelivered(ctx context.Context, userID uuid.UUID) error {
	pending, err := r.messages.ListUndelivered(userID)
	if err != nil {
		return err
	}
	for _, message := range pending {
		delivered, err := r.messages.Mutate(message.ID, func(m *domain.Message) error {
			m.MarkDelivered()
			return nil
		})
		if err != nil {
			return err
		}
		if senderSink, ok := r.registry.Lookup(delivered.SenderID); ok {
			r.notifyDelivered(ctx, senderSink, delivered)
		}
	}
	if len(pending) > 0 {
		r.log.Info("Delivery sweep completed", "user", userID, "messages", len(pending))
	}
	return nil
}

func (r *DeliveryRouter) notifyDelivered(ctx context.Context, s contract.EventSink, message domain.Message) {
	receipt := event.MessageDelivered{MessageID: message.ID, ConversationID: message.ConversationID}
	if err := s.Consume(ctx, receipt); err != nil {
		r.log.Warn("Failed to send delivery receipt", "message", message.ID, "error", err)
	}
}

// censor masks forbidden words and logs the hit with the detected
// language so moderators can audit wordlist coverage.
func (r *DeliveryRouter) censor(content string, senderID uuid.UUID) string {
	censored, found := r.moderator.Censor(content)
	if len(found) > 0 {
		info := whatlanggo.Detect(content)
		r.log.Warn("Censored message content",
			"sender", senderID,
			"words", len(found),
			"language", info.Lang.String(),
		)
	}
	return censored
}

func (r *DeliveryRouter) enqueueIndex(message domain.Message) {
	select {
	case r.indexQueue <- message:
	default:
		r.log.Warn("Index queue full, dropping message", "message", message.ID)
	}
}
