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

	"github.com/google/uuid"
)

// MessageLifecycle handles everything that happens to a message after it
// was sent: edits, deletion and the full-history read. Only the sender may
// mutate; both participants may read the history.
type MessageLifecycle struct {
	log        *slog.Logger
	messages   repositories.IMessageRepository
	registry   contract.IRegistry
	moderator  *moderation.Moderator
	indexQueue chan<- domain.Message
}

func NewMessageLifecycle(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	registry contract.IRegistry,
	moderator *moderation.Moderator,
	indexQueue chan<- domain.Message,
) *MessageLifecycle {
	return &MessageLifecycle{
		log:        log,
		messages:   messages,
		registry:   registry,
		moderator:  moderator,
		indexQueue: indexQueue,
	}
}

// Edit replaces the visible content, keeping the previous content in the
// history. Edited content goes through the same moderation as new
// messages. Deleted messages cannot be edited.
func (l *MessageLifecycle) Edit(ctx context.Context, editorID uuid.UUID, cmd event.UpdateMessage) error {
	trimmed := strings.TrimSpace(cmd.Content)
	if trimmed == "" {
		return errors.ErrEmptyContent
	}

	content, found := l.moderator.Censor(trimmed)
	if len(found) > 0 {
		l.log.Warn("Censored edited content", "message", cmd.MessageID, "words", len(found))
	}

	// Guard and transition inside the repository transaction, so the edit
	// lands on the current row even while receipts race it.
	message, err := l.messages.Mutate(cmd.MessageID, func(m *domain.Message) error {
		if m.SenderID != editorID {
			return fmt.Errorf("%w: only the sender may edit", errors.ErrUnauthorized)
		}
		return m.ApplyEdit(content, time.Now().UTC())
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			l.log.Warn("Edit attempt by non-sender", "message", cmd.MessageID, "user", editorID)
		}
		return err
	}

	select {
	case l.indexQueue <- message:
	default:
		l.log.Warn("Index queue full, stale content stays indexed", "message", message.ID)
	}

	l.notifyParticipants(ctx, message, event.MessageUpdated{Message: message.View()})
	return nil
}

// Delete tombstones the message: the visible content becomes the
// placeholder while the original stays on disk for history reads.
// Deleting an already-deleted message changes nothing and notifies no one.
func (l *MessageLifecycle) Delete(ctx context.Context, deleterID uuid.UUID, cmd event.DeleteMessage) error {
	var deleted bool
	message, err := l.messages.Mutate(cmd.MessageID, func(m *domain.Message) error {
		if m.SenderID != deleterID {
			return fmt.Errorf("%w: only the sender may delete", errors.ErrUnauthorized)
		}
		deleted = m.ApplyDelete(time.Now().UTC())
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			l.log.Warn("Delete attempt by non-sender", "message", cmd.MessageID, "user", deleterID)
		}
		return err
	}
	if !deleted {
		return nil
	}

	l.notifyParticipants(ctx, message, event.MessageDeleted{Message: message.View()})
	return nil
}

// GetHistory returns the unsanitized record of a message, original
// content and edit trail included. Restricted to the two participants.
func (l *MessageLifecycle) GetHistory(requesterID, messageID uuid.UUID) (domain.HistoryView, error) {
	message, err := l.messages.GetByID(messageID)
	if err != nil {
		return domain.HistoryView{}, err
	}
	if message.SenderID != requesterID && message.ReceiverID != requesterID {
		l.log.Warn("History request by non-participant", "message", messageID, "user", requesterID)
		return domain.HistoryView{}, fmt.Errorf("%w: not a participant", errors.ErrUnauthorized)
	}
	return message.HistoryView(), nil
}

func (l *MessageLifecycle) notifyParticipants(ctx context.Context, message domain.Message, e event.Outbound) {
	for _, userID := range []uuid.UUID{message.SenderID, message.ReceiverID} {
		if s, ok := l.registry.Lookup(userID); ok {
			if err := s.Consume(ctx, e); err != nil {
				l.log.Warn("Failed to notify participant", "message", message.ID, "user", userID, "error", err)
			}
		}
	}
}
