package runtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"chat-direct/contract"
	"chat-direct/domain/event"
	"chat-direct/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Dispatcher decodes inbound envelopes, validates the payload and routes
// the command to the right component. Failures never close the connection;
// they come back to the caller as an error event on their own sink.
type Dispatcher struct {
	log       *slog.Logger
	validate  *validator.Validate
	router    *DeliveryRouter
	lifecycle *MessageLifecycle
	registry  contract.IRegistry
}

func NewDispatcher(log *slog.Logger, router *DeliveryRouter, lifecycle *MessageLifecycle, registry contract.IRegistry) *Dispatcher {
	return &Dispatcher{
		log:       log,
		validate:  validator.New(),
		router:    router,
		lifecycle: lifecycle,
		registry:  registry,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, userID uuid.UUID, raw []byte) {
	if err := d.dispatch(ctx, userID, raw); err != nil {
		d.reportError(ctx, userID, err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, userID uuid.UUID, raw []byte) error {
	var envelope event.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: malformed envelope", errors.ErrValidation)
	}

	switch envelope.Event {
	case event.SendMessageType:
		var cmd event.SendMessage
		if err := d.decode(envelope.Data, &cmd); err != nil {
			return err
		}
		return d.router.Send(ctx, userID, cmd)

	case event.MarkAsReadType:
		var cmd event.MarkAsRead
		if err := d.decode(envelope.Data, &cmd); err != nil {
			return err
		}
		switch {
		case cmd.MessageID != nil && cmd.ConversationID == nil:
			return d.router.MarkAsReadMessage(ctx, userID, *cmd.MessageID)
		case cmd.ConversationID != nil && cmd.MessageID == nil:
			return d.router.MarkAsReadConversation(ctx, userID, *cmd.ConversationID)
		default:
			return fmt.Errorf("%w: exactly one of messageId and conversationId must be set", errors.ErrValidation)
		}

	case event.TypingType:
		var cmd event.Typing
		if err := d.decode(envelope.Data, &cmd); err != nil {
			return err
		}
		d.router.Typing(ctx, userID, cmd)
		return nil

	case event.UpdateMessageType:
		var cmd event.UpdateMessage
		if err := d.decode(envelope.Data, &cmd); err != nil {
			return err
		}
		return d.lifecycle.Edit(ctx, userID, cmd)

	case event.DeleteMessageType:
		var cmd event.DeleteMessage
		if err := d.decode(envelope.Data, &cmd); err != nil {
			return err
		}
		return d.lifecycle.Delete(ctx, userID, cmd)

	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Event)
	}
}

func (d *Dispatcher) decode(data json.RawMessage, cmd any) error {
	if err := json.Unmarshal(data, cmd); err != nil {
		return fmt.Errorf("%w: malformed payload", errors.ErrValidation)
	}
	if err := d.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrValidation, err)
	}
	return nil
}

// reportError sends the failure back to the caller. Expected rejections
// travel with their message; anything else is logged and replaced with a
// generic line so internals never leak to the client.
func (d *Dispatcher) reportError(ctx context.Context, userID uuid.UUID, err error) {
	message := "internal error"
	if isExpected(err) {
		message = err.Error()
	} else {
		d.log.Error("Dispatch failed", "user", userID, "error", err)
	}

	if s, ok := d.registry.Lookup(userID); ok {
		if consumeErr := s.Consume(ctx, event.Error{Message: message}); consumeErr != nil {
			d.log.Warn("Failed to report error to client", "user", userID, "error", consumeErr)
		}
	}
}

func isExpected(err error) bool {
	for _, expected := range []error{
		errors.ErrValidation,
		errors.ErrEmptyContent,
		errors.ErrSelfConversation,
		errors.ErrNotFound,
		errors.ErrUnauthorized,
		errors.ErrTerminalState,
		errors.ErrUnknownEvent,
	} {
		if stderrors.Is(err, expected) {
			return true
		}
	}
	return false
}
