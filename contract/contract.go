//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-direct/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is a per-user delivery target for real-time events.
// Consume must not block the caller beyond the sink's own budget;
// a sink that cannot keep up drops and reports, it never stalls routing.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
	Close()
}

// IRegistry maps a user identity to its single live sink.
// It is the only shared mutable state in the core; implementations
// serialize every mutation against concurrent register/unregister/lookup.
type IRegistry interface {
	Register(userID uuid.UUID, sink EventSink)
	Unregister(userID uuid.UUID, sink EventSink)
	Lookup(userID uuid.UUID) (EventSink, bool)
	Snapshot() map[uuid.UUID]EventSink
}
