package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-direct/domain"
	"chat-direct/repositories"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSearch(t *testing.T) *repositories.SearchRepository {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return repositories.NewSearchRepository(writer, slog.Default(), 10)
}

func Test_Indexer_Flushes_Full_Batch(t *testing.T) {
	req := require.New(t)
	search := newTestSearch(t)
	queue := make(chan domain.Message, 8)
	worker := NewIndexerWorker(slog.Default(), search, queue, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	// When two messages arrive, filling the batch
	conversationID := uuid.New()
	first := domain.NewMessage(conversationID, uuid.New(), uuid.New(), "tax return filed", time.Now().UTC())
	second := domain.NewMessage(conversationID, uuid.New(), uuid.New(), "dinner tonight", time.Now().UTC())
	queue <- first
	queue <- second

	// Then the batch is flushed without waiting for the interval
	req.Eventually(func() bool {
		ids, err := search.Search(context.Background(), conversationID, "tax")
		return err == nil && len(ids) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func Test_Indexer_Flushes_On_Interval(t *testing.T) {
	req := require.New(t)
	search := newTestSearch(t)
	queue := make(chan domain.Message, 8)
	worker := NewIndexerWorker(slog.Default(), search, queue, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	// When a single message arrives, far below the batch size
	conversationID := uuid.New()
	queue <- domain.NewMessage(conversationID, uuid.New(), uuid.New(), "lonely message", time.Now().UTC())

	// Then the interval tick flushes it anyway
	req.Eventually(func() bool {
		ids, err := search.Search(context.Background(), conversationID, "lonely")
		return err == nil && len(ids) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func Test_Indexer_Flushes_Remainder_On_Shutdown(t *testing.T) {
	req := require.New(t)
	search := newTestSearch(t)
	queue := make(chan domain.Message, 8)
	worker := NewIndexerWorker(slog.Default(), search, queue, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	conversationID := uuid.New()
	queue <- domain.NewMessage(conversationID, uuid.New(), uuid.New(), "last words", time.Now().UTC())

	// Give the worker a moment to pull the message into its batch
	time.Sleep(100 * time.Millisecond)

	// When the worker shuts down
	cancel()
	<-done

	// Then the partial batch was flushed on the way out
	ids, err := search.Search(context.Background(), conversationID, "words")
	req.NoError(err)
	req.Len(ids, 1)
}
