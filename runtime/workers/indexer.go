package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-direct/domain"
	"chat-direct/repositories"
)

// IndexerWorker drains the index queue and writes the search index in
// batches. Batching amortizes the index writer's segment churn: a flush
// happens when the batch is full or when the interval elapses, whichever
// comes first. On shutdown the remaining batch is flushed before exit.
type IndexerWorker struct {
	log           *slog.Logger
	search        repositories.ISearchRepository
	queue         <-chan domain.Message
	batchSize     int
	flushInterval time.Duration
}

func NewIndexerWorker(log *slog.Logger, search repositories.ISearchRepository,
	queue <-chan domain.Message, batchSize int, flushInterval time.Duration) *IndexerWorker {
	return &IndexerWorker{
		log:           log,
		search:        search,
		queue:         queue,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (w *IndexerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Message, 0, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.flush(batch)
			return nil
		case message := <-w.queue:
			batch = append(batch, message)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush indexes the batch. An indexing failure loses search visibility,
// not data, so it is logged and the worker keeps going.
func (w *IndexerWorker) flush(batch []domain.Message) {
	if len(batch) == 0 {
		return
	}
	if err := w.search.Index(batch...); err != nil {
		w.log.Error("Failed to index batch", "messages", len(batch), "error", err)
		return
	}
	w.log.Debug("Indexed batch", "messages", len(batch))
}
