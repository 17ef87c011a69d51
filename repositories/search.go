package repositories

import (
	"context"
	"log/slog"

	"chat-direct/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type ISearchRepository interface {
	Index(messages ...domain.Message) error
	Search(ctx context.Context, conversationID uuid.UUID, query string) ([]uuid.UUID, error)
}

// SearchRepository maintains a full-text index of message content.
// It stores only ids; hits are hydrated from the message repository so
// search results go through the same sanitization as every other read.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
	limit  int
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger, limit int) *SearchRepository {
	return &SearchRepository{writer: writer, log: log, limit: limit}
}

// Index upserts a batch of messages. Re-indexing an edited message under
// the same document id replaces the stale content.
func (s *SearchRepository) Index(messages ...domain.Message) error {
	batch := bluge.NewBatch()
	for _, message := range messages {
		doc := bluge.NewDocument(message.ID.String()).
			AddField(bluge.NewTextField("content", message.Content)).
			AddField(bluge.NewKeywordField("conversation_id", message.ConversationID.String())).
			AddField(bluge.NewKeywordField("sender_id", message.SenderID.String())).
			AddField(bluge.NewDateTimeField("created_at", message.CreatedAt))
		batch.Update(doc.ID(), doc)
	}
	return s.writer.Batch(batch)
}

// Search returns the ids of messages in the conversation matching the
// query, best score first.
func (s *SearchRepository) Search(ctx context.Context, conversationID uuid.UUID, query string) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content")).
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation_id"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(s.limit, q))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
