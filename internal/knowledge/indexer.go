// File path: internal/knowledge/indexer.go
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/schema"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

const defaultBatch = 64

// Indexer embeds documents and upserts them into a vector collection.
type Indexer struct {
	embedder Embedder
	batch    int
}

func NewIndexer(embedder Embedder, batch int) *Indexer {
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Indexer{embedder: embedder, batch: batch}
}

// Index writes docs to store in batches and returns the number upserted.
func (ix *Indexer) Index(ctx context.Context, store vector.Store, docs []schema.Document) (int, error) {
	if store == nil {
		return 0, vector.ErrUnavailable
	}
	if ix.embedder == nil {
		return 0, errors.New("knowledge: no embedder configured")
	}
	if err := store.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	logger := common.Logger()
	written := 0
	for start := 0; start < len(docs); start += ix.batch {
		end := start + ix.batch
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		texts := make([]string, len(batch))
		recs := make([]vector.Record, len(batch))
		for i, doc := range batch {
			texts[i] = doc.PageContent
			meta := make(map[string]interface{}, len(doc.Metadata))
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			recs[i] = vector.Record{ID: docID(doc, start+i), Content: doc.PageContent, Metadata: meta}
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if err := store.Upsert(ctx, recs, vecs); err != nil {
			return written, fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		written += len(batch)
		logger.Debug().Str("collection", store.Collection()).Int("written", written).Int("total", len(docs)).Msg("knowledge: indexed batch")
	}
	logger.Info().Str("collection", store.Collection()).Int("documents", written).Msg("knowledge: indexing complete")
	return written, nil
}
