// File path: internal/data/orchestrator/options.go
package orchestrator

import (
	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

type Option func(*options)

type options struct {
	guidelines vector.Store
	records    vector.Store
	cache      cache.EmbeddingCache
	lexical    bool
}

// WithVectorStores injects the guideline and record collections.
func WithVectorStores(guidelines, records vector.Store) Option {
	return func(o *options) {
		o.guidelines = guidelines
		o.records = records
	}
}

// WithEmbeddingCache injects the query embedding cache.
func WithEmbeddingCache(c cache.EmbeddingCache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithLexicalSearch forces the in-memory searchers even when ChromaDB is configured.
func WithLexicalSearch() Option {
	return func(o *options) {
		o.lexical = true
	}
}
