// File path: internal/knowledge/search.go
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tmc/langchaingo/schema"

	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/retriever"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

// Passage is one ranked search hit.
type Passage struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Seq      int            `json:"seq"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the passage source label, falling back to its ID.
func (p Passage) Source() string {
	if s, ok := p.Metadata[MetaSource].(string); ok && s != "" {
		return s
	}
	return p.ID
}

// Searcher finds the k passages most similar to query.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Passage, error)
}

type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Rank sorts passages by descending score. Equal scores keep ascending insertion
// sequence, so identical queries always return the same order.
func Rank(passages []Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].Seq < passages[j].Seq
	})
}

// LexicalSearcher serves similarity search from an in-memory TF-IDF index.
type LexicalSearcher struct {
	index *retriever.Retriever
}

func NewLexicalSearcher(docs []schema.Document) *LexicalSearcher {
	indexed := make([]retriever.Doc, 0, len(docs))
	for i, doc := range docs {
		meta := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		if _, ok := doc.Metadata[MetaSeq]; !ok {
			meta[MetaSeq] = strconv.Itoa(i)
		}
		indexed = append(indexed, retriever.Doc{ID: docID(doc, i), Content: doc.PageContent, Metadata: meta})
	}
	return &LexicalSearcher{index: retriever.New(indexed)}
}

func (l *LexicalSearcher) SimilaritySearch(ctx context.Context, query string, k int) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := l.index.Search(query, k, nil)
	out := make([]Passage, 0, len(results))
	for _, res := range results {
		meta := make(map[string]any, len(res.Doc.Metadata))
		for key, v := range res.Doc.Metadata {
			meta[key] = v
		}
		out = append(out, Passage{
			ID:       res.Doc.ID,
			Content:  res.Doc.Content,
			Score:    res.Score,
			Seq:      metaInt(meta[MetaSeq]),
			Metadata: meta,
		})
	}
	Rank(out)
	return out, nil
}

// VectorSearcher embeds the query and searches a vector collection.
type VectorSearcher struct {
	store    vector.Store
	embedder Embedder
	cache    cache.EmbeddingCache
	model    string
}

type VectorOption func(*VectorSearcher)

// WithEmbeddingCache memoises query embeddings under model.
func WithEmbeddingCache(c cache.EmbeddingCache, model string) VectorOption {
	return func(v *VectorSearcher) {
		v.cache = c
		v.model = model
	}
}

func NewVectorSearcher(store vector.Store, embedder Embedder, opts ...VectorOption) *VectorSearcher {
	v := &VectorSearcher{store: store, embedder: embedder}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *VectorSearcher) SimilaritySearch(ctx context.Context, query string, k int) ([]Passage, error) {
	if v.store == nil {
		return nil, vector.ErrUnavailable
	}
	if v.embedder == nil {
		return nil, errors.New("knowledge: no embedder configured")
	}
	vec, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", v.store.Collection(), err)
	}
	out := make([]Passage, 0, len(hits))
	for i, hit := range hits {
		seq := i
		if raw, ok := hit.Payload[MetaSeq]; ok {
			seq = metaInt(raw)
		}
		out = append(out, Passage{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    float64(hit.Score),
			Seq:      seq,
			Metadata: hit.Payload,
		})
	}
	Rank(out)
	return out, nil
}

func (v *VectorSearcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := ""
	if v.cache != nil {
		key = cache.EmbeddingKey(v.model, query)
		if vec, ok := v.cache.Get(ctx, key); ok {
			return vec, nil
		}
	}
	vecs, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	if v.cache != nil {
		v.cache.Set(ctx, key, vecs[0])
	}
	return vecs[0], nil
}

func docID(doc schema.Document, i int) string {
	if id, ok := doc.Metadata[MetaDoc].(string); ok && id != "" {
		return id
	}
	if id, ok := doc.Metadata[MetaSource].(string); ok && id != "" {
		return id
	}
	return "doc-" + strconv.Itoa(i)
}

func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}
