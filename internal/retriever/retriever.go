// File path: internal/retriever/retriever.go
package retriever

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nicodishanthj/vitaplan/internal/cache"
)

// Doc is a unit of text indexed for lexical search.
type Doc struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type SearchResult struct {
	Doc   Doc     `json:"doc"`
	Score float64 `json:"score"`
}

// Retriever is an in-memory TF-IDF index with cosine scoring. Results are ordered
// by score, with ties broken by insertion order so repeated queries are stable.
type Retriever struct {
	mu      sync.RWMutex
	docs    []Doc
	vectors map[string]map[string]float64
	norms   map[string]float64
	df      map[string]int
	total   int

	cache *cache.LRU
}

type Option func(*Retriever)

// WithCacheSize bounds the number of memoised query results.
func WithCacheSize(size int) Option {
	return func(r *Retriever) {
		if size > 0 {
			r.cache = cache.NewLRU(size)
		}
	}
}

func New(docs []Doc, opts ...Option) *Retriever {
	r := &Retriever{cache: cache.NewLRU(128)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.Refresh(docs)
	return r
}

// Refresh replaces the indexed documents. Duplicate IDs keep the last occurrence.
func (r *Retriever) Refresh(docs []Doc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildIndexes(docs)
}

// Add appends documents to the existing index.
func (r *Retriever) Add(docs ...Doc) {
	if len(docs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	combined := make([]Doc, 0, len(r.docs)+len(docs))
	combined = append(combined, r.docs...)
	combined = append(combined, docs...)
	r.rebuildIndexes(combined)
}

func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func (r *Retriever) rebuildIndexes(docs []Doc) {
	seen := make(map[string]int, len(docs))
	deduped := make([]Doc, 0, len(docs))
	for _, doc := range docs {
		if idx, ok := seen[doc.ID]; ok {
			deduped[idx] = doc
			continue
		}
		seen[doc.ID] = len(deduped)
		deduped = append(deduped, doc)
	}
	r.docs = deduped
	r.vectors = make(map[string]map[string]float64, len(deduped))
	r.norms = make(map[string]float64, len(deduped))
	r.df = make(map[string]int)
	r.total = len(deduped)
	r.cache.Purge()
	for _, doc := range deduped {
		tf := make(map[string]float64)
		for _, term := range tokenize(doc.Content) {
			tf[term]++
		}
		for term := range tf {
			r.df[term]++
		}
		r.vectors[doc.ID] = tf
	}
	for id, tf := range r.vectors {
		var norm float64
		for term, freq := range tf {
			weight := r.tfidfWeight(term, freq)
			tf[term] = weight
			norm += weight * weight
		}
		r.norms[id] = math.Sqrt(norm)
	}
}

// Search returns up to limit documents with a positive similarity to query.
// The filter, when non-nil, is applied before ranking.
func (r *Retriever) Search(query string, limit int, filter func(Doc) bool) []SearchResult {
	if limit <= 0 {
		limit = 5
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := ""
	if filter == nil {
		key = queryCacheKey(query, limit)
		if cached, ok := r.cache.Get(key); ok {
			return cloneResults(cached.([]SearchResult))
		}
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	qtf := make(map[string]float64)
	for _, term := range terms {
		qtf[term]++
	}
	var qnorm float64
	for term, freq := range qtf {
		weight := r.tfidfWeight(term, freq)
		qtf[term] = weight
		qnorm += weight * weight
	}
	qnorm = math.Sqrt(qnorm)
	if qnorm == 0 {
		return nil
	}
	scores := make([]SearchResult, 0, len(r.docs))
	for _, doc := range r.docs {
		if filter != nil && !filter(doc) {
			continue
		}
		dv := r.vectors[doc.ID]
		if len(dv) == 0 {
			continue
		}
		var dot float64
		for term, weight := range qtf {
			dot += weight * dv[term]
		}
		denom := qnorm * r.norms[doc.ID]
		if denom == 0 {
			continue
		}
		score := dot / denom
		if score <= 0 {
			continue
		}
		scores = append(scores, SearchResult{Doc: doc, Score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	if key != "" {
		r.cache.Set(key, cloneResults(scores))
	}
	return scores
}

func queryCacheKey(query string, limit int) string {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	return "query:" + strconv.Itoa(limit) + ":" + trimmed
}

func cloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	replacer := strings.NewReplacer(
		".", " ",
		",", " ",
		"\n", " ",
		"\t", " ",
		":", " ",
		";", " ",
		"-", " ",
		"_", " ",
		"(", " ",
		")", " ",
		"'", " ",
		"\"", " ",
		"#", " ",
		"*", " ",
		"/", " ",
		"|", " ",
	)
	return strings.Fields(replacer.Replace(text))
}

func (r *Retriever) tfidfWeight(term string, freq float64) float64 {
	df := float64(r.df[term])
	if df == 0 {
		return 0
	}
	idf := math.Log((float64(r.total)+1)/(df+1)) + 1
	return freq * idf
}
