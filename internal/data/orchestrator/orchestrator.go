// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/knowledge"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

type closer interface {
	Close() error
}

// Orchestrator wires together the persistent stores behind the plan service and
// exposes the knowledge searchers built on top of them.
type Orchestrator struct {
	cfg Config

	records    *records.Store
	embedder   knowledge.Embedder
	embeddings cache.EmbeddingCache

	guidelineStore vector.Store
	recordStore    vector.Store

	guidelines knowledge.Searcher
	similar    knowledge.Searcher
	mode       string

	closers []closer
}

// Search modes reported by Mode.
const (
	ModeVector  = "vector"
	ModeLexical = "lexical"
)

// New opens the records store, connects the vector collections when configured and
// builds the guideline and record searchers. Without ChromaDB the searchers fall back
// to in-memory TF-IDF over the embedded corpus and a sample of survey records.
func New(ctx context.Context, cfg Config, embedder knowledge.Embedder, opts ...Option) (*Orchestrator, error) {
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	logger := common.Logger()

	store, err := records.OpenWithConfig(cfg.Records)
	if err != nil {
		return nil, fmt.Errorf("init records store: %w", err)
	}
	orch := &Orchestrator{cfg: cfg, records: store, embedder: embedder}
	orch.closers = append(orch.closers, store)

	orch.embeddings = settings.cache
	if orch.embeddings == nil {
		c, closeFn := cache.New(ctx, cfg.Cache)
		orch.embeddings = c
		orch.closers = append(orch.closers, closerFunc(closeFn))
	}

	switch {
	case settings.lexical:
	case settings.guidelines != nil || settings.records != nil:
		orch.guidelineStore, orch.recordStore = settings.guidelines, settings.records
	case cfg.Vector.Enabled:
		guidelines, err := vector.New(ctx, cfg.Vector, cfg.Vector.GuidelineCollection)
		if err != nil {
			_ = orch.Close()
			return nil, fmt.Errorf("init guideline collection: %w", err)
		}
		recs, err := vector.New(ctx, cfg.Vector, cfg.Vector.RecordCollection)
		if err != nil {
			_ = guidelines.Close()
			_ = orch.Close()
			return nil, fmt.Errorf("init record collection: %w", err)
		}
		orch.guidelineStore, orch.recordStore = guidelines, recs
		orch.closers = append(orch.closers, guidelines, recs)
	}

	if orch.guidelineStore != nil && embedder != nil {
		cacheOpt := knowledge.WithEmbeddingCache(orch.embeddings, cfg.EmbedModel)
		orch.guidelines = knowledge.NewVectorSearcher(orch.guidelineStore, embedder, cacheOpt)
		orch.similar = knowledge.NewVectorSearcher(orch.recordStore, embedder, cacheOpt)
		orch.mode = ModeVector
	} else {
		if err := orch.buildLexical(ctx); err != nil {
			_ = orch.Close()
			return nil, err
		}
		orch.mode = ModeLexical
	}
	logger.Info().Str("mode", orch.mode).Str("records_db", cfg.Records.Path).Msg("orchestrator: knowledge searchers ready")
	return orch, nil
}

func (o *Orchestrator) buildLexical(ctx context.Context) error {
	docs, err := knowledge.GuidelineDocuments()
	if err != nil {
		return fmt.Errorf("load guideline corpus: %w", err)
	}
	o.guidelines = knowledge.NewLexicalSearcher(docs)
	recs, err := o.records.All(ctx, o.cfg.RecordSample)
	if err != nil {
		return fmt.Errorf("load survey records: %w", err)
	}
	o.similar = knowledge.NewLexicalSearcher(knowledge.RecordDocuments(recs))
	return nil
}

// RecordStore exposes the SQLite survey and usage store.
func (o *Orchestrator) RecordStore() *records.Store {
	if o == nil {
		return nil
	}
	return o.records
}

// Guidelines is the searcher over medical guideline passages.
func (o *Orchestrator) Guidelines() knowledge.Searcher {
	if o == nil {
		return nil
	}
	return o.guidelines
}

// Records is the searcher over similar historical survey records.
func (o *Orchestrator) Records() knowledge.Searcher {
	if o == nil {
		return nil
	}
	return o.similar
}

func (o *Orchestrator) Mode() string {
	if o == nil {
		return ""
	}
	return o.mode
}

// Indexer embeds documents in the configured batch size.
func (o *Orchestrator) Indexer() *knowledge.Indexer {
	return knowledge.NewIndexer(o.embedder, o.cfg.IndexBatch)
}

// IndexReport counts the documents written to each collection.
type IndexReport struct {
	Guidelines int `json:"guidelines"`
	Records    int `json:"records"`
}

// Index loads the guideline corpus and every survey record into ChromaDB.
func (o *Orchestrator) Index(ctx context.Context) (IndexReport, error) {
	var report IndexReport
	if o.guidelineStore == nil || o.recordStore == nil {
		return report, fmt.Errorf("index: %w", vector.ErrUnavailable)
	}
	if o.embedder == nil {
		return report, errors.New("index: no embedder configured")
	}
	ix := o.Indexer()
	docs, err := knowledge.GuidelineDocuments()
	if err != nil {
		return report, err
	}
	if report.Guidelines, err = ix.Index(ctx, o.guidelineStore, docs); err != nil {
		return report, fmt.Errorf("index guidelines: %w", err)
	}
	recs, err := o.records.All(ctx, 0)
	if err != nil {
		return report, fmt.Errorf("load survey records: %w", err)
	}
	if report.Records, err = ix.Index(ctx, o.recordStore, knowledge.RecordDocuments(recs)); err != nil {
		return report, fmt.Errorf("index records: %w", err)
	}
	return report, nil
}

// Close releases any resources associated with the orchestrator.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	var err error
	for i := len(o.closers) - 1; i >= 0; i-- {
		closer := o.closers[i]
		if closer == nil {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.closers = nil
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
