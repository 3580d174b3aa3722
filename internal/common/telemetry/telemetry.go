// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicodishanthj/vitaplan/internal/common"
)

const namespace = "vitaplan"

type spanKey struct{}

type span struct {
	name   string
	parent string
	start  time.Time
}

var (
	initOnce sync.Once

	stageDuration    *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	retrievalLookups *prometheus.CounterVec
	vectorSearch     *prometheus.HistogramVec
	embedCache       *prometheus.CounterVec
	plansTotal       *prometheus.CounterVec
	generationCalls  *prometheus.CounterVec
	indexedDocs      *prometheus.CounterVec
)

func ensureInit() {
	initOnce.Do(func() {
		stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage"})
		stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by cause.",
		}, []string{"stage", "cause"})
		retrievalLookups = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_lookups_total",
			Help:      "Context lookups by store and outcome.",
		}, []string{"store", "outcome"})
		vectorSearch = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_search_duration_seconds",
			Help:      "Latency of vector store queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "outcome"})
		embedCache = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache lookups.",
		}, []string{"result"})
		plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Treatment plan requests by outcome.",
		}, []string{"outcome"})
		generationCalls = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Calls to the generation provider.",
		}, []string{"provider", "outcome"})
		indexedDocs = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents upserted into the vector store.",
		}, []string{"collection"})
	})
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	ensureInit()
	return promhttp.Handler()
}

// StartSpan logs the start of a named operation and returns a func that logs its end
// with the elapsed time. Spans started under another span log the enclosing name.
func StartSpan(ctx context.Context, name string) (context.Context, func(fields map[string]interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	if parent, ok := ctx.Value(spanKey{}).(*span); ok {
		sp.parent = parent.name
	}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger().With().Str("span", name).Str("parent", sp.parent).Logger()
	logger.Debug().Msg("trace: start")
	return ctx, func(fields map[string]interface{}) {
		logger.Debug().Dur("dur", time.Since(sp.start)).Fields(fields).Msg("trace: end")
	}
}

func RecordStage(stage string, duration time.Duration) {
	ensureInit()
	stageDuration.WithLabelValues(label(stage)).Observe(duration.Seconds())
}

func RecordStageFailure(stage, cause string) {
	ensureInit()
	stageFailures.WithLabelValues(label(stage), label(cause)).Inc()
}

func RecordRetrieval(store string, ok bool) {
	ensureInit()
	retrievalLookups.WithLabelValues(label(store), outcome(ok)).Inc()
}

func RecordVectorSearch(collection string, ok bool, duration time.Duration) {
	ensureInit()
	vectorSearch.WithLabelValues(label(collection), outcome(ok)).Observe(duration.Seconds())
}

func RecordEmbeddingCache(hit bool) {
	ensureInit()
	result := "miss"
	if hit {
		result = "hit"
	}
	embedCache.WithLabelValues(result).Inc()
}

func RecordPlan(result string) {
	ensureInit()
	plansTotal.WithLabelValues(label(result)).Inc()
}

func RecordGeneration(provider string, ok bool) {
	ensureInit()
	generationCalls.WithLabelValues(label(provider), outcome(ok)).Inc()
}

func RecordIndexed(collection string, docs int) {
	ensureInit()
	if docs <= 0 {
		return
	}
	indexedDocs.WithLabelValues(label(collection)).Add(float64(docs))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func label(value string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return "unknown"
	}
	return key
}
