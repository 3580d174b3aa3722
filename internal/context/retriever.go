// File path: internal/context/retriever.go
package context

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
	"github.com/nicodishanthj/vitaplan/internal/knowledge"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// Retriever gathers regional food data, guideline passages and similar records for a
// profile. It never mutates the stores it reads from.
type Retriever struct {
	config     Config
	table      *reference.Table
	guidelines knowledge.Searcher
	records    knowledge.Searcher
	cache      *passageCache
}

func NewRetriever(cfg Config, table *reference.Table, guidelines, records knowledge.Searcher) (*Retriever, error) {
	if table == nil {
		return nil, errors.New("reference table required")
	}
	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = table.RAGTopK()
	}
	if cfg.RecordCount <= 0 {
		cfg.RecordCount = table.RecordCount()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaults.LookupTimeout
	}
	if cfg.MaxSnippetRunes <= 0 {
		cfg.MaxSnippetRunes = defaults.MaxSnippetRunes
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	return &Retriever{
		config:     cfg,
		table:      table,
		guidelines: guidelines,
		records:    records,
		cache:      newPassageCache(cfg.CacheTTL, cfg.CacheSize),
	}, nil
}

func (r *Retriever) Config() Config {
	return r.config
}

// Retrieve runs the three lookups concurrently. When a store fails the partial context
// is returned together with one *RetrievalUnavailableError per failed store. Parent
// context cancellation is returned as is.
func (r *Retriever) Retrieve(ctx context.Context, p profile.PatientProfile) (RetrievedContext, error) {
	ctx, end := telemetry.StartSpan(ctx, "context.retrieve")
	logger := common.Logger()
	out := RetrievedContext{Region: p.Region, Costs: r.table.Costs()}

	var (
		guidelines, similar []knowledge.Passage
		guideErr, recordErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		food, err := r.table.Lookup(p.Region)
		var unknown *reference.UnknownRegionError
		if errors.As(err, &unknown) {
			food, _ = r.table.Resolve(p.Region)
			out.RegionSubstituted = true
			logger.Info().Str("region", p.Region).Str("default", food.Name).Msg("context: unknown region, using default")
		}
		out.Food = food
		return nil
	})
	g.Go(func() error {
		guidelines, guideErr = r.search(ctx, StoreGuidelines, r.guidelines, GuidelineQuery(p), r.config.TopK)
		return nil
	})
	g.Go(func() error {
		similar, recordErr = r.search(ctx, StoreRecords, r.records, RecordQuery(p), r.config.RecordCount)
		return nil
	})
	_ = g.Wait()

	out.Guidelines = guidelines
	out.SimilarRecords = similar
	if out.RegionSubstituted {
		out.Notes = append(out.Notes, fmt.Sprintf("Region %q is not in the reference table; %s guidance is used instead.", p.Region, out.Food.Name))
	}

	if err := ctx.Err(); err != nil {
		end(map[string]interface{}{"error": err.Error()})
		return out, err
	}
	err := errors.Join(guideErr, recordErr)
	end(map[string]interface{}{
		"guidelines":         len(out.Guidelines),
		"records":            len(out.SimilarRecords),
		"region_substituted": out.RegionSubstituted,
		"degraded":           err != nil,
	})
	return out, err
}

func (r *Retriever) search(ctx context.Context, store string, searcher knowledge.Searcher, query string, k int) ([]knowledge.Passage, error) {
	if searcher == nil {
		telemetry.RecordRetrieval(store, false)
		return nil, &RetrievalUnavailableError{Store: store, Err: ErrNoSearcher}
	}
	key := store + "|" + strconv.Itoa(k) + "|" + query
	if cached, ok := r.cache.get(key); ok {
		return cached, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()
	passages, err := searcher.SimilaritySearch(callCtx, query, k)
	telemetry.RecordRetrieval(store, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = common.CallTimeout(ctx, callCtx, err, store+" search", r.config.LookupTimeout)
		common.Logger().Warn().Str("store", store).Err(err).Msg("context: lookup failed")
		return nil, &RetrievalUnavailableError{Store: store, Err: err}
	}
	knowledge.Rank(passages)
	if len(passages) > k {
		passages = passages[:k]
	}
	for i := range passages {
		passages[i].Content = trimSnippet(passages[i].Content, r.config.MaxSnippetRunes)
	}
	r.cache.set(key, passages)
	return passages, nil
}

// GuidelineQuery phrases the profile's risk factors as a guideline search query.
func GuidelineQuery(p profile.PatientProfile) string {
	parts := []string{
		fmt.Sprintf("obesity management for %s adult BMI %.1f", strings.ToLower(string(p.Category)), p.BMI),
	}
	switch p.Category {
	case profile.CategoryObese, profile.CategoryOverweight:
		parts = append(parts, "weight loss caloric deficit diet exercise")
	}
	if p.BMI >= 30 {
		parts = append(parts, "pharmacotherapy orlistat metformin")
	}
	if p.BMI >= 35 {
		parts = append(parts, "GLP-1 semaglutide bariatric")
	}
	if p.Diet == profile.DietVegetarian {
		parts = append(parts, "vegetarian protein dal paneer")
	}
	if p.Activity <= profile.ActivityLowActive {
		parts = append(parts, "beginner walking yoga progression")
	}
	if p.Smoking.Current() {
		parts = append(parts, "smoking cardiovascular risk")
	}
	if p.Alcohol.Regular() {
		parts = append(parts, "alcohol")
	}
	if p.Age >= 40 {
		parts = append(parts, "diabetes screening HbA1c lipid profile")
	}
	parts = append(parts, "laboratory tests India")
	return strings.Join(parts, " ")
}

// RecordQuery describes the profile the same way survey records are rendered.
func RecordQuery(p profile.PatientProfile) string {
	return fmt.Sprintf("%d year old from %s %s, BMI %.1f (%s), %s wealth index.",
		p.Age, strings.ToLower(string(p.Residence)), p.Region, p.BMI, p.Category, strings.ToLower(p.Wealth.String()))
}

func trimSnippet(content string, limit int) string {
	content = strings.TrimSpace(content)
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	truncated := strings.TrimSpace(string(runes[:limit]))
	if !strings.HasSuffix(truncated, "…") {
		truncated += "…"
	}
	return truncated
}
