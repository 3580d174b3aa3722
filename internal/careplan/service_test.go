// File path: internal/careplan/service_test.go
package careplan

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicodishanthj/vitaplan/internal/common"
	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/knowledge"
	"github.com/nicodishanthj/vitaplan/internal/llm/providers"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

func referenceIntake() profile.RawInput {
	return profile.RawInput{
		Name:         "Asha",
		Age:          45,
		Gender:       "Female",
		HeightFeet:   5,
		HeightInches: 4,
		WeightKG:     80,
		Diet:         "Vegetarian",
		Region:       "Punjab",
		Residence:    "Urban",
		Wealth:       "Middle",
	}
}

type failingSearcher struct{ err error }

func (f failingSearcher) SimilaritySearch(context.Context, string, int) ([]knowledge.Passage, error) {
	return nil, f.err
}

type countingRunner struct {
	calls atomic.Int32
	next  PlanRunner
}

func (c *countingRunner) Run(ctx context.Context, in pipeline.Input) (*pipeline.SharedContext, error) {
	c.calls.Add(1)
	return c.next.Run(ctx, in)
}

type failingUsage struct{}

func (failingUsage) LogUsage(context.Context, records.UsageEntry) error {
	return errors.New("disk full")
}

type harness struct {
	table  *reference.Table
	runner *countingRunner
	store  *records.Store
}

func newHarness(t *testing.T, gen pipeline.Generator) (*harness, ctxbuild.Config) {
	t.Helper()
	table, err := reference.Default()
	require.NoError(t, err)
	if gen == nil {
		gen = pipeline.NewProviderGenerator(providers.NewLocalProvider())
	}
	pl, err := pipeline.New(table, gen, pipeline.WithCallTimeout(time.Second))
	require.NoError(t, err)
	store, err := records.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cfg := ctxbuild.DefaultConfig()
	cfg.CacheTTL = 0
	return &harness{table: table, runner: &countingRunner{next: pl}, store: store}, cfg
}

func (h *harness) service(t *testing.T, cfg ctxbuild.Config, guidelines, recs knowledge.Searcher, opts ...Option) *Service {
	t.Helper()
	retriever, err := ctxbuild.NewRetriever(cfg, h.table, guidelines, recs)
	require.NoError(t, err)
	opts = append([]Option{WithUsageLog(h.store), WithProviderName("local")}, opts...)
	svc, err := NewService(h.table.Thresholds(), retriever, h.runner, opts...)
	require.NoError(t, err)
	return svc
}

func guidelineSearcher(t *testing.T) knowledge.Searcher {
	t.Helper()
	docs, err := knowledge.GuidelineDocuments()
	require.NoError(t, err)
	return knowledge.NewLexicalSearcher(docs)
}

func recordSearcher() knowledge.Searcher {
	return knowledge.NewLexicalSearcher(knowledge.RecordDocuments([]records.PatientRecord{
		{SourceID: "NFHS_1", Age: 44, HeightCM: 158, WeightKG: 76, BMI: 30.4, Category: "Obese", State: "Punjab", Residence: "Urban", Wealth: "Middle"},
		{SourceID: "NFHS_2", Age: 39, HeightCM: 160, WeightKG: 66, BMI: 25.8, Category: "Overweight", State: "Punjab", Residence: "Urban", Wealth: "Richer"},
		{SourceID: "NFHS_3", Age: 52, HeightCM: 150, WeightKG: 50, BMI: 22.2, Category: "Normal", State: "Kerala", Residence: "Rural", Wealth: "Poorer"},
	}))
}

func TestBuildTreatmentPlanReferenceIntake(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())

	tp, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	require.NoError(t, err)

	assert.InDelta(t, 30.27, tp.Profile.BMI, 0.005)
	assert.Equal(t, profile.CategoryObese, tp.Profile.Category)
	assert.Equal(t, "Punjab", tp.Metadata.ResolvedRegion)
	assert.False(t, tp.Metadata.ContextLimited)
	assert.Equal(t, "local", tp.Metadata.Provider)

	guide := tp.FoodGuide.Body
	for _, staple := range []string{"Wheat (roti)", "Rice", "Makki (corn)"} {
		assert.Contains(t, guide, staple)
	}
	assert.Contains(t, guide, "Lentils, Paneer, Curd")
	assert.NotContains(t, guide, "Chicken")
	assert.Contains(t, tp.Treatment.Body, "**Patient:** Asha")

	usage, err := h.store.RecentUsage(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, string(KindOK), usage[0].Outcome)
	assert.Equal(t, "Punjab", usage[0].Region)
}

func TestClockStampsPlanAndUsage(t *testing.T) {
	h, cfg := newHarness(t, nil)
	fixed := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher(), WithClock(func() time.Time { return fixed }))

	tp, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	require.NoError(t, err)
	assert.Equal(t, fixed, tp.CreatedAt)

	usage, err := h.store.RecentUsage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.True(t, fixed.Equal(usage[0].CreatedAt), "usage stamped at %v", usage[0].CreatedAt)
}

func TestValidationStopsBeforeGeneration(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())

	raw := referenceIntake()
	raw.Age = 12
	_, err := svc.BuildTreatmentPlan(context.Background(), raw)
	var ve *profile.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "age", ve.Field)
	assert.Zero(t, h.runner.calls.Load())

	kind, msg := Describe(err)
	assert.Equal(t, KindValidation, kind)
	assert.Contains(t, msg, "age")
}

func TestUnknownRegionFallsBackToNational(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())
	raw := referenceIntake()
	raw.Region = "Atlantis"
	tp, err := svc.BuildTreatmentPlan(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, tp.Metadata.RegionSubstituted)
	assert.Equal(t, "National", tp.Metadata.ResolvedRegion)
	assert.NotEmpty(t, tp.Metadata.Notes)
}

func TestDegradedRetrievalContinuesByDefault(t *testing.T) {
	h, cfg := newHarness(t, nil)
	down := failingSearcher{err: errors.New("connection refused")}
	svc := h.service(t, cfg, down, recordSearcher())

	tp, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	require.NoError(t, err)
	assert.True(t, tp.Metadata.ContextLimited)
	assert.Contains(t, strings.Join(tp.Metadata.Notes, " "), ctxbuild.StoreGuidelines)
	assert.Equal(t, DegradeContinue, svc.Policy())
}

func TestDegradedRetrievalAbortsWhenConfigured(t *testing.T) {
	h, cfg := newHarness(t, nil)
	down := failingSearcher{err: errors.New("connection refused")}
	svc := h.service(t, cfg, down, down, WithDegradePolicy(DegradeAbort))

	_, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	require.Error(t, err)
	assert.Zero(t, h.runner.calls.Load())
	kind, msg := Describe(err)
	assert.Equal(t, KindRetrievalUnavailable, kind)
	assert.Contains(t, msg, "guidelines")
	assert.Contains(t, msg, "records")
	assert.NotContains(t, msg, "connection refused")

	usage, err := h.store.RecentUsage(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, string(KindRetrievalUnavailable), usage[0].Outcome)
}

func TestGenerationFailureIsDescribed(t *testing.T) {
	gen := pipeline.GeneratorFunc(func(_ context.Context, p pipeline.Prompt) (string, error) {
		if p.Stage == pipeline.FitnessPlanning {
			return "", errors.New("openai: 500 internal server error")
		}
		return "ok", nil
	})
	h, cfg := newHarness(t, gen)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())

	_, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	var stageErr *pipeline.StageExecutionError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 4, stageErr.Index)
	kind, msg := Describe(err)
	assert.Equal(t, KindGenerationFailed, kind)
	assert.Contains(t, msg, "fitness plan")
	assert.NotContains(t, msg, "openai")
}

func TestUsageLogFailureNeverFailsRequest(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher(), WithUsageLog(failingUsage{}))
	_, err := svc.BuildTreatmentPlan(context.Background(), referenceIntake())
	require.NoError(t, err)
}

func TestCancelledRequest(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.BuildTreatmentPlan(ctx, referenceIntake())
	require.Error(t, err)
	kind, _ := Describe(err)
	assert.Equal(t, KindCanceled, kind)
}

func TestComputeBMI(t *testing.T) {
	h, cfg := newHarness(t, nil)
	svc := h.service(t, cfg, guidelineSearcher(t), recordSearcher())
	bmi, cat, err := svc.ComputeBMI(5, 4, 80)
	require.NoError(t, err)
	assert.Equal(t, 30.27, bmi)
	assert.Equal(t, profile.CategoryObese, cat)

	_, _, err = svc.ComputeBMI(0, 0, 80)
	assert.Error(t, err)
}

func TestDescribeKinds(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindOK},
		{context.Canceled, KindCanceled},
		{&common.TimeoutError{Op: "x", After: time.Second}, KindTimeout},
		{&pipeline.StageExecutionError{Index: 3, Stage: pipeline.MedicalRecommendation, Err: &common.TimeoutError{Op: "gen", After: time.Second}}, KindTimeout},
		{&ctxbuild.RetrievalUnavailableError{Store: "records", Err: errors.New("x")}, KindRetrievalUnavailable},
		{errors.New("sql: database is locked"), KindInternal},
	}
	for _, tc := range cases {
		kind, msg := Describe(tc.err)
		assert.Equal(t, tc.want, kind, "%v", tc.err)
		if tc.err != nil {
			assert.NotContains(t, msg, "sql")
		}
	}
}

func TestParseDegradePolicy(t *testing.T) {
	p, err := ParseDegradePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DegradeContinue, p)
	p, err = ParseDegradePolicy(" ABORT ")
	require.NoError(t, err)
	assert.Equal(t, DegradeAbort, p)
	_, err = ParseDegradePolicy("retry")
	assert.Error(t, err)
}
