// File path: internal/plan/plan_test.go
package plan

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

func fixture(t *testing.T, region string) (*pipeline.SharedContext, profile.PatientProfile, ctxbuild.RetrievedContext) {
	t.Helper()
	table, err := reference.Default()
	require.NoError(t, err)
	p := profile.PatientProfile{
		Age: 45, Gender: profile.GenderFemale, HeightCM: 162.56, WeightKG: 80,
		BMI: 30.27, Category: profile.CategoryObese, Diet: profile.DietVegetarian,
		Activity: profile.ActivitySedentary, Smoking: profile.SmokingNever, Alcohol: profile.AlcoholNever,
		Region: region, Residence: profile.ResidenceUrban, Wealth: profile.WealthMiddle,
	}
	food, substituted := table.Resolve(region)
	retrieved := ctxbuild.RetrievedContext{Region: region, Food: food, RegionSubstituted: substituted, Costs: table.Costs()}
	if substituted {
		retrieved.Notes = []string{"Region is not in the reference table."}
	}
	gen := pipeline.GeneratorFunc(func(_ context.Context, prompt pipeline.Prompt) (string, error) {
		return "RAW " + prompt.Stage.Key() + "\nfish curry on Sundays", nil
	})
	pl, err := pipeline.New(table, gen)
	require.NoError(t, err)
	shared, err := pl.Run(context.Background(), pipeline.Input{Profile: p, Context: retrieved})
	require.NoError(t, err)
	return shared, p, retrieved
}

func TestSynthesizeBuildsSectionsInOrder(t *testing.T) {
	shared, p, retrieved := fixture(t, "Telangana")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	plan, err := Synthesize(shared, p, retrieved, Options{Provider: "local", Now: func() time.Time { return now }})
	require.NoError(t, err)

	_, err = uuid.Parse(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, now, plan.CreatedAt)
	titles := []string{}
	for _, s := range plan.Sections() {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{SectionTreatment, SectionFoodGuide, SectionLogs}, titles)
	assert.Equal(t, "local", plan.Metadata.Provider)
	assert.Equal(t, "Telangana", plan.Metadata.ResolvedRegion)
	assert.False(t, plan.Metadata.RegionSubstituted)
	assert.Equal(t, pipeline.RiskHigh, plan.Risk.Level)
	assert.NotEmpty(t, plan.Actions)
}

func TestFoodGuideIsVegetarianAndCarriesLimits(t *testing.T) {
	shared, p, retrieved := fixture(t, "Telangana")
	plan, err := Synthesize(shared, p, retrieved, Options{})
	require.NoError(t, err)

	guide := plan.FoodGuide.Body
	assert.Contains(t, guide, "Recommended Protein Sources (Vegetarian)\nLentils\n")
	assert.NotContains(t, guide, "Chicken")
	assert.NotContains(t, guide, "Mutton")
	assert.Contains(t, guide, "25g")
	assert.Contains(t, guide, "5g")
	assert.Contains(t, guide, "8-10 glasses")

	body := plan.Treatment.Body
	start := strings.Index(body, "## Dietary Plan")
	end := strings.Index(body, "## Medical Recommendation")
	require.True(t, start >= 0 && end > start)
	assert.NotContains(t, body[start:end], "fish curry", "diet narrative is scrubbed")
}

func TestLogsKeepRawOutputVerbatim(t *testing.T) {
	shared, p, retrieved := fixture(t, "Punjab")
	plan, err := Synthesize(shared, p, retrieved, Options{})
	require.NoError(t, err)
	for _, id := range pipeline.StageIDs() {
		assert.Contains(t, plan.Logs.Body, "RAW "+id.Key()+"\nfish curry on Sundays")
	}
}

func TestMetadataReflectsSubstitutionAndLimits(t *testing.T) {
	shared, p, retrieved := fixture(t, "Atlantis")
	plan, err := Synthesize(shared, p, retrieved, Options{ContextLimited: true, Notes: []string{"guidelines unavailable"}, DisplayName: "Asha"})
	require.NoError(t, err)
	assert.True(t, plan.Metadata.RegionSubstituted)
	assert.True(t, plan.Metadata.ContextLimited)
	assert.Equal(t, "National", plan.Metadata.ResolvedRegion)
	assert.Equal(t, "Atlantis", plan.Metadata.Region)
	assert.Len(t, plan.Metadata.Notes, 2)
	assert.Contains(t, plan.Treatment.Body, "limited context")
	assert.Contains(t, plan.Treatment.Body, "**Patient:** Asha")
}

func TestMarkdownIncludesEverySection(t *testing.T) {
	shared, p, retrieved := fixture(t, "Punjab")
	plan, err := Synthesize(shared, p, retrieved, Options{})
	require.NoError(t, err)
	md := plan.Markdown()
	assert.True(t, strings.Index(md, "# Treatment Plan") < strings.Index(md, "# Regional Food Guide"))
	assert.True(t, strings.Index(md, "# Regional Food Guide") < strings.Index(md, "# Stage Logs"))
	assert.Contains(t, md, "BMI:** 30.27 (Obese)")
	assert.Contains(t, md, "| 1 | Diet |")
}

func TestSynthesizeRequiresCompleteContext(t *testing.T) {
	_, err := Synthesize(nil, profile.PatientProfile{}, ctxbuild.RetrievedContext{}, Options{})
	assert.ErrorIs(t, err, ErrIncomplete)

	partial := pipeline.NewSharedContext()
	require.NoError(t, partial.Append(pipeline.StageOutput{Stage: pipeline.RiskAnalysis, Risk: &pipeline.RiskAssessment{}}))
	_, err = Synthesize(partial, profile.PatientProfile{}, ctxbuild.RetrievedContext{}, Options{})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestPlanJSONRoundTrips(t *testing.T) {
	shared, p, retrieved := fixture(t, "Punjab")
	p.Activity = profile.ActivityActive
	plan, err := Synthesize(shared, p, retrieved, Options{Provider: "local"})
	require.NoError(t, err)

	data, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"activity_level":"Active"`)
	assert.Contains(t, string(data), `"wealth":"Middle"`)

	var decoded TreatmentPlan
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, plan.ID, decoded.ID)
	assert.True(t, plan.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, plan.Profile, decoded.Profile)
	assert.Equal(t, plan.Risk, decoded.Risk)
	assert.Equal(t, plan.Actions, decoded.Actions)
	assert.Equal(t, plan.Markdown(), decoded.Markdown())
}

func TestLogsFenceOutlastsBackticksInOutput(t *testing.T) {
	table, err := reference.Default()
	require.NoError(t, err)
	p := profile.PatientProfile{
		Age: 45, Gender: profile.GenderFemale, HeightCM: 162.56, WeightKG: 80,
		BMI: 30.27, Category: profile.CategoryObese, Diet: profile.DietVegetarian,
		Region: "Punjab", Residence: profile.ResidenceUrban, Wealth: profile.WealthMiddle,
	}
	food, _ := table.Resolve("Punjab")
	retrieved := ctxbuild.RetrievedContext{Region: "Punjab", Food: food, Costs: table.Costs()}
	gen := pipeline.GeneratorFunc(func(_ context.Context, _ pipeline.Prompt) (string, error) {
		return "before\n```\ncode\n```\nafter", nil
	})
	pl, err := pipeline.New(table, gen)
	require.NoError(t, err)
	shared, err := pl.Run(context.Background(), pipeline.Input{Profile: p, Context: retrieved})
	require.NoError(t, err)

	plan, err := Synthesize(shared, p, retrieved, Options{})
	require.NoError(t, err)
	assert.Contains(t, plan.Logs.Body, "````\nbefore\n```\ncode\n```\nafter\n````\n")
	assert.Equal(t, "```", codeFence("no backticks"))
	assert.Equal(t, "`````", codeFence("a ```` b"))
}
