// File path: internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicodishanthj/vitaplan/internal/common"
	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/knowledge"
	"github.com/nicodishanthj/vitaplan/internal/llm/providers"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

func testTable(t *testing.T) *reference.Table {
	t.Helper()
	table, err := reference.Default()
	require.NoError(t, err)
	return table
}

func testProfile() profile.PatientProfile {
	return profile.PatientProfile{
		Age:       45,
		Gender:    profile.GenderFemale,
		HeightCM:  162.56,
		WeightKG:  80,
		BMI:       30.27,
		Category:  profile.CategoryObese,
		Diet:      profile.DietVegetarian,
		Walking:   profile.WalkingNo,
		Steps:     profile.StepsUnder5000,
		Activity:  profile.ActivitySedentary,
		Smoking:   profile.SmokingNever,
		Alcohol:   profile.AlcoholNever,
		Region:    "Punjab",
		Residence: profile.ResidenceUrban,
		Wealth:    profile.WealthMiddle,
	}
}

func testInput(t *testing.T, p profile.PatientProfile) Input {
	t.Helper()
	table := testTable(t)
	food, _ := table.Resolve(p.Region)
	return Input{
		Profile: p,
		Context: ctxbuild.RetrievedContext{
			Region: p.Region,
			Food:   food,
			Guidelines: []knowledge.Passage{
				{ID: "g1", Content: "Orlistat 120mg three times daily with meals.", Score: 0.9, Metadata: map[string]any{knowledge.MetaSource: "Drug Database"}},
			},
			SimilarRecords: []knowledge.Passage{
				{ID: "r1", Content: "44 year old from urban Punjab, BMI 31.0 (Obese)", Metadata: map[string]any{"bmi_category": "Obese"}},
				{ID: "r2", Content: "47 year old from urban Punjab, BMI 26.0 (Overweight)", Metadata: map[string]any{"bmi_category": "Overweight"}},
				{ID: "r3", Content: "41 year old from urban Punjab, BMI 22.0 (Normal)", Metadata: map[string]any{"bmi_category": "Normal"}},
			},
			Costs: table.Costs(),
		},
	}
}

func echoGenerator() Generator {
	return GeneratorFunc(func(_ context.Context, prompt Prompt) (string, error) {
		return "narrative for " + prompt.Stage.Key(), nil
	})
}

func newTestPipeline(t *testing.T, gen Generator, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(testTable(t), gen, opts...)
	require.NoError(t, err)
	return p
}

func stripDurations(outs []StageOutput) []StageOutput {
	for i := range outs {
		outs[i].Duration = 0
	}
	return outs
}

func TestRunCompletesStagesInOrder(t *testing.T) {
	p := newTestPipeline(t, echoGenerator())
	shared, err := p.Run(context.Background(), testInput(t, testProfile()))
	require.NoError(t, err)
	require.True(t, shared.Complete())

	outs := shared.Snapshot()
	for i, out := range outs {
		assert.Equal(t, StageID(i+1), out.Stage)
		assert.Equal(t, "narrative for "+out.Stage.Key(), out.Raw)
	}
	require.NotNil(t, outs[0].Risk)
	assert.Equal(t, RiskHigh, outs[0].Risk.Level)
	assert.InDelta(t, 2.0/3.0, outs[0].Risk.SimilarAtRiskShare, 1e-9)
}

func TestLaterGeneratorsDoNotChangeEarlierOutputs(t *testing.T) {
	in := testInput(t, testProfile())
	first, err := newTestPipeline(t, echoGenerator()).Run(context.Background(), in)
	require.NoError(t, err)

	other := GeneratorFunc(func(context.Context, Prompt) (string, error) { return "something else entirely", nil })
	second, err := newTestPipeline(t, echoGenerator(),
		WithGenerator(FitnessPlanning, other),
		WithGenerator(Synthesis, other),
	).Run(context.Background(), in)
	require.NoError(t, err)

	a := stripDurations(first.Snapshot())
	b := stripDurations(second.Snapshot())
	assert.Equal(t, a[:3], b[:3])
	assert.NotEqual(t, a[3].Raw, b[3].Raw)
}

func TestPromptsOnlyCarryDeclaredEarlierOutputs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[StageID]string)
	gen := GeneratorFunc(func(_ context.Context, prompt Prompt) (string, error) {
		mu.Lock()
		seen[prompt.Stage] = prompt.User
		mu.Unlock()
		return "MARK-" + prompt.Stage.Key(), nil
	})
	_, err := newTestPipeline(t, gen).Run(context.Background(), testInput(t, testProfile()))
	require.NoError(t, err)

	for _, id := range StageIDs() {
		for _, later := range StageIDs() {
			if later >= id {
				assert.NotContains(t, seen[id], "MARK-"+later.Key(), "%s saw %s", id, later)
			}
		}
	}
	assert.Contains(t, seen[DietaryPlan], "MARK-risk_analysis")
	assert.Contains(t, seen[FitnessPlanning], "MARK-risk_analysis")
	assert.NotContains(t, seen[FitnessPlanning], "MARK-dietary_plan", "fitness does not declare the diet stage")
	for _, id := range StageIDs()[:4] {
		assert.Contains(t, seen[Synthesis], "MARK-"+id.Key())
	}
}

func TestVegetarianTelanganaPlanExcludesMeat(t *testing.T) {
	p := testProfile()
	p.Region = "Telangana"
	gen := GeneratorFunc(func(_ context.Context, prompt Prompt) (string, error) {
		return "Breakfast: ragi dosa\nLunch: chicken curry with rice\nDinner: dal and vegetables", nil
	})
	shared, err := newTestPipeline(t, gen).Run(context.Background(), testInput(t, p))
	require.NoError(t, err)

	diet, ok := shared.Output(DietaryPlan)
	require.True(t, ok)
	require.NotNil(t, diet.Diet)
	assert.Equal(t, []string{"Lentils"}, diet.Diet.Proteins)
	for _, protein := range diet.Diet.Proteins {
		assert.NotEqual(t, "Chicken", protein)
	}
	assert.NotContains(t, strings.ToLower(diet.Text), "chicken")
	assert.Contains(t, diet.Text, "ragi dosa")
	assert.Contains(t, diet.Raw, "chicken curry", "raw output is kept verbatim")
}

func TestNonVegetarianKeepsFullProteinList(t *testing.T) {
	p := testProfile()
	p.Region = "Telangana"
	p.Diet = profile.DietNonVegetarian
	shared, err := newTestPipeline(t, echoGenerator()).Run(context.Background(), testInput(t, p))
	require.NoError(t, err)
	diet, _ := shared.Output(DietaryPlan)
	assert.Equal(t, []string{"Mutton", "Chicken", "Lentils"}, diet.Diet.Proteins)
}

func TestVegetarianDishesDropNonVegetarianItems(t *testing.T) {
	p := testProfile()
	p.Region = "Kerala"
	shared, err := newTestPipeline(t, echoGenerator()).Run(context.Background(), testInput(t, p))
	require.NoError(t, err)
	diet, _ := shared.Output(DietaryPlan)
	assert.Equal(t, []string{"Appam", "Puttu", "Thoran", "Avial"}, diet.Diet.Dishes)

	p.Diet = profile.DietNonVegetarian
	shared, err = newTestPipeline(t, echoGenerator()).Run(context.Background(), testInput(t, p))
	require.NoError(t, err)
	diet, _ = shared.Output(DietaryPlan)
	assert.Contains(t, diet.Diet.Dishes, "Fish curry")
}

func TestDietRejectsNonWhitelistedProtein(t *testing.T) {
	table := testTable(t)
	in := testInput(t, testProfile())
	in.Context.Food.Proteins = []string{"Paneer"}
	out, err := buildDiet(stageEnv{input: in, table: table})
	require.NoError(t, err)
	assert.Equal(t, []string{"Paneer"}, out.Diet.Proteins)

	in.Context.Food.Proteins = nil
	out, err = buildDiet(stageEnv{input: in, table: table})
	require.NoError(t, err)
	require.NotEmpty(t, out.Diet.Proteins)
	for _, protein := range out.Diet.Proteins {
		assert.True(t, table.IsVegetarianProtein(protein))
	}
}

func TestMedicalEligibility(t *testing.T) {
	table := testTable(t)
	cases := []struct {
		name   string
		mutate func(*profile.PatientProfile)
		want   []string
	}{
		{"obese sedentary middle", func(*profile.PatientProfile) {}, []string{reference.ItemOrlistat, reference.ItemMetformin}},
		{"below 30", func(p *profile.PatientProfile) { p.BMI = 28.4; p.Age = 30; p.Activity = profile.ActivityActive }, nil},
		{"severe richest", func(p *profile.PatientProfile) { p.BMI = 36.2; p.Wealth = profile.WealthRichest }, []string{reference.ItemOrlistat, reference.ItemMetformin, reference.ItemSemaglutide}},
		{"severe richer", func(p *profile.PatientProfile) { p.BMI = 36.2; p.Wealth = profile.WealthRicher }, []string{reference.ItemOrlistat, reference.ItemMetformin, reference.ItemLiraglutide}},
		{"severe poorer", func(p *profile.PatientProfile) { p.BMI = 36.2; p.Wealth = profile.WealthPoorer }, []string{reference.ItemOrlistat, reference.ItemMetformin}},
		{"overweight", func(p *profile.PatientProfile) { p.BMI = 25; p.Category = profile.CategoryOverweight }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProfile()
			tc.mutate(&p)
			out, err := buildMedical(stageEnv{input: Input{Profile: p}, table: table})
			require.NoError(t, err)
			var names []string
			for _, m := range out.Medical.Medications {
				names = append(names, m.Name)
			}
			assert.Equal(t, tc.want, names)

			var total reference.PriceRange
			for _, item := range out.Medical.Items() {
				want, ok := table.Cost(item.Name)
				require.True(t, ok)
				assert.Equal(t, want, item.Cost)
				total = total.Add(item.Cost)
			}
			assert.Equal(t, total, out.Medical.Total)
		})
	}
}

func TestFitnessTierIsMonotonic(t *testing.T) {
	levels := []profile.ActivityLevel{profile.ActivitySedentary, profile.ActivityLowActive, profile.ActivityActive, profile.ActivityVeryActive}
	prev := FitnessTier(-1)
	for _, level := range levels {
		p := testProfile()
		p.Activity = level
		out, err := buildFitness(stageEnv{input: Input{Profile: p}})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Fitness.Tier, prev)
		prev = out.Fitness.Tier
		require.Len(t, out.Fitness.Periods, 4)
		assert.Equal(t, []int{1, 3, 5, 9}, []int{
			out.Fitness.Periods[0].StartWeek, out.Fitness.Periods[1].StartWeek,
			out.Fitness.Periods[2].StartWeek, out.Fitness.Periods[3].StartWeek,
		})
	}
	assert.Equal(t, TierGentle, tierFor(profile.ActivitySedentary))
	assert.Equal(t, TierVigorous, tierFor(profile.ActivityVeryActive))
}

func TestFitnessActivitiesFollowResidence(t *testing.T) {
	p := testProfile()
	p.Residence = profile.ResidenceRural
	out, err := buildFitness(stageEnv{input: Input{Profile: p}})
	require.NoError(t, err)
	assert.Contains(t, out.Fitness.Activities, "Cycling")
	assert.NotContains(t, out.Fitness.Activities, "Stair climbing")
}

func TestSynthesisOrdersActionsAndRollsUpCosts(t *testing.T) {
	shared, err := newTestPipeline(t, echoGenerator()).Run(context.Background(), testInput(t, testProfile()))
	require.NoError(t, err)
	outs := shared.Outputs()
	syn := outs[Synthesis].Synthesis
	require.NotNil(t, syn)
	require.NotEmpty(t, syn.Actions)
	for i := 1; i < len(syn.Actions); i++ {
		prev, cur := syn.Actions[i-1], syn.Actions[i]
		assert.True(t, prev.Week < cur.Week || (prev.Week == cur.Week && prev.Category <= cur.Category), "%v before %v", prev, cur)
	}
	assert.Equal(t, outs[MedicalRecommendation].Medical.Total, syn.Costs.Medical)
	assert.Equal(t, outs[DietaryPlan].Diet.GroceryCost, syn.Costs.Grocery)
	assert.Equal(t, syn.Costs.Medical.Min+syn.Costs.Grocery.Min, syn.Costs.Total.Min)
	assert.Equal(t, syn.Costs.Medical.Max+syn.Costs.Grocery.Max, syn.Costs.Total.Max)
}

func TestGenerationTimeoutNamesStage(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	shared, err := newTestPipeline(t, echoGenerator(),
		WithGenerator(MedicalRecommendation, slow),
		WithCallTimeout(20*time.Millisecond),
	).Run(context.Background(), testInput(t, testProfile()))
	require.Error(t, err)
	assert.Nil(t, shared)

	var stageErr *StageExecutionError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 3, stageErr.Index)
	assert.Equal(t, MedicalRecommendation, stageErr.Stage)
	var timeout *common.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailureStopsLaterStages(t *testing.T) {
	var calls []StageID
	gen := GeneratorFunc(func(_ context.Context, prompt Prompt) (string, error) {
		calls = append(calls, prompt.Stage)
		if prompt.Stage == DietaryPlan {
			return "", errors.New("upstream 500")
		}
		return "ok", nil
	})
	shared, err := newTestPipeline(t, gen).Run(context.Background(), testInput(t, testProfile()))
	require.Error(t, err)
	assert.Nil(t, shared)
	var stageErr *StageExecutionError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 2, stageErr.Index)
	assert.Equal(t, []StageID{RiskAnalysis, DietaryPlan}, calls)
	assert.Contains(t, err.Error(), "stage 2 (Dietary Plan) failed")
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(_ context.Context, prompt Prompt) (string, error) {
		if prompt.Stage == RiskAnalysis {
			cancel()
		}
		return "ok", nil
	})
	_, err := newTestPipeline(t, gen).Run(ctx, testInput(t, testProfile()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var stageErr *StageExecutionError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 2, stageErr.Index)
}

func TestSharedContextRejectsOutOfOrderAppend(t *testing.T) {
	s := NewSharedContext()
	require.Error(t, s.Append(StageOutput{Stage: DietaryPlan}))
	require.NoError(t, s.Append(StageOutput{Stage: RiskAnalysis, Risk: &RiskAssessment{Factors: []string{"a"}}}))
	require.Error(t, s.Append(StageOutput{Stage: RiskAnalysis}))

	snap := s.Snapshot()
	snap[0].Risk.Factors[0] = "changed"
	again, _ := s.Output(RiskAnalysis)
	assert.Equal(t, "a", again.Risk.Factors[0])

	visible := s.Visible(RiskAnalysis, []StageID{RiskAnalysis})
	assert.Empty(t, visible, "a stage never sees itself")
}

func TestParsePromptsRequiresEveryStage(t *testing.T) {
	set, err := DefaultPrompts()
	require.NoError(t, err)
	assert.Len(t, set, 5)

	_, err = ParsePrompts([]byte("risk_analysis:\n  task: hi\n"))
	require.Error(t, err)

	_, err = ParsePrompts([]byte(strings.Repeat("x", 3)))
	assert.Error(t, err)
}

func TestPromptRendersTemplateValues(t *testing.T) {
	spec := PromptSpec{Role: "Analyst", Goal: "Be brief.", Task: "Patient: {{.profile}} / {{.payload}}"}
	out, err := spec.render(map[string]any{varProfile: "45 year old", varPayload: "High"})
	require.NoError(t, err)
	assert.Equal(t, "Patient: 45 year old / High", out)
	assert.Equal(t, "You are a Analyst. Be brief.", spec.system())
}

func TestProviderGeneratorUsesProvider(t *testing.T) {
	g := NewProviderGenerator(providers.NewLocalProvider())
	out, err := g.Generate(context.Background(), Prompt{Stage: RiskAnalysis, System: "sys", User: "assess risk"})
	require.NoError(t, err)
	assert.Equal(t, "[local-stub] assess risk", out)
	assert.Equal(t, "local", g.Name())
}

func TestNonVegFilterMatchesWholeWords(t *testing.T) {
	f := newNonVegFilter([]string{"Egg", "Fish", "Bombay duck"})
	out := f.Scrub("Eggplant bharta\nFish fry\nBombay Duck curry\nDal")
	assert.Equal(t, "Eggplant bharta\nDal", out)
	assert.True(t, f.Mentions("fried FISH"))
	assert.False(t, f.Mentions("eggplant"))
}

func TestStageIDAndTierRoundTripThroughJSON(t *testing.T) {
	in := FitnessPlan{Tier: TierModerate}
	data, err := json.Marshal(struct {
		Stage StageID     `json:"stage"`
		Plan  FitnessPlan `json:"plan"`
	}{MedicalRecommendation, in})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"medical_recommendation"`)

	var out struct {
		Stage StageID     `json:"stage"`
		Plan  FitnessPlan `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, MedicalRecommendation, out.Stage)
	assert.Equal(t, TierModerate, out.Plan.Tier)

	id, err := ParseStageID("Fitness Plan")
	require.NoError(t, err)
	assert.Equal(t, FitnessPlanning, id)
	_, err = ParseStageID("dessert")
	assert.Error(t, err)
	var tier FitnessTier
	assert.Error(t, tier.UnmarshalText([]byte("extreme")))
}

func ExampleStageID_Key() {
	fmt.Println(MedicalRecommendation.Key())
	// Output: medical_recommendation
}
