// File path: internal/plan/plan.go
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/profile"
)

// Section titles in display order.
const (
	SectionTreatment = "Treatment Plan"
	SectionFoodGuide = "Regional Food Guide"
	SectionLogs      = "Stage Logs"
)

// Daily intake limits shown in every food guide.
const (
	SugarLimitGrams = 25
	SaltLimitGrams  = 5
	WaterGlasses    = "8-10"
)

var ErrIncomplete = errors.New("plan: pipeline output incomplete")

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Metadata struct {
	Region            string   `json:"region"`
	ResolvedRegion    string   `json:"resolved_region"`
	RegionSubstituted bool     `json:"region_substituted"`
	ContextLimited    bool     `json:"context_limited"`
	Notes             []string `json:"notes,omitempty"`
	Provider          string   `json:"provider,omitempty"`
}

// TreatmentPlan is the final deliverable for one intake.
type TreatmentPlan struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Profile   profile.PatientProfile  `json:"profile"`
	Treatment Section                 `json:"treatment"`
	FoodGuide Section                 `json:"food_guide"`
	Logs      Section                 `json:"logs"`
	Risk      pipeline.RiskAssessment `json:"risk"`
	Actions   []pipeline.Action       `json:"actions"`
	Costs     pipeline.CostRollup     `json:"costs"`
	Metadata  Metadata                `json:"metadata"`
}

// Sections returns the three sections in display order.
func (t TreatmentPlan) Sections() []Section {
	return []Section{t.Treatment, t.FoodGuide, t.Logs}
}

// Markdown renders the whole report.
func (t TreatmentPlan) Markdown() string {
	parts := make([]string, 0, 3)
	for _, s := range t.Sections() {
		parts = append(parts, "# "+s.Title+"\n\n"+strings.TrimSpace(s.Body))
	}
	return strings.Join(parts, "\n\n---\n\n") + "\n"
}

type Options struct {
	// DisplayName is shown in the summary only.
	DisplayName    string
	Provider       string
	ContextLimited bool
	Notes          []string
	Now            func() time.Time
}

// Synthesize assembles the plan from a completed pipeline run.
func Synthesize(shared *pipeline.SharedContext, p profile.PatientProfile, retrieved ctxbuild.RetrievedContext, opts Options) (TreatmentPlan, error) {
	if shared == nil || !shared.Complete() {
		return TreatmentPlan{}, ErrIncomplete
	}
	outs := shared.Snapshot()
	for i, out := range outs {
		if out.Stage != pipeline.StageID(i+1) {
			return TreatmentPlan{}, fmt.Errorf("%w: output %d is %s", ErrIncomplete, i+1, out.Stage)
		}
	}
	risk, diet, med, fit, syn := outs[0].Risk, outs[1].Diet, outs[2].Medical, outs[3].Fitness, outs[4].Synthesis
	if risk == nil || diet == nil || med == nil || fit == nil || syn == nil {
		return TreatmentPlan{}, fmt.Errorf("%w: missing stage payload", ErrIncomplete)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	meta := Metadata{
		Region:            p.Region,
		ResolvedRegion:    retrieved.Food.Name,
		RegionSubstituted: retrieved.RegionSubstituted,
		ContextLimited:    opts.ContextLimited || retrieved.Limited,
		Provider:          opts.Provider,
	}
	meta.Notes = append(meta.Notes, retrieved.Notes...)
	meta.Notes = append(meta.Notes, opts.Notes...)

	plan := TreatmentPlan{
		ID:        uuid.New().String(),
		CreatedAt: now().UTC(),
		Profile:   p,
		Risk:      *risk,
		Actions:   append([]pipeline.Action(nil), syn.Actions...),
		Costs:     syn.Costs,
		Metadata:  meta,
	}
	plan.Treatment = Section{Title: SectionTreatment, Body: treatmentBody(p, opts.DisplayName, meta, outs)}
	plan.FoodGuide = Section{Title: SectionFoodGuide, Body: foodGuideBody(p, *diet)}
	plan.Logs = Section{Title: SectionLogs, Body: logsBody(outs)}
	return plan, nil
}

func treatmentBody(p profile.PatientProfile, name string, meta Metadata, outs []pipeline.StageOutput) string {
	var b strings.Builder
	b.WriteString("## Patient Summary\n\n")
	if name = strings.TrimSpace(name); name != "" {
		fmt.Fprintf(&b, "**Patient:** %s\n", name)
	}
	feet, inches := profile.CMToFeetInches(p.HeightCM)
	fmt.Fprintf(&b, "**Age:** %d years | **Height:** %.1f cm (%.0f' %.0f\") | **Weight:** %.1f kg\n", p.Age, p.HeightCM, feet, inches, p.WeightKG)
	fmt.Fprintf(&b, "**BMI:** %.2f (%s) | **Location:** %s, %s\n", p.BMI, p.Category, p.Region, p.Residence)
	fmt.Fprintf(&b, "**Dietary Preference:** %s | **Wealth Index:** %s\n", p.Diet, p.Wealth)
	if meta.ContextLimited || len(meta.Notes) > 0 {
		b.WriteString("\n")
		if meta.ContextLimited {
			b.WriteString("> Some reference sources were unavailable; this plan uses limited context.\n")
		}
		for _, note := range meta.Notes {
			fmt.Fprintf(&b, "> %s\n", note)
		}
	}

	for _, out := range outs[:4] {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", out.Stage, out.Summary())
		if text := strings.TrimSpace(out.Text); text != "" {
			fmt.Fprintf(&b, "\n%s\n", text)
		}
	}

	syn := outs[4]
	b.WriteString("\n## Twelve Week Schedule\n\n| Week | Area | Action |\n| --- | --- | --- |\n")
	for _, a := range syn.Synthesis.Actions {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", a.Week, a.Category, strings.ReplaceAll(a.Text, "|", "/"))
	}
	costs := syn.Synthesis.Costs
	fmt.Fprintf(&b, "\n## Estimated Cost\n\n- Medical (tests and first month of medication): %s\n- Groceries: %s\n- Total: %s\n",
		costs.Medical, costs.Grocery, costs.Total)
	if text := strings.TrimSpace(syn.Text); text != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", text)
	}
	return b.String()
}

func foodGuideBody(p profile.PatientProfile, diet pipeline.DietPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Dietary Recommendations: %s\n\n**Dietary Preference:** %s\n", diet.Region, p.Diet)
	list := func(title string, items []string) {
		if len(items) > 0 {
			fmt.Fprintf(&b, "\n### %s\n%s\n", title, strings.Join(items, ", "))
		}
	}
	list("Typical Staples", diet.Staples)
	list("Traditional Dishes", diet.Dishes)
	list(fmt.Sprintf("Recommended Protein Sources (%s)", p.Diet), diet.Proteins)
	list("Local Vegetables", diet.Vegetables)
	if len(diet.Avoid) > 0 {
		b.WriteString("\n### Foods to Avoid\n")
		for _, item := range diet.Avoid {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	if diet.Recommendation != "" {
		fmt.Fprintf(&b, "\n### Recommended Approach (%s)\n%s\n", p.Diet, diet.Recommendation)
	}
	fmt.Fprintf(&b, "\n### Daily Intake Limits\n- Sugar: at most %dg a day (6 teaspoons)\n- Salt: at most %dg a day (1 teaspoon)\n- Water: %s glasses a day\n",
		SugarLimitGrams, SaltLimitGrams, WaterGlasses)
	fmt.Fprintf(&b, "\n**Estimated groceries:** %s\n", diet.GroceryCost)
	return b.String()
}

func logsBody(outs []pipeline.StageOutput) string {
	var b strings.Builder
	for _, out := range outs {
		fence := codeFence(out.Raw)
		fmt.Fprintf(&b, "## %d. %s (%s)\n\n%s\n%s\n%s\n\n", int(out.Stage), out.Stage, out.Duration.Round(time.Millisecond), fence, out.Raw, fence)
	}
	return b.String()
}

// codeFence returns a backtick fence longer than any backtick run inside text.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}
