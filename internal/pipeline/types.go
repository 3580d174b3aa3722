// File path: internal/pipeline/types.go
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// StageID numbers the five stages in execution order.
type StageID int

const (
	RiskAnalysis StageID = iota + 1
	DietaryPlan
	MedicalRecommendation
	FitnessPlanning
	Synthesis
)

// StageIDs lists every stage in execution order.
func StageIDs() []StageID {
	return []StageID{RiskAnalysis, DietaryPlan, MedicalRecommendation, FitnessPlanning, Synthesis}
}

func (s StageID) String() string {
	switch s {
	case RiskAnalysis:
		return "Risk Analysis"
	case DietaryPlan:
		return "Dietary Plan"
	case MedicalRecommendation:
		return "Medical Recommendation"
	case FitnessPlanning:
		return "Fitness Plan"
	case Synthesis:
		return "Synthesis"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Key is the stable identifier used for graph nodes, prompts and metrics.
func (s StageID) Key() string {
	return strings.ReplaceAll(strings.ToLower(s.String()), " ", "_")
}

func (s StageID) MarshalText() ([]byte, error) {
	return []byte(s.Key()), nil
}

func (s *StageID) UnmarshalText(text []byte) error {
	id, err := ParseStageID(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// ParseStageID accepts a stage key or display name.
func ParseStageID(value string) (StageID, error) {
	value = strings.TrimSpace(value)
	for _, id := range StageIDs() {
		if value == id.Key() || strings.EqualFold(value, id.String()) {
			return id, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(value, "stage(%d)", &n); err == nil {
		return StageID(n), nil
	}
	return 0, fmt.Errorf("unknown stage %q", value)
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   int       `json:"score"`
	Factors []string  `json:"factors"`
	// Share of similar survey records that are overweight or obese.
	SimilarRecords     int     `json:"similar_records"`
	SimilarAtRiskShare float64 `json:"similar_at_risk_share"`
}

type DietPlan struct {
	Region         string               `json:"region"`
	Diet           string               `json:"diet"`
	Staples        []string             `json:"staples"`
	Dishes         []string             `json:"dishes"`
	Proteins       []string             `json:"proteins"`
	Vegetables     []string             `json:"vegetables"`
	Avoid          []string             `json:"avoid"`
	Recommendation string               `json:"recommendation"`
	CalorieTarget  string               `json:"calorie_target"`
	GroceryItem    string               `json:"grocery_item"`
	GroceryCost    reference.PriceRange `json:"grocery_cost"`
}

type MedicalItem struct {
	Name   string               `json:"name"`
	Kind   string               `json:"kind"`
	Reason string               `json:"reason"`
	Cost   reference.PriceRange `json:"cost"`
}

type MedicalPlan struct {
	Labs        []MedicalItem        `json:"labs"`
	Medications []MedicalItem        `json:"medications"`
	Notes       []string             `json:"notes,omitempty"`
	Total       reference.PriceRange `json:"total"`
}

// Items returns labs followed by medications.
func (m MedicalPlan) Items() []MedicalItem {
	out := make([]MedicalItem, 0, len(m.Labs)+len(m.Medications))
	out = append(out, m.Labs...)
	return append(out, m.Medications...)
}

// FitnessTier orders exercise intensity, gentlest first.
type FitnessTier int

const (
	TierGentle FitnessTier = iota
	TierLight
	TierModerate
	TierVigorous
)

func (t FitnessTier) String() string {
	switch t {
	case TierGentle:
		return "Gentle"
	case TierLight:
		return "Light"
	case TierModerate:
		return "Moderate"
	case TierVigorous:
		return "Vigorous"
	default:
		return fmt.Sprintf("FitnessTier(%d)", int(t))
	}
}

func (t FitnessTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FitnessTier) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	for tier := TierGentle; tier <= TierVigorous; tier++ {
		if strings.EqualFold(value, tier.String()) {
			*t = tier
			return nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(value, "FitnessTier(%d)", &n); err == nil {
		*t = FitnessTier(n)
		return nil
	}
	return fmt.Errorf("unknown fitness tier %q", value)
}

type FitnessPeriod struct {
	Weeks      string   `json:"weeks"`
	StartWeek  int      `json:"start_week"`
	Minutes    string   `json:"minutes_per_day"`
	Activities []string `json:"activities"`
}

type FitnessPlan struct {
	Tier       FitnessTier     `json:"tier"`
	Residence  string          `json:"residence"`
	Periods    []FitnessPeriod `json:"periods"`
	Activities []string        `json:"activities"`
	Cautions   []string        `json:"cautions,omitempty"`
}

// Action is one dated step in the final plan.
type Action struct {
	Week     int    `json:"week"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

type CostRollup struct {
	Medical reference.PriceRange `json:"medical"`
	Grocery reference.PriceRange `json:"grocery"`
	Total   reference.PriceRange `json:"total"`
}

type SynthesisPlan struct {
	Actions []Action   `json:"actions"`
	Costs   CostRollup `json:"costs"`
}

// StageOutput is what one stage appends to the shared context. Raw is the generated
// narrative verbatim; Text is the narrative used in the plan.
type StageOutput struct {
	Stage     StageID         `json:"stage"`
	Raw       string          `json:"raw"`
	Text      string          `json:"text"`
	Risk      *RiskAssessment `json:"risk,omitempty"`
	Diet      *DietPlan       `json:"diet,omitempty"`
	Medical   *MedicalPlan    `json:"medical,omitempty"`
	Fitness   *FitnessPlan    `json:"fitness,omitempty"`
	Synthesis *SynthesisPlan  `json:"synthesis,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

func (o StageOutput) clone() StageOutput {
	out := o
	if o.Risk != nil {
		r := *o.Risk
		r.Factors = cloneStrings(o.Risk.Factors)
		out.Risk = &r
	}
	if o.Diet != nil {
		d := *o.Diet
		d.Staples = cloneStrings(o.Diet.Staples)
		d.Dishes = cloneStrings(o.Diet.Dishes)
		d.Proteins = cloneStrings(o.Diet.Proteins)
		d.Vegetables = cloneStrings(o.Diet.Vegetables)
		d.Avoid = cloneStrings(o.Diet.Avoid)
		out.Diet = &d
	}
	if o.Medical != nil {
		m := *o.Medical
		m.Labs = append([]MedicalItem(nil), o.Medical.Labs...)
		m.Medications = append([]MedicalItem(nil), o.Medical.Medications...)
		m.Notes = cloneStrings(o.Medical.Notes)
		out.Medical = &m
	}
	if o.Fitness != nil {
		f := *o.Fitness
		f.Periods = make([]FitnessPeriod, len(o.Fitness.Periods))
		for i, p := range o.Fitness.Periods {
			p.Activities = cloneStrings(p.Activities)
			f.Periods[i] = p
		}
		f.Activities = cloneStrings(o.Fitness.Activities)
		f.Cautions = cloneStrings(o.Fitness.Cautions)
		out.Fitness = &f
	}
	if o.Synthesis != nil {
		s := *o.Synthesis
		s.Actions = append([]Action(nil), o.Synthesis.Actions...)
		out.Synthesis = &s
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
