// File path: internal/api/types.go
package api

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/careplan"
	"github.com/nicodishanthj/vitaplan/internal/plan"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

type planRequest = profile.RawInput

type planResponse struct {
	Plan     plan.TreatmentPlan `json:"plan"`
	Markdown string             `json:"markdown"`
}

type planError struct {
	Kind    careplan.Kind `json:"kind"`
	Message string        `json:"error"`
}

type bmiRequest struct {
	HeightFeet   float64 `json:"height_feet"`
	HeightInches float64 `json:"height_inches"`
	WeightKG     float64 `json:"weight_kg"`
}

type bmiResponse struct {
	BMI      float64             `json:"bmi"`
	Category profile.BMICategory `json:"category"`
}

type guideResponse struct {
	Region      string   `json:"region"`
	Substituted bool     `json:"substituted"`
	Diet        string   `json:"diet"`
	Staples     []string `json:"staples"`
	Dishes      []string `json:"typical_dishes"`
	Proteins    []string `json:"proteins"`
	Vegetables  []string `json:"vegetables"`
	Avoid       []string `json:"avoid"`
	Advice      string   `json:"recommendation,omitempty"`
}

// Markdown renders the guide the way the plan's food guide section lists it.
func (g guideResponse) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Food Guide (%s)\n\n", g.Region, g.Diet)
	if g.Substituted {
		b.WriteString("_Regional data unavailable; showing national guidance._\n\n")
	}
	for _, part := range []struct {
		title string
		items []string
	}{
		{"Staples", g.Staples},
		{"Typical Dishes", g.Dishes},
		{"Protein Sources", g.Proteins},
		{"Vegetables", g.Vegetables},
		{"Limit or Avoid", g.Avoid},
	} {
		fmt.Fprintf(&b, "## %s\n", part.title)
		for _, item := range part.items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}
	if g.Advice != "" {
		fmt.Fprintf(&b, "## Recommendation\n%s\n", g.Advice)
	}
	return b.String()
}

type sampleResponse struct {
	Record records.PatientRecord `json:"record"`
	Intake profile.RawInput      `json:"intake"`
}

type costsResponse struct {
	Costs map[string]reference.PriceRange `json:"costs"`
}
