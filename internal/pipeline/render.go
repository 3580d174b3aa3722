// File path: internal/pipeline/render.go
package pipeline

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/knowledge"
)

// Summary renders the structured payload as plain text lines.
func (o StageOutput) Summary() string {
	var b strings.Builder
	switch {
	case o.Risk != nil:
		r := o.Risk
		fmt.Fprintf(&b, "Risk level: %s (score %d)\n", r.Level, r.Score)
		for _, f := range r.Factors {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		if r.SimilarRecords > 0 {
			fmt.Fprintf(&b, "Similar records overweight or obese: %.0f%% of %d\n", r.SimilarAtRiskShare*100, r.SimilarRecords)
		}
	case o.Diet != nil:
		d := o.Diet
		fmt.Fprintf(&b, "Region: %s\nDiet: %s\nCalorie target: %s\n", d.Region, d.Diet, d.CalorieTarget)
		writeList(&b, "Staples", d.Staples)
		writeList(&b, "Proteins", d.Proteins)
		writeList(&b, "Dishes", d.Dishes)
		writeList(&b, "Vegetables", d.Vegetables)
		writeList(&b, "Avoid", d.Avoid)
		if d.Recommendation != "" {
			fmt.Fprintf(&b, "Advice: %s\n", d.Recommendation)
		}
		fmt.Fprintf(&b, "Groceries: %s\n", d.GroceryCost)
	case o.Medical != nil:
		m := o.Medical
		b.WriteString("Tests:\n")
		for _, item := range m.Labs {
			fmt.Fprintf(&b, "- %s (%s): %s\n", item.Name, item.Cost, item.Reason)
		}
		if len(m.Medications) > 0 {
			b.WriteString("Medications:\n")
			for _, item := range m.Medications {
				fmt.Fprintf(&b, "- %s (%s): %s\n", item.Name, item.Cost, item.Reason)
			}
		}
		for _, note := range m.Notes {
			fmt.Fprintf(&b, "Note: %s\n", note)
		}
		fmt.Fprintf(&b, "Medical total: %s\n", m.Total)
	case o.Fitness != nil:
		f := o.Fitness
		fmt.Fprintf(&b, "Intensity: %s\n", f.Tier)
		for _, p := range f.Periods {
			fmt.Fprintf(&b, "- %s, %s min/day: %s\n", p.Weeks, p.Minutes, strings.Join(p.Activities, ", "))
		}
		for _, c := range f.Cautions {
			fmt.Fprintf(&b, "Caution: %s\n", c)
		}
	case o.Synthesis != nil:
		s := o.Synthesis
		for _, a := range s.Actions {
			fmt.Fprintf(&b, "- Week %d [%s] %s\n", a.Week, a.Category, a.Text)
		}
		fmt.Fprintf(&b, "Medical: %s\nGroceries: %s\nTotal: %s\n", s.Costs.Medical, s.Costs.Grocery, s.Costs.Total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

// renderPrior formats visible outputs in stage order.
func renderPrior(visible map[StageID]StageOutput) string {
	var parts []string
	for _, id := range StageIDs() {
		out, ok := visible[id]
		if !ok {
			continue
		}
		section := "## " + id.String() + "\n" + out.Summary()
		if text := strings.TrimSpace(out.Text); text != "" {
			section += "\n" + text
		}
		parts = append(parts, section)
	}
	if len(parts) == 0 {
		return "None."
	}
	return strings.Join(parts, "\n\n")
}

func renderPassages(passages []knowledge.Passage) string {
	if len(passages) == 0 {
		return "None available."
	}
	lines := make([]string, 0, len(passages))
	for i, p := range passages {
		source := p.Source()
		if source == "" {
			source = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, source, strings.TrimSpace(p.Content)))
	}
	return strings.Join(lines, "\n")
}
