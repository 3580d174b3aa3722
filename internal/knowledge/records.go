// File path: internal/knowledge/records.go
package knowledge

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/nicodishanthj/vitaplan/internal/records"
)

// RecordText renders a survey record as the sentence that gets embedded.
func RecordText(rec records.PatientRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d year old from %s %s, BMI %.1f (%s), %s wealth index.",
		rec.Age, strings.ToLower(rec.Residence), rec.State, rec.BMI, rec.Category, strings.ToLower(rec.Wealth))
	fmt.Fprintf(&b, " Height %.1fcm, weight %.1fkg.", rec.HeightCM, rec.WeightKG)
	switch strings.ToLower(rec.Category) {
	case "obese":
		b.WriteString(" High risk of type 2 diabetes, hypertension and cardiovascular disease; 5-10% weight loss advised.")
	case "overweight":
		b.WriteString(" Moderate metabolic risk; weight management through diet and exercise.")
	case "underweight":
		b.WriteString(" Risk of nutritional deficiency; balanced weight gain advised.")
	default:
		b.WriteString(" Healthy weight range; maintain current habits.")
	}
	return b.String()
}

// RecordDocument wraps a record with the metadata needed to rebuild it from a search hit.
func RecordDocument(rec records.PatientRecord, seq int) schema.Document {
	return schema.Document{
		PageContent: RecordText(rec),
		Metadata: map[string]any{
			MetaSource:     rec.SourceID,
			MetaSeq:        seq,
			MetaKind:       KindRecord,
			"age":          rec.Age,
			"bmi":          rec.BMI,
			"bmi_category": rec.Category,
			"state":        rec.State,
			"residence":    rec.Residence,
			"wealth":       rec.Wealth,
		},
	}
}

// RecordDocuments renders records in the given order.
func RecordDocuments(recs []records.PatientRecord) []schema.Document {
	docs := make([]schema.Document, 0, len(recs))
	for i, rec := range recs {
		docs = append(docs, RecordDocument(rec, i))
	}
	return docs
}
