// File path: internal/records/types.go
package records

import (
	"math"
	"time"

	"github.com/nicodishanthj/vitaplan/internal/profile"
)

// PatientRecord is one anonymised survey row.
type PatientRecord struct {
	ID        int64   `db:"id" json:"id"`
	SourceID  string  `db:"source_id" json:"source_id"`
	Age       int     `db:"age" json:"age"`
	HeightCM  float64 `db:"height_cm" json:"height_cm"`
	WeightKG  float64 `db:"weight_kg" json:"weight_kg"`
	BMI       float64 `db:"bmi" json:"bmi"`
	Category  string  `db:"bmi_category" json:"bmi_category"`
	State     string  `db:"state" json:"state"`
	Residence string  `db:"residence" json:"residence"`
	Wealth    string  `db:"wealth" json:"wealth"`
}

// Intake prefills an intake form from the record. Survey rows carry no diet, so
// the sample defaults to vegetarian.
func (r PatientRecord) Intake() profile.RawInput {
	feet, inches := profile.CMToFeetInches(r.HeightCM)
	return profile.RawInput{
		Age:          r.Age,
		HeightFeet:   feet,
		HeightInches: math.Round(inches*10) / 10,
		HeightCM:     r.HeightCM,
		WeightKG:     r.WeightKG,
		Diet:         string(profile.DietVegetarian),
		Region:       r.State,
		Residence:    r.Residence,
		Wealth:       r.Wealth,
	}
}

// Criteria filters records. Empty fields match everything and matching is
// case-insensitive.
type Criteria struct {
	State     string `json:"state,omitempty"`
	Residence string `json:"residence,omitempty"`
	Category  string `json:"bmi_category,omitempty"`
	Wealth    string `json:"wealth,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Stats summarises the imported dataset.
type Stats struct {
	Count      int            `json:"count"`
	MeanBMI    float64        `json:"mean_bmi"`
	Categories map[string]int `json:"categories"`
	States     int            `json:"states"`
}

// UsageEntry is an anonymised plan request. It never carries a name.
type UsageEntry struct {
	ID                int64     `db:"id" json:"id"`
	RequestID         string    `db:"request_id" json:"request_id"`
	Age               int       `db:"age" json:"age"`
	Gender            string    `db:"gender" json:"gender"`
	BMI               float64   `db:"bmi" json:"bmi"`
	Category          string    `db:"bmi_category" json:"bmi_category"`
	Diet              string    `db:"diet" json:"diet"`
	Region            string    `db:"region" json:"region"`
	Residence         string    `db:"residence" json:"residence"`
	Wealth            string    `db:"wealth" json:"wealth"`
	Outcome           string    `db:"outcome" json:"outcome"`
	RegionSubstituted bool      `db:"region_substituted" json:"region_substituted"`
	ContextLimited    bool      `db:"context_limited" json:"context_limited"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
