// File path: internal/profile/bmi.go
package profile

import (
	"errors"
	"math"
)

const (
	cmPerInch     = 2.54
	inchesPerFoot = 12
)

// Thresholds holds the lower bound of each category above Underweight.
// A BMI below Underweight is underweight, below Overweight is normal, below Obese is
// overweight, and anything else is obese.
type Thresholds struct {
	Underweight float64 `yaml:"underweight" json:"underweight"`
	Overweight  float64 `yaml:"overweight" json:"overweight"`
	Obese       float64 `yaml:"obese" json:"obese"`
}

var (
	// AsianThresholds are the cutoffs recommended for South Asian populations.
	AsianThresholds = Thresholds{Underweight: 18.5, Overweight: 23, Obese: 27.5}
	// WHOThresholds are the general international cutoffs.
	WHOThresholds = Thresholds{Underweight: 18.5, Overweight: 25, Obese: 30}
)

func (t Thresholds) Validate() error {
	if t.Underweight <= 0 || t.Overweight <= 0 || t.Obese <= 0 {
		return errors.New("bmi thresholds must be positive")
	}
	if !(t.Underweight < t.Overweight && t.Overweight < t.Obese) {
		return errors.New("bmi thresholds must be strictly ascending")
	}
	return nil
}

func (t Thresholds) Classify(bmi float64) BMICategory {
	switch {
	case bmi < t.Underweight:
		return CategoryUnderweight
	case bmi < t.Overweight:
		return CategoryNormal
	case bmi < t.Obese:
		return CategoryOverweight
	default:
		return CategoryObese
	}
}

// BMI returns weight / height² with height in centimetres.
func BMI(heightCM, weightKG float64) float64 {
	m := heightCM / 100
	return weightKG / (m * m)
}

func FeetInchesToCM(feet, inches float64) float64 {
	return (feet*inchesPerFoot + inches) * cmPerInch
}

// CMToFeetInches splits a height into whole feet and remaining inches.
func CMToFeetInches(cm float64) (float64, float64) {
	total := cm / cmPerInch
	feet := math.Floor(total / inchesPerFoot)
	return feet, total - feet*inchesPerFoot
}

// ComputeBMI is the live preview calculation: it validates the measurements, returns
// BMI rounded to two decimals and the category of the unrounded value.
func ComputeBMI(heightFeet, heightInches, weightKG float64, t Thresholds) (float64, BMICategory, error) {
	if err := checkFinite(heightFeet, heightInches, weightKG); err != nil {
		return 0, "", err
	}
	if heightFeet < 0 || heightInches < 0 {
		return 0, "", &ValidationError{Field: "height", Reason: "must not be negative"}
	}
	heightCM := FeetInchesToCM(heightFeet, heightInches)
	if heightCM <= 0 {
		return 0, "", &ValidationError{Field: "height", Reason: "must be greater than zero"}
	}
	if weightKG <= 0 {
		return 0, "", &ValidationError{Field: "weight", Reason: "must be greater than zero"}
	}
	bmi := BMI(heightCM, weightKG)
	return round2(bmi), t.Classify(bmi), nil
}

// checkFinite rejects NaN and infinite measurements, which slip past range checks.
func checkFinite(heightFeet, heightInches, weightKG float64, heightCM ...float64) error {
	for _, v := range append([]float64{heightFeet, heightInches}, heightCM...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "height", Reason: "must be a finite number"}
		}
	}
	if math.IsNaN(weightKG) || math.IsInf(weightKG, 0) {
		return &ValidationError{Field: "weight", Reason: "must be a finite number"}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
