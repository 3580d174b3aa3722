// File path: internal/profile/types.go
package profile

import (
	"fmt"
	"strings"
)

type Gender string

const (
	GenderFemale Gender = "Female"
	GenderMale   Gender = "Male"
)

type DietPreference string

const (
	DietVegetarian     DietPreference = "Vegetarian"
	DietNonVegetarian  DietPreference = "Non-Vegetarian"
	DietSemiVegetarian DietPreference = "Semi-Vegetarian"
)

// Diets lists the supported preferences in display order.
func Diets() []DietPreference {
	return []DietPreference{DietVegetarian, DietNonVegetarian, DietSemiVegetarian}
}

// ActivityLevel is ordinal: a higher value means a more active starting point.
type ActivityLevel int

const (
	ActivitySedentary ActivityLevel = iota
	ActivityLowActive
	ActivityActive
	ActivityVeryActive
)

func (a ActivityLevel) String() string {
	switch a {
	case ActivitySedentary:
		return "Sedentary"
	case ActivityLowActive:
		return "Low active"
	case ActivityActive:
		return "Active"
	case ActivityVeryActive:
		return "Very active"
	default:
		return fmt.Sprintf("ActivityLevel(%d)", int(a))
	}
}

func (a ActivityLevel) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ActivityLevel) UnmarshalText(text []byte) error {
	value := string(text)
	for level := ActivitySedentary; level <= ActivityVeryActive; level++ {
		if key(value) == key(level.String()) {
			*a = level
			return nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(value, "ActivityLevel(%d)", &n); err == nil {
		*a = ActivityLevel(n)
		return nil
	}
	return fmt.Errorf("unrecognised activity level %q", value)
}

type Walking string

const (
	WalkingYes     Walking = "Yes"
	WalkingNo      Walking = "No"
	WalkingUnknown Walking = "Don't Know"
)

type StepsBand string

const (
	StepsUnder5000     StepsBand = "Less than 5000 steps"
	Steps5000To10000   StepsBand = "5000-10000 steps"
	Steps10000To15000  StepsBand = "10000-15000 steps"
	StepsOver15000     StepsBand = "More than 15000 steps"
	StepsNotApplicable StepsBand = "Not Applicable"
)

type SmokingStatus string

const (
	SmokingNever        SmokingStatus = "Never smoked"
	SmokingFormer       SmokingStatus = "Former smoker"
	SmokingCurrentLight SmokingStatus = "Current smoker (light)"
	SmokingCurrentHeavy SmokingStatus = "Current smoker (heavy)"
)

// Current reports whether the patient smokes today.
func (s SmokingStatus) Current() bool {
	return s == SmokingCurrentLight || s == SmokingCurrentHeavy
}

type AlcoholUse string

const (
	AlcoholNever      AlcoholUse = "Never"
	AlcoholOccasional AlcoholUse = "Occasionally"
	AlcoholModerate   AlcoholUse = "Moderately"
	AlcoholFrequent   AlcoholUse = "Frequently"
)

// Regular reports moderate or frequent drinking.
func (a AlcoholUse) Regular() bool {
	return a == AlcoholModerate || a == AlcoholFrequent
}

type Residence string

const (
	ResidenceUrban Residence = "Urban"
	ResidenceRural Residence = "Rural"
)

// WealthTier follows the five survey wealth quintiles, poorest first.
type WealthTier int

const (
	WealthPoorest WealthTier = iota + 1
	WealthPoorer
	WealthMiddle
	WealthRicher
	WealthRichest
)

var wealthNames = map[WealthTier]string{
	WealthPoorest: "Poorest",
	WealthPoorer:  "Poorer",
	WealthMiddle:  "Middle",
	WealthRicher:  "Richer",
	WealthRichest: "Richest",
}

func (w WealthTier) String() string {
	if name, ok := wealthNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WealthTier(%d)", int(w))
}

func (w WealthTier) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WealthTier) UnmarshalText(text []byte) error {
	value := string(text)
	var n int
	if _, err := fmt.Sscanf(value, "WealthTier(%d)", &n); err == nil {
		*w = WealthTier(n)
		return nil
	}
	tier, err := ParseWealth(value)
	if err != nil {
		return err
	}
	*w = tier
	return nil
}

// Valid reports whether w is one of the five quintiles.
func (w WealthTier) Valid() bool {
	_, ok := wealthNames[w]
	return ok
}

type BMICategory string

const (
	CategoryUnderweight BMICategory = "Underweight"
	CategoryNormal      BMICategory = "Normal"
	CategoryOverweight  BMICategory = "Overweight"
	CategoryObese       BMICategory = "Obese"
)

// Rank orders categories from lightest to heaviest.
func (c BMICategory) Rank() int {
	switch c {
	case CategoryUnderweight:
		return 0
	case CategoryNormal:
		return 1
	case CategoryOverweight:
		return 2
	case CategoryObese:
		return 3
	default:
		return -1
	}
}

// RawInput carries the intake form as submitted. Name is display only and is never
// logged or persisted.
type RawInput struct {
	Name         string  `json:"name,omitempty"`
	Age          int     `json:"age"`
	Gender       string  `json:"gender"`
	HeightFeet   float64 `json:"height_feet"`
	HeightInches float64 `json:"height_inches"`
	HeightCM     float64 `json:"height_cm,omitempty"`
	WeightKG     float64 `json:"weight_kg"`
	Diet         string  `json:"diet"`
	Walking      string  `json:"walking,omitempty"`
	DailySteps   string  `json:"daily_steps,omitempty"`
	Smoking      string  `json:"smoking,omitempty"`
	Alcohol      string  `json:"alcohol,omitempty"`
	Region       string  `json:"region"`
	Residence    string  `json:"residence"`
	Wealth       string  `json:"wealth"`
}

// PatientProfile is the canonical, validated view of one intake. Values are copied on
// construction and nothing mutates them afterwards.
type PatientProfile struct {
	Age       int            `json:"age"`
	Gender    Gender         `json:"gender"`
	HeightCM  float64        `json:"height_cm"`
	WeightKG  float64        `json:"weight_kg"`
	BMI       float64        `json:"bmi"`
	Category  BMICategory    `json:"bmi_category"`
	Diet      DietPreference `json:"diet"`
	Walking   Walking        `json:"walking"`
	Steps     StepsBand      `json:"daily_steps"`
	Activity  ActivityLevel  `json:"activity_level"`
	Smoking   SmokingStatus  `json:"smoking"`
	Alcohol   AlcoholUse     `json:"alcohol"`
	Region    string         `json:"region"`
	Residence Residence      `json:"residence"`
	Wealth    WealthTier     `json:"wealth"`
}

// Summary renders a short one-line description used in prompts and queries.
func (p PatientProfile) Summary() string {
	return fmt.Sprintf("%d year old %s from %s %s, BMI %.2f (%s), %s diet, %s, %s wealth index",
		p.Age, strings.ToLower(string(p.Gender)), strings.ToLower(string(p.Residence)), p.Region,
		p.BMI, p.Category, strings.ToLower(string(p.Diet)), strings.ToLower(p.Activity.String()),
		strings.ToLower(p.Wealth.String()))
}

// ValidationError reports a field that is missing or outside the accepted range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
