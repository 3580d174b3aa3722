// File path: internal/profile/normalize.go
package profile

import (
	"fmt"
	"strings"
)

const (
	MinAge = 18
	MaxAge = 80
)

// Normalizer turns raw intake forms into patient profiles using a fixed set of BMI
// thresholds.
type Normalizer struct {
	thresholds Thresholds
}

func NewNormalizer(t Thresholds) (*Normalizer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{thresholds: t}, nil
}

func (n *Normalizer) Thresholds() Thresholds {
	return n.thresholds
}

// Normalize validates raw and builds the canonical profile. It has no side effects.
func (n *Normalizer) Normalize(raw RawInput) (PatientProfile, error) {
	if raw.Age < MinAge || raw.Age > MaxAge {
		return PatientProfile{}, &ValidationError{Field: "age", Reason: fmt.Sprintf("must be between %d and %d", MinAge, MaxAge)}
	}
	if err := checkFinite(raw.HeightFeet, raw.HeightInches, raw.WeightKG, raw.HeightCM); err != nil {
		return PatientProfile{}, err
	}
	heightCM := raw.HeightCM
	if heightCM == 0 {
		if raw.HeightFeet < 0 || raw.HeightInches < 0 {
			return PatientProfile{}, &ValidationError{Field: "height", Reason: "must not be negative"}
		}
		heightCM = FeetInchesToCM(raw.HeightFeet, raw.HeightInches)
	}
	if heightCM <= 0 {
		return PatientProfile{}, &ValidationError{Field: "height", Reason: "must be greater than zero"}
	}
	if raw.WeightKG <= 0 {
		return PatientProfile{}, &ValidationError{Field: "weight", Reason: "must be greater than zero"}
	}

	gender, err := ParseGender(raw.Gender)
	if err != nil {
		return PatientProfile{}, err
	}
	diet, err := ParseDiet(raw.Diet)
	if err != nil {
		return PatientProfile{}, err
	}
	region := strings.TrimSpace(raw.Region)
	if region == "" {
		return PatientProfile{}, &ValidationError{Field: "region", Reason: "is required"}
	}
	residence, err := ParseResidence(raw.Residence)
	if err != nil {
		return PatientProfile{}, err
	}
	wealth, err := ParseWealth(raw.Wealth)
	if err != nil {
		return PatientProfile{}, err
	}
	walking, err := ParseWalking(raw.Walking)
	if err != nil {
		return PatientProfile{}, err
	}
	steps, err := ParseSteps(raw.DailySteps)
	if err != nil {
		return PatientProfile{}, err
	}
	smoking, err := ParseSmoking(raw.Smoking)
	if err != nil {
		return PatientProfile{}, err
	}
	alcohol, err := ParseAlcohol(raw.Alcohol)
	if err != nil {
		return PatientProfile{}, err
	}

	bmi := BMI(heightCM, raw.WeightKG)
	return PatientProfile{
		Age:       raw.Age,
		Gender:    gender,
		HeightCM:  round2(heightCM),
		WeightKG:  raw.WeightKG,
		BMI:       round2(bmi),
		Category:  n.thresholds.Classify(bmi),
		Diet:      diet,
		Walking:   walking,
		Steps:     steps,
		Activity:  DeriveActivity(walking, steps),
		Smoking:   smoking,
		Alcohol:   alcohol,
		Region:    region,
		Residence: residence,
		Wealth:    wealth,
	}, nil
}

// DeriveActivity maps the steps band to a level, falling back to the walking answer
// when the band is unknown. Unknown answers start at the gentlest level.
func DeriveActivity(walking Walking, steps StepsBand) ActivityLevel {
	switch steps {
	case StepsUnder5000:
		return ActivitySedentary
	case Steps5000To10000:
		return ActivityLowActive
	case Steps10000To15000:
		return ActivityActive
	case StepsOver15000:
		return ActivityVeryActive
	}
	if walking == WalkingYes {
		return ActivityLowActive
	}
	return ActivitySedentary
}

func key(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ParseGender(value string) (Gender, error) {
	switch key(value) {
	case "female", "f", "woman":
		return GenderFemale, nil
	case "male", "m", "man":
		return GenderMale, nil
	case "":
		return "", &ValidationError{Field: "gender", Reason: "is required"}
	}
	return "", &ValidationError{Field: "gender", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseDiet(value string) (DietPreference, error) {
	switch key(value) {
	case "vegetarian", "veg", "veggie":
		return DietVegetarian, nil
	case "nonvegetarian", "nonveg":
		return DietNonVegetarian, nil
	case "semivegetarian", "semiveg", "eggetarian":
		return DietSemiVegetarian, nil
	case "":
		return "", &ValidationError{Field: "diet", Reason: "is required"}
	}
	return "", &ValidationError{Field: "diet", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseResidence(value string) (Residence, error) {
	switch key(value) {
	case "urban", "city":
		return ResidenceUrban, nil
	case "rural", "village":
		return ResidenceRural, nil
	case "":
		return "", &ValidationError{Field: "residence", Reason: "is required"}
	}
	return "", &ValidationError{Field: "residence", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseWealth(value string) (WealthTier, error) {
	k := key(value)
	if k == "" {
		return 0, &ValidationError{Field: "wealth", Reason: "is required"}
	}
	for tier, name := range wealthNames {
		if k == key(name) || k == fmt.Sprint(int(tier)) {
			return tier, nil
		}
	}
	return 0, &ValidationError{Field: "wealth", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseWalking(value string) (Walking, error) {
	switch key(value) {
	case "yes", "y":
		return WalkingYes, nil
	case "no", "n":
		return WalkingNo, nil
	case "", "dontknow", "unknown":
		return WalkingUnknown, nil
	}
	return "", &ValidationError{Field: "walking", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseSteps(value string) (StepsBand, error) {
	switch key(value) {
	case key(string(StepsUnder5000)), "under5000", "lessthan5000":
		return StepsUnder5000, nil
	case key(string(Steps5000To10000)), "500010000":
		return Steps5000To10000, nil
	case key(string(Steps10000To15000)), "1000015000":
		return Steps10000To15000, nil
	case key(string(StepsOver15000)), "over15000", "morethan15000":
		return StepsOver15000, nil
	case "", "notapplicable", "na", "unknown":
		return StepsNotApplicable, nil
	}
	return "", &ValidationError{Field: "daily_steps", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseSmoking(value string) (SmokingStatus, error) {
	switch key(value) {
	case "", "never", "neversmoked", "no":
		return SmokingNever, nil
	case "former", "formersmoker", "quit":
		return SmokingFormer, nil
	case "light", "currentsmokerlight", "currentlight":
		return SmokingCurrentLight, nil
	case "heavy", "currentsmokerheavy", "currentheavy":
		return SmokingCurrentHeavy, nil
	}
	return "", &ValidationError{Field: "smoking", Reason: fmt.Sprintf("unrecognised value %q", value)}
}

func ParseAlcohol(value string) (AlcoholUse, error) {
	switch key(value) {
	case "", "never", "no":
		return AlcoholNever, nil
	case "occasionally", "occasional":
		return AlcoholOccasional, nil
	case "moderately", "moderate":
		return AlcoholModerate, nil
	case "frequently", "frequent":
		return AlcoholFrequent, nil
	}
	return "", &ValidationError{Field: "alcohol", Reason: fmt.Sprintf("unrecognised value %q", value)}
}
