// File path: internal/profile/profile_test.go
package profile

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() RawInput {
	return RawInput{
		Name:         "Test Patient",
		Age:          45,
		Gender:       "Female",
		HeightFeet:   5,
		HeightInches: 4,
		WeightKG:     80,
		Diet:         "Vegetarian",
		Walking:      "No",
		DailySteps:   "Less than 5000 steps",
		Smoking:      "Never smoked",
		Alcohol:      "Never",
		Region:       "Punjab",
		Residence:    "Urban",
		Wealth:       "Middle",
	}
}

func TestNormalizeReferenceIntake(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)

	p, err := n.Normalize(validInput())
	require.NoError(t, err)

	assert.InDelta(t, 162.56, p.HeightCM, 0.01)
	assert.InDelta(t, 30.27, p.BMI, 0.01)
	assert.Equal(t, CategoryObese, p.Category)
	assert.Equal(t, DietVegetarian, p.Diet)
	assert.Equal(t, ActivitySedentary, p.Activity)
	assert.Equal(t, ResidenceUrban, p.Residence)
	assert.Equal(t, WealthMiddle, p.Wealth)
	assert.Equal(t, "Punjab", p.Region)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)
	a, err := n.Normalize(validInput())
	require.NoError(t, err)
	b, err := n.Normalize(validInput())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeValidation(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func(*RawInput)
		field  string
	}{
		"too young":       {func(r *RawInput) { r.Age = 17 }, "age"},
		"too old":         {func(r *RawInput) { r.Age = 81 }, "age"},
		"zero height":     {func(r *RawInput) { r.HeightFeet, r.HeightInches = 0, 0 }, "height"},
		"negative inches": {func(r *RawInput) { r.HeightInches = -1 }, "height"},
		"zero weight":     {func(r *RawInput) { r.WeightKG = 0 }, "weight"},
		"missing gender":  {func(r *RawInput) { r.Gender = "" }, "gender"},
		"missing diet":    {func(r *RawInput) { r.Diet = " " }, "diet"},
		"unknown diet":    {func(r *RawInput) { r.Diet = "carnivore" }, "diet"},
		"missing region":  {func(r *RawInput) { r.Region = "" }, "region"},
		"missing home":    {func(r *RawInput) { r.Residence = "" }, "residence"},
		"missing wealth":  {func(r *RawInput) { r.Wealth = "" }, "wealth"},
		"bad smoking":     {func(r *RawInput) { r.Smoking = "sometimes" }, "smoking"},
		"NaN weight":      {func(r *RawInput) { r.WeightKG = math.NaN() }, "weight"},
		"infinite weight": {func(r *RawInput) { r.WeightKG = math.Inf(1) }, "weight"},
		"infinite feet":   {func(r *RawInput) { r.HeightFeet = math.Inf(1) }, "height"},
		"NaN centimetres": {func(r *RawInput) { r.HeightCM = math.NaN() }, "height"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw := validInput()
			tc.mutate(&raw)
			_, err := n.Normalize(raw)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNormalizeBoundaryAges(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)
	for _, age := range []int{MinAge, MaxAge} {
		raw := validInput()
		raw.Age = age
		_, err := n.Normalize(raw)
		assert.NoError(t, err, "age %d", age)
	}
}

func TestNormalizeOptionalDefaults(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)
	raw := validInput()
	raw.Walking, raw.DailySteps, raw.Smoking, raw.Alcohol = "", "", "", ""
	p, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, WalkingUnknown, p.Walking)
	assert.Equal(t, StepsNotApplicable, p.Steps)
	assert.Equal(t, SmokingNever, p.Smoking)
	assert.Equal(t, AlcoholNever, p.Alcohol)
	assert.Equal(t, ActivitySedentary, p.Activity)
}

func TestNormalizeAcceptsCentimetres(t *testing.T) {
	n, err := NewNormalizer(AsianThresholds)
	require.NoError(t, err)
	raw := validInput()
	raw.HeightFeet, raw.HeightInches, raw.HeightCM = 0, 0, 170
	raw.WeightKG = 70
	p, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.InDelta(t, 24.22, p.BMI, 0.01)
	assert.Equal(t, CategoryOverweight, p.Category)
}

func TestParseShortForms(t *testing.T) {
	diet, err := ParseDiet("non-veg")
	require.NoError(t, err)
	assert.Equal(t, DietNonVegetarian, diet)

	diet, err = ParseDiet("Semi-Vegetarian")
	require.NoError(t, err)
	assert.Equal(t, DietSemiVegetarian, diet)

	wealth, err := ParseWealth("4")
	require.NoError(t, err)
	assert.Equal(t, WealthRicher, wealth)

	steps, err := ParseSteps("10000-15000 steps")
	require.NoError(t, err)
	assert.Equal(t, Steps10000To15000, steps)
}

func TestDeriveActivityOrdering(t *testing.T) {
	assert.Equal(t, ActivityLowActive, DeriveActivity(WalkingYes, StepsNotApplicable))
	assert.Equal(t, ActivitySedentary, DeriveActivity(WalkingNo, StepsNotApplicable))
	assert.Equal(t, ActivityVeryActive, DeriveActivity(WalkingNo, StepsOver15000))
	assert.Less(t, int(DeriveActivity(WalkingNo, StepsUnder5000)), int(DeriveActivity(WalkingNo, Steps5000To10000)))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, AsianThresholds.Validate())
	assert.NoError(t, WHOThresholds.Validate())
	assert.Error(t, Thresholds{Underweight: 18.5, Overweight: 18.5, Obese: 30}.Validate())
	assert.Error(t, Thresholds{Underweight: 0, Overweight: 23, Obese: 27.5}.Validate())
	_, err := NewNormalizer(Thresholds{Underweight: 30, Overweight: 25, Obese: 20})
	assert.Error(t, err)
}

func TestComputeBMIMatchesFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		feet := float64(4 + rng.Intn(3))
		inches := float64(rng.Intn(12))
		weight := 35 + rng.Float64()*110
		bmi, _, err := ComputeBMI(feet, inches, weight, AsianThresholds)
		require.NoError(t, err)
		m := FeetInchesToCM(feet, inches) / 100
		assert.InDelta(t, weight/(m*m), bmi, 0.0051)
	}
}

func TestClassificationIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, th := range []Thresholds{AsianThresholds, WHOThresholds} {
		for i := 0; i < 1000; i++ {
			a := 10 + rng.Float64()*40
			b := 10 + rng.Float64()*40
			lo, hi := math.Min(a, b), math.Max(a, b)
			assert.LessOrEqual(t, th.Classify(lo).Rank(), th.Classify(hi).Rank(), "bmi %.3f vs %.3f", lo, hi)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	assert.Equal(t, CategoryUnderweight, AsianThresholds.Classify(18.49))
	assert.Equal(t, CategoryNormal, AsianThresholds.Classify(18.5))
	assert.Equal(t, CategoryOverweight, AsianThresholds.Classify(23))
	assert.Equal(t, CategoryObese, AsianThresholds.Classify(27.5))
	assert.Equal(t, CategoryOverweight, WHOThresholds.Classify(27.5))
}

func TestComputeBMIRejectsInvalid(t *testing.T) {
	_, _, err := ComputeBMI(0, 0, 70, AsianThresholds)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "height", verr.Field)

	_, _, err = ComputeBMI(5, 6, -1, AsianThresholds)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "weight", verr.Field)
}

func TestComputeBMIRejectsNonFinite(t *testing.T) {
	cases := []struct {
		feet, inches, weight float64
		field                string
	}{
		{5, 4, math.NaN(), "weight"},
		{5, 4, math.Inf(1), "weight"},
		{math.Inf(1), 0, 80, "height"},
		{5, math.NaN(), 80, "height"},
		{math.Inf(-1), 0, 80, "height"},
	}
	for _, tc := range cases {
		_, _, err := ComputeBMI(tc.feet, tc.inches, tc.weight, AsianThresholds)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "feet=%v inches=%v weight=%v", tc.feet, tc.inches, tc.weight)
		assert.Equal(t, tc.field, verr.Field)
	}
}

func TestTextEncodedLevelsRoundTrip(t *testing.T) {
	for level := ActivitySedentary; level <= ActivityVeryActive; level++ {
		text, err := level.MarshalText()
		require.NoError(t, err)
		var back ActivityLevel
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, level, back)
	}
	for tier := WealthPoorest; tier <= WealthRichest; tier++ {
		text, err := tier.MarshalText()
		require.NoError(t, err)
		var back WealthTier
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, tier, back)
	}
	var zero WealthTier
	require.NoError(t, zero.UnmarshalText([]byte("WealthTier(0)")))
	assert.Equal(t, WealthTier(0), zero)

	var level ActivityLevel
	assert.Error(t, level.UnmarshalText([]byte("couch")))
	var tier WealthTier
	assert.Error(t, tier.UnmarshalText([]byte("Royal")))
}

func TestCMToFeetInchesRoundTrip(t *testing.T) {
	feet, inches := CMToFeetInches(FeetInchesToCM(5, 7))
	assert.Equal(t, 5.0, feet)
	assert.InDelta(t, 7.0, inches, 1e-9)
}
