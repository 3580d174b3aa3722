// File path: internal/pipeline/stages.go
package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// Input is everything the pipeline is allowed to read besides earlier stage outputs.
type Input struct {
	Profile profile.PatientProfile
	Context ctxbuild.RetrievedContext
}

// stageEnv is the view a stage computes from.
type stageEnv struct {
	input  Input
	table  *reference.Table
	prior  map[StageID]StageOutput
	nonVeg *nonVegFilter
}

// Stage couples an identifier with its declared reads and payload builder.
type Stage struct {
	ID    StageID
	Reads []StageID
	build func(env stageEnv) (StageOutput, error)
}

func defaultStages() []Stage {
	return []Stage{
		{ID: RiskAnalysis, build: buildRisk},
		{ID: DietaryPlan, Reads: []StageID{RiskAnalysis}, build: buildDiet},
		{ID: MedicalRecommendation, Reads: []StageID{RiskAnalysis, DietaryPlan}, build: buildMedical},
		{ID: FitnessPlanning, Reads: []StageID{RiskAnalysis}, build: buildFitness},
		{ID: Synthesis, Reads: []StageID{RiskAnalysis, DietaryPlan, MedicalRecommendation, FitnessPlanning}, build: buildSynthesis},
	}
}

const severeBMI = 35.0

func buildRisk(env stageEnv) (StageOutput, error) {
	p := env.input.Profile
	risk := &RiskAssessment{}
	add := func(points int, factor string) {
		risk.Score += points
		risk.Factors = append(risk.Factors, factor)
	}
	switch {
	case p.Category == profile.CategoryObese && p.BMI >= severeBMI:
		add(4, fmt.Sprintf("Severe obesity (BMI %.1f)", p.BMI))
	case p.Category == profile.CategoryObese:
		add(3, fmt.Sprintf("Obesity (BMI %.1f)", p.BMI))
	case p.Category == profile.CategoryOverweight:
		add(2, fmt.Sprintf("Overweight (BMI %.1f)", p.BMI))
	case p.Category == profile.CategoryUnderweight:
		add(1, fmt.Sprintf("Underweight (BMI %.1f)", p.BMI))
	}
	if p.Age >= 40 {
		add(1, fmt.Sprintf("Age %d: raised risk of type 2 diabetes and hypertension", p.Age))
	}
	if p.Smoking.Current() {
		add(1, "Current smoker")
	}
	if p.Alcohol.Regular() {
		add(1, fmt.Sprintf("Alcohol use: %s", strings.ToLower(string(p.Alcohol))))
	}
	if p.Activity <= profile.ActivityLowActive {
		add(1, fmt.Sprintf("Low physical activity (%s)", strings.ToLower(p.Activity.String())))
	}
	if p.Residence == profile.ResidenceUrban && p.Wealth >= profile.WealthRicher {
		add(1, "Urban affluent lifestyle")
	}

	records := env.input.Context.SimilarRecords
	risk.SimilarRecords = len(records)
	if len(records) > 0 {
		atRisk := 0
		for _, rec := range records {
			cat := profile.BMICategory(fmt.Sprint(rec.Metadata["bmi_category"]))
			if cat.Rank() >= profile.CategoryOverweight.Rank() {
				atRisk++
			}
		}
		risk.SimilarAtRiskShare = float64(atRisk) / float64(len(records))
		if risk.SimilarAtRiskShare >= 0.5 {
			add(1, fmt.Sprintf("%d of %d similar survey records are overweight or obese", atRisk, len(records)))
		}
	}

	switch {
	case risk.Score >= 5:
		risk.Level = RiskHigh
	case risk.Score >= 3:
		risk.Level = RiskModerate
	default:
		risk.Level = RiskLow
	}
	return StageOutput{Stage: RiskAnalysis, Risk: risk}, nil
}

func buildDiet(env stageEnv) (StageOutput, error) {
	p := env.input.Profile
	food := env.input.Context.Food
	diet := &DietPlan{
		Region:         food.Name,
		Diet:           string(p.Diet),
		Staples:        cloneStrings(food.Staples),
		Dishes:         cloneStrings(food.TypicalDishes),
		Proteins:       env.table.ProteinsFor(food, p.Diet),
		Vegetables:     cloneStrings(food.Vegetables),
		Avoid:          cloneStrings(food.Avoid),
		Recommendation: food.Recommendation(p.Diet),
		GroceryItem:    reference.GroceryItem(p.Diet),
	}
	if p.Diet == profile.DietVegetarian && len(diet.Proteins) == 0 {
		whitelist := env.table.VegetarianProteins()
		if len(whitelist) > 3 {
			whitelist = whitelist[:3]
		}
		diet.Proteins = whitelist
	}
	if p.Diet == profile.DietVegetarian {
		dishes := diet.Dishes[:0]
		for _, dish := range diet.Dishes {
			if !env.nonVeg.Mentions(dish) {
				dishes = append(dishes, dish)
			}
		}
		diet.Dishes = dishes
		for _, protein := range diet.Proteins {
			if !env.table.IsVegetarianProtein(protein) {
				return StageOutput{}, fmt.Errorf("%w: %s", ErrNonVegetarianProtein, protein)
			}
		}
	}

	diet.CalorieTarget = "Maintain current intake with balanced meals"
	if p.Category.Rank() >= profile.CategoryOverweight.Rank() {
		diet.CalorieTarget = "1500-1700 kcal/day (500-750 kcal daily deficit)"
		if risk := env.prior[RiskAnalysis].Risk; risk != nil && risk.Level == RiskLow {
			diet.CalorieTarget = "1700-1900 kcal/day (about 500 kcal daily deficit)"
		}
	}
	cost, ok := env.table.Cost(diet.GroceryItem)
	if !ok {
		return StageOutput{}, fmt.Errorf("no cost entry for %q", diet.GroceryItem)
	}
	diet.GroceryCost = cost
	return StageOutput{Stage: DietaryPlan, Diet: diet}, nil
}

func buildMedical(env stageEnv) (StageOutput, error) {
	p := env.input.Profile
	med := &MedicalPlan{}
	heavy := p.Category.Rank() >= profile.CategoryOverweight.Rank()
	obese := p.Category == profile.CategoryObese

	addLab := func(name, reason string) {
		med.Labs = append(med.Labs, MedicalItem{Name: name, Kind: reference.KindLab, Reason: reason})
	}
	addMed := func(name, reason string) {
		med.Medications = append(med.Medications, MedicalItem{Name: name, Kind: reference.KindMedication, Reason: reason})
	}

	addLab(reference.ItemFBG, "Screen for diabetes")
	if heavy {
		addLab(reference.ItemLipid, "Cardiovascular risk baseline")
		addLab(reference.ItemThyroid, "Exclude hypothyroidism as a cause of weight gain")
	}
	if obese || p.Age >= 40 {
		addLab(reference.ItemHbA1c, "Three month glucose control")
	}
	if obese || p.Alcohol.Regular() {
		addLab(reference.ItemLFT, "Screen for fatty liver")
	}
	if obese && p.Age >= 40 {
		addLab(reference.ItemKFT, "Baseline before pharmacotherapy")
	}
	addLab(reference.ItemCBC, "General health baseline")
	addLab(reference.ItemVitamins, "Common deficiencies with low sun exposure and vegetarian diets")

	if p.BMI >= 30 {
		addMed(reference.ItemOrlistat, "BMI 30 or above alongside lifestyle change")
	}
	if obese && (p.Age >= 40 || p.Activity == profile.ActivitySedentary) {
		addMed(reference.ItemMetformin, "Obesity with metabolic risk")
		if diet := env.prior[DietaryPlan].Diet; diet != nil && diet.Diet == string(profile.DietVegetarian) {
			med.Notes = append(med.Notes, "Monitor vitamin B12 on metformin with a vegetarian diet")
		}
	}
	if p.BMI >= severeBMI {
		switch p.Wealth {
		case profile.WealthRichest:
			addMed(reference.ItemSemaglutide, "BMI 35 or above, weekly GLP-1 agonist")
		case profile.WealthRicher:
			addMed(reference.ItemLiraglutide, "BMI 35 or above, daily GLP-1 agonist")
		default:
			med.Notes = append(med.Notes, "GLP-1 agonists are indicated but not listed because of cost")
		}
	}
	if p.BMI >= 40 {
		med.Notes = append(med.Notes, "Refer for bariatric surgery evaluation")
	}
	if risk := env.prior[RiskAnalysis].Risk; risk != nil && risk.Level == RiskHigh {
		med.Notes = append(med.Notes, "High risk: review with a physician within two weeks")
	}

	for _, list := range [][]MedicalItem{med.Labs, med.Medications} {
		for i := range list {
			cost, ok := env.table.Cost(list[i].Name)
			if !ok {
				return StageOutput{}, fmt.Errorf("no cost entry for %q", list[i].Name)
			}
			list[i].Cost = cost
			med.Total = med.Total.Add(cost)
		}
	}
	return StageOutput{Stage: MedicalRecommendation, Medical: med}, nil
}

// tierFor maps activity to intensity. Higher activity never yields a lower tier.
func tierFor(activity profile.ActivityLevel) FitnessTier {
	switch {
	case activity >= profile.ActivityVeryActive:
		return TierVigorous
	case activity == profile.ActivityActive:
		return TierModerate
	case activity == profile.ActivityLowActive:
		return TierLight
	default:
		return TierGentle
	}
}

var periodWeeks = []struct {
	label string
	start int
}{
	{"Weeks 1-2", 1},
	{"Weeks 3-4", 3},
	{"Weeks 5-8", 5},
	{"Weeks 9-12", 9},
}

var tierMinutes = map[FitnessTier][4]string{
	TierGentle:   {"15-20", "25-30", "30-40", "40-60"},
	TierLight:    {"20-30", "30-40", "40-50", "45-60"},
	TierModerate: {"30-40", "40-50", "45-60", "60"},
	TierVigorous: {"40-50", "45-60", "60", "60-75"},
}

var residenceActivities = map[profile.Residence][]string{
	profile.ResidenceUrban: {
		"Brisk walking in a park or apartment complex",
		"Stair climbing",
		"Home bodyweight circuit",
		"Yoga classes or online sessions",
	},
	profile.ResidenceRural: {
		"Walking to the fields or market",
		"Cycling",
		"Active household and farm work",
		"Yoga at home",
	},
}

func buildFitness(env stageEnv) (StageOutput, error) {
	p := env.input.Profile
	fit := &FitnessPlan{Tier: tierFor(p.Activity), Residence: string(p.Residence)}
	if p.BMI >= severeBMI && fit.Tier > TierLight {
		fit.Tier = TierLight
		fit.Cautions = append(fit.Cautions, "Keep to low impact work until cleared by a physician")
	}
	if risk := env.prior[RiskAnalysis].Risk; risk != nil && risk.Level == RiskHigh {
		fit.Cautions = append(fit.Cautions, "Stop and seek advice on chest pain, dizziness or breathlessness")
	}
	activities, ok := residenceActivities[p.Residence]
	if !ok {
		activities = residenceActivities[profile.ResidenceUrban]
	}
	fit.Activities = cloneStrings(activities)

	minutes := tierMinutes[fit.Tier]
	steps := [][]string{
		{activities[0], "Light stretching"},
		{activities[0], "Bodyweight exercises 10 minutes"},
		{activities[0], activities[1], "Strength work 15 minutes", activities[3]},
		{activities[0], activities[1], activities[2], "Strength work 20-25 minutes", activities[3]},
	}
	for i, w := range periodWeeks {
		fit.Periods = append(fit.Periods, FitnessPeriod{
			Weeks:      w.label,
			StartWeek:  w.start,
			Minutes:    minutes[i],
			Activities: steps[i],
		})
	}
	return StageOutput{Stage: FitnessPlanning, Fitness: fit}, nil
}

const (
	CategoryDiet    = "Diet"
	CategoryFitness = "Fitness"
	CategoryMedical = "Medical"
)

func buildSynthesis(env stageEnv) (StageOutput, error) {
	risk := env.prior[RiskAnalysis].Risk
	diet := env.prior[DietaryPlan].Diet
	med := env.prior[MedicalRecommendation].Medical
	fit := env.prior[FitnessPlanning].Fitness
	if risk == nil || diet == nil || med == nil || fit == nil {
		return StageOutput{}, fmt.Errorf("synthesis needs all earlier stage outputs")
	}

	var actions []Action
	add := func(week int, category, text string) {
		actions = append(actions, Action{Week: week, Category: category, Text: text})
	}

	labs := make([]string, 0, len(med.Labs))
	for _, lab := range med.Labs {
		labs = append(labs, lab.Name)
	}
	add(1, CategoryMedical, "Complete baseline tests: "+strings.Join(labs, ", "))
	medWeek := 12
	if risk.Level == RiskHigh {
		medWeek = 1
	}
	for _, m := range med.Medications {
		if medWeek == 1 {
			add(medWeek, CategoryMedical, fmt.Sprintf("Discuss starting %s with your physician", m.Name))
		} else {
			add(medWeek, CategoryMedical, fmt.Sprintf("Review whether to start %s if weight loss is under 5%%", m.Name))
		}
	}
	add(4, CategoryMedical, "Monthly review: weight, waist circumference and blood pressure")
	add(12, CategoryMedical, "Three month review: repeat abnormal tests, target 5% weight loss")

	add(1, CategoryDiet, fmt.Sprintf("Start %s built on %s", diet.CalorieTarget, strings.Join(firstN(diet.Staples, 3), ", ")))
	if len(diet.Proteins) > 0 {
		add(1, CategoryDiet, "Include a protein at every meal: "+strings.Join(diet.Proteins, ", "))
	}
	if len(diet.Avoid) > 0 {
		add(2, CategoryDiet, "Cut back on "+strings.Join(diet.Avoid, ", "))
	}

	for _, period := range fit.Periods {
		add(period.StartWeek, CategoryFitness, fmt.Sprintf("%s: %s minutes a day of %s",
			period.Weeks, period.Minutes, strings.ToLower(strings.Join(period.Activities, ", "))))
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Week != actions[j].Week {
			return actions[i].Week < actions[j].Week
		}
		return actions[i].Category < actions[j].Category
	})

	syn := &SynthesisPlan{
		Actions: actions,
		Costs: CostRollup{
			Medical: med.Total,
			Grocery: diet.GroceryCost,
			Total:   med.Total.Add(diet.GroceryCost),
		},
	}
	return StageOutput{Stage: Synthesis, Synthesis: syn}, nil
}

func firstN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

// nonVegFilter drops narrative lines that name a non-vegetarian food.
type nonVegFilter struct {
	re *regexp.Regexp
}

func newNonVegFilter(terms []string) *nonVegFilter {
	if len(terms) == 0 {
		return &nonVegFilter{}
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	// Longest first so "Bombay duck" wins over shorter overlaps.
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return &nonVegFilter{re: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)}
}

func (f *nonVegFilter) Scrub(text string) string {
	if f == nil || f.re == nil {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if f.re.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (f *nonVegFilter) Mentions(text string) bool {
	return f != nil && f.re != nil && f.re.MatchString(text)
}
