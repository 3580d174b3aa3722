// File path: internal/reference/reference.go
package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nicodishanthj/vitaplan/internal/profile"
)

//go:embed data/reference.yaml
var defaultData []byte

const (
	KindMedication = "medication"
	KindLab        = "lab"
	KindGrocery    = "grocery"

	maxTopK = 10
)

// Cost table items the medical and dietary stages may emit.
const (
	ItemOrlistat    = "Orlistat 120mg"
	ItemMetformin   = "Metformin 500mg"
	ItemSemaglutide = "Semaglutide"
	ItemLiraglutide = "Liraglutide"
	ItemFBG         = "Fasting Blood Glucose"
	ItemHbA1c       = "HbA1c"
	ItemLipid       = "Lipid Profile"
	ItemThyroid     = "Thyroid Function Test"
	ItemLFT         = "Liver Function Test"
	ItemKFT         = "Kidney Function Test"
	ItemCBC         = "Complete Blood Count"
	ItemVitamins    = "Vitamin D and B12"
)

// GroceryItem names the monthly grocery estimate for a diet.
func GroceryItem(diet profile.DietPreference) string {
	return fmt.Sprintf("Monthly groceries (%s)", diet)
}

// RequiredCostItems lists every key that must be present in the cost table.
func RequiredCostItems() []string {
	items := []string{
		ItemOrlistat, ItemMetformin, ItemSemaglutide, ItemLiraglutide,
		ItemFBG, ItemHbA1c, ItemLipid, ItemThyroid, ItemLFT, ItemKFT, ItemCBC, ItemVitamins,
	}
	for _, diet := range profile.Diets() {
		items = append(items, GroceryItem(diet))
	}
	return items
}

// PriceRange is an INR estimate.
type PriceRange struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Unit string  `yaml:"unit" json:"unit,omitempty"`
	Kind string  `yaml:"kind" json:"kind,omitempty"`
}

// Add sums two ranges. Unit and kind are dropped since a sum mixes them.
func (p PriceRange) Add(o PriceRange) PriceRange {
	return PriceRange{Min: p.Min + o.Min, Max: p.Max + o.Max}
}

func (p PriceRange) String() string {
	s := fmt.Sprintf("₹%s-%s", formatINR(p.Min), formatINR(p.Max))
	if p.Unit != "" {
		s += "/" + p.Unit
	}
	return s
}

func formatINR(v float64) string {
	whole := fmt.Sprintf("%.0f", v)
	if len(whole) <= 3 {
		return whole
	}
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	return whole + "," + strings.Join(parts, ",")
}

// RegionalFood is the food reference for one region.
type RegionalFood struct {
	Name            string            `yaml:"-" json:"name"`
	Staples         []string          `yaml:"staples" json:"staples"`
	TypicalDishes   []string          `yaml:"typical_dishes" json:"typical_dishes"`
	Proteins        []string          `yaml:"proteins" json:"proteins"`
	Vegetables      []string          `yaml:"vegetables" json:"vegetables"`
	Avoid           []string          `yaml:"avoid" json:"avoid"`
	Recommendations map[string]string `yaml:"recommendations" json:"recommendations"`
}

// Recommendation returns the dietary advice for diet.
func (r RegionalFood) Recommendation(diet profile.DietPreference) string {
	return r.Recommendations[string(diet)]
}

func (r RegionalFood) clone() RegionalFood {
	out := r
	out.Staples = cloneStrings(r.Staples)
	out.TypicalDishes = cloneStrings(r.TypicalDishes)
	out.Proteins = cloneStrings(r.Proteins)
	out.Vegetables = cloneStrings(r.Vegetables)
	out.Avoid = cloneStrings(r.Avoid)
	out.Recommendations = make(map[string]string, len(r.Recommendations))
	for k, v := range r.Recommendations {
		out.Recommendations[k] = v
	}
	return out
}

// UnknownRegionError is returned by Lookup for regions missing from the food table.
type UnknownRegionError struct {
	Region string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("unknown region %q", e.Region)
}

type document struct {
	Thresholds         profile.Thresholds      `yaml:"bmi_thresholds"`
	RAGTopK            int                     `yaml:"rag_top_k"`
	RecordCount        int                     `yaml:"record_count"`
	VegetarianProteins []string                `yaml:"vegetarian_proteins"`
	NonVegetarianTerms []string                `yaml:"non_vegetarian_terms"`
	DefaultRegion      string                  `yaml:"default_region"`
	States             []string                `yaml:"states"`
	Regions            map[string]RegionalFood `yaml:"regions"`
	Costs              map[string]PriceRange   `yaml:"costs"`
}

// Table is the validated, read-only reference data. Accessors return copies.
type Table struct {
	thresholds    profile.Thresholds
	topK          int
	recordCount   int
	vegProteins   []string
	vegSet        map[string]struct{}
	nonVegTerms   []string
	defaultRegion string
	states        []string
	regions       map[string]RegionalFood
	regionNames   []string
	costs         map[string]PriceRange
}

// Default loads the embedded reference data.
func Default() (*Table, error) {
	return Load(defaultData)
}

func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read reference data: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML reference document.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	if doc.RAGTopK == 0 {
		doc.RAGTopK = 3
	}
	if doc.RecordCount == 0 {
		doc.RecordCount = 3
	}
	t := &Table{
		thresholds:    doc.Thresholds,
		topK:          doc.RAGTopK,
		recordCount:   doc.RecordCount,
		vegProteins:   cloneStrings(doc.VegetarianProteins),
		vegSet:        make(map[string]struct{}, len(doc.VegetarianProteins)),
		nonVegTerms:   cloneStrings(doc.NonVegetarianTerms),
		defaultRegion: strings.TrimSpace(doc.DefaultRegion),
		states:        cloneStrings(doc.States),
		regions:       make(map[string]RegionalFood, len(doc.Regions)),
		costs:         make(map[string]PriceRange, len(doc.Costs)),
	}
	for _, p := range doc.VegetarianProteins {
		t.vegSet[foodKey(p)] = struct{}{}
	}
	for name, food := range doc.Regions {
		name = strings.TrimSpace(name)
		food.Name = name
		t.regions[strings.ToLower(name)] = food.clone()
		t.regionNames = append(t.regionNames, name)
	}
	sort.Strings(t.regionNames)
	for item, price := range doc.Costs {
		t.costs[strings.TrimSpace(item)] = price
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate fails fast on malformed reference data.
func (t *Table) Validate() error {
	var errs []error
	if err := t.thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if t.topK < 1 || t.topK > maxTopK {
		errs = append(errs, fmt.Errorf("rag_top_k must be between 1 and %d", maxTopK))
	}
	if t.recordCount < 1 {
		errs = append(errs, errors.New("record_count must be positive"))
	}
	if len(t.vegSet) == 0 {
		errs = append(errs, errors.New("vegetarian_proteins must not be empty"))
	}
	for _, term := range t.nonVegTerms {
		if t.IsVegetarianProtein(term) {
			errs = append(errs, fmt.Errorf("%q is listed as both vegetarian and non-vegetarian", term))
		}
	}
	if t.defaultRegion == "" {
		errs = append(errs, errors.New("default_region is required"))
	} else if _, ok := t.regions[strings.ToLower(t.defaultRegion)]; !ok {
		errs = append(errs, fmt.Errorf("default region %q missing from regions", t.defaultRegion))
	}
	for _, name := range t.regionNames {
		food := t.regions[strings.ToLower(name)]
		if len(food.Staples) == 0 {
			errs = append(errs, fmt.Errorf("region %q has no staples", name))
		}
		if len(food.Proteins) == 0 {
			errs = append(errs, fmt.Errorf("region %q has no proteins", name))
		}
		for _, diet := range profile.Diets() {
			if strings.TrimSpace(food.Recommendation(diet)) == "" {
				errs = append(errs, fmt.Errorf("region %q has no %s recommendation", name, diet))
			}
		}
	}
	for item, price := range t.costs {
		if price.Min < 0 || price.Max < price.Min {
			errs = append(errs, fmt.Errorf("cost %q has invalid range %v-%v", item, price.Min, price.Max))
		}
	}
	for _, item := range RequiredCostItems() {
		if _, ok := t.costs[item]; !ok {
			errs = append(errs, fmt.Errorf("cost table missing %q", item))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reference data invalid: %w", errors.Join(errs...))
	}
	return nil
}

// WithRAGTopK returns a copy of the table using k guideline passages per lookup.
func (t *Table) WithRAGTopK(k int) (*Table, error) {
	if k < 1 || k > maxTopK {
		return nil, fmt.Errorf("rag top k must be between 1 and %d", maxTopK)
	}
	out := *t
	out.topK = k
	return &out, nil
}

func (t *Table) Thresholds() profile.Thresholds { return t.thresholds }
func (t *Table) RAGTopK() int                   { return t.topK }
func (t *Table) RecordCount() int               { return t.recordCount }
func (t *Table) DefaultRegion() string          { return t.defaultRegion }

// Regions lists the regions in the food table, sorted.
func (t *Table) Regions() []string {
	return cloneStrings(t.regionNames)
}

// States lists every recognised state in survey code order.
func (t *Table) States() []string {
	return cloneStrings(t.states)
}

// StateByCode maps a 1-based survey state code to its name.
func (t *Table) StateByCode(code int) (string, bool) {
	if code < 1 || code > len(t.states) {
		return "", false
	}
	return t.states[code-1], true
}

// Lookup performs an exact, case-insensitive match against the food table.
func (t *Table) Lookup(region string) (RegionalFood, error) {
	food, ok := t.regions[strings.ToLower(strings.TrimSpace(region))]
	if !ok {
		return RegionalFood{}, &UnknownRegionError{Region: region}
	}
	return food.clone(), nil
}

// Resolve returns the regional entry or, for unknown regions, the national default.
func (t *Table) Resolve(region string) (RegionalFood, bool) {
	food, err := t.Lookup(region)
	if err == nil {
		return food, false
	}
	return t.regions[strings.ToLower(t.defaultRegion)].clone(), true
}

func (t *Table) VegetarianProteins() []string {
	return cloneStrings(t.vegProteins)
}

func (t *Table) NonVegetarianTerms() []string {
	return cloneStrings(t.nonVegTerms)
}

// IsVegetarianProtein matches name against the whitelist, ignoring case and any
// parenthesised qualifier.
func (t *Table) IsVegetarianProtein(name string) bool {
	_, ok := t.vegSet[foodKey(name)]
	return ok
}

// ProteinsFor applies the diet filter: vegetarians only keep whitelisted proteins.
func (t *Table) ProteinsFor(food RegionalFood, diet profile.DietPreference) []string {
	if diet != profile.DietVegetarian {
		return cloneStrings(food.Proteins)
	}
	out := make([]string, 0, len(food.Proteins))
	for _, p := range food.Proteins {
		if t.IsVegetarianProtein(p) {
			out = append(out, p)
		}
	}
	return out
}

func (t *Table) Cost(item string) (PriceRange, bool) {
	price, ok := t.costs[item]
	return price, ok
}

// Costs returns a copy of the full cost table.
func (t *Table) Costs() map[string]PriceRange {
	out := make(map[string]PriceRange, len(t.costs))
	for k, v := range t.costs {
		out[k] = v
	}
	return out
}

func foodKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if idx := strings.Index(name, "("); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return name
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
