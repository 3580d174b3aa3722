// File path: internal/records/records_test.go
package records

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateMap map[int]string

func (m stateMap) StateByCode(code int) (string, bool) {
	name, ok := m[code]
	return name, ok
}

var testStates = stateMap{20: "Punjab", 24: "Telangana", 12: "Kerala"}

const sampleCSV = `BMI,Weight_kg,Height_cm,BMI_Category,Age,State,Urban_Rural,Wealth_Index
29.4,75.0,159.7,Obese,34,20,1,3
22.1,55.0,157.8,Normal,28,24,2,1
31.2,82.0,162.1,Obese,51,20,1,5
24.5,60.0,156.5,Overweight,40,12,2,4
bad,60.0,156.5,Overweight,40,12,2,4
24.5,60.0,156.5,Overweight,40,99,2,4
24.5,60.0,156.5,Overweight,40,12,7,4
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{Path: filepath.Join(t.TempDir(), "records.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func importSample(t *testing.T, store *Store) ImportResult {
	t.Helper()
	res, err := store.ImportCSV(context.Background(), strings.NewReader(sampleCSV), testStates)
	require.NoError(t, err)
	return res
}

func TestImportCSVMapsCodes(t *testing.T) {
	store := openTestStore(t)
	res := importSample(t, store)
	assert.Equal(t, ImportResult{Imported: 4, Skipped: 3}, res)

	all, err := store.All(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	first := all[0]
	assert.Equal(t, "NFHS_0", first.SourceID)
	assert.Equal(t, "Punjab", first.State)
	assert.Equal(t, "Urban", first.Residence)
	assert.Equal(t, "Middle", first.Wealth)
	assert.Equal(t, 34, first.Age)
	assert.Equal(t, "Rural", all[1].Residence)
	assert.Equal(t, "Poorest", all[1].Wealth)
}

func TestImportIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	importSample(t, store)
	importSample(t, store)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestImportRejectsMissingColumns(t *testing.T) {
	store := openTestStore(t)
	_, err := store.ImportCSV(context.Background(), strings.NewReader("BMI,Age\n1,2\n"), testStates)
	assert.ErrorContains(t, err, "missing column")
}

func TestByCriteriaFiltersCaseInsensitively(t *testing.T) {
	store := openTestStore(t)
	importSample(t, store)
	ctx := context.Background()

	got, err := store.ByCriteria(ctx, Criteria{State: "punjab", Category: "OBESE"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, "Punjab", rec.State)
	}

	got, err = store.ByCriteria(ctx, Criteria{Residence: "rural", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.ByCriteria(ctx, Criteria{State: "Atlantis"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRandomAndStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.Random(ctx)
	assert.ErrorIs(t, err, ErrNoRecords)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.MeanBMI)

	importSample(t, store)
	rec, err := store.Random(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SourceID)
	intake := rec.Intake()
	assert.Equal(t, rec.State, intake.Region)
	assert.Equal(t, "Vegetarian", intake.Diet)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 3, stats.States)
	assert.InDelta(t, (29.4+22.1+31.2+24.5)/4, stats.MeanBMI, 0.001)
	assert.Equal(t, map[string]int{"Normal": 1, "Obese": 2, "Overweight": 1}, stats.Categories)
}

func TestUsageLogRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	older := UsageEntry{RequestID: "a", Age: 45, Gender: "Female", BMI: 30.27, Category: "Obese", Diet: "Vegetarian",
		Region: "Punjab", Residence: "Urban", Wealth: "Middle", Outcome: "ok", CreatedAt: time.Now().Add(-time.Minute)}
	newer := older
	newer.RequestID = "b"
	newer.Outcome = "retrieval_unavailable"
	newer.ContextLimited = true
	newer.CreatedAt = time.Now()
	require.NoError(t, store.LogUsage(ctx, older))
	require.NoError(t, store.LogUsage(ctx, newer))

	entries, err := store.RecentUsage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].RequestID)
	assert.True(t, entries[0].ContextLimited)
	assert.False(t, entries[1].ContextLimited)

	assert.Error(t, store.LogUsage(ctx, UsageEntry{RequestID: "c"}))
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.Count(context.Background())
	assert.ErrorIs(t, err, errNilStore)
	assert.NoError(t, s.Close())
}

func TestIntakeConvertsHeight(t *testing.T) {
	rec := PatientRecord{Age: 34, HeightCM: 162.56, WeightKG: 80, State: "Punjab", Residence: "Urban", Wealth: "Middle"}
	intake := rec.Intake()
	assert.Equal(t, 5.0, intake.HeightFeet)
	assert.Equal(t, 4.0, intake.HeightInches)
	assert.Equal(t, 162.56, intake.HeightCM)
	assert.Equal(t, 34, intake.Age)
	assert.Equal(t, "Urban", intake.Residence)
	assert.Equal(t, "Middle", intake.Wealth)
	assert.Empty(t, intake.Gender)
}
