// File path: internal/records/import.go
package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/profile"
)

// StateResolver maps survey state codes to names.
type StateResolver interface {
	StateByCode(code int) (string, bool)
}

// Survey CSV columns.
const (
	colBMI       = "BMI"
	colWeight    = "Weight_kg"
	colHeight    = "Height_cm"
	colCategory  = "BMI_Category"
	colAge       = "Age"
	colState     = "State"
	colResidence = "Urban_Rural"
	colWealth    = "Wealth_Index"

	importBatch = 500
)

var requiredColumns = []string{colBMI, colWeight, colHeight, colCategory, colAge, colState, colResidence, colWealth}

type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportCSV loads survey rows from r. Rows with unknown codes or unparsable numbers
// are skipped. Row n (zero based, header excluded) is stored as NFHS_<n>.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, states StateResolver) (ImportResult, error) {
	if err := s.ensureReady(); err != nil {
		return ImportResult{}, err
	}
	if states == nil {
		return ImportResult{}, errors.New("state resolver required")
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return ImportResult{}, fmt.Errorf("csv missing column %q", col)
		}
	}

	logger := common.Logger()
	var result ImportResult
	batch := make([]PatientRecord, 0, importBatch)
	flush := func() error {
		if err := s.Insert(ctx, batch); err != nil {
			return err
		}
		result.Imported += len(batch)
		batch = batch[:0]
		return nil
	}
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv row %d: %w", row, err)
		}
		rec, err := parseRow(fields, index, states)
		if err != nil {
			logger.Debug().Int("row", row).Err(err).Msg("records: skipping row")
			result.Skipped++
			continue
		}
		rec.SourceID = "NFHS_" + strconv.Itoa(row)
		batch = append(batch, rec)
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}
	logger.Info().Int("imported", result.Imported).Int("skipped", result.Skipped).Msg("records: csv import complete")
	return result, nil
}

func parseRow(fields []string, index map[string]int, states StateResolver) (PatientRecord, error) {
	get := func(col string) string {
		i := index[col]
		if i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}
	num := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", col, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%s: not a finite number", col)
		}
		return v, nil
	}
	code := func(col string) (int, error) {
		v, err := num(col)
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}

	var rec PatientRecord
	age, err := code(colAge)
	if err != nil {
		return rec, err
	}
	if rec.HeightCM, err = num(colHeight); err != nil {
		return rec, err
	}
	if rec.WeightKG, err = num(colWeight); err != nil {
		return rec, err
	}
	if rec.BMI, err = num(colBMI); err != nil {
		return rec, err
	}
	rec.Age = age
	rec.Category = get(colCategory)
	if rec.Category == "" {
		return rec, errors.New("empty bmi category")
	}

	stateCode, err := code(colState)
	if err != nil {
		return rec, err
	}
	state, ok := states.StateByCode(stateCode)
	if !ok {
		return rec, fmt.Errorf("unknown state code %d", stateCode)
	}
	rec.State = state

	residenceCode, err := code(colResidence)
	if err != nil {
		return rec, err
	}
	switch residenceCode {
	case 1:
		rec.Residence = string(profile.ResidenceUrban)
	case 2:
		rec.Residence = string(profile.ResidenceRural)
	default:
		return rec, fmt.Errorf("unknown residence code %d", residenceCode)
	}

	wealthCode, err := code(colWealth)
	if err != nil {
		return rec, err
	}
	tier := profile.WealthTier(wealthCode)
	if !tier.Valid() {
		return rec, fmt.Errorf("unknown wealth code %d", wealthCode)
	}
	rec.Wealth = tier.String()
	return rec, nil
}
