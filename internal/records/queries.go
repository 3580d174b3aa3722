// File path: internal/records/queries.go
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const (
	defaultLimit = 10
	maxLimit     = 1000
)

var ErrNoRecords = errors.New("no patient records")

const insertRecord = `INSERT INTO patient_records
        (source_id, age, height_cm, weight_kg, bmi, bmi_category, state, residence, wealth)
        VALUES (:source_id, :age, :height_cm, :weight_kg, :bmi, :bmi_category, :state, :residence, :wealth)
        ON CONFLICT(source_id) DO UPDATE SET
                age = excluded.age,
                height_cm = excluded.height_cm,
                weight_kg = excluded.weight_kg,
                bmi = excluded.bmi,
                bmi_category = excluded.bmi_category,
                state = excluded.state,
                residence = excluded.residence,
                wealth = excluded.wealth`

// Insert upserts records keyed by SourceID in a single transaction.
func (s *Store) Insert(ctx context.Context, records []PatientRecord) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			if _, err := tx.NamedExecContext(ctx, insertRecord, rec); err != nil {
				return fmt.Errorf("insert record %s: %w", rec.SourceID, err)
			}
		}
		return nil
	})
}

// ByCriteria returns a random sample of records matching c.
func (s *Store) ByCriteria(ctx context.Context, c Criteria) ([]PatientRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	filters := []string{"1 = 1"}
	args := []interface{}{}
	add := func(column, value string) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			filters = append(filters, column+" = ? COLLATE NOCASE")
			args = append(args, trimmed)
		}
	}
	add("state", c.State)
	add("residence", c.Residence)
	add("bmi_category", c.Category)
	add("wealth", c.Wealth)
	args = append(args, clampLimit(c.Limit))

	query := `SELECT * FROM patient_records WHERE ` + strings.Join(filters, " AND ") + ` ORDER BY RANDOM() LIMIT ?`
	out := []PatientRecord{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return out, nil
}

// Random returns one record chosen uniformly.
func (s *Store) Random(ctx context.Context) (PatientRecord, error) {
	if err := s.ensureReady(); err != nil {
		return PatientRecord{}, err
	}
	var rec PatientRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM patient_records ORDER BY RANDOM() LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return PatientRecord{}, ErrNoRecords
	}
	if err != nil {
		return PatientRecord{}, fmt.Errorf("select random record: %w", err)
	}
	return rec, nil
}

// All returns records in import order. A limit of zero returns every row.
func (s *Store) All(ctx context.Context, limit int) ([]PatientRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out := []PatientRecord{}
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM patient_records ORDER BY id LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM patient_records ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patient_records`); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.ensureReady(); err != nil {
		return Stats{}, err
	}
	var row struct {
		Count   int             `db:"n"`
		MeanBMI sql.NullFloat64 `db:"mean_bmi"`
		States  int             `db:"states"`
	}
	if err := s.db.GetContext(ctx, &row, `SELECT COUNT(*) AS n, AVG(bmi) AS mean_bmi, COUNT(DISTINCT state) AS states FROM patient_records`); err != nil {
		return Stats{}, fmt.Errorf("aggregate records: %w", err)
	}
	var groups []struct {
		Category string `db:"bmi_category"`
		Count    int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &groups, `SELECT bmi_category, COUNT(*) AS n FROM patient_records GROUP BY bmi_category ORDER BY bmi_category`); err != nil {
		return Stats{}, fmt.Errorf("group records: %w", err)
	}
	stats := Stats{Count: row.Count, States: row.States, Categories: make(map[string]int, len(groups))}
	if row.MeanBMI.Valid {
		stats.MeanBMI = row.MeanBMI.Float64
	}
	for _, g := range groups {
		stats.Categories[g.Category] = g.Count
	}
	return stats, nil
}

const insertUsage = `INSERT INTO usage_log
        (request_id, age, gender, bmi, bmi_category, diet, region, residence, wealth, outcome, region_substituted, context_limited, created_at)
        VALUES (:request_id, :age, :gender, :bmi, :bmi_category, :diet, :region, :residence, :wealth, :outcome, :region_substituted, :context_limited, :created_at)`

// LogUsage appends an anonymised request to the usage log.
func (s *Store) LogUsage(ctx context.Context, entry UsageEntry) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		return errors.New("usage entry requires created_at")
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if _, err := s.db.NamedExecContext(ctx, insertUsage, entry); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// RecentUsage returns the newest usage entries first.
func (s *Store) RecentUsage(ctx context.Context, limit int) ([]UsageEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out := []UsageEntry{}
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM usage_log ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("select usage: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
