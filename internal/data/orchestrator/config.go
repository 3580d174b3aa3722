// File path: internal/data/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

// Config controls which stores the orchestrator opens and how the knowledge
// searchers are assembled.
type Config struct {
	Records records.Config
	Vector  vector.Config
	Cache   cache.Config

	// EmbedModel keys the query embedding cache.
	EmbedModel string
	// IndexBatch is the number of documents embedded per upsert.
	IndexBatch int
	// RecordSample bounds how many survey records feed the lexical fallback.
	RecordSample int
}

// DefaultConfig returns the baseline configuration used when no overrides are
// supplied.
func DefaultConfig() Config {
	return Config{
		Records:      records.Config{Path: records.DefaultPath},
		EmbedModel:   "local",
		IndexBatch:   64,
		RecordSample: 1000,
	}
}

// LoadConfig builds a Config from defaults and environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	recCfg, err := records.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.Records = recCfg
	vecCfg, err := vector.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.Vector = vecCfg
	cacheCfg, err := cache.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.Cache = cacheCfg
	if value := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")); value != "" {
		cfg.EmbedModel = value
	}
	if value := strings.TrimSpace(os.Getenv("VITAPLAN_INDEX_BATCH")); value != "" {
		batch, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse VITAPLAN_INDEX_BATCH: %w", err)
		}
		cfg.IndexBatch = batch
	}
	if value := strings.TrimSpace(os.Getenv("VITAPLAN_RECORD_SAMPLE")); value != "" {
		sample, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse VITAPLAN_RECORD_SAMPLE: %w", err)
		}
		cfg.RecordSample = sample
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Records.Path) == "" {
		cfg.Records.Path = defaults.Records.Path
	}
	if strings.TrimSpace(cfg.EmbedModel) == "" {
		cfg.EmbedModel = defaults.EmbedModel
	}
	if cfg.IndexBatch <= 0 {
		cfg.IndexBatch = defaults.IndexBatch
	}
	if cfg.RecordSample <= 0 {
		cfg.RecordSample = defaults.RecordSample
	}
	if strings.TrimSpace(cfg.Vector.GuidelineCollection) == "" {
		cfg.Vector.GuidelineCollection = vector.DefaultGuidelineCollection
	}
	if strings.TrimSpace(cfg.Vector.RecordCollection) == "" {
		cfg.Vector.RecordCollection = vector.DefaultRecordCollection
	}
	return cfg
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Records.Path) == "" {
		return fmt.Errorf("records path required")
	}
	if c.Vector.GuidelineCollection == c.Vector.RecordCollection {
		return fmt.Errorf("guideline and record collections must differ")
	}
	return nil
}
