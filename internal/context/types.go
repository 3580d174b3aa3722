// File path: internal/context/types.go
package context

import (
	"errors"
	"fmt"
	"time"

	"github.com/nicodishanthj/vitaplan/internal/knowledge"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// Store names used in errors, notes and metrics.
const (
	StoreRegions    = "regions"
	StoreGuidelines = "guidelines"
	StoreRecords    = "records"
)

// ErrNoSearcher is the cause reported when a store was never configured.
var ErrNoSearcher = errors.New("no searcher configured")

// RetrievedContext is the read-only bundle handed to the stage pipeline.
type RetrievedContext struct {
	Region            string                          `json:"region"`
	Food              reference.RegionalFood          `json:"food"`
	RegionSubstituted bool                            `json:"region_substituted"`
	Guidelines        []knowledge.Passage             `json:"guidelines"`
	SimilarRecords    []knowledge.Passage             `json:"similar_records"`
	Costs             map[string]reference.PriceRange `json:"costs"`
	Limited           bool                            `json:"limited"`
	Notes             []string                        `json:"notes,omitempty"`
}

// RetrievalUnavailableError reports a knowledge store that could not serve a lookup.
type RetrievalUnavailableError struct {
	Store string
	Err   error
}

func (e *RetrievalUnavailableError) Error() string {
	return fmt.Sprintf("%s retrieval unavailable: %v", e.Store, e.Err)
}

func (e *RetrievalUnavailableError) Unwrap() error {
	return e.Err
}

// UnavailableStores lists the stores named by every RetrievalUnavailableError in err.
func UnavailableStores(err error) []string {
	var out []string
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if re, ok := err.(*RetrievalUnavailableError); ok {
			out = append(out, re.Store)
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		walk(errors.Unwrap(err))
	}
	walk(err)
	return out
}

type Config struct {
	TopK            int
	RecordCount     int
	LookupTimeout   time.Duration
	MaxSnippetRunes int
	CacheTTL        time.Duration
	// CacheSize bounds the number of cached lookups.
	CacheSize int
}

func DefaultConfig() Config {
	return Config{
		TopK:            3,
		RecordCount:     3,
		LookupTimeout:   10 * time.Second,
		MaxSnippetRunes: 1200,
		CacheTTL:        2 * time.Minute,
		CacheSize:       256,
	}
}
