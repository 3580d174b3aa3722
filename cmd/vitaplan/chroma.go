// File path: cmd/vitaplan/chroma.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nicodishanthj/vitaplan/internal/common/process"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

// startChroma launches a local ChromaDB server through its CLI and enables the
// vector store for the rest of the process.
func startChroma(ctx context.Context, cfg appConfig) (*process.ManagedService, error) {
	binary, err := process.BinaryPath(cfg.ChromaCommand)
	if err != nil {
		return nil, fmt.Errorf("resolve chroma command: %w", err)
	}
	dataDir, err := filepath.Abs(cfg.ChromaData)
	if err != nil {
		return nil, fmt.Errorf("resolve chroma data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare chroma data directory: %w", err)
	}
	if err := ensureEnvDefault("CHROMADB_ENABLED", "true"); err != nil {
		return nil, err
	}
	vcfg, err := vector.LoadConfig()
	if err != nil {
		return nil, err
	}
	return process.Start(ctx, process.ServiceConfig{
		Name:         "chromadb",
		Command:      binary,
		Args:         []string{"run", "--path", dataDir, "--host", vcfg.Host, "--port", vcfg.Port},
		ReadyURL:     vcfg.BaseURL() + "/heartbeat",
		ReadyTimeout: 2 * time.Minute,
		StopTimeout:  5 * time.Second,
	})
}

func ensureEnvDefault(key, value string) error {
	if _, ok := os.LookupEnv(key); ok {
		return nil
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
