// File path: cmd/vitaplan/app.go
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/careplan"
	"github.com/nicodishanthj/vitaplan/internal/common"
	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/data/orchestrator"
	"github.com/nicodishanthj/vitaplan/internal/llm"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      appConfig
	table    *reference.Table
	provider llm.Provider
	orch     *orchestrator.Orchestrator
	service  *careplan.Service
}

func loadTable(cfg appConfig) (*reference.Table, error) {
	var (
		table *reference.Table
		err   error
	)
	if path := strings.TrimSpace(cfg.ReferenceFile); path != "" {
		table, err = reference.LoadFile(path)
	} else {
		table, err = reference.Default()
	}
	if err != nil {
		return nil, err
	}
	if cfg.RAGTopK > 0 {
		return table.WithRAGTopK(cfg.RAGTopK)
	}
	return table, nil
}

func newApp(ctx context.Context, cfg appConfig) (*app, error) {
	logger := common.Logger()
	table, err := loadTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	llmCfg, err := llm.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("llm config: %w", err)
	}
	provider := llm.NewProvider(llmCfg)
	logger.Info().Str("provider", provider.Name()).Msg("vitaplan: llm provider ready")

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}
	if path := strings.TrimSpace(cfg.RecordsPath); path != "" {
		orchCfg.Records.Path = path
	}
	orch, err := orchestrator.New(ctx, orchCfg, provider)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	a, err := wire(cfg, table, provider, orch)
	if err != nil {
		orch.Close()
		return nil, err
	}
	logger.Info().
		Str("search_mode", orch.Mode()).
		Str("degrade", string(a.service.Policy())).
		Msg("vitaplan: components ready")
	return a, nil
}

func wire(cfg appConfig, table *reference.Table, provider llm.Provider, orch *orchestrator.Orchestrator) (*app, error) {
	retriever, err := ctxbuild.NewRetriever(ctxbuild.Config{CacheTTL: ctxbuild.DefaultConfig().CacheTTL}, table, orch.Guidelines(), orch.Records())
	if err != nil {
		return nil, fmt.Errorf("context retriever: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithCallTimeout(cfg.CallTimeout)}
	if path := strings.TrimSpace(cfg.PromptsFile); path != "" {
		prompts, err := pipeline.LoadPromptsFile(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithPrompts(prompts))
	}
	runner, err := pipeline.New(table, pipeline.NewProviderGenerator(provider), opts...)
	if err != nil {
		return nil, err
	}

	policy, err := careplan.ParseDegradePolicy(cfg.Degrade)
	if err != nil {
		return nil, err
	}
	service, err := careplan.NewService(table.Thresholds(), retriever, runner,
		careplan.WithUsageLog(orch.RecordStore()),
		careplan.WithDegradePolicy(policy),
		careplan.WithProviderName(provider.Name()),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, table: table, provider: provider, orch: orch, service: service}, nil
}

func (a *app) Close() error {
	if a == nil || a.orch == nil {
		return nil
	}
	return a.orch.Close()
}
