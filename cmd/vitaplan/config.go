// File path: cmd/vitaplan/config.go
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nicodishanthj/vitaplan/internal/careplan"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
)

// appConfig is the process level configuration. Precedence is flag, then
// VITAPLAN_* environment, then config file, then defaults. Store specific
// settings (CHROMADB_*, REDIS_*, OPENAI_*, RECORDS_DB_*) stay with their packages.
type appConfig struct {
	Addr          string        `mapstructure:"addr"`
	ReferenceFile string        `mapstructure:"reference_file"`
	PromptsFile   string        `mapstructure:"prompts_file"`
	RecordsPath   string        `mapstructure:"records_path"`
	Degrade       string        `mapstructure:"degrade"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	PlanTimeout   time.Duration `mapstructure:"plan_timeout"`
	RAGTopK       int           `mapstructure:"rag_top_k"`
	StartChroma   bool          `mapstructure:"start_chroma"`
	ChromaCommand string        `mapstructure:"chroma_command"`
	ChromaData    string        `mapstructure:"chroma_data"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("VITAPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8081")
	v.SetDefault("reference_file", "")
	v.SetDefault("prompts_file", "")
	v.SetDefault("records_path", "")
	v.SetDefault("degrade", string(careplan.DegradeContinue))
	v.SetDefault("call_timeout", pipeline.DefaultCallTimeout)
	v.SetDefault("plan_timeout", 5*time.Minute)
	v.SetDefault("rag_top_k", 0)
	v.SetDefault("start_chroma", false)
	v.SetDefault("chroma_command", "chroma")
	v.SetDefault("chroma_data", "chroma_data")
	return v
}

func readConfigFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadAppConfig(v *viper.Viper) (appConfig, error) {
	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if _, err := careplan.ParseDegradePolicy(cfg.Degrade); err != nil {
		return appConfig{}, err
	}
	if cfg.CallTimeout <= 0 {
		return appConfig{}, fmt.Errorf("call_timeout must be positive")
	}
	if cfg.RAGTopK < 0 {
		return appConfig{}, fmt.Errorf("rag_top_k must not be negative")
	}
	return cfg, nil
}
