// File path: internal/pipeline/prompts.go
package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultPrompts []byte

// Template variables available to every stage task.
const (
	varProfile    = "profile"
	varRegion     = "region"
	varGuidelines = "guidelines"
	varRecords    = "records"
	varPrior      = "prior"
	varPayload    = "payload"
)

var promptVars = []string{varProfile, varRegion, varGuidelines, varRecords, varPrior, varPayload}

// PromptSpec is the configured persona and task for one stage.
type PromptSpec struct {
	Role string `yaml:"role"`
	Goal string `yaml:"goal"`
	Task string `yaml:"task"`
}

// PromptSet holds one spec per stage.
type PromptSet map[StageID]PromptSpec

// DefaultPrompts parses the embedded stage prompts.
func DefaultPrompts() (PromptSet, error) {
	return ParsePrompts(defaultPrompts)
}

func LoadPromptsFile(path string) (PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}
	return ParsePrompts(data)
}

// ParsePrompts decodes stage prompts keyed by stage key and checks that every stage
// has a task that renders.
func ParsePrompts(data []byte) (PromptSet, error) {
	var raw map[string]PromptSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	set := make(PromptSet, len(StageIDs()))
	for _, id := range StageIDs() {
		spec, ok := raw[id.Key()]
		if !ok || strings.TrimSpace(spec.Task) == "" {
			return nil, fmt.Errorf("prompts: missing task for %s", id.Key())
		}
		if _, err := spec.render(map[string]any{}); err != nil {
			return nil, fmt.Errorf("prompts: %s: %w", id.Key(), err)
		}
		set[id] = spec
	}
	return set, nil
}

func (s PromptSpec) system() string {
	role := strings.TrimSpace(s.Role)
	goal := strings.TrimSpace(s.Goal)
	switch {
	case role == "":
		return goal
	case goal == "":
		return "You are a " + role + "."
	default:
		return "You are a " + role + ". " + goal
	}
}

func (s PromptSpec) render(values map[string]any) (string, error) {
	full := make(map[string]any, len(promptVars))
	for _, name := range promptVars {
		full[name] = ""
	}
	for k, v := range values {
		full[k] = v
	}
	tmpl := prompts.NewPromptTemplate(s.Task, promptVars)
	out, err := tmpl.Format(full)
	if err != nil {
		return "", fmt.Errorf("render task: %w", err)
	}
	return strings.TrimSpace(out), nil
}
