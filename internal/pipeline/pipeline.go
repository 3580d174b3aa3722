// File path: internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langgraphgo/graph"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/reference"
)

const DefaultCallTimeout = 60 * time.Second

// Pipeline runs the five stages in order over a shared, append-only context.
type Pipeline struct {
	table      *reference.Table
	stages     []Stage
	prompts    PromptSet
	fallback   Generator
	generators map[StageID]Generator
	timeout    time.Duration
	nonVeg     *nonVegFilter
}

type Option func(*Pipeline)

// WithGenerator overrides the generator for one stage.
func WithGenerator(id StageID, g Generator) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.generators[id] = g
		}
	}
}

// WithCallTimeout bounds every generation call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPrompts(set PromptSet) Option {
	return func(p *Pipeline) {
		if len(set) > 0 {
			p.prompts = set
		}
	}
}

func New(table *reference.Table, fallback Generator, opts ...Option) (*Pipeline, error) {
	if table == nil {
		return nil, errors.New("pipeline: reference table required")
	}
	prompts, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		table:      table,
		stages:     defaultStages(),
		prompts:    prompts,
		fallback:   fallback,
		generators: make(map[StageID]Generator),
		timeout:    DefaultCallTimeout,
		nonVeg:     newNonVegFilter(table.NonVegetarianTerms()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	for _, st := range p.stages {
		if _, ok := p.prompts[st.ID]; !ok {
			return nil, fmt.Errorf("pipeline: no prompt for %s", st.ID.Key())
		}
		if p.generatorFor(st.ID) == nil {
			return nil, fmt.Errorf("pipeline: no generator for %s", st.ID.Key())
		}
	}
	return p, nil
}

// Stages returns the stage declarations in execution order.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

func (p *Pipeline) generatorFor(id StageID) Generator {
	if g, ok := p.generators[id]; ok {
		return g
	}
	return p.fallback
}

// Run executes every stage. On failure no shared context is returned and the error is
// a *StageExecutionError naming the failed stage.
func (p *Pipeline) Run(ctx context.Context, in Input) (*SharedContext, error) {
	ctx, end := telemetry.StartSpan(ctx, "pipeline.run")
	shared := NewSharedContext()

	g := graph.NewMessageGraph()
	for i, st := range p.stages {
		st := st
		g.AddNode(st.ID.Key(), func(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
			out, err := p.runStage(ctx, st, in, shared)
			if err != nil {
				return state, err
			}
			return append(state, llms.TextParts(llms.ChatMessageTypeAI, "["+st.ID.Key()+"]\n"+out.Raw)), nil
		})
		if i > 0 {
			g.AddEdge(p.stages[i-1].ID.Key(), st.ID.Key())
		}
	}
	g.AddNode(graph.END, func(_ context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
		return state, nil
	})
	g.AddEdge(p.stages[len(p.stages)-1].ID.Key(), graph.END)
	g.SetEntryPoint(p.stages[0].ID.Key())

	runnable, err := g.Compile()
	if err != nil {
		end(map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("pipeline: compile graph: %w", err)
	}
	initial := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, in.Profile.Summary()),
	}
	transcript, err := runnable.Invoke(ctx, initial)
	if err != nil {
		var stageErr *StageExecutionError
		if errors.As(err, &stageErr) {
			err = stageErr
		}
		end(map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if !shared.Complete() || len(transcript) != len(initial)+shared.Len() {
		end(map[string]interface{}{"error": "incomplete"})
		return nil, fmt.Errorf("pipeline: %d of %d stages completed", shared.Len(), len(p.stages))
	}
	end(map[string]interface{}{"stages": shared.Len()})
	return shared, nil
}

func (p *Pipeline) runStage(ctx context.Context, st Stage, in Input, shared *SharedContext) (StageOutput, error) {
	logger := common.Logger()
	start := time.Now()
	fail := func(cause string, err error) (StageOutput, error) {
		telemetry.RecordStageFailure(st.ID.Key(), cause)
		logger.Warn().Str("stage", st.ID.Key()).Str("cause", cause).Err(err).Msg("pipeline: stage failed")
		return StageOutput{}, stageError(st.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return fail("canceled", err)
	}

	visible := shared.Visible(st.ID, st.Reads)
	out, err := st.build(stageEnv{input: in, table: p.table, prior: visible, nonVeg: p.nonVeg})
	if err != nil {
		return fail("postcondition", err)
	}
	out.Stage = st.ID

	prompt, err := p.prompt(st.ID, in, out, visible)
	if err != nil {
		return fail("prompt", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	raw, err := p.generatorFor(st.ID).Generate(callCtx, prompt)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return fail("canceled", ctx.Err())
		}
		err = common.CallTimeout(ctx, callCtx, err, st.ID.Key()+" generation", p.timeout)
		var timeout *common.TimeoutError
		if errors.As(err, &timeout) {
			return fail("timeout", err)
		}
		return fail("generation", err)
	}

	out.Raw = raw
	out.Text = strings.TrimSpace(raw)
	if st.ID == DietaryPlan && in.Profile.Diet == profile.DietVegetarian {
		out.Text = strings.TrimSpace(p.nonVeg.Scrub(out.Text))
	}
	out.Duration = time.Since(start)
	if err := shared.Append(out); err != nil {
		return fail("order", err)
	}
	telemetry.RecordStage(st.ID.Key(), out.Duration)
	logger.Debug().Str("stage", st.ID.Key()).Dur("duration", out.Duration).Msg("pipeline: stage complete")
	return out, nil
}

func (p *Pipeline) prompt(id StageID, in Input, out StageOutput, visible map[StageID]StageOutput) (Prompt, error) {
	spec := p.prompts[id]
	region := in.Context.Food.Name
	if region == "" {
		region = in.Profile.Region
	}
	values := map[string]any{
		varProfile: in.Profile.Summary(),
		varRegion:  region,
		varPrior:   renderPrior(visible),
		varPayload: out.Summary(),
	}
	switch id {
	case RiskAnalysis:
		values[varRecords] = renderPassages(in.Context.SimilarRecords)
	case DietaryPlan, MedicalRecommendation:
		values[varGuidelines] = renderPassages(in.Context.Guidelines)
	}
	user, err := spec.render(values)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: id, System: spec.system(), User: user}, nil
}
