// File path: internal/careplan/service.go
package careplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
	ctxbuild "github.com/nicodishanthj/vitaplan/internal/context"
	"github.com/nicodishanthj/vitaplan/internal/pipeline"
	"github.com/nicodishanthj/vitaplan/internal/plan"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/records"
)

// DegradePolicy decides what happens when a knowledge store is unavailable.
type DegradePolicy string

const (
	// DegradeContinue builds the plan from whatever context was retrieved.
	DegradeContinue DegradePolicy = "continue"
	// DegradeAbort fails the request with the retrieval error.
	DegradeAbort DegradePolicy = "abort"
)

func ParseDegradePolicy(value string) (DegradePolicy, error) {
	switch DegradePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", DegradeContinue:
		return DegradeContinue, nil
	case DegradeAbort:
		return DegradeAbort, nil
	default:
		return "", fmt.Errorf("unknown degrade policy %q", value)
	}
}

// ContextRetriever gathers the read-only context for a profile.
type ContextRetriever interface {
	Retrieve(ctx context.Context, p profile.PatientProfile) (ctxbuild.RetrievedContext, error)
}

// PlanRunner executes the stage pipeline.
type PlanRunner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.SharedContext, error)
}

// UsageLogger records anonymised requests.
type UsageLogger interface {
	LogUsage(ctx context.Context, entry records.UsageEntry) error
}

// Service is the entry point for building treatment plans.
type Service struct {
	normalizer *profile.Normalizer
	retriever  ContextRetriever
	runner     PlanRunner
	usage      UsageLogger
	policy     DegradePolicy
	provider   string
	now        func() time.Time
}

type Option func(*Service)

func WithUsageLog(u UsageLogger) Option {
	return func(s *Service) { s.usage = u }
}

func WithDegradePolicy(p DegradePolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithProviderName records the generation provider in plan metadata.
func WithProviderName(name string) Option {
	return func(s *Service) { s.provider = name }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(thresholds profile.Thresholds, retriever ContextRetriever, runner PlanRunner, opts ...Option) (*Service, error) {
	if retriever == nil || runner == nil {
		return nil, errors.New("careplan: retriever and pipeline are required")
	}
	normalizer, err := profile.NewNormalizer(thresholds)
	if err != nil {
		return nil, err
	}
	s := &Service{
		normalizer: normalizer,
		retriever:  retriever,
		runner:     runner,
		policy:     DegradeContinue,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) Policy() DegradePolicy {
	return s.policy
}

// ComputeBMI is the live preview used while the intake form is filled in.
func (s *Service) ComputeBMI(feet, inches, weightKG float64) (float64, profile.BMICategory, error) {
	return profile.ComputeBMI(feet, inches, weightKG, s.normalizer.Thresholds())
}

// BuildTreatmentPlan validates raw, retrieves context, runs the stages and assembles
// the plan. Validation failures never reach generation.
func (s *Service) BuildTreatmentPlan(ctx context.Context, raw profile.RawInput) (plan.TreatmentPlan, error) {
	ctx, end := telemetry.StartSpan(ctx, "careplan.build")
	logger := common.Logger()
	requestID := uuid.New().String()

	p, err := s.normalizer.Normalize(raw)
	if err != nil {
		telemetry.RecordPlan(string(KindValidation))
		end(map[string]interface{}{"error": err.Error()})
		return plan.TreatmentPlan{}, err
	}
	log := logger.With().Str("request_id", requestID).Str("region", p.Region).Logger()
	log.Info().Float64("bmi", p.BMI).Str("category", string(p.Category)).Msg("careplan: building plan")

	entry := records.UsageEntry{
		RequestID: requestID,
		Age:       p.Age,
		Gender:    string(p.Gender),
		BMI:       p.BMI,
		Category:  string(p.Category),
		Diet:      string(p.Diet),
		Region:    p.Region,
		Residence: string(p.Residence),
		Wealth:    p.Wealth.String(),
	}
	finish := func(tp plan.TreatmentPlan, err error) (plan.TreatmentPlan, error) {
		kind := KindOK
		if err != nil {
			kind, _ = Describe(err)
		}
		entry.Outcome = string(kind)
		s.logUsage(ctx, entry)
		telemetry.RecordPlan(string(kind))
		fields := map[string]interface{}{"outcome": string(kind)}
		if err != nil {
			fields["error"] = err.Error()
			log.Warn().Str("kind", string(kind)).Err(err).Msg("careplan: plan failed")
		}
		end(fields)
		return tp, err
	}

	retrieved, err := s.retriever.Retrieve(ctx, p)
	entry.RegionSubstituted = retrieved.RegionSubstituted
	var notes []string
	if err != nil {
		if ctx.Err() != nil {
			return finish(plan.TreatmentPlan{}, ctx.Err())
		}
		stores := ctxbuild.UnavailableStores(err)
		if len(stores) == 0 || s.policy == DegradeAbort {
			return finish(plan.TreatmentPlan{}, err)
		}
		retrieved.Limited = true
		entry.ContextLimited = true
		notes = append(notes, fmt.Sprintf("Unavailable sources: %s.", strings.Join(stores, ", ")))
		log.Warn().Strs("stores", stores).Msg("careplan: continuing with limited context")
	}

	shared, err := s.runner.Run(ctx, pipeline.Input{Profile: p, Context: retrieved})
	if err != nil {
		return finish(plan.TreatmentPlan{}, err)
	}
	tp, err := plan.Synthesize(shared, p, retrieved, plan.Options{
		DisplayName:    raw.Name,
		Provider:       s.provider,
		ContextLimited: retrieved.Limited,
		Notes:          notes,
		Now:            s.now,
	})
	return finish(tp, err)
}

func (s *Service) logUsage(ctx context.Context, entry records.UsageEntry) {
	if s.usage == nil {
		return
	}
	entry.CreatedAt = s.now()
	// Detached so a cancelled request is still recorded.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.usage.LogUsage(logCtx, entry); err != nil {
		common.Logger().Warn().Err(err).Msg("careplan: usage log append failed")
	}
}
