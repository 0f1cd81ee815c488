package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/neilnvaidya/owlby-api/internal/config"
	infraerrors "github.com/neilnvaidya/owlby-api/internal/pkg/errors"
)

// ProcessResult is a successful dispatch outcome.
type ProcessResult struct {
	Text         string
	Usage        Usage
	ModelUsed    string
	FallbackUsed bool
}

// AIService turns one logical generation request into a bounded cascade of
// model attempts: the primary tier is retried up to a configured count, the
// fallback tiers get one attempt each, and the whole cascade shares a single
// wall-clock budget.
type AIService struct {
	client GenerationClient
	// chains holds the de-duplicated ordered tier list per route, built once
	// at construction.
	chains map[string][]string

	attemptTimeout  time.Duration
	totalBudget     time.Duration
	primaryAttempts int
	backoffBase     time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

// NewAIService creates the dispatcher from the route model chains in cfg.
func NewAIService(client GenerationClient, cfg *config.Config) *AIService {
	chains := make(map[string][]string, len(cfg.AI.Routes))
	for route, chain := range cfg.AI.Routes {
		chains[route] = chain.Tiers()
	}
	attempts := cfg.AI.PrimaryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &AIService{
		client:          client,
		chains:          chains,
		attemptTimeout:  time.Duration(cfg.AI.AttemptTimeoutMs) * time.Millisecond,
		totalBudget:     time.Duration(cfg.AI.TotalBudgetMs) * time.Millisecond,
		primaryAttempts: attempts,
		backoffBase:     time.Duration(cfg.AI.RetryBackoffMs) * time.Millisecond,
		sleep:           time.Sleep,
		now:             time.Now,
	}
}

// ProcessRequest runs the retry-then-cascade policy for route. On success it
// returns the winning attempt; on exhaustion it surfaces a typed error built
// from the last recorded failure (earlier failures are logged only).
func (s *AIService) ProcessRequest(ctx context.Context, route string, input *GenerationInput) (*ProcessResult, error) {
	tiers := s.chains[route]
	if len(tiers) == 0 {
		return nil, infraerrors.Internal("ROUTE_NOT_CONFIGURED", "no model chain configured for route "+route)
	}

	start := s.now()
	var lastErr error

	for ti, model := range tiers {
		attempts := 1
		if ti == 0 {
			attempts = s.primaryAttempts
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				s.sleep(time.Duration(attempt-1) * s.backoffBase)
			}
			if elapsed := s.now().Sub(start); elapsed >= s.totalBudget {
				slog.Warn("ai_dispatch_budget_exhausted",
					"route", route, "model", model, "elapsed_ms", elapsed.Milliseconds())
				return nil, s.terminal(route, &UpstreamError{
					Kind:    FailureBudgetExceeded,
					Model:   model,
					Message: "total dispatch budget exhausted",
				})
			}

			res, err := s.attemptModel(ctx, route, model, input)
			if err == nil {
				if ti > 0 {
					slog.Info("ai_dispatch_fallback_succeeded", "route", route, "model", model)
				}
				return &ProcessResult{
					Text:         res.Text,
					Usage:        res.Usage,
					ModelUsed:    model,
					FallbackUsed: ti > 0,
				}, nil
			}

			lastErr = err
			slog.Warn("ai_model_attempt_failed",
				"route", route, "model", model, "attempt", attempt,
				"kind", classifyFailure(err).String(), "error", err.Error())

			if triggersFallback(err) {
				if ti < len(tiers)-1 {
					slog.Info("ai_dispatch_falling_back", "route", route, "from_model", model, "kind", classifyFailure(err).String())
				}
				break
			}
		}
	}

	return nil, s.terminal(route, lastErr)
}

// terminal maps the last recorded failure onto the stable error surface.
func (s *AIService) terminal(route string, err error) error {
	switch classifyFailure(err) {
	case FailureRegionRestricted:
		slog.Warn("ai_dispatch_unavailable_region", "route", route)
		return infraerrors.ServiceUnavailable("SERVICE_UNAVAILABLE_REGION",
			"the generation service is not available in this region")
	case FailureBudgetExceeded:
		return infraerrors.GatewayTimeout("AI_PROCESSING_TIMEOUT",
			"generation did not complete within the allowed time")
	default:
		return infraerrors.Internal("AI_PROCESSING_FAILED", failureMessage(err))
	}
}
