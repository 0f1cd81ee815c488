package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/neilnvaidya/owlby-api/internal/pkg/deadline"
)

// attemptModel issues exactly one generation call against model, bounded by
// the per-attempt timeout. An empty completion is a failure here; retry
// policy lives in ProcessRequest.
func (s *AIService) attemptModel(ctx context.Context, route, model string, input *GenerationInput) (*GenerationResult, error) {
	started := s.now()

	res, err := deadline.Run(ctx, s.attemptTimeout, "model_attempt:"+model,
		func(ctx context.Context) (*GenerationResult, error) {
			return s.client.Generate(ctx, model, input)
		})
	if err != nil {
		return nil, err
	}

	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, &UpstreamError{
			Kind:    FailureEmptyResponse,
			Model:   model,
			Message: "model returned an empty completion",
		}
	}

	slog.Debug("ai_model_attempt_succeeded",
		"route", route, "model", model,
		"latency_ms", s.now().Sub(started).Milliseconds(),
		"prompt_tokens", res.Usage.PromptTokens,
		"completion_tokens", res.Usage.CompletionTokens)
	return res, nil
}
