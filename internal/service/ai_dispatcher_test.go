package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neilnvaidya/owlby-api/internal/config"
	infraerrors "github.com/neilnvaidya/owlby-api/internal/pkg/errors"
)

type scriptStep struct {
	res     *GenerationResult
	err     error
	advance time.Duration // moves the fake clock before returning
}

type scriptedClient struct {
	mu    sync.Mutex
	steps []scriptStep
	calls []string
	clock *fakeClock
}

func (c *scriptedClient) Generate(_ context.Context, model string, _ *GenerationInput) (*GenerationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, model)
	if len(c.steps) == 0 {
		return &GenerationResult{Text: "ok"}, nil
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	if step.advance > 0 && c.clock != nil {
		c.clock.advance(step.advance)
	}
	return step.res, step.err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestAIService(client *scriptedClient, chains map[string][]string) *AIService {
	clock := newFakeClock()
	client.clock = clock
	return &AIService{
		client:          client,
		chains:          chains,
		attemptTimeout:  time.Second,
		totalBudget:     15 * time.Second,
		primaryAttempts: 1,
		backoffBase:     0,
		sleep:           func(time.Duration) {},
		now:             clock.Now,
	}
}

func chatChain(models ...string) map[string][]string {
	chain := config.ModelChain{}
	if len(models) > 0 {
		chain.Primary = models[0]
	}
	if len(models) > 1 {
		chain.Fallback1 = models[1]
	}
	if len(models) > 2 {
		chain.Fallback2 = models[2]
	}
	return map[string][]string{"chat": chain.Tiers()}
}

func TestProcessRequestPrimarySuccess(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{res: &GenerationResult{Text: "hello", Usage: Usage{TotalTokens: 7}}},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1", "fb2"))

	res, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.NoError(t, err)
	require.Equal(t, "hello", res.Text)
	require.Equal(t, "primary", res.ModelUsed)
	require.False(t, res.FallbackUsed)
	require.Equal(t, []string{"primary"}, client.calls)
}

func TestProcessRequestRateLimitSkipsPrimaryRetries(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{err: &UpstreamError{Kind: FailureRateLimited, Model: "primary", Message: "quota"}},
		{res: &GenerationResult{Text: "rescued"}},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1", "fb2"))
	svc.primaryAttempts = 3

	res, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.NoError(t, err)
	require.Equal(t, "fb1", res.ModelUsed)
	require.True(t, res.FallbackUsed)
	// the rate-limit aborts the primary phase without burning the remaining retries
	require.Equal(t, []string{"primary", "fb1"}, client.calls)
}

func TestProcessRequestTransientRetriesPrimary(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{err: &UpstreamError{Kind: FailureTransient, Model: "primary", Message: "hiccup"}},
		{res: &GenerationResult{Text: "second time lucky"}},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1"))
	svc.primaryAttempts = 2

	res, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.NoError(t, err)
	require.Equal(t, "primary", res.ModelUsed)
	require.False(t, res.FallbackUsed)
	require.Equal(t, []string{"primary", "primary"}, client.calls)
}

func TestProcessRequestEmptyResponseCascades(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{res: &GenerationResult{Text: "   "}},
		{res: &GenerationResult{Text: "filled in"}},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1"))

	res, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.NoError(t, err)
	require.Equal(t, "fb1", res.ModelUsed)
	require.True(t, res.FallbackUsed)
	require.Equal(t, []string{"primary", "fb1"}, client.calls)
}

func TestProcessRequestRegionRestrictedAllTiers(t *testing.T) {
	regionErr := &UpstreamError{Kind: FailureRegionRestricted, Message: "location not supported"}
	client := &scriptedClient{steps: []scriptStep{
		{err: regionErr}, {err: regionErr}, {err: regionErr},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1", "fb2"))

	_, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, "SERVICE_UNAVAILABLE_REGION", infraerrors.Code(err))
	require.Equal(t, []string{"primary", "fb1", "fb2"}, client.calls)
}

func TestProcessRequestDuplicateModelsNeverReExecuted(t *testing.T) {
	boom := &UpstreamError{Kind: FailureTransient, Message: "boom"}
	client := &scriptedClient{steps: []scriptStep{
		{err: boom}, {err: boom}, {err: boom}, {err: boom},
	}}
	// primary == fallback1 == fallback2 collapses to a single tier
	svc := newTestAIService(client, chatChain("same", "same", "same"))
	svc.primaryAttempts = 2

	_, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, "AI_PROCESSING_FAILED", infraerrors.Code(err))
	require.Equal(t, []string{"same", "same"}, client.calls)
}

func TestProcessRequestBudgetAbortsCascade(t *testing.T) {
	budget := 5 * time.Second
	client := &scriptedClient{steps: []scriptStep{
		// one attempt that burns the entire budget, then fails
		{err: &UpstreamError{Kind: FailureTransient, Message: "slow failure"}, advance: budget},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1", "fb2"))
	svc.totalBudget = budget

	_, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, "AI_PROCESSING_TIMEOUT", infraerrors.Code(err))
	// no further attempt is launched once the budget is spent
	require.Equal(t, []string{"primary"}, client.calls)
}

func TestProcessRequestUnknownRoute(t *testing.T) {
	svc := newTestAIService(&scriptedClient{}, chatChain("primary"))

	_, err := svc.ProcessRequest(context.Background(), "karaoke", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, "ROUTE_NOT_CONFIGURED", infraerrors.Code(err))
}

func TestProcessRequestLastErrorWins(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{err: &UpstreamError{Kind: FailureRateLimited, Message: "first"}},
		{err: &UpstreamError{Kind: FailureTransient, Message: "second"}},
	}}
	svc := newTestAIService(client, chatChain("primary", "fb1"))

	_, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, "AI_PROCESSING_FAILED", infraerrors.Code(err))
	require.Contains(t, infraerrors.Message(err), "second")
}

func TestProcessRequestBackoffGrowsLinearly(t *testing.T) {
	boom := &UpstreamError{Kind: FailureTransient, Message: "boom"}
	client := &scriptedClient{steps: []scriptStep{{err: boom}, {err: boom}, {err: boom}}}
	svc := newTestAIService(client, chatChain("primary"))
	svc.primaryAttempts = 3
	svc.backoffBase = 250 * time.Millisecond

	var slept []time.Duration
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err := svc.ProcessRequest(context.Background(), "chat", &GenerationInput{})
	require.Error(t, err)
	require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, slept)
}
