package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/domain"
)

type fakeGateStore struct {
	sub      *Subscription
	subErr   error
	early    bool
	earlyErr error
	usage    *DailyUsage
	usageErr error
	delay    time.Duration

	subCalls int
}

func (f *fakeGateStore) GetActiveSubscription(ctx context.Context, _ string) (*Subscription, error) {
	f.subCalls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.sub, f.subErr
}

func (f *fakeGateStore) GetEarlyAdopterFlag(context.Context, string) (bool, error) {
	return f.early, f.earlyErr
}

func (f *fakeGateStore) GetDailyUsage(_ context.Context, _, day string) (*DailyUsage, error) {
	if f.usageErr != nil {
		return nil, f.usageErr
	}
	if f.usage == nil {
		return nil, nil
	}
	u := *f.usage
	u.Date = day
	return &u, nil
}

func (f *fakeGateStore) IncrementDailyUsage(context.Context, string, string, string) error {
	return nil
}

func (f *fakeGateStore) PurgeUsageBefore(context.Context, string) (int64, error) {
	return 0, nil
}

func newTestGate(store *fakeGateStore) *AccessGateService {
	cfg := &config.Config{
		Limits: config.LimitsConfig{ChatDaily: 10, LessonDaily: 5, StoryDaily: 5},
		Gate:   config.GateConfig{TimeoutMs: 200},
	}
	return NewAccessGateService(store, store, cfg)
}

func TestCanGeneratePremiumBypassesCounter(t *testing.T) {
	store := &fakeGateStore{
		sub:   &Subscription{UserID: "u1", IsActive: true, ExpiresAt: time.Now().Add(24 * time.Hour)},
		usage: &DailyUsage{Counts: map[string]int{domain.RouteChat: 999}},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierPremium, decision.Tier)
	require.Empty(t, decision.Reason)
}

func TestCanGenerateExpiredSubscriptionFallsThrough(t *testing.T) {
	store := &fakeGateStore{
		sub: &Subscription{UserID: "u1", IsActive: true, ExpiresAt: time.Now().Add(-time.Hour)},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
}

func TestCanGenerateInactiveSubscriptionFallsThrough(t *testing.T) {
	store := &fakeGateStore{
		sub: &Subscription{UserID: "u1", IsActive: false, ExpiresAt: time.Now().Add(time.Hour)},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.Equal(t, domain.TierFree, decision.Tier)
}

func TestCanGenerateEarlyAdopter(t *testing.T) {
	store := &fakeGateStore{
		early: true,
		usage: &DailyUsage{Counts: map[string]int{domain.RouteStory: 999}},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteStory)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierEarlyAdopter, decision.Tier)
}

func TestCanGenerateFreeUnderLimit(t *testing.T) {
	store := &fakeGateStore{
		usage: &DailyUsage{Counts: map[string]int{domain.RouteChat: 3}},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
	require.Equal(t, 3, decision.DailyUsage)
	require.Equal(t, 10, decision.DailyLimit)
}

func TestCanGenerateFreeAtLimitDenied(t *testing.T) {
	store := &fakeGateStore{
		usage: &DailyUsage{Counts: map[string]int{domain.RouteChat: 10}},
	}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.False(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
	require.Equal(t, domain.DenyReasonDailyLimitReached, decision.Reason)
	require.Equal(t, 10, decision.DailyUsage)
	require.Equal(t, 10, decision.DailyLimit)
}

func TestCanGenerateNoUsageRowAllowed(t *testing.T) {
	gate := newTestGate(&fakeGateStore{})

	decision := gate.CanGenerate(context.Background(), "brand-new-user", domain.RouteLesson)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
	require.Zero(t, decision.DailyUsage)
	require.Equal(t, 5, decision.DailyLimit)
}

func TestCanGenerateLimitIsPerRoute(t *testing.T) {
	store := &fakeGateStore{
		usage: &DailyUsage{Counts: map[string]int{domain.RouteChat: 10}},
	}
	gate := newTestGate(store)

	require.False(t, gate.CanGenerate(context.Background(), "u1", domain.RouteChat).Allowed)
	require.True(t, gate.CanGenerate(context.Background(), "u1", domain.RouteLesson).Allowed)
}

func TestCanGenerateFailsOpenOnSubscriptionError(t *testing.T) {
	store := &fakeGateStore{subErr: errors.New("connection refused")}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
	require.Equal(t, 10, decision.DailyLimit)
}

func TestCanGenerateFailsOpenOnUsageError(t *testing.T) {
	store := &fakeGateStore{usageErr: errors.New("query timeout")}
	gate := newTestGate(store)

	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
}

func TestCanGenerateFailsOpenOnTimeout(t *testing.T) {
	store := &fakeGateStore{delay: time.Second}
	gate := newTestGate(store)

	started := time.Now()
	decision := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.True(t, decision.Allowed)
	require.Equal(t, domain.TierFree, decision.Tier)
	require.Less(t, time.Since(started), 800*time.Millisecond)
}

func TestCanGenerateCachesSubscriptionLookups(t *testing.T) {
	store := &fakeGateStore{
		sub: &Subscription{UserID: "u1", IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
	}
	cfg := &config.Config{
		Limits: config.LimitsConfig{ChatDaily: 10, LessonDaily: 5, StoryDaily: 5},
		Gate: config.GateConfig{
			TimeoutMs: 200,
			Cache:     config.GateCacheConfig{Size: 128, TTLSeconds: 60},
		},
	}
	gate := NewAccessGateService(store, store, cfg)

	first := gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.Equal(t, domain.TierPremium, first.Tier)

	// ristretto admits writes asynchronously
	require.Eventually(t, func() bool {
		before := store.subCalls
		gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
		return store.subCalls == before
	}, time.Second, 10*time.Millisecond)

	gate.InvalidateSubscription("u1")
	before := store.subCalls
	gate.CanGenerate(context.Background(), "u1", domain.RouteChat)
	require.Equal(t, before+1, store.subCalls)
}
