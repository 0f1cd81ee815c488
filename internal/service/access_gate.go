package service

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/domain"
	"github.com/neilnvaidya/owlby-api/internal/pkg/deadline"
)

// GateDecision is the allow/deny outcome for one generation request.
// Computed fresh per call; never persisted.
type GateDecision struct {
	Allowed    bool   `json:"allowed"`
	Tier       string `json:"tier"`
	Reason     string `json:"reason,omitempty"`
	DailyUsage int    `json:"daily_usage"`
	DailyLimit int    `json:"daily_limit"`
}

// AccessGateService decides, per user and per route, whether a generation
// request is allowed. Infrastructure failures inside the gate never block a
// request: the gate fails open so a transient outage cannot lock out a paying
// user, at the accepted cost of some free-tier overuse.
type AccessGateService struct {
	subs   SubscriptionRepository
	usage  UsageRepository
	limits map[string]int

	timeout time.Duration
	now     func() time.Time

	// L1 cache for the hot-path subscription lookup
	subCache     *ristretto.Cache
	subCacheTTL  time.Duration
	subJitterPct int
	subGroup     singleflight.Group
}

type subCacheEntry struct {
	sub *Subscription
}

// NewAccessGateService creates the gate with the per-route limits and cache
// settings from cfg.
func NewAccessGateService(subs SubscriptionRepository, usage UsageRepository, cfg *config.Config) *AccessGateService {
	s := &AccessGateService{
		subs:    subs,
		usage:   usage,
		limits:  cfg.Limits.ByRoute(),
		timeout: time.Duration(cfg.Gate.TimeoutMs) * time.Millisecond,
		now:     time.Now,
	}
	s.initSubCache(cfg.Gate.Cache)
	return s
}

func (s *AccessGateService) initSubCache(cc config.GateCacheConfig) {
	if cc.Size <= 0 || cc.TTLSeconds <= 0 {
		return
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cc.Size) * 10,
		MaxCost:     int64(cc.Size),
		BufferItems: 64,
	})
	if err != nil {
		slog.Warn("gate_sub_cache_init_failed", "error", err.Error())
		return
	}
	s.subCache = cache
	s.subCacheTTL = time.Duration(cc.TTLSeconds) * time.Second
	s.subJitterPct = cc.JitterPercent
}

// InvalidateSubscription drops the cached subscription snapshot for a user,
// e.g. after a checkout webhook updates the record.
func (s *AccessGateService) InvalidateSubscription(userID string) {
	if s.subCache != nil {
		s.subCache.Del(subCacheKey(userID))
	}
}

func subCacheKey(userID string) string {
	return "sub:" + userID
}

// jitteredTTL spreads cache expiry so entries do not expire in lockstep.
func (s *AccessGateService) jitteredTTL() time.Duration {
	ttl := s.subCacheTTL
	pct := s.subJitterPct
	if ttl <= 0 || pct <= 0 {
		return ttl
	}
	if pct > 100 {
		pct = 100
	}
	delta := float64(pct) / 100
	factor := 1 - delta + rand.Float64()*(2*delta)
	if factor <= 0 {
		return ttl
	}
	return time.Duration(float64(ttl) * factor)
}

// CanGenerate computes the gate decision for (userID, route) within the
// gate's own timeout. It never returns an error: any infrastructure failure
// or timeout produces a permissive free-tier decision.
func (s *AccessGateService) CanGenerate(ctx context.Context, userID, route string) *GateDecision {
	limit := s.limits[route]

	decision, err := deadline.Run(ctx, s.timeout, "access_gate",
		func(ctx context.Context) (*GateDecision, error) {
			return s.evaluate(ctx, userID, route, limit)
		})
	if err != nil {
		slog.Warn("access_gate_fail_open", "user_id", userID, "route", route, "error", err.Error())
		return &GateDecision{Allowed: true, Tier: domain.TierFree, DailyLimit: limit}
	}
	return decision
}

// evaluate applies the tier checks in order; the checks are mutually
// exclusive and exhaustive, and the tier never depends on the route (only
// the numeric limit does).
func (s *AccessGateService) evaluate(ctx context.Context, userID, route string, limit int) (*GateDecision, error) {
	sub, err := s.activeSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sub.ActiveAt(now) {
		return &GateDecision{Allowed: true, Tier: domain.TierPremium, DailyLimit: limit}, nil
	}

	early, err := s.subs.GetEarlyAdopterFlag(ctx, userID)
	if err != nil {
		return nil, err
	}
	if early {
		return &GateDecision{Allowed: true, Tier: domain.TierEarlyAdopter, DailyLimit: limit}, nil
	}

	day := now.UTC().Format(usageDateLayout)
	usage, err := s.usage.GetDailyUsage(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	count := usage.CountFor(route)
	if limit > 0 && count >= limit {
		slog.Info("access_gate_daily_limit_reached",
			"user_id", userID, "route", route, "usage", count, "limit", limit)
		return &GateDecision{
			Allowed:    false,
			Tier:       domain.TierFree,
			Reason:     domain.DenyReasonDailyLimitReached,
			DailyUsage: count,
			DailyLimit: limit,
		}, nil
	}
	return &GateDecision{Allowed: true, Tier: domain.TierFree, DailyUsage: count, DailyLimit: limit}, nil
}

// activeSubscription fetches the user's subscription snapshot through the L1
// cache, deduplicating concurrent misses with singleflight. A user without a
// subscription is cached too (negative entry).
func (s *AccessGateService) activeSubscription(ctx context.Context, userID string) (*Subscription, error) {
	key := subCacheKey(userID)
	if s.subCache != nil {
		if v, ok := s.subCache.Get(key); ok {
			if entry, ok := v.(*subCacheEntry); ok {
				return entry.sub, nil
			}
		}
	}

	v, err, _ := s.subGroup.Do(key, func() (any, error) {
		sub, err := s.subs.GetActiveSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.subCache != nil {
			s.subCache.SetWithTTL(key, &subCacheEntry{sub: sub}, 1, s.jitteredTTL())
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	sub, _ := v.(*Subscription)
	return sub, nil
}
