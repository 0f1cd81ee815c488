package service

import (
	"context"
	"encoding/json"
	"time"
)

// usageDateLayout is the UTC day key for daily usage records.
const usageDateLayout = "2006-01-02"

// Subscription is the slice of the subscription record the gate reads.
type Subscription struct {
	UserID    string
	IsActive  bool
	ExpiresAt time.Time
}

// ActiveAt reports whether the subscription grants access at the given time.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.IsActive && !s.ExpiresAt.Before(now)
}

// DailyUsage holds a user's per-route counters for one UTC day.
type DailyUsage struct {
	Date   string
	Counts map[string]int
}

// CountFor returns the counter for route; nil usage counts as zero.
func (u *DailyUsage) CountFor(route string) int {
	if u == nil {
		return 0
	}
	return u.Counts[route]
}

// SubscriptionRepository reads subscription and user-flag state.
type SubscriptionRepository interface {
	// GetActiveSubscription returns the user's most relevant subscription
	// record, or (nil, nil) when the user has none.
	GetActiveSubscription(ctx context.Context, userID string) (*Subscription, error)
	GetEarlyAdopterFlag(ctx context.Context, userID string) (bool, error)
}

// UsageRepository reads and writes per-day generation counters.
type UsageRepository interface {
	// GetDailyUsage returns the counters for (userID, day), or (nil, nil)
	// when no row exists yet.
	GetDailyUsage(ctx context.Context, userID, day string) (*DailyUsage, error)
	// IncrementDailyUsage must be a single atomic upsert-and-increment so
	// concurrent requests never lose updates.
	IncrementDailyUsage(ctx context.Context, userID, day, route string) error
	// PurgeUsageBefore deletes counters for days earlier than day and
	// returns the number of rows removed.
	PurgeUsageBefore(ctx context.Context, day string) (int64, error)
}

// GenerationInput is one fully-built request to the generation service.
type GenerationInput struct {
	SystemInstruction string
	Contents          json.RawMessage
	ResponseSchema    json.RawMessage
	MaxOutputTokens   int
}

// Usage is opaque pass-through token accounting, used only for observability.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// GenerationResult is one model's completion.
type GenerationResult struct {
	Text  string
	Usage Usage
}

// GenerationClient issues a single generation call against one named model.
// Implementations classify upstream failures into *UpstreamError variants at
// this boundary so callers never match on message text.
type GenerationClient interface {
	Generate(ctx context.Context, model string, input *GenerationInput) (*GenerationResult, error)
}
