package domain

// Generation route constants
const (
	RouteChat   = "chat"
	RouteLesson = "lesson"
	RouteStory  = "story"
)

// Routes lists every generation route in a stable order.
var Routes = []string{RouteChat, RouteLesson, RouteStory}

// ValidRoute reports whether r names a known generation route.
func ValidRoute(r string) bool {
	switch r {
	case RouteChat, RouteLesson, RouteStory:
		return true
	}
	return false
}

// Access tier constants
const (
	TierPremium      = "premium"
	TierEarlyAdopter = "early_adopter"
	TierFree         = "free"
)

// Gate denial reason constants
const (
	DenyReasonSubscriptionRequired = "subscription_required"
	DenyReasonDailyLimitReached    = "daily_limit_reached"
)
