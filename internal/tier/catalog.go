// Package tier defines the subscription tiers and their usage limits.
package tier

// Tier identifies a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Unlimited marks a limit with no cap.
const Unlimited = -1

// Limits holds the per-month caps and share-credit allotments for a tier.
type Limits struct {
	ExamsPerMonth         int
	PracticesPerMonth     int
	ExamShareCredits      int
	PracticeShareCredits  int
	LibraryAccessPerMonth int
}

// Catalog maps tiers to their limits. Pure data, safe for concurrent reads.
type Catalog struct {
	limits map[Tier]Limits
}

// DefaultCatalog returns the shipped tier configuration.
func DefaultCatalog() *Catalog {
	return &Catalog{
		limits: map[Tier]Limits{
			TierFree: {
				ExamsPerMonth:         3,
				PracticesPerMonth:     5,
				ExamShareCredits:      1,
				PracticeShareCredits:  2,
				LibraryAccessPerMonth: 10,
			},
			TierPremium: {
				ExamsPerMonth:         50,
				PracticesPerMonth:     100,
				ExamShareCredits:      10,
				PracticeShareCredits:  20,
				LibraryAccessPerMonth: Unlimited,
			},
		},
	}
}

// Limits returns the limits for a tier; unknown tiers resolve to free.
func (c *Catalog) Limits(t Tier) Limits {
	if c == nil {
		return Limits{}
	}
	if limits, ok := c.limits[t]; ok {
		return limits
	}
	return c.limits[TierFree]
}

// IsUnlimited reports whether a limit value means no cap.
func IsUnlimited(limit int) bool { return limit < 0 }
