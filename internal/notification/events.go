// Package notification stores user-facing notification events in an
// outbox table. Delivery is a downstream concern; rows here are
// fire-and-forget relative to ledger correctness.
package notification

// Notification types emitted by the core.
const (
	TypeRewardGranted      = "reward_granted"
	TypePaymentFailed      = "payment_failed"
	TypePaymentRecovered   = "payment_recovered"
	TypeGraceExpiring      = "grace_expiring"
	TypeDowngradeCompleted = "downgrade_completed"
)

// RewardGrantedPayload captures what the owner sees when a reward lands.
type RewardGrantedPayload struct {
	CompletionID string `json:"completion_id"`
	CreditType   string `json:"credit_type"`
	NewBalance   int    `json:"new_balance,omitempty"`
}

// PaymentFailedPayload tells the user when premium access will lapse.
type PaymentFailedPayload struct {
	GracePeriodEnd string `json:"grace_period_end"`
	DaysRemaining  int    `json:"days_remaining"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p RewardGrantedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"completion_id": p.CompletionID,
		"credit_type":   p.CreditType,
	}
	if p.NewBalance > 0 {
		payload["new_balance"] = p.NewBalance
	}
	return payload
}

// ToMap converts a payload into an outbox-friendly map.
func (p PaymentFailedPayload) ToMap() map[string]any {
	return map[string]any{
		"grace_period_end": p.GracePeriodEnd,
		"days_remaining":   p.DaysRemaining,
	}
}
