// Package stripe maps Stripe webhook deliveries onto the subscription
// lifecycle signals.
package stripe

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/shareprep/shareprep/internal/config"
	paymentdomain "github.com/shareprep/shareprep/internal/payment/domain"
)

type Adapter struct {
	webhookSecret string
}

// NewAdapter builds the Stripe adapter. With no webhook secret
// configured, signature verification is skipped; that mode exists for
// local development only.
func NewAdapter(cfg config.Config) paymentdomain.Adapter {
	return &Adapter{webhookSecret: cfg.StripeWebhookSecret}
}

func (a *Adapter) Provider() string { return "stripe" }

func (a *Adapter) VerifyAndParse(payload []byte, headers http.Header) (paymentdomain.PaymentEvent, error) {
	var (
		eventID   string
		eventType string
		object    map[string]any
	)

	if a.webhookSecret != "" {
		event, err := webhook.ConstructEvent(payload, headers.Get("Stripe-Signature"), a.webhookSecret)
		if err != nil {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidSignature
		}
		eventID = event.ID
		eventType = string(event.Type)
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidPayload
		}
	} else {
		var raw struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			Data struct {
				Object map[string]any `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil || raw.ID == "" || raw.Type == "" {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidPayload
		}
		eventID = raw.ID
		eventType = raw.Type
		object = raw.Data.Object
	}

	mapped, err := mapEvent(stripe.EventType(eventType), object)
	if err != nil {
		return paymentdomain.PaymentEvent{ProviderEventID: eventID}, err
	}
	mapped.ProviderEventID = eventID
	return mapped, nil
}

func mapEvent(eventType stripe.EventType, object map[string]any) (paymentdomain.PaymentEvent, error) {
	userID, ok := userIDFromObject(object)

	switch eventType {
	case "checkout.session.completed":
		if !ok {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidCustomer
		}
		return paymentdomain.PaymentEvent{Type: paymentdomain.EventCheckoutCompleted, UserID: userID, PeriodEnd: periodEndFromObject(object)}, nil

	case "customer.subscription.created":
		if !ok {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidCustomer
		}
		mappedType := paymentdomain.EventCheckoutCompleted
		if status, _ := object["status"].(string); status == "trialing" {
			mappedType = paymentdomain.EventTrialStarted
		}
		return paymentdomain.PaymentEvent{Type: mappedType, UserID: userID, PeriodEnd: periodEndFromObject(object)}, nil

	case "customer.subscription.updated":
		if !ok {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidCustomer
		}
		mappedType := paymentdomain.EventCancellationDisarmed
		if cancel, _ := object["cancel_at_period_end"].(bool); cancel {
			mappedType = paymentdomain.EventCancellationArmed
		}
		return paymentdomain.PaymentEvent{Type: mappedType, UserID: userID, PeriodEnd: periodEndFromObject(object)}, nil

	case "invoice.payment_failed":
		if !ok {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidCustomer
		}
		return paymentdomain.PaymentEvent{Type: paymentdomain.EventPaymentFailed, UserID: userID}, nil

	case "invoice.payment_succeeded", "invoice.paid":
		if !ok {
			return paymentdomain.PaymentEvent{}, paymentdomain.ErrInvalidCustomer
		}
		return paymentdomain.PaymentEvent{Type: paymentdomain.EventPaymentSucceeded, UserID: userID}, nil

	default:
		return paymentdomain.PaymentEvent{}, paymentdomain.ErrEventIgnored
	}
}

// userIDFromObject digs the platform user id out of the places Stripe
// puts it: object metadata, the checkout client reference, or invoice
// subscription details.
func userIDFromObject(object map[string]any) (snowflake.ID, bool) {
	if id, ok := parseUserID(metadataValue(object, "user_id")); ok {
		return id, true
	}
	if ref, _ := object["client_reference_id"].(string); ref != "" {
		if id, ok := parseUserID(ref); ok {
			return id, true
		}
	}
	if details, _ := object["subscription_details"].(map[string]any); details != nil {
		if id, ok := parseUserID(metadataValue(details, "user_id")); ok {
			return id, true
		}
	}
	return 0, false
}

func metadataValue(object map[string]any, key string) string {
	metadata, _ := object["metadata"].(map[string]any)
	if metadata == nil {
		return ""
	}
	value, _ := metadata[key].(string)
	return value
}

func parseUserID(raw string) (snowflake.ID, bool) {
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}

func periodEndFromObject(object map[string]any) *time.Time {
	raw, ok := object["current_period_end"].(float64)
	if !ok || raw <= 0 {
		return nil
	}
	end := time.Unix(int64(raw), 0).UTC()
	return &end
}
