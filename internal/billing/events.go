// Package billing integrates the external subscription billing
// provider: webhook verification and parsing, and the outbound API
// used for checkout, portal and subscription management.
package billing

import (
	"encoding/json"
	"strings"
	"time"
)

// Webhook event types the reconciler consumes.
const (
	TypeCheckoutCompleted    = "checkout.session.completed"
	TypeSubscriptionCreated  = "customer.subscription.created"
	TypeSubscriptionUpdated  = "customer.subscription.updated"
	TypeSubscriptionDeleted  = "customer.subscription.deleted"
	TypeInvoicePaid          = "invoice.paid"
	TypeInvoicePaymentFailed = "invoice.payment_failed"
)

// Event is one parsed webhook notification.
type Event interface {
	EventID() string
	EventType() string
}

type eventHeader struct {
	id  string
	typ string
}

func (h eventHeader) EventID() string   { return h.id }
func (h eventHeader) EventType() string { return h.typ }

// CheckoutCompleted signals a finished checkout session. Metadata on
// the session carries which tenant and plan the checkout was for.
type CheckoutCompleted struct {
	eventHeader
	SessionID      string
	CustomerID     string
	SubscriptionID string
	TenantSlug     string
	PlanSlug       string
	OccurredAt     time.Time
}

// SubscriptionChanged covers subscription create and update
// notifications; the provider's status field is carried verbatim.
type SubscriptionChanged struct {
	eventHeader
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
	TenantSlug        string
	PlanSlug          string
	Created           bool
	OccurredAt        time.Time
}

// SubscriptionDeleted signals the provider ended the subscription.
type SubscriptionDeleted struct {
	eventHeader
	SubscriptionID string
	CustomerID     string
	EndedAt        *time.Time
	OccurredAt     time.Time
}

// InvoicePaid signals a successful payment on the subscription.
type InvoicePaid struct {
	eventHeader
	CustomerID     string
	SubscriptionID string
	OccurredAt     time.Time
}

// InvoicePaymentFailed signals a failed payment attempt.
type InvoicePaymentFailed struct {
	eventHeader
	CustomerID     string
	SubscriptionID string
	OccurredAt     time.Time
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	TrialEnd          int64  `json:"trial_end"`
	EndedAt           int64  `json:"ended_at"`
	Items             struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// ParseEvent decodes a verified webhook payload into one of the event
// types above. Unhandled event types return ErrEventIgnored.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, ErrInvalidEvent
	}

	header := eventHeader{id: env.ID, typ: strings.TrimSpace(env.Type)}
	occurredAt := unixTime(env.Created)

	switch header.typ {
	case TypeCheckoutCompleted:
		var session checkoutSessionObject
		if err := json.Unmarshal(env.Data.Object, &session); err != nil {
			return nil, ErrInvalidPayload
		}
		if strings.TrimSpace(session.ID) == "" {
			return nil, ErrInvalidEvent
		}
		return &CheckoutCompleted{
			eventHeader:    header,
			SessionID:      session.ID,
			CustomerID:     strings.TrimSpace(session.Customer),
			SubscriptionID: strings.TrimSpace(session.Subscription),
			TenantSlug:     strings.TrimSpace(session.Metadata["tenant_slug"]),
			PlanSlug:       strings.TrimSpace(session.Metadata["plan_slug"]),
			OccurredAt:     occurredAt,
		}, nil

	case TypeSubscriptionCreated, TypeSubscriptionUpdated:
		sub, err := parseSubscriptionObject(env.Data.Object)
		if err != nil {
			return nil, err
		}
		var periodEnd *time.Time
		if sub.CurrentPeriodEnd > 0 {
			t := unixTime(sub.CurrentPeriodEnd)
			periodEnd = &t
		}
		var trialEnd *time.Time
		if sub.TrialEnd > 0 {
			t := unixTime(sub.TrialEnd)
			trialEnd = &t
		}
		priceID := ""
		if len(sub.Items.Data) > 0 {
			priceID = sub.Items.Data[0].Price.ID
		}
		return &SubscriptionChanged{
			eventHeader:       header,
			SubscriptionID:    sub.ID,
			CustomerID:        strings.TrimSpace(sub.Customer),
			PriceID:           strings.TrimSpace(priceID),
			Status:            strings.TrimSpace(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  periodEnd,
			TrialEnd:          trialEnd,
			TenantSlug:        strings.TrimSpace(sub.Metadata["tenant_slug"]),
			PlanSlug:          strings.TrimSpace(sub.Metadata["plan_slug"]),
			Created:           header.typ == TypeSubscriptionCreated,
			OccurredAt:        occurredAt,
		}, nil

	case TypeSubscriptionDeleted:
		sub, err := parseSubscriptionObject(env.Data.Object)
		if err != nil {
			return nil, err
		}
		var endedAt *time.Time
		if sub.EndedAt > 0 {
			t := unixTime(sub.EndedAt)
			endedAt = &t
		}
		return &SubscriptionDeleted{
			eventHeader:    header,
			SubscriptionID: sub.ID,
			CustomerID:     strings.TrimSpace(sub.Customer),
			EndedAt:        endedAt,
			OccurredAt:     occurredAt,
		}, nil

	case TypeInvoicePaid, TypeInvoicePaymentFailed:
		var invoice invoiceObject
		if err := json.Unmarshal(env.Data.Object, &invoice); err != nil {
			return nil, ErrInvalidPayload
		}
		if header.typ == TypeInvoicePaid {
			return &InvoicePaid{
				eventHeader:    header,
				CustomerID:     strings.TrimSpace(invoice.Customer),
				SubscriptionID: strings.TrimSpace(invoice.Subscription),
				OccurredAt:     occurredAt,
			}, nil
		}
		return &InvoicePaymentFailed{
			eventHeader:    header,
			CustomerID:     strings.TrimSpace(invoice.Customer),
			SubscriptionID: strings.TrimSpace(invoice.Subscription),
			OccurredAt:     occurredAt,
		}, nil

	default:
		return nil, ErrEventIgnored
	}
}

func parseSubscriptionObject(raw json.RawMessage) (*subscriptionObject, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidEvent
	}
	return &sub, nil
}

func unixTime(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
