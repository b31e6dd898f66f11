package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/boardstack/boardstack/internal/config"
	"go.uber.org/zap"
)

// CheckoutParams describes a checkout session for one tenant and plan.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	TenantSlug string
	PlanSlug   string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider-hosted payment page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Gateway is the outbound surface to the billing provider.
type Gateway interface {
	// EnsureCustomer returns the provider customer id for the tenant,
	// creating the customer on first use.
	EnsureCustomer(ctx context.Context, existingID, slug, name, email string) (string, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// ChangePlan swaps the subscription's single item to the new price
	// with prorations.
	ChangePlan(ctx context.Context, subscriptionID, priceID string) error

	// CancelSubscription cancels at period end, or immediately when
	// atPeriodEnd is false.
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
}

type gateway struct {
	cfg    config.BillingConfig
	client *http.Client
	log    *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) Gateway {
	return &gateway{
		cfg:    cfg.Billing,
		client: &http.Client{Timeout: cfg.Billing.Timeout},
		log:    log.Named("billing.gateway"),
	}
}

func (g *gateway) EnsureCustomer(ctx context.Context, existingID, slug, name, email string) (string, error) {
	if strings.TrimSpace(existingID) != "" {
		return existingID, nil
	}

	form := url.Values{}
	form.Set("name", name)
	form.Set("email", email)
	form.Set("metadata[tenant_slug]", slug)

	var created struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/customers", form, &created); err != nil {
		return "", err
	}
	g.log.Info("billing customer created", zap.String("tenant", slug), zap.String("customer_id", created.ID))
	return created.ID, nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", params.CustomerID)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[tenant_slug]", params.TenantSlug)
	form.Set("metadata[plan_slug]", params.PlanSlug)
	form.Set("subscription_data[metadata][tenant_slug]", params.TenantSlug)
	form.Set("subscription_data[metadata][plan_slug]", params.PlanSlug)

	var session CheckoutSession
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (g *gateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var session struct {
		URL string `json:"url"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", form, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (g *gateway) ChangePlan(ctx context.Context, subscriptionID, priceID string) error {
	var sub struct {
		Items struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"items"`
	}
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := g.do(ctx, http.MethodGet, path, nil, &sub); err != nil {
		return err
	}
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("%w: subscription %s has no items", ErrProvider, subscriptionID)
	}

	form := url.Values{}
	form.Set("items[0][id]", sub.Items.Data[0].ID)
	form.Set("items[0][price]", priceID)
	form.Set("proration_behavior", "create_prorations")
	return g.do(ctx, http.MethodPost, path, form, nil)
}

func (g *gateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if atPeriodEnd {
		form := url.Values{}
		form.Set("cancel_at_period_end", "true")
		return g.do(ctx, http.MethodPost, path, form, nil)
	}
	return g.do(ctx, http.MethodDelete, path, nil, nil)
}

func (g *gateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(g.cfg.APIBase, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		g.log.Warn("billing api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	return nil
}
