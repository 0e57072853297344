// Package billing resolves subscription entitlement for a messaging-platform
// user against a Stripe-compatible billing API. Customer records there were
// created by an unrelated checkout flow, so no single phone lookup is
// reliable; resolution is a short-circuiting cascade of strategies.
package billing

import "context"

const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
)

type Customer struct {
	ID            string            `json:"id"`
	Phone         string            `json:"phone"`
	Deleted       bool              `json:"deleted"`
	Metadata      map[string]string `json:"metadata"`
	Subscriptions SubscriptionList  `json:"subscriptions"`
}

// SubscriptionList mirrors the API's nested list object; Data is only
// populated when the caller asked for the expansion.
type SubscriptionList struct {
	Data []Subscription `json:"data"`
}

type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	TrialEnd int64             `json:"trial_end"`
	Metadata map[string]string `json:"metadata"`
}

type PaymentIntent struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
}

type Invoice struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client is the narrow surface the resolver needs from the billing system.
type Client interface {
	SearchCustomers(ctx context.Context, query string) ([]Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	// ListCustomers returns up to limit recent customers, optionally with
	// their subscriptions expanded inline.
	ListCustomers(ctx context.Context, limit int, expandSubscriptions bool) ([]Customer, error)
	ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]Subscription, error)
	ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]PaymentIntent, error)
	ListInvoices(ctx context.Context, customerID, status string, limit int) ([]Invoice, error)
	UpdateCustomerPhone(ctx context.Context, customerID, phoneNumber string) error
}
