package billing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sofialabs/sofia-bot/internal/phone"
	"github.com/sofialabs/sofia-bot/internal/users"
)

const (
	customerRefPrefix = "cus_"
	scanPageLimit     = 100
	recentPaymentAge  = 30 * 24 * time.Hour
)

// UserGetter is the slice of the user store the resolver needs: the cached
// verdict from the last resolution.
type UserGetter interface {
	Get(ctx context.Context, userID string) (*users.User, error)
}

// Resolver determines current entitlement for a user identifier. It trusts a
// cached positive verdict (billing status can change without notice, so a
// cached false is always re-checked) and otherwise walks an ordered strategy
// cascade against the billing system, short-circuiting on the first hit.
type Resolver struct {
	cache  UserGetter
	client Client
	now    func() time.Time
}

func NewResolver(cache UserGetter, client Client) *Resolver {
	return &Resolver{cache: cache, client: client, now: time.Now}
}

type strategy struct {
	name string
	run  func(ctx context.Context) (bool, error)
}

// Resolve never fails: any internal error counts as "this strategy found
// nothing" and the cascade continues, falling through to false.
func (r *Resolver) Resolve(ctx context.Context, userID string) bool {
	canonical := phone.Normalize(userID)
	noPlus := phone.StripPlus(canonical)

	strategies := []strategy{
		{"cached-verdict", func(ctx context.Context) (bool, error) {
			return r.cachedVerdict(ctx, userID)
		}},
		{"phone-search", func(ctx context.Context) (bool, error) {
			return r.phoneSearch(ctx, canonical, noPlus)
		}},
		{"customer-reference", func(ctx context.Context) (bool, error) {
			return r.customerReference(ctx, userID)
		}},
		{"broad-scan", func(ctx context.Context) (bool, error) {
			return r.broadScan(ctx, userID, canonical, noPlus)
		}},
	}

	for _, s := range strategies {
		hit, err := s.run(ctx)
		if err != nil {
			log.Printf("billing: resolve user=%s strategy=%s error=%v", userID, s.name, err)
			continue
		}
		if hit {
			log.Printf("billing: resolve user=%s strategy=%s verdict=true", userID, s.name)
			return true
		}
	}
	return false
}

func (r *Resolver) cachedVerdict(ctx context.Context, userID string) (bool, error) {
	u, err := r.cache.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsSubscribed, nil
}

func (r *Resolver) phoneSearch(ctx context.Context, canonical, noPlus string) (bool, error) {
	queries := []string{
		fmt.Sprintf("phone:'%s'", canonical),
		fmt.Sprintf("phone:'%s'", noPlus),
	}
	for _, q := range queries {
		customers, err := r.client.SearchCustomers(ctx, q)
		if err != nil {
			log.Printf("billing: search query=%s error=%v", q, err)
			continue
		}
		for _, c := range customers {
			if r.customerEntitled(ctx, c.ID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *Resolver) customerReference(ctx context.Context, userID string) (bool, error) {
	if !strings.HasPrefix(userID, customerRefPrefix) {
		return false, nil
	}
	c, err := r.client.GetCustomer(ctx, userID)
	if err != nil {
		return false, err
	}
	if c.Deleted {
		return false, nil
	}
	return r.customerEntitled(ctx, c.ID), nil
}

// broadScan is the bounded last-resort tier: a single page of recent
// customers with subscriptions expanded, matched by exact string equality
// against every phone-shaped field. It knowingly misses customers outside
// the page in exchange for a hard latency ceiling.
func (r *Resolver) broadScan(ctx context.Context, raw, canonical, noPlus string) (bool, error) {
	customers, err := r.client.ListCustomers(ctx, scanPageLimit, true)
	if err != nil {
		return false, err
	}

	matches := func(p string) bool {
		return p != "" && (p == canonical || p == noPlus || p == raw)
	}

	for _, c := range customers {
		if matches(c.Phone) || matches(c.Metadata["phone"]) || matches(c.Metadata["whatsapp"]) {
			if r.customerEntitled(ctx, c.ID) {
				return true, nil
			}
		}

		// An active/trialing expanded subscription whose own metadata phone
		// matches counts on its own, without re-running the status check.
		for _, sub := range c.Subscriptions.Data {
			if sub.Status != StatusActive && sub.Status != StatusTrialing {
				continue
			}
			if matches(sub.Metadata["phone"]) {
				return true, nil
			}
		}
	}
	return false, nil
}

// customerEntitled is the per-customer status check: an active/trialing or
// still-in-trial subscription, a successful payment in the trailing 30 days,
// or any paid invoice. First positive wins; errors count as not entitled.
func (r *Resolver) customerEntitled(ctx context.Context, customerID string) bool {
	subs, err := r.client.ListSubscriptions(ctx, customerID, "all", 10)
	if err != nil {
		log.Printf("billing: list subscriptions customer=%s error=%v", customerID, err)
	}
	for _, s := range subs {
		if s.Status == StatusActive || s.Status == StatusTrialing {
			return true
		}
		if s.TrialEnd > 0 && time.Unix(s.TrialEnd, 0).After(r.now()) {
			return true
		}
	}

	payments, err := r.client.ListPaymentIntents(ctx, customerID, 5)
	if err != nil {
		log.Printf("billing: list payments customer=%s error=%v", customerID, err)
	}
	cutoff := r.now().Add(-recentPaymentAge)
	for _, p := range payments {
		if p.Status == "succeeded" && time.Unix(p.Created, 0).After(cutoff) {
			return true
		}
	}

	invoices, err := r.client.ListInvoices(ctx, customerID, "paid", 5)
	if err != nil {
		log.Printf("billing: list invoices customer=%s error=%v", customerID, err)
	}
	return len(invoices) > 0
}
