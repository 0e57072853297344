package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofialabs/sofia-bot/internal/users"
)

type fakeCache struct {
	user *users.User
	err  error
}

func (f *fakeCache) Get(ctx context.Context, userID string) (*users.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

// fakeClient records calls and serves canned data per customer ID.
type fakeClient struct {
	searchResults map[string][]Customer
	customers     map[string]*Customer
	listPage      []Customer
	subs          map[string][]Subscription
	payments      map[string][]PaymentIntent
	invoices      map[string][]Invoice

	searchQueries []string
	calls         int

	searchErr error
	listErr   error
}

func (f *fakeClient) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	f.calls++
	f.searchQueries = append(f.searchQueries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults[query], nil
}

func (f *fakeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	f.calls++
	c, ok := f.customers[id]
	if !ok {
		return nil, errors.New("no such customer")
	}
	return c, nil
}

func (f *fakeClient) ListCustomers(ctx context.Context, limit int, expand bool) ([]Customer, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listPage, nil
}

func (f *fakeClient) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]Subscription, error) {
	f.calls++
	return f.subs[customerID], nil
}

func (f *fakeClient) ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]PaymentIntent, error) {
	f.calls++
	return f.payments[customerID], nil
}

func (f *fakeClient) ListInvoices(ctx context.Context, customerID, status string, limit int) ([]Invoice, error) {
	f.calls++
	return f.invoices[customerID], nil
}

func (f *fakeClient) UpdateCustomerPhone(ctx context.Context, customerID, phoneNumber string) error {
	f.calls++
	return nil
}

func newResolver(cache UserGetter, client Client) *Resolver {
	r := NewResolver(cache, client)
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

func TestResolveCachedPositiveSkipsBilling(t *testing.T) {
	client := &fakeClient{}
	cache := &fakeCache{user: &users.User{UserID: "5215512345678", IsSubscribed: true}}

	r := newResolver(cache, client)
	assert.True(t, r.Resolve(context.Background(), "5215512345678"))
	assert.Zero(t, client.calls, "cached positive verdict must not hit billing")
}

func TestResolveCachedNegativeIsNotTrusted(t *testing.T) {
	client := &fakeClient{
		searchResults: map[string][]Customer{
			"phone:'+5215512345678'": {{ID: "cus_123"}},
		},
		subs: map[string][]Subscription{
			"cus_123": {{ID: "sub_1", Status: StatusActive}},
		},
	}
	cache := &fakeCache{user: &users.User{UserID: "5215512345678", IsSubscribed: false}}

	r := newResolver(cache, client)
	assert.True(t, r.Resolve(context.Background(), "5215512345678"))
	assert.NotZero(t, client.calls)
}

func TestResolvePhoneSearchTriesBothVariants(t *testing.T) {
	client := &fakeClient{
		searchResults: map[string][]Customer{
			"phone:'5215512345678'": {{ID: "cus_np"}},
		},
		subs: map[string][]Subscription{
			"cus_np": {{ID: "sub_1", Status: StatusTrialing}},
		},
	}
	cache := &fakeCache{err: errors.New("db down")}

	r := newResolver(cache, client)
	require.True(t, r.Resolve(context.Background(), "5215512345678"))
	assert.Contains(t, client.searchQueries, "phone:'+5215512345678'")
	assert.Contains(t, client.searchQueries, "phone:'5215512345678'")
}

func TestResolveCustomerReference(t *testing.T) {
	client := &fakeClient{
		customers: map[string]*Customer{
			"cus_abc": {ID: "cus_abc"},
		},
		invoices: map[string][]Invoice{
			"cus_abc": {{ID: "in_1", Status: "paid"}},
		},
	}
	cache := &fakeCache{user: &users.User{UserID: "cus_abc"}}

	r := newResolver(cache, client)
	assert.True(t, r.Resolve(context.Background(), "cus_abc"))
}

func TestResolveBroadScanMetadataMatch(t *testing.T) {
	// Cached verdict absent, phone search empty, not a customer reference;
	// the broad scan finds a metadata phone equal to the comparison key and
	// that customer has an active subscription.
	client := &fakeClient{
		listPage: []Customer{
			{ID: "cus_other", Phone: "+10000000000"},
			{ID: "cus_hit", Metadata: map[string]string{"phone": "+5215512345678"}},
		},
		subs: map[string][]Subscription{
			"cus_hit": {{ID: "sub_1", Status: StatusActive}},
		},
	}
	cache := &fakeCache{err: errors.New("no row")}

	r := newResolver(cache, client)
	assert.True(t, r.Resolve(context.Background(), "5215512345678"))
}

func TestResolveBroadScanSubscriptionMetadataSkipsStatusCheck(t *testing.T) {
	// A matching phone inside an expanded active subscription's metadata is
	// sufficient on its own; no per-customer status calls are made.
	client := &fakeClient{
		listPage: []Customer{
			{
				ID: "cus_meta",
				Subscriptions: SubscriptionList{Data: []Subscription{
					{ID: "sub_1", Status: StatusActive, Metadata: map[string]string{"phone": "5215512345678"}},
				}},
			},
		},
	}
	cache := &fakeCache{err: errors.New("no row")}

	r := newResolver(cache, client)
	require.True(t, r.Resolve(context.Background(), "5215512345678"))
	// cached-verdict errors, 2 searches, 1 list; no subscription/payment/invoice calls.
	assert.Equal(t, 3, client.calls)
}

func TestResolveNoMatchIsFalse(t *testing.T) {
	client := &fakeClient{listPage: []Customer{{ID: "cus_other", Phone: "+10000000000"}}}
	cache := &fakeCache{err: errors.New("no row")}

	r := newResolver(cache, client)
	assert.False(t, r.Resolve(context.Background(), "5215512345678"))
}

func TestResolveStrategyErrorsAreSwallowed(t *testing.T) {
	client := &fakeClient{
		searchErr: errors.New("search unavailable"),
		listErr:   errors.New("list unavailable"),
	}
	cache := &fakeCache{err: errors.New("db down")}

	r := newResolver(cache, client)
	assert.False(t, r.Resolve(context.Background(), "5215512345678"))
}

func TestCustomerEntitled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		subs     []Subscription
		payments []PaymentIntent
		invoices []Invoice
		want     bool
	}{
		{"active subscription", []Subscription{{Status: StatusActive}}, nil, nil, true},
		{"trialing subscription", []Subscription{{Status: StatusTrialing}}, nil, nil, true},
		{"future trial end", []Subscription{{Status: "past_due", TrialEnd: now.Add(time.Hour).Unix()}}, nil, nil, true},
		{"expired trial only", []Subscription{{Status: "canceled", TrialEnd: now.Add(-time.Hour).Unix()}}, nil, nil, false},
		{"recent payment", nil, []PaymentIntent{{Status: "succeeded", Created: now.Add(-24 * time.Hour).Unix()}}, nil, true},
		{"stale payment", nil, []PaymentIntent{{Status: "succeeded", Created: now.Add(-31 * 24 * time.Hour).Unix()}}, nil, false},
		{"failed payment", nil, []PaymentIntent{{Status: "requires_payment_method", Created: now.Unix()}}, nil, false},
		{"paid invoice", nil, nil, []Invoice{{Status: "paid"}}, true},
		{"nothing", nil, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				subs:     map[string][]Subscription{"cus_x": tt.subs},
				payments: map[string][]PaymentIntent{"cus_x": tt.payments},
				invoices: map[string][]Invoice{"cus_x": tt.invoices},
			}
			r := newResolver(&fakeCache{err: errors.New("unused")}, client)
			assert.Equal(t, tt.want, r.customerEntitled(context.Background(), "cus_x"))
		})
	}
}
