package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeClient talks to the Stripe REST API (or anything wire-compatible
// with it) with form-encoded requests and bearer auth.
type StripeClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewStripeClient(baseURL, apiKey string) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	return &StripeClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type customerList struct {
	Data []Customer `json:"data"`
}

type subscriptionList struct {
	Data []Subscription `json:"data"`
}

type paymentIntentList struct {
	Data []PaymentIntent `json:"data"`
}

type invoiceList struct {
	Data []Invoice `json:"data"`
}

func (c *StripeClient) do(ctx context.Context, method, path string, params url.Values, out any) error {
	endpoint := c.BaseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	} else if len(params) > 0 {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var decoded apiError
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error.Message != "" {
			return fmt.Errorf("billing: %s", decoded.Error.Message)
		}
		return fmt.Errorf("billing: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *StripeClient) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	params := url.Values{}
	params.Set("query", query)
	var list customerList
	if err := c.do(ctx, http.MethodGet, "/customers/search", params, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var cust Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (c *StripeClient) ListCustomers(ctx context.Context, limit int, expandSubscriptions bool) ([]Customer, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if expandSubscriptions {
		params.Add("expand[]", "data.subscriptions")
	}
	var list customerList
	if err := c.do(ctx, http.MethodGet, "/customers", params, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]Subscription, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var list subscriptionList
	if err := c.do(ctx, http.MethodGet, "/subscriptions", params, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *StripeClient) ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]PaymentIntent, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var list paymentIntentList
	if err := c.do(ctx, http.MethodGet, "/payment_intents", params, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *StripeClient) ListInvoices(ctx context.Context, customerID, status string, limit int) ([]Invoice, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var list invoiceList
	if err := c.do(ctx, http.MethodGet, "/invoices", params, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *StripeClient) UpdateCustomerPhone(ctx context.Context, customerID, phoneNumber string) error {
	params := url.Values{}
	params.Set("phone", phoneNumber)
	return c.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(customerID), params, nil)
}
