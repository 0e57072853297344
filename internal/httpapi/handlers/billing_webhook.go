package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sofialabs/sofia-bot/internal/common"
	"github.com/sofialabs/sofia-bot/internal/phone"
)

type billingEvent struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type billingCustomerObject struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

type billingAttachObject struct {
	Customer string `json:"customer"`
}

type billingCheckoutObject struct {
	Customer        string `json:"customer"`
	CustomerDetails *struct {
		Phone string `json:"phone"`
	} `json:"customer_details"`
}

// ReceiveBillingWebhook normalizes the phone number stored on billing
// customers as they are created or complete checkout, so that later
// phone-format searches from the resolver hit. Events are acknowledged even
// when the fix-up fails; the broad-scan tier covers stragglers.
func (h *Handler) ReceiveBillingWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "unreadable body")
		return
	}
	if !h.verifyBillingSignature(c.GetHeader("Stripe-Signature"), body) {
		common.Fail(c, http.StatusUnauthorized, 40103, "bad signature")
		return
	}

	var event billingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid json")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())

	switch event.Type {
	case "customer.created":
		var obj billingCustomerObject
		if err := json.Unmarshal(event.Data.Object, &obj); err == nil && obj.ID != "" {
			h.normalizeCustomerPhone(ctx, obj.ID, obj.Phone)
		}

	case "payment_method.attached":
		var obj billingAttachObject
		if err := json.Unmarshal(event.Data.Object, &obj); err == nil && obj.Customer != "" {
			cust, err := h.Billing.GetCustomer(ctx, obj.Customer)
			if err != nil {
				log.Printf("billing webhook: get customer=%s error=%v", obj.Customer, err)
				break
			}
			h.normalizeCustomerPhone(ctx, cust.ID, cust.Phone)
		}

	case "checkout.session.completed":
		var obj billingCheckoutObject
		if err := json.Unmarshal(event.Data.Object, &obj); err == nil && obj.Customer != "" && obj.CustomerDetails != nil {
			h.normalizeCustomerPhone(ctx, obj.Customer, obj.CustomerDetails.Phone)
		}

	default:
		// Unhandled event types are acknowledged without action.
	}

	common.OK(c, gin.H{"received": true})
}

func (h *Handler) normalizeCustomerPhone(ctx context.Context, customerID, rawPhone string) {
	if rawPhone == "" {
		return
	}
	normalized := phone.Normalize(rawPhone)
	if normalized == rawPhone {
		return
	}
	if err := h.Billing.UpdateCustomerPhone(ctx, customerID, normalized); err != nil {
		log.Printf("billing webhook: update phone customer=%s error=%v", customerID, err)
		return
	}
	log.Printf("billing webhook: normalized phone customer=%s", customerID)
}

// verifyBillingSignature checks the "t=<ts>,v1=<hmac>" scheme: HMAC-SHA256
// of "<ts>.<body>" with the endpoint secret.
func (h *Handler) verifyBillingSignature(header string, body []byte) bool {
	if h.Cfg.BillingWebhookSecret == "" {
		return true
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			ts = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v1="):
			sig = strings.TrimPrefix(part, "v1=")
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Cfg.BillingWebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
