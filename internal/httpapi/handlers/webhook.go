package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sofialabs/sofia-bot/internal/ai"
	"github.com/sofialabs/sofia-bot/internal/common"
	"github.com/sofialabs/sofia-bot/internal/dispatch"
	"github.com/sofialabs/sofia-bot/internal/phone"
)

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio *struct {
		ID string `json:"id"`
	} `json:"audio"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// VerifyWebhook answers the transport's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.Cfg.WebhookVerifyTok {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// ReceiveWebhook is the ingress for inbound messages: verify the signature,
// drop redeliveries, apply the country blocklist, welcome first-contact
// users, normalize the payload into a DispatchUnit and hand it to the gate.
// It always acks with 200 once the payload is readable; processing outcomes
// are reported in the body, and deferral is invisible to the sender.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "unreadable body")
		return
	}
	if !h.verifySignature(c.GetHeader("X-Hub-Signature-256"), body) {
		common.Fail(c, http.StatusUnauthorized, 40103, "bad signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid json")
		return
	}

	msg, ok := firstMessage(payload)
	if !ok {
		common.OK(c, gin.H{"status": "ignored"})
		return
	}
	from := msg.From

	// Units run to completion even if the webhook client goes away.
	ctx := context.WithoutCancel(c.Request.Context())

	if phone.HasCountryCode(from, h.Cfg.BlockedCountryCodes) {
		log.Printf("webhook: blocked country user=%s", from)
		h.sendQuiet(ctx, from, h.Cfg.BlockedCountryMsg)
		common.OK(c, gin.H{"status": "blocked"})
		return
	}

	if msg.ID != "" && h.Dedup != nil {
		first, err := h.Dedup.FirstSeen(ctx, msg.ID)
		if err != nil {
			log.Printf("webhook: dedup check failed message=%s error=%v", msg.ID, err)
		} else if !first {
			common.OK(c, gin.H{"status": "duplicate"})
			return
		}
	}

	if h.welcomeIfNew(ctx, from) {
		common.OK(c, gin.H{"status": "welcome_sent"})
		return
	}

	unit, err := h.buildUnit(ctx, msg)
	if err != nil {
		if err == errUnsupportedType {
			h.sendQuiet(ctx, from, h.Cfg.UnsupportedTypeMsg)
			common.OK(c, gin.H{"status": "unsupported_type"})
			return
		}
		log.Printf("webhook: build unit failed user=%s error=%v", from, err)
		h.apologize(ctx, from)
		common.OK(c, gin.H{"status": "error"})
		return
	}

	if h.Gate.Admit(unit) == dispatch.DecisionDeferred {
		common.OK(c, gin.H{"status": string(dispatch.OutcomeDelayed)})
		return
	}

	res, err := h.Orch.Process(ctx, unit)
	if err != nil {
		log.Printf("webhook: dispatch failed unit=%s user=%s error=%v", unit.ID, from, err)
		h.apologize(ctx, from)
		common.OK(c, gin.H{"status": "error"})
		return
	}
	common.OK(c, gin.H{"status": string(res.Outcome)})
}

var errUnsupportedType = fmt.Errorf("unsupported message type")

func firstMessage(p webhookPayload) (inboundMessage, bool) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return change.Value.Messages[0], true
			}
		}
	}
	return inboundMessage{}, false
}

// buildUnit normalizes the inbound message into the pipeline's input: plain
// text as-is, audio transcribed first, images as a pre-built multi-part
// prompt that skips conversation history.
func (h *Handler) buildUnit(ctx context.Context, msg inboundMessage) (*dispatch.Unit, error) {
	unit := &dispatch.Unit{
		ID:     dispatch.NewUnitID(),
		UserID: msg.From,
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil, fmt.Errorf("text message without body")
		}
		unit.Kind = dispatch.KindText
		unit.Content = msg.Text.Body

	case "audio":
		if msg.Audio == nil {
			return nil, fmt.Errorf("audio message without media")
		}
		audio, err := h.Media.DownloadMedia(ctx, msg.Audio.ID)
		if err != nil {
			return nil, fmt.Errorf("download audio: %w", err)
		}
		transcript, err := h.Trans.Transcribe(ctx, "voice.ogg", audio)
		if err != nil {
			return nil, fmt.Errorf("transcribe audio: %w", err)
		}
		unit.Kind = dispatch.KindAudio
		unit.Content = transcript

	case "image":
		if msg.Image == nil {
			return nil, fmt.Errorf("image message without media")
		}
		imageURL, err := h.Media.MediaURL(ctx, msg.Image.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve image: %w", err)
		}
		caption := msg.Image.Caption
		var instruction string
		if caption != "" {
			unit.Content = "Image with caption: " + caption
			instruction = fmt.Sprintf("Please analyze this image and its caption: %q in %s.", caption, h.Cfg.ImagePromptCtx)
		} else {
			unit.Content = "Image sent by user"
			instruction = fmt.Sprintf("Please analyze this image in %s.", h.Cfg.ImagePromptCtx)
		}
		unit.Kind = dispatch.KindImage
		unit.Prompt = []ai.Part{ai.TextPart(instruction), ai.ImagePart(imageURL)}

	default:
		return nil, errUnsupportedType
	}

	return unit, nil
}

// welcomeIfNew sends the privacy/welcome message on first contact and
// reports whether this message's processing should stop there. Failures here
// never block the pipeline.
func (h *Handler) welcomeIfNew(ctx context.Context, userID string) bool {
	u, err := h.Users.FindOrCreate(ctx, userID)
	if err != nil {
		log.Printf("webhook: welcome check failed user=%s error=%v", userID, err)
		return false
	}
	if u.WelcomeSent {
		return false
	}
	if err := h.Sender.SendText(ctx, userID, h.Cfg.WelcomeMessage); err != nil {
		log.Printf("webhook: welcome send failed user=%s error=%v", userID, err)
		return false
	}
	if err := h.Users.MarkWelcomeSent(ctx, userID); err != nil {
		log.Printf("webhook: mark welcome failed user=%s error=%v", userID, err)
	}
	return true
}

// apologize is the best-effort failure notification: make sure the user row
// exists, then send the generic apology. Both steps may fail silently.
func (h *Handler) apologize(ctx context.Context, userID string) {
	if _, err := h.Users.FindOrCreate(ctx, userID); err != nil {
		log.Printf("webhook: ensure user during apology failed user=%s error=%v", userID, err)
	}
	h.sendQuiet(ctx, userID, h.Cfg.GeneralErrorMsg)
}

func (h *Handler) sendQuiet(ctx context.Context, userID, text string) {
	if err := h.Sender.SendText(ctx, userID, text); err != nil {
		log.Printf("webhook: send failed user=%s error=%v", userID, err)
	}
}

func (h *Handler) verifySignature(header string, body []byte) bool {
	if h.Cfg.WebhookAppSecret == "" {
		return true
	}
	sig := strings.TrimPrefix(header, "sha256=")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Cfg.WebhookAppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
