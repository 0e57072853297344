package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sofialabs/sofia-bot/internal/ai"
	"github.com/sofialabs/sofia-bot/internal/chat"
	"github.com/sofialabs/sofia-bot/internal/config"
	"github.com/sofialabs/sofia-bot/internal/dispatch"
	"github.com/sofialabs/sofia-bot/internal/users"
)

type fakeSender struct {
	sent []string
	to   []string
}

func (s *fakeSender) SendText(ctx context.Context, to, text string) error {
	s.to = append(s.to, to)
	s.sent = append(s.sent, text)
	return nil
}

type fakeMedia struct {
	url   string
	bytes []byte
}

func (m *fakeMedia) MediaURL(ctx context.Context, mediaID string) (string, error) {
	return m.url, nil
}

func (m *fakeMedia) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	return m.bytes, nil
}

type fakeProvider struct {
	last  []ai.Part
	reply string
}

func (p *fakeProvider) Generate(ctx context.Context, parts []ai.Part) (string, error) {
	p.last = append([]ai.Part(nil), parts...)
	return p.reply, nil
}

type fakeTranscriber struct{ transcript string }

func (t *fakeTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	return t.transcript, nil
}

type fakeDeduper struct{ seen map[string]bool }

func (d *fakeDeduper) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[messageID] {
		return false, nil
	}
	d.seen[messageID] = true
	return true, nil
}

type alwaysSubscribed struct{}

func (alwaysSubscribed) Resolve(ctx context.Context, userID string) bool { return true }

type webhookFixture struct {
	h        *Handler
	sender   *fakeSender
	provider *fakeProvider
	users    *users.Repo
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &chat.Turn{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Config{
		WebhookVerifyTok:    "verify-me",
		BlockedCountryCodes: []string{"91", "92", "880"},
		BlockedCountryMsg:   "no disponible en tu región",
		WelcomeMessage:      "bienvenida",
		GeneralErrorMsg:     "lo lamento",
		UnsupportedTypeMsg:  "solo texto, imágenes y audio",
		UpsellMessage:       "suscríbete",
		ImagePromptCtx:      "asistente de marketing",
		ContextLimit:        10,
	}

	userRepo := users.NewRepo(db)
	turnRepo := chat.NewRepo(db)
	asm := chat.NewAssembler(turnRepo, cfg.ContextLimit)

	sender := &fakeSender{}
	provider := &fakeProvider{reply: "respuesta"}

	orch := dispatch.NewOrchestrator(userRepo, alwaysSubscribed{}, asm, turnRepo, provider, sender, 5, cfg.UpsellMessage)
	gate := dispatch.NewGate(100, time.Second, 0, func(ctx context.Context, u *dispatch.Unit) {})

	h := NewHandler(cfg, userRepo, turnRepo, orch, gate,
		sender, &fakeMedia{url: "https://cdn.example/img.jpg", bytes: []byte("ogg")},
		&fakeTranscriber{transcript: "mensaje de voz"}, &fakeDeduper{},
		alwaysSubscribed{}, nil, "")

	return &webhookFixture{h: h, sender: sender, provider: provider, users: userRepo}
}

func messagePayload(msg string) string {
	return fmt.Sprintf(`{"entry":[{"changes":[{"value":{"messages":[%s]}}]}]}`, msg)
}

func postWebhook(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	h.ReceiveWebhook(c)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func status(resp map[string]any) string {
	data, _ := resp["data"].(map[string]any)
	s, _ := data["status"].(string)
	return s
}

// markWelcomed seeds a user past the first-contact welcome step.
func (f *webhookFixture) markWelcomed(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.users.FindOrCreate(ctx, userID); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := f.users.MarkWelcomeSent(ctx, userID); err != nil {
		t.Fatalf("mark welcome: %v", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	f := newWebhookFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	f.h.VerifyWebhook(c)

	if w.Code != http.StatusOK || w.Body.String() != "12345" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	f.h.VerifyWebhook(c)
	c.Writer.WriteHeaderNow()

	if w.Code != http.StatusForbidden {
		t.Fatalf("code=%d, want 403", w.Code)
	}
}

func TestReceiveWebhookTextMessage(t *testing.T) {
	f := newWebhookFixture(t)
	f.markWelcomed(t, "5215514440001")

	body := messagePayload(`{"id":"wamid.1","from":"5215514440001","type":"text","text":{"body":"hola"}}`)
	w, resp := postWebhook(t, f.h, body)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if got := status(resp); got != "success" {
		t.Fatalf("status = %q, want success", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "respuesta" {
		t.Fatalf("sent = %v", f.sender.sent)
	}
}

func TestReceiveWebhookWelcomesFirstContact(t *testing.T) {
	f := newWebhookFixture(t)

	body := messagePayload(`{"id":"wamid.2","from":"5215514440002","type":"text","text":{"body":"hola"}}`)
	_, resp := postWebhook(t, f.h, body)

	if got := status(resp); got != "welcome_sent" {
		t.Fatalf("status = %q, want welcome_sent", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "bienvenida" {
		t.Fatalf("sent = %v", f.sender.sent)
	}

	// The next message from the same user flows through normally.
	body = messagePayload(`{"id":"wamid.3","from":"5215514440002","type":"text","text":{"body":"sigo aquí"}}`)
	_, resp = postWebhook(t, f.h, body)
	if got := status(resp); got != "success" {
		t.Fatalf("status = %q, want success", got)
	}
}

func TestReceiveWebhookDropsDuplicates(t *testing.T) {
	f := newWebhookFixture(t)
	f.markWelcomed(t, "5215514440003")

	body := messagePayload(`{"id":"wamid.dup","from":"5215514440003","type":"text","text":{"body":"hola"}}`)
	_, resp := postWebhook(t, f.h, body)
	if got := status(resp); got != "success" {
		t.Fatalf("first delivery status = %q", got)
	}

	_, resp = postWebhook(t, f.h, body)
	if got := status(resp); got != "duplicate" {
		t.Fatalf("redelivery status = %q, want duplicate", got)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(f.sender.sent))
	}
}

func TestReceiveWebhookBlockedCountry(t *testing.T) {
	f := newWebhookFixture(t)

	body := messagePayload(`{"id":"wamid.4","from":"919812345678","type":"text","text":{"body":"hi"}}`)
	w, resp := postWebhook(t, f.h, body)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if got := status(resp); got != "blocked" {
		t.Fatalf("status = %q, want blocked", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "no disponible en tu región" {
		t.Fatalf("sent = %v", f.sender.sent)
	}
}

func TestReceiveWebhookUnsupportedType(t *testing.T) {
	f := newWebhookFixture(t)
	f.markWelcomed(t, "5215514440005")

	body := messagePayload(`{"id":"wamid.5","from":"5215514440005","type":"sticker"}`)
	_, resp := postWebhook(t, f.h, body)

	if got := status(resp); got != "unsupported_type" {
		t.Fatalf("status = %q, want unsupported_type", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "solo texto, imágenes y audio" {
		t.Fatalf("sent = %v", f.sender.sent)
	}
}

func TestReceiveWebhookAudioIsTranscribed(t *testing.T) {
	f := newWebhookFixture(t)
	f.markWelcomed(t, "5215514440006")

	body := messagePayload(`{"id":"wamid.6","from":"5215514440006","type":"audio","audio":{"id":"media123"}}`)
	_, resp := postWebhook(t, f.h, body)

	if got := status(resp); got != "success" {
		t.Fatalf("status = %q, want success", got)
	}
	if len(f.provider.last) != 1 || !strings.Contains(f.provider.last[0].Text, "User: mensaje de voz") {
		t.Fatalf("prompt = %+v", f.provider.last)
	}
}

func TestReceiveWebhookImageWithCaption(t *testing.T) {
	f := newWebhookFixture(t)
	f.markWelcomed(t, "5215514440007")

	body := messagePayload(`{"id":"wamid.7","from":"5215514440007","type":"image","image":{"id":"img123","caption":"oferta de verano"}}`)
	_, resp := postWebhook(t, f.h, body)

	if got := status(resp); got != "success" {
		t.Fatalf("status = %q, want success", got)
	}
	if len(f.provider.last) != 2 {
		t.Fatalf("prompt parts = %d, want 2", len(f.provider.last))
	}
	if !strings.Contains(f.provider.last[0].Text, `"oferta de verano"`) {
		t.Fatalf("instruction = %q", f.provider.last[0].Text)
	}
	if f.provider.last[1].ImageURL != "https://cdn.example/img.jpg" {
		t.Fatalf("image url = %q", f.provider.last[1].ImageURL)
	}
}

func TestReceiveWebhookNoMessagesIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	_, resp := postWebhook(t, f.h, `{"entry":[{"changes":[{"value":{}}]}]}`)
	if got := status(resp); got != "ignored" {
		t.Fatalf("status = %q, want ignored", got)
	}
}

func TestVerifySignature(t *testing.T) {
	f := newWebhookFixture(t)
	f.h.Cfg.WebhookAppSecret = "topsecret"

	body := []byte(`{"entry":[]}`)
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	good := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !f.h.verifySignature(good, body) {
		t.Fatal("valid signature rejected")
	}
	if f.h.verifySignature("sha256=deadbeef", body) {
		t.Fatal("invalid signature accepted")
	}
	if f.h.verifySignature("", body) {
		t.Fatal("missing signature accepted while secret configured")
	}
}
