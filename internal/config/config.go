package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment surface of the service. Every knob the
// dispatch pipeline consumes (rate window, free-message allowance, context
// window, canned messages) lives here so it can be injected rather than read
// ad hoc.
type Config struct {
	Addr  string `env:"ADDR" envDefault:":8080"`
	DBDSN string `env:"DB_DSN" envDefault:"app:apppass@tcp(127.0.0.1:3306)/sofia?charset=utf8mb4&parseTime=true&loc=Local"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret     string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	OpsUser       string        `env:"OPS_USER" envDefault:"ops"`
	OpsPassword   string        `env:"OPS_PASSWORD"`
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" envDefault:"24h"`

	// WhatsApp Cloud API.
	GraphBaseURL     string `env:"GRAPH_BASE_URL" envDefault:"https://graph.facebook.com/v20.0"`
	WhatsAppToken    string `env:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID    string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WebhookVerifyTok string `env:"WHATSAPP_VERIFY_TOKEN"`
	WebhookAppSecret string `env:"WHATSAPP_APP_SECRET"`

	// Billing (Stripe-compatible REST API).
	BillingBaseURL       string `env:"BILLING_BASE_URL" envDefault:"https://api.stripe.com/v1"`
	BillingAPIKey        string `env:"BILLING_API_KEY"`
	BillingWebhookSecret string `env:"BILLING_WEBHOOK_SECRET"`

	// Generative provider (OpenAI-compatible).
	OpenAIBaseURL   string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey    string  `env:"OPENAI_API_KEY"`
	OpenAIModel     string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	TranscribeModel string  `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	Temperature     float64 `env:"AI_TEMPERATURE" envDefault:"0.2"`
	MaxTokens       int     `env:"AI_MAX_TOKENS" envDefault:"3000"`
	SystemPrompt    string  `env:"SYSTEM_PROMPT" envDefault:"Eres Sofía, una asistente personal de marketing con inteligencia artificial especializada en ayudar a pequeños negocios y emprendedores a crecer su presencia en redes sociales."`
	ImagePromptCtx  string  `env:"IMAGE_PROMPT_CONTEXT" envDefault:"asistente de marketing"`

	// Dispatch pipeline.
	RateWindow    time.Duration `env:"RATE_WINDOW" envDefault:"1s"`
	RateThreshold int           `env:"RATE_THRESHOLD" envDefault:"50"`
	DrainPause    time.Duration `env:"DRAIN_PAUSE" envDefault:"100ms"`
	FreeMessages  int           `env:"FREE_MESSAGES" envDefault:"5"`
	ContextLimit  int           `env:"CONTEXT_LIMIT" envDefault:"10"`
	DedupTTL      time.Duration `env:"DEDUP_TTL" envDefault:"5m"`

	// Canned user-facing messages.
	UpsellMessage      string `env:"UPSELL_MESSAGE" envDefault:"Has llegado a tu límite de mensajes gratuitos. Contrátame para tener mensajes ilimitados 🙏"`
	WelcomeMessage     string `env:"WELCOME_MESSAGE" envDefault:"👋 Hola, soy tu nueva asistente de marketing, ¡Sofía! Tus primeros mensajes son gratuitos y estoy disponible 24/7. ¿Cómo puedo ayudarte hoy?"`
	GeneralErrorMsg    string `env:"GENERAL_ERROR_MESSAGE" envDefault:"Lo lamento pero he tenido problemas procesando tu mensaje. Por favor inténtalo en un momento. 🙏"`
	UnsupportedTypeMsg string `env:"UNSUPPORTED_TYPE_MESSAGE" envDefault:"Lo siento. De momento solo puedo procesar texto, imágenes y audio. 🙏"`

	// Country-code blocklist applied before any processing.
	BlockedCountryCodes []string `env:"BLOCKED_COUNTRY_CODES" envSeparator:"," envDefault:"91,92,880"`
	BlockedCountryMsg   string   `env:"BLOCKED_COUNTRY_MESSAGE" envDefault:"Hi there, we are sorry but this service is not available in your country."`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ContextLimit <= 0 || cfg.ContextLimit > 100 {
		cfg.ContextLimit = 10
	}
	if cfg.RateThreshold <= 0 {
		cfg.RateThreshold = 50
	}
	return cfg, nil
}
