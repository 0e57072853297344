package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sofialabs/sofia-bot/internal/ai"
	"github.com/sofialabs/sofia-bot/internal/auth"
	"github.com/sofialabs/sofia-bot/internal/billing"
	"github.com/sofialabs/sofia-bot/internal/chat"
	"github.com/sofialabs/sofia-bot/internal/config"
	"github.com/sofialabs/sofia-bot/internal/db"
	"github.com/sofialabs/sofia-bot/internal/dispatch"
	"github.com/sofialabs/sofia-bot/internal/httpapi"
	"github.com/sofialabs/sofia-bot/internal/httpapi/handlers"
	"github.com/sofialabs/sofia-bot/internal/store/redisstore"
	"github.com/sofialabs/sofia-bot/internal/users"
	"github.com/sofialabs/sofia-bot/internal/whatsapp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	userRepo := users.NewRepo(gdb)
	turnRepo := chat.NewRepo(gdb)
	assembler := chat.NewAssembler(turnRepo, cfg.ContextLimit)

	dedup := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DedupTTL)
	defer dedup.Close()

	billingClient := billing.NewStripeClient(cfg.BillingBaseURL, cfg.BillingAPIKey)
	resolver := billing.NewResolver(userRepo, billingClient)

	provider := ai.NewOpenAIProvider(
		cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel,
		cfg.TranscribeModel, cfg.SystemPrompt, cfg.Temperature, cfg.MaxTokens,
	)
	wa := whatsapp.NewClient(cfg.GraphBaseURL, cfg.WhatsAppToken, cfg.PhoneNumberID)

	orch := dispatch.NewOrchestrator(
		userRepo, resolver, assembler, turnRepo, provider, wa,
		cfg.FreeMessages, cfg.UpsellMessage,
	)

	gate := dispatch.NewGate(cfg.RateThreshold, cfg.RateWindow, cfg.DrainPause,
		func(ctx context.Context, unit *dispatch.Unit) {
			res, err := orch.Process(ctx, unit)
			if err != nil {
				log.Printf("drain: unit=%s user=%s failed: %v", unit.ID, unit.UserID, err)
				return
			}
			log.Printf("drain: unit=%s user=%s outcome=%s", unit.ID, unit.UserID, res.Outcome)
		})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	gate.Start(ctx)

	var opsHash string
	if cfg.OpsPassword != "" {
		opsHash, err = auth.HashPassword(cfg.OpsPassword)
		if err != nil {
			log.Fatalf("ops password: %v", err)
		}
	}

	h := handlers.NewHandler(
		cfg, userRepo, turnRepo, orch, gate,
		wa, wa, provider, dedup, resolver, billingClient, opsHash,
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewRouter(cfg, h),
	}

	go func() {
		log.Printf("server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
