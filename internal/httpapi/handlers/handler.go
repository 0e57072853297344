package handlers

import (
	"context"

	"github.com/sofialabs/sofia-bot/internal/ai"
	"github.com/sofialabs/sofia-bot/internal/billing"
	"github.com/sofialabs/sofia-bot/internal/chat"
	"github.com/sofialabs/sofia-bot/internal/config"
	"github.com/sofialabs/sofia-bot/internal/dispatch"
	"github.com/sofialabs/sofia-bot/internal/users"
)

// MediaClient resolves and downloads inbound media attachments.
type MediaClient interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// Deduper claims inbound message IDs so transport redeliveries are dropped.
type Deduper interface {
	FirstSeen(ctx context.Context, messageID string) (bool, error)
}

type Handler struct {
	Cfg    config.Config
	Users  *users.Repo
	Turns  *chat.Repo
	Orch   *dispatch.Orchestrator
	Gate   *dispatch.Gate
	Sender dispatch.Sender
	Media  MediaClient
	Trans  ai.Transcriber
	Dedup  Deduper

	Resolver dispatch.SubscriptionResolver
	Billing  billing.Client

	opsPasswordHash string
}

func NewHandler(
	cfg config.Config,
	userRepo *users.Repo,
	turnRepo *chat.Repo,
	orch *dispatch.Orchestrator,
	gate *dispatch.Gate,
	sender dispatch.Sender,
	media MediaClient,
	trans ai.Transcriber,
	dedup Deduper,
	resolver dispatch.SubscriptionResolver,
	billingClient billing.Client,
	opsPasswordHash string,
) *Handler {
	return &Handler{
		Cfg:             cfg,
		Users:           userRepo,
		Turns:           turnRepo,
		Orch:            orch,
		Gate:            gate,
		Sender:          sender,
		Media:           media,
		Trans:           trans,
		Dedup:           dedup,
		Resolver:        resolver,
		Billing:         billingClient,
		opsPasswordHash: opsPasswordHash,
	}
}
