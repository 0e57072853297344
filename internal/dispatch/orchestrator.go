package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/sofialabs/sofia-bot/internal/ai"
	"github.com/sofialabs/sofia-bot/internal/chat"
	"github.com/sofialabs/sofia-bot/internal/users"
)

type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeSubscriptionRequired Outcome = "subscription_required"
	OutcomeDelayed              Outcome = "delayed"
)

type Result struct {
	Outcome Outcome
	Reply   string
}

// SubscriptionResolver yields the entitlement verdict for a user identifier.
// It never fails; ambiguity is a definitive false.
type SubscriptionResolver interface {
	Resolve(ctx context.Context, userID string) bool
}

type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Orchestrator runs the per-unit state machine: ensure-user, resolve
// subscription, enforce quota, assemble context, generate the reply, then
// deliver and persist. Units for the same user are serialized through a
// keyed mutex so quota enforcement and the subscription cache write-through
// are linearized per user; distinct users run in parallel.
type Orchestrator struct {
	users     *users.Repo
	resolver  SubscriptionResolver
	assembler *chat.Assembler
	turns     *chat.Repo
	provider  ai.Provider
	sender    Sender

	freeMessages  int64
	upsellMessage string

	locks *keyedMutex
}

func NewOrchestrator(
	userRepo *users.Repo,
	resolver SubscriptionResolver,
	assembler *chat.Assembler,
	turnRepo *chat.Repo,
	provider ai.Provider,
	sender Sender,
	freeMessages int,
	upsellMessage string,
) *Orchestrator {
	if freeMessages <= 0 {
		freeMessages = 5
	}
	return &Orchestrator{
		users:         userRepo,
		resolver:      resolver,
		assembler:     assembler,
		turns:         turnRepo,
		provider:      provider,
		sender:        sender,
		freeMessages:  int64(freeMessages),
		upsellMessage: upsellMessage,
		locks:         newKeyedMutex(),
	}
}

// Process runs one unit to a terminal outcome. Failures in any step abort
// the unit and propagate; the orchestrator never retries. Quota rejection is
// an outcome, not an error.
func (o *Orchestrator) Process(ctx context.Context, unit *Unit) (Result, error) {
	unlock := o.locks.lock(unit.UserID)
	defer unlock()

	user, err := o.users.FindOrCreate(ctx, unit.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("ensure user: %w", err)
	}

	subscribed := o.resolver.Resolve(ctx, unit.UserID)
	if subscribed != user.IsSubscribed {
		if err := o.users.SetSubscribed(ctx, unit.UserID, subscribed); err != nil {
			return Result{}, fmt.Errorf("update subscription: %w", err)
		}
	}

	count, err := o.users.IncrementMessageCount(ctx, unit.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("increment message count: %w", err)
	}
	if count > o.freeMessages && !subscribed {
		log.Printf("dispatch: unit=%s user=%s over free limit count=%d", unit.ID, unit.UserID, count)
		if err := o.sender.SendText(ctx, unit.UserID, o.upsellMessage); err != nil {
			return Result{}, fmt.Errorf("send upsell: %w", err)
		}
		return Result{Outcome: OutcomeSubscriptionRequired, Reply: o.upsellMessage}, nil
	}

	turns, err := o.assembler.Assemble(ctx, unit.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("assemble context: %w", err)
	}

	reply, err := o.provider.Generate(ctx, BuildPrompt(unit, turns))
	if err != nil {
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}

	if err := o.sender.SendText(ctx, unit.UserID, reply); err != nil {
		return Result{}, fmt.Errorf("send reply: %w", err)
	}
	if err := o.turns.AppendExchange(ctx, unit.UserID, unit.Content, reply); err != nil {
		return Result{}, fmt.Errorf("persist exchange: %w", err)
	}

	return Result{Outcome: OutcomeSuccess, Reply: reply}, nil
}

// BuildPrompt produces the provider payload for a unit. Text and
// audio-derived units get a single text block embedding the conversation
// transcript; image units carry a pre-built multi-part prompt that ignores
// history and is passed through unchanged.
func BuildPrompt(unit *Unit, turns []chat.Turn) []ai.Part {
	if unit.Kind == KindImage {
		return unit.Prompt
	}
	text := fmt.Sprintf("Previous conversation:\n%s\n\nUser: %s\nAssistant:",
		chat.RenderTranscript(turns), unit.Content)
	return []ai.Part{ai.TextPart(text)}
}
