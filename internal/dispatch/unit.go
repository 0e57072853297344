// Package dispatch is the admission-controlled pipeline that turns one
// inbound message into exactly one gated, billed, context-aware reply.
package dispatch

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sofialabs/sofia-bot/internal/ai"
)

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Unit is the immutable input for one exchange. It is created by the ingress
// layer, consumed exactly once, and requeued verbatim when deferred.
type Unit struct {
	ID      string
	UserID  string
	Kind    Kind
	Content string    // normalized message content (text body, transcript, or image description)
	Prompt  []ai.Part // pre-built prompt payload; for image units this is passed through unchanged
}

func NewUnitID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
