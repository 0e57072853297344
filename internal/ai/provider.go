package ai

import "context"

const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// Part is one typed content block of a prompt: plain text or an image
// reference.
type Part struct {
	Type     string
	Text     string
	ImageURL string
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: url}
}

// Provider turns an ordered list of content parts into a single text reply.
// Failure is a hard error; there is no partial output.
type Provider interface {
	Generate(ctx context.Context, parts []Part) (string, error)
}

// Transcriber converts raw audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}
