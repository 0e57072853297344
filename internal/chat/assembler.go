package chat

import (
	"context"
	"strings"
)

// Assembler builds the bounded conversation window used for prompting.
type Assembler struct {
	repo  *Repo
	limit int
}

func NewAssembler(repo *Repo, limit int) *Assembler {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return &Assembler{repo: repo, limit: limit}
}

// Assemble returns the most recent turns in chronological (oldest-first)
// order regardless of the store's native retrieval order. An empty slice for
// a brand-new user is valid.
func (a *Assembler) Assemble(ctx context.Context, userID string) ([]Turn, error) {
	desc, err := a.repo.RecentTurnsDesc(ctx, userID, a.limit)
	if err != nil {
		return nil, err
	}
	asc := make([]Turn, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		asc = append(asc, desc[i])
	}
	return asc, nil
}

// RenderTranscript flattens turns into "role: content" lines for embedding
// in a text prompt.
func RenderTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
