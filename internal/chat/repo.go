package chat

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// AppendExchange writes the user turn and the assistant turn in one
// transaction so no exchange is ever half-persisted.
func (r *Repo) AppendExchange(ctx context.Context, userID, userText, assistantText string) error {
	turns := []Turn{
		{UserID: userID, Role: RoleUser, Content: userText},
		{UserID: userID, Role: RoleAssistant, Content: assistantText},
	}
	return r.db.WithContext(ctx).Create(&turns).Error
}

// RecentTurnsDesc returns the most recent turns in DESC id order
// (newest -> oldest), capped at limit.
func (r *Repo) RecentTurnsDesc(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	var turns []Turn
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}
