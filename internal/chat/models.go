package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one side of an exchange. Rows are append-only; a completed
// exchange always writes a user turn and an assistant turn together.
type Turn struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(32);index;not null" json:"user_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "conversation_turns" }
