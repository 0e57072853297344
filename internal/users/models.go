package users

import "time"

// User is the durable per-sender row. UserID is the canonical phone-shaped
// identifier from the messaging platform. IsSubscribed is only a cached
// verdict from the last billing resolution; a stored false is never trusted.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID       string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"user_id"`
	MessageCount int64     `gorm:"not null;default:0" json:"message_count"`
	IsSubscribed bool      `gorm:"not null;default:false" json:"is_subscribed"`
	WelcomeSent  bool      `gorm:"not null;default:false" json:"welcome_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
