package users

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FindOrCreate returns the row for userID, inserting a fresh one on first
// contact. Safe to race: the unique index on user_id makes the insert lose
// cleanly, after which the existing row is re-read.
func (r *Repo) FindOrCreate(ctx context.Context, userID string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = User{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&u).Error; err != nil {
		return nil, err
	}
	if u.ID != 0 {
		return &u, nil
	}

	// Lost the insert race; the row exists now.
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) Get(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	return r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Update("is_subscribed", subscribed).Error
}

// IncrementMessageCount bumps the counter atomically and returns the
// post-increment value. The returned count is what quota enforcement uses,
// including for units that end up rejected.
func (r *Repo) IncrementMessageCount(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Update("message_count", gorm.Expr("message_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var u User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return 0, err
	}
	return u.MessageCount, nil
}

func (r *Repo) MarkWelcomeSent(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Update("welcome_sent", true).Error
}
