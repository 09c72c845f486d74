package repository

import (
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type UserEntity struct {
	ID              int64      `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Email           string     `db:"email"            gorm:"column:email;not null;uniqueIndex"`
	Trusted         bool       `db:"trusted"          gorm:"column:trusted;not null;default:false"`
	PlanType        string     `db:"plan_type"        gorm:"column:plan_type"`
	PlanExpiresAt   *time.Time `db:"plan_expires_at"  gorm:"column:plan_expires_at"`
	EmailsRemaining int64      `db:"emails_remaining" gorm:"column:emails_remaining;not null;default:0"`
	CreatedAt       time.Time  `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:              e.ID,
		Email:           e.Email,
		Trusted:         e.Trusted,
		PlanType:        e.PlanType,
		PlanExpiresAt:   e.PlanExpiresAt,
		EmailsRemaining: e.EmailsRemaining,
		CreatedAt:       e.CreatedAt,
	}
}
