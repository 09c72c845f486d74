package repository

import (
	"context"
	"errors"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	entity := &UserEntity{
		Email:           u.Email,
		Trusted:         u.Trusted,
		PlanType:        u.PlanType,
		PlanExpiresAt:   u.PlanExpiresAt,
		EmailsRemaining: u.EmailsRemaining,
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toUserModel(entity), nil
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity

	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toUserModel(&entity), nil
}

// RecordEmailsSent deducts the sent count from the user's remaining plan
// volume, clamping at zero.
func (r *UserRepository) RecordEmailsSent(ctx context.Context, id int64, count int64) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Update("emails_remaining", gorm.Expr("CASE WHEN emails_remaining > ? THEN emails_remaining - ? ELSE 0 END", count, count))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
