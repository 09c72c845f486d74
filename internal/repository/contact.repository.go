package repository

import (
	"context"
	"errors"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrContactNotFound is returned when a contact does not exist.
	ErrContactNotFound = errors.New("contact not found")
)

type ContactRepository struct {
	*pg.DB
}

func NewContactRepository(db *pg.DB) *ContactRepository {
	return &ContactRepository{
		db,
	}
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	entity := toContactEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toContactModel(entity), nil
}

func (r *ContactRepository) CreateList(ctx context.Context, l *model.ContactList) (*model.ContactList, error) {
	entity := &ContactListEntity{UserID: l.UserID, Name: l.Name}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	l.ID = entity.ID
	l.CreatedAt = entity.CreatedAt
	return l, nil
}

func (r *ContactRepository) Get(ctx context.Context, id int64) (*model.Contact, error) {
	var entity ContactEntity

	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	return toContactModel(&entity), nil
}

// ResolveValidRecipients unions the recipients of the given lists,
// de-duplicated by email address (the first contact row per address wins)
// and restricted to currently-valid contacts.
func (r *ContactRepository) ResolveValidRecipients(ctx context.Context, listIDs []int64) ([]int64, error) {
	if len(listIDs) == 0 {
		return nil, nil
	}

	var ids []int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&ContactEntity{}).
		Where("list_id IN ? AND status = ?", listIDs, string(model.ContactStatusValid)).
		Group("email").
		Pluck("MIN(id)", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FilterValid narrows a candidate id set down to contacts that are still
// valid at dispatch time. Order is not preserved.
func (r *ContactRepository) FilterValid(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var valid []int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&ContactEntity{}).
		Where("id IN ? AND status = ?", ids, string(model.ContactStatusValid)).
		Pluck("id", &valid).Error
	if err != nil {
		return nil, err
	}
	return valid, nil
}

// MarkInvalid demotes a contact after a permanent SMTP rejection so that no
// later campaign schedules it again.
func (r *ContactRepository) MarkInvalid(ctx context.Context, id int64, reason string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&ContactEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         string(model.ContactStatusInvalid),
			"invalid_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}
