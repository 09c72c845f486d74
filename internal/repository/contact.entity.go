package repository

import (
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type ContactEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	ListID        int64     `db:"list_id"        gorm:"column:list_id;not null;index"`
	Email         string    `db:"email"          gorm:"column:email;not null;index"`
	Name          string    `db:"name"           gorm:"column:name"`
	Status        string    `db:"status"         gorm:"column:status;not null;default:valid;index"`
	InvalidReason string    `db:"invalid_reason" gorm:"column:invalid_reason"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (ContactEntity) TableName() string {
	return "contacts"
}

type ContactListEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	UserID    int64     `db:"user_id"    gorm:"column:user_id;not null;index"`
	Name      string    `db:"name"       gorm:"column:name;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ContactListEntity) TableName() string {
	return "contact_lists"
}

func toContactEntity(c *model.Contact) *ContactEntity {
	if c == nil {
		return nil
	}
	return &ContactEntity{
		ID:            c.ID,
		ListID:        c.ListID,
		Email:         c.Email,
		Name:          c.Name,
		Status:        string(c.Status),
		InvalidReason: c.InvalidReason,
		CreatedAt:     c.CreatedAt,
	}
}

func toContactModel(e *ContactEntity) *model.Contact {
	if e == nil {
		return nil
	}
	return &model.Contact{
		ID:            e.ID,
		ListID:        e.ListID,
		Email:         e.Email,
		Name:          e.Name,
		Status:        model.ContactStatus(e.Status),
		InvalidReason: e.InvalidReason,
		CreatedAt:     e.CreatedAt,
	}
}
