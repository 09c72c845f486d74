package model

import "time"

// ContactStatus is assigned by the external validation engine. The pipeline
// only ever schedules sends to valid contacts and may demote a contact to
// invalid after a permanent SMTP rejection.
type ContactStatus string

const (
	ContactStatusValid       ContactStatus = "valid"
	ContactStatusInvalid     ContactStatus = "invalid"
	ContactStatusBlacklisted ContactStatus = "blacklisted"
)

type Contact struct {
	ID            int64         `json:"id"`
	ListID        int64         `json:"list_id"`
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	Status        ContactStatus `json:"status"`
	InvalidReason string        `json:"invalid_reason"`
	CreatedAt     time.Time     `json:"created_at"`
}

type ContactList struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
