package model

import "time"

type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Trusted         bool       `json:"trusted"`
	PlanType        string     `json:"plan_type"`
	PlanExpiresAt   *time.Time `json:"plan_expires_at"`
	EmailsRemaining int64      `json:"emails_remaining"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasPlan reports whether the user carries any paid or trial plan.
func (u *User) HasPlan() bool { return u.PlanType != "" }

// PlanExpired reports whether the plan's validity window has passed.
func (u *User) PlanExpired(now time.Time) bool {
	return u.PlanExpiresAt != nil && u.PlanExpiresAt.Before(now)
}
