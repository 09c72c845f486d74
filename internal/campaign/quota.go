package campaign

import (
	"context"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type UserRepository interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	RecordEmailsSent(ctx context.Context, id int64, count int64) error
}

// PlanInfo is the quota view of a user's plan.
type PlanInfo struct {
	HasPlan   bool
	PlanType  string
	IsExpired bool
	Remaining int64
}

// QuotaService answers whether an owner may send a given number of emails
// and accounts for what was actually dispatched.
type QuotaService struct {
	users UserRepository
}

func NewQuotaService(users UserRepository) *QuotaService {
	return &QuotaService{users: users}
}

func (s *QuotaService) PlanInfo(ctx context.Context, userID int64) (PlanInfo, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return PlanInfo{}, err
	}
	return PlanInfo{
		HasPlan:   user.HasPlan(),
		PlanType:  user.PlanType,
		IsExpired: user.PlanExpired(time.Now()),
		Remaining: user.EmailsRemaining,
	}, nil
}

// CanSendEmails checks the owner's plan against the recipient count. The
// returned reason is a short stable string suitable for a campaign failure
// reason; empty when allowed.
func (s *QuotaService) CanSendEmails(ctx context.Context, userID int64, count int) (bool, string, error) {
	info, err := s.PlanInfo(ctx, userID)
	if err != nil {
		return false, "", err
	}
	switch {
	case !info.HasPlan:
		return false, "no active plan", nil
	case info.IsExpired:
		return false, "plan expired", nil
	case info.Remaining < int64(count):
		return false, "email quota exceeded", nil
	}
	return true, "", nil
}

func (s *QuotaService) RecordEmailsSent(ctx context.Context, userID int64, count int64) error {
	return s.users.RecordEmailsSent(ctx, userID, count)
}
