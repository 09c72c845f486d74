package services

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

var ErrBadRedirect = errors.New("redirect target is not an absolute http url")

type TrackingRepository interface {
	GetTracking(ctx context.Context, trackingID string) (*model.DeliveryTracking, error)
	MarkOpened(ctx context.Context, trackingID string, at time.Time) error
	MarkClicked(ctx context.Context, trackingID string, at time.Time) error
	MarkBounced(ctx context.Context, trackingID string, at time.Time, reason string) error
}

type ContactInvalidator interface {
	MarkInvalid(ctx context.Context, id int64, reason string) error
}

// TrackingService records open/click/bounce callbacks. Every write is
// best-effort from the caller's point of view: a pixel request must get its
// gif and a click must get its redirect even when the row is gone, so
// handlers treat ErrTrackingNotFound as success.
type TrackingService struct {
	trackings TrackingRepository
	contacts  ContactInvalidator
}

func NewTrackingService(trackings TrackingRepository, contacts ContactInvalidator) *TrackingService {
	return &TrackingService{trackings: trackings, contacts: contacts}
}

func (s *TrackingService) RecordOpen(ctx context.Context, trackingID string) {
	if err := s.trackings.MarkOpened(ctx, trackingID, time.Now()); err != nil {
		logger.Warn("failed to record open", "tracking_id", trackingID, "error", err)
	}
}

// RecordClick validates the redirect target and records the click. The
// returned URL is what the handler redirects to; validation happens first
// so the endpoint cannot be used as an open redirect for arbitrary schemes.
func (s *TrackingService) RecordClick(ctx context.Context, trackingID, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrBadRedirect
	}

	if err := s.trackings.MarkClicked(ctx, trackingID, time.Now()); err != nil {
		logger.Warn("failed to record click", "tracking_id", trackingID, "error", err)
	}
	return u.String(), nil
}

// RecordBounce stamps the bounce and, for hard bounces, invalidates the
// contact so later campaigns skip the address.
func (s *TrackingService) RecordBounce(ctx context.Context, trackingID, reason string, hard bool) error {
	tr, err := s.trackings.GetTracking(ctx, trackingID)
	if errors.Is(err, repository.ErrTrackingNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := s.trackings.MarkBounced(ctx, trackingID, time.Now(), reason); err != nil {
		return err
	}

	if hard {
		if err := s.contacts.MarkInvalid(ctx, tr.ContactID, "bounced"); err != nil {
			logger.Warn("failed to invalidate bounced contact", "contact_id", tr.ContactID, "error", err)
		}
	}
	return nil
}
