package notify

import (
	"context"
	"fmt"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
)

// EmailSender delivers a notification by email. The default deployment
// has no SMTP relay, so the sender is optional.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service stores notifications in the inbox and optionally mirrors
// them to email for SEND_EMAIL rule actions.
type Service struct {
	repo  Repository
	email EmailSender
	log   *logging.Logger
}

// NewService creates a notification service. email may be nil, in
// which case SEND_EMAIL actions store the inbox entry and log that
// email delivery was skipped.
func NewService(repo Repository, email EmailSender, log *logging.Logger) *Service {
	return &Service{
		repo:  repo,
		email: email,
		log:   log.With("component", "notify"),
	}
}

// Notify stores an inbox notification for the owner. When sendEmail is
// set and an email sender is configured, the message is also mailed;
// an email failure does not fail the notification, since the inbox
// entry is the source of truth.
func (s *Service) Notify(ctx context.Context, ownerID, title, message string, sendEmail bool) error {
	n := &Notification{
		OwnerID:  ownerID,
		Title:    title,
		Message:  message,
		Category: CategoryRuleEngine,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}

	if !sendEmail {
		return nil
	}
	if s.email == nil {
		s.log.Debug("email delivery skipped, no sender configured",
			"notification_id", n.ID)
		return nil
	}
	if err := s.email.Send(ctx, ownerID, title, message); err != nil {
		s.log.Warn("email delivery failed",
			"notification_id", n.ID,
			"error", err)
	}
	return nil
}
