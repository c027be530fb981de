package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/mailer"
)

const defaultContactSubject = "Contact form message"

// ContactService accepts contact form submissions. With a publisher the
// message is queued for the worker; otherwise it is mailed immediately.
type ContactService struct {
	publisher ContactPublisher
	mailer    mailer.Mailer
	from      string
	to        string
}

// NewContactService wires delivery. publisher may be nil. Messages go to to,
// or to from when to is empty.
func NewContactService(publisher ContactPublisher, m mailer.Mailer, from, to string) *ContactService {
	if to == "" {
		to = from
	}
	return &ContactService{publisher: publisher, mailer: m, from: from, to: to}
}

// Submit validates and forwards a submission.
func (s *ContactService) Submit(ctx context.Context, name, email, subject, message string) (*amqp.ContactMessage, error) {
	msg := amqp.NewContactMessage(name, email, subject, message)
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishContact(ctx, msg); err != nil {
			return nil, fmt.Errorf("queue contact message: %w", err)
		}
		slog.InfoContext(ctx, "Contact message queued", "message_id", msg.ID)
		return msg, nil
	}

	if err := s.Deliver(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Deliver emails a contact message to the configured recipient.
func (s *ContactService) Deliver(ctx context.Context, msg *amqp.ContactMessage) error {
	if s.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	subject := msg.Subject
	if subject == "" {
		subject = defaultContactSubject
	}
	err := s.mailer.Send(ctx, mailer.Email{
		From:    s.from,
		To:      []string{s.to},
		ReplyTo: msg.Email,
		Subject: "[Ledger] " + subject,
		Text: fmt.Sprintf("From: %s <%s>\nSent: %s\n\n%s",
			msg.Name, msg.Email, msg.Timestamp.Format("2006-01-02 15:04 MST"), msg.Message),
	})
	if err != nil {
		return fmt.Errorf("send contact email: %w", err)
	}
	slog.InfoContext(ctx, "Contact message delivered", "message_id", msg.ID)
	return nil
}
