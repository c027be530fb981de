// Package services holds the ledger's use cases. Handlers and workers call
// services; services call storage and publish events.
package services

import (
	"context"

	"ledger/internal/amqp"
)

// EventPublisher emits domain events for notification fan-out.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *amqp.EventMessage) error
}

// ContactPublisher queues contact form submissions for email delivery.
type ContactPublisher interface {
	PublishContact(ctx context.Context, msg *amqp.ContactMessage) error
}

// Invalidator drops cached derived data for a company after writes.
type Invalidator interface {
	Invalidate(companyID string)
}

var (
	_ EventPublisher   = (*amqp.Client)(nil)
	_ ContactPublisher = (*amqp.Client)(nil)
)

// DirectEvents delivers events synchronously to the notification service.
// Used when no broker is configured.
type DirectEvents struct {
	Notifications *NotificationService
}

func (d DirectEvents) PublishEvent(ctx context.Context, msg *amqp.EventMessage) error {
	return d.Notifications.HandleEvent(ctx, msg)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}
