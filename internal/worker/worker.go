// Package worker runs the background side of the ledger: AMQP consumers for
// contact email and domain events, and the periodic scanner.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/services"
)

// Consumer delivers queued messages to handlers until ctx ends.
type Consumer interface {
	ConsumeContacts(ctx context.Context, handler func(context.Context, *amqp.ContactMessage) error) error
	ConsumeEvents(ctx context.Context, handler func(context.Context, *amqp.EventMessage) error) error
}

var _ Consumer = (*amqp.Client)(nil)

// ContactDeliverer sends a contact message by email.
type ContactDeliverer interface {
	Deliver(ctx context.Context, msg *amqp.ContactMessage) error
}

// EventHandler turns an event into notifications.
type EventHandler interface {
	HandleEvent(ctx context.Context, msg *amqp.EventMessage) error
}

// ScanRunner runs one pass of the periodic jobs.
type ScanRunner interface {
	RunOnce(ctx context.Context) (services.ScanResult, error)
}

var (
	_ ContactDeliverer = (*services.ContactService)(nil)
	_ EventHandler     = (*services.NotificationService)(nil)
	_ ScanRunner       = (*services.Scanner)(nil)
)

type Worker struct {
	consumer Consumer
	contacts ContactDeliverer
	events   EventHandler
	scanner  ScanRunner
	interval time.Duration
}

// New builds a worker. consumer may be nil when no broker is configured, in
// which case only the scanner runs.
func New(consumer Consumer, contacts ContactDeliverer, events EventHandler, scanner ScanRunner, interval time.Duration) *Worker {
	return &Worker{
		consumer: consumer,
		contacts: contacts,
		events:   events,
		scanner:  scanner,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled or a consumer fails for good.
// Cancellation is not reported as an error.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeContacts(gctx, w.handleContact)
		})
		g.Go(func() error {
			return w.consumer.ConsumeEvents(gctx, w.handleEvent)
		})
	} else {
		slog.InfoContext(ctx, "No AMQP consumer configured, running scanner only")
	}

	if w.scanner != nil && w.interval > 0 {
		g.Go(func() error {
			w.scanLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) handleContact(ctx context.Context, msg *amqp.ContactMessage) error {
	slog.InfoContext(ctx, "Processing contact message", "id", msg.ID)
	if err := msg.Validate(); err != nil {
		// Requeueing an invalid message would loop forever.
		slog.WarnContext(ctx, "Discarding invalid contact message", "id", msg.ID, "error", err)
		return nil
	}
	return w.contacts.Deliver(ctx, msg)
}

func (w *Worker) handleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	slog.InfoContext(ctx, "Processing event", "id", msg.ID, "type", msg.Type, "company_id", msg.CompanyID)
	return w.events.HandleEvent(ctx, msg)
}

// scanLoop runs the scanner at startup and then on every tick.
func (w *Worker) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Worker) scan(ctx context.Context) {
	if _, err := w.scanner.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Periodic scan failed", "error", err)
	}
}
