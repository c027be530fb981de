package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/services"
)

type fakeConsumer struct {
	contacts []*amqp.ContactMessage
	events   []*amqp.EventMessage
	results  chan error
}

func (f *fakeConsumer) ConsumeContacts(ctx context.Context, handler func(context.Context, *amqp.ContactMessage) error) error {
	for _, m := range f.contacts {
		f.results <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) ConsumeEvents(ctx context.Context, handler func(context.Context, *amqp.EventMessage) error) error {
	for _, m := range f.events {
		f.results <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeDeliverer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, msg *amqp.ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, msg.ID)
	return nil
}

type fakeEvents struct {
	err error
}

func (f fakeEvents) HandleEvent(context.Context, *amqp.EventMessage) error { return f.err }

type countingScanner struct {
	runs atomic.Int32
}

func (c *countingScanner) RunOnce(context.Context) (services.ScanResult, error) {
	c.runs.Add(1)
	return services.ScanResult{}, nil
}

func TestWorker_RunDispatchesMessages(t *testing.T) {
	valid := amqp.NewContactMessage("Ann", "ann@example.com", "", "Hello")
	invalid := amqp.NewContactMessage("", "nobody", "", "")
	handlerErr := errors.New("db down")

	consumer := &fakeConsumer{
		contacts: []*amqp.ContactMessage{valid, invalid},
		events:   []*amqp.EventMessage{amqp.NewEventMessage(amqp.EventInvoicePaid, "c1", "i1", "INV-000001", 100, "EUR")},
		results:  make(chan error, 3),
	}
	deliverer := &fakeDeliverer{}
	w := New(consumer, deliverer, fakeEvents{err: handlerErr}, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var errs []error
	for range 3 {
		select {
		case err := <-consumer.results:
			errs = append(errs, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handlers")
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run returned %v after cancel, want nil", err)
	}

	var nilCount, failed int
	for _, err := range errs {
		switch {
		case err == nil:
			nilCount++
		case errors.Is(err, handlerErr):
			failed++
		}
	}
	if nilCount != 2 || failed != 1 {
		t.Errorf("handler results = %v; want two acks (valid and discarded) and one failure", errs)
	}

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if len(deliverer.ids) != 1 || deliverer.ids[0] != valid.ID {
		t.Errorf("delivered %v, want only %s", deliverer.ids, valid.ID)
	}
}

func TestWorker_ScannerRunsAtStartupAndOnTick(t *testing.T) {
	scanner := &countingScanner{}
	w := New(nil, nil, nil, scanner, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for scanner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("scanner ran %d times, want at least 3", scanner.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
