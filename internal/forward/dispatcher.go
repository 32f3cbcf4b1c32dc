package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/models"
	"github.com/vaani-voice/backend/pkg/queue"
)

const (
	defaultSinkTimeout    = 10 * time.Second
	defaultEnqueueTimeout = 5 * time.Second
)

// DeliverAll hands the lead to every sink, each under its own timeout.
// All sinks are attempted; the returned error joins the individual failures.
func DeliverAll(ctx context.Context, sinks []Sink, lead models.ContactLead, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	var errs []error
	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		err := s.Deliver(sctx, lead)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// AsyncDispatcher delivers each lead on its own goroutine. Failures are logged and dropped.
type AsyncDispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates a fire-and-forget dispatcher.
func NewAsyncDispatcher(sinks []Sink, timeout time.Duration, logger *zap.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncDispatcher{sinks: sinks, timeout: timeout, logger: logger}
}

// Dispatch implements contact.Dispatcher. It returns immediately.
func (d *AsyncDispatcher) Dispatch(lead models.ContactLead) {
	if len(d.sinks) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := DeliverAll(context.Background(), d.sinks, lead, d.timeout); err != nil {
			d.logger.Error("forward contact lead failed", zap.Int64("lead_id", lead.ID), zap.Error(err))
			return
		}
		d.logger.Info("contact lead forwarded", zap.Int64("lead_id", lead.ID))
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *AsyncDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueuer is satisfied by *queue.Queue.
type Enqueuer interface {
	EnqueueLeadForward(ctx context.Context, payload queue.LeadForwardPayload) error
}

// QueueDispatcher hands leads to the background worker through Redis.
// The enqueue itself also runs off the request path.
type QueueDispatcher struct {
	q      Enqueuer
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(q Enqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{q: q, logger: logger}
}

// Dispatch implements contact.Dispatcher.
func (d *QueueDispatcher) Dispatch(lead models.ContactLead) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultEnqueueTimeout)
		defer cancel()
		if err := d.q.EnqueueLeadForward(ctx, queue.LeadForwardPayload{Lead: lead}); err != nil {
			d.logger.Error("enqueue contact lead failed", zap.Int64("lead_id", lead.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight enqueues finish or ctx is done.
func (d *QueueDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
