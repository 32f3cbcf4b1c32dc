package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/forward"
	"github.com/vaani-voice/backend/pkg/queue"
)

// JobSource is satisfied by *queue.Queue.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// LeadProcessor processes lead forwarding jobs: deliver to every sink, retry on failure.
type LeadProcessor struct {
	sinks   []forward.Sink
	timeout time.Duration
	queue   JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewLeadProcessor creates a lead forwarding processor.
func NewLeadProcessor(sinks []forward.Sink, timeout time.Duration, q JobSource, logger *zap.Logger) *LeadProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadProcessor{sinks: sinks, timeout: timeout, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one lead forwarding job.
func (p *LeadProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLeadForward {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LeadForwardPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := forward.DeliverAll(ctx, p.sinks, payload.Lead, p.timeout); err != nil {
		return err
	}
	p.logger.Info("contact lead forwarded", zap.Int64("lead_id", payload.Lead.ID), zap.String("job_id", job.ID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *LeadProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("lead worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *LeadProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
