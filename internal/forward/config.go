package forward

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaani-voice/backend/config"
	"github.com/vaani-voice/backend/pkg/storage"
)

// NewSinks builds the sinks enabled in cfg: the webhook when CONTACT_WEBHOOK_URL
// is set and the S3 archive when AWS_S3_LEADS_BUCKET is set.
func NewSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sinks []Sink
	if cfg.Contact.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.Contact.WebhookURL, nil))
	}
	if cfg.AWS.LeadsArchiveBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.LeadsArchiveBucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		sinks = append(sinks, NewArchiveSink(s3Client))
	}
	if len(sinks) == 0 {
		logger.Warn("no lead sinks configured; leads are stored only")
	}
	return sinks, nil
}

// DeliveryTimeout is the per-sink deadline from CONTACT_WEBHOOK_TIMEOUT_SEC.
func DeliveryTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Contact.WebhookTimeoutSec) * time.Second
}
