// Package forward delivers stored contact leads to downstream systems
// (automation webhook, S3 archive) without holding up the HTTP response.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vaani-voice/backend/internal/models"
	"github.com/vaani-voice/backend/pkg/storage"
)

// Sink is one downstream destination for a lead.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, lead models.ContactLead) error
}

// WebhookSink POSTs the submitted form fields as JSON to an automation webhook.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink. A nil client uses http.DefaultClient.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink. Any non-2xx status is an error.
func (s *WebhookSink) Deliver(ctx context.Context, lead models.ContactLead) error {
	body, err := json.Marshal(lead.Input())
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status: %d", resp.StatusCode)
	}
	return nil
}

// ObjectWriter is satisfied by *storage.S3.
type ObjectWriter interface {
	PutJSON(ctx context.Context, key string, body []byte) (string, error)
}

// ArchiveSink writes the full lead record to object storage under leads/{id}.json.
type ArchiveSink struct {
	store ObjectWriter
}

// NewArchiveSink creates an archive sink.
func NewArchiveSink(store ObjectWriter) *ArchiveSink {
	return &ArchiveSink{store: store}
}

// Name implements Sink.
func (s *ArchiveSink) Name() string { return "archive" }

// Deliver implements Sink.
func (s *ArchiveSink) Deliver(ctx context.Context, lead models.ContactLead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	if _, err := s.store.PutJSON(ctx, storage.LeadKey(lead.ID), body); err != nil {
		return fmt.Errorf("archive lead: %w", err)
	}
	return nil
}
