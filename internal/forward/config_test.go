package forward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaani-voice/backend/config"
)

func TestNewSinks(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.Config
		names []string
	}{
		{"none", config.Config{}, nil},
		{"webhook", config.Config{Contact: config.ContactConfig{WebhookURL: "http://hooks.local/lead"}}, []string{"webhook"}},
		{"webhook and archive", config.Config{
			Contact: config.ContactConfig{WebhookURL: "http://hooks.local/lead"},
			AWS: config.AWSConfig{
				Region:             "us-east-1",
				AccessKeyID:        "AKIATEST",
				SecretAccessKey:    "secret",
				LeadsArchiveBucket: "leads",
			},
		}, []string{"webhook", "archive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks, err := NewSinks(context.Background(), &tt.cfg, nil)
			require.NoError(t, err)
			var got []string
			for _, s := range sinks {
				got = append(got, s.Name())
			}
			assert.Equal(t, tt.names, got)
		})
	}
}

func TestDeliveryTimeout(t *testing.T) {
	cfg := &config.Config{Contact: config.ContactConfig{WebhookTimeoutSec: 4}}
	assert.Equal(t, 4*time.Second, DeliveryTimeout(cfg))
}
