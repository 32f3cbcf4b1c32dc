package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLiveKitFromEnv(t *testing.T) {
	t.Setenv("LIVEKIT_API_KEY", "APIkey")
	t.Setenv("LIVEKIT_API_SECRET", "secret")
	t.Setenv("LIVEKIT_URL", "wss://demo.livekit.cloud")
	t.Setenv("LIVEKIT_TOKEN_TTL_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LiveKit.Configured())
	assert.Equal(t, 5, cfg.LiveKit.TokenTTLMinutes)
}

func TestLiveKitConfiguredRequiresAllFields(t *testing.T) {
	full := LiveKitConfig{APIKey: "k", APISecret: "s", URL: "wss://x"}
	assert.True(t, full.Configured())

	for name, c := range map[string]LiveKitConfig{
		"no key":    {APISecret: "s", URL: "wss://x"},
		"no secret": {APIKey: "k", URL: "wss://x"},
		"no url":    {APIKey: "k", APISecret: "s"},
	} {
		assert.False(t, c.Configured(), name)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("CONTACT_STORE_DRIVER", "")
	t.Setenv("RELAY_ENABLED", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Contact.StoreDriver)
	assert.Equal(t, "async", cfg.Contact.ForwardMode)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, "Vaani", cfg.Assistant.Name)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Nil(t, SplitList(""))
}
