package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	LiveKit   LiveKitConfig
	Contact   ContactConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Relay     RelayConfig
	Assistant AssistantConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// LiveKitConfig holds the realtime service signing identity.
// All three of APIKey, APISecret and URL must be set for credentials to be issued.
type LiveKitConfig struct {
	APIKey          string
	APISecret       string
	URL             string
	TokenTTLMinutes int
}

// ContactConfig controls lead storage and forwarding.
type ContactConfig struct {
	StoreDriver       string // memory | postgres
	WebhookURL        string // empty disables the webhook sink
	WebhookTimeoutSec int
	ForwardMode       string // async | queue
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds credentials and the bucket used to archive leads.
type AWSConfig struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	LeadsArchiveBucket string // empty disables the archive sink
}

// RelayConfig toggles the development realtime relay mounted at /rtc.
type RelayConfig struct {
	Enabled      bool
	UseRedis     bool
	AllowOrigins string
}

// AssistantConfig describes the voice agent as shown to clients.
type AssistantConfig struct {
	Name string
}

// Configured reports whether every field needed to sign a room grant is present.
func (c LiveKitConfig) Configured() bool {
	return c.APIKey != "" && c.APISecret != "" && c.URL != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5000,http://localhost:5173"),
		},
		LiveKit: LiveKitConfig{
			APIKey:          os.Getenv("LIVEKIT_API_KEY"),
			APISecret:       os.Getenv("LIVEKIT_API_SECRET"),
			URL:             os.Getenv("LIVEKIT_URL"),
			TokenTTLMinutes: getEnvInt("LIVEKIT_TOKEN_TTL_MINUTES", 15),
		},
		Contact: ContactConfig{
			StoreDriver:       strings.ToLower(getEnv("CONTACT_STORE_DRIVER", "memory")),
			WebhookURL:        getEnv("CONTACT_WEBHOOK_URL", ""),
			WebhookTimeoutSec: getEnvInt("CONTACT_WEBHOOK_TIMEOUT_SEC", 10),
			ForwardMode:       strings.ToLower(getEnv("CONTACT_FORWARD_MODE", "async")),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/vaani?sslmode=disable"),
			MaxConns: getEnvInt("DATABASE_MAX_CONNS", 4),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:             getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
			LeadsArchiveBucket: getEnv("AWS_S3_LEADS_BUCKET", ""),
		},
		Relay: RelayConfig{
			Enabled:      getEnvBool("RELAY_ENABLED", false),
			UseRedis:     getEnvBool("RELAY_USE_REDIS", false),
			AllowOrigins: getEnv("RELAY_ALLOWED_ORIGINS", "*"),
		},
		Assistant: AssistantConfig{
			Name: getEnv("ASSISTANT_NAME", "Vaani"),
		},
	}
	return cfg, nil
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
