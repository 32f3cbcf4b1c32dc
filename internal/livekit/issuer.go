package livekit

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vaani-voice/backend/config"
)

const (
	participantPrefix = "User-"
	roomPrefix        = "voice-assistant-demo-"
	// suffixRange bounds the random suffix: names end in 0..9999.
	suffixRange = 10000

	defaultTokenTTL = 15 * time.Minute
)

var (
	// ErrMisconfigured means the signing identity is incomplete; nothing was signed.
	ErrMisconfigured = errors.New("livekit: signing configuration incomplete")
	// ErrIssuanceFailed means signing was attempted and failed.
	ErrIssuanceFailed = errors.New("livekit: could not issue credential")
)

// Credential is what the browser needs to join one demo room.
type Credential struct {
	ServerURL       string `json:"serverUrl"`
	Token           string `json:"token"`
	ParticipantName string `json:"participantName"`
	RoomName        string `json:"roomName"`
}

// Issuer mints join-only credentials for freshly named demo rooms.
type Issuer struct {
	cfg    config.LiveKitConfig
	ttl    time.Duration
	signer Signer
	intn   func(n int) int
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithSigner replaces the HS256 signer.
func WithSigner(s Signer) Option {
	return func(i *Issuer) { i.signer = s }
}

// WithRand replaces the suffix source; fn must return a value in [0, n).
func WithRand(fn func(n int) int) Option {
	return func(i *Issuer) { i.intn = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer from the LiveKit section of the config.
func NewIssuer(cfg config.LiveKitConfig, logger *zap.Logger, opts ...Option) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	i := &Issuer{
		cfg:    cfg,
		ttl:    ttl,
		signer: NewHMACSigner(cfg.APISecret),
		intn:   rand.Intn,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue synthesizes a participant identity and room name and signs a grant
// letting that identity join that room. Names are random and may collide
// across callers; they are labels, not secrets.
func (i *Issuer) Issue(ctx context.Context) (*Credential, error) {
	if !i.cfg.Configured() {
		return nil, ErrMisconfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity := participantPrefix + strconv.Itoa(i.intn(suffixRange))
	room := roomPrefix + strconv.Itoa(i.intn(suffixRange))

	claims := NewJoinClaims(i.cfg.APIKey, identity, room, i.now(), i.ttl)
	token, err := i.signer.Sign(claims)
	if err != nil {
		i.logger.Error("sign access token failed", zap.Error(err), zap.String("room", room))
		return nil, ErrIssuanceFailed
	}

	return &Credential{
		ServerURL:       i.cfg.URL,
		Token:           token,
		ParticipantName: identity,
		RoomName:        room,
	}, nil
}
