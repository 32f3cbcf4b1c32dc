package livekit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// KindAgent marks tokens minted for the voice agent rather than a site visitor.
const KindAgent = "agent"

// VideoGrant is the room permission carried by an access token.
// Only join rights on a single named room are representable.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin,omitempty"`
	Room     string `json:"room,omitempty"`
}

// Claims is the access token payload in the realtime service's format:
// iss = API key, sub = participant identity, video = grant.
type Claims struct {
	Name  string      `json:"name,omitempty"`
	Kind  string      `json:"kind,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the participant identity (the subject).
func (c *Claims) Identity() string { return c.Subject }

// Signer turns claims into a signed token string.
type Signer interface {
	Sign(claims *Claims) (string, error)
}

// HMACSigner signs HS256 tokens with the API secret.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a signer for the given API secret.
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

// Sign implements Signer.
func (s *HMACSigner) Sign(claims *Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("livekit: empty signing secret")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// NewJoinClaims builds claims that allow identity to join room and nothing else.
func NewJoinClaims(apiKey, identity, room string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Name:  identity,
		Video: &VideoGrant{RoomJoin: true, Room: room},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// NewAgentClaims is NewJoinClaims for the voice agent joining a visitor's room.
func NewAgentClaims(apiKey, identity, name, room string, now time.Time, ttl time.Duration) *Claims {
	c := NewJoinClaims(apiKey, identity, room, now, ttl)
	c.Kind = KindAgent
	c.Name = name
	return c
}

// Verifier validates tokens signed with a known API key/secret pair.
type Verifier struct {
	keys map[string][]byte
	now  func() time.Time
}

// NewVerifier creates a verifier trusting a single key pair.
func NewVerifier(apiKey, apiSecret string) *Verifier {
	return &Verifier{
		keys: map[string][]byte{apiKey: []byte(apiSecret)},
		now:  time.Now,
	}
}

// Verify parses and validates a token, returning its claims.
// The token must be HS256, issued by a known key, inside its validity window,
// and carry a join grant naming a room.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		claims, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrInvalidToken
		}
		secret, ok := v.keys[claims.Issuer]
		if !ok || len(secret) == 0 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Video == nil || !claims.Video.RoomJoin || claims.Video.Room == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
