package media

import (
	"errors"
	"strings"
	"time"

	"voice-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer mints short-lived room join credentials for the media provider.
//
// Issuance is a pure function of (identity, room), the process-wide signing
// secret and a clock. Tokens are not tracked or revocable server-side;
// validity ends at expiry.
type Issuer struct {
	apiKey string
	secret []byte
	ttl    time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

var ErrValidation = errors.New("identity and room are required")

func NewIssuer(cfg config.MediaConfig) (*Issuer, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("media: api key and secret are required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		apiKey: cfg.APIKey,
		secret: []byte(cfg.APISecret),
		ttl:    ttl,
		clock:  time.Now,
	}, nil
}

// Credential is a capability token scoping one identity to one room.
type Credential struct {
	Token           string    `json:"token"`
	SubjectIdentity string    `json:"identity"`
	Room            string    `json:"room"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// ExpiresIn is the remaining lifetime in whole seconds at issuance.
func (c Credential) ExpiresIn() int {
	return int(c.ExpiresAt.Sub(c.IssuedAt) / time.Second)
}

// VideoGrant is the room capability embedded in the token, in the shape the
// media room provider expects.
type VideoGrant struct {
	Room     string `json:"room"`
	RoomJoin bool   `json:"roomJoin"`
}

// Claims is the only supported join-token claims shape.
type Claims struct {
	jwt.RegisteredClaims

	Video VideoGrant `json:"video"`
}

// Issue mints a credential scoping identity to room.
func (i *Issuer) Issue(identity, room string) (Credential, error) {
	identity = strings.TrimSpace(identity)
	room = strings.TrimSpace(room)
	if identity == "" || room == "" {
		return Credential{}, ErrValidation
	}

	now := i.clock().UTC()
	exp := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Video: VideoGrant{Room: room, RoomJoin: true},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Token:           signed,
		SubjectIdentity: identity,
		Room:            room,
		IssuedAt:        now,
		ExpiresAt:       exp,
	}, nil
}

// Verify parses and validates a join token at the given instant.
func (i *Issuer) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	if _, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return Claims{}, err
	}

	if claims.Issuer != i.apiKey {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("subject missing")
	}
	if !claims.Video.RoomJoin || claims.Video.Room == "" {
		return Claims{}, errors.New("room grant missing")
	}
	return claims, nil
}
