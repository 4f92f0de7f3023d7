// Package turnrest mints short-lived TURN credentials in the coturn
// "use-auth-secret" format, so browsers never see the long-term TURN secret.
//
//	username   = <expiry unix seconds>:<prefix>:<session id>
//	credential = base64(HMAC-SHA1(secret, username))
//
// coturn recomputes the HMAC from its static-auth-secret and rejects the
// username once the embedded expiry has passed.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptySessionID   = errors.New("turnrest: session id is required")
	ErrInvalidSessionID = errors.New("turnrest: session id must not contain ':'")
)

type GeneratorConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	// Now and SessionIDSource default to time.Now and random UUIDs.
	Now             func() time.Time
	SessionIDSource func() (string, error)
}

// Generator is safe for concurrent use.
type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
	nextID func() (string, error)
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	switch {
	case cfg.SharedSecret == "":
		return nil, errors.New("turnrest: shared secret is required")
	case cfg.TTLSeconds <= 0:
		return nil, errors.New("turnrest: TTLSeconds must be > 0")
	case cfg.UsernamePrefix == "":
		return nil, errors.New("turnrest: UsernamePrefix is required")
	case strings.Contains(cfg.UsernamePrefix, ":"):
		return nil, errors.New("turnrest: UsernamePrefix must not contain ':'")
	}

	g := &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
		nextID: cfg.SessionIDSource,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.nextID == nil {
		g.nextID = func() (string, error) { return uuid.NewString(), nil }
	}
	return g, nil
}

// Credentials is one TURN username/credential pair. ExpiryUnix is serialized
// as expiresAt so browsers know when to refetch.
type Credentials struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
	ExpiryUnix int64  `json:"expiresAt"`
}

// Generate mints credentials bound to sessionID, normally the caller's
// signaling user id, so TURN server logs can be tied back to a peer.
func (g *Generator) Generate(sessionID string) (Credentials, error) {
	switch {
	case sessionID == "":
		return Credentials{}, ErrEmptySessionID
	case strings.Contains(sessionID, ":"):
		return Credentials{}, ErrInvalidSessionID
	}

	expiry := g.now().Add(g.ttl).Unix()
	username := strconv.FormatInt(expiry, 10) + ":" + g.prefix + ":" + sessionID

	mac := hmac.New(sha1.New, g.secret)
	mac.Write([]byte(username))
	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiryUnix: expiry,
	}, nil
}

// GenerateRandom mints credentials for an anonymous session.
func (g *Generator) GenerateRandom() (Credentials, error) {
	id, err := g.nextID()
	if err != nil {
		return Credentials{}, err
	}
	return g.Generate(id)
}
