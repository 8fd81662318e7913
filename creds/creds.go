// Package creds parses decorated credentials files: armored text blocks
// carrying a user JWT and the seed used to sign handshake nonces.
package creds

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/syntrixbase/natsio/nkeys"
)

var (
	ErrNoJWT  = errors.New("creds: no user JWT found")
	ErrNoSeed = errors.New("creds: no signing seed found")
)

const (
	jwtBlockStart = "-----BEGIN NATS USER JWT-----"
	blockEnd      = "------END"
)

// UserCredentials is the parsed content of a credentials file.
type UserCredentials struct {
	// JWT is the user token forwarded verbatim in CONNECT.
	JWT string

	kp nkeys.KeyPair
}

// ParseFile reads and parses a credentials file from disk.
func ParseFile(path string) (*UserCredentials, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("creds: reading %s: %w", path, err)
	}
	uc, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("creds: parsing %s: %w", path, err)
	}
	return uc, nil
}

// Parse extracts the user JWT and seed from decorated file contents.
func Parse(contents []byte) (*UserCredentials, error) {
	token := extractJWT(string(contents))
	if token == "" {
		return nil, ErrNoJWT
	}

	kp, err := nkeys.ParseDecoratedNKey(contents)
	if err != nil {
		return nil, ErrNoSeed
	}

	return &UserCredentials{JWT: token, kp: kp}, nil
}

// KeyPair returns the signing key pair derived from the embedded seed.
func (uc *UserCredentials) KeyPair() nkeys.KeyPair {
	return uc.kp
}

// Claims decodes the JWT claims without verifying the issuer signature; the
// server performs the authoritative check during the handshake.
func (uc *UserCredentials) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	p := jwt.NewParser()
	if _, _, err := p.ParseUnverified(uc.JWT, claims); err != nil {
		return nil, fmt.Errorf("creds: decoding JWT: %w", err)
	}
	return claims, nil
}

// ExpiresAt returns the token expiry, or the zero time when the token does
// not expire.
func (uc *UserCredentials) ExpiresAt() (time.Time, error) {
	claims, err := uc.Claims()
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Expired reports whether the token carries an expiry in the past.
func (uc *UserCredentials) Expired(now time.Time) bool {
	exp, err := uc.ExpiresAt()
	if err != nil || exp.IsZero() {
		return false
	}
	return exp.Before(now)
}

// extractJWT pulls the token line out of its armor block.
func extractJWT(contents string) string {
	idx := strings.Index(contents, jwtBlockStart)
	if idx < 0 {
		return ""
	}
	rest := contents[idx+len(jwtBlockStart):]
	var token strings.Builder
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, blockEnd) || strings.HasPrefix(line, "-----") {
			break
		}
		token.WriteString(line)
	}
	return token.String()
}
