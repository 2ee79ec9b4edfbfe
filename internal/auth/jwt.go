package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Callers  []string
	Now      func() time.Time
}

// JWT verifies EdDSA-signed bearer tokens. The subject claim is the caller id.
type JWT struct {
	cfg     JWTConfig
	allowed map[string]struct{}
}

func NewJWT(cfg JWTConfig) (*JWT, error) {
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return nil, errors.New("jwt verifier is not configured")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWT{cfg: cfg, allowed: allowSet(cfg.Callers)}, nil
}

// ParsePublicKey decodes a base64 (std or url, padded or not) ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	var (
		b   []byte
		err error
	)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err = enc.DecodeString(s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}

func (j *JWT) Authenticate(r *http.Request, _ []byte) (Caller, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return Caller{}, errNoCredentials
	}
	raw := strings.TrimSpace(h[len("bearer "):])
	fail := func(msg string) (Caller, error) {
		return Caller{}, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	}
	if raw == "" {
		return fail("empty bearer token")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return j.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fail(jwtMessage(err))
	}

	if claims.Issuer != j.cfg.Issuer {
		return fail("issuer mismatch")
	}
	if !audienceContains(claims.Audience, j.cfg.Audience) {
		return fail("audience mismatch")
	}
	if claims.ExpiresAt == nil {
		return fail("exp is required")
	}
	now := j.cfg.Now().UTC()
	if !claims.ExpiresAt.Time.After(now) {
		return fail("token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return fail("token not active yet")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return fail("sub is required")
	}
	if !allowed(j.allowed, sub) {
		return fail("caller not allowed")
	}
	return Caller{ID: sub, Scheme: "jwt"}, nil
}

func jwtMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrEd25519Verification):
		return "signature is invalid"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "alg is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	default:
		return "token is invalid"
	}
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
