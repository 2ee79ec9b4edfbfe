package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderCallerID  = "x-caller-id"
	HeaderTS        = "x-ts"
	HeaderNonce     = "x-nonce"
	HeaderSignature = "x-signature"

	maxSkew = 5 * time.Minute
)

func canonicalString(ts, method, pathname, callerID, nonce string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + strings.TrimSpace(callerID) + "\n" + strings.TrimSpace(nonce) + "\n" + string(rawBody)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign sets the signature headers on r for body. The body must be sent unchanged.
func Sign(r *http.Request, secret []byte, callerID, nonce string, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	r.Header.Set(HeaderCallerID, callerID)
	r.Header.Set(HeaderTS, ts)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, signHMAC(secret, canonicalString(ts, r.Method, r.URL.Path, callerID, nonce, body)))
}

// HMAC verifies requests signed with a shared secret. Each nonce is accepted
// once per caller within the replay window.
type HMAC struct {
	secret  []byte
	allowed map[string]struct{}
	guard   *nonceGuard
	now     func() time.Time
}

// NewHMAC returns a verifier for secret. An empty callers list admits any caller id.
func NewHMAC(secret []byte, callers []string) *HMAC {
	return &HMAC{
		secret:  secret,
		allowed: allowSet(callers),
		guard:   newNonceGuard(2 * maxSkew),
		now:     time.Now,
	}
}

func (h *HMAC) Authenticate(r *http.Request, body []byte) (Caller, error) {
	sigRaw := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if sigRaw == "" {
		return Caller{}, errNoCredentials
	}
	fail := func(msg string) (Caller, error) {
		return Caller{}, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	}
	callerID := strings.TrimSpace(r.Header.Get(HeaderCallerID))
	if callerID == "" {
		return fail("missing " + HeaderCallerID)
	}
	tsStr := strings.TrimSpace(r.Header.Get(HeaderTS))
	if tsStr == "" {
		return fail("missing " + HeaderTS)
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return fail("missing " + HeaderNonce)
	}
	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fail("bad " + HeaderTS)
	}
	now := h.now()
	if d := now.UnixMilli() - tsMS; d > maxSkew.Milliseconds() || d < -maxSkew.Milliseconds() {
		return fail(HeaderTS + " outside window")
	}

	sig := strings.ToLower(sigRaw)
	exp := signHMAC(h.secret, canonicalString(tsStr, r.Method, r.URL.Path, callerID, nonce, body))
	if !hmac.Equal([]byte(sig), []byte(exp)) {
		return fail("bad signature")
	}
	if !allowed(h.allowed, callerID) {
		return fail("caller not allowed")
	}
	if !h.guard.allow(callerID, nonce, now) {
		return fail("replayed request")
	}
	return Caller{ID: callerID, Scheme: "hmac"}, nil
}
