// Package auth decides who is calling a mutating endpoint. It never looks at
// boxer state, so it can run before any store or engine call.
package auth

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

// errNoCredentials means an authenticator found nothing it understands on
// the request. Chain moves on to the next one.
var errNoCredentials = errors.New("no credentials")

type Caller struct {
	ID     string
	Scheme string // "hmac", "jwt" or "loopback"
}

type Authenticator interface {
	Authenticate(r *http.Request, body []byte) (Caller, error)
}

// Chain tries each authenticator in order. The first one that recognizes the
// request's credentials decides.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request, body []byte) (Caller, error) {
	for _, a := range c {
		caller, err := a.Authenticate(r, body)
		if errors.Is(err, errNoCredentials) {
			continue
		}
		return caller, err
	}
	return Caller{}, fmt.Errorf("%w: no credentials", ErrUnauthorized)
}

// Loopback admits any request from the local host. Used when no shared secret
// or public key is configured.
type Loopback struct{}

func (Loopback) Authenticate(r *http.Request, _ []byte) (Caller, error) {
	if !IsLoopbackRemote(r.RemoteAddr) {
		return Caller{}, errNoCredentials
	}
	return Caller{ID: "local", Scheme: "loopback"}, nil
}

func IsLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		host = strings.TrimSpace(remoteAddr)
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func allowSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func allowed(set map[string]struct{}, id string) bool {
	if set == nil {
		return true
	}
	_, ok := set[id]
	return ok
}
