// Package identity provides the credentials that gate access to the
// geoprocessing endpoint. Two providers exist: a proxy provider, where a
// credential-injecting proxy fronts the service, and an OAuth2 app sign-in
// provider whose tokens are persisted so a restart keeps the session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

var ErrNotSignedIn = errors.New("identity: not signed in")

type Credential struct {
	Server  string    `json:"server"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	Created time.Time `json:"created"`
}

// Valid reports whether the credential can still be used at now
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.Expires.IsZero() || now.Before(c.Expires)
}

type Provider interface {
	// Credential returns a credential for resourceURL, signing in if needed
	Credential(ctx context.Context, resourceURL string) (Credential, error)
	// CheckSignInStatus only consults persisted credentials
	CheckSignInStatus(ctx context.Context) (Credential, error)
	DestroyCredentials(ctx context.Context) error
	// RequiresSignIn is false when the service is reached through a proxy
	RequiresSignIn() bool
}

type Store interface {
	Load(ctx context.Context, key string) (Credential, bool, error)
	Save(ctx context.Context, key string, c Credential, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ServerKey derives the store key for a server URL. Scheme and host are
// case-folded and trailing slashes ignored so equivalent URLs share a key.
func ServerKey(server string) string {
	norm := NormalizeServer(server)
	return fmt.Sprintf("cred:%016x", xxhash.Sum64String(norm))
}

func NormalizeServer(server string) string {
	s := strings.TrimRight(strings.TrimSpace(server), "/")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(s)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
