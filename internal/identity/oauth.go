package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type OAuthConfig struct {
	PortalURL    string
	ClientID     string
	ClientSecret string
	// upper bound on how long a token is persisted
	MaxTTL     time.Duration
	HTTPClient *http.Client
}

// OAuthProvider signs the app in against the portal's token endpoint and
// persists the resulting credential.
type OAuthProvider struct {
	cfg    OAuthConfig
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewOAuth(cfg OAuthConfig, store Store, logger *slog.Logger) (*OAuthProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oauth: client id is required")
	}
	if strings.TrimSpace(cfg.PortalURL) == "" {
		return nil, errors.New("oauth: portal url is required")
	}
	if store == nil {
		store = NewMemoryStore(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthProvider{cfg: cfg, store: store, logger: logger, now: time.Now}, nil
}

// TokenURL returns the OAuth2 token endpoint of the portal
func (p *OAuthProvider) TokenURL() string {
	base := NormalizeServer(p.cfg.PortalURL)
	if !strings.HasSuffix(base, "/rest") {
		base += "/rest"
	}
	return base + "/oauth2/token"
}

func (p *OAuthProvider) key() string { return ServerKey(p.cfg.PortalURL) }

func (p *OAuthProvider) Credential(ctx context.Context, resourceURL string) (Credential, error) {
	if c, err := p.CheckSignInStatus(ctx); err == nil {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// another caller may have signed in while we waited
	if c, err := p.CheckSignInStatus(ctx); err == nil {
		return c, nil
	}

	cc := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     p.TokenURL(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("oauth: sign in to %s: %w", p.cfg.PortalURL, err)
	}

	now := p.now()
	cred := Credential{
		Server:  NormalizeServer(p.cfg.PortalURL),
		Token:   tok.AccessToken,
		Expires: tok.Expiry,
		Created: now,
	}
	ttl := p.cfg.MaxTTL
	if !tok.Expiry.IsZero() {
		if left := tok.Expiry.Sub(now); ttl <= 0 || left < ttl {
			ttl = left
		}
	}
	if err := p.store.Save(ctx, p.key(), cred, ttl); err != nil {
		// the token is still usable for this process
		p.logger.WarnContext(ctx, "credential not persisted", "err", err)
	}
	p.logger.InfoContext(ctx, "signed in", "portal", cred.Server, "resource", resourceURL, "expires", cred.Expires)
	return cred, nil
}

func (p *OAuthProvider) CheckSignInStatus(ctx context.Context) (Credential, error) {
	c, ok, err := p.store.Load(ctx, p.key())
	if err != nil {
		return Credential{}, fmt.Errorf("oauth: load credential: %w", err)
	}
	if !ok || !c.Valid(p.now()) {
		return Credential{}, ErrNotSignedIn
	}
	return c, nil
}

func (p *OAuthProvider) DestroyCredentials(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key()); err != nil {
		return fmt.Errorf("oauth: destroy credentials: %w", err)
	}
	return nil
}

func (p *OAuthProvider) RequiresSignIn() bool { return true }
