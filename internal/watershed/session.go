package watershed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/gp"
	"github.com/mohammed-shakir/watershed-gateway/internal/identity"
	"github.com/mohammed-shakir/watershed-gateway/internal/logger"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
)

// ErrNoSignIn is returned by SignIn and SignOut when the provider proxies
// credentials and has no sign-in of its own.
var ErrNoSignIn = errors.New("watershed: provider does not support sign in")

type SessionConfig struct {
	// ServiceURL is the watershed task used after an OAuth sign in
	ServiceURL string
	// PortalURL scopes the OAuth sign in
	PortalURL string
	// ProxyURL replaces ServiceURL when the provider needs no sign in
	ProxyURL     string
	PollInterval time.Duration
}

// Session ties an identity provider to an orchestrator and the auth panels.
type Session struct {
	cfg      SessionConfig
	provider identity.Provider
	orch     *Orchestrator
	view     *view.View
	client   *http.Client
	logger   *slog.Logger

	mu       sync.Mutex
	signedIn bool
}

type SessionState struct {
	Mode       string      `json:"mode"`
	SignedIn   bool        `json:"signedIn"`
	Ready      bool        `json:"ready"`
	Processing bool        `json:"processing"`
	ServiceURL string      `json:"serviceUrl"`
	Panels     view.Panels `json:"panels"`
}

func NewSession(cfg SessionConfig, provider identity.Provider, orch *Orchestrator, v *view.View, client *http.Client, log *slog.Logger) *Session {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, provider: provider, orch: orch, view: v, client: client, logger: log}
}

func (s *Session) mode() string {
	if s.provider.RequiresSignIn() {
		return "oauth"
	}
	return "proxy"
}

func (s *Session) serviceURL() string {
	if !s.provider.RequiresSignIn() && s.cfg.ProxyURL != "" {
		return s.cfg.ProxyURL
	}
	return s.cfg.ServiceURL
}

// Start prepares the session the way a page load does. With a proxy both
// panels are hidden and the geoprocessor is attached immediately; otherwise a
// persisted sign in is looked up and, if valid, restored.
func (s *Session) Start(ctx context.Context) error {
	if !s.provider.RequiresSignIn() {
		s.view.SetPanels(view.Panels{})
		return s.attach(nil)
	}

	ctx = logger.WithComponent(ctx, "session")
	_, err := s.provider.CheckSignInStatus(ctx)
	switch {
	case errors.Is(err, identity.ErrNotSignedIn):
		s.view.SetPanels(view.Panels{Anonymous: true})
		s.logger.InfoContext(ctx, "no persisted sign in")
		return nil
	case err != nil:
		return fmt.Errorf("check sign in: %w", err)
	}
	return s.signedInAs(ctx)
}

// SignIn obtains a credential for the service and attaches the geoprocessor
func (s *Session) SignIn(ctx context.Context) error {
	if !s.provider.RequiresSignIn() {
		return ErrNoSignIn
	}
	ctx = logger.WithComponent(ctx, "session")
	s.mu.Lock()
	attached := s.signedIn && s.orch.Attached()
	s.mu.Unlock()
	if attached {
		// keep the current attachment and its in-flight job
		if _, err := s.provider.CheckSignInStatus(ctx); err == nil {
			return nil
		}
	}
	if _, err := s.provider.Credential(ctx, s.cfg.PortalURL); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return s.signedInAs(ctx)
}

// SignOut destroys the credential and resets the session to a fresh load
func (s *Session) SignOut(ctx context.Context) error {
	if !s.provider.RequiresSignIn() {
		return ErrNoSignIn
	}
	ctx = logger.WithComponent(ctx, "session")
	// stop the in-flight job before its credential disappears
	s.orch.Detach()
	if err := s.provider.DestroyCredentials(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.view.Reset()

	s.mu.Lock()
	s.signedIn = false
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "signed out")
	return nil
}

func (s *Session) signedInAs(ctx context.Context) error {
	s.view.SetPanels(view.Panels{Personalized: true})
	// jobs only read the persisted credential; signing in again is left
	// to an explicit SignIn
	token := func(ctx context.Context) (string, error) {
		c, err := s.provider.CheckSignInStatus(ctx)
		if err != nil {
			return "", fmt.Errorf("token: %w", err)
		}
		return c.Token, nil
	}
	if err := s.attach(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.signedIn = true
	s.mu.Unlock()
	return nil
}

func (s *Session) attach(token gp.TokenFunc) error {
	sr := s.view.SpatialReference()
	c, err := gp.New(s.logger, s.client, gp.Config{
		URL:          s.serviceURL(),
		ProcessSR:    sr,
		OutSR:        sr,
		PollInterval: s.cfg.PollInterval,
		Token:        token,
	})
	if err != nil {
		return fmt.Errorf("attach geoprocessor: %w", err)
	}
	s.orch.SetGeoprocessor(c)
	return nil
}

// Ready reports whether clicks will be dispatched
func (s *Session) Ready() bool { return s.orch.Attached() }

func (s *Session) Orchestrator() *Orchestrator { return s.orch }

func (s *Session) State() SessionState {
	s.mu.Lock()
	signedIn := s.signedIn
	s.mu.Unlock()
	return SessionState{
		Mode:       s.mode(),
		SignedIn:   signedIn,
		Ready:      s.Ready(),
		Processing: s.orch.Processing(),
		ServiceURL: s.serviceURL(),
		Panels:     s.view.Panels(),
	}
}
