package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/config"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/httpclient"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
	"github.com/mohammed-shakir/watershed-gateway/internal/events"
	"github.com/mohammed-shakir/watershed-gateway/internal/identity"
	"github.com/mohammed-shakir/watershed-gateway/internal/identity/redisstore"
	"github.com/mohammed-shakir/watershed-gateway/internal/logger"
	h3mapper "github.com/mohammed-shakir/watershed-gateway/internal/mapper/h3"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
	"github.com/mohammed-shakir/watershed-gateway/internal/watershed"
)

// app is one wired session with everything it owns
type app struct {
	cfg     config.Config
	log     *slog.Logger
	view    *view.View
	orch    *watershed.Orchestrator
	session *watershed.Session
	closers []io.Closer
}

func newLogger(cfg config.Config, service string, out io.Writer) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		SampleN: cfg.LogSampleN,
		Mode:    cfg.Auth.Mode,
		Service: service,
	}, out)
	return logger.NewSlog(&zl)
}

// newApp wires the session. base bounds every job the session starts.
func newApp(ctx context.Context, base context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	observability.SetMode(cfg.Auth.Mode)

	a := &app{cfg: cfg, log: log}
	sr := model.SpatialReference{WKID: cfg.View.WKID}
	a.view = view.New(view.Config{
		SpatialReference: sr,
		Center:           model.Point{X: cfg.View.CenterX, Y: cfg.View.CenterY, SpatialReference: model.SpatialReference{WKID: model.WKIDWGS84}},
		Zoom:             cfg.View.Zoom,
	})

	var sink events.Sink = events.Nop{}
	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(config.SplitCSV(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.QueueSize, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub)
		sink = pub
	}

	a.orch = watershed.New(base, a.view, watershed.Options{
		Logger: log.With("component", "orchestrator"),
		Events: sink,
		Mapper: h3mapper.New(),
		H3Res:  cfg.H3Res,
		Mode:   cfg.Auth.Mode,
	})

	provider, err := a.provider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.session = watershed.NewSession(watershed.SessionConfig{
		ServiceURL:   cfg.GP.URL,
		PortalURL:    cfg.Auth.PortalURL,
		ProxyURL:     cfg.GP.ProxyURL,
		PollInterval: cfg.GP.PollInterval,
	}, provider, a.orch, a.view, httpclient.NewOutbound(cfg.GP.HTTPTimeout), log.With("component", "session"))

	if err := a.session.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return a, nil
}

func (a *app) provider(ctx context.Context) (identity.Provider, error) {
	if a.cfg.Auth.Mode != config.AuthModeOAuth {
		return identity.NewProxy(a.cfg.ServiceURL()), nil
	}

	var store identity.Store = identity.NewMemoryStore(a.cfg.Auth.CredentialCache)
	if a.cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, a.cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs)
		store = identity.NewTieredStore(store, rs, a.cfg.Auth.CredentialTTL)
	}

	return identity.NewOAuth(identity.OAuthConfig{
		PortalURL:    a.cfg.Auth.PortalURL,
		ClientID:     a.cfg.Auth.ClientID,
		ClientSecret: a.cfg.Auth.ClientSecret,
		MaxTTL:       a.cfg.Auth.CredentialTTL,
		HTTPClient:   httpclient.NewOutbound(a.cfg.GP.HTTPTimeout),
	}, store, a.log.With("component", "identity"))
}

// Readiness reports whether clicks are dispatched
func (a *app) Readiness() (bool, string) { return a.session.Ready(), a.cfg.Auth.Mode }

// Close waits for outstanding jobs, then releases publishers and stores
func (a *app) Close() error {
	if a.orch != nil {
		a.orch.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
