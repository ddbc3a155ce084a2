package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/config"
)

// set via build-time ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootOptions override the environment configuration
type rootOptions struct {
	logLevel string
	authMode string
	gpURL    string
	proxyURL string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "watershed",
		Short: "Delineate watersheds for selected map points through a geoprocessing service",
		Long: `watershed runs a map session that submits a selected point to a hydrology
geoprocessing service and renders the returned watershed polygon and snapped
point. Configuration comes from the environment; flags override it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate(`{{printf "%s version %s" .Name .Version}}
commit: ` + commit + `
built: ` + buildDate + "\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.authMode, "auth-mode", "", "auth mode: proxy or oauth")
	pf.StringVar(&opts.gpURL, "gp-url", "", "watershed geoprocessing task URL")
	pf.StringVar(&opts.proxyURL, "proxy-url", "", "credential-injecting proxy for the task (proxy mode)")

	cmd.AddCommand(newServeCommand(opts), newDelineateCommand(opts))
	return cmd
}

// load reads the environment and applies flag overrides
func (o *rootOptions) load() config.Config {
	cfg := config.FromEnv()
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	switch strings.ToLower(o.authMode) {
	case config.AuthModeProxy, config.AuthModeOAuth:
		cfg.Auth.Mode = strings.ToLower(o.authMode)
	}
	if o.gpURL != "" {
		cfg.GP.URL = o.gpURL
	}
	if o.proxyURL != "" {
		cfg.GP.ProxyURL = o.proxyURL
	}
	return cfg
}
