package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/gpmock"
)

type Config struct {
	Addr         string
	LogLevel     string
	FinalStatus  string
	PendingPolls int
	RequireToken string
}

// Configurations for gpmock
func LoadConfig() Config {
	var cfg Config
	cfg.Addr = getEnv("GPMOCK_ADDR", ":8091")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.FinalStatus = getEnv("GPMOCK_FINAL_STATUS", "esriJobSucceeded")
	cfg.PendingPolls = getEnvInt("GPMOCK_PENDING_POLLS", 2)
	cfg.RequireToken = getEnv("GPMOCK_REQUIRE_TOKEN", "")

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flag.StringVar(&cfg.FinalStatus, "final-status", cfg.FinalStatus, "terminal job status reported after polling")
	flag.IntVar(&cfg.PendingPolls, "pending-polls", cfg.PendingPolls, "status polls answered as executing")
	flag.StringVar(&cfg.RequireToken, "require-token", cfg.RequireToken, "reject calls without this token")
	flag.Parse()
	return cfg
}

func (c Config) Behavior() gpmock.Behavior {
	return gpmock.Behavior{
		FinalStatus:  model.JobStatus(c.FinalStatus),
		PendingPolls: c.PendingPolls,
		RequireToken: c.RequireToken,
	}
}

func getEnv(k, def string) string {
	value := os.Getenv(k)
	if value != "" {
		return value
	}
	return def
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}
