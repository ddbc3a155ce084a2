package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/health"
	middleware "github.com/mohammed-shakir/watershed-gateway/internal/core/middleware"
	"github.com/mohammed-shakir/watershed-gateway/internal/gpmock"
	"github.com/mohammed-shakir/watershed-gateway/internal/logger"
)

var Version = "dev"

func main() {
	cfg := LoadConfig()
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Service: "gpmock"}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting gpmock", "addr", cfg.Addr, "version", Version,
		"final_status", cfg.FinalStatus, "pending_polls", cfg.PendingPolls)

	mock := gpmock.New(cfg.Behavior())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Liveness())
	mux.Handle("/", mock)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.Recover(log)(middleware.Logging(log)(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", cfg.Addr, "task", "http://localhost"+cfg.Addr+gpmock.DefaultTaskPath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	shutdownSignalCh := make(chan os.Signal, 1)
	signal.Notify(shutdownSignalCh, syscall.SIGINT, syscall.SIGTERM)
	exit := 0
	select {
	case sig := <-shutdownSignalCh:
		log.Info("signal received, shutting down", "signal", sig.String())
	case err := <-serverErrCh:
		log.Error("server error", "err", err)
		exit = 1
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	_ = httpServer.Shutdown(shutdownCtx)
	cancelShutdown()
	log.Info("server stopped", "jobs_submitted", mock.Count("submitJob"))
	if exit != 0 {
		os.Exit(exit)
	}
}
