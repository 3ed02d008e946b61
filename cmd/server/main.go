package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/nexus-relay/internal/server"
)

func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}
	return zerolog.New(output).With().Timestamp().Str("app", "nexus-relay").Logger()
}

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger := newLogger()

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	relay := server.NewRelay(cfg, logger)
	if err := relay.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start relay")
	}

	bridge := server.NewBridge(relay, cfg, logger)
	httpServer := server.CreateServer(cfg.HTTPAddr, bridge.Routes())
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("bridge listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("bridge server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("bridge shutdown error")
	}
	if err := relay.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("relay shutdown error")
	}
}
