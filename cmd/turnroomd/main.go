package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okabelabs/turnroom/internal/config"
	"github.com/okabelabs/turnroom/internal/games/tictactoe"
	"github.com/okabelabs/turnroom/internal/gateway"
	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// knownGames maps catalog names to rules factories.
var knownGames = map[string]gateway.RulesFactory{
	"tictactoe": func() match.Rules { return tictactoe.NewRules() },
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	publisher, cleanup := setupPublisher(cfg.NATS)
	defer cleanup()

	service := gateway.NewService(
		clockwork.NewRealClock(),
		publisher,
		gateway.DefaultConnectionConfig(),
		cfg.Match.Settings(),
	)
	for _, name := range cfg.Games.Enabled {
		factory, ok := knownGames[name]
		if !ok {
			log.Fatal().Str("game", name).Msg("unknown game in configuration")
		}
		service.Registry().RegisterGame(name, factory)
		log.Info().Str("game", name).Msg("game registered")
	}

	server := setupServer(cfg.Server, service)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go service.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop the gateway service and let rooms dispose.
	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("turnroomd shutdown complete")
}

// setupPublisher builds the event backend: JetStream when enabled, zerolog
// otherwise.
func setupPublisher(cfg config.NATSConfig) (publish.Publisher, func()) {
	if !cfg.Enabled {
		return publish.NewLogPublisher(), func() {}
	}

	natsPublisher, err := publish.NewNATSPublisher(context.Background(), publish.NATSConfig{
		URL:           cfg.URL,
		StreamName:    cfg.StreamName,
		SubjectPrefix: cfg.SubjectPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.URL).Msg("failed to connect to NATS")
	}
	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("NATS publisher connected")
	return natsPublisher, natsPublisher.Close
}
