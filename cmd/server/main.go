package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/discord"
	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/engine"
	"github.com/globle-leaderboard/internal/handler"
	"github.com/globle-leaderboard/internal/kafka"
	"github.com/globle-leaderboard/internal/ledger"
	"github.com/globle-leaderboard/internal/messages"
	"github.com/globle-leaderboard/internal/outbound"
	"github.com/globle-leaderboard/internal/parser"
	"github.com/globle-leaderboard/internal/scheduler"
	"github.com/globle-leaderboard/internal/timezone"
	"github.com/globle-leaderboard/internal/websocket"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.Log.Level)
	}

	loc, err := cfg.Game.Location()
	if err != nil {
		logger.Error("invalid reference timezone", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	backend, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.close()

	clock := clockwork.NewRealClock()
	catalog := messages.Catalog{
		Game:        cfg.Game.Name,
		URL:         cfg.Game.URL,
		Prefix:      cfg.Discord.CommandPrefix,
		Timezone:    loc.String(),
		MorningHour: cfg.Game.Morning(),
		EveningHour: cfg.Game.Evening(),
	}

	scoreLedger := ledger.New(backend.docs, backend.locker, clock, loc, logger)
	directory := timezone.NewDirectory(backend.docs, backend.locker, logger)

	gameEngine := engine.New(
		parser.New(cfg.Game.Keyword),
		scoreLedger,
		directory,
		nil,
		catalog,
		clock,
		engine.Options{ChannelID: cfg.Discord.ChannelID},
		logger,
	)

	// Initialize WebSocket hub
	var wsHub *websocket.Hub
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(gameEngine, cfg.Discord.CommandPrefix, logger)
		wsHub.SetReplies(wsHub.StandingsPublisher(gameEngine))
		go wsHub.Run()
		logger.Info("WebSocket hub initialized")
	}

	// Outbound delivery
	var chatSink outbound.Publisher = outbound.NewLogSink(logger)
	if cfg.Discord.WebhookURL != "" {
		chatSink = discord.NewWebhookSender(discord.SenderConfig{
			URL:     cfg.Discord.WebhookURL,
			Timeout: cfg.Discord.Timeout,
			Logger:  logger,
		})
		logger.Info("Discord webhook delivery enabled")
	}

	broadcastSinks := []outbound.Publisher{chatSink}
	replySinks := []outbound.Publisher{chatSink}
	if wsHub != nil {
		broadcastSinks = append(broadcastSinks, wsHub)
		replySinks = append(replySinks, wsHub.StandingsPublisher(gameEngine))
	}
	broadcast := outbound.NewFanout(logger, broadcastSinks...)
	replies := outbound.NewFanout(logger, replySinks...)

	// Initialize reminder scheduler
	reminders := scheduler.New(
		scoreLedger,
		directory,
		broadcast,
		catalog,
		clock,
		loc,
		scheduler.Config{
			MorningHour: cfg.Game.Morning(),
			EveningHour: cfg.Game.Evening(),
			Window:      cfg.Game.ReminderWindow,
			Cooldown:    cfg.Game.TickCooldown,
		},
		logger,
	)
	gameEngine.SetTicker(reminders)

	if err := reminders.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer for chat events bridged from other gateways
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, cfg.Discord.CommandPrefix, gameEngine, replies, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	if cfg.Discord.AnnounceStartup {
		if err := broadcast.Publish(ctx, domain.NewIntent(catalog.Startup(), clock.Now())); err != nil {
			logger.Warn("failed to announce startup", "error", err)
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(gameEngine, wsHub, cfg.Discord.CommandPrefix, replies, backend.checks, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"storage", cfg.Storage.Backend,
			"game", cfg.Game.Name,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new events arrive
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop scheduler
	if err := reminders.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}

	// Stop WebSocket hub
	if wsHub != nil {
		wsHub.Stop()
	}

	logger.Info("server stopped")
}
