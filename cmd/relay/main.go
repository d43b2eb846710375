package main

import (
	"care-chat/auth"
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/infrastructure/http/server"
	"care-chat/infrastructure/storage"
	"care-chat/internal"
	"care-chat/runtime"
	"care-chat/runtime/workers"
	"care-chat/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives.
// Returning instead of exiting lets every defer (store close, badger close) run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	policy, err := runtime.ParseOverflowPolicy(config.OverflowPolicy)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Message store
	store, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Routing
	registry := runtime.NewRegistry()
	verifier := auth.NewVerifier(config.JWTSecret)
	rules := domain.DraftRules{MaxContentLength: config.MaxContentLength, StrictReceiverType: config.StrictReceiverType}
	chatService := services.NewChatService(store, registry, rules, logger)
	historyService := services.NewHistoryService(store, logger)
	router := runtime.NewRouter(registry, chatService, verifier, logger, runtime.RouterConfig{
		AuthTimeout: config.AuthTimeout,
		QueueSize:   config.ConnectionBufferSize,
		Policy:      policy,
	})

	// 4. HTTP surface
	httpServer := server.NewServer(router, chatService, historyService, verifier, registry, logger, server.Options{
		AllowedOrigins: config.Origins(),
		ReadLimit:      config.ReadLimit,
	})
	httpWorker := workers.NewHTTPServerWorker(logger,
		&http.Server{Addr: config.Address(), Handler: httpServer.Handler()},
		config.ShutdownTimeout,
		func() { registry.CloseAll(contract.CloseGoingAway, "server shutting down") })

	// 5. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(httpWorker, workers.NewProcessMonitorWorker(logger, registry, config.MetricInterval, nil))
	if config.GRPCHealthPort > 0 {
		sup.Add(workers.NewGRPCHealthWorker(logger, fmt.Sprintf("%s:%d", config.Host, config.GRPCHealthPort)))
	}

	logger.Info("Relay starting", "address", config.Address(), "store", config.StoreDriver,
		"overflow_policy", policy, "allowed_origins", config.Origins())
	sup.Run(ctx)
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.IMessageStore, func(), error) {
	if config.StoreDriver == internal.StoreMongo {
		store, err := storage.NewMongoMessageRepository(ctx, config.MongoURI, config.MongoDatabase, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo opening failed: %w", err)
		}
		return store, func() {
			logger.Info("Closing MongoDB...")
			_ = store.Close()
		}, nil
	}

	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("database opening failed: %w", err)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, ThreadMapper)
	}
	store, err := storage.NewMessageRepository(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// ThreadMapper renders a stored message for the debug inspector.
func ThreadMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, storage.ThreadPrefix) {
		return row
	}
	m, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Type = string(m.ReceiverType)
	row.Detail = fmt.Sprintf("%s -> %s: %s", m.Sender, m.Receiver, m.Content)
	return row
}
