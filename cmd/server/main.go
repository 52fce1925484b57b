package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/kita83/nok/infrastructure/httpapi"
	"github.com/kita83/nok/internal"
	"github.com/kita83/nok/repositories"
	"github.com/kita83/nok/runtime"
	"github.com/kita83/nok/runtime/workers"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close in
// particular) executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Realtime core
	store := repositories.NewStore(db, logger, config.HistoryLimit)
	registry := runtime.NewRegistry(logger)
	rooms := runtime.NewRoomIndex()
	presence := runtime.NewPresence()
	dispatcher := runtime.NewDispatcher(logger, store, registry, rooms, presence)

	// 4. HTTP surface
	handler := httpapi.NewHandler(logger, store)
	wsHandler := httpapi.NewWSHandler(logger, store, dispatcher)
	router := httpapi.NewRouter(handler, wsHandler)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := httpapi.NewServer(logger, addr, router)
	gc := workers.NewBadgerGC(logger, db, config.GCInterval)

	// 5. Supervised execution until SIGINT/SIGTERM
	sup := workers.NewSupervisor(logger)
	sup.Add(server, gc).Run(ctx)

	logger.Info("Server stopped")
	return exitOK, nil
}
