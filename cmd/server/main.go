package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"babelchat/internal/api"
	"babelchat/internal/config"
	"babelchat/internal/history"
	"babelchat/internal/presence"
	"babelchat/internal/server"
	"babelchat/internal/stats"
	"babelchat/internal/translate"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	translateURL   string
	snapshotPath   string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address (overrides BABELCHAT_ADDR)")
	flag.StringVar(&translateURL, "translate-url", "", "translation service base URL (overrides BABELCHAT_TRANSLATE_URL)")
	flag.StringVar(&snapshotPath, "snapshot", "", "message snapshot path (overrides BABELCHAT_SNAPSHOT_PATH)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[babelchat] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if translateURL != "" {
		cfg.TranslateURL = translateURL
	}
	if snapshotPath != "" {
		cfg.SnapshotPath = snapshotPath
	}
	cfg.AllowedOrigins = allowedOrigins

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := presence.NewRegistry()

	store := history.NewStore(cfg.SnapshotPath, cfg.Retention, logger)
	if err := store.Load(); err != nil {
		logger.Println("load history:", err)
	}
	store.Run()

	translator := translate.New(cfg.TranslateURL, cfg.TranslateTimeout, logger, statsUpdater)

	chatServer, err := server.NewChatServer(logger, registry, store, translator, statsUpdater, cfg.Retention, cfg.SweepInterval)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewChatApp(mux, logger, chatServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	store.Stop()

	logger.Println("shutdown complete")
}
