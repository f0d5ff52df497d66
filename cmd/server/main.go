// Command server runs the dicee game server: room and lobby actors behind a
// WebSocket transport, with SQLite persistence and JWKS-verified identities.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dicee/internal/app"
	"dicee/internal/auth"
	"dicee/internal/bot"
	"dicee/internal/config"
	"dicee/internal/ports/ws"
	"dicee/internal/store"
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		slog.Error("parse environment", "error", err)
		os.Exit(1)
	}

	logger := newLogger(env.LogLevel)
	slog.SetDefault(logger)

	rules, err := config.LoadRules(env.RulesPath)
	if err != nil {
		logger.Error("load rules", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(env.DBPath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	verifier := auth.NewJWKSVerifier(env.JWKSURL, env.JWTIssuer)
	svc := app.NewService(nil)
	if rules.SkipPolicy == "greedy" {
		svc = svc.WithPolicy(bot.GreedyPolicy{})
	}
	server := ws.NewServer(rules, verifier, svc, st, logger)

	httpServer := &http.Server{
		Addr:              env.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", env.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	server.Shutdown()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
