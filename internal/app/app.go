// Package app wires the storage, chat log, routing and transport layers
// together and owns the server lifecycle.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/chatlog"
	"github.com/talkwire/talkwire-server/internal/chatlog/memory"
	chatredis "github.com/talkwire/talkwire-server/internal/chatlog/redis"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/service/messaging"
	"github.com/talkwire/talkwire-server/internal/store"
	"github.com/talkwire/talkwire-server/internal/store/sqlite"
	transporthttp "github.com/talkwire/talkwire-server/internal/transport/http"
)

// App wires together storage, messaging and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	chatlogCloser   func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	var (
		messages      chatlog.Log
		unread        chatlog.UnreadCounters
		chatlogCloser func() error
	)
	if cfg.RedisAddr != "" {
		rs, err := chatredis.New(chatredis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Retention: cfg.MessageRetention,
		}, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init chat log: %w", err)
		}
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("redis chat log initialized")
		messages, unread, chatlogCloser = rs, rs, rs.Close
	} else {
		ms := memory.New(cfg.MessageRetention)
		logger.Warn().Msg("no redis address configured, using in-memory chat log")
		messages, unread = ms, ms
	}

	router := core.NewRouter()
	svc := messaging.NewService(messages, unread, router, st, logger)
	server := transporthttp.NewServer(cfg, authService, st, svc, router, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		chatlogCloser:   chatlogCloser,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and chat log clients.
func (a *App) cleanup() {
	if a.chatlogCloser != nil {
		if err := a.chatlogCloser(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close chat log")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
