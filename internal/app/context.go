package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tasktrail/internal/config"
	"tasktrail/internal/db"
	"tasktrail/internal/engine"
	"tasktrail/internal/engine/auth"
	"tasktrail/internal/migrate"
)

// App bundles the opened store with the services built on it.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Auth   auth.Service
	Logger *slog.Logger
}

// NewLogger builds a text logger at the named level.
func NewLogger(w io.Writer, level string) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Open opens and migrates the database, then seeds the bootstrap admin when one is configured.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: cfg.Database.Workspace, BusyTimeoutMS: cfg.Database.BusyTimeoutMS})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("database ready", slog.String("path", db.Path(cfg.Database.Workspace)), slog.Int("schema_version", version))

	ttl, err := cfg.TokenTTL()
	if err != nil {
		conn.Close()
		return nil, err
	}
	// Commands that never issue tokens run without a secret.
	var tokens *auth.TokenManager
	if strings.TrimSpace(cfg.Auth.JWTSecret) != "" {
		tokens, err = auth.NewTokenManager(auth.TokenConfig{Secret: cfg.Auth.JWTSecret, TTL: ttl, Issuer: cfg.Auth.Issuer})
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	e := engine.New(conn)
	a := &App{
		Config: cfg,
		DB:     conn,
		Engine: e,
		Auth: auth.Service{
			Repo:   e.Repo,
			Hasher: auth.PasswordHasher{Cost: cfg.Auth.BcryptCost},
			Tokens: tokens,
		},
		Logger: logger,
	}
	if cfg.Bootstrap.AdminEmail != "" {
		u, created, err := a.Auth.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", slog.String("user_id", u.ID), slog.String("email", u.Email))
		}
	}
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
