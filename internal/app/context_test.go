package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"tasktrail/internal/config"
	"tasktrail/internal/engine/auth"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Workspace = t.TempDir()
	cfg.Auth.BcryptCost = 4
	return cfg
}

func TestOpenSeedsBootstrapAdmin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "secret"
	cfg.Bootstrap.AdminEmail = "root@example.com"
	cfg.Bootstrap.AdminPassword = "rootpass"
	var logs bytes.Buffer
	ctx := context.Background()

	a, err := Open(ctx, cfg, NewLogger(&logs, "info"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if a.Auth.Tokens == nil {
		t.Fatalf("tokens should be configured")
	}
	if !strings.Contains(logs.String(), "bootstrap admin created") {
		t.Fatalf("missing bootstrap log: %s", logs.String())
	}
	a.Close()

	// Reopening finds the existing admin.
	logs.Reset()
	a, err = Open(ctx, cfg, NewLogger(&logs, "info"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()
	if strings.Contains(logs.String(), "bootstrap admin created") {
		t.Fatalf("admin created twice")
	}
	users, err := a.Engine.Repo.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].Role != "admin" {
		t.Fatalf("users: %+v %v", users, err)
	}
}

func TestOpenWithoutSecretDisablesTokens(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Auth.Tokens != nil {
		t.Fatalf("tokens should be disabled")
	}
	if _, _, err := a.Auth.Login(context.Background(), "x@example.com", "whatever"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("login: %v", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
