package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/engine"
	"tasktrail/internal/migrate"
	"tasktrail/internal/repo"
)

func newService(t *testing.T) Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tokens, err := NewTokenManager(TokenConfig{Secret: "test-secret", TTL: time.Hour, Issuer: "tasktrail"})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return Service{
		Repo:   repo.Repo{DB: conn},
		Hasher: PasswordHasher{Cost: bcrypt.MinCost},
		Tokens: tokens,
	}
}

func TestPasswordHasher(t *testing.T) {
	h := PasswordHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret!" {
		t.Fatalf("password stored in clear")
	}
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "s3cret!", true},
		{"wrong", "s3cret?", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Verify(tt.password, hash); got != tt.want {
				t.Fatalf("Verify(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
	if (PasswordHasher{}).cost() != DefaultBcryptCost {
		t.Fatalf("zero cost should fall back to default")
	}
}

func TestTokenManager(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewTokenManager(TokenConfig{Secret: "k", TTL: time.Hour, Issuer: "tasktrail"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Now = func() time.Time { return now }
	token, err := m.Issue(domain.User{ID: "u1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	actor, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != "u1" || !actor.IsAdmin() {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	other, _ := NewTokenManager(TokenConfig{Secret: "other", Issuer: "tasktrail"})
	otherIssuer, _ := NewTokenManager(TokenConfig{Secret: "k", Issuer: "someone"})
	expired, _ := NewTokenManager(TokenConfig{Secret: "k", Issuer: "tasktrail"})
	expired.Now = func() time.Time { return now.Add(2 * time.Hour) }
	tests := []struct {
		name  string
		m     *TokenManager
		token string
	}{
		{"wrong secret", other, token},
		{"wrong issuer", otherIssuer, token},
		{"expired", expired, token},
		{"garbage", m, "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.m.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := NewTokenManager(TokenConfig{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, token, err := s.Register(ctx, RegisterInput{Name: "Ada", Email: " Ada@Example.com ", Password: "hunter22"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "ada@example.com" || u.Role != domain.RoleUser || token == "" {
		t.Fatalf("unexpected registration: %+v %q", u, token)
	}
	if _, _, err := s.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "hunter22"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate register: %v", err)
	}

	logged, token, err := s.Login(ctx, "ADA@example.com", "hunter22")
	if err != nil || logged.ID != u.ID || token == "" {
		t.Fatalf("login: %+v %v", logged, err)
	}
	actor, err := s.Tokens.Verify(token)
	if err != nil || actor.UserID != u.ID {
		t.Fatalf("login token: %+v %v", actor, err)
	}
	if _, _, err := s.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := s.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing name", RegisterInput{Email: "a@b.c", Password: "123456"}, "name"},
		{"bad email", RegisterInput{Name: "a", Email: "nope", Password: "123456"}, "email"},
		{"short password", RegisterInput{Name: "a", Email: "a@b.c", Password: "123"}, "password"},
		{"bad role", RegisterInput{Name: "a", Email: "a@b.c", Password: "123456", Role: "root"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateUser(context.Background(), tt.in)
			var verr *engine.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestAdminOperations(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	admin, created, err := s.EnsureAdmin(ctx, "", "root@example.com", "rootroot")
	if err != nil || !created || admin.Role != domain.RoleAdmin {
		t.Fatalf("ensure admin: %+v %v %v", admin, created, err)
	}
	again, created, err := s.EnsureAdmin(ctx, "", "root@example.com", "rootroot")
	if err != nil || created || again.ID != admin.ID {
		t.Fatalf("ensure admin twice: %+v %v %v", again, created, err)
	}
	user, err := s.CreateUser(ctx, RegisterInput{Name: "u", Email: "u@example.com", Password: "password"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	userActor := domain.Actor{UserID: user.ID, Role: user.Role}
	adminActor := domain.Actor{UserID: admin.ID, Role: admin.Role}

	var fe ForbiddenError
	if _, err := s.ListUsers(ctx, userActor); !errors.As(err, &fe) {
		t.Fatalf("non-admin list: %v", err)
	}
	users, err := s.ListUsers(ctx, adminActor)
	if err != nil || len(users) != 2 {
		t.Fatalf("admin list: %d %v", len(users), err)
	}

	e := engine.New(s.Repo.DB)
	task, err := e.CreateTask(ctx, userActor, engine.TaskCreateOptions{Title: "keep me"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s.DeleteUser(ctx, adminActor, user.ID); !errors.Is(err, ErrUserOwnsTasks) {
		t.Fatalf("delete owner: %v", err)
	}
	if err := e.DeleteTask(ctx, userActor, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := s.DeleteUser(ctx, userActor, user.ID); !errors.As(err, &fe) {
		t.Fatalf("non-admin delete: %v", err)
	}
	if err := s.DeleteUser(ctx, adminActor, user.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := s.DeleteUser(ctx, adminActor, user.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestTokensDisabled(t *testing.T) {
	s := newService(t)
	s.Tokens = nil
	if _, _, err := s.Register(context.Background(), RegisterInput{Name: "a", Email: "a@example.com", Password: "123456"}); !errors.Is(err, ErrTokensDisabled) {
		t.Fatalf("expected ErrTokensDisabled, got %v", err)
	}
}
