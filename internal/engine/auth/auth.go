package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/domain"
	"tasktrail/internal/engine"
	"tasktrail/internal/repo"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUserOwnsTasks      = errors.New("user still owns tasks")
	ErrTokensDisabled     = errors.New("token issuing not configured")
)

// RequireAdmin fails with ForbiddenError unless the actor is an admin.
func RequireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return ForbiddenError{Permission: "admin"}
	}
	return nil
}

// Service manages users and their credentials.
type Service struct {
	Repo   repo.Repo
	Hasher PasswordHasher
	Tokens *TokenManager
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

func validateRegister(in RegisterInput) (RegisterInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, &engine.ValidationError{Field: "name", Message: "is required"}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil || addr.Name != "" {
		return in, &engine.ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	in.Email = strings.ToLower(addr.Address)
	if len(in.Password) < MinPasswordLength {
		return in, &engine.ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if _, ok := domain.ParseRole(string(in.Role)); !ok {
		return in, &engine.ValidationError{Field: "role", Message: "must be user or admin"}
	}
	return in, nil
}

// Register creates a user and returns it with a fresh token.
func (s Service) Register(ctx context.Context, in RegisterInput) (domain.User, string, error) {
	u, err := s.CreateUser(ctx, in)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := s.issue(u)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

func (s Service) issue(u domain.User) (string, error) {
	if s.Tokens == nil {
		return "", ErrTokensDisabled
	}
	token, err := s.Tokens.Issue(u)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// CreateUser stores a user without issuing a token.
func (s Service) CreateUser(ctx context.Context, in RegisterInput) (domain.User, error) {
	in, err := validateRegister(in)
	if err != nil {
		return domain.User{}, err
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.Repo.InsertUser(ctx, nil, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s Service) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	u, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, "", err
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := s.issue(u)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

func (s Service) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.Repo.ListUsers(ctx)
}

// DeleteUser removes a user that owns no tasks. Tasks are never removed
// outside the task engine, so owners must delete their tasks first.
func (s Service) DeleteUser(ctx context.Context, actor domain.Actor, id string) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := s.Repo.CountTasksByOwner(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrUserOwnsTasks
	}
	if err := s.Repo.DeleteUser(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureAdmin creates the bootstrap admin unless a user with that email exists.
func (s Service) EnsureAdmin(ctx context.Context, name, email, password string) (domain.User, bool, error) {
	existing, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, false, err
	}
	if name == "" {
		name = "Administrator"
	}
	u, err := s.CreateUser(ctx, RegisterInput{Name: name, Email: email, Password: password, Role: domain.RoleAdmin})
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}
