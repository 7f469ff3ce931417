package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tasktrail/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenManager issues and verifies HS256 bearer tokens. The subject is the user id.
type TokenManager struct {
	cfg TokenConfig
	Now func() time.Time
}

func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &TokenManager{cfg: cfg}, nil
}

func (m *TokenManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *TokenManager) Issue(u domain.User) (string, error) {
	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
		},
		Role: string(u.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(m.cfg.Secret))
}

func (m *TokenManager) Verify(token string) (domain.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	c := &claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(m.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{UserID: c.Subject, Role: role}, nil
}
