package auth

import (
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

type PasswordHasher struct {
	Cost int
}

func (h PasswordHasher) cost() int {
	if h.Cost < bcrypt.MinCost {
		return DefaultBcryptCost
	}
	return h.Cost
}

func (h PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
