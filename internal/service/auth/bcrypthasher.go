package auth

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password hasher contract
// Check must return false for malformed hashes instead of failing
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password string, hashedPassword string) bool
}

// Bcrypt password hasher
// Password is sha256 pre-hashed, so bcrypt 72 bytes input limit does not truncate long passwords
type BcryptHasher struct {
	Cost int // bcrypt.DefaultCost if zero
}

var DefaultHasher PasswordHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (h BcryptHasher) Check(password string, hashedPassword string) bool {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}
