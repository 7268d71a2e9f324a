package auth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher is the default PasswordHasher; zero Cost means bcrypt.DefaultCost.
// bcrypt reads only 72 bytes, so passwords go through sha256 first.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(digest(password), cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), digest(password))
}

func digest(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}
