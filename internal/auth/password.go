package auth

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the work factor new password hashes are created with.
const DefaultBcryptCost = 10

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{Cost: cost}
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
