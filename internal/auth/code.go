package auth

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	minVerificationCode = 100000
	maxVerificationCode = 999999
)

// CodeGenerator produces human-enterable verification codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// NumericCodeGenerator draws six-digit codes uniformly from [100000, 999999].
type NumericCodeGenerator struct{}

func (NumericCodeGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxVerificationCode-minVerificationCode+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+minVerificationCode, 10), nil
}
