package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	UnlockCodeLength = 6
	UnlockCodeExpiry = 24 * time.Hour
)

// GenerateUnlockCode produces a 6-digit one-time code for the freemium gate
func GenerateUnlockCode() (string, error) {
	const digits = "0123456789"
	code := make([]byte, UnlockCodeLength)

	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[num.Int64()]
	}

	return string(code), nil
}

// GenerateDiscountCode produces the signup incentive code, e.g. CREATOR10-8F3A21BC
func GenerateDiscountCode() (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATOR10-%s", strings.ToUpper(hex.EncodeToString(suffix))), nil
}

// GenerateSecureToken returns 32 bytes of hex-encoded randomness
func GenerateSecureToken() (string, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	return hex.EncodeToString(token), nil
}
