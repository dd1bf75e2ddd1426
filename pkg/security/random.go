package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeCharset is the alphabet used for referral codes and transfer references.
const CodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns a crypto-random string of length drawn from charset.
func RandomCode(length int, charset string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if charset == "" {
		return "", fmt.Errorf("charset cannot be empty")
	}

	alphabet := []rune(charset)
	max := big.NewInt(int64(len(alphabet)))
	out := make([]rune, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
