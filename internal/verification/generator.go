package verification

import (
	"crypto/rand"
	"fmt"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns a random string of exactly length characters, each
// drawn uniformly from the 62-symbol alphanumeric alphabet. Rejection
// sampling (62*4 = 248) keeps the draw free of modulo bias. A failure to
// read secure randomness is unrecoverable and panics.
func GenerateToken(length int) string {
	const limit = byte(len(tokenAlphabet) * 4)

	out := make([]byte, 0, length)
	buf := make([]byte, 32)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("verification: secure randomness unavailable: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out)
}
