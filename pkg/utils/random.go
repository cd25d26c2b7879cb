package utils

import "math/rand"

// RandomBytes produces n statistically random bytes.
// Used for frame mask keys and handshake keys where
// cryptographic strength is not required.
func RandomBytes(n int) []byte {
	bytes := make([]byte, n)
	for i := range bytes {
		bytes[i] = byte(rand.Intn(256))
	}
	return bytes
}
