package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewSecret generates a destination signing secret: 32 random bytes, hex
// encoded. It is shown to the tenant once, on create or rotate.
func NewSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "whsec_" + hex.EncodeToString(b)
}
