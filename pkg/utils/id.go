package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenID returns a random 128-bit identifier as lowercase hex, with an
// optional prefix ("post" yields "post-..."). Used for server-assigned
// record keys.
func GenID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("rand unavailable: " + err.Error())
	}
	id := hex.EncodeToString(b)
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
