package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// ContentHashSize is the digest length in bytes.
const ContentHashSize = 32

// HashContent computes the BLAKE2b-256 digest of data.
// It is the idempotency key for index writes, so it must stay stable
// for the lifetime of a deployment.
func HashContent(data []byte) ContentHash {
	h, _ := blake2b.New(ContentHashSize, nil)
	h.Write(data)
	return ContentHash(hex.EncodeToString(h.Sum(nil)))
}

// HashText is HashContent for strings.
func HashText(text string) ContentHash {
	return HashContent([]byte(text))
}
