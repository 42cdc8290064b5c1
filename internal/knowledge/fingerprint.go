package knowledge

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the hex-encoded BLAKE2b-256 hash of a document.
func Fingerprint(document []byte) string {
	sum := blake2b.Sum256(document)
	return hex.EncodeToString(sum[:])
}
