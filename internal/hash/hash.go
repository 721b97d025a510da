package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is the hex sha256 of b. Archived transcripts record it so a download can be verified.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Token is the lookup digest stored in place of a bearer token. Tokens carry enough
// randomness that an unsalted digest is safe to index.
func Token(token string) string {
	return Digest([]byte(token))
}
