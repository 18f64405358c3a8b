package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// FingerprintKey is the BLAKE2b-256 digest of a content prefix. Two passages
// with equal keys are treated as duplicates.
type FingerprintKey [32]byte

// String returns the hex encoding of the key.
func (k FingerprintKey) String() string {
	return hex.EncodeToString(k[:])
}

// Prefix returns the first n Unicode code points of s. n <= 0 returns s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Fingerprint hashes the first prefixLen code points of content after
// CleanText, the same form the importer stores. Staged and stored copies of a
// passage therefore share a key. Empty content hashes the empty string, so all
// empty passages share one key.
func Fingerprint(content string, prefixLen int) FingerprintKey {
	var key FingerprintKey
	h, _ := blake2b.New(len(key), nil) // 32 bytes = 256 bits
	h.Write([]byte(Prefix(CleanText(content), prefixLen)))
	copy(key[:], h.Sum(nil))
	return key
}
