package bundler

import (
	"crypto/sha1" //nolint:gosec // content fingerprint only, selectable for compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// DefaultHashLength is the number of hex characters kept from the digest (64 bits)
const DefaultHashLength = 16

// ErrUnknownAlgorithm is returned by HashWith for unsupported digests
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Hash returns the truncated SHA-256 content hash of b.
//
// Callers must pass the exact bytes that will be served, after any rewriting.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:DefaultHashLength]
}

// HashWith hashes b with the named algorithm and keeps length hex characters.
// A length <= 0 or beyond the digest size keeps the full digest.
func HashWith(b []byte, algorithm string, length int) (string, error) {
	var h hash.Hash
	switch strings.ToUpper(strings.ReplaceAll(algorithm, "_", "-")) {
	case "", "SHA-256", "SHA256":
		h = sha256.New()
	case "SHA-1", "SHA1":
		h = sha1.New() //nolint:gosec
	case "SHA-384", "SHA384":
		h = sha512.New384()
	case "SHA-512", "SHA512":
		h = sha512.New()
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}

	_, _ = h.Write(b)
	digest := hex.EncodeToString(h.Sum(nil))
	if length <= 0 || length >= len(digest) {
		return digest, nil
	}
	return digest[:length], nil
}
