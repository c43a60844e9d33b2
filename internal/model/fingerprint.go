package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deterministic idempotency key for a request.
// It hashes the normalized target (domain when a URL is present, otherwise
// the lower-cased description), the output kind, and the country so that
// repeat requests for the same logical ask collide.
func Fingerprint(target Target, kind OutputKind, country string) string {
	base := NormalizeDomain(target.URL, false)
	if base == "" {
		base = strings.ToLower(strings.TrimSpace(target.Description))
	}
	h := sha256.New()
	h.Write([]byte(base))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(country))))
	return hex.EncodeToString(h.Sum(nil))
}
