package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows the
// encoding to change without colliding with older fingerprints.
const (
	DomainRun  = "dbgconform/run/v1"
	DomainStep = "dbgconform/step/v1"
)

// Digest hashes data under a domain prefix: SHA256(domain || 0x00 || data).
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint canonically encodes v and digests it under domain.
func Fingerprint(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Digest(domain, data), nil
}
