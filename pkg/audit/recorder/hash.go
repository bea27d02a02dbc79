package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"mercator-hq/deepguard/pkg/audit"
)

// HashContent computes the hex-encoded SHA-256 of content. Returns an empty
// string for empty content.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashPayload hashes the canonical JSON encoding of a payload.
func HashPayload(p *audit.Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return HashContent(data), nil
}

// Verify reports whether the stored payload hash matches the payload.
func Verify(e *audit.Event) (bool, error) {
	h, err := HashPayload(&e.Payload)
	if err != nil {
		return false, err
	}
	return h == e.PayloadHash, nil
}
