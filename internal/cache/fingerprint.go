// ABOUTME: Deterministic cache keys derived from an operation and its parameters
// ABOUTME: Hashes the canonical JSON encoding with SHA-256

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint returns "namespace:" followed by the hex SHA-256 of the JSON
// encoding of parts. Map keys are encoded in sorted order, so equal inputs
// always produce equal keys.
func Fingerprint(namespace string, parts ...any) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", namespace, err)
	}
	sum := sha256.Sum256(data)
	return namespace + ":" + hex.EncodeToString(sum[:]), nil
}
