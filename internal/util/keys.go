package util

import (
	"crypto/sha256"
	"encoding/hex"

	json "github.com/goccy/go-json"
)

// VarsHash returns a short deterministic hash of query variables.
// Map keys are marshaled in sorted order, so equal maps hash equal.
func VarsHash(vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return "-", nil
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8]), nil
}
