package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefaultPrefix namespaces response cache keys.
const DefaultPrefix = "lookup:llm:"

// Key builds the content-addressed cache key for one (resolved prompt,
// reference data) pair. Any differing byte yields a different key.
func Key(prefix, resolvedPrompt, referenceData string) string {
	h := sha256.New()
	h.Write([]byte(resolvedPrompt))
	h.Write([]byte(referenceData))
	return prefix + hex.EncodeToString(h.Sum(nil))
}
