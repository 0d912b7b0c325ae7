package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey derives the cache key for a request from its source and ordered
// request-defining fields. Identical logical requests always collide; any
// single differing field yields a different digest. Positions are preserved,
// so an empty geography and an empty start date cannot swap into the same
// key. Fields must not contain newlines; request normalization upstream
// guarantees that for provider inputs.
func CacheKey(source string, fields ...string) string {
	var sb strings.Builder
	sb.WriteString(source)
	for _, field := range fields {
		sb.WriteByte('\n')
		sb.WriteString(field)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
