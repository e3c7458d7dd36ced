package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// tokenKey identifies one distinct PII value of one entity type.
type tokenKey struct {
	entityType string
	value      string
}

// TokenCache assigns stable replacement tokens to PII values for the
// lifetime of one request. The first occurrence of a value allocates the
// next per-type counter; later occurrences of the identical value return
// the same token. The cache must be created fresh per request and never
// stored in process-wide scope: sharing counters across requests would leak
// one caller's token sequence into another caller's response.
type TokenCache struct {
	tokens   map[tokenKey]string
	counters map[string]int
}

// NewTokenCache creates an empty per-request cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens:   make(map[tokenKey]string),
		counters: make(map[string]int),
	}
}

// Token returns the deterministic counter token for the given value,
// formatted <ENTITY_TYPE_n>. Counters start at 1 per entity type.
func (c *TokenCache) Token(entityType, value string) string {
	key := tokenKey{entityType: entityType, value: value}
	if token, ok := c.tokens[key]; ok {
		return token
	}
	c.counters[entityType]++
	token := fmt.Sprintf("<%s_%d>", entityType, c.counters[entityType])
	c.tokens[key] = token
	return token
}

// HashToken returns a hash-based token, <ENTITY_TYPE_hhhhhhhh> with the
// first 8 hex chars of SHA-256 over the value. It is a pure function of its
// inputs, so determinism holds without consulting the counter state.
func (c *TokenCache) HashToken(entityType, value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("<%s_%s>", entityType, hex.EncodeToString(sum[:])[:8])
}

// Len reports the number of distinct values seen, for logging.
func (c *TokenCache) Len() int { return len(c.tokens) }
