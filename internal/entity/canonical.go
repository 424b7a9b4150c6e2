// Package entity implements the aggregator and resolver of §4.4:
// normalizing entity mentions into deduplicated candidates, filtering
// low-quality section entities, and resolving candidates against the
// canonical entity graph with a monotonic attribute merge.
package entity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CanonicalKey computes the deterministic canonical_key for
// (entityType, normalizedValue): sha256(lower(type+":"+value))[:32 hex].
// This must stay byte-identical across the aggregator, resolver,
// indexer, and query layer — any drift breaks joins between them.
func CanonicalKey(entityType, normalizedValue string) string {
	joined := strings.ToLower(entityType + ":" + normalizedValue)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:32]
}

// EntityID computes the LLM-facing entity_id for (entityType,
// normalizedValue): entity_type.lower() + "_" + sha1(lower(type+":"+value))[:16 hex].
func EntityID(entityType, normalizedValue string) string {
	joined := strings.ToLower(entityType + ":" + normalizedValue)
	sum := sha1.Sum([]byte(joined))
	return strings.ToLower(entityType) + "_" + hex.EncodeToString(sum[:])[:16]
}
