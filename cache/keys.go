package cache

import "strings"

const keyDelimiter = ":"

// EncodeKey derives the physical storage key for a logical cache key.
// Non-empty parts are joined as "[prefix:]tenant:<tenantID>:<logicalKey>".
// The encoding is deterministic and injective for inputs that differ in any
// component, which is what keeps tenants from colliding on identical logical
// keys.
func EncodeKey(logicalKey, tenantID, prefix string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if tenantID != "" {
		parts = append(parts, "tenant"+keyDelimiter+tenantID)
	}
	parts = append(parts, logicalKey)
	return strings.Join(parts, keyDelimiter)
}

// EncodeTagKey derives the physical key of a tag index set. Tag indices are
// tenant-scoped so that invalidating a tag never touches another tenant's
// entries.
func EncodeTagKey(tag, tenantID, prefix string) string {
	return EncodeKey("tag"+keyDelimiter+tag, tenantID, prefix)
}
