package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// FieldsHash computes a deterministic hash over an entity's field values,
// independent of map iteration order. No other package calls it; the async
// land engine does not use it to detect field changes.
func FieldsHash(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, []byte(fmt.Sprintf("%s=%v;", k, fields[k]))...)
	}

	hash := sha256.Sum256(buf)
	return hex.EncodeToString(hash[:16])
}

// BuildConfigKey builds the cache key for a hot-reloadable config table
// snapshot at a given version.
func BuildConfigKey(table string, version int64) string {
	return fmt.Sprintf("gamedata:%s:%d", table, version)
}

// QuickHash returns the full SHA-256 hex digest of data.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash returns a truncated (16 hex character) SHA-256 digest of data,
// suitable for short cache keys where full collision resistance isn't
// required.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
