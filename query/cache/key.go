package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// KeyPrefix starts every result cache key
const KeyPrefix = "query"

// Key derives the cache key of a rendered statement and its bindings. The key
// has the form "query:<table>:<sha256>" so that results of one table can be
// invalidated with the pattern "query:<table>:*". Raw statements use "raw" as
// the table segment.
//
// Bindings are serialized with sorted map keys, so the key depends only on the
// final SQL text and values, never on the order they were bound in.
func Key(table, sql string, bindings map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(bindings); err != nil {
		return "", fmt.Errorf("encode bindings: %w", err)
	}

	hasher := sha256.New()
	hasher.Write([]byte(sql))
	hasher.Write([]byte{0})
	hasher.Write(buf.Bytes())

	return fmt.Sprintf("%s:%s:%s", KeyPrefix, tableSegment(table), hex.EncodeToString(hasher.Sum(nil))), nil
}

// TablePattern returns the invalidation pattern matching every key of table
func TablePattern(table string) string {
	return fmt.Sprintf("%s:%s:*", KeyPrefix, tableSegment(table))
}

func tableSegment(table string) string {
	if table == "" {
		return "raw"
	}
	return table
}
