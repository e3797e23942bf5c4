// Package rdb holds Redis helpers shared by the UPLL store and the Redis
// controller driver.
package rdb

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// NullField is the SONiC placeholder field written for entries that carry
// no attributes, so the hash key still exists.
const NullField = "NULL"

// ScanKeys iterates Redis keys matching the given pattern using cursor-based
// SCAN instead of the blocking O(N) KEYS command.
func ScanKeys(ctx context.Context, client redis.Cmdable, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// HashArgs flattens fields for HSET. An empty map yields the NULL sentinel.
func HashArgs(fields map[string]string) []interface{} {
	if len(fields) == 0 {
		return []interface{}{NullField, NullField}
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
