package dal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/upll/internal/rdb"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// keyPrefix namespaces every UPLL hash in the Redis database.
const keyPrefix = "UPLL"

// RedisStore keeps each row as one Redis hash named
// UPLL|<DATATYPE>|<TABLE>|<KEYTYPE>|<identity>, using the kv field codec.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on the given Redis address and database.
func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// Connect tests the connection
func (s *RedisStore) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func tablePrefix(dt kv.DataType, kt kv.KeyType, tbl kv.TableType) string {
	return strings.Join([]string{keyPrefix, dt.String(), tbl.String(), kt.String()}, kv.KeySep) + kv.KeySep
}

func rowKey(dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) string {
	return tablePrefix(dt, row.KeyType, tbl) + row.IdentityString(tbl)
}

// loadTable reads every row of a table whose storage key matches pattern,
// keyed by identity.
func (s *RedisStore) loadTable(ctx context.Context, dt kv.DataType, kt kv.KeyType, tbl kv.TableType, pattern string) (map[string]*kv.ConfigKeyVal, error) {
	prefix := tablePrefix(dt, kt, tbl)
	keys, err := rdb.ScanKeys(ctx, s.client, prefix+pattern, 100)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", prefix, err)
	}
	rows := make(map[string]*kv.ConfigKeyVal, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, prefix)
		parts := strings.Split(id, kv.KeySep)
		if len(parts) < kt.KeyLen() {
			util.Warnf("dal: skipping malformed key %s", key)
			continue
		}
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		row, err := kv.DecodeFields(kt, parts[:kt.KeyLen()], fields)
		if err != nil {
			return nil, err
		}
		rows[id] = row
	}
	return rows, nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal, opt ReadOpt) (*kv.ConfigKeyVal, error) {
	pattern := "*"
	if len(match.Key) > 0 {
		pattern = match.KeyString() + "*"
	}
	rows, err := s.loadTable(ctx, dt, match.KeyType, tbl, pattern)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for id, r := range rows {
		if matches(r, match, opt) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, util.ErrNoSuchInstance
	}
	sort.Strings(ids)

	var head *kv.ConfigKeyVal
	for i := len(ids) - 1; i >= 0; i-- {
		r := rows[ids[i]]
		r.Next = head
		head = r
	}
	return head, nil
}

func (s *RedisStore) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	key := rowKey(dt, tbl, row)
	ok, err := s.exists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking %s: %w", key, err)
	}
	if ok {
		return fmt.Errorf("%s: %w", key, util.ErrInstanceExists)
	}
	return s.write(ctx, key, row)
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	key := rowKey(dt, tbl, row)
	ok, err := s.exists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, util.ErrNoSuchInstance)
	}
	return s.write(ctx, key, row)
}

// write replaces the hash in one MULTI/EXEC so readers never observe a
// partially written row.
func (s *RedisStore) write(ctx context.Context, key string, row *kv.ConfigKeyVal) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, rdb.HashArgs(kv.EncodeFields(row))...)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	key := rowKey(dt, tbl, row)
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", key, util.ErrNoSuchInstance)
	}
	return nil
}

// Diff implements Store.
func (s *RedisStore) Diff(ctx context.Context, spec DiffSpec) (Cursor, error) {
	ref, err := s.loadTable(ctx, spec.Ref, spec.KeyType, spec.Table, "*")
	if err != nil {
		return nil, err
	}
	other, err := s.loadTable(ctx, spec.Other, spec.KeyType, spec.Table, "*")
	if err != nil {
		return nil, err
	}
	records, err := computeDiff(spec, ref, other)
	if err != nil {
		return nil, err
	}
	return newSliceCursor(records), nil
}

// CopyTable implements Store.
func (s *RedisStore) CopyTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, from, to kv.DataType) error {
	src, err := s.loadTable(ctx, from, kt, tbl, "*")
	if err != nil {
		return err
	}
	stale, err := rdb.ScanKeys(ctx, s.client, tablePrefix(to, kt, tbl)+"*", 100)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", tablePrefix(to, kt, tbl), err)
	}

	pipe := s.client.TxPipeline()
	for _, key := range stale {
		pipe.Del(ctx, key)
	}
	for _, row := range src {
		pipe.HSet(ctx, rowKey(to, tbl, row), rdb.HashArgs(kv.EncodeFields(row))...)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("copying %s %s %s to %s: %w", kt, tbl, from, to, err)
	}
	return nil
}

// ClearTable implements Store.
func (s *RedisStore) ClearTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, dt kv.DataType, ctrlr string) error {
	rows, err := s.loadTable(ctx, dt, kt, tbl, "*")
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	n := 0
	for _, row := range rows {
		if ctrlr != "" && row.CtrlrDom.Ctrlr != ctrlr {
			continue
		}
		pipe.Del(ctx, rowKey(dt, tbl, row))
		n++
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("clearing %s %s %s: %w", dt, kt, tbl, err)
	}
	return nil
}
