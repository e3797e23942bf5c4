package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/upll/internal/rdb"
	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// ConfigDB is the Redis database index controllers use for configuration
// when none is configured.
const ConfigDB = 4

// RedisDriver applies requests to a controller's CONFIG_DB. Each key type is
// one table; an entry is keyed "<TABLE>|<domain>|<key...>" and holds the
// row's attributes as hash fields.
type RedisDriver struct {
	cluster *ctrlr.ClusterContext

	mu    sync.Mutex
	conns map[string]*redisConn
}

type redisConn struct {
	client *redis.Client
	tunnel *SSHTunnel
}

func (c *redisConn) close() {
	c.client.Close()
	if c.tunnel != nil {
		c.tunnel.Close()
	}
}

// NewRedisDriver creates a driver for the controllers registered in cluster.
func NewRedisDriver(cluster *ctrlr.ClusterContext) *RedisDriver {
	return &RedisDriver{cluster: cluster, conns: make(map[string]*redisConn)}
}

// TableName returns the controller table holding rows of kt.
func TableName(kt kv.KeyType) string {
	return strings.ToUpper(kt.String())
}

// EntryKey returns the controller-side key of a row under a tagged domain.
func EntryKey(domain string, row *kv.ConfigKeyVal) string {
	return domain + kv.KeySep + row.KeyString()
}

func (d *RedisDriver) connect(ctx context.Context, name string) (*redis.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.conns[name]; ok {
		return c.client, nil
	}

	ctl, err := d.cluster.Controller(name)
	if err != nil {
		return nil, err
	}
	db := ctl.DB
	if db == 0 {
		db = ConfigDB
	}

	conn := &redisConn{}
	addr := ctl.Addr
	if ctl.SSHUser != "" {
		host := addr
		if i := strings.LastIndex(host, ":"); i > 0 {
			host = host[:i]
		}
		conn.tunnel, err = NewSSHTunnel(host, ctl.SSHUser, ctl.SSHPass, ctl.SSHPort, "127.0.0.1:6379")
		if err != nil {
			return nil, err
		}
		addr = conn.tunnel.LocalAddr()
	}
	conn.client = redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := conn.client.Ping(ctx).Err(); err != nil {
		conn.close()
		return nil, fmt.Errorf("connecting to controller %s at %s: %w", name, ctl.Addr, err)
	}
	d.conns[name] = conn
	return conn.client, nil
}

// drop forgets a broken connection so the next request reconnects.
func (d *RedisDriver) drop(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.conns[name]; ok {
		c.close()
		delete(d.conns, name)
	}
}

// Close closes every controller connection.
func (d *RedisDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, c := range d.conns {
		c.close()
		delete(d.conns, name)
	}
	return nil
}

// Ping implements Driver.
func (d *RedisDriver) Ping(ctx context.Context, name string) error {
	client, err := d.connect(ctx, name)
	if err == nil {
		err = client.Ping(ctx).Err()
	}
	if err != nil {
		d.drop(name)
		d.cluster.SetConnected(name, false)
		return fmt.Errorf("%s: %v: %w", name, err, util.ErrCtrlrDisconnected)
	}
	d.cluster.SetConnected(name, true)
	return nil
}

func (d *RedisDriver) disconnected(name string, err error) *Reply {
	util.WithController(name).Warnf("controller unreachable: %v", err)
	d.drop(name)
	d.cluster.SetConnected(name, false)
	return &Reply{Result: ResultCtrlrDisconnected}
}

// Send implements Driver. CREATE of an existing entry and UPDATE or DELETE
// of a missing one are rejected; all rows of one request are applied in a
// single MULTI/EXEC.
func (d *RedisDriver) Send(ctx context.Context, req *Request) (*Reply, error) {
	if req.Rows == nil {
		return nil, fmt.Errorf("request to %s without rows: %w", req.Ctrlr, util.ErrGeneric)
	}
	if _, err := d.cluster.Controller(req.Ctrlr); err != nil {
		return nil, err
	}
	client, err := d.connect(ctx, req.Ctrlr)
	if err != nil {
		return d.disconnected(req.Ctrlr, err), nil
	}

	log := util.WithController(req.Ctrlr)
	for row := req.Rows; row != nil; row = row.Next {
		key := TableName(row.KeyType) + kv.KeySep + EntryKey(req.Domain, row)
		n, err := client.Exists(ctx, key).Result()
		if err != nil {
			return d.disconnected(req.Ctrlr, err), nil
		}
		exists := n > 0
		if (req.Op == kv.OpCreate && exists) || (req.Op != kv.OpCreate && !exists) {
			log.Debugf("rejecting %s of %s (exists=%v)", req.Op, key, exists)
			return &Reply{Result: ResultRejected, ErrRow: row.Dup()}, nil
		}
	}

	pipe := client.TxPipeline()
	for row := req.Rows; row != nil; row = row.Next {
		key := TableName(row.KeyType) + kv.KeySep + EntryKey(req.Domain, row)
		switch req.Op {
		case kv.OpCreate, kv.OpUpdate:
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, rdb.HashArgs(row.Main().Attrs)...)
		case kv.OpDelete:
			pipe.Del(ctx, key)
		default:
			pipe.Discard()
			return nil, fmt.Errorf("unsupported operation %s: %w", req.Op, util.ErrGeneric)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return d.disconnected(req.Ctrlr, err), nil
	}

	log.Debugf("%s %s applied (%d rows, domain %s)", req.Op, req.Rows.KeyType, req.Rows.Len(), req.Domain)
	d.cluster.SetConnected(req.Ctrlr, true)
	return &Reply{Result: ResultSuccess}, nil
}

// ReadConfig implements Driver.
func (d *RedisDriver) ReadConfig(ctx context.Context, name string, kt kv.KeyType) (*kv.ConfigKeyVal, error) {
	client, err := d.connect(ctx, name)
	if err != nil {
		d.cluster.SetConnected(name, false)
		return nil, fmt.Errorf("%s: %v: %w", name, err, util.ErrCtrlrDisconnected)
	}

	prefix := TableName(kt) + kv.KeySep
	keys, err := rdb.ScanKeys(ctx, client, prefix+"*", 100)
	if err != nil {
		d.drop(name)
		return nil, fmt.Errorf("scanning %s on %s: %v: %w", prefix, name, err, util.ErrCtrlrDisconnected)
	}
	sort.Strings(keys)

	var head, tail *kv.ConfigKeyVal
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(key, prefix), kv.KeySep)
		if len(parts) != kt.KeyLen()+1 {
			util.WithController(name).Warnf("skipping malformed entry %s", key)
			continue
		}
		fields, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s on %s: %w", key, name, err)
		}
		row := kv.NewConfigKeyVal(kt, parts[1:]...)
		row.CtrlrDom = kv.CtrlrDom{Ctrlr: name, Domain: parts[0]}
		for f, v := range fields {
			if f != rdb.NullField {
				row.SetAttr(f, v)
			}
		}
		if head == nil {
			head = row
		} else {
			tail.Next = row
		}
		tail = row
	}
	if head == nil {
		return nil, util.ErrNoSuchInstance
	}
	return head, nil
}
