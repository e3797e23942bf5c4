package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// SimDriver is an in-process controller: it keeps each controller's
// configuration in memory with the same acceptance rules as RedisDriver.
// Controllers of type "sim" use it; tests script its results.
type SimDriver struct {
	mu       sync.Mutex
	config   map[string]map[string]*kv.ConfigKeyVal
	forced   map[string]ResultCode
	rejected map[string]bool
	requests []Request

	// BeforeSend, when set, runs at the start of every Send outside the
	// driver lock.
	BeforeSend func(req *Request)
}

// NewSimDriver returns a driver whose controllers hold no configuration.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		config:   make(map[string]map[string]*kv.ConfigKeyVal),
		forced:   make(map[string]ResultCode),
		rejected: make(map[string]bool),
	}
}

func simKey(kt kv.KeyType, domain string, row *kv.ConfigKeyVal) string {
	return TableName(kt) + kv.KeySep + EntryKey(domain, row)
}

// SetResult makes every later request to ctrlr answer with code without
// being applied. ResultSuccess restores normal processing.
func (s *SimDriver) SetResult(ctrlr string, code ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == ResultSuccess {
		delete(s.forced, ctrlr)
		return
	}
	s.forced[ctrlr] = code
}

// Reject makes ctrlr refuse any request touching the row with the given
// key, in controller naming.
func (s *SimDriver) Reject(ctrlr string, kt kv.KeyType, key ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[ctrlr+"/"+kt.String()+"/"+strings.Join(key, kv.KeySep)] = true
}

// Seed stores a row directly on a controller.
func (s *SimDriver) Seed(ctrlr, domain string, row *kv.ConfigKeyVal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(ctrlr)[simKey(row.KeyType, domain, row)] = row.Dup()
}

// Requests returns a copy of every request received so far.
func (s *SimDriver) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Entries returns the sorted entry keys held by ctrlr.
func (s *SimDriver) Entries(ctrlr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.config[ctrlr]))
	for k := range s.config[ctrlr] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *SimDriver) table(ctrlr string) map[string]*kv.ConfigKeyVal {
	t, ok := s.config[ctrlr]
	if !ok {
		t = make(map[string]*kv.ConfigKeyVal)
		s.config[ctrlr] = t
	}
	return t
}

// Send implements Driver.
func (s *SimDriver) Send(ctx context.Context, req *Request) (*Reply, error) {
	if req.Rows == nil {
		return nil, fmt.Errorf("request to %s without rows: %w", req.Ctrlr, util.ErrGeneric)
	}
	if s.BeforeSend != nil {
		s.BeforeSend(req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logged := *req
	logged.Rows = req.Rows.DupChain()
	s.requests = append(s.requests, logged)

	if code, ok := s.forced[req.Ctrlr]; ok {
		reply := &Reply{Result: code}
		if code.Hard() {
			reply.ErrRow = req.Rows.Dup()
		}
		return reply, nil
	}

	t := s.table(req.Ctrlr)
	for row := req.Rows; row != nil; row = row.Next {
		if s.rejected[req.Ctrlr+"/"+row.KeyType.String()+"/"+row.KeyString()] {
			return &Reply{Result: ResultRejected, ErrRow: row.Dup()}, nil
		}
		_, exists := t[simKey(row.KeyType, req.Domain, row)]
		if (req.Op == kv.OpCreate && exists) || (req.Op != kv.OpCreate && !exists) {
			return &Reply{Result: ResultRejected, ErrRow: row.Dup()}, nil
		}
	}
	for row := req.Rows; row != nil; row = row.Next {
		key := simKey(row.KeyType, req.Domain, row)
		switch req.Op {
		case kv.OpCreate, kv.OpUpdate:
			stored := kv.NewConfigKeyVal(row.KeyType, row.Key...)
			for name, v := range row.Main().Attrs {
				stored.SetAttr(name, v)
			}
			t[key] = stored
		case kv.OpDelete:
			delete(t, key)
		default:
			return nil, fmt.Errorf("unsupported operation %s: %w", req.Op, util.ErrGeneric)
		}
	}
	return &Reply{Result: ResultSuccess}, nil
}

// ReadConfig implements Driver.
func (s *SimDriver) ReadConfig(ctx context.Context, ctrlr string, kt kv.KeyType) (*kv.ConfigKeyVal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forced[ctrlr] == ResultCtrlrDisconnected {
		return nil, fmt.Errorf("%s: %w", ctrlr, util.ErrCtrlrDisconnected)
	}
	prefix := TableName(kt) + kv.KeySep
	keys := make([]string, 0)
	for k := range s.config[ctrlr] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, util.ErrNoSuchInstance
	}
	sort.Strings(keys)

	var head, tail *kv.ConfigKeyVal
	for _, k := range keys {
		domain := strings.SplitN(strings.TrimPrefix(k, prefix), kv.KeySep, 2)[0]
		row := s.config[ctrlr][k].Dup()
		row.CtrlrDom = kv.CtrlrDom{Ctrlr: ctrlr, Domain: domain}
		if head == nil {
			head = row
		} else {
			tail.Next = row
		}
		tail = row
	}
	return head, nil
}

// Ping implements Driver.
func (s *SimDriver) Ping(ctx context.Context, ctrlr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced[ctrlr] == ResultCtrlrDisconnected {
		return fmt.Errorf("%s: %w", ctrlr, util.ErrCtrlrDisconnected)
	}
	return nil
}
