package dal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

type tableID struct {
	dt  kv.DataType
	kt  kv.KeyType
	tbl kv.TableType
}

// MemStore keeps every snapshot in process memory. Used by tests and by
// upllctl when no Redis store is configured.
type MemStore struct {
	mu     sync.RWMutex
	tables map[tableID]map[string]*kv.ConfigKeyVal
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[tableID]map[string]*kv.ConfigKeyVal)}
}

func (s *MemStore) table(dt kv.DataType, kt kv.KeyType, tbl kv.TableType) map[string]*kv.ConfigKeyVal {
	id := tableID{dt: dt, kt: kt, tbl: tbl}
	t, ok := s.tables[id]
	if !ok {
		t = make(map[string]*kv.ConfigKeyVal)
		s.tables[id] = t
	}
	return t
}

// Read implements Store.
func (s *MemStore) Read(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal, opt ReadOpt) (*kv.ConfigKeyVal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[tableID{dt: dt, kt: match.KeyType, tbl: tbl}]
	ids := make([]string, 0, len(t))
	for id, r := range t {
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
		r := t[ids[i]].Dup()
		r.Next = head
		head = r
	}
	return head, nil
}

func matches(r, match *kv.ConfigKeyVal, opt ReadOpt) bool {
	if !r.HasKeyPrefix(match.Key) {
		return false
	}
	if !opt.MatchCtrlr {
		return true
	}
	if r.CtrlrDom.Ctrlr != match.CtrlrDom.Ctrlr {
		return false
	}
	return match.CtrlrDom.Domain == "" || r.CtrlrDom.Domain == match.CtrlrDom.Domain
}

// Create implements Store.
func (s *MemStore) Create(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(dt, row.KeyType, tbl)
	id := row.IdentityString(tbl)
	if _, ok := t[id]; ok {
		return fmt.Errorf("%s %s %s: %w", dt, tbl, id, util.ErrInstanceExists)
	}
	t[id] = standalone(row)
	return nil
}

// Update implements Store.
func (s *MemStore) Update(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(dt, row.KeyType, tbl)
	id := row.IdentityString(tbl)
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%s %s %s: %w", dt, tbl, id, util.ErrNoSuchInstance)
	}
	t[id] = standalone(row)
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(dt, row.KeyType, tbl)
	id := row.IdentityString(tbl)
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%s %s %s: %w", dt, tbl, id, util.ErrNoSuchInstance)
	}
	delete(t, id)
	return nil
}

// Diff implements Store.
func (s *MemStore) Diff(ctx context.Context, spec DiffSpec) (Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref := s.tables[tableID{dt: spec.Ref, kt: spec.KeyType, tbl: spec.Table}]
	other := s.tables[tableID{dt: spec.Other, kt: spec.KeyType, tbl: spec.Table}]
	records, err := computeDiff(spec, ref, other)
	if err != nil {
		return nil, err
	}
	return newSliceCursor(records), nil
}

// CopyTable implements Store.
func (s *MemStore) CopyTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, from, to kv.DataType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.tables[tableID{dt: from, kt: kt, tbl: tbl}]
	dst := make(map[string]*kv.ConfigKeyVal, len(src))
	for id, r := range src {
		dst[id] = r.Dup()
	}
	s.tables[tableID{dt: to, kt: kt, tbl: tbl}] = dst
	return nil
}

// ClearTable implements Store.
func (s *MemStore) ClearTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, dt kv.DataType, ctrlr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := tableID{dt: dt, kt: kt, tbl: tbl}
	if ctrlr == "" {
		delete(s.tables, id)
		return nil
	}
	for rid, r := range s.tables[id] {
		if r.CtrlrDom.Ctrlr == ctrlr {
			delete(s.tables[id], rid)
		}
	}
	return nil
}

// standalone copies one row without its sibling chain.
func standalone(row *kv.ConfigKeyVal) *kv.ConfigKeyVal {
	r := row.Dup()
	r.DropVal(kv.ValOld)
	return r
}
