package dal

import (
	"fmt"
	"sort"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// computeDiff classifies the rows of one table in two snapshots. Both maps
// are keyed by row identity and are not modified.
func computeDiff(spec DiffSpec, ref, other map[string]*kv.ConfigKeyVal) ([]DiffRecord, error) {
	var ids []string
	switch spec.Op {
	case kv.OpCreate:
		for id, r := range ref {
			if _, ok := other[id]; !ok && ownedBy(r, spec.Ctrlr) {
				ids = append(ids, id)
			}
		}
	case kv.OpDelete:
		for id, r := range other {
			if _, ok := ref[id]; !ok && ownedBy(r, spec.Ctrlr) {
				ids = append(ids, id)
			}
		}
	case kv.OpUpdate:
		for id, r := range ref {
			o, ok := other[id]
			if !ok || !ownedBy(r, spec.Ctrlr) {
				continue
			}
			if updated(spec, r, o) {
				ids = append(ids, id)
			}
		}
	default:
		return nil, fmt.Errorf("diff of %s %s: unsupported operation %s: %w",
			spec.KeyType, spec.Table, spec.Op, util.ErrGeneric)
	}
	if len(ids) == 0 {
		return nil, util.ErrNoSuchInstance
	}
	sort.Strings(ids)

	records := make([]DiffRecord, 0, len(ids))
	for _, id := range ids {
		rec := DiffRecord{Op: spec.Op}
		switch spec.Op {
		case kv.OpCreate:
			rec.Curr = ref[id].Dup()
		case kv.OpDelete:
			rec.Curr = other[id].Dup()
		case kv.OpUpdate:
			rec.Curr = ref[id].Dup()
			rec.Prev = other[id].Dup()
		}
		records = append(records, rec)
	}
	return records, nil
}

func ownedBy(r *kv.ConfigKeyVal, ctrlr string) bool {
	return ctrlr == "" || r.CtrlrDom.Ctrlr == ctrlr
}

func updated(spec DiffSpec, ref, other *kv.ConfigKeyVal) bool {
	if !kv.SameConfig(ref, other) {
		return true
	}
	if spec.CompareStatus && !kv.SameStatus(ref, other) {
		return true
	}
	return spec.WithAuditFlag && ref.Flags&kv.FlagAuditDirty != 0
}

// sliceCursor walks precomputed records.
type sliceCursor struct {
	records []DiffRecord
	pos     int
	resets  int
	closed  bool
}

func newSliceCursor(records []DiffRecord) *sliceCursor {
	return &sliceCursor{records: records, pos: -1}
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.records) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Record() DiffRecord {
	r := c.records[c.pos]
	return DiffRecord{Op: r.Op, Curr: r.Curr.Dup(), Prev: r.Prev.Dup()}
}

func (c *sliceCursor) Err() error {
	return nil
}

func (c *sliceCursor) Reset() error {
	if c.closed {
		return fmt.Errorf("reset of closed cursor: %w", util.ErrGeneric)
	}
	if c.resets > 0 {
		return fmt.Errorf("cursor already restarted: %w", util.ErrGeneric)
	}
	c.resets++
	c.pos = -1
	return nil
}

func (c *sliceCursor) Close() error {
	c.closed = true
	c.records = nil
	return nil
}
