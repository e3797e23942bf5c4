package momgr

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/txutil"
	"github.com/newtron-network/upll/pkg/util"
)

var copyOps = []kv.Operation{kv.OpDelete, kv.OpCreate, kv.OpUpdate}

// TxCopyCandidateToRunning implements ObjectTypeManager. The main table is
// copied first, then the per-controller tables; statuses come from the
// per-row driver results of the commit, and main rows of key types with a
// controller table are re-consolidated last. With no differences left it
// does nothing.
func (m *MoMgr) TxCopyCandidateToRunning(ctx context.Context, p *CopyParams) error {
	touched := map[string][]string{}
	log := m.log("copy")

	for _, op := range copyOps {
		err := m.forEachDiff(ctx, kv.TblMain, op, func(rec dal.DiffRecord) error {
			touched[rec.Curr.KeyString()] = rec.Curr.Key
			return m.copyMainRecord(ctx, p, rec)
		})
		if err != nil {
			return err
		}
	}

	for _, tbl := range []kv.TableType{kv.TblCtrlr, kv.TblConvert, kv.TblRename} {
		if !m.schema.has(tbl) {
			continue
		}
		for _, op := range copyOps {
			err := m.forEachDiff(ctx, tbl, op, func(rec dal.DiffRecord) error {
				if tbl == kv.TblCtrlr {
					touched[rec.Curr.KeyString()] = rec.Curr.Key
				}
				return m.copyCtrlrRecord(ctx, p, tbl, rec)
			})
			if err != nil {
				return err
			}
		}
	}

	for _, key := range touched {
		if err := m.consolidateMain(ctx, kv.Running, key); err != nil {
			return err
		}
	}
	if len(touched) > 0 {
		log.Infof("copied %d %s instances to running", len(touched), m.schema.kt)
	}
	return nil
}

// forEachDiff runs fn over the CANDIDATE/RUNNING diff of one table. An
// empty diff is not an error.
func (m *MoMgr) forEachDiff(ctx context.Context, tbl kv.TableType, op kv.Operation, fn func(dal.DiffRecord) error) error {
	cur, err := m.store.Diff(ctx, dal.DiffSpec{
		KeyType: m.schema.kt,
		Table:   tbl,
		Ref:     kv.Candidate,
		Other:   kv.Running,
		Op:      op,
	})
	if util.IsNoSuchInstance(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %s diff of %s: %w", m.schema.kt, op, tbl, err)
	}
	defer cur.Close()
	for cur.Next() {
		if err := fn(cur.Record()); err != nil {
			return err
		}
	}
	return cur.Err()
}

// applyResult sets the status and audit flag of the row of table tbl from
// its own driver result. A row absent from the results was not sent: a new
// row is NOT_APPLIED and a changed row keeps the status and flags of prev.
func (m *MoMgr) applyResult(row, prev *kv.ConfigKeyVal, tbl kv.TableType, p *CopyParams) {
	ctrlr := row.CtrlrDom.Ctrlr
	id := txutil.RowID(tbl, row)
	cs, sent := p.Rows.Status(id)
	if !sent {
		if prev == nil {
			m.UpdateConfigStatus(row, ctrlr, kv.CsNotApplied)
			return
		}
		m.UpdateConfigStatus(row, ctrlr, prev.Main().Cs)
		row.Flags = prev.Flags
		return
	}
	m.UpdateConfigStatus(row, ctrlr, cs)
	if p.Rows.Disconnected(id) {
		row.Flags |= kv.FlagAuditDirty
	} else {
		row.Flags &^= kv.FlagAuditDirty
	}
}

func (m *MoMgr) copyMainRecord(ctx context.Context, p *CopyParams, rec dal.DiffRecord) error {
	row := rec.Curr
	switch rec.Op {
	case kv.OpDelete:
		return m.store.Delete(ctx, kv.Running, kv.TblMain, row)
	case kv.OpCreate:
		if m.schema.ctrlrInMain {
			m.applyResult(row, nil, kv.TblMain, p)
		} else {
			// Consolidated from the controller table afterwards.
			row.Main().SetAllStatus(kv.CsUnknown)
		}
		return m.store.Create(ctx, kv.Running, kv.TblMain, row)
	case kv.OpUpdate:
		if m.schema.ctrlrInMain {
			m.applyResult(row, rec.Prev, kv.TblMain, p)
		} else {
			row.Main().Cs = rec.Prev.Main().Cs
			row.Flags = rec.Prev.Flags
		}
		return m.store.Update(ctx, kv.Running, kv.TblMain, row)
	}
	return fmt.Errorf("%s: unexpected %s record: %w", m.schema.kt, rec.Op, util.ErrGeneric)
}

func (m *MoMgr) copyCtrlrRecord(ctx context.Context, p *CopyParams, tbl kv.TableType, rec dal.DiffRecord) error {
	row := rec.Curr
	switch rec.Op {
	case kv.OpDelete:
		return m.store.Delete(ctx, kv.Running, tbl, row)
	case kv.OpCreate:
		if tbl != kv.TblRename {
			m.applyResult(row, nil, tbl, p)
		}
		return m.store.Create(ctx, kv.Running, tbl, row)
	case kv.OpUpdate:
		if tbl != kv.TblRename {
			m.applyResult(row, rec.Prev, tbl, p)
		}
		return m.store.Update(ctx, kv.Running, tbl, row)
	}
	return fmt.Errorf("%s: unexpected %s record: %w", m.schema.kt, rec.Op, util.ErrGeneric)
}

// CopySnapshot implements ObjectTypeManager: every table of the key type
// in to is replaced by its content in from.
func (m *MoMgr) CopySnapshot(ctx context.Context, from, to kv.DataType) error {
	for _, tbl := range m.schema.tables {
		if err := m.store.CopyTable(ctx, m.schema.kt, tbl, from, to); err != nil {
			return fmt.Errorf("copying %s %s from %s to %s: %w", m.schema.kt, tbl, from, to, err)
		}
	}
	return nil
}
