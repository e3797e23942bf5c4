package momgr

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// TxUpdateController implements ObjectTypeManager. It queues one driver
// request per row that differs between CANDIDATE and RUNNING for the
// phase's operation, over every dispatch table. It does not wait for the
// requests; a hard error already recorded by the pool stops the loop with
// util.ErrTxAborted.
func (m *MoMgr) TxUpdateController(ctx context.Context, p *TxUpdateParams) error {
	op := p.Phase.Op()
	if op == kv.OpInvalid {
		return nil
	}
	if p.Util == nil {
		return fmt.Errorf("%s %s: no dispatch pool: %w", m.schema.kt, p.Phase, util.ErrGeneric)
	}
	if p.Affected == nil {
		p.Affected = kv.CtrlrSet{}
	}
	log := m.log(p.Phase.String())

	for _, tbl := range m.schema.dispatch {
		if op == kv.OpUpdate && m.schema.noUpdate[tbl] {
			continue
		}
		cur, err := m.store.Diff(ctx, dal.DiffSpec{
			KeyType: m.schema.kt,
			Table:   tbl,
			Ref:     kv.Candidate,
			Other:   kv.Running,
			Op:      op,
		})
		if util.IsNoSuchInstance(err) {
			log.Debugf("no %s changes in %s", op, tbl)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s diff of %s: %w", m.schema.kt, op, tbl, err)
		}

		n := 0
		for cur.Next() {
			if err := m.dispatchRecord(ctx, p, tbl, cur.Record()); err != nil {
				cur.Close()
				return err
			}
			n++
			if p.Util.GetErrCount() > 0 {
				cur.Close()
				log.Warnf("aborting after %d rows of %s: driver error", n, tbl)
				return fmt.Errorf("%s %s: %w", m.schema.kt, p.Phase, util.ErrTxAborted)
			}
		}
		if err := cur.Err(); err != nil {
			cur.Close()
			return err
		}
		cur.Close()
		log.Debugf("processed %d %s rows of %s", n, op, tbl)
	}
	return nil
}

// dispatchRecord builds and queues the driver request for one diff record.
func (m *MoMgr) dispatchRecord(ctx context.Context, p *TxUpdateParams, tbl kv.TableType, rec dal.DiffRecord) error {
	op := rec.Op
	row := rec.Curr
	cd, err := row.RequireCtrlrDom()
	if err != nil {
		return err
	}

	// Rows that leave the configuration are looked up where they still
	// exist.
	dt := kv.Candidate
	if op == kv.OpDelete {
		dt = kv.Running
	}

	drvRow := row.Dup()
	leaf := false
	if tbl == kv.TblCtrlr && op != kv.OpUpdate {
		main, err := m.readOne(ctx, dt, kv.TblMain, row.Key, kv.CtrlrDom{})
		if err != nil {
			return fmt.Errorf("%s %s: main row for %s: %w", m.schema.kt, op, row.KeyString(), err)
		}
		drvRow = main
		drvRow.CtrlrDom = cd
		if leaf, err = m.hasConverted(ctx, dt, row.Key, cd); err != nil {
			return err
		}
	}

	drvRow, err = m.GetRenamedControllerKey(ctx, drvRow, dt, cd)
	if err != nil {
		return err
	}
	notSend, err := m.AdaptValToDriver(ctx, drvRow, rec.Prev, op, dt, tbl, cd.Ctrlr)
	if err != nil {
		return err
	}
	if notSend {
		return nil
	}

	if err := p.Util.EnqueueRequest(ctx, p.Session, kv.Candidate, op, tbl, row, drvRow, driver.DomainTag(cd.Domain, leaf)); err != nil {
		return fmt.Errorf("%s %s %s: %w", m.schema.kt, op, row.KeyString(), err)
	}
	p.Affected.Add(cd.Ctrlr)
	return nil
}
