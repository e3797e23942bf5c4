package momgr

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// AuditUpdateController implements ObjectTypeManager. It brings one
// controller in line with RUNNING: rows only in RUNNING are created, rows
// only in the imported AUDIT copy are deleted, and rows in both that differ
// in configuration or status, or that carry the audit-dirty flag, are
// updated or have their status repaired. Requests are sent synchronously.
// A rejection outside DELETE marks the row INVALID and moves on; a
// rejection in DELETE or a disconnect ends the phase.
func (m *MoMgr) AuditUpdateController(ctx context.Context, p *AuditParams) error {
	op := p.Phase.Op()
	if op == kv.OpInvalid {
		return nil
	}
	if p.Driver == nil || p.Ctrlr == "" {
		return fmt.Errorf("%s audit %s: missing driver or controller: %w", m.schema.kt, p.Phase, util.ErrGeneric)
	}
	if p.Result == nil {
		p.Result = &AuditResult{}
	}
	log := m.log("audit-"+p.Phase.String()).WithField("controller", p.Ctrlr)

	for _, tbl := range m.schema.dispatch {
		if op == kv.OpUpdate && m.schema.noUpdate[tbl] {
			continue
		}
		spec := dal.DiffSpec{
			KeyType:       m.schema.kt,
			Table:         tbl,
			Ref:           kv.Running,
			Other:         kv.Audit,
			Op:            op,
			Ctrlr:         p.Ctrlr,
			CompareStatus: true,
			WithAuditFlag: true,
		}
		if op == kv.OpDelete && p.DeleteFilter == DeleteFilterAll {
			spec.Ctrlr = ""
		}
		cur, err := m.store.Diff(ctx, spec)
		if util.IsNoSuchInstance(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s audit %s diff of %s: %w", m.schema.kt, op, tbl, err)
		}

		for cur.Next() {
			if err := m.auditRecord(ctx, p, tbl, cur.Record()); err != nil {
				cur.Close()
				return err
			}
		}
		err = cur.Err()
		cur.Close()
		if err != nil {
			return err
		}
		log.Debugf("%s done: %s", tbl, p.Result.Affected)
	}
	return nil
}

// GetDiffRecord classifies an audit diff record for ctrlr. An UPDATE whose
// supported attributes agree with the controller only needs its status
// repaired, and not even that when RUNNING already shows it applied.
func (m *MoMgr) GetDiffRecord(rec dal.DiffRecord, ctrlr string) (CtrlrAffected, error) {
	if rec.Op != kv.OpUpdate {
		return CtrlrAffectedConfigDiff, nil
	}
	changelog, err := m.attrDelta(rec.Prev, rec.Curr, ctrlr)
	if err != nil {
		return CtrlrNotAffected, err
	}
	if len(changelog) > 0 {
		return CtrlrAffectedConfigDiff, nil
	}
	if rec.Curr.Main().Cs == kv.CsApplied && rec.Curr.Flags&kv.FlagAuditDirty == 0 {
		return CtrlrNotAffected, nil
	}
	return CtrlrAffectedOnlyCSDiff, nil
}

func (m *MoMgr) auditRecord(ctx context.Context, p *AuditParams, tbl kv.TableType, rec dal.DiffRecord) error {
	row := rec.Curr
	cd, err := row.RequireCtrlrDom()
	if err != nil {
		return err
	}
	log := m.log("audit").WithField("controller", cd.Ctrlr)

	affected, err := m.GetDiffRecord(rec, cd.Ctrlr)
	if err != nil {
		return err
	}
	switch affected {
	case CtrlrNotAffected:
		return nil
	case CtrlrAffectedOnlyCSDiff:
		log.Debugf("%s: status repair only", row.KeyString())
		if err := m.setRunningStatus(ctx, tbl, row, kv.CsApplied); err != nil {
			return err
		}
		p.Result.mark(affected)
		return nil
	}

	dt := kv.Running
	drvRow := row.Dup()
	leaf := false
	if tbl == kv.TblCtrlr && rec.Op == kv.OpCreate {
		main, err := m.readOne(ctx, dt, kv.TblMain, row.Key, kv.CtrlrDom{})
		if err != nil {
			return fmt.Errorf("%s audit: main row for %s: %w", m.schema.kt, row.KeyString(), err)
		}
		drvRow = main
		drvRow.CtrlrDom = cd
	}
	if tbl == kv.TblCtrlr {
		if leaf, err = m.hasConverted(ctx, dt, row.Key, cd); err != nil {
			return err
		}
	}
	drvRow, err = m.GetRenamedControllerKey(ctx, drvRow, dt, cd)
	if err != nil {
		return err
	}
	notSend, err := m.AdaptValToDriver(ctx, drvRow, rec.Prev, rec.Op, dt, tbl, cd.Ctrlr)
	if err != nil {
		return err
	}
	if notSend {
		return m.setRunningStatus(ctx, tbl, row, kv.CsApplied)
	}

	reply, err := p.Driver.Send(ctx, &driver.Request{
		Session:  p.Session,
		Op:       rec.Op,
		DataType: kv.Audit,
		Ctrlr:    cd.Ctrlr,
		Domain:   driver.DomainTag(cd.Domain, leaf),
		Rows:     drvRow,
	})
	if err != nil {
		return fmt.Errorf("%s audit %s %s: %w", m.schema.kt, rec.Op, row.KeyString(), err)
	}

	switch {
	case reply.Result == driver.ResultSuccess:
		p.Result.mark(CtrlrAffectedConfigDiff)
		if rec.Op == kv.OpDelete {
			return nil
		}
		return m.setRunningStatus(ctx, tbl, row, kv.CsApplied)

	case reply.Result == driver.ResultCtrlrDisconnected:
		log.Warnf("%s %s: controller disconnected during audit", rec.Op, row.KeyString())
		return fmt.Errorf("audit of %s: %w", cd.Ctrlr, util.ErrCtrlrDisconnected)

	case rec.Op == kv.OpDelete:
		log.Errorf("delete of %s rejected: %s", row.KeyString(), reply.Result)
		return util.NewDriverError(cd.Ctrlr, reply.Result.String(), row.KeyString())
	}

	errRow := reply.ErrRow
	if errRow == nil {
		errRow = drvRow
	}
	if errMgr, err := m.reg.get(errRow.KeyType); err == nil {
		if unc, err := errMgr.GetRenamedUncKey(ctx, errRow, dt, cd.Ctrlr); err == nil {
			errRow = unc
		}
	}
	log.Errorf("%s %s rejected: %s", rec.Op, errRow.KeyString(), reply.Result)
	p.Result.Failed = append(p.Result.Failed, errRow.Dup())
	p.Result.mark(CtrlrAffectedConfigDiff)
	return m.setRunningStatus(ctx, tbl, row, kv.CsInvalid)
}

// setRunningStatus stores the audit outcome of one RUNNING row and, for a
// controller-table row, re-consolidates its main row.
func (m *MoMgr) setRunningStatus(ctx context.Context, tbl kv.TableType, row *kv.ConfigKeyVal, cs kv.ConfigStatus) error {
	m.UpdateAuditConfigStatus(row, cs)
	if err := m.store.Update(ctx, kv.Running, tbl, row); err != nil {
		return fmt.Errorf("%s audit status of %s: %w", m.schema.kt, row.KeyString(), err)
	}
	if tbl == kv.TblCtrlr {
		return m.consolidateMain(ctx, kv.Running, row.Key)
	}
	return nil
}

// ImportAudit implements ObjectTypeManager: the controller's configuration
// of this key type is read through drv and stored in AUDIT in UNC naming.
// Entries tagged as leaf, or plain entries without a converted RUNNING
// row, belong to the controller table.
func (m *MoMgr) ImportAudit(ctx context.Context, drv driver.Driver, ctrlr string) error {
	rows, err := drv.ReadConfig(ctx, ctrlr, m.schema.kt)
	if util.IsNoSuchInstance(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("importing %s from %s: %w", m.schema.kt, ctrlr, err)
	}

	n := 0
	for r := rows; r != nil; r = r.Next {
		domain, leaf := driver.SplitDomainTag(r.CtrlrDom.Domain)
		cd := kv.CtrlrDom{Ctrlr: ctrlr, Domain: domain}
		row, err := m.GetRenamedUncKey(ctx, r, kv.Running, ctrlr)
		if err != nil {
			return err
		}
		row.Next = nil
		row.CtrlrDom = cd
		row.Main().SetAllStatus(kv.CsApplied)

		tbl := m.schema.dispatch[0]
		if m.schema.has(kv.TblConvert) && !leaf {
			conv, err := m.hasConverted(ctx, kv.Running, row.Key, cd)
			if err != nil {
				return err
			}
			if conv {
				tbl = kv.TblConvert
			}
		}
		err = m.store.Create(ctx, kv.Audit, tbl, row)
		if err != nil {
			return fmt.Errorf("importing %s %s from %s: %w", m.schema.kt, row.KeyString(), ctrlr, err)
		}
		n++
	}
	m.log("import").WithField("controller", ctrlr).Infof("imported %d rows", n)
	return nil
}

// ClearAudit implements ObjectTypeManager.
func (m *MoMgr) ClearAudit(ctx context.Context, ctrlr string) error {
	for _, tbl := range m.schema.tables {
		if err := m.store.ClearTable(ctx, m.schema.kt, tbl, kv.Audit, ctrlr); err != nil {
			return fmt.Errorf("clearing audit %s %s: %w", m.schema.kt, tbl, err)
		}
	}
	return nil
}
