package configmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/upll/pkg/txlog"
	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/util"
)

// Audit reconciles one controller with the running snapshot. The
// controller's configuration is imported into the audit snapshot, every
// difference is pushed to the controller, and the running statuses are
// repaired. The audit snapshot of the controller is cleared afterwards
// whatever the outcome.
func (m *Manager) Audit(ctx context.Context, user, ctrlrName string) (*momgr.AuditResult, error) {
	if err := m.cluster.BeginAudit(ctrlrName); err != nil {
		return nil, err
	}
	defer m.cluster.EndAudit()

	start := time.Now()
	sess := m.cluster.NewSession()
	ev := txlog.NewEvent(user, txlog.OpAudit).
		WithController(ctrlrName).
		WithSession(sess.TxID, sess.SessionID, sess.ConfigID)
	log := util.WithController(ctrlrName)

	res := &momgr.AuditResult{}
	err := m.audit(ctx, ctrlrName, res, sess)
	if errors.Is(err, util.ErrCtrlrDisconnected) {
		m.cluster.SetConnected(ctrlrName, false)
	}

	if res.Affected != momgr.CtrlrNotAffected {
		ev.WithAffected([]string{ctrlrName})
	}
	failed := make([]string, 0, len(res.Failed))
	for _, r := range res.Failed {
		failed = append(failed, r.KeyType.String()+" "+r.KeyString())
	}
	ev.WithFailed(failed)
	m.record(ev, start, err)

	if err != nil {
		log.Errorf("audit failed: %v", err)
		return res, err
	}
	log.Infof("audit done: %s, %d config diffs, %d status diffs, %d rejected",
		res.Affected, res.ConfigDiff, res.CSOnlyDiff, len(res.Failed))
	return res, nil
}

func (m *Manager) audit(ctx context.Context, ctrlrName string, res *momgr.AuditResult, sess ctrlr.Session) (err error) {
	if perr := m.drv.Ping(ctx, ctrlrName); perr != nil {
		return fmt.Errorf("%s: %v: %w", ctrlrName, perr, util.ErrCtrlrDisconnected)
	}
	m.cluster.SetConnected(ctrlrName, true)

	defer func() {
		for _, mgr := range m.reg.CreateOrder() {
			if cerr := mgr.ClearAudit(ctx, ctrlrName); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	for _, mgr := range m.reg.CreateOrder() {
		if err := mgr.ClearAudit(ctx, ctrlrName); err != nil {
			return err
		}
		if err := mgr.ImportAudit(ctx, m.drv, ctrlrName); err != nil {
			return fmt.Errorf("importing %s: %w", mgr.KeyType(), err)
		}
	}

	for _, step := range m.phaseOrder() {
		for _, mgr := range step.mgrs {
			p := &momgr.AuditParams{
				Ctrlr:        ctrlrName,
				Phase:        step.phase,
				Session:      sess,
				Driver:       m.drv,
				DeleteFilter: m.deleteFilter,
				Result:       res,
			}
			if err := mgr.AuditUpdateController(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}
