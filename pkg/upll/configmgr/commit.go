package configmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/upll/pkg/txlog"
	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/upll/txutil"
	"github.com/newtron-network/upll/pkg/util"
)

// CommitResult describes a finished commit.
type CommitResult struct {
	Session ctrlr.Session
	// Affected lists every controller a request was sent to.
	Affected []string
	// Results is the worst driver result per controller.
	Results txutil.ResultSet
}

// Commit sends the difference between the candidate and running
// snapshots to the controllers and, when no controller rejects a request,
// copies the candidate to running with the resulting statuses.
//
// A rejection aborts the commit: the running snapshot is left untouched
// and the returned error is a *util.DriverError naming the rejected key in
// UNC naming. Disconnected controllers do not abort; their rows are
// committed with status UNKNOWN and marked for audit.
func (m *Manager) Commit(ctx context.Context, user string) (*CommitResult, error) {
	if err := m.cluster.BeginTx(); err != nil {
		return nil, err
	}
	defer m.cluster.EndTx()

	start := time.Now()
	sess := m.cluster.NewSession()
	ev := txlog.NewEvent(user, txlog.OpCommit).WithSession(sess.TxID, sess.SessionID, sess.ConfigID)
	log := util.WithSession(sess.SessionID, sess.ConfigID)

	res, err := m.commit(ctx, sess)
	ev.WithAffected(res.Affected)
	var derr *util.DriverError
	if errors.As(err, &derr) && derr.Key != "" {
		ev.WithFailed([]string{derr.Key})
	}
	m.record(ev, start, err)

	if err != nil {
		log.Errorf("commit failed: %v", err)
		return res, err
	}
	log.Infof("commit done, %d controllers affected", len(res.Affected))
	return res, nil
}

func (m *Manager) commit(ctx context.Context, sess ctrlr.Session) (*CommitResult, error) {
	res := &CommitResult{Session: sess}
	affected := kv.CtrlrSet{}
	defer func() { res.Affected = affected.Sorted() }()

	m.pool.Activate()
	defer m.pool.Deactivate()

	for _, step := range m.phaseOrder() {
		if err := m.runPhase(ctx, sess, step, affected); err != nil {
			return res, err
		}
	}

	res.Results = m.pool.Results()
	rows := m.pool.RowResults()
	for _, mgr := range m.reg.CreateOrder() {
		if err := mgr.TxCopyCandidateToRunning(ctx, &momgr.CopyParams{Rows: rows, Session: sess}); err != nil {
			return res, fmt.Errorf("copying %s to running: %w", mgr.KeyType(), err)
		}
	}
	return res, nil
}

// runPhase queues one phase for every key type and waits for the queues
// to drain.
func (m *Manager) runPhase(ctx context.Context, sess ctrlr.Session, step phaseStep, affected kv.CtrlrSet) error {
	m.pool.ReInitializeTaskQParams()
	util.WithSession(sess.SessionID, sess.ConfigID).Debugf("phase %s", step.phase)

	var txErr error
	for _, mgr := range step.mgrs {
		p := &momgr.TxUpdateParams{Phase: step.phase, Session: sess, Util: m.pool, Affected: affected}
		if txErr = mgr.TxUpdateController(ctx, p); txErr != nil {
			break
		}
	}

	errRow, err := m.pool.WaitForCompletion(ctx)
	if err != nil {
		var derr *util.DriverError
		if errors.As(err, &derr) && errRow != nil {
			return m.uncDriverError(ctx, step.phase, errRow, derr)
		}
		return err
	}
	return txErr
}

// uncDriverError restates a rejection with the key in UNC naming.
func (m *Manager) uncDriverError(ctx context.Context, phase kv.UpdateCtrlrPhase, errRow *kv.ConfigKeyVal, derr *util.DriverError) error {
	dt := kv.Candidate
	if phase == kv.PhaseDelete {
		dt = kv.Running
	}
	mgr, err := m.reg.Get(errRow.KeyType)
	if err != nil {
		return derr
	}
	unc, err := mgr.GetRenamedUncKey(ctx, errRow, dt, derr.Ctrlr)
	if err != nil {
		util.WithController(derr.Ctrlr).Warnf("translating rejected key %s: %v", errRow.KeyString(), err)
		return derr
	}
	return util.NewDriverError(derr.Ctrlr, derr.Result, unc.KeyString())
}

// Abort discards the candidate snapshot by copying running over it.
func (m *Manager) Abort(ctx context.Context, user string) error {
	if err := m.cluster.BeginTx(); err != nil {
		return err
	}
	defer m.cluster.EndTx()

	start := time.Now()
	err := m.copyAll(ctx, kv.Running, kv.Candidate)
	m.record(txlog.NewEvent(user, txlog.OpAbort), start, err)
	if err == nil {
		util.Infof("candidate reset to running")
	}
	return err
}

func (m *Manager) copyAll(ctx context.Context, from, to kv.DataType) error {
	for _, mgr := range m.reg.CreateOrder() {
		if err := mgr.CopySnapshot(ctx, from, to); err != nil {
			return err
		}
	}
	return nil
}
