package configmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/upll/pkg/txlog"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// SaveConfig copies the running snapshot to startup.
func (m *Manager) SaveConfig(ctx context.Context, user string) error {
	if err := m.cluster.BeginTx(); err != nil {
		return err
	}
	defer m.cluster.EndTx()

	start := time.Now()
	err := m.copyAll(ctx, kv.Running, kv.Startup)
	m.record(txlog.NewEvent(user, txlog.OpSave), start, err)
	if err == nil {
		util.Infof("running saved to startup")
	}
	return err
}

// LoadStartup replaces the running and candidate snapshots with startup.
// Nothing is sent to the controllers; an audit brings them in line.
func (m *Manager) LoadStartup(ctx context.Context, user string) error {
	if err := m.cluster.BeginTx(); err != nil {
		return err
	}
	defer m.cluster.EndTx()

	start := time.Now()
	err := m.copyAll(ctx, kv.Startup, kv.Running)
	if err == nil {
		err = m.copyAll(ctx, kv.Running, kv.Candidate)
	}
	m.record(txlog.NewEvent(user, txlog.OpLoad), start, err)
	if err == nil {
		util.Infof("startup loaded into running and candidate")
	}
	return err
}

// Change is one pending difference between candidate and running.
type Change struct {
	Op    kv.Operation
	Table kv.TableType
	// Row is the candidate copy, or the running copy for deletes.
	Row *kv.ConfigKeyVal
	// Prev is the running copy of an update.
	Prev *kv.ConfigKeyVal
}

// Diff lists what the next commit would change, in commit order.
func (m *Manager) Diff(ctx context.Context) ([]Change, error) {
	var out []Change
	for _, step := range m.phaseOrder() {
		op := step.phase.Op()
		for _, mgr := range step.mgrs {
			for _, tbl := range mgr.Tables() {
				if tbl == kv.TblRename {
					continue
				}
				spec := dal.DiffSpec{
					KeyType: mgr.KeyType(),
					Table:   tbl,
					Ref:     kv.Candidate,
					Other:   kv.Running,
					Op:      op,
				}
				changes, err := m.diffTable(ctx, spec)
				if err != nil {
					return nil, err
				}
				out = append(out, changes...)
			}
		}
	}
	return out, nil
}

func (m *Manager) diffTable(ctx context.Context, spec dal.DiffSpec) ([]Change, error) {
	cur, err := m.store.Diff(ctx, spec)
	if util.IsNoSuchInstance(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diffing %s %s: %w", spec.KeyType, spec.Table, err)
	}
	defer cur.Close()

	var out []Change
	for cur.Next() {
		rec := cur.Record()
		out = append(out, Change{Op: rec.Op, Table: spec.Table, Row: rec.Curr, Prev: rec.Prev})
	}
	return out, cur.Err()
}
