package momgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/txutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// harness wires the managers to an in-memory store, two simulated
// controllers and a dispatch pool. C2 cannot configure vBridge host
// addresses.
type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *dal.MemStore
	cluster *ctrlr.ClusterContext
	sim     *driver.SimDriver
	reg     *Registry
	pool    *txutil.Util
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cluster := ctrlr.NewClusterContext()
	require.NoError(t, cluster.AddController(ctrlr.Controller{Name: "C1", Type: "sim"}))
	require.NoError(t, cluster.AddController(ctrlr.Controller{
		Name: "C2",
		Type: "sim",
		Unsupported: map[kv.KeyType][]string{
			kv.KtVbridge: {"host_addr", "host_addr_prefixlen"},
		},
	}))

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   dal.NewMemStore(),
		cluster: cluster,
		sim:     driver.NewSimDriver(),
	}
	h.reg = NewRegistry(h.store, cluster)
	h.pool = txutil.New(cluster, h.sim, 2)
	require.NoError(t, h.pool.Init())
	t.Cleanup(func() { h.pool.Close() })
	return h
}

func (h *harness) mgr(kt kv.KeyType) *MoMgr {
	h.t.Helper()
	m, err := h.reg.get(kt)
	require.NoError(h.t, err)
	return m
}

func vtnRow(name string) *kv.ConfigKeyVal {
	return kv.NewConfigKeyVal(kv.KtVtn, name)
}

func vbrRow(vtn, vbr, c, dom string) *kv.ConfigKeyVal {
	r := kv.NewConfigKeyVal(kv.KtVbridge, vtn, vbr)
	r.CtrlrDom = kv.CtrlrDom{Ctrlr: c, Domain: dom}
	return r
}

// createVtn builds a VTN with one vBridge on each of the given
// controllers, all in domain d1.
func (h *harness) createVtn(name string, ctrlrs ...string) {
	h.t.Helper()
	require.NoError(h.t, h.mgr(kv.KtVtn).CreateCandidate(h.ctx, vtnRow(name).SetAttr("description", "blue")))
	for _, c := range ctrlrs {
		require.NoError(h.t, h.mgr(kv.KtVbridge).CreateCandidate(h.ctx, vbrRow(name, "vbr"+c, c, "d1")))
	}
}

// commit runs the three commit phases and, when they succeed, the
// finalizer of every key type.
func (h *harness) commit() (kv.CtrlrSet, error) {
	h.pool.Activate()
	defer h.pool.Deactivate()
	sess := h.cluster.NewSession()
	affected := kv.CtrlrSet{}

	phases := []struct {
		phase kv.UpdateCtrlrPhase
		mgrs  []ObjectTypeManager
	}{
		{kv.PhaseDelete, h.reg.DeleteOrder()},
		{kv.PhaseCreate, h.reg.CreateOrder()},
		{kv.PhaseUpdate, h.reg.CreateOrder()},
	}
	for _, ph := range phases {
		h.pool.ReInitializeTaskQParams()
		var txErr error
		for _, m := range ph.mgrs {
			p := &TxUpdateParams{Phase: ph.phase, Session: sess, Util: h.pool, Affected: affected}
			if txErr = m.TxUpdateController(h.ctx, p); txErr != nil {
				break
			}
		}
		if _, err := h.pool.WaitForCompletion(h.ctx); err != nil {
			return affected, err
		}
		if txErr != nil {
			return affected, txErr
		}
	}

	rows := h.pool.RowResults()
	for _, m := range h.reg.CreateOrder() {
		if err := m.TxCopyCandidateToRunning(h.ctx, &CopyParams{Rows: rows, Session: sess}); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// audit imports ctrlr's configuration and runs the audit phases.
func (h *harness) audit(c string, filter DeleteFilter) (*AuditResult, error) {
	for _, m := range h.reg.CreateOrder() {
		if err := m.ClearAudit(h.ctx, c); err != nil {
			return nil, err
		}
		if err := m.ImportAudit(h.ctx, h.sim, c); err != nil {
			return nil, err
		}
	}
	res := &AuditResult{}
	sess := h.cluster.NewSession()
	phases := []struct {
		phase kv.UpdateCtrlrPhase
		mgrs  []ObjectTypeManager
	}{
		{kv.PhaseDelete, h.reg.DeleteOrder()},
		{kv.PhaseCreate, h.reg.CreateOrder()},
		{kv.PhaseUpdate, h.reg.CreateOrder()},
	}
	for _, ph := range phases {
		for _, m := range ph.mgrs {
			p := &AuditParams{Ctrlr: c, Phase: ph.phase, Session: sess, Driver: h.sim, DeleteFilter: filter, Result: res}
			if err := m.AuditUpdateController(h.ctx, p); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (h *harness) read(dt kv.DataType, tbl kv.TableType, kt kv.KeyType, key ...string) *kv.ConfigKeyVal {
	h.t.Helper()
	rows, err := h.store.Read(h.ctx, dt, tbl, kv.NewConfigKeyVal(kt, key...), dal.ReadOpt{})
	require.NoError(h.t, err)
	return rows
}

func (h *harness) readCtrlr(dt kv.DataType, tbl kv.TableType, kt kv.KeyType, c string, key ...string) *kv.ConfigKeyVal {
	h.t.Helper()
	match := kv.NewConfigKeyVal(kt, key...)
	match.CtrlrDom = kv.CtrlrDom{Ctrlr: c}
	rows, err := h.store.Read(h.ctx, dt, tbl, match, dal.ReadOpt{MatchCtrlr: true})
	require.NoError(h.t, err)
	require.Equal(h.t, 1, rows.Len())
	return rows
}

func (h *harness) requestsTo(c string) []driver.Request {
	var out []driver.Request
	for _, r := range h.sim.Requests() {
		if r.Ctrlr == c {
			out = append(out, r)
		}
	}
	return out
}
