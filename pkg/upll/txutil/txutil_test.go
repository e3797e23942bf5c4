package txutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDriver records sends per controller, answers with a scripted code,
// and can hold a controller's sends until its gate is opened.
type fakeDriver struct {
	mu    sync.Mutex
	sent  map[string][]string
	codes map[string]driver.ResultCode
	gates map[string]chan struct{}

	started chan string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		sent:    make(map[string][]string),
		codes:   make(map[string]driver.ResultCode),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

func (d *fakeDriver) hold(ctrlr string) func() {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gates[ctrlr] = gate
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (d *fakeDriver) answer(ctrlr string, code driver.ResultCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes[ctrlr] = code
}

func (d *fakeDriver) sentTo(ctrlr string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent[ctrlr]...)
}

func (d *fakeDriver) Send(ctx context.Context, req *driver.Request) (*driver.Reply, error) {
	d.mu.Lock()
	gate := d.gates[req.Ctrlr]
	code := d.codes[req.Ctrlr]
	d.mu.Unlock()

	select {
	case d.started <- req.Ctrlr:
	default:
	}
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	d.sent[req.Ctrlr] = append(d.sent[req.Ctrlr], req.Rows.KeyString())
	d.mu.Unlock()
	return &driver.Reply{Result: code}, nil
}

func (d *fakeDriver) ReadConfig(ctx context.Context, ctrlr string, kt kv.KeyType) (*kv.ConfigKeyVal, error) {
	return nil, util.ErrNoSuchInstance
}

func (d *fakeDriver) Ping(ctx context.Context, ctrlr string) error {
	return nil
}

func newTestUtil(t *testing.T, concurrency int, ctrlrs ...string) (*Util, *fakeDriver) {
	t.Helper()
	cluster := ctrlr.NewClusterContext()
	for _, name := range ctrlrs {
		require.NoError(t, cluster.AddController(ctrlr.Controller{Name: name, Type: "fake"}))
	}
	drv := newFakeDriver()
	u := New(cluster, drv, concurrency)
	require.NoError(t, u.Init())
	t.Cleanup(func() { require.NoError(t, u.Close()) })
	u.Activate()
	return u, drv
}

var testSession = ctrlr.Session{SessionID: 1, ConfigID: 1}

func row(ctrlr, name string) *kv.ConfigKeyVal {
	r := kv.NewConfigKeyVal(kv.KtVtn, name)
	r.CtrlrDom = kv.CtrlrDom{Ctrlr: ctrlr, Domain: "dom"}
	return r
}

func enqueue(t *testing.T, u *Util, op kv.Operation, ctrlr, name string) {
	t.Helper()
	r := row(ctrlr, name)
	require.NoError(t, u.EnqueueRequest(context.Background(), testSession, kv.Candidate, op, kv.TblMain, r, r.Dup(), "dom"))
}

func waitStarted(t *testing.T, d *fakeDriver, ctrlr string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-d.started:
			if c == ctrlr {
				return
			}
		case <-timeout:
			t.Fatalf("no send to %s started", ctrlr)
		}
	}
}

func TestInit(t *testing.T) {
	u := New(ctrlr.NewClusterContext(), newFakeDriver(), 0)
	require.ErrorIs(t, u.Init(), util.ErrGeneric)

	u = New(ctrlr.NewClusterContext(), newFakeDriver(), 2)
	require.NoError(t, u.Init())
	require.ErrorIs(t, u.Init(), util.ErrGeneric)
	require.NoError(t, u.Close())
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	u, _ := newTestUtil(t, 2, "C1")

	noDom := kv.NewConfigKeyVal(kv.KtVtn, "vtn1")
	err := u.EnqueueRequest(context.Background(), testSession, kv.Candidate, kv.OpCreate, kv.TblMain, noDom, noDom.Dup(), "")
	require.ErrorIs(t, err, util.ErrGeneric)

	unknown := row("C9", "vtn1")
	err = u.EnqueueRequest(context.Background(), testSession, kv.Candidate, kv.OpCreate, kv.TblMain, unknown, unknown.Dup(), "dom")
	require.ErrorIs(t, err, util.ErrUnknownController)

	u.Deactivate()
	r := row("C1", "vtn1")
	err = u.EnqueueRequest(context.Background(), testSession, kv.Candidate, kv.OpCreate, kv.TblMain, r, r.Dup(), "dom")
	require.ErrorIs(t, err, util.ErrGeneric)
	require.ErrorIs(t, err, util.ErrDispatcherInactive)
}

func TestControllerAffinity(t *testing.T) {
	ctrlrs := []string{"C1", "C2", "C3", "C4", "C5"}
	u, drv := newTestUtil(t, 3, ctrlrs...)

	want := map[string][]string{}
	for i := 0; i < 20; i++ {
		for _, c := range ctrlrs {
			name := fmt.Sprintf("vtn%02d", i)
			enqueue(t, u, kv.OpCreate, c, name)
			want[c] = append(want[c], name)
		}
	}
	bound := map[string]int{}
	for _, c := range ctrlrs {
		bound[c] = u.GetCtrlrQueue(c)
	}

	_, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	for _, c := range ctrlrs {
		require.Equal(t, want[c], drv.sentTo(c), "order on %s", c)
		require.Equal(t, bound[c], u.GetCtrlrQueue(c), "binding of %s moved", c)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	const n = 4
	u, _ := newTestUtil(t, n)

	seen := map[int]string{}
	for i := 0; i < n; i++ {
		c := fmt.Sprintf("C%d", i)
		q := u.GetCtrlrQueue(c)
		require.NotContains(t, seen, q, "queue %d given to %s and %s", q, seen[q], c)
		seen[q] = c
	}
	require.Len(t, seen, n)

	// A fifth controller wraps to the first queue.
	require.Equal(t, 0, u.GetCtrlrQueue("C4"))
}

func TestWaitForCompletionRunsAllMarkers(t *testing.T) {
	u, drv := newTestUtil(t, 3, "C1", "C2")
	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	enqueue(t, u, kv.OpCreate, "C2", "vtn2")

	errRow, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Nil(t, errRow)
	require.Equal(t, 3, u.Completed())
	require.Equal(t, []string{"vtn1"}, drv.sentTo("C1"))
	require.Equal(t, []string{"vtn2"}, drv.sentTo("C2"))
}

func TestWaitForCompletionHonorsContext(t *testing.T) {
	u, drv := newTestUtil(t, 1, "C1")
	release := drv.hold("C1")
	defer release()

	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := u.WaitForCompletion(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	release()
}

// Scenario: a controller disconnects during a delete phase. The row's
// controller status is unknown and the transaction carries on.
func TestDisconnectIsSoft(t *testing.T) {
	u, drv := newTestUtil(t, 2, "C1", "C2")
	drv.answer("C1", driver.ResultCtrlrDisconnected)

	enqueue(t, u, kv.OpDelete, "C1", "vtn1")
	enqueue(t, u, kv.OpDelete, "C2", "vtn2")
	enqueue(t, u, kv.OpDelete, "C2", "vtn3")

	errRow, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Nil(t, errRow)
	require.Equal(t, 0, u.GetErrCount())
	require.True(t, u.IsActive())
	require.Equal(t, []string{"vtn2", "vtn3"}, drv.sentTo("C2"))

	results := u.Results()
	require.True(t, results.Disconnected("C1"))
	cs, ok := results.Status("C1")
	require.True(t, ok)
	require.Equal(t, kv.CsUnknown, cs)
	cs, ok = results.Status("C2")
	require.True(t, ok)
	require.Equal(t, kv.CsApplied, cs)
	_, ok = results.Status("C3")
	require.False(t, ok)
}

// Scenario: a hard rejection on one controller ends the wait at once, even
// though another controller's queue is still busy.
func TestRejectionAbortsWait(t *testing.T) {
	u, drv := newTestUtil(t, 2, "C1", "C2")
	release := drv.hold("C1")
	defer release()
	drv.answer("C2", driver.ResultRejected)

	rejectedBefore := promtestutil.ToFloat64(tasksTotal.WithLabelValues("rejected"))

	enqueue(t, u, kv.OpUpdate, "C1", "vtn1")
	waitStarted(t, drv, "C1")
	enqueue(t, u, kv.OpUpdate, "C2", "vtn2")

	errRow, err := u.WaitForCompletion(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, util.ErrDriverRejected)
	var derr *util.DriverError
	require.True(t, errors.As(err, &derr))
	require.Equal(t, "C2", derr.Ctrlr)
	require.NotNil(t, errRow)
	require.Equal(t, "vtn2", errRow.KeyString())

	require.Equal(t, 1, u.GetErrCount())
	require.False(t, u.IsActive())
	require.Empty(t, drv.sentTo("C1"), "wait returned only after the busy queue finished")
	require.Equal(t, rejectedBefore+1, promtestutil.ToFloat64(tasksTotal.WithLabelValues("rejected")))

	r := row("C1", "vtn3")
	require.ErrorIs(t, u.EnqueueRequest(context.Background(), testSession, kv.Candidate, kv.OpUpdate, kv.TblMain, r, r.Dup(), "dom"),
		util.ErrDispatcherInactive)
	release()
}

func TestInactiveTasksShortCircuit(t *testing.T) {
	u, drv := newTestUtil(t, 1, "C1")
	release := drv.hold("C1")
	defer release()

	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	waitStarted(t, drv, "C1")
	enqueue(t, u, kv.OpCreate, "C1", "vtn2")
	u.Deactivate()
	release()

	_, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vtn1"}, drv.sentTo("C1"))
	require.Empty(t, u.Results(), "results recorded after deactivation")
}

func TestReInitializeTaskQParams(t *testing.T) {
	u, drv := newTestUtil(t, 2, "C1", "C2")
	drv.answer("C1", driver.ResultRejected)

	require.Equal(t, 0, u.GetCtrlrQueue("C1"))
	require.Equal(t, 1, u.GetCtrlrQueue("C2"))
	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	_, err := u.WaitForCompletion(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, u.GetErrCount())

	u.ReInitializeTaskQParams()
	require.Equal(t, 0, u.GetErrCount())

	// Bindings are gone; the round-robin position is not, so C2 now lands
	// on a different queue.
	require.Equal(t, 0, u.GetCtrlrQueue("C2"))
	require.Equal(t, 1, u.GetCtrlrQueue("C1"))
}

// Scenario: after a hard error the next phase waits on its own markers
// instead of returning on the old abort.
func TestReInitializeClearsHardError(t *testing.T) {
	u, drv := newTestUtil(t, 2, "C1", "C2")
	drv.answer("C1", driver.ResultRejected)

	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	errRow, err := u.WaitForCompletion(context.Background())
	require.Error(t, err)
	require.NotNil(t, errRow)
	require.Eventually(t, func() bool { return u.Completed() == 2 }, 5*time.Second, 10*time.Millisecond)

	u.ReInitializeTaskQParams()
	require.False(t, u.IsActive())
	require.Equal(t, 0, u.Completed())

	errRow, err = u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Nil(t, errRow)
	require.Equal(t, 2, u.Completed())
}

func TestReInitializeDropsQueuedWork(t *testing.T) {
	u, drv := newTestUtil(t, 1, "C1")
	release := drv.hold("C1")
	defer release()

	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	waitStarted(t, drv, "C1")
	enqueue(t, u, kv.OpCreate, "C1", "vtn2")
	require.Equal(t, 1, u.QueueLen(0))

	u.ReInitializeTaskQParams()
	require.Equal(t, 0, u.QueueLen(0))
	release()

	_, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vtn1"}, drv.sentTo("C1"))
}

func TestActivateClearsResults(t *testing.T) {
	u, drv := newTestUtil(t, 1, "C1")
	drv.answer("C1", driver.ResultRejected)
	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	_, err := u.WaitForCompletion(context.Background())
	require.Error(t, err)

	u.Activate()
	require.True(t, u.IsActive())
	require.Equal(t, 0, u.GetErrCount())
	require.Empty(t, u.Results())

	drv.answer("C1", driver.ResultSuccess)
	enqueue(t, u, kv.OpCreate, "C1", "vtn2")
	_, err = u.WaitForCompletion(context.Background())
	require.NoError(t, err)
}

func TestResultSetKeepsWorst(t *testing.T) {
	rs := ResultSet{}
	rs.Record("C1", driver.ResultSuccess)
	rs.Record("C1", driver.ResultCtrlrDisconnected)
	rs.Record("C1", driver.ResultSuccess)
	require.Equal(t, driver.ResultCtrlrDisconnected, rs["C1"])
	rs.Record("C1", driver.ResultRejected)
	rs.Record("C1", driver.ResultFailure)
	require.Equal(t, driver.ResultRejected, rs["C1"])
	rs.Record("C2", driver.ResultSuccess)
	require.Equal(t, []string{"C1", "C2"}, rs.Controllers())
}

func TestRowResultsPerRow(t *testing.T) {
	u, drv := newTestUtil(t, 1, "C1")
	drv.answer("C1", driver.ResultCtrlrDisconnected)
	enqueue(t, u, kv.OpCreate, "C1", "vtn1")
	_, err := u.WaitForCompletion(context.Background())
	require.NoError(t, err)

	rows := u.RowResults()
	id := RowID(kv.TblMain, row("C1", "vtn1"))
	cs, ok := rows.Status(id)
	require.True(t, ok)
	require.Equal(t, kv.CsUnknown, cs)
	require.True(t, rows.Disconnected(id))

	// vtn2 shares the controller but was never sent.
	other := RowID(kv.TblMain, row("C1", "vtn2"))
	_, ok = rows.Status(other)
	require.False(t, ok)
	require.False(t, rows.Disconnected(other))
	require.NotEqual(t, id, RowID(kv.TblCtrlr, row("C1", "vtn1")))

	rows.Record(id, driver.ResultRejected)
	rows.Record(id, driver.ResultSuccess)
	require.Equal(t, driver.ResultRejected, rows[id])

	u.Activate()
	require.Empty(t, u.RowResults())
}

func TestInitMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	InitMetrics(registry)
	tasksTotal.WithLabelValues("success").Add(0)
	mfs, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
