// Package txutil is the per-controller task dispatch pool used by the commit
// path: N FIFO queues, each drained by one worker, with every controller
// bound to one queue for the duration of a phase.
package txutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// task is one unit of queued work. A marker task carries no request and
// only reports that everything queued before it has run.
type task struct {
	ctx     context.Context
	req     *driver.Request
	mainRow *kv.ConfigKeyVal
	rowID   string
	marker  *rendezvous
}

// rendezvous collects completion markers of one WaitForCompletion call.
type rendezvous struct {
	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

func newRendezvous(n int) *rendezvous {
	return &rendezvous{remaining: n, done: make(chan struct{})}
}

func (r *rendezvous) arrive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining--
	if r.remaining == 0 {
		close(r.done)
	}
}

// ResultSet holds the worst driver result seen per controller.
type ResultSet map[string]driver.ResultCode

func rank(code driver.ResultCode) int {
	switch code {
	case driver.ResultSuccess:
		return 0
	case driver.ResultCtrlrDisconnected:
		return 1
	case driver.ResultFailure:
		return 2
	}
	return 3
}

// Record folds one result into the set.
func (rs ResultSet) Record(ctrlr string, code driver.ResultCode) {
	if prev, ok := rs[ctrlr]; ok && rank(prev) >= rank(code) {
		return
	}
	rs[ctrlr] = code
}

// Status returns the config status rows on ctrlr take from this set. The
// boolean is false when nothing was sent to ctrlr.
func (rs ResultSet) Status(ctrlr string) (kv.ConfigStatus, bool) {
	code, ok := rs[ctrlr]
	if !ok {
		return kv.CsUnknown, false
	}
	return driver.StatusFor(code), true
}

// Disconnected reports whether ctrlr was unreachable for any request.
func (rs ResultSet) Disconnected(ctrlr string) bool {
	return rs[ctrlr] == driver.ResultCtrlrDisconnected
}

// RowResults holds the worst driver result seen per row, keyed by RowID.
// A row absent from the set was not sent.
type RowResults map[string]driver.ResultCode

// RowID identifies a row of one table of one key type.
func RowID(tbl kv.TableType, row *kv.ConfigKeyVal) string {
	return row.KeyType.String() + "/" + tbl.String() + "/" + row.IdentityString(tbl)
}

// Record folds one result into the set.
func (rr RowResults) Record(id string, code driver.ResultCode) {
	if prev, ok := rr[id]; ok && rank(prev) >= rank(code) {
		return
	}
	rr[id] = code
}

// Status returns the config status of the row id. The boolean is false
// when the row was not sent.
func (rr RowResults) Status(id string) (kv.ConfigStatus, bool) {
	code, ok := rr[id]
	if !ok {
		return kv.CsUnknown, false
	}
	return driver.StatusFor(code), true
}

// Disconnected reports whether the controller was unreachable for row id.
func (rr RowResults) Disconnected(id string) bool {
	return rr[id] == driver.ResultCtrlrDisconnected
}

// Controllers returns the controllers in the set in lexical order.
func (rs ResultSet) Controllers() []string {
	out := make([]string, 0, len(rs))
	for c := range rs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Util is the dispatch pool.
type Util struct {
	cluster     *ctrlr.ClusterContext
	drv         driver.Driver
	concurrency int

	queues []*taskQueue
	group  *errgroup.Group
	stop   chan struct{}

	// accessMu guards everything below. It is never held while waiting
	// for markers.
	accessMu   sync.Mutex
	active     bool
	completed  int
	errCount   int
	errRow     *kv.ConfigKeyVal
	errCode    driver.ResultCode
	errCtrlr   string
	abort      chan struct{}
	results    ResultSet
	rows       RowResults
	ctrlrQueue map[string]int
	nextQueue  int
}

// New creates an uninitialized pool of concurrency queues.
func New(cluster *ctrlr.ClusterContext, drv driver.Driver, concurrency int) *Util {
	return &Util{
		cluster:     cluster,
		drv:         drv,
		concurrency: concurrency,
		abort:       make(chan struct{}),
		results:     make(ResultSet),
		rows:        make(RowResults),
		ctrlrQueue:  make(map[string]int),
	}
}

// Init creates the queues and starts one worker per queue. It must be
// called exactly once.
func (u *Util) Init() error {
	if u.concurrency < 1 {
		return fmt.Errorf("dispatch concurrency %d: %w", u.concurrency, util.ErrGeneric)
	}
	if u.queues != nil {
		return fmt.Errorf("dispatch pool already initialized: %w", util.ErrGeneric)
	}

	u.queues = make([]*taskQueue, u.concurrency)
	for i := range u.queues {
		u.queues[i] = newTaskQueue(i)
	}
	u.stop = make(chan struct{})
	u.group = &errgroup.Group{}
	for _, q := range u.queues {
		u.group.Go(func() error {
			u.work(q)
			return nil
		})
	}
	util.Debugf("dispatch pool started with %d queues", u.concurrency)
	return nil
}

// Close stops the workers after their current task. Queued tasks are
// dropped.
func (u *Util) Close() error {
	if u.queues == nil {
		return nil
	}
	u.Deactivate()
	close(u.stop)
	err := u.group.Wait()
	for _, q := range u.queues {
		q.drain()
	}
	return err
}

func (u *Util) work(q *taskQueue) {
	for {
		t := q.pop()
		if t == nil {
			select {
			case <-q.wake:
				continue
			case <-u.stop:
				return
			}
		}
		if t.marker != nil {
			u.accessMu.Lock()
			u.completed++
			u.accessMu.Unlock()
			t.marker.arrive()
			continue
		}
		u.execute(t)
	}
}

// execute sends one request. An inactive dispatcher skips the send and
// leaves shared state untouched.
func (u *Util) execute(t *task) {
	if !u.IsActive() {
		tasksTotal.WithLabelValues(resultSkipped).Inc()
		return
	}

	log := util.WithController(t.req.Ctrlr)
	name := t.mainRow.KeyString()
	code := driver.ResultFailure
	var errRow *kv.ConfigKeyVal
	reply, err := u.drv.Send(t.ctx, t.req)
	if err != nil {
		log.Errorf("%s %s: %v", t.req.Op, name, err)
	} else {
		code = reply.Result
		errRow = reply.ErrRow
	}
	tasksTotal.WithLabelValues(code.String()).Inc()

	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	if !u.active {
		// A hard error elsewhere already ended this phase.
		return
	}
	u.results.Record(t.req.Ctrlr, code)
	u.rows.Record(t.rowID, code)

	switch {
	case code == driver.ResultCtrlrDisconnected:
		log.Warnf("%s %s: controller disconnected", t.req.Op, name)
	case code.Hard():
		if errRow == nil {
			errRow = t.req.Rows
		}
		log.Errorf("%s %s: %s", t.req.Op, name, code)
		u.errCount++
		u.errRow = errRow.Dup()
		u.errCode = code
		u.errCtrlr = t.req.Ctrlr
		u.active = false
		close(u.abort)
	default:
		log.Debugf("%s %s: applied", t.req.Op, name)
	}
}

// Activate starts accepting work and clears the state of any previous
// transaction.
func (u *Util) Activate() {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	u.active = true
	u.completed = 0
	u.errCount = 0
	u.errRow = nil
	u.errCode = driver.ResultSuccess
	u.errCtrlr = ""
	u.abort = make(chan struct{})
	u.results = make(ResultSet)
	u.rows = make(RowResults)
}

// Deactivate stops accepting work. Queued tasks short-circuit.
func (u *Util) Deactivate() {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	u.active = false
}

// IsActive reports whether the pool accepts work.
func (u *Util) IsActive() bool {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	return u.active
}

// GetCtrlrQueue returns the queue bound to ctrlr, binding it to the next
// round-robin queue on first use.
func (u *Util) GetCtrlrQueue(ctrlr string) int {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	return u.ctrlrQueueLocked(ctrlr)
}

func (u *Util) ctrlrQueueLocked(ctrlr string) int {
	if idx, ok := u.ctrlrQueue[ctrlr]; ok {
		return idx
	}
	if u.nextQueue >= u.concurrency {
		u.nextQueue = 0
	}
	idx := u.nextQueue
	u.ctrlrQueue[ctrlr] = idx
	u.nextQueue++
	return idx
}

// EnqueueRequest queues one driver request built from the driver-facing
// row reqRow. mainRow is the row of table tbl the request stands for and
// carries the owning controller-domain; its result is kept under
// RowID(tbl, mainRow). domain is the domain string sent to the driver,
// possibly tagged. On error the rows stay with the caller.
func (u *Util) EnqueueRequest(ctx context.Context, sess ctrlr.Session, dt kv.DataType, op kv.Operation,
	tbl kv.TableType, mainRow, reqRow *kv.ConfigKeyVal, domain string) error {
	cd, err := mainRow.RequireCtrlrDom()
	if err != nil {
		return err
	}
	if reqRow == nil {
		return fmt.Errorf("enqueue %s for %s: missing request row: %w", op, cd, util.ErrGeneric)
	}
	if u.queues == nil {
		return fmt.Errorf("dispatch pool not initialized: %w", util.ErrGeneric)
	}
	if _, err := u.cluster.Controller(cd.Ctrlr); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", op, mainRow.KeyString(), err)
	}

	u.accessMu.Lock()
	if !u.active {
		u.accessMu.Unlock()
		return fmt.Errorf("enqueue %s %s for %s: %w: %w", op, mainRow.KeyString(), cd, util.ErrGeneric, util.ErrDispatcherInactive)
	}
	idx := u.ctrlrQueueLocked(cd.Ctrlr)
	u.accessMu.Unlock()

	u.queues[idx].push(&task{
		ctx:     ctx,
		mainRow: mainRow,
		rowID:   RowID(tbl, mainRow),
		req: &driver.Request{
			Session:  sess,
			Op:       op,
			DataType: dt,
			Ctrlr:    cd.Ctrlr,
			Domain:   domain,
			Rows:     reqRow,
		},
	})
	util.WithController(cd.Ctrlr).Debugf("queued %s %s on queue %d", op, mainRow.KeyString(), idx)
	return nil
}

// WaitForCompletion blocks until every queue has run all work queued before
// this call, or until the first hard error, or until ctx ends. On a hard
// error it returns the offending row, in driver naming, and a
// *util.DriverError.
func (u *Util) WaitForCompletion(ctx context.Context) (*kv.ConfigKeyVal, error) {
	if u.queues == nil {
		return nil, fmt.Errorf("dispatch pool not initialized: %w", util.ErrGeneric)
	}
	start := time.Now()
	defer func() { waitDuration.Observe(time.Since(start).Seconds()) }()

	u.accessMu.Lock()
	abort := u.abort
	u.accessMu.Unlock()

	r := newRendezvous(len(u.queues))
	for _, q := range u.queues {
		q.push(&task{marker: r})
	}

	select {
	case <-r.done:
	case <-abort:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	if u.errCount == 0 {
		return nil, nil
	}
	return u.errRow.Dup(), util.NewDriverError(u.errCtrlr, u.errCode.String(), u.errRow.KeyString())
}

// GetErrCount returns the hard failures recorded since the last
// ReInitializeTaskQParams.
func (u *Util) GetErrCount() int {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	return u.errCount
}

// Completed returns the number of completion markers run since Activate or
// ReInitializeTaskQParams.
func (u *Util) Completed() int {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	return u.completed
}

// ReInitializeTaskQParams prepares the pool for the next phase: queued work
// is discarded, counters and the controller bindings are reset, and a
// recorded hard error is cleared. A pool stopped by that error stays
// inactive until Activate. The round-robin position carries over so
// consecutive phases keep spreading new controllers evenly.
func (u *Util) ReInitializeTaskQParams() {
	dropped := 0
	for _, q := range u.queues {
		dropped += q.drain()
	}

	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	u.completed = 0
	u.errCount = 0
	u.errRow = nil
	u.errCode = driver.ResultSuccess
	u.errCtrlr = ""
	select {
	case <-u.abort:
		u.abort = make(chan struct{})
	default:
	}
	u.ctrlrQueue = make(map[string]int)
	if dropped > 0 {
		util.Warnf("dispatch pool: dropped %d unexecuted tasks", dropped)
	}
}

// Results returns a copy of the per-controller results since Activate.
func (u *Util) Results() ResultSet {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	out := make(ResultSet, len(u.results))
	for c, code := range u.results {
		out[c] = code
	}
	return out
}

// RowResults returns a copy of the per-row results since Activate.
func (u *Util) RowResults() RowResults {
	u.accessMu.Lock()
	defer u.accessMu.Unlock()
	out := make(RowResults, len(u.rows))
	for id, code := range u.rows {
		out[id] = code
	}
	return out
}

// QueueLen returns the number of tasks waiting in queue idx.
func (u *Util) QueueLen(idx int) int {
	return u.queues[idx].len()
}
