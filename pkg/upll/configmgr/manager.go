// Package configmgr drives configuration transactions across all key
// types: commits of the candidate snapshot to the controllers, aborts,
// audits of one controller, and the startup snapshot.
package configmgr

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/upll/pkg/txlog"
	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/upll/txutil"
	"github.com/newtron-network/upll/pkg/util"
)

// pingTimeout bounds each controller probe of ConnectAll.
const pingTimeout = 5 * time.Second

// Options wires a Manager.
type Options struct {
	Cluster *ctrlr.ClusterContext
	Store   dal.Store
	Driver  driver.Driver
	// Concurrency is the number of dispatch queues; values below 1 mean 1.
	Concurrency int
	// Journal records every transaction. Nil disables the journal.
	Journal      txlog.Logger
	DeleteFilter momgr.DeleteFilter
}

// Manager is the inbound boundary of the engine.
type Manager struct {
	cluster      *ctrlr.ClusterContext
	store        dal.Store
	drv          driver.Driver
	reg          *momgr.Registry
	pool         *txutil.Util
	journal      txlog.Logger
	deleteFilter momgr.DeleteFilter
}

// New creates a Manager and starts its dispatch pool.
func New(opts Options) (*Manager, error) {
	if opts.Cluster == nil || opts.Store == nil || opts.Driver == nil {
		return nil, fmt.Errorf("cluster, store and driver are required: %w", util.ErrGeneric)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	journal := opts.Journal
	if journal == nil {
		journal = txlog.NopLogger{}
	}

	m := &Manager{
		cluster:      opts.Cluster,
		store:        opts.Store,
		drv:          opts.Driver,
		reg:          momgr.NewRegistry(opts.Store, opts.Cluster),
		pool:         txutil.New(opts.Cluster, opts.Driver, opts.Concurrency),
		journal:      journal,
		deleteFilter: opts.DeleteFilter,
	}
	if err := m.pool.Init(); err != nil {
		return nil, fmt.Errorf("starting dispatch pool: %w", err)
	}
	return m, nil
}

// Close stops the dispatch pool. The store, driver and journal belong to
// the caller.
func (m *Manager) Close() error {
	return m.pool.Close()
}

// Cluster returns the controller registry.
func (m *Manager) Cluster() *ctrlr.ClusterContext {
	return m.cluster
}

// ConnectAll probes every registered controller in parallel, records the
// outcome in the registry and returns the controllers that did not answer.
func (m *Manager) ConnectAll(ctx context.Context) ([]string, error) {
	names := m.cluster.Names()
	up := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, pingTimeout)
			defer cancel()
			if err := m.drv.Ping(pctx, name); err != nil {
				util.WithController(name).Warnf("ping failed: %v", err)
				return nil
			}
			up[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var down []string
	for i, name := range names {
		m.cluster.SetConnected(name, up[i])
		if !up[i] {
			down = append(down, name)
		}
	}
	return down, nil
}

// phaseOrder lists the update phases with the key-type order each runs in.
func (m *Manager) phaseOrder() []phaseStep {
	return []phaseStep{
		{kv.PhaseDelete, m.reg.DeleteOrder()},
		{kv.PhaseCreate, m.reg.CreateOrder()},
		{kv.PhaseUpdate, m.reg.CreateOrder()},
	}
}

type phaseStep struct {
	phase kv.UpdateCtrlrPhase
	mgrs  []momgr.ObjectTypeManager
}

func (m *Manager) record(ev *txlog.Event, start time.Time, err error) {
	ev.WithDuration(time.Since(start)).WithResult(err)
	if lerr := m.journal.Log(ev); lerr != nil {
		util.Warnf("journal: %v", lerr)
	}
}

// Journal returns the journal entries matching filter.
func (m *Manager) Journal(filter txlog.Filter) ([]*txlog.Event, error) {
	return m.journal.Query(filter)
}
