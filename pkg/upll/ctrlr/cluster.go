// Package ctrlr holds the process-wide cluster context: the registry of
// southbound controllers and the configuration-manager state shared by the
// commit and audit paths.
package ctrlr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// Controller describes one southbound controller.
type Controller struct {
	Name    string
	Type    string
	Version string

	// Addr is the controller's CONFIG_DB address (host:port). When SSHUser
	// is set, Addr is the SSH host and the database is reached through a
	// tunnel.
	Addr    string
	DB      int
	SSHUser string
	SSHPass string
	SSHPort int

	// Unsupported lists, per key type, the attributes this controller
	// cannot configure.
	Unsupported map[kv.KeyType][]string
}

type entry struct {
	Controller
	connected bool
}

// Session correlates one user session and configuration transaction with
// the requests it produces.
type Session struct {
	SessionID uint32
	ConfigID  uint32
	TxID      string
}

// ClusterContext is the controller registry plus configuration-manager
// state. One instance is created by the process entry point and passed to
// every component that needs it.
type ClusterContext struct {
	mu     sync.RWMutex
	ctrlrs map[string]*entry

	sessionID uint32
	configID  uint32
	txActive  bool
	auditing  string
}

// NewClusterContext returns an empty context.
func NewClusterContext() *ClusterContext {
	return &ClusterContext{ctrlrs: make(map[string]*entry)}
}

// AddController registers a controller. Controllers start disconnected.
func (c *ClusterContext) AddController(ctrl Controller) error {
	if ctrl.Name == "" {
		return fmt.Errorf("controller name is required: %w", util.ErrGeneric)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ctrlrs[ctrl.Name]; ok {
		return fmt.Errorf("controller %s: %w", ctrl.Name, util.ErrInstanceExists)
	}
	c.ctrlrs[ctrl.Name] = &entry{Controller: ctrl}
	return nil
}

// Controller returns the registered controller.
func (c *ClusterContext) Controller(name string) (Controller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.ctrlrs[name]
	if !ok {
		return Controller{}, fmt.Errorf("%s: %w", name, util.ErrUnknownController)
	}
	return e.Controller, nil
}

// Names returns the registered controller names in lexical order.
func (c *ClusterContext) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ctrlrs))
	for name := range c.ctrlrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetConnected records the reachability of a controller.
func (c *ClusterContext) SetConnected(name string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.ctrlrs[name]; ok {
		if e.connected != connected {
			util.WithController(name).Infof("connected=%v", connected)
		}
		e.connected = connected
	}
}

// IsConnected reports the last recorded reachability of a controller.
func (c *ClusterContext) IsConnected(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.ctrlrs[name]
	return ok && e.connected
}

// IsSupported reports whether the controller can configure attribute attr
// of key type kt. Unknown controllers support nothing.
func (c *ClusterContext) IsSupported(name string, kt kv.KeyType, attr string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.ctrlrs[name]
	if !ok {
		return false
	}
	for _, a := range e.Unsupported[kt] {
		if a == attr {
			return false
		}
	}
	return true
}

// NewSession allocates the identifiers for one configuration transaction.
func (c *ClusterContext) NewSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID++
	c.configID++
	return Session{SessionID: c.sessionID, ConfigID: c.configID, TxID: uuid.NewString()}
}

// BeginTx marks a commit in progress. Commits and audits are exclusive.
func (c *ClusterContext) BeginTx() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txActive || c.auditing != "" {
		return util.ErrTxInProgress
	}
	c.txActive = true
	return nil
}

// EndTx clears the commit-in-progress mark.
func (c *ClusterContext) EndTx() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txActive = false
}

// BeginAudit marks an audit of ctrlr in progress.
func (c *ClusterContext) BeginAudit(ctrlr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txActive || c.auditing != "" {
		return util.ErrTxInProgress
	}
	if _, ok := c.ctrlrs[ctrlr]; !ok {
		return fmt.Errorf("%s: %w", ctrlr, util.ErrUnknownController)
	}
	c.auditing = ctrlr
	return nil
}

// EndAudit clears the audit-in-progress mark.
func (c *ClusterContext) EndAudit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditing = ""
}

// Auditing returns the controller under audit, or "".
func (c *ClusterContext) Auditing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auditing
}
