// Package txlog keeps a journal of commits, aborts, audits and snapshot
// copies as JSON lines.
package txlog

import (
	"time"

	"github.com/google/uuid"
)

// Event is one journal entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Operation Operation `json:"operation"`

	// Controller is set for audits.
	Controller string   `json:"controller,omitempty"`
	Affected   []string `json:"affected,omitempty"`
	// Failed lists the keys a controller rejected, in UNC naming.
	Failed []string `json:"failed,omitempty"`

	TxID      string `json:"tx_id,omitempty"`
	SessionID uint32 `json:"session_id,omitempty"`
	ConfigID  uint32 `json:"config_id,omitempty"`

	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Operation names what the journal entry records.
type Operation string

const (
	OpCommit Operation = "commit"
	OpAbort  Operation = "abort"
	OpAudit  Operation = "audit"
	OpSave   Operation = "save"
	OpLoad   Operation = "load"
)

// Filter defines criteria for querying journal events
type Filter struct {
	User        string
	Operation   Operation
	Controller  string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new journal event
func NewEvent(user string, op Operation) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Operation: op,
	}
}

// WithController sets the audited controller
func (e *Event) WithController(ctrlr string) *Event {
	e.Controller = ctrlr
	return e
}

// WithSession records the transaction identifiers
func (e *Event) WithSession(txID string, sessionID, configID uint32) *Event {
	e.TxID = txID
	e.SessionID = sessionID
	e.ConfigID = configID
	return e
}

// WithAffected sets the controllers the operation touched
func (e *Event) WithAffected(ctrlrs []string) *Event {
	e.Affected = ctrlrs
	return e
}

// WithFailed sets the rejected keys
func (e *Event) WithFailed(keys []string) *Event {
	e.Failed = keys
	return e
}

// WithResult marks the event successful when err is nil and failed
// otherwise
func (e *Event) WithResult(err error) *Event {
	e.Success = err == nil
	e.Error = ""
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
