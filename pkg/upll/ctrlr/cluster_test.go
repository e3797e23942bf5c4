package ctrlr

import (
	"errors"
	"testing"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

func testCluster(t *testing.T) *ClusterContext {
	t.Helper()
	c := NewClusterContext()
	for _, ctrl := range []Controller{
		{Name: "C2", Type: "sim"},
		{Name: "C1", Type: "sim", Unsupported: map[kv.KeyType][]string{kv.KtVbridge: {"host_addr"}}},
	} {
		if err := c.AddController(ctrl); err != nil {
			t.Fatalf("AddController(%s): %v", ctrl.Name, err)
		}
	}
	return c
}

func TestAddController(t *testing.T) {
	c := testCluster(t)

	if err := c.AddController(Controller{Name: "C1"}); !errors.Is(err, util.ErrInstanceExists) {
		t.Errorf("duplicate AddController error = %v, want ErrInstanceExists", err)
	}
	if err := c.AddController(Controller{}); !errors.Is(err, util.ErrGeneric) {
		t.Errorf("unnamed AddController error = %v, want ErrGeneric", err)
	}

	names := c.Names()
	if len(names) != 2 || names[0] != "C1" || names[1] != "C2" {
		t.Errorf("Names() = %v, want [C1 C2]", names)
	}
	if _, err := c.Controller("C9"); !errors.Is(err, util.ErrUnknownController) {
		t.Errorf("Controller(C9) error = %v, want ErrUnknownController", err)
	}
}

func TestConnectionState(t *testing.T) {
	c := testCluster(t)
	if c.IsConnected("C1") {
		t.Error("new controller reported connected")
	}
	c.SetConnected("C1", true)
	if !c.IsConnected("C1") {
		t.Error("IsConnected(C1) = false after SetConnected(true)")
	}
	c.SetConnected("C9", true)
	if c.IsConnected("C9") {
		t.Error("unknown controller reported connected")
	}
}

func TestIsSupported(t *testing.T) {
	c := testCluster(t)
	tests := []struct {
		ctrlr string
		kt    kv.KeyType
		attr  string
		want  bool
	}{
		{"C1", kv.KtVbridge, "host_addr", false},
		{"C1", kv.KtVbridge, "description", true},
		{"C1", kv.KtVtn, "host_addr", true},
		{"C2", kv.KtVbridge, "host_addr", true},
		{"C9", kv.KtVtn, "description", false},
	}
	for _, tt := range tests {
		if got := c.IsSupported(tt.ctrlr, tt.kt, tt.attr); got != tt.want {
			t.Errorf("IsSupported(%s, %s, %s) = %v, want %v", tt.ctrlr, tt.kt, tt.attr, got, tt.want)
		}
	}
}

func TestTxAndAuditExclusive(t *testing.T) {
	c := testCluster(t)

	if err := c.BeginTx(); err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := c.BeginTx(); !errors.Is(err, util.ErrTxInProgress) {
		t.Errorf("second BeginTx error = %v, want ErrTxInProgress", err)
	}
	if err := c.BeginAudit("C1"); !errors.Is(err, util.ErrTxInProgress) {
		t.Errorf("BeginAudit during tx error = %v, want ErrTxInProgress", err)
	}
	c.EndTx()

	if err := c.BeginAudit("C9"); !errors.Is(err, util.ErrUnknownController) {
		t.Errorf("BeginAudit(C9) error = %v, want ErrUnknownController", err)
	}
	if err := c.BeginAudit("C1"); err != nil {
		t.Fatalf("BeginAudit: %v", err)
	}
	if got := c.Auditing(); got != "C1" {
		t.Errorf("Auditing() = %q, want %q", got, "C1")
	}
	c.EndAudit()
	if got := c.Auditing(); got != "" {
		t.Errorf("Auditing() after EndAudit = %q, want empty", got)
	}
}

func TestNewSession(t *testing.T) {
	c := NewClusterContext()
	a, b := c.NewSession(), c.NewSession()
	if b.SessionID != a.SessionID+1 || b.ConfigID != a.ConfigID+1 {
		t.Errorf("sessions not sequential: %+v then %+v", a, b)
	}
	if a.TxID == "" || a.TxID == b.TxID {
		t.Errorf("TxID not unique: %q, %q", a.TxID, b.TxID)
	}
}
