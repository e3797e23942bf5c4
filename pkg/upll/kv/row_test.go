package kv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/upll/pkg/util"
)

func TestPhaseOp(t *testing.T) {
	tests := []struct {
		phase UpdateCtrlrPhase
		want  Operation
	}{
		{PhaseInit, OpInvalid},
		{PhaseCreate, OpCreate},
		{PhaseUpdate, OpUpdate},
		{PhaseDelete, OpDelete},
		{PhaseDeleteVnode, OpDelete},
		{PhaseDeleteVtn, OpDelete},
	}
	for _, tt := range tests {
		if got := tt.phase.Op(); got != tt.want {
			t.Errorf("%s.Op() = %s, want %s", tt.phase, got, tt.want)
		}
	}
}

func TestKeyTypeHierarchy(t *testing.T) {
	if KtVbrIf.Parent() != KtVbridge || KtVbridge.Parent() != KtVtn || KtVtn.Parent() != KtRoot {
		t.Error("unexpected key type hierarchy")
	}
	kt, err := ParseKeyType("vbridge")
	if err != nil || kt != KtVbridge {
		t.Errorf("ParseKeyType(vbridge) = %v, %v", kt, err)
	}
	if _, err := ParseKeyType("root"); err == nil {
		t.Error("root must not be parseable")
	}
	dt, err := ParseDataType("running")
	if err != nil || dt != Running {
		t.Errorf("ParseDataType(running) = %v, %v", dt, err)
	}
}

func TestConfigKeyValDup(t *testing.T) {
	r := NewConfigKeyVal(KtVbridge, "vtn1", "vbr1").SetAttr("description", "blue")
	r.CtrlrDom = CtrlrDom{Ctrlr: "C1", Domain: "d1"}
	r.Main().AttrCs["description"] = CsApplied
	r.Flags = FlagAuditDirty

	d := r.Dup()
	if !cmp.Equal(r.Key, d.Key) || d.CtrlrDom != r.CtrlrDom || d.Flags != r.Flags {
		t.Fatalf("Dup lost identity: %v vs %v", d, r)
	}
	d.SetAttr("description", "red")
	d.Key[1] = "vbr2"
	if r.Attr("description") != "blue" || r.Key[1] != "vbr1" {
		t.Error("Dup shares storage with the original")
	}
}

func TestConfigKeyValChain(t *testing.T) {
	a := NewConfigKeyVal(KtVtn, "a")
	a.Append(NewConfigKeyVal(KtVtn, "b"))
	a.Append(NewConfigKeyVal(KtVtn, "c"))

	if a.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", a.Len())
	}
	var keys []string
	_ = a.Each(func(r *ConfigKeyVal) error {
		keys = append(keys, r.KeyString())
		return nil
	})
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("Each order mismatch (-want +got):\n%s", diff)
	}

	dup := a.DupChain()
	dup.Next.Key[0] = "z"
	if a.Next.Key[0] != "b" {
		t.Error("DupChain shares rows with the original")
	}

	stop := errors.New("stop")
	n := 0
	err := a.Each(func(*ConfigKeyVal) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("Each did not stop on error: n=%d err=%v", n, err)
	}
}

func TestRequireCtrlrDom(t *testing.T) {
	r := NewConfigKeyVal(KtVtn, "vtn1")
	if _, err := r.RequireCtrlrDom(); !errors.Is(err, util.ErrGeneric) {
		t.Errorf("RequireCtrlrDom() error = %v, want ErrGeneric", err)
	}
	r.CtrlrDom = CtrlrDom{Ctrlr: "C1", Domain: "default"}
	cd, err := r.RequireCtrlrDom()
	if err != nil || cd.Ctrlr != "C1" {
		t.Errorf("RequireCtrlrDom() = %v, %v", cd, err)
	}
}

func TestIdentityString(t *testing.T) {
	r := NewConfigKeyVal(KtVtn, "vtn1")
	r.CtrlrDom = CtrlrDom{Ctrlr: "C1", Domain: "d1"}
	if got := r.IdentityString(TblMain); got != "vtn1" {
		t.Errorf("main identity = %q", got)
	}
	if got := r.IdentityString(TblCtrlr); got != "vtn1|C1|d1" {
		t.Errorf("ctrlr identity = %q", got)
	}
}

func TestSameConfigAndStatus(t *testing.T) {
	a := NewConfigKeyVal(KtVtn, "vtn1").SetAttr("description", "x")
	b := a.Dup()
	if !SameConfig(a, b) || !SameStatus(a, b) {
		t.Fatal("copies should compare equal")
	}
	b.Main().Cs = CsApplied
	if !SameConfig(a, b) {
		t.Error("status change must not affect SameConfig")
	}
	if SameStatus(a, b) {
		t.Error("SameStatus should see the row status change")
	}
	b.SetAttr("description", "y")
	if SameConfig(a, b) {
		t.Error("attribute change not detected")
	}
}

func TestSetAllStatusKeepsNotSupported(t *testing.T) {
	v := NewConfigVal(ValMain)
	v.Attrs["description"] = "x"
	v.Attrs["admin_status"] = "up"
	v.AttrCs["admin_status"] = CsNotSupported
	v.SetAllStatus(CsApplied)
	if v.Cs != CsApplied || v.AttrCs["description"] != CsApplied {
		t.Errorf("status not applied: %+v", v)
	}
	if v.AttrCs["admin_status"] != CsNotSupported {
		t.Errorf("NOT_SUPPORTED attribute overwritten: %s", v.AttrCs["admin_status"])
	}
}

func TestCtrlrSet(t *testing.T) {
	s := CtrlrSet{}
	s.Add("C2")
	s.Add("C1")
	s.Add("")
	other := CtrlrSet{}
	other.Add("C3")
	s.Merge(other)
	if diff := cmp.Diff([]string{"C1", "C2", "C3"}, s.Sorted()); diff != "" {
		t.Errorf("Sorted mismatch (-want +got):\n%s", diff)
	}
	if !s.Has("C3") || s.Has("") {
		t.Error("membership wrong")
	}
}
