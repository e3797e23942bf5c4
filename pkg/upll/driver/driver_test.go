package driver

import (
	"testing"

	"github.com/newtron-network/upll/pkg/upll/kv"
)

func TestDomainTag(t *testing.T) {
	tests := []struct {
		domain string
		leaf   bool
		want   string
	}{
		{"dom1", false, "dom1"},
		{"dom1", true, "(PF_LEAF)dom1"},
		{"", true, "(PF_LEAF)"},
	}
	for _, tt := range tests {
		got := DomainTag(tt.domain, tt.leaf)
		if got != tt.want {
			t.Errorf("DomainTag(%q, %v) = %q, want %q", tt.domain, tt.leaf, got, tt.want)
		}
		domain, leaf := SplitDomainTag(got)
		if domain != tt.domain || leaf != tt.leaf {
			t.Errorf("SplitDomainTag(%q) = (%q, %v), want (%q, %v)", got, domain, leaf, tt.domain, tt.leaf)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code ResultCode
		want kv.ConfigStatus
		hard bool
	}{
		{ResultSuccess, kv.CsApplied, false},
		{ResultCtrlrDisconnected, kv.CsUnknown, false},
		{ResultRejected, kv.CsInvalid, true},
		{ResultFailure, kv.CsInvalid, true},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.code); got != tt.want {
			t.Errorf("StatusFor(%s) = %s, want %s", tt.code, got, tt.want)
		}
		if got := tt.code.Hard(); got != tt.hard {
			t.Errorf("%s.Hard() = %v, want %v", tt.code, got, tt.hard)
		}
	}
}

func TestTableName(t *testing.T) {
	if got := TableName(kv.KtVbrIf); got != "VBR_IF" {
		t.Errorf("TableName(vbr_if) = %q, want %q", got, "VBR_IF")
	}
	row := kv.NewConfigKeyVal(kv.KtVbrIf, "vtn1", "vbr1", "if1")
	if got := EntryKey("(PF_LEAF)d1", row); got != "(PF_LEAF)d1|vtn1|vbr1|if1" {
		t.Errorf("EntryKey = %q", got)
	}
}
