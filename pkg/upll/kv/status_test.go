package kv

import "testing"

var allStatuses = []ConfigStatus{
	CsUnknown, CsNotApplied, CsApplied, CsPartiallyApplied, CsInvalid, CsNotSupported,
}

func TestFoldStatus(t *testing.T) {
	tests := []struct {
		prev, next, want ConfigStatus
	}{
		{CsApplied, CsApplied, CsApplied},
		{CsApplied, CsNotApplied, CsPartiallyApplied},
		{CsNotApplied, CsApplied, CsPartiallyApplied},
		{CsApplied, CsInvalid, CsInvalid},
		{CsInvalid, CsNotApplied, CsInvalid},
		{CsPartiallyApplied, CsNotApplied, CsPartiallyApplied},
		{CsApplied, CsUnknown, CsPartiallyApplied},
		{CsNotApplied, CsUnknown, CsNotApplied},
		{CsNotSupported, CsNotSupported, CsNotSupported},
		{CsNotSupported, CsApplied, CsPartiallyApplied},
		{CsNotSupported, CsUnknown, CsUnknown},
		{CsUnknown, CsUnknown, CsUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.prev.String()+"+"+tt.next.String(), func(t *testing.T) {
			if got := FoldStatus(tt.prev, tt.next); got != tt.want {
				t.Errorf("FoldStatus(%s, %s) = %s, want %s", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestFoldStatusProperties(t *testing.T) {
	for _, a := range allStatuses {
		for _, b := range allStatuses {
			once := FoldStatus(a, b)
			if again := FoldStatus(a, b); again != once {
				t.Errorf("FoldStatus(%s, %s) not stable: %s then %s", a, b, once, again)
			}
			if FoldStatus(b, a) != once {
				t.Errorf("FoldStatus not commutative for %s, %s", a, b)
			}
			if FoldStatus(once, b) != once {
				t.Errorf("re-folding %s into %s changed the result", b, once)
			}
			for _, c := range allStatuses {
				left := FoldStatus(FoldStatus(a, b), c)
				right := FoldStatus(a, FoldStatus(b, c))
				if left != right {
					t.Errorf("FoldStatus not associative for %s, %s, %s: %s vs %s", a, b, c, left, right)
				}
			}
		}
	}
}

func TestConsolidate(t *testing.T) {
	if got := Consolidate(); got != CsUnknown {
		t.Errorf("Consolidate() = %s, want UNKNOWN", got)
	}
	if got := Consolidate(CsApplied); got != CsApplied {
		t.Errorf("Consolidate(APPLIED) = %s", got)
	}
	if got := Consolidate(CsApplied, CsApplied, CsApplied); got != CsApplied {
		t.Errorf("all applied = %s, want APPLIED", got)
	}
	if got := Consolidate(CsApplied, CsUnknown); got != CsPartiallyApplied {
		t.Errorf("applied + disconnected = %s, want PARTIALLY_APPLIED", got)
	}
	if got := Consolidate(CsApplied, CsNotApplied, CsInvalid); got != CsInvalid {
		t.Errorf("with invalid = %s, want INVALID", got)
	}
}

func TestParseConfigStatus(t *testing.T) {
	for _, cs := range allStatuses {
		got, err := ParseConfigStatus(cs.String())
		if err != nil {
			t.Fatalf("ParseConfigStatus(%q): %v", cs.String(), err)
		}
		if got != cs {
			t.Errorf("ParseConfigStatus(%q) = %s", cs.String(), got)
		}
	}
	if got, err := ParseConfigStatus(""); err != nil || got != CsUnknown {
		t.Errorf("ParseConfigStatus(\"\") = %s, %v", got, err)
	}
	if _, err := ParseConfigStatus("BOGUS"); err == nil {
		t.Error("expected error for BOGUS")
	}
}
