package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableTo(&buf, "KEY", "STATUS").Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "KEY", "STATUS").Indent("  ")
	tbl.Row("vtn1", "APPLIED")
	tbl.Row("vtn22", "INVALID")
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d", tbl.Len())
	}
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "  KEY    STATUS" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "  ---    ------" {
		t.Errorf("divider = %q", lines[1])
	}
	if lines[3] != "  vtn22  INVALID" {
		t.Errorf("row = %q", lines[3])
	}
	if tbl.Len() != 0 {
		t.Errorf("rows kept after Flush")
	}
}

func TestTable_EmptyAndMissingCells(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "KEY", "CONTROLLER", "DOMAIN")
	tbl.Row("vtn1", "")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[2] != "vtn1  -           -" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestTable_ColoredCellsAlign(t *testing.T) {
	colorEnabled = true
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "STATUS", "KEY")
	tbl.Row(Status("APPLIED"), "vtn1")
	tbl.Row("UNKNOWN", "vtn2")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[2] != Status("APPLIED")+"  vtn1" {
		t.Errorf("colored row = %q", lines[2])
	}
	if lines[3] != "UNKNOWN  vtn2" {
		t.Errorf("plain row = %q", lines[3])
	}
}

func TestVisibleLen(t *testing.T) {
	colorEnabled = true
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"vtn1", 4},
		{Red("INVALID"), 7},
		{Status("APPLIED") + Yellow(" *"), 9},
		{"vtn-é", 5},
	}
	for _, tt := range tests {
		if got := visibleLen(tt.in); got != tt.want {
			t.Errorf("visibleLen(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
