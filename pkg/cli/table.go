package cli

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Table prints rows in aligned columns under their headers and a dash
// divider. Rows are buffered until Flush; a table without rows prints
// nothing. Empty cells print as "-". Column widths count visible runes
// only, so cells colored with Green, Status and friends stay aligned.
type Table struct {
	out     io.Writer
	headers []string
	indent  string
	rows    [][]string
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to out.
func NewTableTo(out io.Writer, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// Indent sets a string printed at the start of every line.
func (t *Table) Indent(prefix string) *Table {
	t.indent = prefix
	return t
}

// Row buffers one row. Missing trailing cells print as "-"; extra cells
// are dropped.
func (t *Table) Row(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		row[i] = "-"
		if i < len(values) && values[i] != "" {
			row[i] = values[i]
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of buffered rows.
func (t *Table) Len() int { return len(t.rows) }

// Flush writes the headers and the buffered rows, then empties the buffer.
func (t *Table) Flush() error {
	if len(t.rows) == 0 {
		return nil
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if n := visibleLen(c); n > widths[i] {
				widths[i] = n
			}
		}
	}

	divider := make([]string, len(t.headers))
	for i, h := range t.headers {
		divider[i] = strings.Repeat("-", visibleLen(h))
	}

	var b strings.Builder
	t.line(&b, t.headers, widths)
	t.line(&b, divider, widths)
	for _, row := range t.rows {
		t.line(&b, row, widths)
	}
	t.rows = nil
	_, err := io.WriteString(t.out, b.String())
	return err
}

func (t *Table) line(b *strings.Builder, cells []string, widths []int) {
	b.WriteString(t.indent)
	for i, c := range cells {
		b.WriteString(c)
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-visibleLen(c)+2))
		}
	}
	b.WriteByte('\n')
}

// visibleLen counts the runes of s outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < '@' || s[j] > '~') {
				j++
			}
			i = j + 1
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return n
}
