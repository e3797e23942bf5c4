package kv

import "sort"

// CtrlrDom identifies the southbound controller and the domain within it
// that owns a row.
type CtrlrDom struct {
	Ctrlr  string `json:"controller"`
	Domain string `json:"domain"`
}

// IsZero reports whether no controller is set.
func (c CtrlrDom) IsZero() bool {
	return c.Ctrlr == ""
}

func (c CtrlrDom) String() string {
	if c.Domain == "" {
		return c.Ctrlr
	}
	return c.Ctrlr + "/" + c.Domain
}

// CtrlrSet is the set of controllers touched by a transaction phase.
type CtrlrSet map[string]struct{}

// Add inserts ctrlr; empty names are ignored.
func (s CtrlrSet) Add(ctrlr string) {
	if ctrlr != "" {
		s[ctrlr] = struct{}{}
	}
}

// Has reports membership.
func (s CtrlrSet) Has(ctrlr string) bool {
	_, ok := s[ctrlr]
	return ok
}

// Merge adds every member of other.
func (s CtrlrSet) Merge(other CtrlrSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s CtrlrSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
