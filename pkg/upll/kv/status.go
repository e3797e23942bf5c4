package kv

import "fmt"

// ConfigStatus is the apply status of an attribute or a row.
type ConfigStatus int

const (
	CsUnknown ConfigStatus = iota
	CsNotApplied
	CsApplied
	CsPartiallyApplied
	CsInvalid
	CsNotSupported
)

var statusNames = map[ConfigStatus]string{
	CsUnknown:          "UNKNOWN",
	CsNotApplied:       "NOT_APPLIED",
	CsApplied:          "APPLIED",
	CsPartiallyApplied: "PARTIALLY_APPLIED",
	CsInvalid:          "INVALID",
	CsNotSupported:     "NOT_SUPPORTED",
}

func (c ConfigStatus) String() string {
	if s, ok := statusNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ConfigStatus(%d)", int(c))
}

// ParseConfigStatus is the inverse of String. An empty string is UNKNOWN.
func ParseConfigStatus(s string) (ConfigStatus, error) {
	if s == "" {
		return CsUnknown, nil
	}
	for cs, name := range statusNames {
		if name == s {
			return cs, nil
		}
	}
	return CsUnknown, fmt.Errorf("unknown config status %q", s)
}

// FoldStatus combines two per-controller statuses into one consolidated
// status. It is pure, commutative and associative:
//
//	INVALID dominates everything
//	equal inputs are returned unchanged
//	PARTIALLY_APPLIED absorbs anything but INVALID
//	APPLIED with anything else gives PARTIALLY_APPLIED
//	NOT_APPLIED with UNKNOWN or NOT_SUPPORTED gives NOT_APPLIED
//	UNKNOWN with NOT_SUPPORTED gives UNKNOWN
func FoldStatus(prev, next ConfigStatus) ConfigStatus {
	switch {
	case prev == next:
		return prev
	case prev == CsInvalid || next == CsInvalid:
		return CsInvalid
	case prev == CsPartiallyApplied || next == CsPartiallyApplied:
		return CsPartiallyApplied
	case prev == CsApplied || next == CsApplied:
		return CsPartiallyApplied
	case prev == CsNotApplied || next == CsNotApplied:
		return CsNotApplied
	}
	return CsUnknown
}

// Consolidate folds the statuses of every controller holding a copy of a
// row. With no controller reported yet the result is UNKNOWN.
func Consolidate(statuses ...ConfigStatus) ConfigStatus {
	if len(statuses) == 0 {
		return CsUnknown
	}
	cs := statuses[0]
	for _, s := range statuses[1:] {
		cs = FoldStatus(cs, s)
	}
	return cs
}
