package kv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/newtron-network/upll/pkg/util"
)

// KeySep joins key components in identity strings and storage keys.
const KeySep = "|"

// ValKind tags a value block chained to a row.
type ValKind int

const (
	ValMain ValKind = iota
	ValState
	ValOld
)

// RowFlag carries per-row bookkeeping bits that travel with the row through
// storage.
type RowFlag uint32

const (
	// FlagAuditDirty marks a RUNNING row whose controller did not confirm
	// the last commit; the next audit of that controller must resend it.
	FlagAuditDirty RowFlag = 1 << iota
)

// ConfigVal is one value block of a row.
type ConfigVal struct {
	Kind   ValKind
	Attrs  map[string]string
	AttrCs map[string]ConfigStatus
	Cs     ConfigStatus
}

// NewConfigVal returns an empty value block of the given kind.
func NewConfigVal(kind ValKind) *ConfigVal {
	return &ConfigVal{
		Kind:   kind,
		Attrs:  map[string]string{},
		AttrCs: map[string]ConfigStatus{},
	}
}

// Dup deep-copies the value block.
func (v *ConfigVal) Dup() *ConfigVal {
	if v == nil {
		return nil
	}
	out := &ConfigVal{
		Kind:   v.Kind,
		Cs:     v.Cs,
		Attrs:  make(map[string]string, len(v.Attrs)),
		AttrCs: make(map[string]ConfigStatus, len(v.AttrCs)),
	}
	for k, a := range v.Attrs {
		out.Attrs[k] = a
	}
	for k, cs := range v.AttrCs {
		out.AttrCs[k] = cs
	}
	return out
}

// AttrNames returns the attribute names in lexical order.
func (v *ConfigVal) AttrNames() []string {
	names := make([]string, 0, len(v.Attrs))
	for k := range v.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetAllStatus sets the row status and the status of every attribute that
// is not NOT_SUPPORTED.
func (v *ConfigVal) SetAllStatus(cs ConfigStatus) {
	v.Cs = cs
	for name := range v.Attrs {
		if v.AttrCs[name] == CsNotSupported {
			continue
		}
		v.AttrCs[name] = cs
	}
}

// ConfigKeyVal is one instance of one key type: a key plus chained value
// blocks. Next links sibling rows returned by reads and diffs.
type ConfigKeyVal struct {
	KeyType  KeyType
	Key      []string
	Vals     []*ConfigVal
	CtrlrDom CtrlrDom
	Flags    RowFlag
	Next     *ConfigKeyVal
}

// NewConfigKeyVal builds a row with an empty main value block.
func NewConfigKeyVal(kt KeyType, key ...string) *ConfigKeyVal {
	return &ConfigKeyVal{
		KeyType: kt,
		Key:     append([]string(nil), key...),
		Vals:    []*ConfigVal{NewConfigVal(ValMain)},
	}
}

// Main returns the main value block, creating it when absent.
func (r *ConfigKeyVal) Main() *ConfigVal {
	for _, v := range r.Vals {
		if v.Kind == ValMain {
			return v
		}
	}
	v := NewConfigVal(ValMain)
	r.Vals = append([]*ConfigVal{v}, r.Vals...)
	return v
}

// Val returns the first value block of the given kind or nil.
func (r *ConfigKeyVal) Val(kind ValKind) *ConfigVal {
	for _, v := range r.Vals {
		if v.Kind == kind {
			return v
		}
	}
	return nil
}

// AppendVal chains another value block to the row.
func (r *ConfigKeyVal) AppendVal(v *ConfigVal) {
	r.Vals = append(r.Vals, v)
}

// DropVal removes every value block of the given kind.
func (r *ConfigKeyVal) DropVal(kind ValKind) {
	kept := r.Vals[:0]
	for _, v := range r.Vals {
		if v.Kind != kind {
			kept = append(kept, v)
		}
	}
	r.Vals = kept
}

// SetAttr sets a main attribute.
func (r *ConfigKeyVal) SetAttr(name, value string) *ConfigKeyVal {
	r.Main().Attrs[name] = value
	return r
}

// Attr returns a main attribute.
func (r *ConfigKeyVal) Attr(name string) string {
	return r.Main().Attrs[name]
}

// Dup deep-copies this row; the sibling chain is not copied.
func (r *ConfigKeyVal) Dup() *ConfigKeyVal {
	if r == nil {
		return nil
	}
	out := &ConfigKeyVal{
		KeyType:  r.KeyType,
		Key:      append([]string(nil), r.Key...),
		CtrlrDom: r.CtrlrDom,
		Flags:    r.Flags,
		Vals:     make([]*ConfigVal, 0, len(r.Vals)),
	}
	for _, v := range r.Vals {
		out.Vals = append(out.Vals, v.Dup())
	}
	return out
}

// DupChain deep-copies the row and all its siblings.
func (r *ConfigKeyVal) DupChain() *ConfigKeyVal {
	var head, tail *ConfigKeyVal
	for cur := r; cur != nil; cur = cur.Next {
		d := cur.Dup()
		if head == nil {
			head = d
		} else {
			tail.Next = d
		}
		tail = d
	}
	return head
}

// Append adds other (and its siblings) to the end of the chain.
func (r *ConfigKeyVal) Append(other *ConfigKeyVal) {
	cur := r
	for cur.Next != nil {
		cur = cur.Next
	}
	cur.Next = other
}

// Len counts the rows in the chain.
func (r *ConfigKeyVal) Len() int {
	n := 0
	for cur := r; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Each calls fn for every row in the chain until fn returns an error.
func (r *ConfigKeyVal) Each(fn func(*ConfigKeyVal) error) error {
	for cur := r; cur != nil; cur = cur.Next {
		if err := fn(cur); err != nil {
			return err
		}
	}
	return nil
}

// RequireCtrlrDom returns the controller-domain tag or fails when absent.
func (r *ConfigKeyVal) RequireCtrlrDom() (CtrlrDom, error) {
	if r == nil || r.CtrlrDom.IsZero() {
		return CtrlrDom{}, fmt.Errorf("%s: missing controller-domain: %w", r.describe(), util.ErrGeneric)
	}
	return r.CtrlrDom, nil
}

// KeyString joins the key components.
func (r *ConfigKeyVal) KeyString() string {
	return strings.Join(r.Key, KeySep)
}

// IdentityString identifies the row inside one table. Per-controller tables
// append the controller and domain to the key.
func (r *ConfigKeyVal) IdentityString(tbl TableType) string {
	if !tbl.PerController() {
		return r.KeyString()
	}
	return r.KeyString() + KeySep + r.CtrlrDom.Ctrlr + KeySep + r.CtrlrDom.Domain
}

// HasKeyPrefix reports whether the row's key starts with prefix.
func (r *ConfigKeyVal) HasKeyPrefix(prefix []string) bool {
	if len(prefix) > len(r.Key) {
		return false
	}
	for i, p := range prefix {
		if r.Key[i] != p {
			return false
		}
	}
	return true
}

// SameConfig reports whether two rows carry identical main attributes.
func SameConfig(a, b *ConfigKeyVal) bool {
	am, bm := a.Main().Attrs, b.Main().Attrs
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		if w, ok := bm[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// SameStatus reports whether two rows carry identical row and attribute
// statuses.
func SameStatus(a, b *ConfigKeyVal) bool {
	am, bm := a.Main(), b.Main()
	if am.Cs != bm.Cs || len(am.AttrCs) != len(bm.AttrCs) {
		return false
	}
	for k, v := range am.AttrCs {
		if bm.AttrCs[k] != v {
			return false
		}
	}
	return true
}

func (r *ConfigKeyVal) describe() string {
	if r == nil {
		return "<nil row>"
	}
	return r.KeyType.String() + " " + r.KeyString()
}

func (r *ConfigKeyVal) String() string {
	var sb strings.Builder
	sb.WriteString(r.describe())
	if !r.CtrlrDom.IsZero() {
		sb.WriteString(" @" + r.CtrlrDom.String())
	}
	m := r.Main()
	if len(m.Attrs) > 0 {
		parts := make([]string, 0, len(m.Attrs))
		for _, name := range m.AttrNames() {
			parts = append(parts, name+"="+m.Attrs[name])
		}
		sb.WriteString(" {" + strings.Join(parts, ", ") + "}")
	}
	sb.WriteString(" cs=" + m.Cs.String())
	return sb.String()
}
