package kv

import (
	"fmt"
	"strconv"
	"strings"
)

// Flat hash layout shared by the Redis store and the Redis driver. Each row
// is one hash; value blocks are flattened with a field prefix.
const (
	fieldAttr   = "a:"
	fieldState  = "s:"
	fieldAttrCs = "cs:"
	fieldCs     = "cs"
	fieldCtrlr  = "ctrlr"
	fieldDomain = "domain"
	fieldFlags  = "flags"
)

// EncodeFields flattens the main and state value blocks of one row. The key
// is not part of the encoding; callers place it in the hash name.
func EncodeFields(r *ConfigKeyVal) map[string]string {
	m := r.Main()
	fields := make(map[string]string, 2*len(m.Attrs)+4)
	for name, v := range m.Attrs {
		fields[fieldAttr+name] = v
	}
	for name, cs := range m.AttrCs {
		fields[fieldAttrCs+name] = cs.String()
	}
	fields[fieldCs] = m.Cs.String()
	if st := r.Val(ValState); st != nil {
		for name, v := range st.Attrs {
			fields[fieldState+name] = v
		}
	}
	if !r.CtrlrDom.IsZero() {
		fields[fieldCtrlr] = r.CtrlrDom.Ctrlr
		fields[fieldDomain] = r.CtrlrDom.Domain
	}
	if r.Flags != 0 {
		fields[fieldFlags] = strconv.FormatUint(uint64(r.Flags), 10)
	}
	return fields
}

// DecodeFields rebuilds a row from its flattened hash.
func DecodeFields(kt KeyType, key []string, fields map[string]string) (*ConfigKeyVal, error) {
	r := NewConfigKeyVal(kt, key...)
	m := r.Main()
	var st *ConfigVal
	for f, v := range fields {
		switch {
		case f == fieldCs:
			cs, err := ParseConfigStatus(v)
			if err != nil {
				return nil, fmt.Errorf("decoding %s %s: %w", kt, r.KeyString(), err)
			}
			m.Cs = cs
		case f == fieldCtrlr:
			r.CtrlrDom.Ctrlr = v
		case f == fieldDomain:
			r.CtrlrDom.Domain = v
		case f == fieldFlags:
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("decoding flags of %s %s: %w", kt, r.KeyString(), err)
			}
			r.Flags = RowFlag(n)
		case strings.HasPrefix(f, fieldAttrCs):
			cs, err := ParseConfigStatus(v)
			if err != nil {
				return nil, fmt.Errorf("decoding %s %s: %w", kt, r.KeyString(), err)
			}
			m.AttrCs[strings.TrimPrefix(f, fieldAttrCs)] = cs
		case strings.HasPrefix(f, fieldAttr):
			m.Attrs[strings.TrimPrefix(f, fieldAttr)] = v
		case strings.HasPrefix(f, fieldState):
			if st == nil {
				st = NewConfigVal(ValState)
				r.AppendVal(st)
			}
			st.Attrs[strings.TrimPrefix(f, fieldState)] = v
		}
		// Unknown fields (e.g. the SONiC "NULL" sentinel) are ignored.
	}
	return r, nil
}
