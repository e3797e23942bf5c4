// Package kv defines the configuration data model shared by the data-access
// layer, the southbound drivers and the per-key-type managers: snapshots,
// tables, operations, transaction phases, key types and the row type.
package kv

import (
	"fmt"
	"strings"
)

// DataType identifies one of the parallel copies of the configuration graph.
type DataType int

const (
	Candidate DataType = iota
	Running
	Startup
	Audit
	State
	Import
)

var dataTypeNames = map[DataType]string{
	Candidate: "CANDIDATE",
	Running:   "RUNNING",
	Startup:   "STARTUP",
	Audit:     "AUDIT",
	State:     "STATE",
	Import:    "IMPORT",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ParseDataType accepts the upper-case or lower-case snapshot name.
func ParseDataType(s string) (DataType, error) {
	for dt, name := range dataTypeNames {
		if strings.EqualFold(name, s) {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown datatype %q", s)
}

// TableType selects one of the tables a key type owns.
type TableType int

const (
	TblMain TableType = iota
	TblCtrlr
	TblConvert
	TblRename
)

func (t TableType) String() string {
	switch t {
	case TblMain:
		return "MAIN"
	case TblCtrlr:
		return "CTRLR"
	case TblConvert:
		return "CONVERT"
	case TblRename:
		return "RENAME"
	}
	return fmt.Sprintf("TableType(%d)", int(t))
}

// PerController reports whether rows of the table are identified by their
// controller-domain in addition to the key.
func (t TableType) PerController() bool {
	return t == TblCtrlr || t == TblConvert || t == TblRename
}

// Operation is a request or diff operation.
type Operation int

const (
	OpInvalid Operation = iota
	OpCreate
	OpUpdate
	OpDelete
	OpRead
	OpReadSiblingBegin
	OpReadSibling
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpRead:
		return "read"
	case OpReadSiblingBegin:
		return "read-sibling-begin"
	case OpReadSibling:
		return "read-sibling"
	}
	return "invalid"
}

// UpdateCtrlrPhase is the stage of a transaction applied to one key type.
type UpdateCtrlrPhase int

const (
	PhaseInit UpdateCtrlrPhase = iota
	PhaseCreate
	PhaseUpdate
	PhaseDelete
	PhaseDeleteVnode
	PhaseDeleteVtn
)

// Op maps the phase to the diff/driver operation. Both delete sub-phases map
// to OpDelete; PhaseInit has no operation.
func (p UpdateCtrlrPhase) Op() Operation {
	switch p {
	case PhaseCreate:
		return OpCreate
	case PhaseUpdate:
		return OpUpdate
	case PhaseDelete, PhaseDeleteVnode, PhaseDeleteVtn:
		return OpDelete
	}
	return OpInvalid
}

func (p UpdateCtrlrPhase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseCreate:
		return "create"
	case PhaseUpdate:
		return "update"
	case PhaseDelete:
		return "delete"
	case PhaseDeleteVnode:
		return "delete-vnode"
	case PhaseDeleteVtn:
		return "delete-vtn"
	}
	return fmt.Sprintf("UpdateCtrlrPhase(%d)", int(p))
}

// KeyType identifies a virtual-network object type.
type KeyType int

const (
	KtRoot KeyType = iota
	KtVtn
	KtVbridge
	KtVbrIf
)

type keyTypeInfo struct {
	name    string
	parent  KeyType
	keyLen  int
	keyName []string
}

var keyTypes = map[KeyType]keyTypeInfo{
	KtRoot:    {name: "root", parent: KtRoot},
	KtVtn:     {name: "vtn", parent: KtRoot, keyLen: 1, keyName: []string{"vtn_name"}},
	KtVbridge: {name: "vbridge", parent: KtVtn, keyLen: 2, keyName: []string{"vtn_name", "vbr_name"}},
	KtVbrIf:   {name: "vbr_if", parent: KtVbridge, keyLen: 3, keyName: []string{"vtn_name", "vbr_name", "if_name"}},
}

func (k KeyType) String() string {
	if info, ok := keyTypes[k]; ok {
		return info.name
	}
	return fmt.Sprintf("KeyType(%d)", int(k))
}

// Parent returns the key type that owns instances of k.
func (k KeyType) Parent() KeyType {
	return keyTypes[k].parent
}

// KeyLen is the number of key components identifying an instance.
func (k KeyType) KeyLen() int {
	return keyTypes[k].keyLen
}

// KeyNames returns the names of the key components.
func (k KeyType) KeyNames() []string {
	return keyTypes[k].keyName
}

// ParseKeyType resolves a key type by name ("vtn", "vbridge", "vbr_if").
func ParseKeyType(s string) (KeyType, error) {
	for kt, info := range keyTypes {
		if kt != KtRoot && info.name == s {
			return kt, nil
		}
	}
	return KtRoot, fmt.Errorf("unknown key type %q", s)
}
