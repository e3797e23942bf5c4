// Package dal is the persistence boundary: per-snapshot tables of rows with
// key reads and writes, and the diff of one table between two snapshots.
package dal

import (
	"context"

	"github.com/newtron-network/upll/pkg/upll/kv"
)

// ReadOpt refines a Read.
type ReadOpt struct {
	// MatchCtrlr keeps only rows whose controller equals the match row's
	// controller, and its domain when the match row sets one.
	MatchCtrlr bool
}

// DiffSpec selects the rows whose presence or content differs between two
// snapshots of one table. Ref is the reference snapshot: CREATE reports rows
// only in Ref, DELETE rows only in Other, UPDATE rows in both whose
// configuration differs.
type DiffSpec struct {
	KeyType kv.KeyType
	Table   kv.TableType
	Ref     kv.DataType
	Other   kv.DataType
	Op      kv.Operation

	// Ctrlr restricts the diff to rows owned by one controller.
	Ctrlr string

	// WithAuditFlag also reports, for UPDATE, rows whose Ref copy carries
	// kv.FlagAuditDirty even when the configuration is equal.
	WithAuditFlag bool

	// CompareStatus also reports, for UPDATE, rows whose statuses differ.
	CompareStatus bool
}

// DiffRecord is one changed row. For UPDATE, Curr is the Ref copy and Prev
// the Other copy. For CREATE only Curr is set; for DELETE Curr holds the
// Other copy.
type DiffRecord struct {
	Op   kv.Operation
	Curr *kv.ConfigKeyVal
	Prev *kv.ConfigKeyVal
}

// Cursor iterates diff records in identity order. Records are owned by the
// caller once returned.
type Cursor interface {
	Next() bool
	Record() DiffRecord
	Err() error
	// Reset rewinds the cursor. It may be called once.
	Reset() error
	Close() error
}

// Store answers key reads/writes and snapshot diffs.
type Store interface {
	// Read returns the chain of rows of kt whose key starts with match.Key.
	// It fails with util.ErrNoSuchInstance when nothing matches.
	Read(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal, opt ReadOpt) (*kv.ConfigKeyVal, error)
	// Create fails with util.ErrInstanceExists when the identity is taken.
	Create(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error
	// Update replaces a stored row; util.ErrNoSuchInstance when absent.
	Update(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error
	// Delete removes a stored row; util.ErrNoSuchInstance when absent.
	Delete(ctx context.Context, dt kv.DataType, tbl kv.TableType, row *kv.ConfigKeyVal) error
	// Diff fails with util.ErrNoSuchInstance when no row differs.
	Diff(ctx context.Context, spec DiffSpec) (Cursor, error)
	// CopyTable replaces table tbl of kt in snapshot to with its content in from.
	CopyTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, from, to kv.DataType) error
	// ClearTable removes all rows, or only those of ctrlr when it is set.
	ClearTable(ctx context.Context, kt kv.KeyType, tbl kv.TableType, dt kv.DataType, ctrlr string) error
}
