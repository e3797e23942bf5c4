// Package momgr holds the per-key-type managers. Each manager adapts the
// generic commit, audit and finalize engine to one key type's tables, and
// owns candidate editing for that key type.
package momgr

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/txutil"
)

// ObjectTypeManager is implemented once per key type.
type ObjectTypeManager interface {
	KeyType() kv.KeyType
	Tables() []kv.TableType

	GetChildConfigKey(parent *kv.ConfigKeyVal, name string) (*kv.ConfigKeyVal, error)
	DupConfigKeyVal(row *kv.ConfigKeyVal, tbl kv.TableType) (*kv.ConfigKeyVal, error)
	AdaptValToDriver(ctx context.Context, req, prev *kv.ConfigKeyVal, op kv.Operation, dt kv.DataType, tbl kv.TableType, ctrlr string) (notSendToDrv bool, err error)

	UpdateConfigStatus(row *kv.ConfigKeyVal, ctrlr string, cs kv.ConfigStatus)
	UpdateCtrlrConfigStatus(row *kv.ConfigKeyVal, cs kv.ConfigStatus)
	UpdateAuditConfigStatus(row *kv.ConfigKeyVal, cs kv.ConfigStatus)

	GetRenamedControllerKey(ctx context.Context, row *kv.ConfigKeyVal, dt kv.DataType, cd kv.CtrlrDom) (*kv.ConfigKeyVal, error)
	GetRenamedUncKey(ctx context.Context, row *kv.ConfigKeyVal, dt kv.DataType, ctrlr string) (*kv.ConfigKeyVal, error)

	TxUpdateController(ctx context.Context, p *TxUpdateParams) error
	AuditUpdateController(ctx context.Context, p *AuditParams) error
	TxCopyCandidateToRunning(ctx context.Context, p *CopyParams) error

	CreateCandidate(ctx context.Context, row *kv.ConfigKeyVal) error
	UpdateCandidate(ctx context.Context, row *kv.ConfigKeyVal) error
	DeleteCandidate(ctx context.Context, row *kv.ConfigKeyVal) error
	ReadConfig(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal) (*kv.ConfigKeyVal, error)
	SetRename(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom, ctrlrName string) error
	AddConverted(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom) error
	RemoveConverted(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom) error

	ImportAudit(ctx context.Context, drv driver.Driver, ctrlr string) error
	ClearAudit(ctx context.Context, ctrlr string) error
	CopySnapshot(ctx context.Context, from, to kv.DataType) error
}

// TxUpdateParams drives one commit phase of one key type.
type TxUpdateParams struct {
	Phase   kv.UpdateCtrlrPhase
	Session ctrlr.Session
	Util    *txutil.Util
	// Affected collects every controller a request was queued for.
	Affected kv.CtrlrSet
}

// DeleteFilter selects the rows the DELETE phase of an audit sends.
type DeleteFilter int

const (
	// DeleteFilterController deletes only rows owned by the audited
	// controller.
	DeleteFilterController DeleteFilter = iota
	// DeleteFilterAll deletes every row present only in the audit
	// snapshot.
	DeleteFilterAll
)

func (f DeleteFilter) String() string {
	if f == DeleteFilterAll {
		return "all"
	}
	return "controller"
}

// ParseDeleteFilter accepts "controller" (or "") and "all".
func ParseDeleteFilter(s string) (DeleteFilter, error) {
	switch s {
	case "", "controller":
		return DeleteFilterController, nil
	case "all":
		return DeleteFilterAll, nil
	}
	return 0, fmt.Errorf("unknown audit delete filter %q", s)
}

// CtrlrAffected classifies how an audit changed a controller.
type CtrlrAffected int

const (
	CtrlrNotAffected CtrlrAffected = iota
	// CtrlrAffectedOnlyCSDiff means only statuses were repaired.
	CtrlrAffectedOnlyCSDiff
	// CtrlrAffectedConfigDiff means configuration was sent.
	CtrlrAffectedConfigDiff
)

func (c CtrlrAffected) String() string {
	switch c {
	case CtrlrAffectedOnlyCSDiff:
		return "status-only"
	case CtrlrAffectedConfigDiff:
		return "config"
	}
	return "none"
}

// AuditResult accumulates the outcome of every audit phase of one
// controller.
type AuditResult struct {
	Affected   CtrlrAffected
	ConfigDiff int
	CSOnlyDiff int
	// Failed holds the rows the controller rejected, in UNC naming.
	Failed []*kv.ConfigKeyVal
}

func (r *AuditResult) mark(a CtrlrAffected) {
	if a > r.Affected {
		r.Affected = a
	}
	switch a {
	case CtrlrAffectedOnlyCSDiff:
		r.CSOnlyDiff++
	case CtrlrAffectedConfigDiff:
		r.ConfigDiff++
	}
}

// AuditParams drives one audit phase of one key type against one
// controller.
type AuditParams struct {
	Ctrlr        string
	Phase        kv.UpdateCtrlrPhase
	Session      ctrlr.Session
	Driver       driver.Driver
	DeleteFilter DeleteFilter
	Result       *AuditResult
}

// CopyParams drives the commit finalizer.
type CopyParams struct {
	Rows    txutil.RowResults
	Session ctrlr.Session
}
