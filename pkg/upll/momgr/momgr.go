package momgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/r3labs/diff"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// renameAttr holds, in a rename-table row, the controller-local name of the
// row's last key component.
const renameAttr = "ctrlr_name"

// MoMgr is the generic manager, parameterised by a key-type schema.
type MoMgr struct {
	schema  *schema
	store   dal.Store
	cluster *ctrlr.ClusterContext
	reg     *Registry
}

var _ ObjectTypeManager = (*MoMgr)(nil)

// KeyType implements ObjectTypeManager.
func (m *MoMgr) KeyType() kv.KeyType {
	return m.schema.kt
}

// Tables implements ObjectTypeManager.
func (m *MoMgr) Tables() []kv.TableType {
	return m.schema.tables
}

func (m *MoMgr) log(phase string) *logrus.Entry {
	return util.WithKeyType(m.schema.kt.String(), phase)
}

func (m *MoMgr) checkRow(row *kv.ConfigKeyVal) error {
	if row == nil {
		return fmt.Errorf("%s: missing row: %w", m.schema.kt, util.ErrGeneric)
	}
	if row.KeyType != m.schema.kt {
		return fmt.Errorf("%s manager given %s row: %w", m.schema.kt, row.KeyType, util.ErrGeneric)
	}
	if len(row.Key) != m.schema.kt.KeyLen() {
		return fmt.Errorf("%s key %q needs %d components: %w", m.schema.kt, row.KeyString(), m.schema.kt.KeyLen(), util.ErrGeneric)
	}
	return nil
}

func (m *MoMgr) checkTable(tbl kv.TableType) error {
	if !m.schema.has(tbl) {
		return fmt.Errorf("%s has no %s table: %w", m.schema.kt, tbl, util.ErrGeneric)
	}
	return nil
}

// GetChildConfigKey implements ObjectTypeManager. A nil parent yields an
// empty key, which matches every instance in reads.
func (m *MoMgr) GetChildConfigKey(parent *kv.ConfigKeyVal, name string) (*kv.ConfigKeyVal, error) {
	if parent == nil {
		if name == "" {
			return kv.NewConfigKeyVal(m.schema.kt), nil
		}
		if m.schema.kt.KeyLen() != 1 {
			return nil, fmt.Errorf("%s %s needs a parent: %w", m.schema.kt, name, util.ErrGeneric)
		}
		return kv.NewConfigKeyVal(m.schema.kt, name), nil
	}
	if parent.KeyType != m.schema.kt.Parent() {
		return nil, fmt.Errorf("%s is not a parent of %s: %w", parent.KeyType, m.schema.kt, util.ErrGeneric)
	}
	key := append([]string(nil), parent.Key...)
	if name != "" {
		key = append(key, name)
	}
	return kv.NewConfigKeyVal(m.schema.kt, key...), nil
}

// DupConfigKeyVal implements ObjectTypeManager.
func (m *MoMgr) DupConfigKeyVal(row *kv.ConfigKeyVal, tbl kv.TableType) (*kv.ConfigKeyVal, error) {
	if err := m.checkRow(row); err != nil {
		return nil, err
	}
	if err := m.checkTable(tbl); err != nil {
		return nil, err
	}
	out := row.Dup()
	if tbl == kv.TblMain && !m.schema.ctrlrInMain {
		out.CtrlrDom = kv.CtrlrDom{}
	}
	return out, nil
}

// filterUnsupported removes attributes ctrlr cannot configure and returns
// their names.
func (m *MoMgr) filterUnsupported(row *kv.ConfigKeyVal, ctrlr string) []string {
	var dropped []string
	attrs := row.Main().Attrs
	for _, name := range row.Main().AttrNames() {
		if !m.cluster.IsSupported(ctrlr, m.schema.kt, name) {
			delete(attrs, name)
			dropped = append(dropped, name)
		}
	}
	return dropped
}

// attrDelta returns the attribute changes between two rows as seen by
// ctrlr.
func (m *MoMgr) attrDelta(prev, curr *kv.ConfigKeyVal, ctrlr string) (diff.Changelog, error) {
	a, b := prev.Dup(), curr.Dup()
	m.filterUnsupported(a, ctrlr)
	m.filterUnsupported(b, ctrlr)
	changelog, err := diff.Diff(a.Main().Attrs, b.Main().Attrs)
	if err != nil {
		return nil, fmt.Errorf("diffing %s %s: %w", m.schema.kt, curr.KeyString(), err)
	}
	return changelog, nil
}

// AdaptValToDriver implements ObjectTypeManager. Unsupported attributes
// are stripped from req. An UPDATE chains the previous value as a ValOld
// block and is suppressed when nothing the controller supports changed.
func (m *MoMgr) AdaptValToDriver(ctx context.Context, req, prev *kv.ConfigKeyVal, op kv.Operation,
	dt kv.DataType, tbl kv.TableType, ctrlr string) (bool, error) {
	if req == nil {
		return false, fmt.Errorf("%s: missing driver row: %w", m.schema.kt, util.ErrGeneric)
	}
	if op == kv.OpUpdate && m.schema.noUpdate[tbl] {
		return true, nil
	}
	if op == kv.OpDelete {
		return false, nil
	}
	if op == kv.OpUpdate {
		if prev == nil {
			return false, fmt.Errorf("%s %s: update without previous value: %w", m.schema.kt, req.KeyString(), util.ErrGeneric)
		}
		changelog, err := m.attrDelta(prev, req, ctrlr)
		if err != nil {
			return false, err
		}
		if len(changelog) == 0 {
			m.log(op.String()).Debugf("%s on %s: no supported attribute changed", req.KeyString(), ctrlr)
			return true, nil
		}
		old := prev.Main().Dup()
		old.Kind = kv.ValOld
		req.DropVal(kv.ValOld)
		req.AppendVal(old)
	}
	if dropped := m.filterUnsupported(req, ctrlr); len(dropped) > 0 {
		m.log(op.String()).Debugf("%s on %s: dropping unsupported %s", req.KeyString(), ctrlr, strings.Join(dropped, ","))
	}
	if old := req.Val(kv.ValOld); old != nil {
		for name := range old.Attrs {
			if !m.cluster.IsSupported(ctrlr, m.schema.kt, name) {
				delete(old.Attrs, name)
			}
		}
	}
	return false, nil
}

// UpdateConfigStatus implements ObjectTypeManager: the row and every
// attribute ctrlr supports take cs; the others become NOT_SUPPORTED.
func (m *MoMgr) UpdateConfigStatus(row *kv.ConfigKeyVal, ctrlr string, cs kv.ConfigStatus) {
	v := row.Main()
	v.Cs = cs
	for name := range v.AttrCs {
		if _, ok := v.Attrs[name]; !ok {
			delete(v.AttrCs, name)
		}
	}
	for name := range v.Attrs {
		if m.cluster.IsSupported(ctrlr, m.schema.kt, name) {
			v.AttrCs[name] = cs
		} else {
			v.AttrCs[name] = kv.CsNotSupported
		}
	}
}

// UpdateCtrlrConfigStatus implements ObjectTypeManager for a row of a
// per-controller table.
func (m *MoMgr) UpdateCtrlrConfigStatus(row *kv.ConfigKeyVal, cs kv.ConfigStatus) {
	m.UpdateConfigStatus(row, row.CtrlrDom.Ctrlr, cs)
}

// UpdateAuditConfigStatus implements ObjectTypeManager. A row the audit
// confirmed on its controller loses the audit-dirty flag.
func (m *MoMgr) UpdateAuditConfigStatus(row *kv.ConfigKeyVal, cs kv.ConfigStatus) {
	m.UpdateConfigStatus(row, row.CtrlrDom.Ctrlr, cs)
	if cs == kv.CsApplied {
		row.Flags &^= kv.FlagAuditDirty
	}
}

// consolidateMain recomputes the status of the main row with the given
// key from its controller-table rows in dt.
func (m *MoMgr) consolidateMain(ctx context.Context, dt kv.DataType, key []string) error {
	if !m.schema.has(kv.TblCtrlr) {
		return nil
	}
	match := kv.NewConfigKeyVal(m.schema.kt, key...)
	main, err := m.store.Read(ctx, dt, kv.TblMain, match, dal.ReadOpt{})
	if util.IsNoSuchInstance(err) {
		return nil
	}
	if err != nil {
		return err
	}
	ctrls, err := m.store.Read(ctx, dt, kv.TblCtrlr, match, dal.ReadOpt{})
	if err != nil && !util.IsNoSuchInstance(err) {
		return err
	}

	var rowCs []kv.ConfigStatus
	attrCs := map[string][]kv.ConfigStatus{}
	for c := ctrls; c != nil; c = c.Next {
		rowCs = append(rowCs, c.Main().Cs)
		for name, cs := range c.Main().AttrCs {
			attrCs[name] = append(attrCs[name], cs)
		}
	}
	v := main.Main()
	v.Cs = kv.Consolidate(rowCs...)
	v.AttrCs = make(map[string]kv.ConfigStatus, len(v.Attrs))
	for name := range v.Attrs {
		v.AttrCs[name] = kv.Consolidate(attrCs[name]...)
	}
	m.log("consolidate").Debugf("%s in %s: %s", main.KeyString(), dt, v.Cs)
	return m.store.Update(ctx, dt, kv.TblMain, main)
}

// renameLevels returns the managers of this key type and its ancestors that
// own a rename table, outermost first.
func (m *MoMgr) renameLevels() []*MoMgr {
	var levels []*MoMgr
	for kt := m.schema.kt; kt != kv.KtRoot; kt = kt.Parent() {
		mgr, err := m.reg.get(kt)
		if err != nil || !mgr.schema.has(kv.TblRename) {
			continue
		}
		levels = append([]*MoMgr{mgr}, levels...)
	}
	return levels
}

// GetRenamedControllerKey implements ObjectTypeManager: a copy of row whose
// key components are replaced by their names on cd's controller.
func (m *MoMgr) GetRenamedControllerKey(ctx context.Context, row *kv.ConfigKeyVal, dt kv.DataType, cd kv.CtrlrDom) (*kv.ConfigKeyVal, error) {
	if err := m.checkRow(row); err != nil {
		return nil, err
	}
	if cd.IsZero() {
		return nil, fmt.Errorf("%s %s: rename lookup without controller: %w", m.schema.kt, row.KeyString(), util.ErrGeneric)
	}
	out := row.Dup()
	for _, level := range m.renameLevels() {
		n := level.schema.kt.KeyLen()
		match := kv.NewConfigKeyVal(level.schema.kt, row.Key[:n]...)
		match.CtrlrDom = kv.CtrlrDom{Ctrlr: cd.Ctrlr}
		ren, err := m.store.Read(ctx, dt, kv.TblRename, match, dal.ReadOpt{MatchCtrlr: true})
		if util.IsNoSuchInstance(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for r := ren; r != nil; r = r.Next {
			if len(r.Key) == n {
				if name := r.Attr(renameAttr); name != "" {
					out.Key[n-1] = name
				}
				break
			}
		}
	}
	return out, nil
}

// GetRenamedUncKey implements ObjectTypeManager: a copy of row, given in
// ctrlr's naming, with its key translated back to UNC names.
func (m *MoMgr) GetRenamedUncKey(ctx context.Context, row *kv.ConfigKeyVal, dt kv.DataType, ctrlr string) (*kv.ConfigKeyVal, error) {
	if err := m.checkRow(row); err != nil {
		return nil, err
	}
	out := row.Dup()
	for _, level := range m.renameLevels() {
		n := level.schema.kt.KeyLen()
		match := kv.NewConfigKeyVal(level.schema.kt, out.Key[:n-1]...)
		match.CtrlrDom = kv.CtrlrDom{Ctrlr: ctrlr}
		ren, err := m.store.Read(ctx, dt, kv.TblRename, match, dal.ReadOpt{MatchCtrlr: true})
		if util.IsNoSuchInstance(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for r := ren; r != nil; r = r.Next {
			if len(r.Key) == n && r.Attr(renameAttr) == out.Key[n-1] {
				out.Key[n-1] = r.Key[n-1]
				break
			}
		}
	}
	return out, nil
}

// hasConverted reports whether the row has a converted-table copy on cd.
func (m *MoMgr) hasConverted(ctx context.Context, dt kv.DataType, key []string, cd kv.CtrlrDom) (bool, error) {
	if !m.schema.has(kv.TblConvert) {
		return false, nil
	}
	match := kv.NewConfigKeyVal(m.schema.kt, key...)
	match.CtrlrDom = cd
	_, err := m.store.Read(ctx, dt, kv.TblConvert, match, dal.ReadOpt{MatchCtrlr: true})
	if util.IsNoSuchInstance(err) {
		return false, nil
	}
	return err == nil, err
}

// readOne reads the row of tbl with the exact key, and controller-domain
// for per-controller tables.
func (m *MoMgr) readOne(ctx context.Context, dt kv.DataType, tbl kv.TableType, key []string, cd kv.CtrlrDom) (*kv.ConfigKeyVal, error) {
	match := kv.NewConfigKeyVal(m.schema.kt, key...)
	opt := dal.ReadOpt{}
	if tbl.PerController() {
		match.CtrlrDom = cd
		opt.MatchCtrlr = true
	}
	rows, err := m.store.Read(ctx, dt, tbl, match, opt)
	if err != nil {
		return nil, err
	}
	for r := rows; r != nil; r = r.Next {
		if len(r.Key) == len(key) {
			r.Next = nil
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s %s in %s %s: %w", m.schema.kt, strings.Join(key, kv.KeySep), dt, tbl, util.ErrNoSuchInstance)
}
