package momgr

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

const maxDescription = 127

func (m *MoMgr) validate(row *kv.ConfigKeyVal) error {
	v := &util.ValidationBuilder{}
	for _, k := range row.Key {
		if err := util.ValidateName(k); err != nil {
			v.AddErrorf("%s key: %v", m.schema.kt, err)
		}
	}
	for _, name := range row.Main().AttrNames() {
		value := row.Attr(name)
		if !m.schema.attrs[name] {
			v.AddErrorf("%s has no attribute %q", m.schema.kt, name)
			continue
		}
		switch name {
		case "description":
			v.Add(len(value) <= maxDescription, fmt.Sprintf("description longer than %d characters", maxDescription))
		case "host_addr":
			v.Add(util.IsValidIPv4(value), fmt.Sprintf("host_addr %q is not an IPv4 address", value))
		case "host_addr_prefixlen":
			if err := util.ValidatePrefixLen(value); err != nil {
				v.AddErrorf("host_addr_prefixlen: %v", err)
			}
		case "admin_status":
			v.Add(value == "enable" || value == "disable", fmt.Sprintf("admin_status must be enable or disable, got %q", value))
		}
	}
	if row.Attr("host_addr_prefixlen") != "" && row.Attr("host_addr") == "" {
		v.AddErrorf("host_addr_prefixlen requires host_addr")
	}
	return v.Build()
}

func (m *MoMgr) parentRow(ctx context.Context, row *kv.ConfigKeyVal) (*kv.ConfigKeyVal, error) {
	pkt := m.schema.kt.Parent()
	if pkt == kv.KtRoot {
		return nil, nil
	}
	parent, err := m.reg.get(pkt)
	if err != nil {
		return nil, err
	}
	pkey := row.Key[:pkt.KeyLen()]
	p, err := parent.readOne(ctx, kv.Candidate, kv.TblMain, pkey, kv.CtrlrDom{})
	if util.IsNoSuchInstance(err) {
		return nil, util.NewDependencyError(m.schema.kt.String()+" "+row.KeyString(), pkt.String(), kv.NewConfigKeyVal(pkt, pkey...).KeyString())
	}
	return p, err
}

// CreateCandidate implements ObjectTypeManager. The new row starts
// NOT_APPLIED. Instances of key types tracked by their parent also create
// the parent's controller-table row for their controller-domain.
func (m *MoMgr) CreateCandidate(ctx context.Context, row *kv.ConfigKeyVal) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if err := m.validate(row); err != nil {
		return err
	}
	parent, err := m.parentRow(ctx, row)
	if err != nil {
		return err
	}

	out := row.Dup()
	out.Flags = 0
	out.DropVal(kv.ValOld)
	switch {
	case m.schema.inheritCtrlr:
		out.CtrlrDom = parent.CtrlrDom
	case m.schema.ctrlrInMain:
		if _, err := out.RequireCtrlrDom(); err != nil {
			return err
		}
		if _, err := m.cluster.Controller(out.CtrlrDom.Ctrlr); err != nil {
			return err
		}
	default:
		out.CtrlrDom = kv.CtrlrDom{}
	}
	out.Main().SetAllStatus(kv.CsNotApplied)

	if err := m.store.Create(ctx, kv.Candidate, kv.TblMain, out); err != nil {
		return fmt.Errorf("creating %s %s: %w", m.schema.kt, out.KeyString(), err)
	}
	m.log("candidate").Debugf("created %s", out)

	if m.schema.trackParent && parent != nil {
		pm, err := m.reg.get(parent.KeyType)
		if err != nil {
			return err
		}
		return pm.ensureCtrlrRow(ctx, parent, out.CtrlrDom)
	}
	return nil
}

// ensureCtrlrRow creates the controller-table row of main on cd unless it
// exists.
func (m *MoMgr) ensureCtrlrRow(ctx context.Context, main *kv.ConfigKeyVal, cd kv.CtrlrDom) error {
	if !m.schema.has(kv.TblCtrlr) {
		return nil
	}
	_, err := m.readOne(ctx, kv.Candidate, kv.TblCtrlr, main.Key, cd)
	if err == nil {
		return nil
	}
	if !util.IsNoSuchInstance(err) {
		return err
	}
	c := kv.NewConfigKeyVal(m.schema.kt, main.Key...)
	c.CtrlrDom = cd
	for _, name := range m.schema.propagate {
		if value, ok := main.Main().Attrs[name]; ok {
			c.SetAttr(name, value)
		}
	}
	m.UpdateConfigStatus(c, cd.Ctrlr, kv.CsNotApplied)
	if err := m.store.Create(ctx, kv.Candidate, kv.TblCtrlr, c); err != nil {
		return err
	}
	return m.consolidateMain(ctx, kv.Candidate, main.Key)
}

// releaseCtrlrRow removes the controller-table row of key on cd once no
// child instance lives on cd.
func (m *MoMgr) releaseCtrlrRow(ctx context.Context, key []string, cd kv.CtrlrDom) error {
	if !m.schema.has(kv.TblCtrlr) {
		return nil
	}
	for _, child := range m.reg.children(m.schema.kt) {
		match := kv.NewConfigKeyVal(child.schema.kt, key...)
		match.CtrlrDom = cd
		_, err := m.store.Read(ctx, kv.Candidate, kv.TblMain, match, dal.ReadOpt{MatchCtrlr: true})
		if err == nil {
			return nil
		}
		if !util.IsNoSuchInstance(err) {
			return err
		}
	}
	c := kv.NewConfigKeyVal(m.schema.kt, key...)
	c.CtrlrDom = cd
	if err := m.store.Delete(ctx, kv.Candidate, kv.TblCtrlr, c); err != nil && !util.IsNoSuchInstance(err) {
		return err
	}
	return m.consolidateMain(ctx, kv.Candidate, key)
}

// UpdateCandidate implements ObjectTypeManager. Attributes given with an
// empty value are removed; the others are set. Propagated attributes follow
// into the controller-table rows.
func (m *MoMgr) UpdateCandidate(ctx context.Context, row *kv.ConfigKeyVal) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	cur, err := m.readOne(ctx, kv.Candidate, kv.TblMain, row.Key, kv.CtrlrDom{})
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", m.schema.kt, row.KeyString(), err)
	}
	for name, value := range row.Main().Attrs {
		if value == "" {
			delete(cur.Main().Attrs, name)
			delete(cur.Main().AttrCs, name)
			continue
		}
		cur.SetAttr(name, value)
		if _, ok := cur.Main().AttrCs[name]; !ok {
			cur.Main().AttrCs[name] = kv.CsNotApplied
		}
	}
	if err := m.validate(cur); err != nil {
		return err
	}
	if err := m.store.Update(ctx, kv.Candidate, kv.TblMain, cur); err != nil {
		return err
	}
	if !m.schema.has(kv.TblCtrlr) || len(m.schema.propagate) == 0 {
		return nil
	}

	ctrls, err := m.store.Read(ctx, kv.Candidate, kv.TblCtrlr, kv.NewConfigKeyVal(m.schema.kt, cur.Key...), dal.ReadOpt{})
	if util.IsNoSuchInstance(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for c := ctrls; c != nil; c = c.Next {
		if len(c.Key) != len(cur.Key) {
			continue
		}
		for _, name := range m.schema.propagate {
			if value, ok := cur.Main().Attrs[name]; ok {
				c.SetAttr(name, value)
			} else {
				delete(c.Main().Attrs, name)
			}
		}
		m.UpdateConfigStatus(c, c.CtrlrDom.Ctrlr, c.Main().Cs)
		if err := m.store.Update(ctx, kv.Candidate, kv.TblCtrlr, c); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCandidate implements ObjectTypeManager. An instance with children
// cannot be deleted. Its rename and converted rows go with it.
func (m *MoMgr) DeleteCandidate(ctx context.Context, row *kv.ConfigKeyVal) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	cur, err := m.readOne(ctx, kv.Candidate, kv.TblMain, row.Key, kv.CtrlrDom{})
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", m.schema.kt, row.KeyString(), err)
	}

	var usedBy []string
	for _, child := range m.reg.children(m.schema.kt) {
		kids, err := child.store.Read(ctx, kv.Candidate, kv.TblMain, kv.NewConfigKeyVal(child.schema.kt, cur.Key...), dal.ReadOpt{})
		if util.IsNoSuchInstance(err) {
			continue
		}
		if err != nil {
			return err
		}
		for k := kids; k != nil; k = k.Next {
			usedBy = append(usedBy, child.schema.kt.String()+" "+k.KeyString())
		}
	}
	if len(usedBy) > 0 {
		return util.NewInUseError(m.schema.kt.String()+" "+cur.KeyString(), usedBy...)
	}

	for _, tbl := range m.schema.tables {
		if !tbl.PerController() {
			continue
		}
		rows, err := m.store.Read(ctx, kv.Candidate, tbl, kv.NewConfigKeyVal(m.schema.kt, cur.Key...), dal.ReadOpt{})
		if util.IsNoSuchInstance(err) {
			continue
		}
		if err != nil {
			return err
		}
		for r := rows; r != nil; r = r.Next {
			if len(r.Key) != len(cur.Key) {
				continue
			}
			if err := m.store.Delete(ctx, kv.Candidate, tbl, r); err != nil {
				return err
			}
		}
	}
	if err := m.store.Delete(ctx, kv.Candidate, kv.TblMain, cur); err != nil {
		return err
	}
	m.log("candidate").Debugf("deleted %s", cur)

	if m.schema.trackParent {
		pkt := m.schema.kt.Parent()
		pm, err := m.reg.get(pkt)
		if err != nil {
			return err
		}
		return pm.releaseCtrlrRow(ctx, cur.Key[:pkt.KeyLen()], cur.CtrlrDom)
	}
	return nil
}

// ReadConfig implements ObjectTypeManager. A nil match reads the whole
// table; a match with a controller set reads that controller's rows.
func (m *MoMgr) ReadConfig(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal) (*kv.ConfigKeyVal, error) {
	if err := m.checkTable(tbl); err != nil {
		return nil, err
	}
	if match == nil {
		match = kv.NewConfigKeyVal(m.schema.kt)
	}
	if match.KeyType != m.schema.kt {
		return nil, fmt.Errorf("%s manager given %s match: %w", m.schema.kt, match.KeyType, util.ErrGeneric)
	}
	opt := dal.ReadOpt{MatchCtrlr: !match.CtrlrDom.IsZero()}
	return m.store.Read(ctx, dt, tbl, match, opt)
}

// SetRename implements ObjectTypeManager: the instance is known on cd's
// controller as ctrlrName. An empty ctrlrName removes the mapping.
func (m *MoMgr) SetRename(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom, ctrlrName string) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if err := m.checkTable(kv.TblRename); err != nil {
		return err
	}
	if _, err := m.cluster.Controller(cd.Ctrlr); err != nil {
		return err
	}
	if _, err := m.readOne(ctx, kv.Candidate, kv.TblMain, row.Key, kv.CtrlrDom{}); err != nil {
		return fmt.Errorf("renaming %s %s: %w", m.schema.kt, row.KeyString(), err)
	}

	ren := kv.NewConfigKeyVal(m.schema.kt, row.Key...)
	ren.CtrlrDom = cd
	if ctrlrName == "" {
		return m.store.Delete(ctx, kv.Candidate, kv.TblRename, ren)
	}
	if err := util.ValidateName(ctrlrName); err != nil {
		return fmt.Errorf("%w: %v", util.ErrValidationFailed, err)
	}

	n := len(row.Key)
	match := kv.NewConfigKeyVal(m.schema.kt, row.Key[:n-1]...)
	match.CtrlrDom = kv.CtrlrDom{Ctrlr: cd.Ctrlr}
	siblings, err := m.store.Read(ctx, kv.Candidate, kv.TblRename, match, dal.ReadOpt{MatchCtrlr: true})
	if err != nil && !util.IsNoSuchInstance(err) {
		return err
	}
	// Names must stay unique per controller under one parent.
	for s := siblings; s != nil; s = s.Next {
		if len(s.Key) == n && s.Key[n-1] != row.Key[n-1] && s.Attr(renameAttr) == ctrlrName {
			return fmt.Errorf("%s name %s on %s already maps %s: %w", m.schema.kt, ctrlrName, cd.Ctrlr, s.KeyString(), util.ErrInstanceExists)
		}
	}

	ren.SetAttr(renameAttr, ctrlrName)
	err = m.store.Update(ctx, kv.Candidate, kv.TblRename, ren)
	if util.IsNoSuchInstance(err) {
		err = m.store.Create(ctx, kv.Candidate, kv.TblRename, ren)
	}
	return err
}

// AddConverted implements ObjectTypeManager: the instance gets a converted
// copy on cd, which also makes its controller-table row on cd a leaf.
func (m *MoMgr) AddConverted(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if err := m.checkTable(kv.TblConvert); err != nil {
		return err
	}
	if _, err := m.cluster.Controller(cd.Ctrlr); err != nil {
		return err
	}
	main, err := m.readOne(ctx, kv.Candidate, kv.TblMain, row.Key, kv.CtrlrDom{})
	if err != nil {
		return fmt.Errorf("converting %s %s: %w", m.schema.kt, row.KeyString(), err)
	}
	conv := kv.NewConfigKeyVal(m.schema.kt, main.Key...)
	conv.CtrlrDom = cd
	for _, name := range m.schema.propagate {
		if value, ok := main.Main().Attrs[name]; ok {
			conv.SetAttr(name, value)
		}
	}
	m.UpdateConfigStatus(conv, cd.Ctrlr, kv.CsNotApplied)
	return m.store.Create(ctx, kv.Candidate, kv.TblConvert, conv)
}

// RemoveConverted implements ObjectTypeManager.
func (m *MoMgr) RemoveConverted(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if err := m.checkTable(kv.TblConvert); err != nil {
		return err
	}
	conv := kv.NewConfigKeyVal(m.schema.kt, row.Key...)
	conv.CtrlrDom = cd
	return m.store.Delete(ctx, kv.Candidate, kv.TblConvert, conv)
}
