package configmgr

import (
	"context"

	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/momgr"
)

func (m *Manager) manager(row *kv.ConfigKeyVal) (momgr.ObjectTypeManager, error) {
	return m.reg.Get(row.KeyType)
}

// Create adds row to the candidate snapshot.
func (m *Manager) Create(ctx context.Context, row *kv.ConfigKeyVal) error {
	mgr, err := m.manager(row)
	if err != nil {
		return err
	}
	return mgr.CreateCandidate(ctx, row)
}

// Update merges the attributes of row into its candidate copy. An empty
// value removes the attribute.
func (m *Manager) Update(ctx context.Context, row *kv.ConfigKeyVal) error {
	mgr, err := m.manager(row)
	if err != nil {
		return err
	}
	return mgr.UpdateCandidate(ctx, row)
}

// Delete removes row from the candidate snapshot.
func (m *Manager) Delete(ctx context.Context, row *kv.ConfigKeyVal) error {
	mgr, err := m.manager(row)
	if err != nil {
		return err
	}
	return mgr.DeleteCandidate(ctx, row)
}

// Read returns the rows of one table matching the key prefix of match.
func (m *Manager) Read(ctx context.Context, dt kv.DataType, tbl kv.TableType, match *kv.ConfigKeyVal) (*kv.ConfigKeyVal, error) {
	mgr, err := m.manager(match)
	if err != nil {
		return nil, err
	}
	return mgr.ReadConfig(ctx, dt, tbl, match)
}

// Rename sets the name row carries on controller cd.Ctrlr. An empty name
// removes the mapping.
func (m *Manager) Rename(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom, name string) error {
	mgr, err := m.manager(row)
	if err != nil {
		return err
	}
	return mgr.SetRename(ctx, row, cd, name)
}

// Convert marks row as converted on cd, or clears the mark.
func (m *Manager) Convert(ctx context.Context, row *kv.ConfigKeyVal, cd kv.CtrlrDom, remove bool) error {
	mgr, err := m.manager(row)
	if err != nil {
		return err
	}
	if remove {
		return mgr.RemoveConverted(ctx, row, cd)
	}
	return mgr.AddConverted(ctx, row, cd)
}
