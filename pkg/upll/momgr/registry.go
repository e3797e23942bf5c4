package momgr

import (
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// Registry maps key types to their managers, in create order.
type Registry struct {
	order []kv.KeyType
	mgrs  map[kv.KeyType]*MoMgr
}

// NewRegistry builds the managers for VTN, vBridge and vBridge interface.
func NewRegistry(store dal.Store, cluster *ctrlr.ClusterContext) *Registry {
	r := &Registry{mgrs: make(map[kv.KeyType]*MoMgr)}
	for _, s := range []*schema{vtnSchema, vbridgeSchema, vbrIfSchema} {
		r.order = append(r.order, s.kt)
		r.mgrs[s.kt] = &MoMgr{schema: s, store: store, cluster: cluster, reg: r}
	}
	return r
}

// Get returns the manager of kt.
func (r *Registry) Get(kt kv.KeyType) (ObjectTypeManager, error) {
	m, err := r.get(kt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Registry) get(kt kv.KeyType) (*MoMgr, error) {
	m, ok := r.mgrs[kt]
	if !ok {
		return nil, fmt.Errorf("no manager for key type %s: %w", kt, util.ErrGeneric)
	}
	return m, nil
}

// CreateOrder returns the managers parents first.
func (r *Registry) CreateOrder() []ObjectTypeManager {
	out := make([]ObjectTypeManager, 0, len(r.order))
	for _, kt := range r.order {
		out = append(out, r.mgrs[kt])
	}
	return out
}

// DeleteOrder returns the managers children first.
func (r *Registry) DeleteOrder() []ObjectTypeManager {
	out := make([]ObjectTypeManager, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.mgrs[r.order[i]])
	}
	return out
}

// children returns the managers whose key type is a direct child of kt.
func (r *Registry) children(kt kv.KeyType) []*MoMgr {
	var out []*MoMgr
	for _, k := range r.order {
		if k != kt && k.Parent() == kt {
			out = append(out, r.mgrs[k])
		}
	}
	return out
}
