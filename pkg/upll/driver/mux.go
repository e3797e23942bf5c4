package driver

import (
	"context"
	"fmt"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/util"
)

// Mux routes each request to the driver registered for the controller's
// type.
type Mux struct {
	cluster *ctrlr.ClusterContext
	byType  map[string]Driver
}

// NewMux creates an empty router.
func NewMux(cluster *ctrlr.ClusterContext) *Mux {
	return &Mux{cluster: cluster, byType: make(map[string]Driver)}
}

// Register binds a controller type to a driver.
func (m *Mux) Register(ctrlrType string, drv Driver) {
	m.byType[ctrlrType] = drv
}

func (m *Mux) route(name string) (Driver, error) {
	ctl, err := m.cluster.Controller(name)
	if err != nil {
		return nil, err
	}
	drv, ok := m.byType[ctl.Type]
	if !ok {
		return nil, fmt.Errorf("controller %s: no driver for type %q: %w", name, ctl.Type, util.ErrGeneric)
	}
	return drv, nil
}

// Send implements Driver.
func (m *Mux) Send(ctx context.Context, req *Request) (*Reply, error) {
	drv, err := m.route(req.Ctrlr)
	if err != nil {
		return nil, err
	}
	return drv.Send(ctx, req)
}

// ReadConfig implements Driver.
func (m *Mux) ReadConfig(ctx context.Context, name string, kt kv.KeyType) (*kv.ConfigKeyVal, error) {
	drv, err := m.route(name)
	if err != nil {
		return nil, err
	}
	return drv.ReadConfig(ctx, name, kt)
}

// Ping implements Driver.
func (m *Mux) Ping(ctx context.Context, name string) error {
	drv, err := m.route(name)
	if err != nil {
		return err
	}
	return drv.Ping(ctx, name)
}
