package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/util"
)

const sample = `
concurrency: 8
log_level: debug
metrics_addr: ":9101"
store:
  type: redis
  addr: 127.0.0.1:6379
  db: 2
journal:
  path: /var/log/upll/journal.log
  max_size: 1048576
  max_backups: 3
audit:
  delete_filter: all
controllers:
  - name: pfc1
    type: redis
    version: "7.1"
    addr: 10.0.0.11:6379
  - name: edge1
    type: sim
    unsupported:
      vbridge: [host_addr, host_addr_prefixlen]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, StoreConfig{Type: "redis", Addr: "127.0.0.1:6379", DB: 2}, cfg.Store)
	require.Equal(t, int64(1048576), cfg.Journal.MaxSize)
	require.Equal(t, momgr.DeleteFilterAll, cfg.DeleteFilter())
	require.Len(t, cfg.Controllers, 2)

	want := ctrlr.Controller{
		Name: "edge1",
		Type: "sim",
		Unsupported: map[kv.KeyType][]string{
			kv.KtVbridge: {"host_addr", "host_addr_prefixlen"},
		},
	}
	if diff := cmp.Diff(want, cfg.Controllers[1].Controller()); diff != "" {
		t.Errorf("Controller() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_json: true\n"))
	require.NoError(t, err)
	require.True(t, cfg.LogJSON)
	require.Equal(t, 4, cfg.Concurrency)
	require.Equal(t, "memory", cfg.Store.Type)
	require.Equal(t, momgr.DeleteFilterController, cfg.DeleteFilter())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "concurrency: [\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"bad store", func(c *Config) { c.Store.Type = "etcd" }},
		{"redis store without addr", func(c *Config) { c.Store.Type = "redis" }},
		{"bad delete filter", func(c *Config) { c.Audit.DeleteFilter = "some" }},
		{"negative journal size", func(c *Config) { c.Journal.MaxSize = -1 }},
		{"bad controller name", func(c *Config) { c.Controllers = []ControllerConfig{{Name: "a b", Type: "sim"}} }},
		{"duplicate controller", func(c *Config) {
			c.Controllers = []ControllerConfig{{Name: "c1", Type: "sim"}, {Name: "c1", Type: "sim"}}
		}},
		{"missing type", func(c *Config) { c.Controllers = []ControllerConfig{{Name: "c1"}} }},
		{"redis controller without addr", func(c *Config) { c.Controllers = []ControllerConfig{{Name: "c1", Type: "redis"}} }},
		{"unknown key type", func(c *Config) {
			c.Controllers = []ControllerConfig{{Name: "c1", Type: "sim", Unsupported: map[string][]string{"vrouter": {"x"}}}}
		}},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), util.ErrValidationFailed)
		})
	}
}

func TestRegister(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cluster := ctrlr.NewClusterContext()
	require.NoError(t, cfg.Register(cluster))
	require.Equal(t, []string{"edge1", "pfc1"}, cluster.Names())
	require.False(t, cluster.IsSupported("edge1", kv.KtVbridge, "host_addr"))
	require.ErrorIs(t, cfg.Register(cluster), util.ErrInstanceExists)
}
