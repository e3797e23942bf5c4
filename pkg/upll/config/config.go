// Package config loads the upll daemon configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/util"
)

// Config is the content of upll.yaml.
type Config struct {
	// Concurrency is the number of dispatch queues.
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
	MetricsAddr string `yaml:"metrics_addr"`

	Store       StoreConfig        `yaml:"store"`
	Journal     JournalConfig      `yaml:"journal"`
	Audit       AuditConfig        `yaml:"audit"`
	Controllers []ControllerConfig `yaml:"controllers"`
}

// StoreConfig selects where the configuration snapshots live.
type StoreConfig struct {
	// Type is "memory" or "redis".
	Type string `yaml:"type"`
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// JournalConfig places the transaction journal. An empty path disables it.
type JournalConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int64  `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
}

// AuditConfig tunes audits.
type AuditConfig struct {
	// DeleteFilter is "controller" or "all".
	DeleteFilter string `yaml:"delete_filter"`
}

// ControllerConfig describes one southbound controller.
type ControllerConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Version string `yaml:"version"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	SSHUser string `yaml:"ssh_user"`
	SSHPass string `yaml:"ssh_pass"`
	SSHPort int    `yaml:"ssh_port"`
	// Unsupported maps key-type names to attributes the controller
	// cannot configure.
	Unsupported map[string][]string `yaml:"unsupported"`
}

// Default returns the configuration used when no file is given: an
// in-memory store and four dispatch queues.
func Default() *Config {
	return &Config{
		Concurrency: 4,
		LogLevel:    "info",
		Store:       StoreConfig{Type: "memory"},
		Audit:       AuditConfig{DeleteFilter: "controller"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.Concurrency >= 1, fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency))

	switch c.Store.Type {
	case "memory":
	case "redis":
		v.Add(c.Store.Addr != "", "store.addr is required for the redis store")
	default:
		v.AddErrorf("store.type must be memory or redis, got %q", c.Store.Type)
	}
	if _, err := momgr.ParseDeleteFilter(c.Audit.DeleteFilter); err != nil {
		v.AddErrorf("audit.delete_filter: %v", err)
	}
	v.Add(c.Journal.MaxSize >= 0 && c.Journal.MaxBackups >= 0, "journal sizes must not be negative")

	seen := map[string]bool{}
	for i, ctl := range c.Controllers {
		if err := util.ValidateName(ctl.Name); err != nil {
			v.AddErrorf("controllers[%d]: %v", i, err)
			continue
		}
		if seen[ctl.Name] {
			v.AddErrorf("controller %s defined twice", ctl.Name)
		}
		seen[ctl.Name] = true
		v.Add(ctl.Type != "", fmt.Sprintf("controller %s: type is required", ctl.Name))
		if ctl.Type == "redis" {
			v.Add(ctl.Addr != "", fmt.Sprintf("controller %s: addr is required", ctl.Name))
		}
		for ktName := range ctl.Unsupported {
			if _, err := kv.ParseKeyType(ktName); err != nil {
				v.AddErrorf("controller %s: %v", ctl.Name, err)
			}
		}
	}
	return v.Build()
}

// DeleteFilter returns the audit delete filter. The configuration must
// have been validated.
func (c *Config) DeleteFilter() momgr.DeleteFilter {
	f, _ := momgr.ParseDeleteFilter(c.Audit.DeleteFilter)
	return f
}

// Register adds every configured controller to cluster.
func (c *Config) Register(cluster *ctrlr.ClusterContext) error {
	for _, ctl := range c.Controllers {
		if err := cluster.AddController(ctl.Controller()); err != nil {
			return err
		}
	}
	return nil
}

// Controller converts the entry to a registry record. Unknown key-type
// names are skipped; Validate reports them.
func (cc ControllerConfig) Controller() ctrlr.Controller {
	out := ctrlr.Controller{
		Name:    cc.Name,
		Type:    cc.Type,
		Version: cc.Version,
		Addr:    cc.Addr,
		DB:      cc.DB,
		SSHUser: cc.SSHUser,
		SSHPass: cc.SSHPass,
		SSHPort: cc.SSHPort,
	}
	for ktName, attrs := range cc.Unsupported {
		kt, err := kv.ParseKeyType(ktName)
		if err != nil {
			continue
		}
		if out.Unsupported == nil {
			out.Unsupported = map[kv.KeyType][]string{}
		}
		out.Unsupported[kt] = append([]string(nil), attrs...)
	}
	return out
}
