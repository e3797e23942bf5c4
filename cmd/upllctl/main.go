// upllctl - UPLL transaction and audit tool
//
// upllctl edits the candidate configuration of the logical network
// (VTNs, vBridges and their interfaces), commits it to the southbound
// controllers, and audits controllers against the running configuration.
//
// Examples:
//
//	upllctl create vtn vtn1 -a description=blue
//	upllctl create vbridge vtn1 vbr1 -c pfc1 -D dom1
//	upllctl diff
//	upllctl commit
//	upllctl audit pfc1
//	upllctl save
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/newtron-network/upll/pkg/settings"
	"github.com/newtron-network/upll/pkg/txlog"
	"github.com/newtron-network/upll/pkg/upll/config"
	"github.com/newtron-network/upll/pkg/upll/configmgr"
	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/dal"
	"github.com/newtron-network/upll/pkg/upll/driver"
	"github.com/newtron-network/upll/pkg/upll/txutil"
	"github.com/newtron-network/upll/pkg/util"
	"github.com/newtron-network/upll/pkg/version"
)

var (
	// Global option flags
	configPath  string
	metricsAddr string
	verbose     bool
	jsonOutput  bool

	// Global state
	userSettings *settings.Settings
	cfg          *config.Config
	mgr          *configmgr.Manager
	closers      []func() error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "upllctl",
	Short:             "UPLL transaction and audit tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `upllctl edits the candidate configuration, commits it to the
southbound controllers and audits controllers against the running
configuration.

  upllctl <verb> <keytype> <key>... [-c controller -D domain] [-a name=value]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}
		if userSettings.Output == "json" {
			jsonOutput = true
		}
		if isLocalCommand(cmd) {
			return nil
		}
		return setup(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "C", "", "Configuration file (default from settings)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "candidate", Title: "Candidate Configuration:"},
		&cobra.Group{ID: "tx", Title: "Transactions:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{createCmd, updateCmd, deleteCmd, renameCmd, convertCmd, showCmd, diffCmd} {
		cmd.GroupID = "candidate"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{commitCmd, abortCmd, auditCmd, saveCmd, loadCmd, connectCmd} {
		cmd.GroupID = "tx"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{journalCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

// isLocalCommand reports whether cmd runs without the engine.
func isLocalCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "help":
			return true
		}
	}
	return false
}

// setup loads the configuration and wires the store, the drivers and the
// manager.
func setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if configPath == "" {
		configPath = userSettings.GetConfigPath()
	}

	var err error
	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		util.Debugf("no configuration at %s, using defaults", configPath)
		cfg = config.Default()
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := util.SetLogLevel(level); err != nil {
		return err
	}
	if cfg.LogJSON {
		util.SetJSONFormat()
	}

	if err := promptPasswords(cfg); err != nil {
		return err
	}

	cluster := ctrlr.NewClusterContext()
	if err := cfg.Register(cluster); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	redisDrv := driver.NewRedisDriver(cluster)
	closers = append(closers, redisDrv.Close)
	mux := driver.NewMux(cluster)
	mux.Register("redis", redisDrv)
	mux.Register("sim", driver.NewSimDriver())

	journal := txlog.Logger(txlog.NopLogger{})
	if cfg.Journal.Path != "" {
		fl, err := txlog.NewFileLogger(cfg.Journal.Path, txlog.RotationConfig{
			MaxSize:    cfg.Journal.MaxSize,
			MaxBackups: cfg.Journal.MaxBackups,
		})
		if err != nil {
			util.Warnf("Could not open journal: %v", err)
		} else {
			journal = fl
			closers = append(closers, fl.Close)
		}
	}

	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	if metricsAddr != "" {
		startMetrics(metricsAddr)
	}

	mgr, err = configmgr.New(configmgr.Options{
		Cluster:      cluster,
		Store:        store,
		Driver:       mux,
		Concurrency:  cfg.Concurrency,
		Journal:      journal,
		DeleteFilter: cfg.DeleteFilter(),
	})
	if err != nil {
		return err
	}
	closers = append(closers, mgr.Close)
	return nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (dal.Store, error) {
	if sc.Type != "redis" {
		util.Warnf("memory store: configuration is discarded on exit")
		return dal.NewMemStore(), nil
	}
	rs := dal.NewRedisStore(sc.Addr, sc.DB)
	if err := rs.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to store at %s: %w", sc.Addr, err)
	}
	closers = append(closers, rs.Close)
	return rs, nil
}

func startMetrics(addr string) {
	registry := prometheus.NewRegistry()
	txutil.InitMetrics(registry)
	srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Warnf("metrics server: %v", err)
		}
	}()
	closers = append(closers, srv.Close)
}

// teardown releases what setup opened, newest first.
func teardown() error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	closers = nil
	return first
}
