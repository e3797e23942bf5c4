package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/upll/pkg/cli"
	"github.com/newtron-network/upll/pkg/upll/momgr"
	"github.com/newtron-network/upll/pkg/util"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Send the candidate configuration to the controllers",
	Long: `Send the difference between the candidate and running configuration
to the controllers, then make the candidate the running configuration.

A controller rejecting a request aborts the commit and leaves the running
configuration unchanged. Unreachable controllers do not abort the commit;
their objects are marked for audit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := mgr.Commit(cmd.Context(), currentUser())
		if err != nil {
			var derr *util.DriverError
			if errors.As(err, &derr) {
				fmt.Println(cli.Red("Commit aborted: ") + derr.Error())
			}
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		if len(res.Affected) == 0 {
			fmt.Println("Nothing to commit.")
			return nil
		}
		t := cli.NewTable("CONTROLLER", "RESULT")
		for _, c := range res.Results.Controllers() {
			cs, _ := res.Results.Status(c)
			t.Row(c, cli.Status(cs.String()))
		}
		t.Flush()
		fmt.Println(cli.Green("Commit complete."))
		return nil
	},
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Discard the candidate configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mgr.Abort(cmd.Context(), currentUser()); err != nil {
			return err
		}
		fmt.Println("Candidate reset to running.")
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <controller>",
	Short: "Reconcile a controller with the running configuration",
	Long: `Read the configuration of a controller, push every difference from
the running configuration to it and repair the running statuses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := mgr.Audit(cmd.Context(), currentUser(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		printAudit(args[0], res)
		return nil
	},
}

func printAudit(name string, res *momgr.AuditResult) {
	t := cli.NewTable("CONTROLLER", "AFFECTED", "CONFIG", "STATUS-ONLY", "REJECTED")
	t.Row(name, res.Affected.String(), fmt.Sprint(res.ConfigDiff), fmt.Sprint(res.CSOnlyDiff), fmt.Sprint(len(res.Failed)))
	t.Flush()
	if len(res.Failed) == 0 {
		return
	}
	fmt.Println()
	failed := cli.NewTable("KEYTYPE", "KEY").Indent("  ")
	for _, r := range res.Failed {
		failed.Row(r.KeyType.String(), r.KeyString())
	}
	failed.Flush()
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the running configuration as startup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mgr.SaveConfig(cmd.Context(), currentUser()); err != nil {
			return err
		}
		fmt.Println("Running configuration saved.")
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace running and candidate with the startup configuration",
	Long: `Replace the running and candidate configuration with the startup
configuration. Nothing is sent to the controllers; audit them afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mgr.LoadStartup(cmd.Context(), currentUser()); err != nil {
			return err
		}
		fmt.Println("Startup configuration loaded.")
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Probe every configured controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, err := mgr.ConnectAll(cmd.Context())
		if err != nil {
			return err
		}
		t := cli.NewTable("CONTROLLER", "STATE")
		for _, name := range mgr.Cluster().Names() {
			state := cli.Green("connected")
			if !mgr.Cluster().IsConnected(name) {
				state = cli.Red("unreachable")
			}
			t.Row(name, state)
		}
		t.Flush()
		if len(down) > 0 {
			return fmt.Errorf("unreachable: %s", strings.Join(down, ", "))
		}
		return nil
	},
}
