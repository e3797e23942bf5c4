package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/upll/pkg/cli"
	"github.com/newtron-network/upll/pkg/txlog"
)

var (
	journalUser     string
	journalOp       string
	journalCtrlr    string
	journalSince    time.Duration
	journalFailures bool
	journalLimit    int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the transaction journal",
	Example: `  upllctl journal --since 24h
  upllctl journal --op audit --controller pfc1
  upllctl journal --failures`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := txlog.Filter{
			User:        journalUser,
			Operation:   txlog.Operation(journalOp),
			Controller:  journalCtrlr,
			FailureOnly: journalFailures,
			Limit:       journalLimit,
		}
		if journalSince > 0 {
			filter.StartTime = time.Now().Add(-journalSince)
		}

		events, err := mgr.Journal(filter)
		if err != nil {
			return fmt.Errorf("querying journal: %w", err)
		}
		if jsonOutput {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No journal entries.")
			return nil
		}

		t := cli.NewTable("TIME", "USER", "OPERATION", "CONTROLLERS", "RESULT", "DURATION")
		for _, e := range events {
			ctrlrs := e.Controller
			if ctrlrs == "" {
				ctrlrs = strings.Join(e.Affected, ",")
			}
			result := cli.Green("ok")
			if !e.Success {
				result = cli.Red(e.Error)
			}
			t.Row(e.Timestamp.Format(time.RFC3339), e.User, string(e.Operation), ctrlrs, result, e.Duration.Round(time.Millisecond).String())
		}
		t.Flush()
		return nil
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalUser, "user", "", "Filter by user")
	journalCmd.Flags().StringVar(&journalOp, "op", "", "Filter by operation (commit, abort, audit, save, load)")
	journalCmd.Flags().StringVar(&journalCtrlr, "controller", "", "Filter by controller")
	journalCmd.Flags().DurationVar(&journalSince, "since", 0, "Only entries newer than this")
	journalCmd.Flags().BoolVar(&journalFailures, "failures", false, "Only failed transactions")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "Maximum entries")
}
