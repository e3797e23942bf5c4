package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/upll/pkg/cli"
	"github.com/newtron-network/upll/pkg/upll/configmgr"
	"github.com/newtron-network/upll/pkg/upll/kv"
)

var (
	showDataType string
	showTable    string
	convertUndo  bool
)

func addRowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&ctrlrName, "controller", "c", "", "Controller owning the object")
	cmd.Flags().StringVarP(&domainName, "domain", "D", "", "Controller domain")
}

var createCmd = &cobra.Command{
	Use:   "create <keytype> <key>...",
	Short: "Create an object in the candidate configuration",
	Example: `  upllctl create vtn vtn1 -a description=blue
  upllctl create vbridge vtn1 vbr1 -c pfc1 -D dom1 -a host_addr=10.0.0.1 -a host_addr_prefixlen=24
  upllctl create vbr_if vtn1 vbr1 if1`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := parseFullRow(args)
		if err != nil {
			return err
		}
		if err := mgr.Create(cmd.Context(), row); err != nil {
			return err
		}
		fmt.Printf("Created %s %s\n", row.KeyType, row.KeyString())
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <keytype> <key>... -a name=value",
	Short: "Update attributes in the candidate configuration",
	Long: `Update attributes of an object in the candidate configuration.
An empty value removes the attribute.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(attrFlags) == 0 {
			return fmt.Errorf("nothing to update: use -a name=value")
		}
		row, err := parseFullRow(args)
		if err != nil {
			return err
		}
		if err := mgr.Update(cmd.Context(), row); err != nil {
			return err
		}
		fmt.Printf("Updated %s %s\n", row.KeyType, row.KeyString())
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <keytype> <key>...",
	Short: "Delete an object from the candidate configuration",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := parseFullRow(args)
		if err != nil {
			return err
		}
		if err := mgr.Delete(cmd.Context(), row); err != nil {
			return err
		}
		fmt.Printf("Deleted %s %s\n", row.KeyType, row.KeyString())
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <keytype> <key>... <controller-name> -c controller",
	Short: "Set the name an object carries on a controller",
	Long: `Set the name an object carries on one controller. An empty
controller name ("") removes the mapping.`,
	Example: `  upllctl rename vtn vtn1 tenant42 -c pfc1 -D dom1`,
	Args:    cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ctrlrName == "" {
			return fmt.Errorf("controller required: use -c <controller>")
		}
		name := args[len(args)-1]
		row, err := parseFullRow(args[:len(args)-1])
		if err != nil {
			return err
		}
		cd := row.CtrlrDom
		row.CtrlrDom = kv.CtrlrDom{}
		if err := mgr.Rename(cmd.Context(), row, cd, name); err != nil {
			return err
		}
		if name == "" {
			fmt.Printf("Removed %s name of %s %s\n", cd.Ctrlr, row.KeyType, row.KeyString())
		} else {
			fmt.Printf("%s %s is %s on %s\n", row.KeyType, row.KeyString(), name, cd.Ctrlr)
		}
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert vtn <name> -c controller -D domain",
	Short: "Mark a VTN as converted on a controller domain",
	Long: `Mark a VTN as converted on a controller domain. Requests for the
VTN on that domain are then sent to the leaf domain. --undo clears the mark.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ctrlrName == "" || domainName == "" {
			return fmt.Errorf("controller and domain required: use -c and -D")
		}
		row, err := parseFullRow(args)
		if err != nil {
			return err
		}
		cd := row.CtrlrDom
		row.CtrlrDom = kv.CtrlrDom{}
		if err := mgr.Convert(cmd.Context(), row, cd, convertUndo); err != nil {
			return err
		}
		verb := "Converted"
		if convertUndo {
			verb = "Unconverted"
		}
		fmt.Printf("%s %s %s on %s\n", verb, row.KeyType, row.KeyString(), cd)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <keytype> [key]...",
	Short: "Show objects of one snapshot",
	Long: `Show the objects of one snapshot (candidate, running, startup) whose
key starts with the given components.

Tables: main (default), ctrlr, convert, rename.`,
	Example: `  upllctl show vtn
  upllctl show vbridge vtn1 --datatype running
  upllctl show vtn vtn1 --table ctrlr -c pfc1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := kv.ParseDataType(showDataType)
		if err != nil {
			return err
		}
		tbl, err := parseTable(showTable)
		if err != nil {
			return err
		}
		row, err := parseRow(args)
		if err != nil {
			return err
		}
		rows, err := mgr.Read(cmd.Context(), dt, tbl, row)
		if err != nil {
			return err
		}
		return printRows(rows)
	},
}

func parseTable(s string) (kv.TableType, error) {
	for _, tbl := range []kv.TableType{kv.TblMain, kv.TblCtrlr, kv.TblConvert, kv.TblRename} {
		if strings.EqualFold(s, tbl.String()) {
			return tbl, nil
		}
	}
	return 0, fmt.Errorf("unknown table %q (valid: main, ctrlr, convert, rename)", s)
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what the next commit would change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := mgr.Diff(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(diffViews(changes))
		}
		if len(changes) == 0 {
			fmt.Println("No changes.")
			return nil
		}
		t := cli.NewTable("OP", "TABLE", "KEYTYPE", "KEY", "CONTROLLER", "ATTRIBUTES")
		for _, c := range changes {
			op := c.Op.String()
			switch c.Op {
			case kv.OpCreate:
				op = cli.Green(op)
			case kv.OpDelete:
				op = cli.Red(op)
			default:
				op = cli.Yellow(op)
			}
			attrs := ""
			if m := c.Row.Main(); m != nil {
				attrs = cli.Attrs(m.AttrNames(), c.Row.Attr)
			}
			t.Row(op, c.Table.String(), c.Row.KeyType.String(), c.Row.KeyString(), c.Row.CtrlrDom.String(), attrs)
		}
		t.Flush()
		return nil
	},
}

type changeView struct {
	Op    string   `json:"op"`
	Table string   `json:"table"`
	Row   rowView  `json:"row"`
	Prev  *rowView `json:"prev,omitempty"`
}

func diffViews(changes []configmgr.Change) []changeView {
	out := make([]changeView, 0, len(changes))
	for _, c := range changes {
		v := changeView{Op: c.Op.String(), Table: c.Table.String(), Row: viewOf(c.Row)}
		if c.Prev != nil {
			p := viewOf(c.Prev)
			v.Prev = &p
		}
		out = append(out, v)
	}
	return out
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, updateCmd, deleteCmd, renameCmd, convertCmd, showCmd} {
		addRowFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringToStringVarP(&attrFlags, "attr", "a", nil, "Attribute name=value (repeatable)")
	}
	showCmd.Flags().StringVar(&showDataType, "datatype", "candidate", "Snapshot: candidate, running, startup")
	showCmd.Flags().StringVar(&showTable, "table", "main", "Table: main, ctrlr, convert, rename")
	convertCmd.Flags().BoolVar(&convertUndo, "undo", false, "Clear the converted mark")
}
