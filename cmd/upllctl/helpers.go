package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"golang.org/x/term"

	"github.com/newtron-network/upll/pkg/cli"
	"github.com/newtron-network/upll/pkg/upll/config"
	"github.com/newtron-network/upll/pkg/upll/kv"
)

// Row-selection flags shared by the candidate commands.
var (
	ctrlrName  string
	domainName string
	attrFlags  map[string]string
)

// promptPasswords asks on the terminal for the SSH password of every
// controller that has an SSH user but no password.
func promptPasswords(c *config.Config) error {
	for i := range c.Controllers {
		ctl := &c.Controllers[i]
		if ctl.SSHUser == "" || ctl.SSHPass != "" {
			continue
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return fmt.Errorf("controller %s: ssh_pass not set and stdin is not a terminal", ctl.Name)
		}
		fmt.Fprintf(os.Stderr, "SSH password for %s@%s (%s): ", ctl.SSHUser, ctl.Addr, ctl.Name)
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		ctl.SSHPass = string(pass)
	}
	return nil
}

func currentUser() string {
	return userSettings.GetUser()
}

// parseRow builds a row from "<keytype> <key>..." arguments and the
// row-selection flags.
func parseRow(args []string) (*kv.ConfigKeyVal, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("key type required (vtn, vbridge, vbr_if)")
	}
	kt, err := kv.ParseKeyType(args[0])
	if err != nil {
		return nil, err
	}
	key := args[1:]
	if len(key) > kt.KeyLen() {
		return nil, fmt.Errorf("%s takes at most %d key components: %v", kt, kt.KeyLen(), kt.KeyNames())
	}
	row := kv.NewConfigKeyVal(kt, key...)
	row.CtrlrDom = kv.CtrlrDom{Ctrlr: ctrlrName, Domain: domainName}
	names := make([]string, 0, len(attrFlags))
	for n := range attrFlags {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		row.SetAttr(n, attrFlags[n])
	}
	return row, nil
}

// parseFullRow is parseRow requiring every key component.
func parseFullRow(args []string) (*kv.ConfigKeyVal, error) {
	row, err := parseRow(args)
	if err != nil {
		return nil, err
	}
	if len(row.Key) != row.KeyType.KeyLen() {
		return nil, fmt.Errorf("%s requires key %v", row.KeyType, row.KeyType.KeyNames())
	}
	return row, nil
}

// rowView is the JSON rendering of a row.
type rowView struct {
	KeyType string            `json:"keytype"`
	Key     []string          `json:"key"`
	Ctrlr   string            `json:"controller,omitempty"`
	Domain  string            `json:"domain,omitempty"`
	Status  string            `json:"status,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Dirty   bool              `json:"audit_dirty,omitempty"`
}

func viewOf(r *kv.ConfigKeyVal) rowView {
	v := rowView{
		KeyType: r.KeyType.String(),
		Key:     r.Key,
		Ctrlr:   r.CtrlrDom.Ctrlr,
		Domain:  r.CtrlrDom.Domain,
		Dirty:   r.Flags&kv.FlagAuditDirty != 0,
	}
	if m := r.Main(); m != nil {
		v.Status = m.Cs.String()
		v.Attrs = m.Attrs
	}
	return v
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRows renders a row chain as a table or JSON.
func printRows(rows *kv.ConfigKeyVal) error {
	var views []rowView
	for r := rows; r != nil; r = r.Next {
		views = append(views, viewOf(r))
	}
	if jsonOutput {
		return printJSON(views)
	}

	t := cli.NewTable("KEYTYPE", "KEY", "CONTROLLER", "DOMAIN", "STATUS", "ATTRIBUTES")
	for r := rows; r != nil; r = r.Next {
		v := viewOf(r)
		status := cli.Status(v.Status)
		if v.Dirty {
			status += cli.Yellow(" *")
		}
		attrs := ""
		if m := r.Main(); m != nil {
			attrs = cli.Attrs(m.AttrNames(), r.Attr)
		}
		t.Row(v.KeyType, r.KeyString(), v.Ctrlr, v.Domain, status, attrs)
	}
	return t.Flush()
}
