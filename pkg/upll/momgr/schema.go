package momgr

import "github.com/newtron-network/upll/pkg/upll/kv"

// schema describes the tables and attributes of one key type.
type schema struct {
	kt kv.KeyType

	tables []kv.TableType
	// dispatch lists the tables whose rows are sent to controllers.
	dispatch []kv.TableType
	// noUpdate lists tables with no in-place update at the driver.
	noUpdate map[kv.TableType]bool

	// ctrlrInMain is set when main rows carry their controller-domain.
	ctrlrInMain bool
	// inheritCtrlr is set when main rows take the parent's
	// controller-domain.
	inheritCtrlr bool
	// trackParent is set when instances keep one parent controller-table
	// row per controller-domain they live on.
	trackParent bool

	attrs map[string]bool
	// propagate lists main attributes copied to controller-table rows.
	propagate []string
}

func (s *schema) has(tbl kv.TableType) bool {
	for _, t := range s.tables {
		if t == tbl {
			return true
		}
	}
	return false
}

func attrSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var vtnSchema = &schema{
	kt:        kv.KtVtn,
	tables:    []kv.TableType{kv.TblMain, kv.TblCtrlr, kv.TblConvert, kv.TblRename},
	dispatch:  []kv.TableType{kv.TblCtrlr, kv.TblConvert},
	noUpdate:  map[kv.TableType]bool{kv.TblConvert: true},
	attrs:     attrSet("description"),
	propagate: []string{"description"},
}

var vbridgeSchema = &schema{
	kt:          kv.KtVbridge,
	tables:      []kv.TableType{kv.TblMain, kv.TblRename},
	dispatch:    []kv.TableType{kv.TblMain},
	ctrlrInMain: true,
	trackParent: true,
	attrs:       attrSet("description", "host_addr", "host_addr_prefixlen"),
}

var vbrIfSchema = &schema{
	kt:           kv.KtVbrIf,
	tables:       []kv.TableType{kv.TblMain},
	dispatch:     []kv.TableType{kv.TblMain},
	ctrlrInMain:  true,
	inheritCtrlr: true,
	attrs:        attrSet("description", "admin_status", "logical_port_id"),
}
