// Package driver is the southbound boundary: request and reply envelopes
// exchanged with controller drivers, and the drivers themselves.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/upll/pkg/upll/ctrlr"
	"github.com/newtron-network/upll/pkg/upll/kv"
)

// LeafTag prefixes the domain of a row that also exists in the converted
// table. Existing drivers match this literal.
const LeafTag = "(PF_LEAF)"

// DomainTag returns the domain string sent to the driver.
func DomainTag(domain string, leaf bool) string {
	if leaf {
		return LeafTag + domain
	}
	return domain
}

// SplitDomainTag strips the leaf tag from a domain string.
func SplitDomainTag(tagged string) (domain string, leaf bool) {
	if strings.HasPrefix(tagged, LeafTag) {
		return strings.TrimPrefix(tagged, LeafTag), true
	}
	return tagged, false
}

// ResultCode is the outcome a driver reports for one request.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	// ResultCtrlrDisconnected means the controller could not be reached.
	// The request is not applied and the transaction continues.
	ResultCtrlrDisconnected
	// ResultRejected means the controller refused the configuration.
	ResultRejected
	// ResultFailure is any other driver-side error.
	ResultFailure
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCtrlrDisconnected:
		return "ctrlr-disconnected"
	case ResultRejected:
		return "rejected"
	case ResultFailure:
		return "failure"
	}
	return fmt.Sprintf("ResultCode(%d)", int(r))
}

// Hard reports whether the result aborts a commit.
func (r ResultCode) Hard() bool {
	return r != ResultSuccess && r != ResultCtrlrDisconnected
}

// StatusFor maps a driver result to the config status of the row on that
// controller.
func StatusFor(r ResultCode) kv.ConfigStatus {
	switch r {
	case ResultSuccess:
		return kv.CsApplied
	case ResultCtrlrDisconnected:
		return kv.CsUnknown
	}
	return kv.CsInvalid
}

// Request is one southbound request. Rows is a chain; the first row's
// ValOld block, if any, carries the previous value for UPDATE.
type Request struct {
	Session  ctrlr.Session
	Op       kv.Operation
	DataType kv.DataType
	Ctrlr    string
	Domain   string
	Rows     *kv.ConfigKeyVal
}

// Reply is the driver's answer. ErrRow identifies the offending row on
// failure, in controller naming.
type Reply struct {
	Result ResultCode
	ErrRow *kv.ConfigKeyVal
}

// Driver talks to southbound controllers.
type Driver interface {
	// Send delivers one request. Unreachable controllers produce a reply
	// with ResultCtrlrDisconnected; the error return is for requests that
	// could not be attempted at all.
	Send(ctx context.Context, req *Request) (*Reply, error)
	// ReadConfig returns the configuration of one key type held by the
	// controller, in controller naming. Each row's domain is the domain
	// string as sent, leaf tag included.
	// util.ErrNoSuchInstance when the controller holds none.
	ReadConfig(ctx context.Context, ctrlr string, kt kv.KeyType) (*kv.ConfigKeyVal, error)
	// Ping checks that the controller is reachable.
	Ping(ctx context.Context, ctrlr string) error
}
