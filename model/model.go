package model

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/txmesh/sessionstore/consts"
)

// GlobalTransactionRecord is the persisted form of a global transaction.
// GmtCreate is set once at insert; GmtModified on every successful mutation.
// Both are epoch milliseconds, as are BeginTime and Timeout (duration ms).
type GlobalTransactionRecord struct {
	XID                     string
	TransactionID           int64
	Status                  consts.GlobalStatus
	ApplicationID           string
	TransactionServiceGroup string
	TransactionName         string
	Timeout                 int64
	BeginTime               int64
	ApplicationData         string
	GmtCreate               int64
	GmtModified             int64
}

func (g *GlobalTransactionRecord) sessionRecord() {}

// BranchTransactionRecord is the persisted form of a branch transaction.
type BranchTransactionRecord struct {
	BranchID        int64
	XID             string
	TransactionID   int64
	ResourceGroupID string
	ResourceID      string
	ClientID        string
	BranchType      consts.BranchType
	Status          consts.BranchStatus
	ApplicationData string
	GmtCreate       int64
	GmtModified     int64
}

func (b *BranchTransactionRecord) sessionRecord() {}

// SessionRecord is the union of the two record types accepted by
// WriteSession. The marker method keeps arbitrary types out.
type SessionRecord interface {
	sessionRecord()
}

// GlobalSession is the aggregate handed back by the read paths: one global
// record with (optionally) its branches, sorted by branch id ascending.
type GlobalSession struct {
	GlobalTransactionRecord
	Branches []*BranchTransactionRecord
}

// SessionCondition is the union query: exactly one of XID, TransactionID,
// Statuses or Status is consulted, in that order.
type SessionCondition struct {
	XID            string
	TransactionID  *int64
	Statuses       []consts.GlobalStatus
	Status         *consts.GlobalStatus
	LazyLoadBranch bool
}

// GlobalSessionParam drives the status-paged console query.
type GlobalSessionParam struct {
	Status     consts.GlobalStatus
	PageNum    int
	PageSize   int
	WithBranch bool
}

// Metrics carries the optional prometheus collectors observed by the stores.
// A nil Metrics (or nil collector) disables observation.
type Metrics struct {
	MetricsName string
	OpDuration  *prometheus.HistogramVec
}

// Observe records one operation duration in seconds under the given label.
func (m *Metrics) Observe(op string, seconds float64) {
	if m == nil || m.OpDuration == nil {
		return
	}
	m.OpDuration.WithLabelValues(m.MetricsName + "_" + op).Observe(seconds)
}
