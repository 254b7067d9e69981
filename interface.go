package sessionstore

import (
	"context"

	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
)

// TransactionStore is the session persistence contract the coordinator
// depends on. Reads report absence as a nil (or empty) value; only mutations
// that require prior state raise not-found errors.
//
// The module ships three implementations: Redis (the shared multi-peer
// store), SQL and LevelDB.
type TransactionStore interface {
	// WriteSession applies one mutation. GLOBAL_* operations expect a
	// *model.GlobalTransactionRecord, BRANCH_* a
	// *model.BranchTransactionRecord; anything else fails with
	// ErrInvalidOperation.
	WriteSession(ctx context.Context, op consts.LogOperation, record model.SessionRecord) error

	// ReadSession loads one aggregate by xid, with branches.
	ReadSession(ctx context.Context, xid string) (*model.GlobalSession, error)

	// ReadSessionWithBranches loads one aggregate by xid, optionally
	// hydrating branches.
	ReadSessionWithBranches(ctx context.Context, xid string, withBranchSessions bool) (*model.GlobalSession, error)

	// ReadSessionsByStatuses loads aggregates whose status is in the set,
	// capped by the configured query limit spread across the statuses.
	ReadSessionsByStatuses(ctx context.Context, statuses []consts.GlobalStatus, withBranchSessions bool) ([]*model.GlobalSession, error)

	// ReadSessionsByCondition dispatches on the populated condition field:
	// xid, then transaction id, then status set, then single status.
	ReadSessionsByCondition(ctx context.Context, condition model.SessionCondition) ([]*model.GlobalSession, error)

	// ReadSessionStatusByPage pages one status list.
	ReadSessionStatusByPage(ctx context.Context, param model.GlobalSessionParam) ([]*model.GlobalSession, error)

	// FindGlobalSessionByPage pages over all globals regardless of status.
	FindGlobalSessionByPage(ctx context.Context, pageNum, pageSize int, withBranch bool) ([]*model.GlobalSession, error)

	// FindBranchSessionByXid returns the branches of xid, sorted by branch
	// id ascending. Empty when the parent is gone or has no branches.
	FindBranchSessionByXid(ctx context.Context, xid string) ([]*model.BranchTransactionRecord, error)

	// CountByGlobalSessions totals the live globals across the statuses.
	CountByGlobalSessions(ctx context.Context, statuses []consts.GlobalStatus) (int64, error)
}

var (
	_ TransactionStore = (*RedisTransactionStore)(nil)
	_ TransactionStore = (*SqlTransactionStore)(nil)
	_ TransactionStore = (*LevelDbTransactionStore)(nil)
)
