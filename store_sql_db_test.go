package sessionstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestSqlStore(t *testing.T) *SqlTransactionStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	store := &SqlTransactionStore{DbRw: db, QueryLimit: 100}
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestSqlGlobalLifecycle(t *testing.T) {
	store := newTestSqlStore(t)
	ctx := context.Background()

	g := newGlobal(10, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, g))

	session, err := store.ReadSessionWithBranches(ctx, g.XID, false)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, consts.GlobalStatusBegin, session.Status)
	require.NotZero(t, session.GmtCreate)

	g.Status = consts.GlobalStatusCommitting
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalUpdate, g))
	session, err = store.ReadSessionByTransactionID(ctx, 10, false)
	require.NoError(t, err)
	require.Equal(t, consts.GlobalStatusCommitting, session.Status)

	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalRemove, g))
	session, err = store.ReadSession(ctx, g.XID)
	require.NoError(t, err)
	require.Nil(t, session)

	// Idempotent: deleting again just logs.
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalRemove, g))
}

func TestSqlUpdateGlobalNotFound(t *testing.T) {
	store := newTestSqlStore(t)
	g := newGlobal(77, consts.GlobalStatusCommitting)
	err := store.WriteSession(context.Background(), consts.LogOperationGlobalUpdate, g)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSqlBranchLifecycle(t *testing.T) {
	store := newTestSqlStore(t)
	ctx := context.Background()

	g := newGlobal(10, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, g))
	// Register out of order; reads must come back sorted by branch id.
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchAdd, newBranch(101, g.XID)))
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchAdd, newBranch(100, g.XID)))

	session, err := store.ReadSession(ctx, g.XID)
	require.NoError(t, err)
	require.Len(t, session.Branches, 2)
	require.Equal(t, int64(100), session.Branches[0].BranchID)
	require.Equal(t, int64(101), session.Branches[1].BranchID)

	b := newBranch(100, g.XID)
	b.Status = consts.BranchStatusPhaseTwoCommitted
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchUpdate, b))

	branches, err := store.FindBranchSessionByXid(ctx, g.XID)
	require.NoError(t, err)
	require.Equal(t, consts.BranchStatusPhaseTwoCommitted, branches[0].Status)

	require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchRemove, b))
	branches, err = store.FindBranchSessionByXid(ctx, g.XID)
	require.NoError(t, err)
	require.Len(t, branches, 1)

	missing := newBranch(404, g.XID)
	err = store.WriteSession(ctx, consts.LogOperationBranchUpdate, missing)
	require.ErrorIs(t, err, ErrBranchSessionNotFound)
}

func TestSqlQueries(t *testing.T) {
	store := newTestSqlStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, newGlobal(int64(i), consts.GlobalStatusBegin)))
	}
	for i := 6; i <= 8; i++ {
		require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, newGlobal(int64(i), consts.GlobalStatusCommitting)))
	}

	byStatuses, err := store.ReadSessionsByStatuses(ctx, []consts.GlobalStatus{consts.GlobalStatusBegin}, false)
	require.NoError(t, err)
	require.Len(t, byStatuses, 5)

	page, err := store.ReadSessionStatusByPage(ctx, model.GlobalSessionParam{
		Status: consts.GlobalStatusBegin, PageNum: 2, PageSize: 3,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)

	all, err := store.FindGlobalSessionByPage(ctx, 1, 100, false)
	require.NoError(t, err)
	require.Len(t, all, 8)

	total, err := store.CountByGlobalSessions(ctx, []consts.GlobalStatus{
		consts.GlobalStatusBegin, consts.GlobalStatusCommitting,
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), total)

	tid := int64(6)
	byTid, err := store.ReadSessionsByCondition(ctx, model.SessionCondition{TransactionID: &tid})
	require.NoError(t, err)
	require.Len(t, byTid, 1)
	require.Equal(t, consts.GlobalStatusCommitting, byTid[0].Status)
}
