package sessionstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
)

func newTestLevelDbStore(t *testing.T) *LevelDbTransactionStore {
	t.Helper()
	ldb, err := leveldb.OpenFile(filepath.Join(t.TempDir(), "sessions"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ldb.Close() })
	return &LevelDbTransactionStore{Ldb: ldb, QueryLimit: 100}
}

func TestLevelDbGlobalLifecycle(t *testing.T) {
	store := newTestLevelDbStore(t)
	ctx := context.Background()

	g := newGlobal(10, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, g))

	session, err := store.ReadSession(ctx, g.XID)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, consts.GlobalStatusBegin, session.Status)
	require.Equal(t, session.GmtCreate, session.GmtModified)

	g.Status = consts.GlobalStatusCommitting
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalUpdate, g))
	session, err = store.ReadSessionByTransactionID(ctx, 10, false)
	require.NoError(t, err)
	require.Equal(t, consts.GlobalStatusCommitting, session.Status)

	// Updating to the current status leaves the record untouched.
	before := *session
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalUpdate, g))
	session, err = store.ReadSessionByTransactionID(ctx, 10, false)
	require.NoError(t, err)
	require.Equal(t, before.GmtModified, session.GmtModified)

	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalRemove, g))
	session, err = store.ReadSession(ctx, g.XID)
	require.NoError(t, err)
	require.Nil(t, session)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalRemove, g))
}

func TestLevelDbUpdateGlobalNotFound(t *testing.T) {
	store := newTestLevelDbStore(t)
	err := store.WriteSession(context.Background(), consts.LogOperationGlobalUpdate, newGlobal(77, consts.GlobalStatusCommitting))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLevelDbBranchOrdering(t *testing.T) {
	store := newTestLevelDbStore(t)
	ctx := context.Background()

	g := newGlobal(10, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, g))
	for _, id := range []int64{300, 2, 100} {
		require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchAdd, newBranch(id, g.XID)))
	}

	branches, err := store.FindBranchSessionByXid(ctx, g.XID)
	require.NoError(t, err)
	require.Len(t, branches, 3)
	require.Equal(t, int64(2), branches[0].BranchID)
	require.Equal(t, int64(100), branches[1].BranchID)
	require.Equal(t, int64(300), branches[2].BranchID)

	b := newBranch(2, g.XID)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationBranchRemove, b))
	branches, err = store.FindBranchSessionByXid(ctx, g.XID)
	require.NoError(t, err)
	require.Len(t, branches, 2)
}

func TestLevelDbQueries(t *testing.T) {
	store := newTestLevelDbStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, newGlobal(int64(i), consts.GlobalStatusBegin)))
	}
	for i := 6; i <= 8; i++ {
		require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, newGlobal(int64(i), consts.GlobalStatusCommitting)))
	}

	byStatuses, err := store.ReadSessionsByStatuses(ctx, []consts.GlobalStatus{consts.GlobalStatusCommitting}, false)
	require.NoError(t, err)
	require.Len(t, byStatuses, 3)

	page, err := store.ReadSessionStatusByPage(ctx, model.GlobalSessionParam{
		Status: consts.GlobalStatusBegin, PageNum: 2, PageSize: 3,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)

	page1, err := store.FindGlobalSessionByPage(ctx, 1, 5, false)
	require.NoError(t, err)
	require.Len(t, page1, 5)
	page2, err := store.FindGlobalSessionByPage(ctx, 2, 5, false)
	require.NoError(t, err)
	require.Len(t, page2, 3)

	total, err := store.CountByGlobalSessions(ctx, []consts.GlobalStatus{consts.GlobalStatusBegin})
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
}
