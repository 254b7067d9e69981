package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/txmesh/sessionstore/consts"
)

func TestRepairStatusIndex(t *testing.T) {
	store, client := newTestRedisStore(t)
	ctx := context.Background()

	// Healthy record.
	healthy := newGlobal(1, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, healthy))

	// Zombie index entry: xid with no backing hash.
	require.NoError(t, client.RPush(ctx, "status:1", "1.1.1.1:8091:404").Err())

	// Record missing from its own status list.
	orphan := newGlobal(2, consts.GlobalStatusCommitting)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, orphan))
	require.NoError(t, client.LRem(ctx, "status:2", 0, orphan.XID).Err())

	// Duplicate index entries.
	doubled := newGlobal(3, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, doubled))
	require.NoError(t, client.RPush(ctx, "status:1", doubled.XID).Err())

	// Indexed under a stale status list.
	moved := newGlobal(4, consts.GlobalStatusBegin)
	require.NoError(t, store.WriteSession(ctx, consts.LogOperationGlobalAdd, moved))
	require.NoError(t, client.HSet(ctx, "global:4", consts.FieldStatus, "4").Err())

	require.NoError(t, store.RepairStatusIndex(ctx))

	requireUniqueMembership := func(xid string, status consts.GlobalStatus) {
		t.Helper()
		for _, s := range consts.AllGlobalStatuses {
			entries := client.LRange(ctx, consts.StatusKey(s), 0, -1).Val()
			count := 0
			for _, entry := range entries {
				if entry == xid {
					count++
				}
			}
			if s == status {
				require.Equal(t, 1, count, "xid %s in list %d", xid, s)
			} else {
				require.Zero(t, count, "xid %s in list %d", xid, s)
			}
		}
	}

	requireUniqueMembership(healthy.XID, consts.GlobalStatusBegin)
	requireUniqueMembership(orphan.XID, consts.GlobalStatusCommitting)
	requireUniqueMembership(doubled.XID, consts.GlobalStatusBegin)
	requireUniqueMembership(moved.XID, consts.GlobalStatusRollbacking)

	for _, s := range consts.AllGlobalStatuses {
		require.NotContains(t, client.LRange(ctx, consts.StatusKey(s), 0, -1).Val(), "1.1.1.1:8091:404")
	}

	// A second run finds nothing left to repair.
	require.NoError(t, store.RepairStatusIndex(ctx))
	requireUniqueMembership(healthy.XID, consts.GlobalStatusBegin)
}
