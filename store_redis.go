package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
)

// RedisTransactionStore persists global and branch sessions in a
// Redis-compatible server shared by all TC peers. The store itself is
// stateless beyond its configuration; cross-key consistency is mediated by
// the server's WATCH/MULTI/EXEC and by idempotent operation shapes. A
// periodic status-index reconciliation (RepairStatusIndex) is the safety net
// for partially applied pipelines.
type RedisTransactionStore struct {
	Client *redis.Client

	// QueryLimit caps the total xids returned by a multi-status query.
	// Zero means consts.DefaultQueryLimit.
	QueryLimit int

	Metrics *model.Metrics
}

// WriteSession applies one mutation to the backing store. A nil error means
// the mutation took effect, or that a concurrent peer already applied an
// equivalent one.
func (s *RedisTransactionStore) WriteSession(ctx context.Context, op consts.LogOperation, record model.SessionRecord) (err error) {
	startTime := time.Now()
	defer func() {
		s.Metrics.Observe(strings.ToLower(op.String()), time.Since(startTime).Seconds())
	}()

	switch op {
	case consts.LogOperationGlobalAdd:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		return s.insertGlobal(ctx, g)
	case consts.LogOperationGlobalUpdate:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		return s.updateGlobal(ctx, g)
	case consts.LogOperationGlobalRemove:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		return s.deleteGlobal(ctx, g)
	case consts.LogOperationBranchAdd:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return s.insertBranch(ctx, b)
	case consts.LogOperationBranchUpdate:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return s.updateBranch(ctx, b)
	case consts.LogOperationBranchRemove:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return s.deleteBranch(ctx, b)
	default:
		return fmt.Errorf("unknown log operation %s: %w", op, ErrInvalidOperation)
	}
}

// insertGlobal writes the session hash and appends the xid to its status
// list in one non-atomic pipeline. A crash between the two leaves at worst a
// zombie status entry, reconciled by the recovery scan.
func (s *RedisTransactionStore) insertGlobal(ctx context.Context, g *model.GlobalTransactionRecord) error {
	now := time.Now().UnixMilli()
	g.GmtCreate = now
	g.GmtModified = now
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HMSet(ctx, consts.GlobalKey(g.TransactionID), encodeGlobal(g))
		pipe.RPush(ctx, consts.StatusKey(g.Status), g.XID)
		return nil
	})
	if err != nil {
		return wrapStoreErr("insert global", err)
	}
	return nil
}

// deleteGlobal removes the hash and the status-list entry. The caller's
// status is taken as source of truth for which list to clean. Missing hash
// is success: a peer got there first.
func (s *RedisTransactionStore) deleteGlobal(ctx context.Context, g *model.GlobalTransactionRecord) error {
	globalKey := consts.GlobalKey(g.TransactionID)
	xid, err := s.Client.HGet(ctx, globalKey, consts.FieldXID).Result()
	if errors.Is(err, redis.Nil) || (err == nil && xid == "") {
		log.Warn().Str("xid", g.XID).Msg("global transaction is not exist, maybe has been deleted by another tc server")
		return nil
	}
	if err != nil {
		return wrapStoreErr("delete global", err)
	}
	_, err = s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, consts.StatusKey(g.Status), 0, g.XID)
		pipe.Del(ctx, globalKey)
		return nil
	})
	if err != nil {
		return wrapStoreErr("delete global", err)
	}
	return nil
}

// updateGlobal moves the session to a new status: the hash field and the
// status index change together inside MULTI/EXEC, guarded by a WATCH on the
// hash. The backing store offers no multi-key rollback on partial success,
// so an unsatisfactory EXEC reply triggers a best-effort compensation that
// restores the prior state.
func (s *RedisTransactionStore) updateGlobal(ctx context.Context, g *model.GlobalTransactionRecord) error {
	globalKey := consts.GlobalKey(g.TransactionID)
	newStatusValue := strconv.Itoa(int(g.Status))

	err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, globalKey, consts.FieldStatus, consts.FieldGmtModified).Result()
		if err != nil {
			return wrapStoreErr("update global", err)
		}
		previousStatus, _ := vals[0].(string)
		if previousStatus == "" {
			_ = tx.Unwatch(ctx).Err()
			return fmt.Errorf("update global transaction failed: %w", ErrSessionNotFound)
		}
		if previousStatus == newStatusValue {
			// Idempotent: nothing to move, gmtModified stays put.
			_ = tx.Unwatch(ctx).Err()
			return nil
		}
		previousGmtModified, _ := vals[1].(string)
		previousStatusKey := consts.StatusKey(consts.GlobalStatus(parseInt(previousStatus)))
		newStatusKey := consts.StatusKey(g.Status)

		var hmset *redis.BoolCmd
		var lrem, rpush *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			hmset = pipe.HMSet(ctx, globalKey, map[string]string{
				consts.FieldStatus:      newStatusValue,
				consts.FieldGmtModified: strconv.FormatInt(time.Now().UnixMilli(), 10),
			})
			lrem = pipe.LRem(ctx, previousStatusKey, 0, g.XID)
			rpush = pipe.RPush(ctx, newStatusKey, g.XID)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			// Another TC raced us on this key. Some transition happened,
			// which is the only guarantee we owe.
			log.Warn().Str("xid", g.XID).Msg("global transaction maybe changed by another tc, it does not affect the results")
			return nil
		}
		if err != nil {
			return wrapStoreErr("update global", err)
		}
		if hmset.Val() && lrem.Val() > 0 && rpush.Val() > 0 {
			return nil
		}
		s.compensateUpdate(ctx, tx, g, globalKey, previousStatus, previousGmtModified, hmset.Val(), lrem.Val(), rpush.Val())
		return fmt.Errorf("update global transaction %s partially applied: %w", g.XID, ErrWriteConflict)
	}, globalKey)
	return err
}

// compensateUpdate undoes whichever of the three commands took effect.
// Best effort only: failures are logged and left to the recovery scan.
func (s *RedisTransactionStore) compensateUpdate(ctx context.Context, tx *redis.Tx, g *model.GlobalTransactionRecord,
	globalKey, previousStatus, previousGmtModified string, hashWritten bool, lrem, rpush int64) {
	previousStatusKey := consts.StatusKey(consts.GlobalStatus(parseInt(previousStatus)))
	newStatusKey := consts.StatusKey(g.Status)

	if hashWritten {
		// Re-watch before restoring: a peer may legitimately own the key now.
		if err := tx.Watch(ctx, globalKey).Err(); err != nil {
			log.Error().Err(err).Str("xid", g.XID).Msg("compensation watch failed, relying on recovery scan")
		} else {
			xid, err := tx.HGet(ctx, globalKey, consts.FieldXID).Result()
			if err == nil && xid != "" {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.HMSet(ctx, globalKey, map[string]string{
						consts.FieldStatus:      previousStatus,
						consts.FieldGmtModified: previousGmtModified,
					})
					return nil
				})
				if err != nil {
					log.Error().Err(err).Str("xid", g.XID).Msg("compensation hash restore failed, relying on recovery scan")
				}
			} else {
				_ = tx.Unwatch(ctx).Err()
			}
		}
	}
	if lrem > 0 {
		if err := tx.RPush(ctx, previousStatusKey, g.XID).Err(); err != nil {
			log.Error().Err(err).Str("xid", g.XID).Msg("compensation rpush failed, relying on recovery scan")
		}
	}
	if rpush > 0 {
		if err := tx.LRem(ctx, newStatusKey, 0, g.XID).Err(); err != nil {
			log.Error().Err(err).Str("xid", g.XID).Msg("compensation lrem failed, relying on recovery scan")
		}
	}
}

// insertBranch writes the branch hash and appends the branch key to the
// parent's branch list in one pipeline.
func (s *RedisTransactionStore) insertBranch(ctx context.Context, b *model.BranchTransactionRecord) error {
	now := time.Now().UnixMilli()
	b.GmtCreate = now
	b.GmtModified = now
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HMSet(ctx, consts.BranchKey(b.BranchID), encodeBranch(b))
		pipe.RPush(ctx, consts.BranchListKey(b.XID), consts.BranchKey(b.BranchID))
		return nil
	})
	if err != nil {
		return wrapStoreErr("insert branch", err)
	}
	return nil
}

// updateBranch mutates status, gmtModified and (when provided) the
// application data. Branches carry no status index.
func (s *RedisTransactionStore) updateBranch(ctx context.Context, b *model.BranchTransactionRecord) error {
	branchKey := consts.BranchKey(b.BranchID)
	previousStatus, err := s.Client.HGet(ctx, branchKey, consts.FieldStatus).Result()
	if errors.Is(err, redis.Nil) || (err == nil && previousStatus == "") {
		return fmt.Errorf("update branch transaction failed: %w", ErrBranchSessionNotFound)
	}
	if err != nil {
		return wrapStoreErr("update branch", err)
	}
	fields := map[string]string{
		consts.FieldStatus:      strconv.Itoa(int(b.Status)),
		consts.FieldGmtModified: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if b.ApplicationData != "" {
		fields[consts.FieldApplicationData] = b.ApplicationData
	}
	if err = s.Client.HMSet(ctx, branchKey, fields).Err(); err != nil {
		return wrapStoreErr("update branch", err)
	}
	return nil
}

// deleteBranch removes the branch hash and its branch-list entry.
// Missing hash is success, a peer already cleaned up.
func (s *RedisTransactionStore) deleteBranch(ctx context.Context, b *model.BranchTransactionRecord) error {
	branchKey := consts.BranchKey(b.BranchID)
	xid, err := s.Client.HGet(ctx, branchKey, consts.FieldXID).Result()
	if errors.Is(err, redis.Nil) || (err == nil && xid == "") {
		return nil
	}
	if err != nil {
		return wrapStoreErr("delete branch", err)
	}
	_, err = s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, consts.BranchListKey(b.XID), 0, branchKey)
		pipe.Del(ctx, branchKey)
		return nil
	})
	if err != nil {
		return wrapStoreErr("delete branch", err)
	}
	return nil
}

func (s *RedisTransactionStore) queryLimit() int {
	if s.QueryLimit > 0 {
		return s.QueryLimit
	}
	return consts.DefaultQueryLimit
}
