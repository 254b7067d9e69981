package sessionstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/txmesh/sessionstore/consts"
)

// RepairStatusIndex walks every status list and every global hash and
// restores the one-xid-one-list invariant: entries whose hash is gone or
// names a different status are dropped, duplicates collapse to one, and
// globals missing from their own status list are appended. Idempotent and
// safe to run concurrently with traffic; a repair raced by a peer converges
// on the next run. Intended to be driven by the coordinator's recovery loop.
func (s *RedisTransactionStore) RepairStatusIndex(ctx context.Context) error {
	// Pass 1: prune the lists against per-record truth, remembering which
	// xids keep a (now unique) membership.
	indexed := make(map[string]consts.GlobalStatus)
	for _, status := range consts.AllGlobalStatuses {
		statusKey := consts.StatusKey(status)
		xids, err := s.Client.LRange(ctx, statusKey, 0, -1).Result()
		if err != nil {
			return wrapStoreErr("reconcile lrange", err)
		}
		occurrences := make(map[string]int, len(xids))
		for _, xid := range xids {
			occurrences[xid]++
		}
		for xid, count := range occurrences {
			recordStatus, exists, err := s.readRecordStatus(ctx, xid)
			if err != nil {
				return err
			}
			if !exists || recordStatus != status {
				if err := s.Client.LRem(ctx, statusKey, 0, xid).Err(); err != nil {
					return wrapStoreErr("reconcile lrem", err)
				}
				log.Warn().Str("xid", xid).Int("statusList", int(status)).Msg("removed stale status index entry")
				continue
			}
			if count > 1 {
				if err := s.Client.LRem(ctx, statusKey, 0, xid).Err(); err != nil {
					return wrapStoreErr("reconcile lrem", err)
				}
				if err := s.Client.RPush(ctx, statusKey, xid).Err(); err != nil {
					return wrapStoreErr("reconcile rpush", err)
				}
				log.Warn().Str("xid", xid).Int("statusList", int(status)).Msg("collapsed duplicate status index entries")
			}
			indexed[xid] = status
		}
	}

	// Pass 2: re-index globals that pass 1 never saw.
	var cursor uint64
	for {
		globalKeys, next, err := s.Client.Scan(ctx, cursor, consts.GlobalKeyPattern, 100).Result()
		if err != nil {
			return wrapStoreErr("reconcile scan", err)
		}
		for _, globalKey := range globalKeys {
			vals, err := s.Client.HMGet(ctx, globalKey, consts.FieldXID, consts.FieldStatus).Result()
			if err != nil {
				return wrapStoreErr("reconcile hmget", err)
			}
			xid, _ := vals[0].(string)
			statusValue, _ := vals[1].(string)
			if xid == "" {
				continue
			}
			status := consts.GlobalStatus(parseInt(statusValue))
			if indexedStatus, ok := indexed[xid]; ok && indexedStatus == status {
				continue
			}
			if err := s.Client.RPush(ctx, consts.StatusKey(status), xid).Err(); err != nil {
				return wrapStoreErr("reconcile rpush", err)
			}
			indexed[xid] = status
			log.Warn().Str("xid", xid).Int("statusList", int(status)).Msg("restored missing status index entry")
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisTransactionStore) readRecordStatus(ctx context.Context, xid string) (consts.GlobalStatus, bool, error) {
	transactionID, err := TransactionIDFromXID(xid)
	if err != nil {
		// An unparseable xid can never resolve to a hash; treat as gone.
		return 0, false, nil
	}
	statusValue, err := s.Client.HGet(ctx, consts.GlobalKey(transactionID), consts.FieldStatus).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapStoreErr("reconcile hget", err)
	}
	if statusValue == "" {
		return 0, false, nil
	}
	return consts.GlobalStatus(parseInt(statusValue)), true, nil
}
