package sessionstore

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
	"golang.org/x/sync/errgroup"
)

// branchListWindow is the LRANGE chunk size used when draining a branch list.
const branchListWindow = 20

// hydrateParallelism bounds the concurrent aggregate loads of a multi-xid
// query.
const hydrateParallelism = 8

// ReadSession loads one aggregate by xid, branches included.
func (s *RedisTransactionStore) ReadSession(ctx context.Context, xid string) (*model.GlobalSession, error) {
	return s.ReadSessionWithBranches(ctx, xid, true)
}

// ReadSessionWithBranches loads one aggregate by xid. Absence is a nil
// session, not an error.
func (s *RedisTransactionStore) ReadSessionWithBranches(ctx context.Context, xid string, withBranchSessions bool) (*model.GlobalSession, error) {
	transactionID, err := TransactionIDFromXID(xid)
	if err != nil {
		return nil, err
	}
	return s.readSessionByGlobalKey(ctx, consts.GlobalKey(transactionID), withBranchSessions)
}

// ReadSessionByTransactionID loads one aggregate keyed directly by the
// transaction id.
func (s *RedisTransactionStore) ReadSessionByTransactionID(ctx context.Context, transactionID int64, withBranchSessions bool) (*model.GlobalSession, error) {
	return s.readSessionByGlobalKey(ctx, consts.GlobalKey(transactionID), withBranchSessions)
}

func (s *RedisTransactionStore) readSessionByGlobalKey(ctx context.Context, globalKey string, withBranchSessions bool) (*model.GlobalSession, error) {
	fields, err := s.Client.HGetAll(ctx, globalKey).Result()
	if err != nil {
		return nil, wrapStoreErr("read global", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	session := &model.GlobalSession{GlobalTransactionRecord: *decodeGlobal(fields)}
	if withBranchSessions {
		session.Branches, err = s.readBranchesByXid(ctx, session.XID)
		if err != nil {
			return nil, err
		}
	}
	return session, nil
}

// ReadSessionsByStatuses loads the aggregates currently indexed under any of
// the statuses. Each status list is capped at queryLimit/len(statuses),
// floored at one, so the combined result never exceeds the configured limit.
func (s *RedisTransactionStore) ReadSessionsByStatuses(ctx context.Context, statuses []consts.GlobalStatus, withBranchSessions bool) ([]*model.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	limit := s.queryLimit() / len(statuses)
	if limit < 1 {
		limit = 1
	}
	cmds := make([]*redis.StringSliceCmd, len(statuses))
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, status := range statuses {
			cmds[i] = pipe.LRange(ctx, consts.StatusKey(status), 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("read by statuses", err)
	}
	var xids []string
	for _, cmd := range cmds {
		xids = append(xids, cmd.Val()...)
	}
	return s.readSessionsByXids(ctx, xids, withBranchSessions)
}

// readSessionsByXids hydrates aggregates in parallel, preserving the input
// order and dropping xids whose hash vanished concurrently.
func (s *RedisTransactionStore) readSessionsByXids(ctx context.Context, xids []string, withBranchSessions bool) ([]*model.GlobalSession, error) {
	slots := make([]*model.GlobalSession, len(xids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(hydrateParallelism)
	for i, xid := range xids {
		i, xid := i, xid
		eg.Go(func() error {
			session, err := s.ReadSessionWithBranches(egCtx, xid, withBranchSessions)
			if err != nil {
				return err
			}
			slots[i] = session
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sessions := make([]*model.GlobalSession, 0, len(xids))
	for _, session := range slots {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

// ReadSessionsByCondition dispatches on the populated condition field.
func (s *RedisTransactionStore) ReadSessionsByCondition(ctx context.Context, condition model.SessionCondition) ([]*model.GlobalSession, error) {
	withBranch := !condition.LazyLoadBranch
	switch {
	case condition.XID != "":
		session, err := s.ReadSessionWithBranches(ctx, condition.XID, withBranch)
		if err != nil || session == nil {
			return nil, err
		}
		return []*model.GlobalSession{session}, nil
	case condition.TransactionID != nil:
		session, err := s.ReadSessionByTransactionID(ctx, *condition.TransactionID, withBranch)
		if err != nil || session == nil {
			return nil, err
		}
		return []*model.GlobalSession{session}, nil
	case len(condition.Statuses) > 0:
		return s.ReadSessionsByStatuses(ctx, condition.Statuses, withBranch)
	case condition.Status != nil:
		return s.ReadSessionsByStatuses(ctx, []consts.GlobalStatus{*condition.Status}, withBranch)
	default:
		return nil, nil
	}
}

// ReadSessionStatusByPage pages one status list in entry order.
func (s *RedisTransactionStore) ReadSessionStatusByPage(ctx context.Context, param model.GlobalSessionParam) ([]*model.GlobalSession, error) {
	if param.PageNum < 1 || param.PageSize < 1 {
		return nil, nil
	}
	start := int64((param.PageNum - 1) * param.PageSize)
	end := int64(param.PageNum*param.PageSize - 1)
	xids, err := s.Client.LRange(ctx, consts.StatusKey(param.Status), start, end).Result()
	if err != nil {
		return nil, wrapStoreErr("read status page", err)
	}
	return s.readSessionsByXids(ctx, xids, param.WithBranch)
}

// FindGlobalSessionByPage pages over every global hash via SCAN. SCAN gives
// no ordering and may repeat keys, so keys are deduplicated and pages advance
// by counted distinct keys from cursor 0, never by computed offsets.
func (s *RedisTransactionStore) FindGlobalSessionByPage(ctx context.Context, pageNum, pageSize int, withBranch bool) ([]*model.GlobalSession, error) {
	if pageNum < 1 || pageSize < 1 {
		return nil, nil
	}
	skip := (pageNum - 1) * pageSize
	seen := make(map[string]struct{})
	page := make([]string, 0, pageSize)
	var cursor uint64
	for {
		keys, next, err := s.Client.Scan(ctx, cursor, consts.GlobalKeyPattern, int64(pageSize)).Result()
		if err != nil {
			return nil, wrapStoreErr("scan globals", err)
		}
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if len(seen) <= skip {
				continue
			}
			page = append(page, key)
			if len(page) == pageSize {
				return s.readSessionsByGlobalKeys(ctx, page, withBranch)
			}
		}
		cursor = next
		if cursor == 0 {
			return s.readSessionsByGlobalKeys(ctx, page, withBranch)
		}
	}
}

func (s *RedisTransactionStore) readSessionsByGlobalKeys(ctx context.Context, globalKeys []string, withBranchSessions bool) ([]*model.GlobalSession, error) {
	sessions := make([]*model.GlobalSession, 0, len(globalKeys))
	for _, globalKey := range globalKeys {
		session, err := s.readSessionByGlobalKey(ctx, globalKey, withBranchSessions)
		if err != nil {
			return nil, err
		}
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

// CountByGlobalSessions totals the status-list lengths across the statuses.
func (s *RedisTransactionStore) CountByGlobalSessions(ctx context.Context, statuses []consts.GlobalStatus) (int64, error) {
	cmds := make([]*redis.IntCmd, len(statuses))
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, status := range statuses {
			cmds[i] = pipe.LLen(ctx, consts.StatusKey(status))
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreErr("count by statuses", err)
	}
	var total int64
	for _, cmd := range cmds {
		total += cmd.Val()
	}
	return total, nil
}

// FindBranchSessionByXid returns the branches of xid sorted by branch id
// ascending, regardless of registration order.
func (s *RedisTransactionStore) FindBranchSessionByXid(ctx context.Context, xid string) ([]*model.BranchTransactionRecord, error) {
	return s.readBranchesByXid(ctx, xid)
}

func (s *RedisTransactionStore) readBranchesByXid(ctx context.Context, xid string) ([]*model.BranchTransactionRecord, error) {
	branchListKey := consts.BranchListKey(xid)
	var branchKeys []string
	for start := int64(0); ; start += branchListWindow {
		chunk, err := s.Client.LRange(ctx, branchListKey, start, start+branchListWindow-1).Result()
		if err != nil {
			return nil, wrapStoreErr("read branch list", err)
		}
		branchKeys = append(branchKeys, chunk...)
		if len(chunk) < branchListWindow {
			break
		}
	}
	if len(branchKeys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(branchKeys))
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, branchKey := range branchKeys {
			cmds[i] = pipe.HGetAll(ctx, branchKey)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("read branches", err)
	}

	branches := make([]*model.BranchTransactionRecord, 0, len(branchKeys))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Branch removed between the list read and the hash read.
			continue
		}
		branches = append(branches, decodeBranch(fields))
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].BranchID < branches[j].BranchID
	})
	return branches, nil
}
