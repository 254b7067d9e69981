package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
)

// LevelDbTransactionStore is the local-file session store: the same contract
// as the Redis store on an embedded LevelDB. Single-process by nature, so
// cross-peer concerns disappear; read-modify-write races between goroutines
// are serialized by a per-key mutex map instead of optimistic transactions.
//
// Key layout: "global_<tid>" and "branch_<xid>_<paddedBranchId>", both JSON
// payloads. Branch ids are zero-padded so prefix iteration yields branch-id
// ascending order for free. No status index is kept; status queries filter a
// prefix scan.
type LevelDbTransactionStore struct {
	Ldb        *leveldb.DB
	QueryLimit int
	Metrics    *model.Metrics

	locks sync.Map // string:*sync.Mutex
}

const (
	levelDbGlobalPrefix = "global_"
	levelDbBranchPrefix = "branch_"
)

func levelDbGlobalKey(transactionID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", levelDbGlobalPrefix, transactionID))
}

func levelDbBranchKey(xid string, branchID int64) []byte {
	return []byte(fmt.Sprintf("%s%s_%020d", levelDbBranchPrefix, xid, branchID))
}

func levelDbBranchListPrefix(xid string) []byte {
	return []byte(levelDbBranchPrefix + xid + "_")
}

func (s *LevelDbTransactionStore) lockKey(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *LevelDbTransactionStore) WriteSession(ctx context.Context, op consts.LogOperation, record model.SessionRecord) (err error) {
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
		now := time.Now().UnixMilli()
		g.GmtCreate = now
		g.GmtModified = now
		return s.putJSON(levelDbGlobalKey(g.TransactionID), g)
	case consts.LogOperationGlobalUpdate:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		return s.updateGlobal(g)
	case consts.LogOperationGlobalRemove:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		// Delete is a no-op on a missing key, which gives the idempotency
		// the contract asks for.
		return wrapLevelDbErr("delete global", s.Ldb.Delete(levelDbGlobalKey(g.TransactionID), nil))
	case consts.LogOperationBranchAdd:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		now := time.Now().UnixMilli()
		b.GmtCreate = now
		b.GmtModified = now
		return s.putJSON(levelDbBranchKey(b.XID, b.BranchID), b)
	case consts.LogOperationBranchUpdate:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return s.updateBranch(b)
	case consts.LogOperationBranchRemove:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return wrapLevelDbErr("delete branch", s.Ldb.Delete(levelDbBranchKey(b.XID, b.BranchID), nil))
	default:
		return fmt.Errorf("unknown log operation %s: %w", op, ErrInvalidOperation)
	}
}

func (s *LevelDbTransactionStore) updateGlobal(g *model.GlobalTransactionRecord) error {
	key := levelDbGlobalKey(g.TransactionID)
	unlock := s.lockKey(string(key))
	defer unlock()

	var current model.GlobalTransactionRecord
	found, err := s.getJSON(key, &current)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("update global transaction failed: %w", ErrSessionNotFound)
	}
	if current.Status == g.Status {
		return nil
	}
	current.Status = g.Status
	current.GmtModified = time.Now().UnixMilli()
	return s.putJSON(key, &current)
}

func (s *LevelDbTransactionStore) updateBranch(b *model.BranchTransactionRecord) error {
	key := levelDbBranchKey(b.XID, b.BranchID)
	unlock := s.lockKey(string(key))
	defer unlock()

	var current model.BranchTransactionRecord
	found, err := s.getJSON(key, &current)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("update branch transaction failed: %w", ErrBranchSessionNotFound)
	}
	current.Status = b.Status
	current.GmtModified = time.Now().UnixMilli()
	if b.ApplicationData != "" {
		current.ApplicationData = b.ApplicationData
	}
	return s.putJSON(key, &current)
}

func (s *LevelDbTransactionStore) ReadSession(ctx context.Context, xid string) (*model.GlobalSession, error) {
	return s.ReadSessionWithBranches(ctx, xid, true)
}

func (s *LevelDbTransactionStore) ReadSessionWithBranches(ctx context.Context, xid string, withBranchSessions bool) (*model.GlobalSession, error) {
	transactionID, err := TransactionIDFromXID(xid)
	if err != nil {
		return nil, err
	}
	return s.ReadSessionByTransactionID(ctx, transactionID, withBranchSessions)
}

func (s *LevelDbTransactionStore) ReadSessionByTransactionID(ctx context.Context, transactionID int64, withBranchSessions bool) (*model.GlobalSession, error) {
	var g model.GlobalTransactionRecord
	found, err := s.getJSON(levelDbGlobalKey(transactionID), &g)
	if err != nil || !found {
		return nil, err
	}
	session := &model.GlobalSession{GlobalTransactionRecord: g}
	if withBranchSessions {
		session.Branches, err = s.FindBranchSessionByXid(ctx, g.XID)
		if err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *LevelDbTransactionStore) ReadSessionsByStatuses(ctx context.Context, statuses []consts.GlobalStatus, withBranchSessions bool) ([]*model.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	wanted := make(map[consts.GlobalStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	limit := s.queryLimit()
	var sessions []*model.GlobalSession
	err := s.scanGlobals(func(g *model.GlobalTransactionRecord) (bool, error) {
		if _, ok := wanted[g.Status]; !ok {
			return true, nil
		}
		session, err := s.assemble(ctx, g, withBranchSessions)
		if err != nil {
			return false, err
		}
		sessions = append(sessions, session)
		return len(sessions) < limit, nil
	})
	return sessions, err
}

func (s *LevelDbTransactionStore) ReadSessionsByCondition(ctx context.Context, condition model.SessionCondition) ([]*model.GlobalSession, error) {
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

func (s *LevelDbTransactionStore) ReadSessionStatusByPage(ctx context.Context, param model.GlobalSessionParam) ([]*model.GlobalSession, error) {
	if param.PageNum < 1 || param.PageSize < 1 {
		return nil, nil
	}
	skip := (param.PageNum - 1) * param.PageSize
	matched := 0
	var sessions []*model.GlobalSession
	err := s.scanGlobals(func(g *model.GlobalTransactionRecord) (bool, error) {
		if g.Status != param.Status {
			return true, nil
		}
		matched++
		if matched <= skip {
			return true, nil
		}
		session, err := s.assemble(ctx, g, param.WithBranch)
		if err != nil {
			return false, err
		}
		sessions = append(sessions, session)
		return len(sessions) < param.PageSize, nil
	})
	return sessions, err
}

func (s *LevelDbTransactionStore) FindGlobalSessionByPage(ctx context.Context, pageNum, pageSize int, withBranch bool) ([]*model.GlobalSession, error) {
	if pageNum < 1 || pageSize < 1 {
		return nil, nil
	}
	skip := (pageNum - 1) * pageSize
	seen := 0
	var sessions []*model.GlobalSession
	err := s.scanGlobals(func(g *model.GlobalTransactionRecord) (bool, error) {
		seen++
		if seen <= skip {
			return true, nil
		}
		session, err := s.assemble(ctx, g, withBranch)
		if err != nil {
			return false, err
		}
		sessions = append(sessions, session)
		return len(sessions) < pageSize, nil
	})
	return sessions, err
}

func (s *LevelDbTransactionStore) FindBranchSessionByXid(ctx context.Context, xid string) ([]*model.BranchTransactionRecord, error) {
	iter := s.Ldb.NewIterator(util.BytesPrefix(levelDbBranchListPrefix(xid)), nil)
	defer iter.Release()
	var branches []*model.BranchTransactionRecord
	for iter.Next() {
		b := &model.BranchTransactionRecord{}
		if err := json.Unmarshal(iter.Value(), b); err != nil {
			return nil, wrapLevelDbErr("decode branch", err)
		}
		branches = append(branches, b)
	}
	if err := iter.Error(); err != nil {
		return nil, wrapLevelDbErr("iterate branches", err)
	}
	return branches, nil
}

func (s *LevelDbTransactionStore) CountByGlobalSessions(ctx context.Context, statuses []consts.GlobalStatus) (int64, error) {
	wanted := make(map[consts.GlobalStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	var total int64
	err := s.scanGlobals(func(g *model.GlobalTransactionRecord) (bool, error) {
		if _, ok := wanted[g.Status]; ok {
			total++
		}
		return true, nil
	})
	return total, err
}

// scanGlobals walks every global record in transaction-id order until the
// visitor returns false.
func (s *LevelDbTransactionStore) scanGlobals(visit func(*model.GlobalTransactionRecord) (bool, error)) error {
	iter := s.Ldb.NewIterator(util.BytesPrefix([]byte(levelDbGlobalPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		g := &model.GlobalTransactionRecord{}
		if err := json.Unmarshal(iter.Value(), g); err != nil {
			return wrapLevelDbErr("decode global", err)
		}
		more, err := visit(g)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return wrapLevelDbErr("iterate globals", iter.Error())
}

func (s *LevelDbTransactionStore) assemble(ctx context.Context, g *model.GlobalTransactionRecord, withBranchSessions bool) (*model.GlobalSession, error) {
	session := &model.GlobalSession{GlobalTransactionRecord: *g}
	if withBranchSessions {
		branches, err := s.FindBranchSessionByXid(ctx, g.XID)
		if err != nil {
			return nil, err
		}
		session.Branches = branches
	}
	return session, nil
}

func (s *LevelDbTransactionStore) putJSON(key []byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return wrapLevelDbErr("encode", err)
	}
	return wrapLevelDbErr("put", s.Ldb.Put(key, payload, nil))
}

func (s *LevelDbTransactionStore) getJSON(key []byte, v interface{}) (bool, error) {
	payload, err := s.Ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapLevelDbErr("get", err)
	}
	if err = json.Unmarshal(payload, v); err != nil {
		return false, wrapLevelDbErr("decode", err)
	}
	return true, nil
}

func (s *LevelDbTransactionStore) queryLimit() int {
	if s.QueryLimit > 0 {
		return s.QueryLimit
	}
	return consts.DefaultQueryLimit
}

func wrapLevelDbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapStoreErr(op, err)
}
