package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
	"gorm.io/gorm"
)

// SqlTransactionStore is the database-mode session store: the same contract
// as the Redis store backed by global_table / branch_table. The relational
// engine gives multi-row atomicity, so there is no status index and no
// compensation protocol here.
type SqlTransactionStore struct {
	DbRw       *gorm.DB
	QueryLimit int
	Metrics    *model.Metrics
}

// AutoMigrate creates or upgrades the two session tables.
func (s *SqlTransactionStore) AutoMigrate() error {
	return s.DbRw.AutoMigrate(&model.GlobalTransactionModel{}, &model.BranchTransactionModel{})
}

func (s *SqlTransactionStore) WriteSession(ctx context.Context, op consts.LogOperation, record model.SessionRecord) (err error) {
	startTime := time.Now()
	defer func() {
		s.Metrics.Observe(strings.ToLower(op.String()), time.Since(startTime).Seconds())
	}()

	db := s.DbRw.WithContext(ctx)
	now := time.Now().UnixMilli()
	switch op {
	case consts.LogOperationGlobalAdd:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		g.GmtCreate = now
		g.GmtModified = now
		return wrapGormErr("insert global", db.Create(model.NewGlobalTransactionModel(g)).Error)
	case consts.LogOperationGlobalUpdate:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		result := db.Model(&model.GlobalTransactionModel{}).Where("xid = ?", g.XID).
			Updates(map[string]interface{}{"status": int(g.Status), "gmt_modified": now})
		if result.Error != nil {
			return wrapGormErr("update global", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("update global transaction failed: %w", ErrSessionNotFound)
		}
		return nil
	case consts.LogOperationGlobalRemove:
		g, ok := record.(*model.GlobalTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a global record: %w", op, ErrInvalidOperation)
		}
		result := db.Where("xid = ?", g.XID).Delete(&model.GlobalTransactionModel{})
		if result.Error != nil {
			return wrapGormErr("delete global", result.Error)
		}
		if result.RowsAffected == 0 {
			log.Warn().Str("xid", g.XID).Msg("global transaction is not exist, maybe has been deleted by another tc server")
		}
		return nil
	case consts.LogOperationBranchAdd:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		b.GmtCreate = now
		b.GmtModified = now
		return wrapGormErr("insert branch", db.Create(model.NewBranchTransactionModel(b)).Error)
	case consts.LogOperationBranchUpdate:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		updates := map[string]interface{}{"status": int(b.Status), "gmt_modified": now}
		if b.ApplicationData != "" {
			updates["application_data"] = b.ApplicationData
		}
		result := db.Model(&model.BranchTransactionModel{}).Where("branch_id = ?", b.BranchID).Updates(updates)
		if result.Error != nil {
			return wrapGormErr("update branch", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("update branch transaction failed: %w", ErrBranchSessionNotFound)
		}
		return nil
	case consts.LogOperationBranchRemove:
		b, ok := record.(*model.BranchTransactionRecord)
		if !ok {
			return fmt.Errorf("%s expects a branch record: %w", op, ErrInvalidOperation)
		}
		return wrapGormErr("delete branch", db.Where("branch_id = ?", b.BranchID).Delete(&model.BranchTransactionModel{}).Error)
	default:
		return fmt.Errorf("unknown log operation %s: %w", op, ErrInvalidOperation)
	}
}

func (s *SqlTransactionStore) ReadSession(ctx context.Context, xid string) (*model.GlobalSession, error) {
	return s.ReadSessionWithBranches(ctx, xid, true)
}

func (s *SqlTransactionStore) ReadSessionWithBranches(ctx context.Context, xid string, withBranchSessions bool) (*model.GlobalSession, error) {
	var row model.GlobalTransactionModel
	err := s.DbRw.WithContext(ctx).Where("xid = ?", xid).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapGormErr("read global", err)
	}
	return s.assemble(ctx, &row, withBranchSessions)
}

func (s *SqlTransactionStore) ReadSessionByTransactionID(ctx context.Context, transactionID int64, withBranchSessions bool) (*model.GlobalSession, error) {
	var row model.GlobalTransactionModel
	err := s.DbRw.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapGormErr("read global", err)
	}
	return s.assemble(ctx, &row, withBranchSessions)
}

func (s *SqlTransactionStore) assemble(ctx context.Context, row *model.GlobalTransactionModel, withBranchSessions bool) (*model.GlobalSession, error) {
	session := &model.GlobalSession{GlobalTransactionRecord: *row.Record()}
	if withBranchSessions {
		branches, err := s.FindBranchSessionByXid(ctx, row.XID)
		if err != nil {
			return nil, err
		}
		session.Branches = branches
	}
	return session, nil
}

func (s *SqlTransactionStore) ReadSessionsByStatuses(ctx context.Context, statuses []consts.GlobalStatus, withBranchSessions bool) ([]*model.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	codes := make([]int, len(statuses))
	for i, status := range statuses {
		codes[i] = int(status)
	}
	var rows []model.GlobalTransactionModel
	err := s.DbRw.WithContext(ctx).Where("status IN ?", codes).
		Order("gmt_modified asc").Limit(s.queryLimit()).Find(&rows).Error
	if err != nil {
		return nil, wrapGormErr("read by statuses", err)
	}
	return s.assembleAll(ctx, rows, withBranchSessions)
}

func (s *SqlTransactionStore) ReadSessionsByCondition(ctx context.Context, condition model.SessionCondition) ([]*model.GlobalSession, error) {
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

func (s *SqlTransactionStore) ReadSessionStatusByPage(ctx context.Context, param model.GlobalSessionParam) ([]*model.GlobalSession, error) {
	if param.PageNum < 1 || param.PageSize < 1 {
		return nil, nil
	}
	var rows []model.GlobalTransactionModel
	err := s.DbRw.WithContext(ctx).Where("status = ?", int(param.Status)).
		Order("gmt_modified asc").Offset((param.PageNum - 1) * param.PageSize).Limit(param.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, wrapGormErr("read status page", err)
	}
	return s.assembleAll(ctx, rows, param.WithBranch)
}

func (s *SqlTransactionStore) FindGlobalSessionByPage(ctx context.Context, pageNum, pageSize int, withBranch bool) ([]*model.GlobalSession, error) {
	if pageNum < 1 || pageSize < 1 {
		return nil, nil
	}
	var rows []model.GlobalTransactionModel
	err := s.DbRw.WithContext(ctx).
		Order("gmt_modified asc").Offset((pageNum - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, wrapGormErr("read global page", err)
	}
	return s.assembleAll(ctx, rows, withBranch)
}

func (s *SqlTransactionStore) FindBranchSessionByXid(ctx context.Context, xid string) ([]*model.BranchTransactionRecord, error) {
	var rows []model.BranchTransactionModel
	err := s.DbRw.WithContext(ctx).Where("xid = ?", xid).Order("branch_id asc").Find(&rows).Error
	if err != nil {
		return nil, wrapGormErr("read branches", err)
	}
	branches := make([]*model.BranchTransactionRecord, 0, len(rows))
	for i := range rows {
		branches = append(branches, rows[i].Record())
	}
	return branches, nil
}

func (s *SqlTransactionStore) CountByGlobalSessions(ctx context.Context, statuses []consts.GlobalStatus) (int64, error) {
	codes := make([]int, len(statuses))
	for i, status := range statuses {
		codes[i] = int(status)
	}
	var total int64
	err := s.DbRw.WithContext(ctx).Model(&model.GlobalTransactionModel{}).
		Where("status IN ?", codes).Count(&total).Error
	if err != nil {
		return 0, wrapGormErr("count by statuses", err)
	}
	return total, nil
}

func (s *SqlTransactionStore) assembleAll(ctx context.Context, rows []model.GlobalTransactionModel, withBranchSessions bool) ([]*model.GlobalSession, error) {
	sessions := make([]*model.GlobalSession, 0, len(rows))
	for i := range rows {
		session, err := s.assemble(ctx, &rows[i], withBranchSessions)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *SqlTransactionStore) queryLimit() int {
	if s.QueryLimit > 0 {
		return s.QueryLimit
	}
	return consts.DefaultQueryLimit
}

func wrapGormErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapStoreErr(op, err)
}
