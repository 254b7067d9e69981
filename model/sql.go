package model

import "github.com/txmesh/sessionstore/consts"

// Relational mapping of the session records. Column names follow the
// coordinator's db-mode schema so consoles pointed at either store mode see
// the same tables.

type GlobalTransactionModel struct {
	XID                     string `gorm:"column:xid;primaryKey;size:128"`
	TransactionID           int64  `gorm:"column:transaction_id;index"`
	Status                  int    `gorm:"column:status;index"`
	ApplicationID           string `gorm:"column:application_id;size:32"`
	TransactionServiceGroup string `gorm:"column:transaction_service_group;size:32"`
	TransactionName         string `gorm:"column:transaction_name;size:128"`
	Timeout                 int64  `gorm:"column:timeout"`
	BeginTime               int64  `gorm:"column:begin_time"`
	ApplicationData         string `gorm:"column:application_data;size:2000"`
	GmtCreate               int64  `gorm:"column:gmt_create"`
	GmtModified             int64  `gorm:"column:gmt_modified;index"`
}

func (GlobalTransactionModel) TableName() string { return "global_table" }

type BranchTransactionModel struct {
	BranchID        int64  `gorm:"column:branch_id;primaryKey"`
	XID             string `gorm:"column:xid;index;size:128"`
	TransactionID   int64  `gorm:"column:transaction_id"`
	ResourceGroupID string `gorm:"column:resource_group_id;size:32"`
	ResourceID      string `gorm:"column:resource_id;size:256"`
	ClientID        string `gorm:"column:client_id;size:64"`
	BranchType      int    `gorm:"column:branch_type"`
	Status          int    `gorm:"column:status"`
	ApplicationData string `gorm:"column:application_data;size:2000"`
	GmtCreate       int64  `gorm:"column:gmt_create"`
	GmtModified     int64  `gorm:"column:gmt_modified"`
}

func (BranchTransactionModel) TableName() string { return "branch_table" }

func (m *GlobalTransactionModel) Record() *GlobalTransactionRecord {
	return &GlobalTransactionRecord{
		XID:                     m.XID,
		TransactionID:           m.TransactionID,
		Status:                  consts.GlobalStatus(m.Status),
		ApplicationID:           m.ApplicationID,
		TransactionServiceGroup: m.TransactionServiceGroup,
		TransactionName:         m.TransactionName,
		Timeout:                 m.Timeout,
		BeginTime:               m.BeginTime,
		ApplicationData:         m.ApplicationData,
		GmtCreate:               m.GmtCreate,
		GmtModified:             m.GmtModified,
	}
}

func NewGlobalTransactionModel(g *GlobalTransactionRecord) *GlobalTransactionModel {
	return &GlobalTransactionModel{
		XID:                     g.XID,
		TransactionID:           g.TransactionID,
		Status:                  int(g.Status),
		ApplicationID:           g.ApplicationID,
		TransactionServiceGroup: g.TransactionServiceGroup,
		TransactionName:         g.TransactionName,
		Timeout:                 g.Timeout,
		BeginTime:               g.BeginTime,
		ApplicationData:         g.ApplicationData,
		GmtCreate:               g.GmtCreate,
		GmtModified:             g.GmtModified,
	}
}

func (m *BranchTransactionModel) Record() *BranchTransactionRecord {
	return &BranchTransactionRecord{
		BranchID:        m.BranchID,
		XID:             m.XID,
		TransactionID:   m.TransactionID,
		ResourceGroupID: m.ResourceGroupID,
		ResourceID:      m.ResourceID,
		ClientID:        m.ClientID,
		BranchType:      consts.BranchType(m.BranchType),
		Status:          consts.BranchStatus(m.Status),
		ApplicationData: m.ApplicationData,
		GmtCreate:       m.GmtCreate,
		GmtModified:     m.GmtModified,
	}
}

func NewBranchTransactionModel(b *BranchTransactionRecord) *BranchTransactionModel {
	return &BranchTransactionModel{
		BranchID:        b.BranchID,
		XID:             b.XID,
		TransactionID:   b.TransactionID,
		ResourceGroupID: b.ResourceGroupID,
		ResourceID:      b.ResourceID,
		ClientID:        b.ClientID,
		BranchType:      int(b.BranchType),
		Status:          int(b.Status),
		ApplicationData: b.ApplicationData,
		GmtCreate:       b.GmtCreate,
		GmtModified:     b.GmtModified,
	}
}
