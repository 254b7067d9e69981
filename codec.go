package sessionstore

import (
	"strconv"

	"github.com/txmesh/sessionstore/consts"
	"github.com/txmesh/sessionstore/model"
)

// Explicit record <-> hash codec. No reflection: field sets are fixed,
// numerics are base-10 text, enums are their integer code. Absent optional
// fields are omitted rather than written empty, and unknown hash fields are
// ignored on decode so newer peers can add fields without breaking us.

func encodeGlobal(g *model.GlobalTransactionRecord) map[string]string {
	m := map[string]string{
		consts.FieldXID:           g.XID,
		consts.FieldTransactionID: strconv.FormatInt(g.TransactionID, 10),
		consts.FieldStatus:        strconv.Itoa(int(g.Status)),
		consts.FieldTimeout:       strconv.FormatInt(g.Timeout, 10),
		consts.FieldBeginTime:     strconv.FormatInt(g.BeginTime, 10),
		consts.FieldGmtCreate:     strconv.FormatInt(g.GmtCreate, 10),
		consts.FieldGmtModified:   strconv.FormatInt(g.GmtModified, 10),
	}
	if g.ApplicationID != "" {
		m[consts.FieldApplicationID] = g.ApplicationID
	}
	if g.TransactionServiceGroup != "" {
		m[consts.FieldServiceGroup] = g.TransactionServiceGroup
	}
	if g.TransactionName != "" {
		m[consts.FieldTransactionName] = g.TransactionName
	}
	if g.ApplicationData != "" {
		m[consts.FieldApplicationData] = g.ApplicationData
	}
	return m
}

func decodeGlobal(m map[string]string) *model.GlobalTransactionRecord {
	return &model.GlobalTransactionRecord{
		XID:                     m[consts.FieldXID],
		TransactionID:           parseInt64(m[consts.FieldTransactionID]),
		Status:                  consts.GlobalStatus(parseInt(m[consts.FieldStatus])),
		ApplicationID:           m[consts.FieldApplicationID],
		TransactionServiceGroup: m[consts.FieldServiceGroup],
		TransactionName:         m[consts.FieldTransactionName],
		Timeout:                 parseInt64(m[consts.FieldTimeout]),
		BeginTime:               parseInt64(m[consts.FieldBeginTime]),
		ApplicationData:         m[consts.FieldApplicationData],
		GmtCreate:               parseInt64(m[consts.FieldGmtCreate]),
		GmtModified:             parseInt64(m[consts.FieldGmtModified]),
	}
}

func encodeBranch(b *model.BranchTransactionRecord) map[string]string {
	m := map[string]string{
		consts.FieldBranchID:    strconv.FormatInt(b.BranchID, 10),
		consts.FieldXID:         b.XID,
		consts.FieldBranchType:  strconv.Itoa(int(b.BranchType)),
		consts.FieldStatus:      strconv.Itoa(int(b.Status)),
		consts.FieldGmtCreate:   strconv.FormatInt(b.GmtCreate, 10),
		consts.FieldGmtModified: strconv.FormatInt(b.GmtModified, 10),
	}
	if b.TransactionID != 0 {
		m[consts.FieldTransactionID] = strconv.FormatInt(b.TransactionID, 10)
	}
	if b.ResourceGroupID != "" {
		m[consts.FieldResourceGroupID] = b.ResourceGroupID
	}
	if b.ResourceID != "" {
		m[consts.FieldResourceID] = b.ResourceID
	}
	if b.ClientID != "" {
		m[consts.FieldClientID] = b.ClientID
	}
	if b.ApplicationData != "" {
		m[consts.FieldApplicationData] = b.ApplicationData
	}
	return m
}

func decodeBranch(m map[string]string) *model.BranchTransactionRecord {
	return &model.BranchTransactionRecord{
		BranchID:        parseInt64(m[consts.FieldBranchID]),
		XID:             m[consts.FieldXID],
		TransactionID:   parseInt64(m[consts.FieldTransactionID]),
		ResourceGroupID: m[consts.FieldResourceGroupID],
		ResourceID:      m[consts.FieldResourceID],
		ClientID:        m[consts.FieldClientID],
		BranchType:      consts.BranchType(parseInt(m[consts.FieldBranchType])),
		Status:          consts.BranchStatus(parseInt(m[consts.FieldStatus])),
		ApplicationData: m[consts.FieldApplicationData],
		GmtCreate:       parseInt64(m[consts.FieldGmtCreate]),
		GmtModified:     parseInt64(m[consts.FieldGmtModified]),
	}
}

// Missing or garbled fields decode to zero. Peers never write garbage here;
// tolerating it beats failing a whole hydration pass.
func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	return int(parseInt64(s))
}
