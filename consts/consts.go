package consts

import "strconv"

// GlobalStatus is the wire status of a global transaction. Values are stable
// across versions; peers of different builds share the same status lists.
type GlobalStatus int

const (
	GlobalStatusUnknown                 GlobalStatus = 0
	GlobalStatusBegin                   GlobalStatus = 1
	GlobalStatusCommitting              GlobalStatus = 2
	GlobalStatusCommitRetrying          GlobalStatus = 3
	GlobalStatusRollbacking             GlobalStatus = 4
	GlobalStatusRollbackRetrying        GlobalStatus = 5
	GlobalStatusTimeoutRollbacking      GlobalStatus = 6
	GlobalStatusTimeoutRollbackRetrying GlobalStatus = 7
	GlobalStatusAsyncCommitting         GlobalStatus = 8
	GlobalStatusCommitted               GlobalStatus = 9
	GlobalStatusCommitFailed            GlobalStatus = 10
	GlobalStatusRollbacked              GlobalStatus = 11
	GlobalStatusRollbackFailed          GlobalStatus = 12
	GlobalStatusTimeoutRollbacked       GlobalStatus = 13
	GlobalStatusTimeoutRollbackFailed   GlobalStatus = 14
	GlobalStatusFinished                GlobalStatus = 15
)

// AllGlobalStatuses lists every status code, in code order. The reconciler
// walks this to visit every status index list.
var AllGlobalStatuses = []GlobalStatus{
	GlobalStatusUnknown, GlobalStatusBegin, GlobalStatusCommitting,
	GlobalStatusCommitRetrying, GlobalStatusRollbacking, GlobalStatusRollbackRetrying,
	GlobalStatusTimeoutRollbacking, GlobalStatusTimeoutRollbackRetrying,
	GlobalStatusAsyncCommitting, GlobalStatusCommitted, GlobalStatusCommitFailed,
	GlobalStatusRollbacked, GlobalStatusRollbackFailed, GlobalStatusTimeoutRollbacked,
	GlobalStatusTimeoutRollbackFailed, GlobalStatusFinished,
}

// BranchStatus is the wire status of a branch transaction.
type BranchStatus int

const (
	BranchStatusUnknown                           BranchStatus = 0
	BranchStatusRegistered                        BranchStatus = 1
	BranchStatusPhaseOneDone                      BranchStatus = 2
	BranchStatusPhaseOneFailed                    BranchStatus = 3
	BranchStatusPhaseOneTimeout                   BranchStatus = 4
	BranchStatusPhaseTwoCommitted                 BranchStatus = 5
	BranchStatusPhaseTwoCommitFailedRetryable     BranchStatus = 6
	BranchStatusPhaseTwoCommitFailedUnretryable   BranchStatus = 7
	BranchStatusPhaseTwoRollbacked                BranchStatus = 8
	BranchStatusPhaseTwoRollbackFailedRetryable   BranchStatus = 9
	BranchStatusPhaseTwoRollbackFailedUnretryable BranchStatus = 10
)

// BranchType is the resource manager flavor of a branch.
type BranchType int

const (
	BranchTypeAT   BranchType = 0
	BranchTypeTCC  BranchType = 1
	BranchTypeSAGA BranchType = 2
	BranchTypeXA   BranchType = 3
)

// LogOperation selects the mutation performed by WriteSession.
type LogOperation int

const (
	LogOperationGlobalAdd LogOperation = iota
	LogOperationGlobalUpdate
	LogOperationGlobalRemove
	LogOperationBranchAdd
	LogOperationBranchUpdate
	LogOperationBranchRemove
)

func (op LogOperation) String() string {
	switch op {
	case LogOperationGlobalAdd:
		return "GLOBAL_ADD"
	case LogOperationGlobalUpdate:
		return "GLOBAL_UPDATE"
	case LogOperationGlobalRemove:
		return "GLOBAL_REMOVE"
	case LogOperationBranchAdd:
		return "BRANCH_ADD"
	case LogOperationBranchUpdate:
		return "BRANCH_UPDATE"
	case LogOperationBranchRemove:
		return "BRANCH_REMOVE"
	default:
		return "UNKNOWN_" + strconv.Itoa(int(op))
	}
}

// Key prefixes of the Redis layout. Fixed byte strings; downgrade
// compatibility depends on them never changing.
const (
	GlobalKeyPrefix     = "global:"
	BranchKeyPrefix     = "branch:"
	BranchListKeyPrefix = "branches:"
	StatusKeyPrefix     = "status:"
	GlobalKeyPattern    = GlobalKeyPrefix + "*"
)

func GlobalKey(transactionID int64) string {
	return GlobalKeyPrefix + strconv.FormatInt(transactionID, 10)
}

func BranchKey(branchID int64) string {
	return BranchKeyPrefix + strconv.FormatInt(branchID, 10)
}

func BranchListKey(xid string) string {
	return BranchListKeyPrefix + xid
}

func StatusKey(status GlobalStatus) string {
	return StatusKeyPrefix + strconv.Itoa(int(status))
}

// Hash field names of the global session record.
const (
	FieldXID             = "xid"
	FieldTransactionID   = "transactionId"
	FieldStatus          = "status"
	FieldApplicationID   = "applicationId"
	FieldServiceGroup    = "transactionServiceGroup"
	FieldTransactionName = "transactionName"
	FieldTimeout         = "timeout"
	FieldBeginTime       = "beginTime"
	FieldApplicationData = "applicationData"
	FieldGmtCreate       = "gmtCreate"
	FieldGmtModified     = "gmtModified"
)

// Hash field names specific to the branch session record.
const (
	FieldBranchID        = "branchId"
	FieldResourceGroupID = "resourceGroupId"
	FieldResourceID      = "resourceId"
	FieldClientID        = "clientId"
	FieldBranchType      = "branchType"
)

// DefaultQueryLimit caps the total xids returned by a multi-status query.
const DefaultQueryLimit = 100
