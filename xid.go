package sessionstore

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildXID assembles the user-visible transaction id "<ip>:<port>:<tid>".
func BuildXID(addr string, port int, transactionID int64) string {
	return addr + ":" + strconv.Itoa(port) + ":" + strconv.FormatInt(transactionID, 10)
}

// TransactionIDFromXID extracts the embedded transaction id. The TC address
// may itself contain colons, so the split uses the last one.
func TransactionIDFromXID(xid string) (int64, error) {
	idx := strings.LastIndexByte(xid, ':')
	if idx < 0 || idx == len(xid)-1 {
		return 0, fmt.Errorf("malformed xid %q: %w", xid, ErrInvalidOperation)
	}
	tid, err := strconv.ParseInt(xid[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed xid %q: %w", xid, ErrInvalidOperation)
	}
	return tid, nil
}
