package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildXID(t *testing.T) {
	require.Equal(t, "1.1.1.1:8091:10", BuildXID("1.1.1.1", 8091, 10))
}

func TestTransactionIDFromXID(t *testing.T) {
	tid, err := TransactionIDFromXID("1.1.1.1:8091:10")
	require.NoError(t, err)
	require.Equal(t, int64(10), tid)

	// The split must use the last colon, addresses may contain their own.
	tid, err = TransactionIDFromXID("fe80::1:8091:99")
	require.NoError(t, err)
	require.Equal(t, int64(99), tid)
}

func TestTransactionIDFromXIDMalformed(t *testing.T) {
	for _, xid := range []string{"", "no-colon", "host:port:", "host:port:abc"} {
		_, err := TransactionIDFromXID(xid)
		require.Error(t, err, "xid %q", xid)
	}
}
