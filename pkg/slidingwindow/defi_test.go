package slidingwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeFiTransactions_IsolatesTransactions(t *testing.T) {
	d := NewDeFiTransactions(time.Minute)

	unvalued := tr(3, addrA, addrC, 999)
	unvalued.USDValue = nil

	b := block(1, 0,
		// A round trip inside one transaction produces no gain.
		tr(1, addrA, addrB, 100),
		tr(1, addrB, addrA, 100),
		// A plain transfer gains its value.
		tr(2, addrB, addrC, 30),
		unvalued,
	)
	require.InDelta(t, 30, d.Admit(b), tolerance)

	// Across blocks the same round trip is not netted: each transaction stands alone.
	require.InDelta(t, 30+100+100, d.Admit(block(2, 12, tr(4, addrA, addrB, 100), tr(5, addrB, addrA, 100))), tolerance)

	// Both blocks leave the window.
	require.InDelta(t, 0, d.Admit(block(3, 80)), tolerance)
}

func TestDeFiTransactions_GroupsInFirstSeenOrder(t *testing.T) {
	b := block(1, 0,
		tr(2, addrA, addrB, 1),
		tr(1, addrA, addrB, 2),
		tr(2, addrB, addrC, 3),
	)
	groups := groupByTx(b)
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Equal(t, b.Transfers[0].Hash, groups[0][0].Hash)
	require.Len(t, groups[1], 1)
}
