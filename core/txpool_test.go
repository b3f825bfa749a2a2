package core

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeSignedTxn(t *testing.T, timestamp uint64, nonceSalt byte) SignedTransaction {
	t.Helper()
	return SignedTransaction{
		Txn:     Transaction{AppName: WalletAppName, Payload: []byte{nonceSalt}},
		AppName: WalletAppName,
		Header:  map[string]string{"timestamp": strconv.FormatUint(timestamp, 10)},
	}
}

func TestPoolInsertIsIdempotentOnIdenticalHash(t *testing.T) {
	pool := NewTxPool()
	st := makeSignedTxn(t, 1, 0)

	require.NoError(t, pool.Insert(st))
	require.NoError(t, pool.Insert(st))
	require.Equal(t, 1, pool.Len())

	got, ok := pool.Get(st.Hash())
	require.True(t, ok)
	require.Equal(t, st, got)
}

func TestSyncCommittedEmptiesThePool(t *testing.T) {
	pool := NewTxPool()
	var hashes []Hash
	for i := uint64(0); i < 5; i++ {
		st := makeSignedTxn(t, i, byte(i))
		require.NoError(t, pool.Insert(st))
		hashes = append(hashes, st.Hash())
	}
	require.Equal(t, 5, pool.Len())

	pool.SyncCommitted(hashes)
	require.Equal(t, 0, pool.Len())
}

func TestExecutePendingCapsAtFifteenInTimestampOrder(t *testing.T) {
	pool := NewTxPool()
	apps := NewAppRegistry()
	apps.Register(WalletAppName, WalletApp{})

	dir := t.TempDir()
	db, err := OpenDatabase(dir)
	require.NoError(t, err)
	defer db.Close()

	// Fund a sender so 40 distinct-timestamp self-transfers can all execute.
	fork := db.Fork()
	schema := NewSchema(fork)
	kp, err := NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, schema.StateTrie.Set(kp.Address(), AccountState{Balance: 1_000_000}))
	require.NoError(t, db.Merge(fork))

	for i := uint64(0); i < 40; i++ {
		xferBytes, err := encodeWalletTransfer(WalletTransfer{From: kp.Address(), To: kp.Address(), Amount: 1})
		require.NoError(t, err)
		st := SignedTransaction{
			Txn:     Transaction{AppName: WalletAppName, Payload: xferBytes},
			AppName: WalletAppName,
			Header:  map[string]string{"timestamp": strconv.FormatUint(i, 10)},
		}
		st.Signature = kp.Sign(st.Txn.Payload)
		require.NoError(t, pool.Insert(st))
	}
	require.Equal(t, 40, pool.Len())

	fork2 := db.Fork()
	schema2 := NewSchema(fork2)
	applied := pool.ExecutePending(&StateCtx{Schema: schema2}, apps)
	require.NoError(t, db.Merge(fork2))

	require.Len(t, applied, MaxBlockTransactions)
	for i, h := range applied {
		txn, ok := pool.Get(h)
		require.True(t, ok)
		require.Equal(t, strconv.Itoa(i), txn.Header["timestamp"])
	}
	require.Equal(t, 40, pool.Len(), "ExecutePending must not mutate the pool")
}
