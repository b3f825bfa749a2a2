package core

import (
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *BlockEngine {
	t.Helper()
	db, err := OpenDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	apps := NewAppRegistry()
	apps.Register(WalletAppName, WalletApp{})
	return NewBlockEngine(db, NewTxPool(), apps)
}

func scenarioKeypair(t *testing.T) (Keypair, Address) {
	t.Helper()
	seed, err := hex.DecodeString("097ba6f71a5311c4986e01798d525d0da8ee5c54acbf6ef7c3fadd1e2f624442")
	require.NoError(t, err)
	kp, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)
	// funded is the scenario keypair's own address: transfers below are
	// self-transfers, so the same key both owns the funded balance and
	// signs every transaction that spends it.
	return kp, kp.Address()
}

// S1 — Genesis and single proposal.
func TestGenesisAndSingleProposal(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)

	sb, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	snap := engine.DB.Snapshot()
	schema := NewSchema(snap)
	length, err := schema.BlockchainLength()
	require.NoError(t, err)
	require.EqualValues(t, 1, length)

	acct, ok, err := schema.StateTrie.Get(funded)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100_000_000, acct.Balance)
	snap.Discard()

	require.EqualValues(t, 0, sb.Block.ID)
	require.Equal(t, ZeroHash, sb.Block.PrevHash)
	require.True(t, sb.VerifySignature())

	for i := 0; i < 9; i++ {
		// Non-genesis transactions must carry a real signer; the funded
		// keypair self-transfers an amount unique to its index so each of
		// the 9 entries hashes distinctly.
		xferBytes, err := encodeWalletTransfer(WalletTransfer{From: funded, To: funded, Amount: uint64(i)})
		require.NoError(t, err)
		txn := SignedTransaction{
			Txn:     Transaction{AppName: WalletAppName, Payload: xferBytes},
			AppName: WalletAppName,
			Header:  map[string]string{"timestamp": strconv.Itoa(i)},
		}
		txn.Signature = kp.Sign(txn.Txn.Payload)
		require.NoError(t, engine.Pool.Insert(txn))
	}

	proposed, err := engine.Propose(kp)
	require.NoError(t, err)
	require.EqualValues(t, 1, proposed.Block.ID)
	require.Len(t, proposed.Block.TxnPool, 9)

	snap2 := engine.DB.Snapshot()
	schema2 := NewSchema(snap2)
	stateRoot, err := schema2.StateRoot()
	require.NoError(t, err)
	storageRoot, err := schema2.StorageRoot()
	require.NoError(t, err)
	txnRoot, err := schema2.TxnRoot()
	require.NoError(t, err)
	snap2.Discard()

	require.Equal(t, BlockHeader{stateRoot, storageRoot, txnRoot}, proposed.Block.Header)
}

// S2 — Rejected block on bad header.
func TestUpdateBlockRejectsBadHeader(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)

	_, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	snap := engine.DB.Snapshot()
	header, err := computeHeader(NewSchema(snap))
	require.NoError(t, err)
	prevHash := mustLastHash(t, engine)
	snap.Discard()

	header[0] = HashBytes([]byte("tampered"))
	block := Block{ID: 1, PeerID: kp.Address(), PrevHash: prevHash, Header: header}
	bad := SignBlock(kp, block)

	err = engine.UpdateBlock(bad)
	require.Error(t, err)
	require.True(t, Is(err, KindHeaderMismatch))

	snapAfter := engine.DB.Snapshot()
	length, lerr := NewSchema(snapAfter).BlockchainLength()
	snapAfter.Discard()
	require.NoError(t, lerr)
	require.EqualValues(t, 1, length, "rejected block must not advance chain length")
}

func mustLastHash(t *testing.T, engine *BlockEngine) Hash {
	t.Helper()
	snap := engine.DB.Snapshot()
	defer snap.Discard()
	last, err := NewSchema(snap).LastBlock()
	require.NoError(t, err)
	return last.Block.Hash()
}

// S6 — Fork rejection: a second block proposed at an already-filled height
// is rejected as WrongHeight, and the chain stays on the first import.
func TestUpdateBlockRejectsFork(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)

	_, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	first, err := engine.Propose(kp)
	require.NoError(t, err)

	// Build a competing, differently-contentful block at the same height.
	otherKp, err := NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	snap := engine.DB.Snapshot()
	schema := NewSchema(snap)
	prevHash := first.Block.PrevHash
	header, err := computeHeader(schema)
	snap.Discard()
	require.NoError(t, err)

	competing := Block{ID: first.Block.ID, PeerID: otherKp.Address(), PrevHash: prevHash, Header: header}
	competingSigned := SignBlock(otherKp, competing)

	err = engine.UpdateBlock(competingSigned)
	require.Error(t, err)
	require.True(t, Is(err, KindWrongHeight))

	snapAfter := engine.DB.Snapshot()
	last, lerr := NewSchema(snapAfter).LastBlock()
	snapAfter.Discard()
	require.NoError(t, lerr)
	require.Equal(t, first.Block.Hash(), last.Block.Hash(), "chain must still end at the first-imported block")
}
