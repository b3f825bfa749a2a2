package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePeerClient serves a fixed set of blocks/transactions for sync tests.
type fakePeerClient struct {
	length uint64
	blocks map[uint64]SignedBlock
	txns   map[Hash]SignedTransaction
}

func (f *fakePeerClient) FetchPeerChainLength(ctx context.Context) (uint64, error) {
	return f.length, nil
}

func (f *fakePeerClient) FetchBlock(ctx context.Context, height uint64) (SignedBlock, error) {
	sb, ok := f.blocks[height]
	if !ok {
		return SignedBlock{}, NewErr(KindEmpty, "no such block")
	}
	return sb, nil
}

func (f *fakePeerClient) FetchTransaction(ctx context.Context, h Hash) (SignedTransaction, error) {
	st, ok := f.txns[h]
	if !ok {
		return SignedTransaction{}, NewErr(KindEmpty, "no such transaction")
	}
	return st, nil
}

// S3 — Height gap triggers sync: local chain length 5, peer advertises 10
// and serves blocks 5..10 with correct prev_hashes; after Apply, local
// length is 10.
func TestSyncCatchesUpAcrossHeightGap(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)
	_, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = engine.Propose(kp)
		require.NoError(t, err)
	}
	snap := engine.DB.Snapshot()
	lastHeight, err := NewSchema(snap).BlockchainLength()
	snap.Discard()
	require.NoError(t, err)
	require.EqualValues(t, 5, lastHeight)

	// Build a second, independent chain sharing the same genesis that
	// advances 5 more blocks beyond the first node's height.
	peerEngine := newTestEngine(t)
	_, _, err = peerEngine.Initialize(kp, []Address{funded})
	require.NoError(t, err)
	var peerBlocks []SignedBlock
	for i := 0; i < 9; i++ {
		sb, err := peerEngine.Propose(kp)
		require.NoError(t, err)
		peerBlocks = append(peerBlocks, sb)
	}

	blocks := make(map[uint64]SignedBlock)
	for _, sb := range peerBlocks {
		if sb.Block.ID >= 5 {
			blocks[sb.Block.ID] = sb
		}
	}
	client := &fakePeerClient{length: 10, blocks: blocks, txns: map[Hash]SignedTransaction{}}
	se := NewSyncEngine(client, engine)

	state, err := se.FetchSyncState(context.Background(), lastHeight)
	require.NoError(t, err)
	require.EqualValues(t, 10, state.TargetHeight)
	require.Len(t, state.Blocks, 5)

	require.NoError(t, se.Apply(state))

	snapFinal := engine.DB.Snapshot()
	finalLength, err := NewSchema(snapFinal).BlockchainLength()
	snapFinal.Discard()
	require.NoError(t, err)
	require.EqualValues(t, 10, finalLength)
}

func TestFetchSyncStateReportsPeerUnavailable(t *testing.T) {
	engine := newTestEngine(t)
	se := NewSyncEngine(&alwaysErrClient{}, engine)
	_, err := se.FetchSyncState(context.Background(), 0)
	require.Error(t, err)
	require.True(t, Is(err, KindPeerUnavailable))
}

type alwaysErrClient struct{}

func (alwaysErrClient) FetchPeerChainLength(ctx context.Context) (uint64, error) {
	return 0, NewErr(KindIo, "connection refused")
}
func (alwaysErrClient) FetchBlock(ctx context.Context, height uint64) (SignedBlock, error) {
	return SignedBlock{}, NewErr(KindIo, "unreachable")
}
func (alwaysErrClient) FetchTransaction(ctx context.Context, h Hash) (SignedTransaction, error) {
	return SignedTransaction{}, NewErr(KindIo, "unreachable")
}
