package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessorAppliesQueuedBlockInOrder(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)
	_, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	// The block comes from a peer built on the same genesis, so the local
	// chain is still at height 1 when the queued copy is applied.
	peer := newTestEngine(t)
	_, _, err = peer.Initialize(kp, []Address{funded})
	require.NoError(t, err)
	proposed, err := peer.Propose(kp)
	require.NoError(t, err)

	proc := NewProcessor(engine, nil)
	proc.Submit(Message{Block: &proposed})

	// Drain the inbox synchronously, bypassing the goroutine-driven channel
	// read so the test is deterministic.
	msg := <-proc.inbox
	proc.pending = append(proc.pending, *msg.Block)

	proc.tryApplyFront()

	require.Empty(t, proc.pending)

	snap := engine.DB.Snapshot()
	length, err := NewSchema(snap).BlockchainLength()
	snap.Discard()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)
}

func TestProcessorDropsStaleQueuedBlock(t *testing.T) {
	engine := newTestEngine(t)
	kp, funded := scenarioKeypair(t)
	_, _, err := engine.Initialize(kp, []Address{funded})
	require.NoError(t, err)

	proposed, err := engine.Propose(kp)
	require.NoError(t, err)
	// Propose already appends the block itself; the queued copy arriving
	// later via gossip is now stale (wrong_height with id < blockchain_length).

	proc := NewProcessor(engine, nil)
	proc.pending = append(proc.pending, proposed)
	proc.tryApplyFront()

	require.Empty(t, proc.pending)
}
