package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListIndexProofVerifiesAgainstObjectHash(t *testing.T) {
	db, err := OpenDatabase(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fork := db.Fork()
	schema := NewSchema(fork)
	kp, err := NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	for i := uint64(0); i < 4; i++ {
		block := Block{ID: i, PeerID: kp.Address(), PrevHash: ZeroHash}
		require.NoError(t, schema.Blocks.Append(SignBlock(kp, block)))
	}
	require.NoError(t, db.Merge(fork))

	snap := db.Snapshot()
	defer snap.Discard()
	schema2 := NewSchema(snap)

	root, err := schema2.Blocks.ObjectHash()
	require.NoError(t, err)

	leaf, path, proofRoot, err := schema2.Blocks.Proof(2)
	require.NoError(t, err)
	require.Equal(t, root, proofRoot)
	require.True(t, VerifyMerklePath([32]byte(root), leaf, path, 2))

	// A proof for the wrong index must not verify.
	require.False(t, VerifyMerklePath([32]byte(root), leaf, path, 1))
}

func TestProofMapIndexProofVerifiesAgainstObjectHash(t *testing.T) {
	db, err := OpenDatabase(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fork := db.Fork()
	schema := NewSchema(fork)
	addrs := make([]Address, 0, 5)
	for i := 0; i < 5; i++ {
		// Vary the seed per entry so each address is distinct.
		seed := make([]byte, 32)
		seed[0] = byte(i)
		kp, err := NewKeypairFromSeed(seed)
		require.NoError(t, err)
		addrs = append(addrs, kp.Address())
		require.NoError(t, schema.StateTrie.Set(kp.Address(), AccountState{Balance: uint64(i) + 1}))
	}
	require.NoError(t, db.Merge(fork))

	snap := db.Snapshot()
	defer snap.Discard()
	schema2 := NewSchema(snap)

	root, err := schema2.StateTrie.ObjectHash()
	require.NoError(t, err)

	target := addrs[3]
	leaf, path, index, proofRoot, err := schema2.StateTrie.Proof(target)
	require.NoError(t, err)
	require.Equal(t, root, proofRoot)
	require.True(t, VerifyMerklePath([32]byte(root), leaf, path, index))

	_, _, _, _, err = schema2.StateTrie.Proof(Address("not-a-real-address"))
	require.Error(t, err)
	require.True(t, Is(err, KindEmpty))
}
