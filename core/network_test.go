package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGossipEnvelopeRoundTripBlock(t *testing.T) {
	kp, err := NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	sb := SignBlock(kp, Block{ID: 0, PeerID: kp.Address(), PrevHash: ZeroHash})

	raw, err := encodeBlockEnvelope(sb)
	require.NoError(t, err)

	msg, err := decodeEnvelope("peer1", raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Block)
	require.Nil(t, msg.Txn)
	require.Equal(t, sb.Block.ID, msg.Block.Block.ID)
	require.True(t, msg.Block.VerifySignature())
}

func TestGossipEnvelopeRoundTripTransaction(t *testing.T) {
	st := SignedTransaction{
		Txn:     Transaction{AppName: WalletAppName, Payload: []byte("payload")},
		AppName: WalletAppName,
		Header:  map[string]string{"timestamp": "42"},
	}
	raw, err := encodeTxnEnvelope(st)
	require.NoError(t, err)

	msg, err := decodeEnvelope("peer2", raw)
	require.NoError(t, err)
	require.Nil(t, msg.Block)
	require.NotNil(t, msg.Txn)
	require.Equal(t, st.Hash(), msg.Txn.Hash())
}
