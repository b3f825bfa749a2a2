package core

// Sync Engine (C5): pull-based catch-up. Discovers a peer's chain length,
// fetches missing blocks and their referenced transactions in order, and
// feeds them to the Block Engine in ascending height order.

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// PeerClient is the outbound half of the HTTP peer-to-peer surface that the
// sync engine pulls from. Concrete implementations live in httpapi.go.
type PeerClient interface {
	FetchPeerChainLength(ctx context.Context) (uint64, error)
	FetchBlock(ctx context.Context, height uint64) (SignedBlock, error)
	FetchTransaction(ctx context.Context, h Hash) (SignedTransaction, error)
}

// SyncState is the result of one fetch_sync_state call: the peer's
// advertised chain length plus every block and transaction successfully
// pulled before the monotone-fetch rule stopped the scan.
type SyncState struct {
	TargetHeight uint64
	Blocks       map[uint64]SignedBlock
	Txns         map[Hash]SignedTransaction
}

// SyncEngine pairs a PeerClient with the local BlockEngine it feeds.
type SyncEngine struct {
	Client PeerClient
	Engine *BlockEngine
}

// NewSyncEngine constructs a SyncEngine over client and engine.
func NewSyncEngine(client PeerClient, engine *BlockEngine) *SyncEngine {
	return &SyncEngine{Client: client, Engine: engine}
}

// FetchSyncState implements the monotone fetch rule: if any block at height
// h is missing or erroneous, no block at a height > h is useful (it would
// form an orphan gap), so the scan stops at the first gap and returns
// whatever was gathered so far. A peer that cannot be reached at all is
// reported as PeerUnavailable rather than silently returning an empty,
// successful state.
func (s *SyncEngine) FetchSyncState(ctx context.Context, currentHeight uint64) (SyncState, error) {
	peerHeight, err := s.Client.FetchPeerChainLength(ctx)
	if err != nil {
		return SyncState{}, WrapErr(KindPeerUnavailable, "fetch peer chain length", err)
	}
	if peerHeight == 0 || peerHeight <= currentHeight {
		return SyncState{TargetHeight: peerHeight, Blocks: map[uint64]SignedBlock{}, Txns: map[Hash]SignedTransaction{}}, nil
	}

	blocks := make(map[uint64]SignedBlock)
	for h := currentHeight; h < peerHeight; h++ {
		sb, err := s.Client.FetchBlock(ctx, h)
		if err != nil {
			logrus.WithField("height", h).WithError(err).Warn("syncengine: stopping at first gap")
			break
		}
		blocks[h] = sb
	}

	heights := make([]uint64, 0, len(blocks))
	for h := range blocks {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	txns := make(map[Hash]SignedTransaction)
fetchLoop:
	for _, h := range heights {
		for _, th := range blocks[h].Block.TxnPool {
			if _, have := txns[th]; have {
				continue
			}
			st, err := s.Client.FetchTransaction(ctx, th)
			if err != nil {
				logrus.WithField("hash", th.Short()).WithError(err).Warn("syncengine: stopping transaction fetch at first error")
				break fetchLoop
			}
			txns[th] = st
		}
	}

	return SyncState{TargetHeight: peerHeight, Blocks: blocks, Txns: txns}, nil
}

// Apply feeds a fetched SyncState into the block engine in ascending height
// order, pre-populating the pool with each block's referenced transactions
// first so UpdateBlock's per-hash pool lookup succeeds. Stops at the first
// block that UpdateBlock rejects and returns that error; earlier blocks
// remain durably appended.
func (s *SyncEngine) Apply(state SyncState) error {
	heights := make([]uint64, 0, len(state.Blocks))
	for h := range state.Blocks {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	for _, h := range heights {
		sb := state.Blocks[h]
		for _, th := range sb.Block.TxnPool {
			if txn, ok := state.Txns[th]; ok {
				_ = s.Engine.Pool.Insert(txn)
			}
		}
		if err := s.Engine.UpdateBlock(sb); err != nil {
			return err
		}
	}
	return nil
}
