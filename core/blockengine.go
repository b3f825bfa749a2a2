package core

// Block Engine (C4): genesis construction, block proposal, and the
// authoritative validation-and-append path for any block arriving from a
// peer or from the local proposer.

import (
	"strconv"

	"github.com/sirupsen/logrus"
)

// BlockEngine ties an AKV Database, the process-wide TxPool and the app
// registry together. While a fork is open it takes the pool's mutex only
// briefly, inside pool methods, and never calls into AKV while holding the
// pool's mutex, per the fixed lock order (AKV-fork-merge before TxPool).
type BlockEngine struct {
	DB   *Database
	Pool *TxPool
	Apps *AppRegistry
}

// NewBlockEngine constructs a BlockEngine over db, pool and apps.
func NewBlockEngine(db *Database, pool *TxPool, apps *AppRegistry) *BlockEngine {
	return &BlockEngine{DB: db, Pool: pool, Apps: apps}
}

func computeHeader(schema *Schema) (BlockHeader, error) {
	stateRoot, err := schema.StateRoot()
	if err != nil {
		return BlockHeader{}, err
	}
	storageRoot, err := schema.StorageRoot()
	if err != nil {
		return BlockHeader{}, err
	}
	txnRoot, err := schema.TxnRoot()
	if err != nil {
		return BlockHeader{}, err
	}
	return BlockHeader{stateRoot, storageRoot, txnRoot}, nil
}

// Initialize builds and appends the genesis block: each funded address is
// credited 100_000_000 via a synthetic, unsigned SignedTransaction carrying
// from="" (there is no prior chain authority at height 0 — only the
// surrounding block signature is authoritative). Returns the genesis
// SignedBlock and the list of synthesized genesis transactions.
func (e *BlockEngine) Initialize(kp Keypair, funded []Address) (SignedBlock, []SignedTransaction, error) {
	fork := e.DB.Fork()
	schema := NewSchema(fork)

	block := Block{
		ID:       0,
		PeerID:   kp.Address(),
		PrevHash: ZeroHash,
		TxnPool:  nil,
	}

	genesisTxns := make([]SignedTransaction, 0, len(funded))
	for i, addr := range funded {
		xferBytes, err := encodeWalletTransfer(WalletTransfer{From: "", To: addr, Amount: 100_000_000})
		if err != nil {
			fork.Discard()
			return SignedBlock{}, nil, WrapErr(KindSerializationError, "encode genesis transfer", err)
		}
		st := SignedTransaction{
			Txn:       Transaction{AppName: WalletAppName, Payload: xferBytes},
			AppName:   WalletAppName,
			Signature: nil,
			Header:    map[string]string{"timestamp": uitoaInt(i)},
		}
		wallet := WalletApp{}
		if err := wallet.Execute(&StateCtx{Schema: schema}, st, true); err != nil {
			fork.Discard()
			return SignedBlock{}, nil, err
		}
		h := st.Hash()
		if err := schema.Transactions.Set(h, st); err != nil {
			fork.Discard()
			return SignedBlock{}, nil, err
		}
		block.TxnPool = append(block.TxnPool, h)
		genesisTxns = append(genesisTxns, st)
	}

	header, err := computeHeader(schema)
	if err != nil {
		fork.Discard()
		return SignedBlock{}, nil, err
	}
	block.Header = header

	sb := SignBlock(kp, block)
	if err := schema.Blocks.Append(sb); err != nil {
		fork.Discard()
		return SignedBlock{}, nil, err
	}

	if err := e.DB.Merge(fork); err != nil {
		return SignedBlock{}, nil, err
	}
	logrus.WithField("funded", len(funded)).Info("blockengine: genesis initialized")
	return sb, genesisTxns, nil
}

// Propose builds a new block from the pool's pending transactions. It does
// not remove anything from the pool — removal happens in UpdateBlock once
// the block is durably appended. On failure the fork is discarded and pool
// state is unchanged.
func (e *BlockEngine) Propose(kp Keypair) (SignedBlock, error) {
	fork := e.DB.Fork()
	schema := NewSchema(fork)

	applied := e.Pool.ExecutePending(&StateCtx{Schema: schema}, e.Apps)
	for _, h := range applied {
		txn, ok := e.Pool.Get(h)
		if !ok {
			fork.Discard()
			return SignedBlock{}, NewErr(KindCorruption, "proposed transaction vanished from pool mid-proposal")
		}
		if err := schema.Transactions.Set(h, txn); err != nil {
			fork.Discard()
			return SignedBlock{}, err
		}
	}

	last, err := schema.LastBlock()
	var prevHash Hash
	var id uint64
	if err != nil {
		if !Is(err, KindEmpty) {
			fork.Discard()
			return SignedBlock{}, err
		}
		// No genesis yet is a configuration error at this call site; the
		// caller must run Initialize first.
		fork.Discard()
		return SignedBlock{}, NewErr(KindEmpty, "propose called before genesis")
	}
	prevHash = last.Block.Hash()
	length, err := schema.BlockchainLength()
	if err != nil {
		fork.Discard()
		return SignedBlock{}, err
	}
	id = length

	header, err := computeHeader(schema)
	if err != nil {
		fork.Discard()
		return SignedBlock{}, err
	}

	block := Block{ID: id, PeerID: kp.Address(), PrevHash: prevHash, TxnPool: applied, Header: header}
	sb := SignBlock(kp, block)
	if err := schema.Blocks.Append(sb); err != nil {
		fork.Discard()
		return SignedBlock{}, err
	}
	if err := e.DB.Merge(fork); err != nil {
		fork.Discard()
		return SignedBlock{}, err
	}
	logrus.WithField("id", id).WithField("txns", len(applied)).Info("blockengine: proposed block")
	return sb, nil
}

// UpdateBlock is the authoritative import path for any block arriving from
// peers or from the local proposer. Each step gates the next; any failure
// discards the fork and leaves the pool untouched.
func (e *BlockEngine) UpdateBlock(sb SignedBlock) error {
	fork := e.DB.Fork()
	schema := NewSchema(fork)

	length, err := schema.BlockchainLength()
	if err != nil {
		fork.Discard()
		return err
	}
	if sb.Block.ID != length {
		fork.Discard()
		return NewErr(KindWrongHeight, "block id does not equal current chain length")
	}

	if !sb.VerifySignature() {
		fork.Discard()
		return NewErr(KindBadSignature, "block signature verification failed")
	}

	genesis := sb.Block.ID == 0
	if !genesis {
		last, err := schema.LastBlock()
		if err != nil {
			fork.Discard()
			return err
		}
		if sb.Block.PrevHash != last.Block.Hash() {
			fork.Discard()
			return NewErr(KindForkedChain, "prev_hash does not match local chain tip")
		}
	}

	ctx := &StateCtx{Schema: schema}
	ok := e.Pool.ApplyBlock(ctx, e.Apps, sb.Block.TxnPool, genesis)
	if !ok {
		fork.Discard()
		return NewErr(KindBadTransaction, "one or more block transactions failed to apply")
	}
	for _, h := range sb.Block.TxnPool {
		txn, found := e.Pool.Get(h)
		if !found {
			fork.Discard()
			return NewErr(KindBadTransaction, "transaction referenced by block is not in the pool")
		}
		if err := schema.Transactions.Set(h, txn); err != nil {
			fork.Discard()
			return err
		}
	}

	computed, err := computeHeader(schema)
	if err != nil {
		fork.Discard()
		return err
	}
	if computed != sb.Block.Header {
		fork.Discard()
		which := "state"
		switch {
		case computed[0] != sb.Block.Header[0]:
			which = "state"
		case computed[1] != sb.Block.Header[1]:
			which = "storage"
		case computed[2] != sb.Block.Header[2]:
			which = "transaction"
		}
		return NewErr(KindHeaderMismatch, "computed header does not match block header: "+which+" root diverged")
	}

	if err := schema.Blocks.Append(sb); err != nil {
		fork.Discard()
		return err
	}
	if err := e.DB.Merge(fork); err != nil {
		fork.Discard()
		return err
	}

	e.Pool.SyncCommitted(sb.Block.TxnPool)
	logrus.WithField("id", sb.Block.ID).Info("blockengine: block appended")
	return nil
}

func uitoaInt(i int) string { return strconv.FormatUint(uint64(i), 10) }
