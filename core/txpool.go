package core

// Transaction Pool (C3): a process-wide pool of pending signed transactions,
// held in a single map keyed by content hash (O(1) lookup). Each entry
// carries its parsed timestamp; there is no separate timestamp-keyed index —
// timestamp order is computed by sorting the entries when it is needed
// (sortedHashes). The map is guarded by a single mutex — short critical
// sections, no I/O held under the lock.

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxBlockTransactions is the proposer's hard block-size cap.
const MaxBlockTransactions = 15

type poolEntry struct {
	txn   SignedTransaction
	order OrderKey
}

// TxPool is the process-wide, mutex-guarded pending-transaction pool.
type TxPool struct {
	mu      sync.Mutex
	entries map[Hash]poolEntry
}

// NewTxPool returns an empty pool.
func NewTxPool() *TxPool {
	return &TxPool{entries: make(map[Hash]poolEntry)}
}

// Insert parses txn.Header["timestamp"] as a u128 order key; on malformed
// input it drops the transaction and returns the parse error. Insertion is
// idempotent on identical content hash.
func (p *TxPool) Insert(txn SignedTransaction) error {
	order, err := txn.OrderKey()
	if err != nil {
		return err
	}
	h := txn.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[h]; exists {
		return nil
	}
	p.entries[h] = poolEntry{txn: txn, order: order}
	return nil
}

// Get returns the transaction with the given content hash, if present.
func (p *TxPool) Get(h Hash) (SignedTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[h]
	return e.txn, ok
}

// RemoveByHash drops the transaction with the given content hash.
func (p *TxPool) RemoveByHash(h Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, h)
}

// RemoveByOrder drops every transaction inserted under the given order key
// (timestamps may collide across independent clients).
func (p *TxPool) RemoveByOrder(ts OrderKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h, e := range p.entries {
		if e.order.Equal(ts) {
			delete(p.entries, h)
		}
	}
}

// SyncCommitted removes every listed hash from the pool atomically. Called
// once a block referencing them has been durably appended.
func (p *TxPool) SyncCommitted(hashes []Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		delete(p.entries, h)
	}
}

// SyncRejected re-admits transactions after a proposed or imported block
// referencing them was rejected, so future proposals can still see them.
// Transactions already in the pool, or whose timestamp header does not
// parse, are silently skipped (idempotent).
func (p *TxPool) SyncRejected(txns []SignedTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, txn := range txns {
		order, err := txn.OrderKey()
		if err != nil {
			continue
		}
		h := txn.Hash()
		if _, exists := p.entries[h]; !exists {
			p.entries[h] = poolEntry{txn: txn, order: order}
		}
	}
}

// sortedHashes returns every pool entry's hash in (timestamp, hash) order:
// when two transactions share a timestamp (possible across clients) the
// content hash breaks the tie, ascending. Callers must not rely on Go map
// iteration order alone.
func (p *TxPool) sortedHashes() []Hash {
	hashes := make([]Hash, 0, len(p.entries))
	for h := range p.entries {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		oi, oj := p.entries[hashes[i]].order, p.entries[hashes[j]].order
		if !oi.Equal(oj) {
			return oi.Less(oj)
		}
		return hashes[i].String() < hashes[j].String()
	})
	return hashes
}

// ExecutePending applies up to MaxBlockTransactions transactions, in
// timestamp order, dispatching each to the app named by its AppName.
// Transactions that fail to execute (bad signature, unknown app, ...) are
// skipped and logged rather than counted toward the cap or against the
// caller — a malformed pool entry must never stall block production.
// Returns the ordered hash list of transactions actually applied.
func (p *TxPool) ExecutePending(ctx *StateCtx, apps *AppRegistry) []Hash {
	p.mu.Lock()
	ordered := p.sortedHashes()
	entries := make(map[Hash]SignedTransaction, len(p.entries))
	for h, e := range p.entries {
		entries[h] = e.txn
	}
	p.mu.Unlock()

	applied := make([]Hash, 0, MaxBlockTransactions)
	for _, h := range ordered {
		if len(applied) >= MaxBlockTransactions {
			break
		}
		txn := entries[h]
		exec, ok := apps.Get(txn.AppName)
		if !ok {
			logrus.WithField("app_name", txn.AppName).Warn("txpool: no executor registered, skipping transaction")
			continue
		}
		if err := exec.Execute(ctx, txn, false); err != nil {
			logrus.WithError(err).WithField("hash", h.Short()).Warn("txpool: transaction failed to execute, skipping")
			continue
		}
		applied = append(applied, h)
	}
	return applied
}

// ApplyBlock applies exactly the given hash sequence (no cap), as required
// when importing a block proposed by a peer or by the local proposer.
// genesis selects credit-only, signature-free execution for height 0.
// Returns true iff every hash was found in the pool and every application
// call succeeded; on false, the caller's fork must be discarded untouched.
func (p *TxPool) ApplyBlock(ctx *StateCtx, apps *AppRegistry, hashes []Hash, genesis bool) bool {
	p.mu.Lock()
	txns := make([]SignedTransaction, 0, len(hashes))
	for _, h := range hashes {
		e, ok := p.entries[h]
		if !ok {
			p.mu.Unlock()
			return false
		}
		txns = append(txns, e.txn)
	}
	p.mu.Unlock()

	for i, txn := range txns {
		exec, ok := apps.Get(txn.AppName)
		if !ok {
			logrus.WithField("app_name", txn.AppName).WithField("hash", hashes[i].Short()).Warn("apply_block: no executor registered")
			return false
		}
		if err := exec.Execute(ctx, txn, genesis); err != nil {
			logrus.WithError(err).WithField("hash", hashes[i].Short()).Warn("apply_block: transaction failed to execute")
			return false
		}
	}
	return true
}

// Len returns the number of pending transactions (for diagnostics/tests).
func (p *TxPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
