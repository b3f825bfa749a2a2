package core

// Capability interfaces and the app registry. Rather than the teacher's
// deep BlockTraits/BlockchainTraits/PoolTrait/StateTraits hierarchy, each
// application registers one Executor under an app_name; the block engine and
// pool dispatch to it by name. No inheritance, no cyclic references: blocks
// and the pool only ever hold transaction hashes, never pointers into each
// other.

import (
	"crypto/ed25519"
	"fmt"
	"sync"
)

// StateCtx is the mutable execution context an Executor applies a
// transaction against: the state_trie of the fork currently being staged by
// the block engine.
type StateCtx struct {
	Schema *Schema
}

// Executor is the "app executor" capability: given a transaction and a
// state context, apply its effect. genesis is true only for block 0, where
// transactions are credits with no signer to verify.
type Executor interface {
	Execute(ctx *StateCtx, st SignedTransaction, genesis bool) error
}

// AppRegistry maps app_name to its Executor.
type AppRegistry struct {
	mu    sync.RWMutex
	execs map[string]Executor
}

// NewAppRegistry returns an empty registry.
func NewAppRegistry() *AppRegistry {
	return &AppRegistry{execs: make(map[string]Executor)}
}

// Register binds name to exec, replacing any previous binding.
func (r *AppRegistry) Register(name string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[name] = exec
}

// Get looks up the executor registered under name.
func (r *AppRegistry) Get(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.execs[name]
	return e, ok
}

// WalletTransfer is the wallet app's payload: a plain balance transfer. It
// is the one illustration of the pluggable application contract that this
// core carries; balance-arithmetic business logic beyond this is out of
// scope.
type WalletTransfer struct {
	From   Address
	To     Address
	Amount uint64
}

func encodeWalletTransfer(t WalletTransfer) ([]byte, error) {
	return EncodeCanonical(struct {
		From   string
		To     string
		Amount uint64
	}{From: string(t.From), To: string(t.To), Amount: t.Amount})
}

func decodeWalletTransfer(b []byte) (WalletTransfer, error) {
	var r struct {
		From   string
		To     string
		Amount uint64
	}
	if err := DecodeCanonical(b, &r); err != nil {
		return WalletTransfer{}, err
	}
	return WalletTransfer{From: Address(r.From), To: Address(r.To), Amount: r.Amount}, nil
}

// WalletApp is the example application: balance credit/transfer over
// state_trie's AccountState.Balance.
type WalletApp struct{}

const WalletAppName = "wallet"

// Execute applies a wallet transfer. Genesis transfers are credit-only and
// carry from="" (no prior chain authority to sign under — the surrounding
// block signature is the only authority asserted). Non-genesis transfers
// must carry a real sender whose signature over the raw payload bytes
// verifies under the embedded from address, and must not overdraw.
func (WalletApp) Execute(ctx *StateCtx, st SignedTransaction, genesis bool) error {
	xfer, err := decodeWalletTransfer(st.Txn.Payload)
	if err != nil {
		return WrapErr(KindBadTransaction, "decode wallet transfer", err)
	}

	if genesis {
		if xfer.From != "" {
			return NewErr(KindBadTransaction, "genesis transfer must carry from=\"\"")
		}
		return creditAccount(ctx.Schema, xfer.To, xfer.Amount)
	}

	if xfer.From == "" {
		return NewErr(KindBadTransaction, "non-genesis transfer requires a sender")
	}
	pub, err := xfer.From.PublicKey()
	if err != nil {
		return WrapErr(KindBadTransaction, "decode sender address", err)
	}
	if !ed25519.Verify(pub, st.Txn.Payload, st.Signature) {
		return NewErr(KindBadTransaction, "wallet transfer: signature verification failed")
	}

	from, ok, err := ctx.Schema.StateTrie.Get(xfer.From)
	if err != nil {
		return err
	}
	if !ok || from.Balance < xfer.Amount {
		return NewErr(KindBadTransaction, fmt.Sprintf("insufficient balance for %s", xfer.From))
	}
	from.Balance -= xfer.Amount
	from.Nonce++
	if err := ctx.Schema.StateTrie.Set(xfer.From, from); err != nil {
		return err
	}
	return creditAccount(ctx.Schema, xfer.To, xfer.Amount)
}

func creditAccount(schema *Schema, addr Address, amount uint64) error {
	acct, _, err := schema.StateTrie.Get(addr)
	if err != nil {
		return err
	}
	acct.Balance += amount
	return schema.StateTrie.Set(addr, acct)
}
