package core

// Core data types for the chain: hashes, addresses, keypairs, transactions
// and blocks. Canonical (hash-stable) encoding is handled by codec.go.

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Hash is a 32-byte content digest, used both as a content address and as a
// Merkle root.
type Hash [32]byte

// ZeroHash is the sentinel prev_hash of the genesis block.
var ZeroHash = Hash{}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Short() string {
	s := h.String()
	if len(s) <= 8 {
		return s
	}
	return fmt.Sprintf("%s..%s", s[:4], s[len(s)-4:])
}

// HashBytes returns the SHA-256 digest of b.
func HashBytes(b []byte) Hash { return sha256.Sum256(b) }

// ParseHash decodes a hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	if len(b) != len(h) {
		return Hash{}, fmt.Errorf("core: wrong hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Address is a hex-encoded Ed25519 public key (64 hex chars).
type Address string

// AddressFromPublicKey derives the hex Address of an Ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(hex.EncodeToString(pub))
}

// PublicKey decodes the address back into raw Ed25519 public key bytes.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("core: bad address %q: %w", a, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("core: address %q has wrong key length %d", a, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// Keypair is an Ed25519 secret+public keypair.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewKeypairFromSeed derives a deterministic Ed25519 keypair from a 32-byte
// seed (e.g. the hex seed used in test scenarios).
func NewKeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("core: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Address returns the hex-encoded public key of the keypair.
func (kp Keypair) Address() Address { return AddressFromPublicKey(kp.Public) }

// Sign signs msg under the keypair's private key.
func (kp Keypair) Sign(msg []byte) []byte { return ed25519.Sign(kp.Private, msg) }

// headerPair is the flattened, sortable form of a transaction header map,
// used so the map can be fed through a canonical (field-ordered) codec.
type headerPair struct {
	K string
	V string
}

func sortedHeaderPairs(h map[string]string) []headerPair {
	pairs := make([]headerPair, 0, len(h))
	for k, v := range h {
		pairs = append(pairs, headerPair{K: k, V: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].K < pairs[j].K })
	return pairs
}

// Transaction is the opaque, application-defined payload carried by a
// SignedTransaction. AppName selects the executor that interprets Payload.
type Transaction struct {
	AppName string
	Payload []byte
}

// SignedTransaction pairs a transaction with its signature and insertion
// metadata. Header must contain a "timestamp" key parseable as an unsigned
// 128-bit integer; that value is the pool's insertion-order key.
type SignedTransaction struct {
	Txn       Transaction
	AppName   string
	Signature []byte
	Header    map[string]string
}

// rlpSignedTransaction is the RLP-encodable shape of SignedTransaction: maps
// are not RLP-encodable, so Header is flattened into a sorted slice first.
type rlpSignedTransaction struct {
	TxnAppName string
	TxnPayload []byte
	AppName    string
	Signature  []byte
	Header     []headerPair
}

// Hash returns the content hash of the canonical serialization of the whole
// record (txn + app_name + signature + header).
func (st SignedTransaction) Hash() Hash {
	enc, err := EncodeCanonical(rlpSignedTransaction{
		TxnAppName: st.Txn.AppName,
		TxnPayload: st.Txn.Payload,
		AppName:    st.AppName,
		Signature:  st.Signature,
		Header:     sortedHeaderPairs(st.Header),
	})
	if err != nil {
		// Only malformed (non-RLP-encodable) values reach here, which cannot
		// happen for this fixed shape; fail loudly rather than return a
		// silently wrong hash.
		panic(fmt.Sprintf("core: encode signed transaction: %v", err))
	}
	return HashBytes(enc)
}

// OrderKey parses Header["timestamp"] as an unsigned 128-bit integer,
// represented here as the widest native unsigned type (uint64) plus a high
// word, since Go has no native uint128. See OrderKey.
func (st SignedTransaction) OrderKey() (OrderKey, error) {
	return ParseOrderKey(st.Header["timestamp"])
}

// Header = [state_root, storage_root, transaction_root], computed after
// applying the block's transactions.
type BlockHeader [3]Hash

// Block is the unsigned block body.
type Block struct {
	ID       uint64
	PeerID   Address
	PrevHash Hash
	TxnPool  []Hash
	Header   BlockHeader
}

type rlpBlock struct {
	ID       uint64
	PeerID   string
	PrevHash [32]byte
	TxnPool  [][32]byte
	Header   [3][32]byte
}

// Serialize returns the canonical binary encoding of the block, the input to
// both signing and the block's own content hash.
func (b Block) Serialize() []byte {
	txns := make([][32]byte, len(b.TxnPool))
	for i, h := range b.TxnPool {
		txns[i] = h
	}
	enc, err := EncodeCanonical(rlpBlock{
		ID:       b.ID,
		PeerID:   string(b.PeerID),
		PrevHash: b.PrevHash,
		TxnPool:  txns,
		Header:   [3][32]byte{b.Header[0], b.Header[1], b.Header[2]},
	})
	if err != nil {
		panic(fmt.Sprintf("core: encode block: %v", err))
	}
	return enc
}

// Hash returns the content hash of the block (hash(blocks[i].block)).
func (b Block) Hash() Hash { return HashBytes(b.Serialize()) }

// SignedBlock pairs a block with a signature over its canonical
// serialization, verified against block.PeerID.
type SignedBlock struct {
	Block     Block
	Signature []byte
}

// SignBlock produces a SignedBlock by signing b.Serialize() under kp.
func SignBlock(kp Keypair, b Block) SignedBlock {
	return SignedBlock{Block: b, Signature: kp.Sign(b.Serialize())}
}

// VerifySignature checks sb.Signature over sb.Block's canonical
// serialization against sb.Block.PeerID.
func (sb SignedBlock) VerifySignature() bool {
	pub, err := sb.Block.PeerID.PublicKey()
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, sb.Block.Serialize(), sb.Signature)
}

// AccountState is the wallet example application's per-address state.
type AccountState struct {
	Nonce       uint64
	Balance     uint64
	StorageRoot Hash
	CodeHash    Hash
}
