package core

// Chain Schema (C2): a thin typed facade binding well-known names to index
// types over an AKV View. Reads go through a Snapshot; writes require a
// Fork (a Mutator).

// rlpAccountState is the RLP-encodable shape of AccountState (all fields are
// already RLP-friendly scalars/arrays, so this just documents the mapping).
type rlpAccountState struct {
	Nonce       uint64
	Balance     uint64
	StorageRoot [32]byte
	CodeHash    [32]byte
}

func encodeAccountState(a AccountState) ([]byte, error) {
	return EncodeCanonical(rlpAccountState{
		Nonce:       a.Nonce,
		Balance:     a.Balance,
		StorageRoot: a.StorageRoot,
		CodeHash:    a.CodeHash,
	})
}

func decodeAccountState(b []byte) (AccountState, error) {
	var r rlpAccountState
	if err := DecodeCanonical(b, &r); err != nil {
		return AccountState{}, err
	}
	return AccountState{Nonce: r.Nonce, Balance: r.Balance, StorageRoot: r.StorageRoot, CodeHash: r.CodeHash}, nil
}

func encodeSignedTransaction(st SignedTransaction) ([]byte, error) {
	return EncodeCanonical(rlpSignedTransaction{
		TxnAppName: st.Txn.AppName,
		TxnPayload: st.Txn.Payload,
		AppName:    st.AppName,
		Signature:  st.Signature,
		Header:     sortedHeaderPairs(st.Header),
	})
}

func decodeSignedTransaction(b []byte) (SignedTransaction, error) {
	var r rlpSignedTransaction
	if err := DecodeCanonical(b, &r); err != nil {
		return SignedTransaction{}, err
	}
	header := make(map[string]string, len(r.Header))
	for _, p := range r.Header {
		header[p.K] = p.V
	}
	return SignedTransaction{
		Txn:       Transaction{AppName: r.TxnAppName, Payload: r.TxnPayload},
		AppName:   r.AppName,
		Signature: r.Signature,
		Header:    header,
	}, nil
}

func encodeSignedBlock(sb SignedBlock) ([]byte, error) {
	txns := make([][32]byte, len(sb.Block.TxnPool))
	for i, h := range sb.Block.TxnPool {
		txns[i] = h
	}
	return EncodeCanonical(struct {
		ID        uint64
		PeerID    string
		PrevHash  [32]byte
		TxnPool   [][32]byte
		Header    [3][32]byte
		Signature []byte
	}{
		ID:        sb.Block.ID,
		PeerID:    string(sb.Block.PeerID),
		PrevHash:  sb.Block.PrevHash,
		TxnPool:   txns,
		Header:    [3][32]byte{sb.Block.Header[0], sb.Block.Header[1], sb.Block.Header[2]},
		Signature: sb.Signature,
	})
}

func decodeSignedBlock(b []byte) (SignedBlock, error) {
	var r struct {
		ID        uint64
		PeerID    string
		PrevHash  [32]byte
		TxnPool   [][32]byte
		Header    [3][32]byte
		Signature []byte
	}
	if err := DecodeCanonical(b, &r); err != nil {
		return SignedBlock{}, err
	}
	txns := make([]Hash, len(r.TxnPool))
	for i, h := range r.TxnPool {
		txns[i] = h
	}
	return SignedBlock{
		Block: Block{
			ID:       r.ID,
			PeerID:   Address(r.PeerID),
			PrevHash: r.PrevHash,
			TxnPool:  txns,
			Header:   BlockHeader{r.Header[0], r.Header[1], r.Header[2]},
		},
		Signature: r.Signature,
	}, nil
}

func encodeHashKey(h Hash) []byte    { return h[:] }
func decodeHashKey(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return Hash{}, NewErr(KindCorruption, "malformed hash key")
	}
	copy(h[:], b)
	return h, nil
}

func encodeAddressKey(a Address) []byte { return []byte(a) }
func decodeAddressKey(b []byte) (Address, error) {
	return Address(b), nil
}

// Schema binds the four well-known indices over a single AKV view (a
// Snapshot for read-only access, or a Fork for staged mutation).
type Schema struct {
	Blocks      *ListIndex[SignedBlock]
	Transactions *ProofMapIndex[Hash, SignedTransaction]
	StateTrie   *ProofMapIndex[Address, AccountState]
	StorageTrie *ProofMapIndex[Hash, SignedTransaction]
}

// NewSchema constructs the typed facade over view.
func NewSchema(view View) *Schema {
	return &Schema{
		Blocks: NewListIndex[SignedBlock](view, "blocks", encodeSignedBlock, decodeSignedBlock),
		Transactions: NewProofMapIndex[Hash, SignedTransaction](
			view, "transactions", encodeHashKey, decodeHashKey, encodeSignedTransaction, decodeSignedTransaction),
		StateTrie: NewProofMapIndex[Address, AccountState](
			view, "state_trie", encodeAddressKey, decodeAddressKey, encodeAccountState, decodeAccountState),
		StorageTrie: NewProofMapIndex[Hash, SignedTransaction](
			view, "storage_trie", encodeHashKey, decodeHashKey, encodeSignedTransaction, decodeSignedTransaction),
	}
}

// TxnRoot returns the live Merkle root of the transactions index.
func (s *Schema) TxnRoot() (Hash, error) { return s.Transactions.ObjectHash() }

// StateRoot returns the live Merkle root of the state trie.
func (s *Schema) StateRoot() (Hash, error) { return s.StateTrie.ObjectHash() }

// StorageRoot returns the live Merkle root of the storage trie.
func (s *Schema) StorageRoot() (Hash, error) { return s.StorageTrie.ObjectHash() }

// BlockchainLength returns the number of blocks appended so far.
func (s *Schema) BlockchainLength() (uint64, error) { return s.Blocks.Len() }

// LastBlock returns blocks[len-1], or an Empty error if height 0 is absent.
func (s *Schema) LastBlock() (SignedBlock, error) {
	n, err := s.Blocks.Len()
	if err != nil {
		return SignedBlock{}, err
	}
	if n == 0 {
		return SignedBlock{}, NewErr(KindEmpty, "no blocks appended yet")
	}
	sb, ok, err := s.Blocks.Get(n - 1)
	if err != nil {
		return SignedBlock{}, err
	}
	if !ok {
		return SignedBlock{}, NewErr(KindCorruption, "last block missing despite nonzero length")
	}
	return sb, nil
}
