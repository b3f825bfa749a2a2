package core

// Typed indices over an AKV View: ListIndex (an ordered sequence, used for
// the block chain) and ProofMapIndex (a key-value map whose object_hash is a
// Merkle root over its contents, used for the transaction/state/storage
// tries). Both reuse merkle_tree_operations.go for hashing.

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// EmptyRoot is the object_hash of an index with no entries. Using a fixed,
// non-zero sentinel (rather than the zero Hash, which collides with
// ZeroHash) keeps "empty trie" distinguishable from "trie containing a
// literal all-zero leaf".
var EmptyRoot = HashBytes([]byte("akv:empty-index"))

func u64key(prefix []byte, i uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], i)
	return key
}

// ListIndex is an ordered, append-only sequence of T, addressable by index
// and exposing a Merkle root over the ordered sequence.
type ListIndex[T any] struct {
	view    View
	prefix  []byte
	lenKey  []byte
	encode  func(T) ([]byte, error)
	decode  func([]byte) (T, error)
}

// NewListIndex constructs a list index named name over view. Creating one
// lazily initializes storage for that name — no explicit schema migration is
// needed.
func NewListIndex[T any](view View, name string, encode func(T) ([]byte, error), decode func([]byte) (T, error)) *ListIndex[T] {
	prefix := []byte("list:" + name + ":")
	return &ListIndex[T]{
		view:   view,
		prefix: prefix,
		lenKey: []byte("listlen:" + name),
		encode: encode,
		decode: decode,
	}
}

// Len returns the number of elements in the list.
func (l *ListIndex[T]) Len() (uint64, error) {
	raw, ok, err := l.view.Get(l.lenKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Get returns the element at index i.
func (l *ListIndex[T]) Get(i uint64) (T, bool, error) {
	var zero T
	raw, ok, err := l.view.Get(u64key(l.prefix, i))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := l.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Append adds v at the end of the list. Requires the backing View to be a
// Mutator (a Fork); called on a read-only Snapshot it returns an Io error.
func (l *ListIndex[T]) Append(v T) error {
	mut, ok := l.view.(Mutator)
	if !ok {
		return NewErr(KindIo, "list index: view is read-only")
	}
	n, err := l.Len()
	if err != nil {
		return err
	}
	raw, err := l.encode(v)
	if err != nil {
		return WrapErr(KindSerializationError, "encode list element", err)
	}
	mut.Put(u64key(l.prefix, n), raw)
	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, n+1)
	mut.Put(l.lenKey, lenBuf)
	return nil
}

// leaves returns every encoded element in order, the raw material both
// ObjectHash and Proof build their Merkle tree from.
func (l *ListIndex[T]) leaves() ([][]byte, error) {
	n, err := l.Len()
	if err != nil {
		return nil, err
	}
	leaves := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, ok, err := l.view.Get(u64key(l.prefix, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewErr(KindCorruption, "list index: missing element in range")
		}
		leaves = append(leaves, raw)
	}
	return leaves, nil
}

// ObjectHash returns the Merkle root over the ordered sequence of encoded
// elements. An empty list hashes to EmptyRoot.
func (l *ListIndex[T]) ObjectHash() (Hash, error) {
	leaves, err := l.leaves()
	if err != nil {
		return Hash{}, err
	}
	if len(leaves) == 0 {
		return EmptyRoot, nil
	}
	tree, err := BuildMerkleTree(leaves)
	if err != nil {
		return Hash{}, WrapErr(KindCorruption, "build merkle tree", err)
	}
	return tree[len(tree)-1][0], nil
}

// Proof returns an inclusion proof for the element at index i: its encoded
// leaf, the sibling-hash path from leaf level up, and the list's current
// Merkle root. A peer holding only this triple and i can confirm membership
// against an advertised root via VerifyMerklePath, without fetching every
// other element.
func (l *ListIndex[T]) Proof(i uint64) (leaf []byte, path [][]byte, root Hash, err error) {
	leaves, err := l.leaves()
	if err != nil {
		return nil, nil, Hash{}, err
	}
	if i >= uint64(len(leaves)) {
		return nil, nil, Hash{}, NewErr(KindEmpty, "list index: proof index out of range")
	}
	path, rootArr, err := MerkleProof(leaves, uint32(i))
	if err != nil {
		return nil, nil, Hash{}, WrapErr(KindCorruption, "build merkle proof", err)
	}
	return leaves[i], path, Hash(rootArr), nil
}

// ProofMapIndex is a K->V map whose object_hash is a Merkle root over its
// current key-value set — a deterministic function of content, not
// insertion order, enabling inclusion proofs.
type ProofMapIndex[K any, V any] struct {
	view       View
	prefix     []byte
	encodeKey  func(K) []byte
	decodeKey  func([]byte) (K, error)
	encodeVal  func(V) ([]byte, error)
	decodeVal  func([]byte) (V, error)
}

// NewProofMapIndex constructs a proof-map index named name over view.
func NewProofMapIndex[K any, V any](view View, name string, encodeKey func(K) []byte, decodeKey func([]byte) (K, error), encodeVal func(V) ([]byte, error), decodeVal func([]byte) (V, error)) *ProofMapIndex[K, V] {
	return &ProofMapIndex[K, V]{
		view:      view,
		prefix:    []byte("map:" + name + ":"),
		encodeKey: encodeKey,
		decodeKey: decodeKey,
		encodeVal: encodeVal,
		decodeVal: decodeVal,
	}
}

func (m *ProofMapIndex[K, V]) storageKey(k K) []byte {
	return append(append([]byte(nil), m.prefix...), m.encodeKey(k)...)
}

// Get looks up the value stored under k.
func (m *ProofMapIndex[K, V]) Get(k K) (V, bool, error) {
	var zero V
	raw, ok, err := m.view.Get(m.storageKey(k))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := m.decodeVal(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores v under k. Requires the backing View to be a Mutator.
func (m *ProofMapIndex[K, V]) Set(k K, v V) error {
	mut, ok := m.view.(Mutator)
	if !ok {
		return NewErr(KindIo, "proof map: view is read-only")
	}
	raw, err := m.encodeVal(v)
	if err != nil {
		return WrapErr(KindSerializationError, "encode map value", err)
	}
	mut.Put(m.storageKey(k), raw)
	return nil
}

// Delete removes k from the map. Requires the backing View to be a Mutator.
func (m *ProofMapIndex[K, V]) Delete(k K) error {
	mut, ok := m.view.(Mutator)
	if !ok {
		return NewErr(KindIo, "proof map: view is read-only")
	}
	mut.Delete(m.storageKey(k))
	return nil
}

// sortedEntries returns the map's storage keys and their encoded leaves
// (key||value), sorted by key so the result is a function of content, never
// of insertion order. Both ObjectHash and Proof build on this.
func (m *ProofMapIndex[K, V]) sortedEntries() (keys [][]byte, leaves [][]byte, err error) {
	type kv struct {
		key []byte
		val []byte
	}
	var entries []kv
	err = m.view.IteratePrefix(m.prefix, func(key, value []byte) error {
		entries = append(entries, kv{key: append([]byte(nil), key...), val: append([]byte(nil), value...)})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].key) < string(entries[j].key)
	})
	keys = make([][]byte, len(entries))
	leaves = make([][]byte, len(entries))
	for i, e := range entries {
		keys[i] = e.key
		leaf := make([]byte, 0, len(e.key)+len(e.val))
		leaf = append(leaf, e.key...)
		leaf = append(leaf, e.val...)
		leaves[i] = leaf
	}
	return keys, leaves, nil
}

// ObjectHash returns the Merkle root over the current key-value set. Keys
// are sorted by their encoded bytes first so the root is a function of
// content, never of insertion order (the "root stability under permutation"
// property). An empty map hashes to EmptyRoot.
func (m *ProofMapIndex[K, V]) ObjectHash() (Hash, error) {
	_, leaves, err := m.sortedEntries()
	if err != nil {
		return Hash{}, err
	}
	if len(leaves) == 0 {
		return EmptyRoot, nil
	}
	tree, err := BuildMerkleTree(leaves)
	if err != nil {
		return Hash{}, WrapErr(KindCorruption, "build merkle tree", err)
	}
	return tree[len(tree)-1][0], nil
}

// Proof returns an inclusion proof for k's current value: the encoded leaf,
// the sibling-hash path, the leaf's position among the sorted entries, and
// the map's current Merkle root. Pass leaf, path and index to
// VerifyMerklePath against an advertised root to confirm k=v belongs to
// that root without fetching the rest of the map.
func (m *ProofMapIndex[K, V]) Proof(k K) (leaf []byte, path [][]byte, index uint32, root Hash, err error) {
	keys, leaves, err := m.sortedEntries()
	if err != nil {
		return nil, nil, 0, Hash{}, err
	}
	target := m.storageKey(k)
	pos := -1
	for i, key := range keys {
		if bytes.Equal(key, target) {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, nil, 0, Hash{}, NewErr(KindEmpty, "proof map: key not present")
	}
	path, rootArr, err := MerkleProof(leaves, uint32(pos))
	if err != nil {
		return nil, nil, 0, Hash{}, WrapErr(KindCorruption, "build merkle proof", err)
	}
	return leaves[pos], path, uint32(pos), Hash(rootArr), nil
}
