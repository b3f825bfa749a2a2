package core

// Canonical serialization. We use RLP (as the teacher's ledger already does
// for on-disk records) because it gives a deterministic, stable field-order
// binary encoding without inventing a bespoke wire format: the struct field
// order fixes the byte layout, so the same Go value always encodes to the
// same bytes regardless of process or machine.

import (
	"bytes"

	"github.com/ethereum/go-ethereum/rlp"
)

// EncodeCanonical returns the canonical RLP encoding of v.
func EncodeCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, v); err != nil {
		return nil, WrapErr(KindSerializationError, "rlp encode", err)
	}
	return buf.Bytes(), nil
}

// DecodeCanonical decodes the canonical RLP encoding of b into v.
func DecodeCanonical(b []byte, v interface{}) error {
	if err := rlp.DecodeBytes(b, v); err != nil {
		return WrapErr(KindSerializationError, "rlp decode", err)
	}
	return nil
}
