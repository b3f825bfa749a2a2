package core

import "math/big"

// OrderKey represents the pool's insertion-order key: an unsigned 128-bit
// timestamp. Go has no native uint128, so it is split into high/low 64-bit
// words (hi*2^64 + lo) — wide enough for any realistic millisecond,
// nanosecond or literal u128 timestamp header while keeping comparisons
// allocation-free.
type OrderKey struct {
	Hi uint64
	Lo uint64
}

// Less reports whether k sorts strictly before other.
func (k OrderKey) Less(other OrderKey) bool {
	if k.Hi != other.Hi {
		return k.Hi < other.Hi
	}
	return k.Lo < other.Lo
}

// Equal reports whether k and other represent the same timestamp.
func (k OrderKey) Equal(other OrderKey) bool {
	return k.Hi == other.Hi && k.Lo == other.Lo
}

var big64 = new(big.Int).Lsh(big.NewInt(1), 64)

// ParseOrderKey parses a base-10 string (as found in a transaction header's
// "timestamp" field) into an OrderKey. Values up to 2^128-1 are accepted;
// malformed or out-of-range input is reported as a BadTransaction error so
// callers can drop the offending transaction rather than panic.
func ParseOrderKey(s string) (OrderKey, error) {
	if s == "" {
		return OrderKey{}, NewErr(KindBadTransaction, "missing timestamp header")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return OrderKey{}, NewErr(KindBadTransaction, "timestamp header is not a base-10 unsigned integer")
	}
	if n.BitLen() > 128 {
		return OrderKey{}, NewErr(KindBadTransaction, "timestamp header exceeds 128 bits")
	}
	hi := new(big.Int)
	lo := new(big.Int)
	hi.DivMod(n, big64, lo)
	return OrderKey{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}

// String renders the OrderKey back to its base-10 decimal form.
func (k OrderKey) String() string {
	hi := new(big.Int).SetUint64(k.Hi)
	lo := new(big.Int).SetUint64(k.Lo)
	n := new(big.Int).Mul(hi, big64)
	n.Add(n, lo)
	return n.String()
}
