package models

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ValueKind distinguishes the two ABI encoding shapes a value can carry.
type ValueKind uint8

const (
	// ValueStatic is a head-inlined encoding (multiple of 32 bytes).
	ValueStatic ValueKind = iota

	// ValueDynamic is a tail-encoded blob referenced through an offset word.
	ValueDynamic
)

func (k ValueKind) String() string {
	if k == ValueDynamic {
		return "dynamic"
	}
	return "static"
}

// AbiEncodedValue wraps a raw ABI encoding together with its shape.
// Values flow through the plan opaquely; only formula evaluation and
// calldata assembly care about the distinction.
type AbiEncodedValue struct {
	Kind     ValueKind
	Encoding []byte
}

// Equal reports byte equality of kind and encoding.
func (v AbiEncodedValue) Equal(other AbiEncodedValue) bool {
	return v.Kind == other.Kind && bytes.Equal(v.Encoding, other.Encoding)
}

// Uint256 decodes the value as a uint256. It fails for dynamic values and
// for static encodings that are not a single word.
func (v AbiEncodedValue) Uint256() (*big.Int, bool) {
	if v.Kind != ValueStatic || len(v.Encoding) != 32 {
		return nil, false
	}
	return new(big.Int).SetBytes(v.Encoding), true
}

// StaticUint256 wraps an unsigned integer as a single-word static value.
func StaticUint256(n *big.Int) AbiEncodedValue {
	var word [32]byte
	n.FillBytes(word[:])

	return AbiEncodedValue{Kind: ValueStatic, Encoding: word[:]}
}

// StaticAddress wraps an address as a left-padded single-word static value.
func StaticAddress(addr common.Address) AbiEncodedValue {
	var word [32]byte
	copy(word[12:], addr.Bytes())

	return AbiEncodedValue{Kind: ValueStatic, Encoding: word[:]}
}
