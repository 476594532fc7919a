package codec

import (
	"bytes"
	"math/big"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// Wire form of AbiEncodedValue: the outer encoding of a two-parameter ABI
// tuple (string "", T). A dynamic T yields the canonical 96-byte prefix
// followed by T's tail encoding; a static T yields a length header, the
// inline encoding, and a 32-byte zero pad for the empty string's tail.
var dynamicPrefix = func() []byte {
	prefix := make([]byte, 96)
	prefix[31] = 0x40
	prefix[63] = 0x60
	return prefix
}()

// MaxSafeInteger bounds every integer index or count carried on the wire.
// The ceiling matches IEEE-754 double precision so plans stay portable
// across the protocol's reference tooling.
const MaxSafeInteger = 1<<53 - 1

// DecodeValue unwraps a wire-form AbiEncodedValue blob.
func DecodeValue(blob []byte) (models.AbiEncodedValue, error) {
	if len(blob) >= len(dynamicPrefix) && bytes.Equal(blob[:len(dynamicPrefix)], dynamicPrefix) {
		return models.AbiEncodedValue{
			Kind:     models.ValueDynamic,
			Encoding: blob[len(dynamicPrefix):],
		}, nil
	}

	// Static block: [length(32)] [encoding] [zero-pad(32)]
	if len(blob) < 64 || len(blob)%32 != 0 {
		return models.AbiEncodedValue{}, errors.Wrapf(ErrMalformedValue, "static block of %d bytes", len(blob))
	}

	pad := blob[len(blob)-32:]
	if !bytes.Equal(pad, make([]byte, 32)) {
		return models.AbiEncodedValue{}, errors.Wrap(ErrMalformedValue, "nonzero trailing pad")
	}

	header := new(big.Int).SetBytes(blob[:32])
	want := int64(len(blob) - 64)
	if !header.IsInt64() || header.Int64() != want {
		return models.AbiEncodedValue{}, errors.Wrapf(ErrMalformedValue, "length header %s, expected %d", header, want)
	}

	return models.AbiEncodedValue{
		Kind:     models.ValueStatic,
		Encoding: blob[32 : len(blob)-32],
	}, nil
}

// EncodeValue produces the wire form of a value. It is the inverse of
// DecodeValue for both shapes.
func EncodeValue(v models.AbiEncodedValue) []byte {
	if v.Kind == models.ValueDynamic {
		out := make([]byte, 0, len(dynamicPrefix)+len(v.Encoding))
		out = append(out, dynamicPrefix...)
		return append(out, v.Encoding...)
	}

	out := make([]byte, 32, 64+len(v.Encoding))
	new(big.Int).SetInt64(int64(len(v.Encoding))).FillBytes(out[:32])
	out = append(out, v.Encoding...)
	return append(out, make([]byte, 32)...)
}

// DecodeArgument dispatches a call-argument blob: any 32-byte encoding is a
// variable index, everything else a wrapped value.
func DecodeArgument(blob []byte) (models.Argument, error) {
	if len(blob) == 32 {
		idx, err := toIndex(new(big.Int).SetBytes(blob))
		if err != nil {
			return nil, errors.Wrap(err, "variable argument")
		}
		return models.VariableArgument{Index: idx}, nil
	}

	value, err := DecodeValue(blob)
	if err != nil {
		return nil, err
	}
	return models.ValueArgument{Value: value}, nil
}

// EncodeArgument produces the wire form of an argument. Variable references
// become a bare index word; wrapped values are never 32 bytes, so the
// discrimination is unambiguous.
func EncodeArgument(arg models.Argument) ([]byte, error) {
	switch a := arg.(type) {
	case models.VariableArgument:
		var word [32]byte
		new(big.Int).SetInt64(int64(a.Index)).FillBytes(word[:])
		return word[:], nil
	case models.ValueArgument:
		return EncodeValue(a.Value), nil
	default:
		return nil, errors.Errorf("unknown argument type %T", arg)
	}
}

// toIndex converts a wire uint256 into a host int, enforcing the
// safe-integer ceiling.
func toIndex(n *big.Int) (int, error) {
	if !n.IsUint64() || n.Uint64() > MaxSafeInteger {
		return 0, errors.Wrapf(ErrIndexOverflow, "value %s", n)
	}
	return int(n.Uint64()), nil
}
