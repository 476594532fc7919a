package codec

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// BuildCallData assembles calldata from a selector and resolved argument
// values using the standard head/tail layout: static encodings inline in
// the head, dynamic encodings in the tail behind an offset word.
func BuildCallData(selector []byte, values []models.AbiEncodedValue) ([]byte, error) {
	if len(selector) != 4 {
		return nil, errors.Wrapf(ErrBadSelector, "got %d bytes", len(selector))
	}

	headsSize := 0
	for _, v := range values {
		if v.Kind == models.ValueDynamic {
			headsSize += 32
		} else {
			headsSize += len(v.Encoding)
		}
	}

	var (
		heads = make([]byte, 0, headsSize)
		tails []byte
	)

	for _, v := range values {
		if v.Kind == models.ValueDynamic {
			var offset [32]byte
			big.NewInt(int64(headsSize + len(tails))).FillBytes(offset[:])
			heads = append(heads, offset[:]...)
			tails = append(tails, v.Encoding...)
			continue
		}
		heads = append(heads, v.Encoding...)
	}

	out := make([]byte, 0, 4+len(heads)+len(tails))
	out = append(out, selector...)
	out = append(out, heads...)
	return append(out, tails...), nil
}
