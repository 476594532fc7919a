package codec

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/speedrun-hq/solver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticWord(n int64) []byte {
	var word [32]byte
	big.NewInt(n).FillBytes(word[:])
	return word[:]
}

func TestDecodeValue(t *testing.T) {
	t.Run("DynamicPrefix", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0xCD}, 64)
		blob := append(append([]byte{}, dynamicPrefix...), payload...)

		value, err := DecodeValue(blob)

		require.NoError(t, err)
		assert.Equal(t, models.ValueDynamic, value.Kind)
		assert.Equal(t, payload, value.Encoding)
	})

	t.Run("StaticBlock", func(t *testing.T) {
		encoding := staticWord(7)
		blob := append(append(staticWord(32), encoding...), make([]byte, 32)...)

		value, err := DecodeValue(blob)

		require.NoError(t, err)
		assert.Equal(t, models.ValueStatic, value.Kind)
		assert.Equal(t, encoding, value.Encoding)
	})

	t.Run("NonzeroPad", func(t *testing.T) {
		blob := append(append(staticWord(32), staticWord(7)...), staticWord(1)...)

		_, err := DecodeValue(blob)
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("LengthHeaderMismatch", func(t *testing.T) {
		blob := append(append(staticWord(64), staticWord(7)...), make([]byte, 32)...)

		_, err := DecodeValue(blob)
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := DecodeValue(staticWord(0))
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		tests := []struct {
			name  string
			value models.AbiEncodedValue
		}{
			{
				name:  "StaticWord",
				value: models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(123456)},
			},
			{
				name:  "StaticWide",
				value: models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: bytes.Repeat([]byte{0x11}, 96)},
			},
			{
				name:  "Dynamic",
				value: models.AbiEncodedValue{Kind: models.ValueDynamic, Encoding: bytes.Repeat([]byte{0x22}, 160)},
			},
			{
				name:  "DynamicEmpty",
				value: models.AbiEncodedValue{Kind: models.ValueDynamic, Encoding: []byte{}},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				decoded, err := DecodeValue(EncodeValue(tt.value))

				require.NoError(t, err)
				assert.Equal(t, tt.value.Kind, decoded.Kind)
				assert.Equal(t, []byte(tt.value.Encoding), []byte(decoded.Encoding))
			})
		}
	})
}

func TestDecodeArgument(t *testing.T) {
	t.Run("VariableIndex", func(t *testing.T) {
		arg, err := DecodeArgument(staticWord(5))

		require.NoError(t, err)
		assert.Equal(t, models.VariableArgument{Index: 5}, arg)
	})

	t.Run("VariableIndexOverflow", func(t *testing.T) {
		var word [32]byte
		new(big.Int).Lsh(big.NewInt(1), 53).FillBytes(word[:])

		_, err := DecodeArgument(word[:])
		require.ErrorIs(t, err, ErrIndexOverflow)
	})

	t.Run("WrappedDynamicValue", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0xEE}, 64)
		blob := append(append([]byte{}, dynamicPrefix...), payload...)

		arg, err := DecodeArgument(blob)

		require.NoError(t, err)
		value, ok := arg.(models.ValueArgument)
		require.True(t, ok)
		assert.Equal(t, models.ValueDynamic, value.Value.Kind)
		assert.Equal(t, payload, value.Value.Encoding)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		args := []models.Argument{
			models.VariableArgument{Index: 9},
			models.ValueArgument{Value: models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(42)}},
			models.ValueArgument{Value: models.AbiEncodedValue{Kind: models.ValueDynamic, Encoding: bytes.Repeat([]byte{0x0F}, 96)}},
		}

		for _, arg := range args {
			blob, err := EncodeArgument(arg)
			require.NoError(t, err)

			decoded, err := DecodeArgument(blob)
			require.NoError(t, err)
			assert.Equal(t, arg, decoded)
		}
	})
}
