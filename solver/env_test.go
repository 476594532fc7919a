package solver

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, mc *mockContext, roles ...models.VariableRole) *Env {
	plan := &models.Plan{Variables: roles}
	return NewEnv(mc, plan, logging.NewTesting(t))
}

func TestEnvComputedRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("PaymentChain", func(t *testing.T) {
		mc := newMockContext()
		mc.paymentChain = 137
		env := newTestEnv(t, mc, models.PaymentChainRole{})

		value, err := env.Get(ctx, 0)

		require.NoError(t, err)
		n, ok := value.Uint256()
		require.True(t, ok)
		assert.Equal(t, uint64(137), n.Uint64())
	})

	t.Run("PaymentRecipient", func(t *testing.T) {
		mc := newMockContext()
		env := newTestEnv(t, mc, models.PaymentRecipientRole{ChainID: 1})

		value, err := env.Get(ctx, 0)

		require.NoError(t, err)
		assert.Equal(t, models.StaticAddress(mc.recipients[1]), value)
	})

	t.Run("UnsetTxOutput", func(t *testing.T) {
		env := newTestEnv(t, newMockContext(), models.TxOutputRole{})

		_, err := env.Get(ctx, 0)
		require.ErrorIs(t, err, ErrVariableNotSet)
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		env := newTestEnv(t, newMockContext(), models.TxOutputRole{})

		_, err := env.Get(ctx, 5)
		require.Error(t, err)
	})
}

func TestEnvQuery(t *testing.T) {
	ctx := context.Background()

	query := models.QueryRole{
		Target:   testTarget,
		Selector: [4]byte{0x70, 0xa0, 0x82, 0x31},
		Arguments: []models.Argument{
			models.VariableArgument{Index: 1},
		},
	}

	t.Run("ComputesThroughDependencies", func(t *testing.T) {
		mc := newMockContext()
		mc.public.callContractFn = func(to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
			assert.Equal(t, testTarget.Address, to)
			assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, data[:4])
			assert.Equal(t, staticWord(42), data[4:36])
			assert.Nil(t, blockNumber)
			return staticWord(999), nil
		}

		env := newTestEnv(t, mc, query, models.TxOutputRole{})
		require.NoError(t, env.Set(1, models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(42)}))

		value, err := env.Get(ctx, 0)

		require.NoError(t, err)
		n, ok := value.Uint256()
		require.True(t, ok)
		assert.Equal(t, int64(999), n.Int64())
	})

	t.Run("PinnedBlockNumber", func(t *testing.T) {
		mc := newMockContext()
		mc.public.callContractFn = func(_ common.Address, _ []byte, blockNumber *big.Int) ([]byte, error) {
			require.NotNil(t, blockNumber)
			assert.Equal(t, int64(12345), blockNumber.Int64())
			return staticWord(1), nil
		}

		pinned := query
		pinned.BlockNumber = 12345
		pinned.Arguments = nil

		env := newTestEnv(t, mc, pinned)

		_, err := env.Get(ctx, 0)
		require.NoError(t, err)
	})

	t.Run("SingleComputeForRepeatedGets", func(t *testing.T) {
		mc := newMockContext()
		mc.public.callContractFn = func(common.Address, []byte, *big.Int) ([]byte, error) {
			return staticWord(7), nil
		}

		env := newTestEnv(t, mc, models.QueryRole{Target: testTarget, Selector: [4]byte{1, 2, 3, 4}})

		var computes int
		env.onCompute = func(int) { computes++ }

		first, err := env.Get(ctx, 0)
		require.NoError(t, err)
		second, err := env.Get(ctx, 0)
		require.NoError(t, err)

		assert.True(t, first.Equal(second))
		assert.Equal(t, 1, computes)
		assert.Equal(t, 1, mc.public.callContractCalls)
	})

	t.Run("SetInvalidatesDependents", func(t *testing.T) {
		mc := newMockContext()
		mc.public.callContractFn = func(common.Address, []byte, *big.Int) ([]byte, error) {
			return staticWord(7), nil
		}

		env := newTestEnv(t, mc, query, models.TxOutputRole{})
		require.NoError(t, env.Set(1, models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(1)}))

		var computes int
		env.onCompute = func(int) { computes++ }

		_, err := env.Get(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, computes)

		// A fresh write to the dependency makes the cached query stale.
		require.NoError(t, env.Set(1, models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(2)}))

		_, err = env.Get(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, computes)

		// No further writes: the recomputed value stays cached.
		_, err = env.Get(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, computes)
	})

	t.Run("CycleIsFatal", func(t *testing.T) {
		selfRef := models.QueryRole{
			Target:   testTarget,
			Selector: [4]byte{1, 2, 3, 4},
			Arguments: []models.Argument{
				models.VariableArgument{Index: 0},
			},
		}

		env := newTestEnv(t, newMockContext(), selfRef)

		_, err := env.Get(ctx, 0)
		require.ErrorIs(t, err, ErrDependencyCycle)
	})
}

func TestEnvSet(t *testing.T) {
	t.Run("SettableRoles", func(t *testing.T) {
		env := newTestEnv(t, newMockContext(),
			models.PricingRole{},
			models.TxOutputRole{},
			models.WitnessRole{Kind: "sig"},
		)

		for idx := 0; idx < 3; idx++ {
			require.NoError(t, env.Set(idx, models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(int64(idx))}))

			value, ok := env.Peek(idx)
			require.True(t, ok)
			assert.Equal(t, staticWord(int64(idx)), value.Encoding)
		}
	})

	t.Run("ComputedRolesRejectSet", func(t *testing.T) {
		env := newTestEnv(t, newMockContext(),
			models.PaymentChainRole{},
			models.QueryRole{Target: testTarget, Selector: [4]byte{1, 2, 3, 4}},
		)

		for idx := 0; idx < 2; idx++ {
			err := env.Set(idx, models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: staticWord(1)})
			require.ErrorIs(t, err, ErrNotSettable)
		}
	})
}
