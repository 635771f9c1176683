package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoAmount(t *testing.T) {
	t.Run("applies one percent margin", func(t *testing.T) {
		amount, err := CryptoAmount(decimal.NewFromInt(20), decimal.NewFromInt(2000))

		require.NoError(t, err)
		assert.Equal(t, "0.0101", amount.String())
	})

	t.Run("amount scales with price", func(t *testing.T) {
		amount, err := CryptoAmount(decimal.NewFromInt(15), decimal.RequireFromString("150"))

		require.NoError(t, err)
		assert.Equal(t, "0.101", amount.String())
	})

	t.Run("zero rate refused", func(t *testing.T) {
		_, err := CryptoAmount(decimal.NewFromInt(20), decimal.Zero)
		assert.Error(t, err)
	})

	t.Run("negative rate refused", func(t *testing.T) {
		_, err := CryptoAmount(decimal.NewFromInt(20), decimal.NewFromInt(-3))
		assert.Error(t, err)
	})

	t.Run("zero price refused", func(t *testing.T) {
		_, err := CryptoAmount(decimal.Zero, decimal.NewFromInt(2000))
		assert.Error(t, err)
	})
}
