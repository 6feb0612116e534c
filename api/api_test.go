package api

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiErrs "github.com/zeroknots/lazyaccount/api/errors"
	"github.com/zeroknots/lazyaccount/metrics"
	errs "github.com/zeroknots/lazyaccount/models/errors"
	storageErrs "github.com/zeroknots/lazyaccount/storage/errors"
)

func TestHandleError(t *testing.T) {
	logger := zerolog.Nop()
	collector := metrics.NewNoopCollector()

	t.Run("caller facing errors pass through", func(t *testing.T) {
		for _, sentinel := range []error{
			errs.ErrInvalid,
			errs.ErrAccountDeployed,
			errs.ErrAccountNotDeployed,
			errs.ErrUnsupportedEntryPoint,
			errs.ErrOracleUnavailable,
		} {
			err := fmt.Errorf("%w: 0x0a11ce", sentinel)
			_, got := handleError[*UserOperationResult](err, logger, collector)
			require.ErrorIs(t, got, sentinel)
			assert.NotErrorIs(t, got, apiErrs.ErrInternal)
		}
	})

	t.Run("address mismatch passes through", func(t *testing.T) {
		mismatch := errs.NewAddressMismatchError(common.HexToAddress("0x01"), common.HexToAddress("0x02"))
		_, got := handleError[*UserOperationResult](fmt.Errorf("plan: %w", mismatch), logger, collector)
		var target *errs.AddressMismatchError
		assert.ErrorAs(t, got, &target)
	})

	t.Run("not found is empty", func(t *testing.T) {
		res, got := handleError[*UserOperationResult](storageErrs.ErrNotFound, logger, collector)
		assert.NoError(t, got)
		assert.Nil(t, res)
	})

	t.Run("anything else is internal", func(t *testing.T) {
		_, got := handleError[*UserOperationResult](fmt.Errorf("pebble exploded"), logger, collector)
		assert.ErrorIs(t, got, apiErrs.ErrInternal)
	})
}
