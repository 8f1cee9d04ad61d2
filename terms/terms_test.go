package terms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/screwyprof/luvsettle/terms"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		cfg         terms.Config
		expectedErr error
	}{
		{name: "defaults", cfg: terms.Default()},
		{name: "zero fee and zero cost", cfg: terms.Config{PromotionThreshold: 1}},
		{name: "full fee", cfg: terms.Config{ProtocolFeePercent: 100, PromotionThreshold: 1}},
		{name: "negative cost", cfg: terms.Config{PersistenceCost: -1, PromotionThreshold: 1}, expectedErr: terms.ErrNegativeCost},
		{name: "negative fee", cfg: terms.Config{ProtocolFeePercent: -1, PromotionThreshold: 1}, expectedErr: terms.ErrFeePercentOutOfRange},
		{name: "fee above hundred", cfg: terms.Config{ProtocolFeePercent: 101, PromotionThreshold: 1}, expectedErr: terms.ErrFeePercentOutOfRange},
		{name: "zero threshold", cfg: terms.Config{}, expectedErr: terms.ErrThresholdNotPositive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Act
			err := tc.cfg.Validate()

			// Assert
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, terms.ErrInvalidTerms)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}
