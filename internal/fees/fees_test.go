package fees

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	schedule := DefaultSchedule()

	tests := []struct {
		name       string
		item       int64
		shipping   int64
		wantFee    int64
		wantTotal  int64
		wantPayout int64
	}{
		{
			name:       "item plus shipping",
			item:       8000,
			shipping:   1000,
			wantFee:    550, // 5% of 9000 + 100
			wantTotal:  9550,
			wantPayout: 9000,
		},
		{
			name:       "checkout example",
			item:       5000,
			shipping:   500,
			wantFee:    375,
			wantTotal:  5875,
			wantPayout: 5500,
		},
		{
			name:       "free shipping",
			item:       2000,
			shipping:   0,
			wantFee:    200,
			wantTotal:  2200,
			wantPayout: 2000,
		},
		{
			name:       "half cent rounds up",
			item:       1010, // 5% = 50.5
			shipping:   0,
			wantFee:    151,
			wantTotal:  1161,
			wantPayout: 1010,
		},
		{
			name:       "zero amounts",
			item:       0,
			shipping:   0,
			wantFee:    100,
			wantTotal:  100,
			wantPayout: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.item, tt.shipping, schedule)
			require.NoError(t, err)
			require.Equal(t, tt.item+tt.shipping, got.SubtotalCents)
			require.Equal(t, tt.wantFee, got.BuyerFeeCents)
			require.Equal(t, tt.wantTotal, got.TotalChargeCents)
			require.Equal(t, tt.wantPayout, got.SellerPayoutCents)
		})
	}
}

func TestCompute_RejectsNegativeInputs(t *testing.T) {
	schedule := DefaultSchedule()

	_, err := Compute(-1, 0, schedule)
	require.Error(t, err)

	_, err = Compute(100, -1, schedule)
	require.Error(t, err)

	_, err = Compute(100, 0, Schedule{PercentBasisPoints: -1})
	require.Error(t, err)
}

func TestCompute_CustomSchedule(t *testing.T) {
	got, err := Compute(10000, 0, Schedule{PercentBasisPoints: 1000, FixedCents: 0})
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.BuyerFeeCents)
	require.EqualValues(t, 11000, got.TotalChargeCents)
}
