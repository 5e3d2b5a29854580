package finance

import (
	"testing"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCalculate_ReferenceNumbers(t *testing.T) {
	t.Parallel()

	est, err := Calculate(Request{
		VehiclePrice:       30000,
		DownPaymentPercent: ptr(10.0),
		LoanTermMonths:     ptr(60),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), est.Loan.DownPayment)
	assert.Equal(t, int64(27000), est.Loan.LoanAmount)
	assert.InDelta(t, 0.08, est.Loan.InterestRate, 1e-9)
	assert.Equal(t, int64(29160), est.Loan.TotalWithInterest)
	assert.Equal(t, int64(486), est.Loan.MonthlyPayment)
	assert.Equal(t, int64(360), est.Lease.MonthlyPayment)
	assert.Equal(t, int64(1500), est.Lease.DownPayment)
	assert.Equal(t, 36, est.Lease.TermMonths)
	assert.Equal(t, Disclaimer, est.Disclaimer)
}

func TestCalculate_Defaults(t *testing.T) {
	t.Parallel()

	est, err := Calculate(Request{VehiclePrice: 30000})
	require.NoError(t, err)
	assert.Equal(t, 60, est.Loan.TermMonths)
	assert.Equal(t, int64(3000), est.Loan.DownPayment)
}

func TestCalculate_RateTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		term    int
		rate    float64
		monthly int64
	}{
		{36, 0.05, 788},  // 27000*1.05=28350 /36=787.5
		{48, 0.08, 608},  // 29160/48=607.5
		{60, 0.08, 486},
		{72, 0.10, 413},  // 29700/72=412.5
	}
	for _, tc := range cases {
		est, err := Calculate(Request{VehiclePrice: 30000, LoanTermMonths: ptr(tc.term)})
		require.NoError(t, err)
		assert.InDelta(t, tc.rate, est.Loan.InterestRate, 1e-9, "term %d", tc.term)
		assert.Equal(t, tc.monthly, est.Loan.MonthlyPayment, "term %d", tc.term)
	}
}

func TestCalculate_EdgeInputs(t *testing.T) {
	t.Parallel()

	est, err := Calculate(Request{VehiclePrice: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), est.Loan.MonthlyPayment)

	est, err = Calculate(Request{VehiclePrice: 20000, DownPaymentPercent: ptr(100.0)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), est.Loan.LoanAmount)
	assert.Equal(t, int64(0), est.Loan.MonthlyPayment)
}

func TestCalculate_FractionalPrice(t *testing.T) {
	t.Parallel()

	// interest accrues on the unrounded amount: 9000.49 * 1.10 = 9900.539
	est, err := Calculate(Request{VehiclePrice: 10000.49, LoanTermMonths: ptr(72)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), est.Loan.DownPayment)
	assert.Equal(t, int64(9000), est.Loan.LoanAmount)
	assert.Equal(t, int64(9901), est.Loan.TotalWithInterest)
	assert.Equal(t, int64(138), est.Loan.MonthlyPayment)
}

func TestCalculate_RejectsInvalid(t *testing.T) {
	t.Parallel()

	bad := []Request{
		{VehiclePrice: -1},
		{VehiclePrice: 1000, DownPaymentPercent: ptr(101.0)},
		{VehiclePrice: 1000, DownPaymentPercent: ptr(-5.0)},
		{VehiclePrice: 1000, LoanTermMonths: ptr(24)},
	}
	for _, req := range bad {
		_, err := Calculate(req)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	}
}

func TestLoanOptions(t *testing.T) {
	t.Parallel()

	opts := LoanOptions(30000)
	require.Len(t, opts, 3)
	assert.Equal(t, []int{36, 60, 72}, []int{opts[0].TermMonths, opts[1].TermMonths, opts[2].TermMonths})
}
