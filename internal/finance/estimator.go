package finance

import (
	"math"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
)

const (
	DefaultDownPaymentPercent = 10.0
	DefaultTermMonths         = 60

	leaseMonthlyFactor = 0.012
	leaseDownFactor    = 0.05
	leaseTermMonths    = 36

	Disclaimer = "These are estimates only. Actual rates and payments depend on credit approval, " +
		"taxes, fees, and dealer offers. Contact a Toyota dealer for an exact quote."
)

// AllowedTerms are the loan terms the estimator accepts, in months.
var AllowedTerms = []int{36, 48, 60, 72}

// flat total-interest rate by term; terms without an entry use the default
var rateByTerm = map[int]float64{
	36: 0.05,
	60: 0.08,
	72: 0.10,
}

const defaultRate = 0.08

type Request struct {
	VehiclePrice       float64  `json:"vehiclePrice"`
	DownPaymentPercent *float64 `json:"downPaymentPercent,omitempty"`
	LoanTermMonths     *int     `json:"loanTermMonths,omitempty"`
}

type Loan struct {
	DownPayment       int64   `json:"downPayment"`
	LoanAmount        int64   `json:"loanAmount"`
	InterestRate      float64 `json:"interestRate"`
	TermMonths        int     `json:"termMonths"`
	TotalWithInterest int64   `json:"totalWithInterest"`
	MonthlyPayment    int64   `json:"monthlyPayment"`
}

type Lease struct {
	MonthlyPayment int64 `json:"monthlyPayment"`
	DownPayment    int64 `json:"downPayment"`
	TermMonths     int   `json:"termMonths"`
}

type Estimate struct {
	VehiclePrice float64 `json:"vehiclePrice"`
	Loan         Loan    `json:"loan"`
	Lease        Lease   `json:"lease"`
	Disclaimer   string  `json:"disclaimer"`
}

// RateForTerm returns the flat interest rate applied over the whole term.
func RateForTerm(months int) float64 {
	if r, ok := rateByTerm[months]; ok {
		return r
	}
	return defaultRate
}

// Calculate is a pure function of the request.
func Calculate(req Request) (Estimate, error) {
	price := req.VehiclePrice
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return Estimate{}, apperr.New(apperr.KindValidation, "vehiclePrice must be a non-negative number")
	}

	pct := DefaultDownPaymentPercent
	if req.DownPaymentPercent != nil {
		pct = *req.DownPaymentPercent
	}
	if pct < 0 || pct > 100 {
		return Estimate{}, apperr.New(apperr.KindValidation, "downPaymentPercent must be between 0 and 100")
	}

	term := DefaultTermMonths
	if req.LoanTermMonths != nil {
		term = *req.LoanTermMonths
	}
	if !allowedTerm(term) {
		return Estimate{}, apperr.Newf(apperr.KindValidation, "loanTermMonths must be one of %v", AllowedTerms)
	}

	return Estimate{
		VehiclePrice: price,
		Loan:         loan(price, pct, term),
		Lease:        lease(price),
		Disclaimer:   Disclaimer,
	}, nil
}

// LoanOptions lists a default-down-payment loan for each of the given terms.
func LoanOptions(price float64, terms ...int) []Loan {
	if len(terms) == 0 {
		terms = []int{36, 60, 72}
	}
	out := make([]Loan, 0, len(terms))
	for _, term := range terms {
		out = append(out, loan(price, DefaultDownPaymentPercent, term))
	}
	return out
}

func loan(price, pct float64, term int) Loan {
	down := round(price * pct / 100)
	amount := price - float64(down)
	rate := RateForTerm(term)
	total := round(amount * (1 + rate))
	return Loan{
		DownPayment:       down,
		LoanAmount:        round(amount),
		InterestRate:      rate,
		TermMonths:        term,
		TotalWithInterest: total,
		MonthlyPayment:    round(float64(total) / float64(term)),
	}
}

func lease(price float64) Lease {
	return Lease{
		MonthlyPayment: round(price * leaseMonthlyFactor),
		DownPayment:    round(price * leaseDownFactor),
		TermMonths:     leaseTermMonths,
	}
}

func allowedTerm(term int) bool {
	for _, t := range AllowedTerms {
		if t == term {
			return true
		}
	}
	return false
}

// round half up, matching how prices are shown to shoppers
func round(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
