package tools

import (
	"context"
	"encoding/json"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/finance"
	"github.com/google/jsonschema-go/jsonschema"
)

const EstimateFinancingName = "estimateFinancing"

// EstimateFinancing wraps the finance estimator.
type EstimateFinancing struct{}

func NewEstimateFinancing() *EstimateFinancing {
	return &EstimateFinancing{}
}

func (t *EstimateFinancing) Name() string { return EstimateFinancingName }

func (t *EstimateFinancing) Description() string {
	return "Estimate loan and lease payments for a vehicle price in dollars. Use the msrp (or invoice when msrp " +
		"is missing) of a car from searchToyotaTrims. Always share the disclaimer with the user."
}

func (t *EstimateFinancing) Schema() *jsonschema.Schema {
	terms := make([]any, 0, len(finance.AllowedTerms))
	for _, term := range finance.AllowedTerms {
		terms = append(terms, float64(term))
	}
	return object([]string{"vehiclePrice"}, map[string]*jsonschema.Schema{
		"vehiclePrice":       number("Vehicle price in dollars", bound(0), nil),
		"downPaymentPercent": withDefault(number("Down payment as a percent of the price", bound(0), bound(100)), finance.DefaultDownPaymentPercent),
		"loanTermMonths": {
			Type:        "integer",
			Description: "Loan term in months",
			Enum:        terms,
			Default:     mustRaw(finance.DefaultTermMonths),
		},
	})
}

func (t *EstimateFinancing) Execute(_ context.Context, args json.RawMessage) (ToolResult, error) {
	var req finance.Request
	if err := json.Unmarshal(args, &req); err != nil {
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": []string{err.Error()}}), nil
	}
	est, err := finance.Calculate(req)
	if err != nil {
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": []string{apperr.PublicMessage(err)}}), nil
	}
	return JSONResult(est)
}
