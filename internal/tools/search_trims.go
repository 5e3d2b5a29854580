package tools

import (
	"context"
	"encoding/json"

	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/google/jsonschema-go/jsonschema"
)

const (
	SearchTrimsName = "searchToyotaTrims"

	searchFailed = "Failed to search Toyota trims"
)

// Searcher runs a trim search.
type Searcher interface {
	Search(ctx context.Context, criteria catalog.SearchCriteria) (catalog.SearchResult, error)
}

// SearchTrims exposes the vehicle search executor to the model.
type SearchTrims struct {
	searcher Searcher
}

func NewSearchTrims(searcher Searcher) *SearchTrims {
	return &SearchTrims{searcher: searcher}
}

func (t *SearchTrims) Name() string { return SearchTrimsName }

func (t *SearchTrims) Description() string {
	return "Search and filter Toyota trim specifications from the database. Use this to find cars matching " +
		"user preferences or search criteria. Prices and budgets are in US dollars. Returns up to 24 results."
}

func (t *SearchTrims) Schema() *jsonschema.Schema {
	return object(nil, map[string]*jsonschema.Schema{
		"q":            str("Search query to match against make, model, trim, submodel, or description"),
		"model":        str("Specific model name (e.g., Camry, RAV4, Highlander)"),
		"modelYear":    integer("Model year to filter by", bound(2000), bound(2030)),
		"trim":         str("Specific trim level"),
		"bodyType":     str("Body type filter (e.g., SUV, Sedan, Truck, Coupe)"),
		"seatsMin":     integer("Minimum number of seats", bound(2), bound(9)),
		"driveType":    str("Drive type (e.g., FWD, AWD, RWD, 4WD)"),
		"transmission": str("Transmission type"),
		"engineType": str("Engine type (e.g., Electric, Hybrid, Gas). IMPORTANT: Use this parameter when " +
			"searching for electric, hybrid, or gas vehicles - do NOT use fuelType."),
		"fuelType":       str("Fuel type (e.g., Gasoline, Premium, Diesel)"),
		"cylinders":      integer("Number of cylinders", bound(3), bound(12)),
		"hpMin":          integer("Minimum horsepower", bound(0), nil),
		"torqueMin":      integer("Minimum torque (ft-lbs)", bound(0), nil),
		"mpgCombinedMin": number("Minimum combined MPG", bound(0), nil),
		"mpgCityMin":     number("Minimum city MPG", bound(0), nil),
		"mpgHighwayMin":  number("Minimum highway MPG", bound(0), nil),
		"budgetMin":      number("Minimum price in dollars (prefer msrp, fallback to invoice if msrp unavailable)", bound(0), nil),
		"budgetMax":      number("Maximum price in dollars (prefer msrp, fallback to invoice if msrp unavailable)", bound(0), nil),
		"sortBy":         enum("Field to sort by", "msrp", "msrp", "mpg", "horsepower", "model"),
		"sortDir":        enum("Sort direction", "asc", "asc", "desc"),
		"limit":          withDefault(integer("Maximum number of results to return (max 24)", bound(1), bound(catalog.MaxLimit)), catalog.DefaultLimit),
	})
}

func (t *SearchTrims) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var criteria catalog.SearchCriteria
	if err := json.Unmarshal(args, &criteria); err != nil {
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": []string{err.Error()}}), nil
	}

	res, err := t.searcher.Search(ctx, criteria)
	if err != nil {
		return ErrorResult(map[string]any{"error": searchFailed, "items": []catalog.CarCard{}}), nil
	}
	return JSONResult(res)
}
