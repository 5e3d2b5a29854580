package catalog

import "strings"

type SortField string

const (
	SortMSRP       SortField = "msrp"
	SortMPG        SortField = "mpg"
	SortHorsepower SortField = "horsepower"
	SortModel      SortField = "model"
)

// Column is the store column a sort field orders by.
func (f SortField) Column() string {
	switch f {
	case SortMPG:
		return "combined_mpg"
	case SortHorsepower:
		return "horsepower_hp"
	case SortModel:
		return "model"
	default:
		return "msrp"
	}
}

type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

const (
	DefaultLimit = 24
	MaxLimit     = 24
)

// SearchCriteria is the optional filter set of a trim search. JSON names
// follow the tool argument names.
type SearchCriteria struct {
	Q              *string   `json:"q,omitempty"`
	Model          *string   `json:"model,omitempty"`
	ModelYear      *int      `json:"modelYear,omitempty"`
	Trim           *string   `json:"trim,omitempty"`
	BodyType       *string   `json:"bodyType,omitempty"`
	SeatsMin       *int      `json:"seatsMin,omitempty"`
	DriveType      *string   `json:"driveType,omitempty"`
	Transmission   *string   `json:"transmission,omitempty"`
	EngineType     *string   `json:"engineType,omitempty"`
	FuelType       *string   `json:"fuelType,omitempty"`
	Cylinders      *int      `json:"cylinders,omitempty"`
	HPMin          *int      `json:"hpMin,omitempty"`
	TorqueMin      *int      `json:"torqueMin,omitempty"`
	MPGCombinedMin *float64  `json:"mpgCombinedMin,omitempty"`
	MPGCityMin     *float64  `json:"mpgCityMin,omitempty"`
	MPGHighwayMin  *float64  `json:"mpgHighwayMin,omitempty"`
	BudgetMin      *float64  `json:"budgetMin,omitempty"`
	BudgetMax      *float64  `json:"budgetMax,omitempty"`
	SortBy         SortField `json:"sortBy,omitempty"`
	SortDir        SortDir   `json:"sortDir,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// WithDefaults returns a copy with sort and limit defaults applied and the
// limit clamped into [1, MaxLimit].
func (c SearchCriteria) WithDefaults() SearchCriteria {
	switch c.SortBy {
	case SortMSRP, SortMPG, SortHorsepower, SortModel:
	default:
		c.SortBy = SortMSRP
	}
	if c.SortDir != SortDesc {
		c.SortDir = SortAsc
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	return c
}

func (c SearchCriteria) HasBudget() bool {
	return c.BudgetMin != nil || c.BudgetMax != nil
}

// BudgetInverted reports a budget window that can never match.
func (c SearchCriteria) BudgetInverted() bool {
	return c.BudgetMin != nil && c.BudgetMax != nil && *c.BudgetMin > *c.BudgetMax
}

// InBudget applies the budget window to a record's effective price.
// Records without any price never match a budget filter.
func (c SearchCriteria) InBudget(card CarCard) bool {
	price, ok := card.Price()
	if !ok {
		return false
	}
	if c.BudgetMin != nil && price < *c.BudgetMin {
		return false
	}
	if c.BudgetMax != nil && price > *c.BudgetMax {
		return false
	}
	return true
}

// FetchLimit over-fetches when a budget filter will drop rows after the query.
func (c SearchCriteria) FetchLimit() int {
	if c.HasBudget() {
		return c.Limit * 2
	}
	return c.Limit
}

// Query converts the store-side filters into a TrimQuery.
func (c SearchCriteria) Query() TrimQuery {
	q := TrimQuery{
		Text:           text(c.Q),
		Model:          text(c.Model),
		Trim:           text(c.Trim),
		BodyType:       text(c.BodyType),
		DriveType:      text(c.DriveType),
		Transmission:   text(c.Transmission),
		EngineType:     text(c.EngineType),
		FuelType:       text(c.FuelType),
		ModelYear:      positive(c.ModelYear),
		Cylinders:      positive(c.Cylinders),
		SeatsMin:       positive(c.SeatsMin),
		HPMin:          positive(c.HPMin),
		TorqueMin:      positive(c.TorqueMin),
		MPGCombinedMin: positiveFloat(c.MPGCombinedMin),
		MPGCityMin:     positiveFloat(c.MPGCityMin),
		MPGHighwayMin:  positiveFloat(c.MPGHighwayMin),
		OrderBy:        c.SortBy.Column(),
		Descending:     c.SortDir == SortDesc,
		Limit:          c.FetchLimit(),
	}
	return q
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// zero-valued numeric filters are treated as absent
func positive(v *int) *int {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

func positiveFloat(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}
