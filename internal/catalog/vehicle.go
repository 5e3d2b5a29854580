package catalog

import (
	"fmt"
	"strings"
)

// CarCard is one trim row of the vehicle catalog. Every field except
// TrimID may be absent in the source data.
type CarCard struct {
	TrimID       int64    `json:"trim_id"`
	ModelYear    *int     `json:"model_year"`
	Make         *string  `json:"make"`
	Model        *string  `json:"model"`
	Submodel     *string  `json:"submodel,omitempty"`
	Trim         *string  `json:"trim"`
	Description  *string  `json:"description"`
	MSRP         *float64 `json:"msrp"`
	Invoice      *float64 `json:"invoice"`
	BodyType     *string  `json:"body_type"`
	BodySeats    *int     `json:"body_seats"`
	DriveType    *string  `json:"drive_type"`
	Transmission *string  `json:"transmission"`
	EngineType   *string  `json:"engine_type,omitempty"`
	FuelType     *string  `json:"fuel_type"`
	Cylinders    *int     `json:"cylinders"`
	HorsepowerHP *int     `json:"horsepower_hp"`
	TorqueFtLbs  *int     `json:"torque_ft_lbs"`
	CityMPG      *float64 `json:"city_mpg"`
	HighwayMPG   *float64 `json:"highway_mpg"`
	CombinedMPG  *float64 `json:"combined_mpg"`
	ImageURL     *string  `json:"image_url"`
}

// Price is msrp, falling back to invoice.
func (c CarCard) Price() (float64, bool) {
	if c.MSRP != nil {
		return *c.MSRP, true
	}
	if c.Invoice != nil {
		return *c.Invoice, true
	}
	return 0, false
}

// Name joins make, model and trim, falling back to the description.
func (c CarCard) Name() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{c.Make, c.Model, c.Trim} {
		if v := deref(p); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		if d := deref(c.Description); d != "" {
			return d
		}
		return "Toyota Model"
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Title prefixes Name with the model year when known.
func (c CarCard) Title() string {
	if c.ModelYear != nil {
		return fmt.Sprintf("%d %s", *c.ModelYear, c.Name())
	}
	return c.Name()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func ptr[T any](v T) *T {
	return &v
}
