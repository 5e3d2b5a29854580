package catalog

import "context"

// TrimQuery is the predicate set a Store evaluates. Text filters are
// case-insensitive substring matches, *Min fields are >= bounds and the
// remaining numeric fields are equality matches. Ordering puts nulls last.
type TrimQuery struct {
	// Text matches make, model, trim, submodel or description.
	Text         string
	Model        string
	Trim         string
	BodyType     string
	DriveType    string
	Transmission string
	EngineType   string
	FuelType     string

	ModelYear *int
	Cylinders *int
	Seats     *int

	SeatsMin       *int
	HPMin          *int
	TorqueMin      *int
	MPGCombinedMin *float64
	MPGCityMin     *float64
	MPGHighwayMin  *float64
	MSRPMin        *float64
	MSRPMax        *float64

	// HasImage keeps rows with a non-empty image_url only.
	HasImage bool

	OrderBy    string
	Descending bool
	// Limit <= 0 means unbounded.
	Limit int
}

// Store is the read side of the vehicle catalog. Rows come back exactly as
// stored; callers repair them.
type Store interface {
	QueryTrims(ctx context.Context, q TrimQuery) ([]CarCard, error)
	// GetTrim returns nil, nil when the trim does not exist.
	GetTrim(ctx context.Context, trimID int64) (*CarCard, error)
}

// RepairStore can write repaired drive_type and transmission values back.
type RepairStore interface {
	Store
	UpdateTrimDrivetrain(ctx context.Context, trimID int64, driveType, transmission *string) error
}
