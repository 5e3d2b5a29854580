package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a Store over an in-process slice. It is a test double for
// this and other packages' tests; the commands use the persistence stores.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []CarCard
	err  error
}

func NewMemoryStore(rows ...CarCard) *MemoryStore {
	return &MemoryStore{rows: append([]CarCard(nil), rows...)}
}

// FailWith makes every following query return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) QueryTrims(_ context.Context, q TrimQuery) ([]CarCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	out := make([]CarCard, 0)
	for _, row := range m.rows {
		if q.matches(row) {
			out = append(out, row)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return lessNullsLast(out[i], out[j], q.OrderBy, q.Descending)
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetTrim(_ context.Context, trimID int64) (*CarCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, row := range m.rows {
		if row.TrimID == trimID {
			found := row
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateTrimDrivetrain(_ context.Context, trimID int64, driveType, transmission *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.rows {
		if m.rows[i].TrimID == trimID {
			m.rows[i].DriveType = driveType
			m.rows[i].Transmission = transmission
		}
	}
	return nil
}

func (q TrimQuery) matches(c CarCard) bool {
	if q.Text != "" {
		hit := false
		for _, f := range []*string{c.Make, c.Model, c.Trim, c.Submodel, c.Description} {
			if ilike(f, q.Text) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	textFilters := []struct {
		want  string
		field *string
	}{
		{q.Model, c.Model},
		{q.Trim, c.Trim},
		{q.BodyType, c.BodyType},
		{q.DriveType, c.DriveType},
		{q.Transmission, c.Transmission},
		{q.EngineType, c.EngineType},
		{q.FuelType, c.FuelType},
	}
	for _, tf := range textFilters {
		if tf.want != "" && !ilike(tf.field, tf.want) {
			return false
		}
	}
	if !intEq(c.ModelYear, q.ModelYear) || !intEq(c.Cylinders, q.Cylinders) || !intEq(c.BodySeats, q.Seats) {
		return false
	}
	if !intGte(c.BodySeats, q.SeatsMin) || !intGte(c.HorsepowerHP, q.HPMin) || !intGte(c.TorqueFtLbs, q.TorqueMin) {
		return false
	}
	if !floatGte(c.CombinedMPG, q.MPGCombinedMin) || !floatGte(c.CityMPG, q.MPGCityMin) || !floatGte(c.HighwayMPG, q.MPGHighwayMin) {
		return false
	}
	if !floatGte(c.MSRP, q.MSRPMin) {
		return false
	}
	if q.MSRPMax != nil && (c.MSRP == nil || *c.MSRP > *q.MSRPMax) {
		return false
	}
	if q.HasImage && deref(c.ImageURL) == "" {
		return false
	}
	return true
}

func ilike(field *string, needle string) bool {
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(needle))
}

func intEq(field, want *int) bool {
	if want == nil {
		return true
	}
	return field != nil && *field == *want
}

func intGte(field, min *int) bool {
	if min == nil {
		return true
	}
	return field != nil && *field >= *min
}

func floatGte(field, min *float64) bool {
	if min == nil {
		return true
	}
	return field != nil && *field >= *min
}

func sortKey(c CarCard, column string) (float64, string, bool) {
	switch column {
	case "msrp":
		if c.MSRP != nil {
			return *c.MSRP, "", true
		}
	case "combined_mpg":
		if c.CombinedMPG != nil {
			return *c.CombinedMPG, "", true
		}
	case "horsepower_hp":
		if c.HorsepowerHP != nil {
			return float64(*c.HorsepowerHP), "", true
		}
	case "model":
		if c.Model != nil {
			return 0, strings.ToLower(*c.Model), true
		}
	}
	return 0, "", false
}

func lessNullsLast(a, b CarCard, column string, desc bool) bool {
	an, as, aok := sortKey(a, column)
	bn, bs, bok := sortKey(b, column)
	if !aok || !bok {
		return aok && !bok
	}
	if as != bs {
		if desc {
			return as > bs
		}
		return as < bs
	}
	if desc {
		return an > bn
	}
	return an < bn
}
