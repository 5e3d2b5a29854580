package booking

import (
	"context"
	"sync"
)

// MemoryStore keeps bookings in a slice for tests. Extended and base
// inserts can be failed independently.
type MemoryStore struct {
	mu          sync.Mutex
	bookings    []Booking
	extendedErr error
	baseErr     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) FailExtended(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extendedErr = err
}

func (m *MemoryStore) FailBase(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseErr = err
}

func (m *MemoryStore) InsertBooking(_ context.Context, b Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.extendedErr != nil {
		return m.extendedErr
	}
	m.bookings = append(m.bookings, b)
	return nil
}

func (m *MemoryStore) InsertBaseBooking(_ context.Context, b Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseErr != nil {
		return m.baseErr
	}
	m.bookings = append(m.bookings, b.base())
	return nil
}

func (m *MemoryStore) List() []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Booking, len(m.bookings))
	copy(out, m.bookings)
	return out
}
