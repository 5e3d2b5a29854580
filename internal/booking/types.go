package booking

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/identity"
)

const StatusPending = "pending"

// Location is a dealership that hosts test drives.
type Location struct {
	Key     string `json:"key" yaml:"key"`
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

func (l Location) Display() string {
	if l.Address == "" {
		return l.Name
	}
	return l.Name + ", " + l.Address
}

// Directory maps location keys to dealerships.
type Directory map[string]Location

const DefaultLocationKey = "downtown"

func DefaultDirectory() Directory {
	return NewDirectory(
		Location{Key: "downtown", Name: "Downtown Toyota", Address: "123 Main St, Dallas, TX"},
		Location{Key: "north", Name: "North Dallas Toyota", Address: "456 North Rd, Dallas, TX"},
		Location{Key: "south", Name: "South Toyota Center", Address: "789 South Ave, Dallas, TX"},
	)
}

func NewDirectory(locs ...Location) Directory {
	d := make(Directory, len(locs))
	for _, l := range locs {
		d[strings.ToLower(strings.TrimSpace(l.Key))] = l
	}
	return d
}

// Lookup resolves key case-insensitively. Unknown keys fall back to a
// location named after the key itself.
func (d Directory) Lookup(key string) Location {
	k := strings.ToLower(strings.TrimSpace(key))
	if l, ok := d[k]; ok {
		return l
	}
	return Location{Key: key, Name: key}
}

// Resolve picks the location for a scheduling hint; blank or unknown hints
// get the default dealership.
func (d Directory) Resolve(hint string) Location {
	k := strings.ToLower(strings.TrimSpace(hint))
	if l, ok := d[k]; ok {
		return l
	}
	if l, ok := d[DefaultLocationKey]; ok {
		return l
	}
	return Location{Key: DefaultLocationKey, Name: "Downtown Toyota"}
}

func (d Directory) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VehicleRef is the denormalized vehicle carried on a booking request.
type VehicleRef struct {
	TrimID int64   `json:"trimId"`
	Make   *string `json:"make,omitempty"`
	Model  *string `json:"model,omitempty"`
	Year   *int    `json:"year,omitempty"`
	Trim   *string `json:"trim,omitempty"`
}

// CreateRequest is the body of POST /api/bookings.
type CreateRequest struct {
	ContactName       string      `json:"contactName"`
	ContactEmail      string      `json:"contactEmail"`
	ContactPhone      string      `json:"contactPhone"`
	PreferredLocation string      `json:"preferredLocation"`
	BookingDateTime   string      `json:"bookingDateTime"`
	Vehicle           *VehicleRef `json:"vehicle"`
}

type Booking struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	CarID             int64     `json:"car_id"`
	PreferredLocation string    `json:"preferred_location"`
	BookingDate       time.Time `json:"booking_date"`
	Status            string    `json:"status"`
	ContactName       string    `json:"contact_name,omitempty"`
	ContactEmail      string    `json:"contact_email,omitempty"`
	ContactPhone      string    `json:"contact_phone,omitempty"`
	VehicleMake       string    `json:"vehicle_make,omitempty"`
	VehicleModel      string    `json:"vehicle_model,omitempty"`
	VehicleYear       int       `json:"vehicle_year,omitempty"`
	VehicleTrim       string    `json:"vehicle_trim,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store persists bookings. InsertBooking writes every column;
// InsertBaseBooking writes only user, car, location, date and status for
// databases that predate the contact and vehicle columns.
type Store interface {
	InsertBooking(ctx context.Context, b Booking) error
	InsertBaseBooking(ctx context.Context, b Booking) error
}

// VehicleLookup finds a trim. catalog.Store satisfies it.
type VehicleLookup interface {
	GetTrim(ctx context.Context, trimID int64) (*catalog.CarCard, error)
}

// Collaborator creates bookings on behalf of an authenticated user.
type Collaborator interface {
	CreateBooking(ctx context.Context, user *identity.User, req CreateRequest) (Booking, error)
}
