package booking

import (
	"context"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/google/uuid"
)

// Service creates bookings against the local store. It is the in-process
// Collaborator and backs POST /api/bookings.
type Service struct {
	store    Store
	vehicles VehicleLookup
	now      func() time.Time
	newID    func() string
	logger   *log.Logger
}

type ServiceOption func(*Service)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, vehicles VehicleLookup, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		vehicles: vehicles,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Named("bookings"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks required fields in the order the endpoint reports them.
func (req CreateRequest) Validate() error {
	switch {
	case blank(req.ContactName) || blank(req.ContactEmail) || blank(req.ContactPhone):
		return apperr.New(apperr.KindValidation, "Contact name, email, and phone are required.")
	case blank(req.PreferredLocation):
		return apperr.New(apperr.KindValidation, "Preferred location is required.")
	case blank(req.BookingDateTime):
		return apperr.New(apperr.KindValidation, "Booking date and time are required.")
	case req.Vehicle == nil:
		return apperr.New(apperr.KindValidation, "Vehicle details are required.")
	case req.Vehicle.TrimID <= 0:
		return apperr.New(apperr.KindValidation, "A valid trim_id must be provided.")
	}
	if _, err := parseBookingTime(req.BookingDateTime); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "Booking date and time are required.")
	}
	return nil
}

func (s *Service) CreateBooking(ctx context.Context, user *identity.User, req CreateRequest) (Booking, error) {
	if err := req.Validate(); err != nil {
		return Booking{}, err
	}
	if user == nil || user.ID == "" {
		return Booking{}, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}

	car, err := s.vehicles.GetTrim(ctx, req.Vehicle.TrimID)
	if err != nil {
		s.logger.Error("vehicle lookup for trim %d failed: %v", req.Vehicle.TrimID, err)
		return Booking{}, apperr.Wrap(err, apperr.KindInternal, "Unable to locate vehicle in inventory.")
	}
	if car == nil {
		return Booking{}, apperr.New(apperr.KindNotFound, "The selected vehicle could not be found. Please choose another model.")
	}

	when, _ := parseBookingTime(req.BookingDateTime)
	b := Booking{
		ID:                s.newID(),
		UserID:            user.ID,
		CarID:             car.TrimID,
		PreferredLocation: strings.TrimSpace(req.PreferredLocation),
		BookingDate:       when.UTC(),
		Status:            StatusPending,
		ContactName:       strings.TrimSpace(req.ContactName),
		ContactEmail:      strings.TrimSpace(req.ContactEmail),
		ContactPhone:      strings.TrimSpace(req.ContactPhone),
		VehicleMake:       firstNonEmpty(req.Vehicle.Make, car.Make),
		VehicleModel:      firstNonEmpty(req.Vehicle.Model, car.Model),
		VehicleTrim:       firstNonEmpty(req.Vehicle.Trim, car.Trim),
		CreatedAt:         s.now().UTC(),
	}
	switch {
	case req.Vehicle.Year != nil:
		b.VehicleYear = *req.Vehicle.Year
	case car.ModelYear != nil:
		b.VehicleYear = *car.ModelYear
	}

	if err := s.store.InsertBooking(ctx, b); err != nil {
		s.logger.Warn("extended booking insert failed, retrying with base columns: %v", err)
		if err := s.store.InsertBaseBooking(ctx, b); err != nil {
			s.logger.Error("base booking insert failed: %v", err)
			return Booking{}, apperr.Wrap(err, apperr.KindInternal, "Unable to create booking. Please try again later.")
		}
		b = b.base()
	}

	s.logger.Info("booking %s created for trim %d at %s", b.ID, b.CarID, b.PreferredLocation)
	return b, nil
}

// base drops the fields the reduced insert does not store.
func (b Booking) base() Booking {
	return Booking{
		ID:                b.ID,
		UserID:            b.UserID,
		CarID:             b.CarID,
		PreferredLocation: b.PreferredLocation,
		BookingDate:       b.BookingDate,
		Status:            b.Status,
		CreatedAt:         b.CreatedAt,
	}
}

func parseBookingTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04", raw)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func firstNonEmpty(primary *string, fallback *string) string {
	if primary != nil && strings.TrimSpace(*primary) != "" {
		return strings.TrimSpace(*primary)
	}
	if fallback != nil {
		return *fallback
	}
	return ""
}
