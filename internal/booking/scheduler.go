package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"golang.org/x/sync/singleflight"
)

const (
	// PlaceholderPhone stands in when neither the request nor the profile has a number.
	PlaceholderPhone = "Not provided"

	SignInLink   = "/login"
	BookingsLink = "/bookings"

	errSignInRequired  = "sign in required"
	errVehicleNotFound = "vehicle not found"
	errEmailRequired   = "An email address is required to book a test drive. Please add one to your profile or include it in the request."
)

// ScheduleInput is the scheduleTestDrive tool input.
type ScheduleInput struct {
	TrimID        int64  `json:"trimId"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime,omitempty"`
	Location      string `json:"location,omitempty"`
	ContactName   string `json:"contactName,omitempty"`
	ContactEmail  string `json:"contactEmail,omitempty"`
	ContactPhone  string `json:"contactPhone,omitempty"`
}

type ScheduleDetails struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	Location        string `json:"location"`
	Vehicle         string `json:"vehicle"`
	BookingDateTime string `json:"bookingDateTime"`
}

// ScheduleResult is returned to the model for every outcome.
type ScheduleResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	BookingID string           `json:"bookingId,omitempty"`
	Link      string           `json:"link,omitempty"`
	Details   *ScheduleDetails `json:"details,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Confirmation is what the confirmation email and calendar invite are built from.
type Confirmation struct {
	BookingID    string    `json:"bookingId"`
	ContactName  string    `json:"contactName"`
	ContactEmail string    `json:"contactEmail"`
	ContactPhone string    `json:"contactPhone"`
	Location     Location  `json:"location"`
	Start        time.Time `json:"start"`
	VehicleYear  int       `json:"vehicleYear,omitempty"`
	VehicleMake  string    `json:"vehicleMake"`
	VehicleModel string    `json:"vehicleModel"`
	VehicleTrim  string    `json:"vehicleTrim"`
}

// VehicleTitle renders e.g. "2024 Toyota Camry LE".
func (c Confirmation) VehicleTitle() string {
	parts := make([]string, 0, 4)
	if c.VehicleYear > 0 {
		parts = append(parts, fmt.Sprint(c.VehicleYear))
	}
	for _, p := range []string{c.VehicleMake, c.VehicleModel, c.VehicleTrim} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Confirmer delivers the confirmation side effect.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) error
}

type Scheduler struct {
	vehicles  VehicleLookup
	profiles  identity.ProfileStore
	bookings  Collaborator
	confirmer Confirmer
	locations Directory
	now       func() time.Time
	inflight  singleflight.Group
	logger    *log.Logger
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithLocations(d Directory) SchedulerOption {
	return func(s *Scheduler) {
		if len(d) > 0 {
			s.locations = d
		}
	}
}

func WithConfirmer(c Confirmer) SchedulerOption {
	return func(s *Scheduler) { s.confirmer = c }
}

func WithProfiles(p identity.ProfileStore) SchedulerOption {
	return func(s *Scheduler) { s.profiles = p }
}

func NewScheduler(vehicles VehicleLookup, bookings Collaborator, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		vehicles:  vehicles,
		bookings:  bookings,
		locations: DefaultDirectory(),
		now:       time.Now,
		logger:    log.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule books a test drive for the user carried in ctx. Every failure is
// reported in the result.
func (s *Scheduler) Schedule(ctx context.Context, in ScheduleInput) ScheduleResult {
	user, ok := identity.FromContext(ctx)
	if !ok || user.ID == "" {
		return ScheduleResult{Success: false, Error: errSignInRequired, Link: SignInLink}
	}
	if in.TrimID <= 0 {
		return failure("trimId must be a positive number")
	}

	now := s.now()
	when := ResolveWhen(in.PreferredDate, in.PreferredTime, now)
	loc := s.locations.Resolve(in.Location)

	car, err := s.vehicles.GetTrim(ctx, in.TrimID)
	if err != nil {
		s.logger.Error("vehicle lookup for trim %d failed: %v", in.TrimID, err)
		return failure("Unable to look up the selected vehicle right now. Please try again.")
	}
	if car == nil {
		return failure(errVehicleNotFound)
	}

	contact, err := s.resolveContact(ctx, user, in)
	if err != nil {
		return failure(apperr.PublicMessage(err))
	}

	req := CreateRequest{
		ContactName:       contact.FullName,
		ContactEmail:      contact.Email,
		ContactPhone:      contact.Phone,
		PreferredLocation: loc.Key,
		BookingDateTime:   when.Format(time.RFC3339),
		Vehicle: &VehicleRef{
			TrimID: car.TrimID,
			Make:   car.Make,
			Model:  car.Model,
			Year:   car.ModelYear,
			Trim:   car.Trim,
		},
	}

	key := fmt.Sprintf("%s|%d|%s|%s", user.ID, car.TrimID, req.BookingDateTime, loc.Key)
	v, err, shared := s.inflight.Do(key, func() (any, error) {
		b, err := s.bookings.CreateBooking(ctx, user, req)
		if err != nil {
			return nil, err
		}
		s.confirm(ctx, b, req, loc, when, car)
		return b, nil
	})
	if err != nil {
		s.logger.Warn("booking for trim %d failed: %v", car.TrimID, err)
		return failure(apperr.PublicMessage(err))
	}
	if shared {
		s.logger.Info("duplicate booking request for trim %d collapsed", car.TrimID)
	}
	b := v.(Booking)

	details := &ScheduleDetails{
		Date:            when.Format("Monday, January 2, 2006"),
		Time:            when.Format("3:04 PM"),
		Location:        loc.Display(),
		Vehicle:         car.Title(),
		BookingDateTime: req.BookingDateTime,
	}
	return ScheduleResult{
		Success:   true,
		BookingID: b.ID,
		Link:      BookingsLink,
		Details:   details,
		Message: fmt.Sprintf("Your test drive of the %s is booked for %s at %s at %s. A confirmation email with a calendar invite is on its way.",
			details.Vehicle, details.Date, details.Time, loc.Name),
	}
}

func (s *Scheduler) resolveContact(ctx context.Context, user *identity.User, in ScheduleInput) (identity.Profile, error) {
	var stored identity.Profile
	if s.profiles != nil {
		p, err := s.profiles.Profile(ctx, user.ID)
		if err != nil {
			s.logger.Warn("profile lookup for user %s failed: %v", user.ID, err)
		} else if p != nil {
			stored = *p
		}
	}

	contact := identity.Profile{
		UserID:   user.ID,
		FullName: pick(in.ContactName, stored.FullName, user.FullName),
		Email:    pick(in.ContactEmail, stored.Email, user.Email),
		Phone:    pick(in.ContactPhone, stored.Phone, user.Phone, PlaceholderPhone),
	}
	if contact.Email == "" {
		return contact, apperr.New(apperr.KindValidation, errEmailRequired)
	}
	if contact.FullName == "" {
		contact.FullName = strings.SplitN(contact.Email, "@", 2)[0]
	}
	return contact, nil
}

func (s *Scheduler) confirm(ctx context.Context, b Booking, req CreateRequest, loc Location, when time.Time, car *catalog.CarCard) {
	if s.confirmer == nil {
		return
	}
	c := Confirmation{
		BookingID:    b.ID,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Location:     loc,
		Start:        when,
		VehicleMake:  deref(car.Make),
		VehicleModel: deref(car.Model),
		VehicleTrim:  deref(car.Trim),
	}
	if car.ModelYear != nil {
		c.VehicleYear = *car.ModelYear
	}
	if err := s.confirmer.Confirm(ctx, c); err != nil {
		s.logger.Error("confirmation for booking %s not queued: %v", b.ID, err)
	}
}

func failure(msg string) ScheduleResult {
	return ScheduleResult{Success: false, Error: msg}
}

func pick(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
