package httpapi

import (
	"net/http"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/identity"
)

// handleCreateBooking implements the booking collaborator contract. Errors
// carry their text in "message", which the booking client surfaces as is.
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	if s.bookings == nil {
		writeError(w, http.StatusNotImplemented, "bookings are not configured")
		return
	}
	var req booking.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBookingError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeBookingError(w, err)
		return
	}
	user, err := s.requireUser(r)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	b, err := s.bookings.CreateBooking(r.Context(), user, req)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	if s.bookingList == nil {
		writeError(w, http.StatusNotImplemented, "bookings are not configured")
		return
	}
	user, err := s.requireUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	items, err := s.bookingList.ListBookings(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list bookings for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Unable to load bookings.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusNotImplemented, "preferences are not configured")
		return
	}
	user, err := s.requireUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	prefs, err := s.prefs.Preferences(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("load preferences for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Unable to load preferences.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

// handlePutPreferences saves the quiz answers. Budgets are in cents.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusNotImplemented, "preferences are not configured")
		return
	}
	user, err := s.requireUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var prefs identity.Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		writeAppError(w, err)
		return
	}
	if err := validatePreferences(prefs); err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.prefs.PutPreferences(r.Context(), user.ID, prefs); err != nil {
		s.logger.Error("save preferences for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Unable to save preferences.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func validatePreferences(p identity.Preferences) error {
	if (p.BudgetMin != nil && *p.BudgetMin < 0) || (p.BudgetMax != nil && *p.BudgetMax < 0) {
		return apperr.New(apperr.KindValidation, "budgets must not be negative")
	}
	if p.Seats != nil && (*p.Seats < 1 || *p.Seats > 15) {
		return apperr.New(apperr.KindValidation, "seats must be between 1 and 15")
	}
	return nil
}

func writeBookingError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.PublicMessage(err)
	if kind == apperr.KindUnknown {
		msg = "Unable to create booking. Please try again later."
	}
	writeJSON(w, kind.HTTPStatus(), map[string]any{"message": msg})
}
