package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/finance"
	"github.com/gorilla/mux"
)

type carDetail struct {
	catalog.CarCard
	LoanOptions []finance.Loan `json:"loan_options"`
}

func (s *Server) handleListCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := catalog.BrowseParams{
		Q:         q.Get("q"),
		Type:      q.Get("type"),
		Seats:     q.Get("seats"),
		Sort:      q.Get("sort"),
		BudgetMin: queryFloat(q.Get("budget_min")),
		BudgetMax: queryFloat(q.Get("budget_max")),
		Page:      queryInt(q.Get("page")),
		PageSize:  queryInt(q.Get("page_size")),
	}

	page, err := s.cars.Browse(r.Context(), params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, page)
}

// handleRandomCar never fails: a store error yields a null image.
func (s *Server) handleRandomCar(w http.ResponseWriter, r *http.Request) {
	image, err := s.cars.RandomImage(r.Context())
	if err != nil {
		s.logger.Warn("random image lookup failed: %v", err)
		image = nil
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"image": image})
}

func (s *Server) handleGetCar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid car id")
		return
	}
	card, err := s.cars.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	detail := carDetail{CarCard: card, LoanOptions: []finance.Loan{}}
	if price, ok := card.Price(); ok && price > 0 {
		detail.LoanOptions = finance.LoanOptions(price)
	}
	writeJSON(w, http.StatusOK, detail)
}

func queryFloat(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}
