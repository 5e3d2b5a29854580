package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/MimeLyc/carshop-agent/internal/tools"
	"github.com/MimeLyc/carshop-agent/internal/webhook"
	"github.com/gorilla/mux"
)

// retellFunctions maps webhook function names to registered tools.
var retellFunctions = map[string]string{
	"search_toyota_trims":         tools.SearchTrimsName,
	"display_car_recommendations": tools.DisplayRecommendationsName,
	"estimate_financing":          tools.EstimateFinancingName,
	"send_email_html":             tools.SendEmailHTMLName,
}

// handleRetell runs one voice-agent function call. The raw body must carry
// a valid signature before it is decoded.
func (s *Server) handleRetell(w http.ResponseWriter, r *http.Request) {
	function := mux.Vars(r)["function"]
	name, ok := retellFunctions[function]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown function: "+function)
		return
	}
	if s.voice == nil {
		writeError(w, http.StatusNotImplemented, "voice tools are not configured")
		return
	}
	if !s.check(w, s.requireRetell) {
		return
	}
	if name == tools.SendEmailHTMLName && !s.check(w, s.requireEmail) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := webhook.Verify(body, s.retellKey, r.Header.Get(webhook.SignatureHeader)); err != nil {
		s.logger.Warn("retell %s rejected: %v", function, err)
		writeAppError(w, err)
		return
	}
	call, err := webhook.Decode(body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.logger.Debug("retell %s call (%s body)", function, call.Shape)

	result := s.voice.Execute(r.Context(), name, call.Args)
	status := http.StatusOK
	if result.IsError {
		status = retellErrorStatus(name, result.Content)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, result.Content)
}

// retellErrorStatus keeps domain failures of the catalog tools at 200 so
// the voice agent can read them; rejected input and failed sends are
// reported as HTTP errors.
func retellErrorStatus(name, content string) int {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal([]byte(content), &payload)
	switch {
	case payload.Error == tools.InvalidParameters:
		return http.StatusBadRequest
	case name == tools.SendEmailHTMLName:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
