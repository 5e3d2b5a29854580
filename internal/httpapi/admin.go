package httpapi

import (
	"net/http"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/config"
)

func (s *Server) handleAuditStatus(w http.ResponseWriter, _ *http.Request) {
	if s.auditor == nil {
		writeError(w, http.StatusNotImplemented, "catalog audit is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.auditor.Status())
}

// handleAuditRun sweeps the catalog now instead of waiting for the schedule.
func (s *Server) handleAuditRun(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeError(w, http.StatusNotImplemented, "catalog audit is disabled")
		return
	}
	report, err := s.auditor.Run(r.Context())
	if err != nil {
		s.logger.Error("manual audit failed: %v", err)
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetRuntimeSettings())
}

// handlePutSettings persists new runtime settings. They apply on restart.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	var req config.RuntimeSettings
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeAppError(w, apperr.Wrap(err, apperr.KindValidation, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":         saved,
		"restart_required": true,
	})
}
