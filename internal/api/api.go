// Package api is the HTTP surface consumed by the external dashboard and
// reporting UI. It only reads: live snapshots from the state store and
// history through the report service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/plantops/pumpwatch/internal/datadog"
	"github.com/plantops/pumpwatch/internal/model"
	"github.com/plantops/pumpwatch/internal/report"
	"github.com/plantops/pumpwatch/internal/state"
)

type Server struct {
	state   *state.Store
	reports *report.Service
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(st *state.Store, reports *report.Service) *Server {
	return &Server{
		state:   st,
		reports: reports,
	}
}

// Handler builds the route table. Split out from Start so tests can drive
// it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/home", s.handleHome)
	mux.HandleFunc("/api/devices/", s.handleDevices)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/report/csv", s.handleReportCSV)

	// CORS middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.state.Home())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Device kind required")
		return
	}

	kind, ok := parseKind(parts[0])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown device kind: "+parts[0])
		return
	}

	if len(parts) == 1 {
		ids := s.state.DeviceIDs(kind)
		devices := make([]state.DeviceState, 0, len(ids))
		for _, id := range ids {
			if d, ok := s.state.Device(id); ok {
				devices = append(devices, d)
			}
		}
		s.writeJSON(w, http.StatusOK, devices)
		return
	}

	d, ok := s.state.Device(parts[1])
	if !ok || d.Kind != kind {
		s.writeError(w, http.StatusNotFound, "Device not found: "+parts[1])
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, ok := s.runReport(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, ok := s.runReport(w, r)
	if !ok {
		return
	}

	filename := report.CSVFilename(res.Device, res.Start, res.End)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteCSV(w, res.Samples); err != nil {
		log.Error().Err(err).Msg("Failed to stream CSV export")
	}
	datadog.Count("api.csv_exports", 1)
}

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) (*report.Result, bool) {
	q := r.URL.Query()
	device := q.Get("device")
	if device == "" {
		device = "all"
	}

	res, err := s.reports.Run(device, q.Get("start"), q.Get("end"))
	if err != nil {
		if errors.Is(err, report.ErrBadRange) {
			s.writeError(w, http.StatusBadRequest, "Invalid date range")
			return nil, false
		}
		log.Error().Err(err).Str("device", device).Msg("Report query failed")
		s.writeError(w, http.StatusInternalServerError, "Report query failed")
		return nil, false
	}
	return res, true
}

func parseKind(s string) (model.DeviceKind, bool) {
	switch s {
	case "pumps":
		return model.KindPump, true
	case "chillers":
		return model.KindChiller, true
	default:
		return "", false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
