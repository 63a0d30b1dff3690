package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/server/auth"
	"github.com/fieldlabs/hydrosync/internal/server/guard"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/conflicts"
	"github.com/fieldlabs/hydrosync/internal/server/syncsvc"
)

// syncRequest is the wire shape of one sync round.
type syncRequest struct {
	LastWatermark int64                `json:"last_watermark"`
	Records       []syncsvc.PushRecord `json:"records"`
}

type voidRequest struct {
	ReplacementID string `json:"replacement_id"`
}

type errorResponse struct {
	Error string `json:"error"`
	// Current carries the authoritative record on 409 responses so the
	// caller can re-read without another round trip.
	Current *models.VersionedRecord `json:"current,omitempty"`
}

func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sync/{deviceID}", s.withScope(s.handleSync))
	mux.HandleFunc("POST /api/records", s.withScope(s.handleApply))
	mux.HandleFunc("POST /api/results/{id}/void", s.withScope(s.handleVoid))
	mux.HandleFunc("GET /api/conflicts", s.withScope(s.handleListConflicts))
	mux.HandleFunc("GET /api/conflicts/{id}", s.withScope(s.handleGetConflict))
	mux.HandleFunc("GET /api/audit/{entityType}/{entityID}", s.withScope(s.handleAuditHistory))
	mux.HandleFunc("GET /api/ledger/{deviceID}", s.withScope(s.handleLedger))

	return mux
}

type scopedHandler func(w http.ResponseWriter, r *http.Request, scope auth.Scope)

// withScope authenticates the bearer token and hands the lab scope to the
// handler. Requests without a valid scope never reach the coordinator.
func (s *HTTPServer) withScope(next scopedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, http.StatusUnauthorized, common.ErrUnauthorized, nil)
			return
		}

		scope, err := auth.ScopeFromToken(token, s.jwtSecret)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, err, nil)
			return
		}

		next(w, r, scope)
	}
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	res, err := s.coord.Sync(r.Context(), scope, syncsvc.Request{
		DeviceID:      r.PathValue("deviceID"),
		Origin:        clientAddr(r),
		LastWatermark: req.LastWatermark,
		Records:       req.Records,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleApply(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	var pr syncsvc.PushRecord
	if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	rec, err := s.coord.Apply(r.Context(), scope, clientAddr(r), pr)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleVoid(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	rec, err := s.coord.VoidResult(r.Context(), scope, clientAddr(r), r.PathValue("id"), req.ReplacementID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleListConflicts(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	filter := conflicts.ListFilter{DeviceID: r.URL.Query().Get("device_id")}

	if v := r.URL.Query().Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err, nil)
			return
		}
		filter.From = &ts
	}
	if v := r.URL.Query().Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err, nil)
			return
		}
		filter.To = &ts
	}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err, nil)
			return
		}
		filter.Resolved = &b
	}

	backups, err := s.coord.ListConflicts(r.Context(), scope, filter)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backups)
}

func (s *HTTPServer) handleGetConflict(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	b, err := s.coord.GetConflict(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAuditHistory(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	entries, err := s.coord.AuditHistory(r.Context(), scope,
		models.EntityType(r.PathValue("entityType")), r.PathValue("entityID"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleLedger(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	entry, err := s.coord.LedgerStatus(r.Context(), scope, r.PathValue("deviceID"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// writeMappedError translates the error taxonomy into HTTP status codes.
func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *guard.ConflictError

	switch {
	case errors.As(err, &ce):
		s.writeError(w, r, http.StatusConflict, err, ce.Current)
	case errors.Is(err, common.ErrVersionConflict), errors.Is(err, common.ErrImmutableRecord):
		s.writeError(w, r, http.StatusConflict, err, nil)
	case errors.Is(err, common.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err, nil)
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrUnknownEntityType):
		s.writeError(w, r, http.StatusBadRequest, err, nil)
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		s.writeError(w, r, http.StatusUnauthorized, err, nil)
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		s.writeError(w, r, http.StatusInternalServerError, common.ErrInternal, nil)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, status int, err error, current *models.VersionedRecord) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Current: current})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), "failed to encode response", "error", err.Error())
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
