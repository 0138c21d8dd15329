package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
	"github.com/haulways/be-driver-payroll/internal/service"
)

// HTTPHandler handles HTTP requests for the payroll calculator frontend.
type HTTPHandler struct {
	service *service.PayrollService
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(service *service.PayrollService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// SetupRoutes mounts the payroll API behind the auth middleware.
func SetupRoutes(r chi.Router, h *HTTPHandler, auth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1/payroll", func(r chi.Router) {
		r.Use(auth)

		r.Get("/snapshot", h.GetSnapshot)
		r.Put("/snapshot", h.SaveSnapshot)
		r.Post("/calculate", h.Calculate)

		r.Post("/archive", h.Archive)
		r.Post("/archive/finish-reset", h.FinishReset)
		r.Get("/archive", h.ListArchive)
		r.Get("/archive/{id}", h.GetArchiveEntry)

		r.Get("/export/csv", h.ExportCSV)
		r.Get("/export/json", h.ExportJSON)
		r.Get("/export/xlsx", h.ExportXLSX)
		r.Post("/import", h.ImportBackup)

		r.Get("/audit", h.AuditLog)
	})
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// GetSnapshot returns the target account's current snapshot, creating the
// default one on first access.
func (h *HTTPHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	snap, err := h.service.GetSnapshot(r.Context(), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// saveSnapshotRequest is the PUT /snapshot body.
type saveSnapshotRequest struct {
	DriverRecords map[string]repository.DriverRecord `json:"driver_records"`
}

// SaveSnapshot overwrites the target account's snapshot with the submitted
// driver records.
func (h *HTTPHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	var req saveSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	snap, agg, err := h.service.SaveSnapshot(r.Context(), actorOf(session), session.TargetAccountID, req.DriverRecords)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap,
		"excluded": agg.Excluded,
	})
}

// calculateRequest is the POST /calculate body. When driver_records is
// absent the stored snapshot is recomputed instead, so unsaved edits can be
// priced without persisting them.
type calculateRequest struct {
	DriverRecords map[string]repository.DriverRecord `json:"driver_records"`
}

// Calculate recomputes the pay breakdown list and totals.
func (h *HTTPHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	var req calculateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
	}

	agg, err := h.service.Calculate(r.Context(), session.TargetAccountID, req.DriverRecords)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// Archive finalizes the current period into the history store and resets the
// snapshot.
func (h *HTTPHandler) Archive(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	var req service.ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.Archive(r.Context(), actorOf(session), session.TargetAccountID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// FinishReset retries the snapshot reset after a partial archive failure.
func (h *HTTPHandler) FinishReset(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	snap, err := h.service.FinishReset(r.Context(), actorOf(session), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListArchive returns the archive entry ids, newest first.
func (h *HTTPHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	ids, err := h.service.ListArchiveIDs(r.Context(), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archive_ids": ids})
}

// GetArchiveEntry returns one archived period.
func (h *HTTPHandler) GetArchiveEntry(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	entryID := chi.URLParam(r, "id")
	if entryID == "" {
		writeError(w, errors.InvalidInput("id", "is required"))
		return
	}

	entry, err := h.service.GetArchiveEntry(r.Context(), session.TargetAccountID, entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ExportCSV streams the current pay summary as a CSV download.
func (h *HTTPHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	data, err := h.service.ExportCSV(r.Context(), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="driver_pay_summary.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportJSON streams the current state as a JSON backup document.
func (h *HTTPHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	data, err := h.service.ExportJSON(r.Context(), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="driver_pay_backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportXLSX streams the current pay summary as a spreadsheet.
func (h *HTTPHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	data, err := h.service.ExportXLSX(r.Context(), session.TargetAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="driver_pay_summary.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportBackup restores a JSON backup into the target account's snapshot.
func (h *HTTPHandler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	data, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read request body"))
		return
	}

	snap, err := h.service.ImportBackup(r.Context(), actorOf(session), session.TargetAccountID, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AuditLog returns the newest audit entries for the target account. Admin
// only: the log reveals who acted on the account, including other admins.
func (h *HTTPHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	if !session.IsAdmin {
		writeError(w, errors.New(errors.ErrCodeForbidden, "audit log is admin only"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, errors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.service.AuditLog(r.Context(), session.TargetAccountID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func actorOf(s Session) service.Actor {
	return service.Actor{Email: s.Email, ActedAs: s.ActedAs()}
}

// mustSession is only called behind AuthMiddleware; an absent session is a
// wiring bug, answered with an empty session that fails downstream.
func mustSession(r *http.Request) Session {
	s, _ := SessionFromContext(r.Context())
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    string(errors.CodeOf(err)),
		Message: errors.MessageOf(err),
	})
}
