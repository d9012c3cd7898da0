package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

// Handler serves table downloads.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHTTPHandler creates a download handler for service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Register mounts GET /tables/{table}/current and GET /tables/{table}/entities/{id}/history.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /tables/{table}/current", h.handleCurrent)
	mux.HandleFunc("GET /tables/{table}/entities/{id}/history", h.handleHistory)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	table := r.PathValue("table")

	// Buffer so a store failure can still be reported with a proper status.
	var buf bytes.Buffer
	result, err := h.service.ExportCurrent(r.Context(), table, format, &buf)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(table, format, h.now())))
	w.Header().Set("Content-Length", strconv.FormatInt(result.BytesWritten, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if _, err := h.service.ExportHistory(r.Context(), r.PathValue("table"), r.PathValue("id"), format, &buf); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrTableNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
