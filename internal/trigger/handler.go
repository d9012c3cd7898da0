package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/logging"
	"github.com/rpattn/rosterscd/internal/middleware"
	"github.com/rpattn/rosterscd/internal/source"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxEventBytes = 1 << 20

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, trigger domain.Trigger) (domain.RunSummary, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, trigger domain.Trigger) (domain.RunSummary, error)

func (f RunnerFunc) Run(ctx context.Context, trigger domain.Trigger) (domain.RunSummary, error) {
	return f(ctx, trigger)
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// RunTimeout bounds a single run. Zero means no limit beyond the request context.
	RunTimeout time.Duration
	Logger     *logrus.Entry
}

// Handler serves the storage event endpoint.
type Handler struct {
	runner  Runner
	timeout time.Duration
	logger  *logrus.Entry
}

// NewHandler creates a Handler.
func NewHandler(runner Runner, opts HandlerOptions) *Handler {
	return &Handler{
		runner:  runner,
		timeout: opts.RunTimeout,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Register mounts POST /events and GET /healthz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /events", h)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	trigger, err := DecodeEvent(body)
	if err != nil {
		logger.WithError(err).Warn("rejected event")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	summary, err := h.runner.Run(ctx, trigger)
	if err != nil {
		status := StatusFor(err)
		logger.WithError(err).WithFields(logrus.Fields{
			"bucket": trigger.Bucket,
			"object": trigger.Name,
			"status": status,
		}).Warn("run failed")
		if summary.RunID == uuid.Nil {
			writeJSON(w, status, errorResponse{Error: err.Error(), Kind: domain.KindOf(err)})
			return
		}
		writeJSON(w, status, summary)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// StatusFor maps a run error to the HTTP status returned to the event sender.
// 4xx codes tell push delivery not to retry, 5xx codes ask for a retry.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTrigger):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, source.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindIngestion, domain.KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	case domain.KindStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
