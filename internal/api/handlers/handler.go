// handler.go holds the main API handler of the check-in module. It decodes
// requests, delegates to the attendance registry and maps service errors
// to HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/bigkaa/feirinha/checkin-module/internal/api/errors"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/service"
)

// Registry is the part of service.Registry the handlers use.
type Registry interface {
	LookupWorker(ctx context.Context, identifier string) (model.Collaborator, error)
	HasRegisteredToday(ctx context.Context, identifier string, now time.Time) (service.Status, error)
	Register(ctx context.Context, req service.Request, now time.Time) (model.Registration, error)
	Registrations() []model.Registration
	Sectors() []string
	Roles(sector string) ([]string, bool)
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// APIHandler serves the check-in endpoints.
type APIHandler struct {
	health   *HealthHandler
	registry Registry
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	health *HealthHandler,
	registry Registry,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// WithClock replaces the time source. Used in tests.
func (h *APIHandler) WithClock(now func() time.Time) *APIHandler {
	h.now = now
	return h
}

// --- Health endpoints (delegated to HealthHandler) ---

// HealthLive is the liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady is the readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics serves Prometheus metrics.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps a registry error to its HTTP response. Unknown
// errors become 500 and are logged.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, msgValidation)
	case errors.Is(err, service.ErrRegistrationClosed):
		apierrors.RegistrationClosed(w, msgClosed)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, msgWorkerNotFound)
	case errors.Is(err, service.ErrDuplicate):
		apierrors.Conflict(w, msgDuplicate)
	case errors.Is(err, service.ErrStore):
		h.logger.Error("Row store failure",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, msgStore)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Request aborted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, msgStore)
	default:
		h.logger.Error("Unexpected error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, msgInternal)
	}
}

// User-facing messages are shown verbatim by the check-in form.
const (
	msgValidation     = "CPF, setor e função são obrigatórios e a função deve pertencer ao setor."
	msgClosed         = "Sistema de registro fechado no momento (fora do horário 10h-04h)."
	msgWorkerNotFound = "CPF não encontrado no cadastro de colaboradores."
	msgDuplicate      = "Este CPF já foi registrado para o dia atual. Um registro por dia é permitido."
	msgStore          = "Erro na comunicação com a planilha. Tente novamente."
	msgInternal       = "Erro interno do servidor."
	msgRegistered     = "Presença registrada com sucesso!"
	msgSectorNotFound = "Setor não encontrado."
	msgNotRegistered  = "CPF encontrado, você pode prosseguir com o registro."
	msgAlreadyToday   = "CPF já registrado hoje! Você não pode registrar novamente no mesmo dia."
)
