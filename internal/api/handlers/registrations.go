package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/bigkaa/feirinha/checkin-module/internal/api/errors"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/service"
)

// registerRequest is the POST /register body. The legacy form sends cpf
// and function instead of identifier and role.
type registerRequest struct {
	Identifier string `json:"identifier" validate:"required,max=64"`
	CPF        string `json:"cpf"`
	Sector     string `json:"sector" validate:"required,max=64"`
	Role       string `json:"role" validate:"required,max=64"`
	Function   string `json:"function"`
}

func (req *registerRequest) applyLegacyKeys() {
	if strings.TrimSpace(req.Identifier) == "" {
		req.Identifier = req.CPF
	}
	if strings.TrimSpace(req.Role) == "" {
		req.Role = req.Function
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	req.Sector = strings.TrimSpace(req.Sector)
	req.Role = strings.TrimSpace(req.Role)
}

type registerResponse struct {
	Success   bool   `json:"success"`
	Payment   int    `json:"payment"`
	Date      string `json:"date"`
	DayOfWeek string `json:"dayOfWeek"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type registrationItem struct {
	Timestamp  string `json:"timestamp"`
	Identifier string `json:"identifier"`
	WorkDate   string `json:"workDate"`
	DayOfWeek  string `json:"dayOfWeek"`
	Name       string `json:"name"`
	Sector     string `json:"sector"`
	Role       string `json:"role"`
	Payment    int    `json:"payment"`
}

// Register handles POST /register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "JSON inválido no corpo da requisição.")
		return
	}
	req.applyLegacyKeys()

	if err := h.validate.Struct(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			h.logger.Debug("Register request rejected",
				slog.String("field", ve[0].Field()),
				slog.String("tag", ve[0].Tag()),
			)
		}
		apierrors.ValidationError(w, msgValidation)
		return
	}

	reg, err := h.registry.Register(r.Context(), service.Request{
		Identifier: req.Identifier,
		Sector:     req.Sector,
		Role:       req.Role,
	}, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Success:   true,
		Payment:   reg.PaymentAmount,
		Date:      reg.WorkDate.Format(model.DateLayout),
		DayOfWeek: reg.DayOfWeek,
		Name:      reg.Name,
		Message:   msgRegistered,
	})
}

// ListRegistrations handles GET /registrations.
func (h *APIHandler) ListRegistrations(w http.ResponseWriter, _ *http.Request) {
	regs := h.registry.Registrations()
	items := make([]registrationItem, 0, len(regs))
	for _, reg := range regs {
		items = append(items, registrationItem{
			Timestamp:  reg.Timestamp.Format(time.RFC3339),
			Identifier: reg.Identifier,
			WorkDate:   reg.WorkDate.Format(model.DateLayout),
			DayOfWeek:  reg.DayOfWeek,
			Name:       reg.Name,
			Sector:     reg.Sector,
			Role:       reg.Role,
			Payment:    reg.PaymentAmount,
		})
	}
	writeJSON(w, http.StatusOK, items)
}
