// legacy.go keeps the first form's endpoints alive: POST
// /check-registration with a {cpf} body and POST /register-presence.
// They share the registry with the current routes and differ only in the
// response shape.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/feirinha/checkin-module/internal/api/errors"
	"github.com/bigkaa/feirinha/checkin-module/internal/service"
)

type legacyCheckRequest struct {
	CPF string `json:"cpf" validate:"required,max=64"`
}

type legacyCheckResponse struct {
	Exists               bool   `json:"exists"`
	RegisteredToday      bool   `json:"registeredToday"`
	Message              string `json:"message"`
	Nome                 string `json:"nome,omitempty"`
	PixKey               string `json:"pixKey,omitempty"`
	LastRegistrationTime string `json:"lastRegistrationTime,omitempty"`
}

type legacyRegisterResponse struct {
	Message string `json:"message"`
	Nome    string `json:"nome"`
}

// LegacyCheckRegistration handles POST /check-registration. Here exists
// means the worker is known; registeredToday carries the check-in state.
func (h *APIHandler) LegacyCheckRegistration(w http.ResponseWriter, r *http.Request) {
	var req legacyCheckRequest
	if err := decodeJSON(w, r, &req); err != nil || h.validate.Struct(&req) != nil {
		apierrors.ValidationError(w, "CPF é obrigatório.")
		return
	}

	collab, err := h.registry.LookupWorker(r.Context(), req.CPF)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, legacyCheckResponse{Message: msgWorkerNotFound})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	resp := legacyCheckResponse{
		Exists:  true,
		Message: msgNotRegistered,
		Nome:    collab.FullName,
		PixKey:  collab.PaymentKey,
	}

	st, err := h.registry.HasRegisteredToday(r.Context(), collab.Identifier, h.now())
	switch {
	case errors.Is(err, service.ErrRegistrationClosed):
		resp.Message = msgClosed
	case err != nil:
		h.writeServiceError(w, r, err)
		return
	case st.Registered:
		resp.RegisteredToday = true
		resp.Message = msgAlreadyToday
		resp.LastRegistrationTime = st.Record.Timestamp.Format("15:04:05")
	}
	writeJSON(w, http.StatusOK, resp)
}

// LegacyRegisterPresence handles POST /register-presence.
func (h *APIHandler) LegacyRegisterPresence(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "JSON inválido no corpo da requisição.")
		return
	}
	req.applyLegacyKeys()
	if err := h.validate.Struct(&req); err != nil {
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
	writeJSON(w, http.StatusCreated, legacyRegisterResponse{Message: msgRegistered, Nome: reg.Name})
}
