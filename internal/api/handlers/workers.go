package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
	"github.com/bigkaa/feirinha/checkin-module/internal/service"
)

type workerResponse struct {
	Found      bool   `json:"found"`
	Name       string `json:"name,omitempty"`
	PaymentKey string `json:"paymentKey,omitempty"`
	Message    string `json:"message,omitempty"`
}

type checkRegistrationResponse struct {
	Exists               bool   `json:"exists"`
	Closed               bool   `json:"closed,omitempty"`
	Date                 string `json:"date,omitempty"`
	Name                 string `json:"name,omitempty"`
	LastRegistrationTime string `json:"lastRegistrationTime,omitempty"`
	Message              string `json:"message,omitempty"`
}

// GetWorker handles GET /worker/{identifier}.
func (h *APIHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	collab, err := h.registry.LookupWorker(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, workerResponse{Found: false, Message: msgWorkerNotFound})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, workerResponse{
		Found:      true,
		Name:       collab.FullName,
		PaymentKey: collab.PaymentKey,
	})
}

// CheckRegistration handles GET /check-registration/{identifier}. A closed
// window is reported with 200 so the form can show the message.
func (h *APIHandler) CheckRegistration(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.HasRegisteredToday(r.Context(), chi.URLParam(r, "identifier"), h.now())
	if err != nil {
		if errors.Is(err, service.ErrRegistrationClosed) {
			writeJSON(w, http.StatusOK, checkRegistrationResponse{Closed: true, Message: msgClosed})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	resp := checkRegistrationResponse{
		Exists: st.Registered,
		Date:   st.WorkDate.Format(model.DateLayout),
	}
	if st.Record != nil {
		resp.Name = st.Record.Name
		resp.LastRegistrationTime = st.Record.Timestamp.Format("15:04:05")
		resp.Message = msgAlreadyToday
	}
	writeJSON(w, http.StatusOK, resp)
}
