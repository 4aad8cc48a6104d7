package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/taskflow-approval-console/internal/backend"
	"github.com/xela07ax/taskflow-approval-console/internal/console/flow"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string   `json:"error"`
	Detail string   `json:"detail,omitempty"` // уточнение бэкенда платформы
	Errors []string `json:"errors,omitempty"` // список ошибок валидации
}

// writeFlowError маппит ошибки доменного слоя в HTTP-статусы.
// Локальная валидация — 422, конфликты состояния сессии — 409,
// отказ бэкенда платформы — 502 с его detail.
func writeFlowError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Errors: verr.Result.Errors,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrDocumentAlreadyCreated),
		errors.Is(err, domain.ErrDocumentNotCreated),
		errors.Is(err, flow.ErrSaveInFlight),
		errors.Is(err, flow.ErrNothingPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, flow.ErrLevelNotFound),
		errors.Is(err, flow.ErrFlowNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	var throttle *backend.ThrottleError
	if errors.As(err, &throttle) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "backend throttling, try again later"})
		return
	}

	if backend.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		// Дефолтное сообщение + уточнение сервера
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:  "platform backend rejected the request",
			Detail: apiErr.Detail,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
