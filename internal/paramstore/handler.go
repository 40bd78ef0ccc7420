package paramstore

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmbank/moneymarket/internal/platform/httpx"
	"github.com/mmbank/moneymarket/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/system-date", h.GetSystemDate)
	r.Put("/system-date", h.SetSystemDate)
}

type systemDateResponse struct {
	SystemDate string `json:"systemDate"`
}

type setSystemDateRequest struct {
	SystemDate string `json:"systemDate"`
	UserID     string `json:"userId"`
}

func (h *Handler) GetSystemDate(w http.ResponseWriter, r *http.Request) {
	date, err := h.service.SystemDate(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, systemDateResponse{SystemDate: date.Format(DateLayout)})
}

func (h *Handler) SetSystemDate(w http.ResponseWriter, r *http.Request) {
	var req setSystemDateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	date, err := time.Parse(DateLayout, req.SystemDate)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.service.SetSystemDate(r.Context(), date, req.UserID); err != nil {
		h.logger.Error("set system date", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, systemDateResponse{SystemDate: req.SystemDate})
}
