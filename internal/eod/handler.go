package eod

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmbank/moneymarket/internal/platform/httpx"
	"github.com/mmbank/moneymarket/internal/shared"
)

type Handler struct {
	orch   *Orchestrator
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, orch *Orchestrator) *Handler {
	return &Handler{logger: logger, orch: orch}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/validate", h.Validate)
	r.Post("/run", h.Run)
	r.Post("/bod", h.RunBOD)
	r.Get("/jobs", h.JobStatuses)
	r.Post("/jobs/{jobNo}", h.ExecuteJob)
}

type runRequest struct {
	UserID string `json:"userId"`
}

type runResponse struct {
	Date     string      `json:"date"`
	NextDate string      `json:"nextDate,omitempty"`
	Jobs     []JobResult `json:"jobs"`
}

// Validate runs the day-end pre-flight checks without starting the sequence.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.orch.Validate(r.Context(), req.UserID); err != nil {
		h.logger.Error("day-end validate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	result, err := h.orch.Run(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("day-end run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := runResponse{Date: result.Date.Format("2006-01-02"), Jobs: result.Jobs}
	if !result.NextDate.IsZero() {
		resp.NextDate = result.NextDate.Format("2006-01-02")
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) RunBOD(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.RunBOD(r.Context())
	if err != nil {
		h.logger.Error("day-begin run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) JobStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.orch.JobStatuses(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statuses)
}

func (h *Handler) ExecuteJob(w http.ResponseWriter, r *http.Request) {
	jobNo, err := strconv.Atoi(chi.URLParam(r, "jobNo"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	result, err := h.orch.ExecuteJob(r.Context(), req.UserID, jobNo)
	if err != nil {
		h.logger.Error("day-end job", slog.Int("job", jobNo), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
