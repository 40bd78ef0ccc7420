package fx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmbank/moneymarket/internal/platform/httpx"
	"github.com/mmbank/moneymarket/internal/shared"
)

type Handler struct {
	rates   *RateService
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, rates *RateService, service *Service) *Handler {
	return &Handler{logger: logger, rates: rates, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/rates", h.IngestRate)
	r.Get("/rates/{ccy}", h.GetRate)
	r.Get("/positions", h.Positions)
}

func (h *Handler) IngestRate(w http.ResponseWriter, r *http.Request) {
	var req IngestRateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	rate, err := h.rates.Ingest(r.Context(), req)
	if err != nil {
		h.logger.Error("ingest rate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	ccy := strings.ToUpper(chi.URLParam(r, "ccy"))
	asOf := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		asOf = parsed
	}
	rate, err := h.rates.RateInfo(r.Context(), ccy, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

type positionResponse struct {
	CcyPair    string  `json:"ccyPair"`
	FcyBalance float64 `json:"fcyBalance"`
	LcyBalance float64 `json:"lcyBalance"`
	WAERate    float64 `json:"waeRate"`
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.Positions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			CcyPair:    p.CcyPair,
			FcyBalance: p.FcyBalance,
			LcyBalance: p.LcyBalance,
			WAERate:    p.WAERate,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
