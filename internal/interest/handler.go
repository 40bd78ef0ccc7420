package interest

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
	r.Get("/accounts/{accountNo}/accrued", h.AccruedBalance)
	r.Post("/accounts/{accountNo}/capitalize", h.Capitalize)
}

type accruedResponse struct {
	AccountNo string  `json:"accountNo"`
	Date      string  `json:"date"`
	Accrued   float64 `json:"accrued"`
}

func (h *Handler) AccruedBalance(w http.ResponseWriter, r *http.Request) {
	accountNo := chi.URLParam(r, "accountNo")
	date, err := h.service.dates.SystemDate(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, perr := time.Parse("2006-01-02", raw)
		if perr != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		date = parsed
	}
	accrued, err := h.service.AccruedBalance(r.Context(), accountNo, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accruedResponse{
		AccountNo: accountNo,
		Date:      date.Format("2006-01-02"),
		Accrued:   accrued,
	})
}

type capitalizeRequest struct {
	UserID string `json:"userId"`
}

type capitalizeResponse struct {
	AccountNo  string  `json:"accountNo"`
	TranID     string  `json:"tranId"`
	Amount     float64 `json:"amount"`
	OldBalance float64 `json:"oldBalance"`
	NewBalance float64 `json:"newBalance"`
}

func (h *Handler) Capitalize(w http.ResponseWriter, r *http.Request) {
	var req capitalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	result, err := h.service.Capitalize(r.Context(), chi.URLParam(r, "accountNo"), req.UserID)
	if err != nil {
		h.logger.Error("capitalize interest", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, capitalizeResponse{
		AccountNo:  result.AccountNo,
		TranID:     result.TranID,
		Amount:     result.Amount,
		OldBalance: result.OldBalance,
		NewBalance: result.NewBalance,
	})
}
