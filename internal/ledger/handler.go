package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmbank/moneymarket/internal/platform/httpx"
	"github.com/mmbank/moneymarket/internal/shared"
)

type Handler struct {
	service     *Service
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewHandler constructs the Handler. The idempotency store may be nil, in
// which case repeated submissions are accepted.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{tranID}", h.Get)
	r.Post("/{tranID}/post", h.Post)
	r.Post("/{tranID}/verify", h.Verify)
	r.Post("/{tranID}/reverse", h.Reverse)
	r.Get("/accounts/{accountNo}/balance", h.Balance)
}

type lineRequest struct {
	AccountNo string  `json:"accountNo"`
	DrCr      string  `json:"drCr"`
	TranCcy   string  `json:"tranCcy,omitempty"`
	FcyAmt    float64 `json:"fcyAmt,omitempty"`
	LcyAmt    float64 `json:"lcyAmt"`
	Narration string  `json:"narration,omitempty"`
}

type createRequest struct {
	ValueDate string        `json:"valueDate,omitempty"`
	Narration string        `json:"narration,omitempty"`
	UserID    string        `json:"userId"`
	Lines     []lineRequest `json:"lines"`
}

type lineResponse struct {
	LineID    string  `json:"lineId"`
	AccountNo string  `json:"accountNo"`
	GLNum     string  `json:"glNum"`
	DrCr      string  `json:"drCr"`
	TranCcy   string  `json:"tranCcy"`
	FcyAmt    float64 `json:"fcyAmt"`
	LcyAmt    float64 `json:"lcyAmt"`
	Narration string  `json:"narration"`
	Status    string  `json:"status"`
}

type transactionResponse struct {
	TranID    string         `json:"tranId"`
	TranDate  string         `json:"tranDate"`
	ValueDate string         `json:"valueDate"`
	Status    string         `json:"status"`
	Lines     []lineResponse `json:"lines"`
}

func toResponse(txn Transaction) transactionResponse {
	resp := transactionResponse{
		TranID:    txn.TranID,
		TranDate:  txn.TranDate.Format("2006-01-02"),
		ValueDate: txn.ValueDate.Format("2006-01-02"),
		Status:    string(txn.Status),
	}
	for _, l := range txn.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			LineID:    l.LineID,
			AccountNo: l.AccountNo,
			GLNum:     l.GLNum,
			DrCr:      l.DrCr,
			TranCcy:   l.TranCcy,
			FcyAmt:    l.FcyAmt,
			LcyAmt:    l.LcyAmt,
			Narration: l.Narration,
			Status:    string(l.Status),
		})
	}
	return resp
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "ledger"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	in := CreateInput{Narration: req.Narration, UserID: req.UserID}
	if req.ValueDate != "" {
		date, err := time.Parse("2006-01-02", req.ValueDate)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		in.ValueDate = date
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountNo: l.AccountNo,
			DrCr:      l.DrCr,
			TranCcy:   l.TranCcy,
			FcyAmt:    l.FcyAmt,
			LcyAmt:    l.LcyAmt,
			Narration: l.Narration,
		})
	}

	txn, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(txn))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.Get(r.Context(), chi.URLParam(r, "tranID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(txn))
}

type actionRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	txn, err := h.service.Post(r.Context(), chi.URLParam(r, "tranID"), req.UserID)
	if err != nil {
		h.logger.Error("post transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(txn))
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	txn, err := h.service.Verify(r.Context(), chi.URLParam(r, "tranID"), req.UserID)
	if err != nil {
		h.logger.Error("verify transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(txn))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	txn, err := h.service.Reverse(r.Context(), ReverseInput{
		TranID: chi.URLParam(r, "tranID"),
		Reason: req.Reason,
		UserID: req.UserID,
	})
	if err != nil {
		h.logger.Error("reverse transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(txn))
}

type balanceResponse struct {
	AccountNo string  `json:"accountNo"`
	Date      string  `json:"date"`
	Opening   float64 `json:"opening"`
	Closing   float64 `json:"closing"`
	Available float64 `json:"available"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountNo := chi.URLParam(r, "accountNo")
	date, err := h.service.dates.SystemDate(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if q := r.URL.Query().Get("date"); q != "" {
		date, err = time.Parse("2006-01-02", q)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
	}
	opening, err := h.service.OpeningBalance(r.Context(), accountNo, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	closing, err := h.service.ClosingBalance(r.Context(), accountNo, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	available, err := h.service.AvailableBalance(r.Context(), accountNo, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		AccountNo: accountNo,
		Date:      date.Format("2006-01-02"),
		Opening:   opening,
		Closing:   closing,
		Available: available,
	})
}
