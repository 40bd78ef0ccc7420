package accounts

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
	r.Post("/customer", h.OpenCustomer)
	r.Post("/office", h.OpenOffice)
	r.Get("/{accountNo}", h.Get)
}

type openCustomerRequest struct {
	CustID       int64   `json:"custId"`
	SubProductID int64   `json:"subProductId"`
	Name         string  `json:"name"`
	Currency     string  `json:"currency"`
	LoanLimit    float64 `json:"loanLimit"`
	OpenedOn     string  `json:"openedOn"`
	UserID       string  `json:"userId"`
}

type customerAccountResponse struct {
	AccountNo    string  `json:"accountNo"`
	CustID       int64   `json:"custId"`
	SubProductID int64   `json:"subProductId"`
	Name         string  `json:"name"`
	Currency     string  `json:"currency"`
	LoanLimit    float64 `json:"loanLimit"`
	Status       string  `json:"status"`
	OpenedOn     string  `json:"openedOn"`
}

func (h *Handler) OpenCustomer(w http.ResponseWriter, r *http.Request) {
	var req openCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	openedOn, err := time.Parse("2006-01-02", req.OpenedOn)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	acct, err := h.service.OpenCustomerAccount(r.Context(), OpenCustomerAccountInput{
		CustID:       req.CustID,
		SubProductID: req.SubProductID,
		Name:         req.Name,
		Currency:     req.Currency,
		LoanLimit:    req.LoanLimit,
		OpenedOn:     openedOn,
		UserID:       req.UserID,
	})
	if err != nil {
		h.logger.Error("open customer account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCustomerResponse(acct))
}

type openOfficeRequest struct {
	GLNum    string `json:"glNum"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	OpenedOn string `json:"openedOn"`
	UserID   string `json:"userId"`
}

func (h *Handler) OpenOffice(w http.ResponseWriter, r *http.Request) {
	var req openOfficeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	openedOn, err := time.Parse("2006-01-02", req.OpenedOn)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	acct, err := h.service.OpenOfficeAccount(r.Context(), OpenOfficeAccountInput{
		GLNum:    req.GLNum,
		Name:     req.Name,
		Currency: req.Currency,
		OpenedOn: openedOn,
		UserID:   req.UserID,
	})
	if err != nil {
		h.logger.Error("open office account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, officeAccountResponse{
		AccountNo: acct.AccountNo,
		GLNum:     acct.GLNum,
		Name:      acct.Name,
		Currency:  acct.Currency,
		OpenedOn:  acct.OpenedOn.Format("2006-01-02"),
	})
}

type officeAccountResponse struct {
	AccountNo string `json:"accountNo"`
	GLNum     string `json:"glNum"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	OpenedOn  string `json:"openedOn"`
}

type accountInfoResponse struct {
	AccountNo string  `json:"accountNo"`
	Currency  string  `json:"currency"`
	GLNum     string  `json:"glNum"`
	Class     string  `json:"class"`
	Office    bool    `json:"office"`
	LoanLimit float64 `json:"loanLimit"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info(r.Context(), chi.URLParam(r, "accountNo"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountInfoResponse{
		AccountNo: info.AccountNo,
		Currency:  info.Currency,
		GLNum:     info.GLNum,
		Class:     string(info.Class),
		Office:    info.Office,
		LoanLimit: info.LoanLimit,
	})
}

func toCustomerResponse(acct CustomerAccount) customerAccountResponse {
	return customerAccountResponse{
		AccountNo:    acct.AccountNo,
		CustID:       acct.CustID,
		SubProductID: acct.SubProductID,
		Name:         acct.Name,
		Currency:     acct.Currency,
		LoanLimit:    acct.LoanLimit,
		Status:       acct.Status,
		OpenedOn:     acct.OpenedOn.Format("2006-01-02"),
	}
}
