package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/service"
)

type TransactionHandler struct {
	transferService *service.TransferService
}

func NewTransactionHandler(transferService *service.TransferService) *TransactionHandler {
	return &TransactionHandler{transferService: transferService}
}

type WithdrawRequest struct {
	Number   int64  `json:"number"`
	Password string `json:"password"`
	Amount   string `json:"amount"`
}

type TransferRequest struct {
	SourceNumber int64  `json:"source_number"`
	DestNumber   int64  `json:"dest_number"`
	Password     string `json:"password"`
	Amount       string `json:"amount"`
}

type TransferResponse struct {
	TransactionID int64  `json:"transaction_id"`
	SourceNumber  int64  `json:"source_number"`
	SourceBalance string `json:"source_balance"`
	DestNumber    int64  `json:"dest_number"`
	DestBalance   string `json:"dest_balance"`
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidAmount,
			"invalid amount format"))
		return
	}

	balance, err := h.transferService.Withdraw(req.Number, caller, req.Password, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BalanceResponse{
		Number:  req.Number,
		Balance: balance.String(),
	})
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidAmount,
			"invalid amount format"))
		return
	}

	result, err := h.transferService.Transfer(req.SourceNumber, req.DestNumber, caller, req.Password, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransferResponse{
		TransactionID: result.Entry.ID,
		SourceNumber:  req.SourceNumber,
		SourceBalance: result.SourceBalance.String(),
		DestNumber:    req.DestNumber,
		DestBalance:   result.DestBalance.String(),
	})
}
