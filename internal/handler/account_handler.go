package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
	"matrix-bank/internal/service"
)

type AccountHandler struct {
	accountService  *service.AccountService
	transferService *service.TransferService
}

func NewAccountHandler(accountService *service.AccountService, transferService *service.TransferService) *AccountHandler {
	return &AccountHandler{
		accountService:  accountService,
		transferService: transferService,
	}
}

type CreateAccountRequest struct {
	Number           int64  `json:"number"`
	InitialBalance   string `json:"initial_balance"`
	WithdrawPassword string `json:"withdraw_password"`
}

type AccountResponse struct {
	Number  int64  `json:"number"`
	OwnerID string `json:"owner_id"`
	Balance string `json:"balance"`
}

type AccountListResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

type DepositRequest struct {
	Number int64  `json:"number"`
	Amount string `json:"amount"`
	Tel    string `json:"tel,omitempty"`
}

type BalanceResponse struct {
	Number  int64  `json:"number"`
	Balance string `json:"balance"`
}

type HistoryEntryResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Balance   string `json:"balance"`
	Memo      string `json:"memo,omitempty"`
	CreatedAt string `json:"created_at"`
}

type AccountDetailResponse struct {
	Account      AccountResponse        `json:"account"`
	Transactions []HistoryEntryResponse `json:"transactions"`
	Page         int                    `json:"page"`
	PageSize     int                    `json:"page_size"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}

	initialBalance, err := decimal.NewFromString(req.InitialBalance)
	if err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidAmount,
			"invalid initial_balance format"))
		return
	}

	account, err := h.accountService.CreateAccount(caller, req.Number, initialBalance, req.WithdrawPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse(account))
}

// ListAccounts returns the caller's own accounts.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	accounts, err := h.accountService.ListAccounts(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		responses = append(responses, accountResponse(account))
	}
	writeJSON(w, http.StatusOK, AccountListResponse{Accounts: responses})
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	number, err := pathAccountNumber(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.accountService.DeleteAccount(number, caller); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"number": number})
}

func (h *AccountHandler) GetAccountDetail(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	number, err := pathAccountNumber(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
				"page must be a non-negative integer"))
			return
		}
	}

	detail, err := h.accountService.GetDetail(number, caller, page)
	if err != nil {
		writeError(w, err)
		return
	}

	transactions := make([]HistoryEntryResponse, 0, len(detail.History))
	for _, entry := range detail.History {
		transactions = append(transactions, HistoryEntryResponse{
			ID:        entry.Transaction.ID,
			Type:      string(entry.Transaction.Type),
			Amount:    entry.Transaction.Amount.String(),
			Balance:   entry.Balance.String(),
			Memo:      entry.Transaction.Memo,
			CreatedAt: entry.Transaction.CreatedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, AccountDetailResponse{
		Account:      accountResponse(detail.Account),
		Transactions: transactions,
		Page:         detail.Page,
		PageSize:     detail.PageSize,
	})
}

// Deposit is unauthenticated: it models a cash deposit made at a branch for
// the given account, with an optional contact phone number.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
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

	balance, err := h.transferService.Deposit(req.Number, amount, req.Tel)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BalanceResponse{
		Number:  req.Number,
		Balance: balance.String(),
	})
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func accountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		Number:  account.Number,
		OwnerID: account.OwnerID.String(),
		Balance: account.Balance.String(),
	}
}

func pathAccountNumber(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["number"]
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || number <= 0 {
		return 0, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"account number must be a positive integer")
	}
	return number, nil
}
