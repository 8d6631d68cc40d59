package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// MaxCreditAmount caps a single manual credit.
const MaxCreditAmount = 100_000

// AccountCrediter grants points.
type AccountCrediter interface {
	Credit(ctx context.Context, userID string, amount float64) (*model.Account, error)
}

// AccountReader looks up accounts without creating them.
type AccountReader interface {
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
}

// AdminHandler provides operator endpoints for support and debugging.
type AdminHandler struct {
	crediter AccountCrediter
	accounts AccountReader
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(crediter AccountCrediter, accounts AccountReader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		crediter: crediter,
		accounts: accounts,
		logger:   logger.With("component", "admin"),
	}
}

// AccountResponse is an account as seen by operators. Credentials are never
// exposed, only their count.
type AccountResponse struct {
	UserID        string    `json:"user_id"`
	Balance       float64   `json:"balance"`
	LinkedCount   int       `json:"linked_count"`
	TotalRequests int64     `json:"total_requests"`
	LastResetAt   time.Time `json:"last_reset_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountResponse(acc *model.Account) AccountResponse {
	return AccountResponse{
		UserID:        acc.UserID,
		Balance:       acc.Balance,
		LinkedCount:   acc.LinkedCount(),
		TotalRequests: acc.TotalRequests,
		LastResetAt:   acc.LastResetAt,
		CreatedAt:     acc.CreatedAt,
	}
}

// CreditRequest is the body of POST /admin/credits.
type CreditRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// Credit handles POST /admin/credits.
// Grants points to a user, creating the account if needed.
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if !validUserID(req.UserID) {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_USER_ID", "user_id must be a numeric Telegram user id")
		return
	}
	if req.Amount <= 0 || req.Amount > MaxCreditAmount {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be positive and at most 100000")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	acc, err := h.crediter.Credit(ctx, req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrStoreUnavailable) {
			writeErrorJSON(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "account store is unavailable")
			return
		}
		h.logger.Error("failed to credit account",
			"error", err,
			"user_id", req.UserID,
		)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to credit account")
		return
	}

	h.logger.Info("manual credit",
		"user_id", req.UserID,
		"amount", req.Amount,
		"reason", truncateForLog(req.Reason, 100),
		"balance", acc.Balance,
	)
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// GetAccount handles GET /admin/accounts/{userID}.
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validUserID(userID) {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_USER_ID", "user id must be numeric")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	acc, err := h.accounts.GetAccount(ctx, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toAccountResponse(acc))
	case errors.Is(err, store.ErrAccountNotFound):
		writeErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "account not found")
	case errors.Is(err, store.ErrUnavailable):
		writeErrorJSON(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "account store is unavailable")
	default:
		h.logger.Error("failed to get account", "error", err, "user_id", userID)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get account")
	}
}

func validUserID(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
