package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/auth"
	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/ledger"
)

const defaultHistoryLimit = 20

// WalletHandler handles HTTP requests for wallet reads and purchases
type WalletHandler struct {
	svc    *PlayService
	logger zerolog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(svc *PlayService, logger zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		svc:    svc,
		logger: logger.With().Str("handler", "wallet").Logger(),
	}
}

func (h *WalletHandler) extractUserID(c *gin.Context) (string, error) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return "", errors.New(errors.ErrUnauthorized, "user_id not found in context")
	}
	return userID, nil
}

// BalanceResponse reports a wallet balance
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// GetBalance godoc
// @Summary      Get wallet balance
// @Description  Returns the current coin balance for the authenticated user.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  BaseResponse{data=BalanceResponse}
// @Failure      401  {object}  BaseResponse
// @Failure      404  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /wallet/balance [get]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, err := h.extractUserID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	balance, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, BalanceResponse{UserID: userID, Balance: balance})
}

// HistoryResponse reports recent wallet transactions, newest first
type HistoryResponse struct {
	Transactions []ledger.Transaction `json:"transactions"`
}

// GetHistory godoc
// @Summary      Get transaction history
// @Description  Returns the most recent wallet transactions, newest first.
// @Tags         wallet
// @Produce      json
// @Param        limit  query  int  false  "Max entries (default 20, max 100)"
// @Success      200  {object}  BaseResponse{data=HistoryResponse}
// @Failure      401  {object}  BaseResponse
// @Failure      404  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /wallet/history [get]
func (h *WalletHandler) GetHistory(c *gin.Context) {
	userID, err := h.extractUserID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(c, errors.New(errors.ErrInvalidRequest, "Invalid limit"))
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	txns, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, HistoryResponse{Transactions: txns})
}

// PurchaseRequest represents the purchase request body
type PurchaseRequest struct {
	// Coin amount to credit (required, must be > 0)
	Amount int64 `json:"amount" binding:"required"`
	// Payment gateway reference, used for idempotency
	ReferenceID string `json:"referenceId" binding:"required"`
}

// Purchase godoc
// @Summary      Credit purchased coins
// @Description  Credits coins bought through the payment gateway. Retries with the same referenceId are applied once.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body  PurchaseRequest  true  "Purchase payload"
// @Success      200  {object}  BaseResponse{data=BalanceResponse}
// @Failure      400  {object}  BaseResponse
// @Failure      401  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /wallet/purchase [post]
func (h *WalletHandler) Purchase(c *gin.Context) {
	userID, err := h.extractUserID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, errors.New(errors.ErrInvalidRequest, "Invalid request payload"))
		return
	}

	balance, err := h.svc.Purchase(c.Request.Context(), userID, req.Amount, req.ReferenceID)
	if err != nil {
		h.logger.Error().Err(err).
			Str("user_id", userID).
			Str("reference_id", req.ReferenceID).
			Msg("Failed to credit purchase")
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("reference_id", req.ReferenceID).
		Int64("amount", req.Amount).
		Msg("Purchase credited")

	OK(c, BalanceResponse{UserID: userID, Balance: balance})
}
