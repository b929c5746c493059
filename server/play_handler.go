package server

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/auth"
	"github.com/remibonds525-star/loyalty-engine/errors"
	"github.com/remibonds525-star/loyalty-engine/quota"
)

// PlayHandler handles HTTP requests for the chance games
//
// Flow: HTTP Request -> gameRoutes -> PlayHandler -> PlayService
//
// Responsibilities:
// - Extract user info from JWT token
// - Validate request parameters
// - Call PlayService for business logic
// - Format and return HTTP responses
type PlayHandler struct {
	svc    *PlayService
	logger zerolog.Logger
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(svc *PlayService, logger zerolog.Logger) *PlayHandler {
	return &PlayHandler{
		svc:    svc,
		logger: logger.With().Str("handler", "play").Logger(),
	}
}

// extractIdentity extracts user ID and tier from gin context
func (h *PlayHandler) extractIdentity(c *gin.Context) (string, int, error) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return "", 0, errors.New(errors.ErrUnauthorized, "user_id not found in context")
	}
	tier, ok := auth.GetTier(c)
	if !ok {
		tier = 0
	}
	return userID, tier, nil
}

// SpinSaw godoc
// @Summary      Spin the saw
// @Description  Runs one saw spin. Uses a free play when the daily allotment has one left, otherwise charges the spin cost.
// @Tags         games
// @Accept       json
// @Produce      json
// @Success      200  {object}  BaseResponse{data=SawPlayResult}
// @Failure      400  {object}  BaseResponse
// @Failure      401  {object}  BaseResponse
// @Failure      500  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/saw/spin [post]
func (h *PlayHandler) SpinSaw(c *gin.Context) {
	userID, tier, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	result, err := h.svc.SpinSaw(c.Request.Context(), userID, tier)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to execute saw spin")
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("play_id", result.PlayID).
		Str("label", result.Label).
		Int64("payout", result.Payout).
		Bool("free", result.Free).
		Msg("Saw spin executed")

	OK(c, result)
}

// CreateMinesBoard godoc
// @Summary      Open a job-site board
// @Description  Creates a new 9-cell board with two hidden mines. Uses a free play when available, otherwise charges the entry cost.
// @Tags         games
// @Accept       json
// @Produce      json
// @Success      201  {object}  BaseResponse{data=MinesCreateResult}
// @Failure      400  {object}  BaseResponse
// @Failure      401  {object}  BaseResponse
// @Failure      500  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/mines/boards [post]
func (h *PlayHandler) CreateMinesBoard(c *gin.Context) {
	userID, tier, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	result, err := h.svc.CreateMinesBoard(c.Request.Context(), userID, tier)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create board")
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("board_id", result.BoardID).
		Bool("free", result.Free).
		Msg("Board created")

	Created(c, result)
}

// RevealRequest represents the reveal request body
type RevealRequest struct {
	// Cell index in [0,8]
	Index *int `json:"index" binding:"required"`
}

// RevealMinesCell godoc
// @Summary      Reveal a board cell
// @Description  Uncovers one cell. A safe cell adds to pending winnings, a mine busts the board and forfeits them.
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        board_id  path      string         true  "Board ID"
// @Param        request   body      RevealRequest  true  "Cell to reveal"
// @Success      200  {object}  BaseResponse{data=MinesRevealResult}
// @Failure      400  {object}  BaseResponse
// @Failure      401  {object}  BaseResponse
// @Failure      404  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/mines/boards/{board_id}/reveal [post]
func (h *PlayHandler) RevealMinesCell(c *gin.Context) {
	userID, _, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	boardID := c.Param("board_id")

	var req RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, errors.New(errors.ErrInvalidRequest, "Invalid request payload"))
		return
	}

	result, err := h.svc.RevealMinesCell(c.Request.Context(), userID, boardID, *req.Index)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("user_id", userID).
			Str("board_id", boardID).
			Msg("Reveal rejected")
		HandleAppError(c, err)
		return
	}

	OK(c, result)
}

// GetMinesBoard godoc
// @Summary      Get board state
// @Description  Returns the visible state of the user's board. Mine positions stay hidden while the board is active.
// @Tags         games
// @Produce      json
// @Param        board_id  path  string  true  "Board ID"
// @Success      200  {object}  BaseResponse{data=MinesBoardState}
// @Failure      401  {object}  BaseResponse
// @Failure      404  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/mines/boards/{board_id} [get]
func (h *PlayHandler) GetMinesBoard(c *gin.Context) {
	userID, _, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	result, err := h.svc.GetMinesBoard(c.Request.Context(), userID, c.Param("board_id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, result)
}

// CashOutMines godoc
// @Summary      Cash out a board
// @Description  Settles an active board and credits pending winnings to the wallet.
// @Tags         games
// @Produce      json
// @Param        board_id  path  string  true  "Board ID"
// @Success      200  {object}  BaseResponse{data=MinesCashOutResult}
// @Failure      401  {object}  BaseResponse
// @Failure      404  {object}  BaseResponse
// @Failure      409  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/mines/boards/{board_id}/cashout [post]
func (h *PlayHandler) CashOutMines(c *gin.Context) {
	userID, _, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	boardID := c.Param("board_id")
	result, err := h.svc.CashOutMines(c.Request.Context(), userID, boardID)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("user_id", userID).
			Str("board_id", boardID).
			Msg("Cash-out rejected")
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("board_id", boardID).
		Int64("credited", result.CreditedAmount).
		Msg("Board cashed out")

	OK(c, result)
}

// SpinDaily godoc
// @Summary      Spin the daily bonus wheel
// @Description  Runs the once-a-day bonus wheel and credits the prize.
// @Tags         games
// @Produce      json
// @Success      200  {object}  BaseResponse{data=DailyPlayResult}
// @Failure      401  {object}  BaseResponse
// @Failure      429  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/daily/spin [post]
func (h *PlayHandler) SpinDaily(c *gin.Context) {
	userID, _, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	result, err := h.svc.SpinDaily(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("play_id", result.PlayID).
		Int64("prize", result.Prize).
		Msg("Daily spin executed")

	OK(c, result)
}

// QuotaResponse reports the remaining free plays per game
type QuotaResponse struct {
	Saw   int `json:"saw"`
	Mines int `json:"mines"`
	Daily int `json:"daily_spin"`
}

// GetQuota godoc
// @Summary      Get remaining free plays
// @Description  Returns today's remaining free plays for each game.
// @Tags         games
// @Produce      json
// @Success      200  {object}  BaseResponse{data=QuotaResponse}
// @Failure      401  {object}  BaseResponse
// @Security     BearerAuth
// @Router       /games/quota [get]
func (h *PlayHandler) GetQuota(c *gin.Context) {
	userID, tier, err := h.extractIdentity(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	ctx := c.Request.Context()
	resp := QuotaResponse{}

	if resp.Saw, err = h.svc.FreePlaysRemaining(ctx, userID, quota.GameSaw, tier); err != nil {
		HandleAppError(c, err)
		return
	}
	if resp.Mines, err = h.svc.FreePlaysRemaining(ctx, userID, quota.GameMines, tier); err != nil {
		HandleAppError(c, err)
		return
	}

	used, err := h.svc.quota.PlaysUsedToday(ctx, userID, quota.GameDaily)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if used == 0 {
		resp.Daily = 1
	}

	OK(c, resp)
}
