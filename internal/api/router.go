package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"casino-core/internal/middleware"
	"casino-core/internal/model"
	"casino-core/internal/service"
	"casino-core/internal/service/games"
	"casino-core/internal/ws"
	pkgAuth "casino-core/pkg/auth"
	appErr "casino-core/pkg/errors"
	"casino-core/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Crash)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/casino/v1")
	{
		v1.POST("/auth/login", handler.Login)

		authed := v1.Group("/")
		authed.Use(middleware.AuthRequired())
		{
			authed.GET("/wallet", handler.GetWallet)
			authed.GET("/wallet/history", handler.GetWalletHistory)

			authed.POST("/bets", handler.PlaceBet)

			authed.POST("/mines/start", handler.MinesStart)
			authed.POST("/mines/reveal", handler.MinesReveal)
			authed.POST("/mines/cashout", handler.MinesCashout)

			authed.POST("/crash/join", handler.CrashJoin)
			authed.POST("/crash/cashout", handler.CrashCashout)
			authed.GET("/crash/state", handler.CrashState)
			authed.GET("/crash/history", handler.CrashHistory)

			authed.POST("/withdrawals", handler.RequestWithdrawal)

			authed.POST("/deposits", handler.CreateDeposit)
			authed.GET("/deposits/:id", handler.GetDeposit)
		}
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/auth/login", handler.AdminLogin)

		protected := adminGroup.Group("/")
		protected.Use(middleware.AdminAuthRequired())
		{
			protected.GET("/withdrawals", handler.AdminListWithdrawals)
			protected.PUT("/withdrawals/:id/approve", handler.AdminApproveWithdrawal)
			protected.PUT("/withdrawals/:id/reject", handler.AdminRejectWithdrawal)
			protected.POST("/credit", handler.AdminCredit)
			protected.GET("/stats", handler.AdminStats)
		}
	}

	r.GET("/ws/crash", wsHandler.HandleCrashWS)
}

type loginBody struct {
	UserID     int64  `json:"userId" binding:"required"`
	Username   string `json:"username"`
	FirstName  string `json:"firstName"`
	ReferrerID *int64 `json:"referrerId"`
}

type placeBetBody struct {
	Game   string `json:"game" binding:"required"`
	Stake  int64  `json:"stake" binding:"required,min=1"`
	Choice string `json:"choice"`
	Number int    `json:"number"`
}

type minesStartBody struct {
	Stake int64 `json:"stake" binding:"required,min=1"`
	Mines int   `json:"mines" binding:"required,min=1,max=24"`
}

type minesMoveBody struct {
	BetID int64 `json:"betId" binding:"required"`
	Cell  int   `json:"cell"`
}

type crashJoinBody struct {
	Stake int64 `json:"stake" binding:"required,min=1"`
}

type crashCashoutBody struct {
	RoundID int64 `json:"roundId"`
}

type withdrawalBody struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

type depositBody struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

type adminLoginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminCreditBody struct {
	AccountID int64 `json:"accountId" binding:"required"`
	Amount    int64 `json:"amount" binding:"required,min=1"`
}

// Login upserts the account for an external user id and issues a token.
// Identity verification against the messaging platform sits in front of this
// service.
func (h *Handler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.services.Account.Ensure(c.Request.Context(), body.UserID, body.Username, body.FirstName, body.ReferrerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	token, err := pkgAuth.GenerateUserToken(acct.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{"token": token, "account": acct})
}

func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.services.Account.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, profile)
}

func (h *Handler) GetWalletHistory(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.services.Account.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"entries": entries})
}

func (h *Handler) PlaceBet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body placeBetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	game, err := games.Parse(body.Game)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Bet.Place(c.Request.Context(), userID, game, body.Stake, games.Params{
		Choice: body.Choice,
		Number: body.Number,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) MinesStart(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body minesStartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.services.Bet.StartMines(c.Request.Context(), userID, body.Stake, body.Mines)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *Handler) MinesReveal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body minesMoveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.services.Bet.RevealMines(c.Request.Context(), userID, body.BetID, body.Cell)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *Handler) MinesCashout(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body minesMoveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.services.Bet.CashoutMines(c.Request.Context(), userID, body.BetID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *Handler) CrashJoin(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body crashJoinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Crash.Join(c.Request.Context(), userID, body.Stake)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) CrashCashout(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body crashCashoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Crash.CashOut(c.Request.Context(), userID, body.RoundID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) CrashState(c *gin.Context) {
	state, err := h.services.Crash.State(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *Handler) CrashHistory(c *gin.Context) {
	history, err := h.services.Crash.History(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"history": history})
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body withdrawalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.services.Withdraw.Request(c.Request.Context(), userID, body.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, req)
}

func (h *Handler) CreateDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body depositBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.services.Payment.CreateDeposit(c.Request.Context(), userID, body.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, inv)
}

func (h *Handler) GetDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid invoice id")
		return
	}

	inv, err := h.services.Payment.GetInvoice(c.Request.Context(), userID, invoiceID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, inv)
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	token, admin, err := h.services.Admin.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token": token,
		"admin": gin.H{"id": admin.ID, "username": admin.Username},
	})
}

func (h *Handler) AdminListWithdrawals(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.services.Withdraw.ListPending(c.Request.Context(), size, (page-1)*size)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items, "page": page, "size": size})
}

func (h *Handler) AdminApproveWithdrawal(c *gin.Context) {
	h.resolveWithdrawal(c, h.services.Withdraw.Approve)
}

func (h *Handler) AdminRejectWithdrawal(c *gin.Context) {
	h.resolveWithdrawal(c, h.services.Withdraw.Reject)
}

func (h *Handler) resolveWithdrawal(c *gin.Context, resolve func(ctx context.Context, requestID, adminID int64) (*model.WithdrawalRequest, error)) {
	adminID, ok := getAdminID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || requestID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid withdrawal id")
		return
	}

	req, err := resolve(c.Request.Context(), requestID, adminID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, req)
}

func (h *Handler) AdminCredit(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body adminCreditBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.services.Admin.Credit(c.Request.Context(), adminID, body.AccountID, body.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"account": acct})
}

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.services.Admin.GetStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appErr.ErrInvalidStake),
		errors.Is(err, appErr.ErrInvalidAmount),
		errors.Is(err, appErr.ErrUnknownGame),
		errors.Is(err, appErr.ErrInvalidChoice):
		status = http.StatusBadRequest
	case errors.Is(err, appErr.ErrInsufficientFunds),
		errors.Is(err, appErr.ErrInsufficientSpendable):
		status = http.StatusPaymentRequired
	case errors.Is(err, appErr.ErrAccountNotFound),
		errors.Is(err, appErr.ErrBetNotFound),
		errors.Is(err, appErr.ErrSessionNotFound),
		errors.Is(err, appErr.ErrWithdrawalNotFound),
		errors.Is(err, appErr.ErrInvoiceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appErr.ErrDuplicateEffect),
		errors.Is(err, appErr.ErrInvalidState),
		errors.Is(err, appErr.ErrRoundNotActive):
		status = http.StatusConflict
	case errors.Is(err, appErr.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, appErr.ErrAdminNotFound),
		errors.Is(err, appErr.ErrInvalidAdminPassword),
		errors.Is(err, appErr.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, appErr.ErrAdminDisabled):
		status = http.StatusForbidden
	case errors.Is(err, appErr.ErrGatewayDisabled):
		status = http.StatusServiceUnavailable
	}
	response.Error(c, status, err.Error())
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return parsed, nil
}

func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func getAdminID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.ContextAdminIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
