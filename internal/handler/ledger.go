package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// tokenSvc is the interface expected by LedgerHandler, satisfied by
// *service.TokenService.
type tokenSvc interface {
	Initialize(ctx context.Context, caller ledger.Principal, args ledger.InitArgs) error
	AddMinter(ctx context.Context, caller, minter ledger.Principal) error
	Mint(ctx context.Context, caller, to ledger.Principal, amount uint64) (ledger.Entry, error)
	Approve(ctx context.Context, caller, spender ledger.Principal, amount uint64) error
	Transfer(ctx context.Context, caller, to ledger.Principal, amount uint64) (ledger.Entry, error)
	BurnCycles(ctx context.Context, caller ledger.Principal, amount uint64) uint64
	BalanceOf(ctx context.Context, p ledger.Principal) uint64
	Allowance(ctx context.Context, owner, spender ledger.Principal) uint64
	TotalSupply(ctx context.Context) uint64
	Symbol(ctx context.Context) string
	Name(ctx context.Context) string
	Decimals(ctx context.Context) uint8
	BurntCycles(ctx context.Context) uint64
	Metadata(ctx context.Context) ledger.Metadata
	HistoryPage(ctx context.Context, offset, limit int) ([]ledger.Entry, int)
}

// LedgerHandler exposes the token ledger over HTTP.
type LedgerHandler struct {
	svc    tokenSvc
	tokens *identity.CallerTokenIssuer // nil = caller routes disabled
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler. Mutating routes require a caller
// token issued by tokens.
func NewLedgerHandler(svc tokenSvc, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, tokens: tokens, logger: logger}
}

// requireCaller returns the caller-token middleware, or one that rejects
// every request when no issuer is configured.
func (h *LedgerHandler) requireCaller() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "caller authentication not configured"})
		}
	}
	return identity.RequireCaller(h.tokens)
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	auth := h.requireCaller()
	l := rg.Group("/ledger")
	{
		l.GET("", h.Metadata)
		l.GET("/total-supply", h.TotalSupply)
		l.GET("/symbol", h.Symbol)
		l.GET("/name", h.Name)
		l.GET("/decimals", h.Decimals)
		l.GET("/balances/:principal", h.BalanceOf)
		l.GET("/allowances/:owner/:spender", h.Allowance)
		l.GET("/cycles", h.BurntCycles)
		l.GET("/history", h.History)

		l.POST("/init", auth, h.Initialize)
		l.POST("/approve", auth, h.Approve)
		l.POST("/transfer", auth, h.Transfer)
		l.POST("/minters", auth, h.AddMinter)
		l.POST("/mint", auth, h.Mint)
		l.POST("/cycles/burn", auth, h.BurnCycles)
	}
}

// amountField accepts either a base-unit integer or a display string such as
// "12.50", which is scaled by the token's decimals.
type amountField struct {
	Amount        *uint64 `json:"amount"`
	DisplayAmount string  `json:"display_amount"`
}

func (a amountField) resolve(decimals uint8) (uint64, error) {
	switch {
	case a.Amount != nil && a.DisplayAmount != "":
		return 0, fmt.Errorf("%w: set amount or display_amount, not both", ledger.ErrInvalidAmount)
	case a.Amount != nil:
		return *a.Amount, nil
	case a.DisplayAmount != "":
		return ledger.ParseAmount(a.DisplayAmount, decimals)
	}
	return 0, fmt.Errorf("%w: amount is required", ledger.ErrInvalidAmount)
}

type initRequest struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	TotalSupply uint64 `json:"total_supply"`
	Decimals    uint8  `json:"decimals"`
}

// Initialize handles POST /ledger/init. The caller becomes the owner.
func (h *LedgerHandler) Initialize(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := identity.CallerFromCtx(c)
	args := ledger.InitArgs{Symbol: req.Symbol, Name: req.Name, TotalSupply: req.TotalSupply, Decimals: req.Decimals}
	if err := h.svc.Initialize(c.Request.Context(), caller, args); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.svc.Metadata(c.Request.Context()))
}

// Metadata handles GET /ledger.
func (h *LedgerHandler) Metadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Metadata(c.Request.Context()))
}

// TotalSupply handles GET /ledger/total-supply.
func (h *LedgerHandler) TotalSupply(c *gin.Context) {
	ctx := c.Request.Context()
	supply := h.svc.TotalSupply(ctx)
	c.JSON(http.StatusOK, gin.H{
		"total_supply": supply,
		"display":      ledger.FormatAmount(supply, h.svc.Decimals(ctx)),
	})
}

// Symbol handles GET /ledger/symbol.
func (h *LedgerHandler) Symbol(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbol": h.svc.Symbol(c.Request.Context())})
}

// Name handles GET /ledger/name.
func (h *LedgerHandler) Name(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": h.svc.Name(c.Request.Context())})
}

// Decimals handles GET /ledger/decimals.
func (h *LedgerHandler) Decimals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decimals": h.svc.Decimals(c.Request.Context())})
}

// BalanceOf handles GET /ledger/balances/:principal.
func (h *LedgerHandler) BalanceOf(c *gin.Context) {
	p, err := ledger.ParsePrincipal(c.Param("principal"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ctx := c.Request.Context()
	bal := h.svc.BalanceOf(ctx, p)
	c.JSON(http.StatusOK, gin.H{
		"principal": p,
		"balance":   bal,
		"display":   ledger.FormatAmount(bal, h.svc.Decimals(ctx)),
	})
}

// Allowance handles GET /ledger/allowances/:owner/:spender.
func (h *LedgerHandler) Allowance(c *gin.Context) {
	owner, err := ledger.ParsePrincipal(c.Param("owner"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	spender, err := ledger.ParsePrincipal(c.Param("spender"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owner":     owner,
		"spender":   spender,
		"allowance": h.svc.Allowance(c.Request.Context(), owner, spender),
	})
}

type approveRequest struct {
	Spender string `json:"spender" binding:"required"`
	amountField
}

// Approve handles POST /ledger/approve.
func (h *LedgerHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	spender, err := ledger.ParsePrincipal(req.Spender)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	amount, err := req.resolve(h.svc.Decimals(ctx))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	caller := identity.CallerFromCtx(c)
	if err := h.svc.Approve(ctx, caller, spender, amount); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": caller, "spender": spender, "allowance": amount})
}

type transferRequest struct {
	To string `json:"to" binding:"required"`
	amountField
}

// Transfer handles POST /ledger/transfer. The source is always the caller.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	to, err := ledger.ParsePrincipal(req.To)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	amount, err := req.resolve(h.svc.Decimals(ctx))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	entry, err := h.svc.Transfer(ctx, identity.CallerFromCtx(c), to, amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type addMinterRequest struct {
	Minter string `json:"minter" binding:"required"`
}

// AddMinter handles POST /ledger/minters.
func (h *LedgerHandler) AddMinter(c *gin.Context) {
	var req addMinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	minter, err := ledger.ParsePrincipal(req.Minter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.AddMinter(c.Request.Context(), identity.CallerFromCtx(c), minter); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minter": minter})
}

type mintRequest struct {
	To string `json:"to" binding:"required"`
	amountField
}

// Mint handles POST /ledger/mint.
func (h *LedgerHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	to, err := ledger.ParsePrincipal(req.To)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	amount, err := req.resolve(h.svc.Decimals(ctx))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	entry, err := h.svc.Mint(ctx, identity.CallerFromCtx(c), to, amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type burnRequest struct {
	Amount uint64 `json:"amount"`
}

// BurnCycles handles POST /ledger/cycles/burn.
func (h *LedgerHandler) BurnCycles(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total := h.svc.BurnCycles(c.Request.Context(), identity.CallerFromCtx(c), req.Amount)
	c.JSON(http.StatusOK, gin.H{"burnt_cycles": total})
}

// BurntCycles handles GET /ledger/cycles.
func (h *LedgerHandler) BurntCycles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"burnt_cycles": h.svc.BurntCycles(c.Request.Context())})
}

// History handles GET /ledger/history?offset=&limit=.
func (h *LedgerHandler) History(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, total := h.svc.HistoryPage(c.Request.Context(), offset, limit)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}
