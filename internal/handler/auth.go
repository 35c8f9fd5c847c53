package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"go.uber.org/zap"
)

// authenticator checks principal credentials. *identity.Keyring satisfies it.
type authenticator interface {
	Authenticate(p ledger.Principal, secret string) error
}

// AuthHandler exchanges principal credentials for caller tokens.
type AuthHandler struct {
	keyring authenticator
	tokens  *identity.CallerTokenIssuer
	logger  *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(keyring authenticator, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{keyring: keyring, tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	Principal string `json:"principal" binding:"required"`
	Secret    string `json:"secret" binding:"required"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := ledger.ParsePrincipal(req.Principal)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if err := h.keyring.Authenticate(p, req.Secret); err != nil {
		if !errors.Is(err, identity.ErrBadCredentials) {
			h.logger.Error("authenticate", zap.Error(err))
		}
		h.logger.Info("caller authentication failed", zap.String("principal", p.String()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid principal or secret"})
		return
	}

	tok, err := h.tokens.Issue(p)
	if err != nil {
		h.logger.Error("issue caller token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      tok,
		"token_type": "Bearer",
		"expires_in": int(h.tokens.TTL().Seconds()),
		"principal":  p,
	})
}
