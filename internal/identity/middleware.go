package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

const ctxCallerClaims = "tokenledger_caller_claims"

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token and injects its claims into the context.
func RequireCaller(tokens *CallerTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Next()
	}
}

// CallerFromCtx returns the principal injected by RequireCaller, or "".
func CallerFromCtx(c *gin.Context) ledger.Principal {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	if claims == nil {
		return ""
	}
	return claims.Caller()
}
