package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

// GinOperatorKey holds the authenticated operator (the token subject).
const GinOperatorKey = "operator"

var errMissingBearer = errors.New("missing bearer token")

// AdminAuthMiddleware accepts HS256 bearer tokens signed with secret. Expiry
// is enforced when the token carries exp.
func AdminAuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		claims, err := parseBearer(c.GetHeader("Authorization"), key)
		if err != nil {
			logctx.FromGin(c, base).Warnw("admin_auth_rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			return
		}
		c.Set(GinOperatorKey, claims.Subject)
		c.Next()
	}
}

func parseBearer(header string, key []byte) (*jwt.StandardClaims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, errMissingBearer
	}
	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return nil, errMissingBearer
	}
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}
	return claims, nil
}
