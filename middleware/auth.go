// middleware/auth.go
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/wfunc/partyserver/logger"
)

// ContextUserID is the gin context key the handlers read the
// authenticated user from.
const ContextUserID = "user_id"

var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth validates the bearer token and stores the user id on the context.
// Identity issuance (OTP, social login) happens upstream; this layer only
// trusts the signature.
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		userID, err := ParseUserID(tokenStr, jwtSecret)
		if err != nil {
			logger.Log.Debugw("rejected token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID reads the authenticated user from the context.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}

// ParseUserID verifies a token and extracts its user_id claim. Exported so
// the websocket endpoint can authenticate its token query parameter the
// same way.
func ParseUserID(tokenStr, secret string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token claims")
	}
	idClaim, ok := claims["user_id"]
	if !ok {
		return 0, errors.New("user_id claim missing")
	}
	idFloat, ok := idClaim.(float64)
	if !ok || idFloat <= 0 {
		return 0, errors.New("user_id claim is not a positive number")
	}
	return int64(idFloat), nil
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}
