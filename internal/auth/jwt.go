// Package auth verifies the session tokens issued to inbox users. Every API
// call is scoped to the tenant named in the token.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tenantKey = "tenant_id"
	actorKey  = "actor"
)

type Claims struct {
	TenantID string `json:"tenantId"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 session token for tenantID.
func Issue(secret, tenantID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		TenantID: tenantID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates the token signature and expiry and requires a tenant.
func Parse(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("token has no tenant")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so a token query parameter is accepted
// as well.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be 'Bearer {token}'"})
			return
		}

		claims, err := Parse(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(tenantKey, claims.TenantID)
		c.Set(actorKey, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TenantID returns the tenant resolved by Middleware.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// Actor is the signed-in user's email, when the token carries one.
func Actor(c *gin.Context) string {
	return c.GetString(actorKey)
}
