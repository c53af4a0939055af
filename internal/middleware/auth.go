package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sample-interp-server/internal/domain"
)

const (
	tokenKey       = "auth_token"
	permissionsKey = "auth_permissions"
)

// TokenAuth resolves the bearer token to its granted permissions. When auth
// is disabled every request passes with no permissions attached; route-level
// RequirePermission gates are skipped in that mode too.
func TokenAuth(config domain.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.Enabled {
			c.Next()
			return
		}

		token := bearerToken(c)
		perms, ok := config.Tokens[token]
		if token == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.NewAPIError(domain.ErrCodeForbidden, "Invalid or missing API token", "", c.GetString("correlation_id")),
			})
			return
		}

		c.Set(tokenKey, token)
		c.Set(permissionsKey, perms)
		c.Next()
	}
}

// RequirePermission gates a route on a named permission granted to the
// caller's token.
func RequirePermission(config domain.AuthConfig, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.Enabled {
			c.Next()
			return
		}

		perms, _ := c.Get(permissionsKey)
		granted, _ := perms.([]string)
		for _, p := range granted {
			if p == permission {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": domain.NewAPIError(domain.ErrCodeForbidden, "Permission denied", permission, c.GetString("correlation_id")),
		})
	}
}

// RateLimit throttles requests per caller. Authenticated callers are limited
// per token, anonymous ones per client IP.
func RateLimit(limit float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters[key]; ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(limit), burst)
		limiters[key] = l
		return l
	}

	return func(c *gin.Context) {
		key := c.GetString(tokenKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !limiterFor(key).Allow() {
			c.Header("Retry-After", time.Second.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": domain.NewAPIError(domain.ErrCodeRateLimit, "Rate limit exceeded", "", c.GetString("correlation_id")),
			})
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.GetHeader("X-API-Key")
}
