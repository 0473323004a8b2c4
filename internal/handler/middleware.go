package handler

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"ethpoint/internal/service"
	"ethpoint/pkg/logger"
	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggerMiddleware writes one access log line per request, at warn for 4xx and error for 5xx.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		if query != "" {
			path = path + "?" + query
		}

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Log.Error()
		case status >= http.StatusBadRequest:
			event = logger.Log.Warn()
		default:
			event = logger.Log.Info()
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Msg("http request")
	}
}

// RecoveryMiddleware turns a panic into a 500 envelope.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Log.Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")
				response.Abort(c, http.StatusInternalServerError, "Unexpected error, please try again later.")
			}
		}()
		c.Next()
	}
}

func CORSMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequireAuth accepts "Authorization: Bearer <token>" and stores the account id in the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			response.Abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		accountID, err := h.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ctxAccountID, accountID)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.accountService.GetAccount(c.Request.Context(), currentAccountID(c))
		if err != nil {
			if service.IsKind(err, service.KindAuth) {
				response.Abort(c, http.StatusUnauthorized, "Authentication required")
				return
			}
			h.fail(c, err)
			c.Abort()
			return
		}
		if !account.IsAdmin() {
			response.Abort(c, http.StatusForbidden, "Admin access required")
			return
		}

		c.Set(ctxAccount, account)
		c.Next()
	}
}
