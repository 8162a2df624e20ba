package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bookvault/internal/pkg/jwt"
	"bookvault/internal/pkg/response"
)

const (
	ctxTelegramID = "telegram_id"
	ctxRole       = "role"

	// TelegramUserHeader names the subject on requests signed with the internal token.
	TelegramUserHeader = "X-Telegram-User-Id"

	RoleAdmin    = jwt.RoleAdmin
	RoleMember   = jwt.RoleMember
	RoleInternal = "internal"
)

// SubjectOptions configures how a request subject is established.
type SubjectOptions struct {
	JWT           *jwt.Service
	InternalToken string
	// AllowQuery accepts ?telegram_id= as the subject. Development only.
	AllowQuery bool
}

// Subject resolves the caller's Telegram id when one is presented and lets
// anonymous requests through. A presented but invalid credential is rejected.
func Subject(opts SubjectOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if opts.AllowQuery {
				if id, ok := parseTelegramID(c.Query("telegram_id")); ok {
					c.Set(ctxTelegramID, id)
				}
			}
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			return
		}

		if isInternalToken(token, opts.InternalToken) {
			c.Set(ctxRole, RoleInternal)
			if raw := c.GetHeader(TelegramUserHeader); raw != "" {
				id, ok := parseTelegramID(raw)
				if !ok {
					response.Abort(c, http.StatusBadRequest, "INVALID_USER_ID", TelegramUserHeader+" must be a positive integer")
					return
				}
				c.Set(ctxTelegramID, id)
			}
			c.Next()
			return
		}

		if !setClaims(c, opts.JWT, token) {
			return
		}
		c.Next()
	}
}

// RequireSubject rejects requests without an established subject.
func RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := SubjectFrom(c); !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
			return
		}
		c.Next()
	}
}

// SubjectFrom returns the Telegram id set by Subject.
func SubjectFrom(c *gin.Context) (int64, bool) {
	id := c.GetInt64(ctxTelegramID)
	return id, id > 0
}

func setClaims(c *gin.Context, j *jwt.Service, token string) bool {
	if j == nil {
		response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return false
	}
	claims, err := j.ValidateToken(token)
	if err != nil {
		response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return false
	}
	c.Set(ctxTelegramID, claims.TelegramID)
	c.Set(ctxRole, claims.Role)
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func isInternalToken(token, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func parseTelegramID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
