package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aethra/daicho/internal/auth"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

const (
	sessionCookie = "daicho_session"
	employeeKey   = "employee"
	claimsKey     = "claims"
)

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if emp := currentEmployee(c); emp != nil {
			fields = append(fields, zap.String("employee_id", emp.ID.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case strings.HasPrefix(c.Request.URL.Path, "/api/health"):
			logger.Debug("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Recovery turns panics into a 500 and logs them
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

func isAPI(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.HasPrefix(c.Request.URL.Path, "/exports/")
}

// bearerToken returns the session token from the Authorization header or
// the session cookie
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie
	}
	return ""
}

// Session requires a valid, unrevoked token for an active employee.
// Pages redirect to /login; API calls get 401.
func (h *Handler) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			h.unauthorized(c, "ログインしてください")
			return
		}
		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.unauthorized(c, "セッションの有効期限が切れました。再度ログインしてください")
			return
		}

		revoked, err := h.revoker.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			// redis down: tokens still expire on their own
			h.logger.Warn("revocation check failed", zap.Error(err))
		}
		if revoked {
			h.unauthorized(c, "ログアウト済みです。再度ログインしてください")
			return
		}

		emp, err := h.svc.Employees.Get(c.Request.Context(), claims.EmployeeID)
		if err != nil || !emp.IsActive {
			h.unauthorized(c, "このアカウントは利用できません")
			return
		}

		c.Set(claimsKey, claims)
		c.Set(employeeKey, emp)
		c.Next()
	}
}

func (h *Handler) unauthorized(c *gin.Context, msg string) {
	if isAPI(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
		return
	}
	h.clearSession(c)
	setFlash(c, flashError, msg, h.secureCookie)
	c.Redirect(http.StatusSeeOther, "/login")
	c.Abort()
}

// Require lets the request through only when the employee's role may
// perform action on resource
func (h *Handler) Require(action auth.Action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.Can(role(c), action, resource) {
			c.Next()
			return
		}
		err := apperr.NewPermissionDeniedError(string(action), resource)
		if isAPI(c) {
			h.jsonError(c, err)
			return
		}
		h.pageError(c, http.StatusForbidden, "error", "権限がありません", apperr.Message(err), nil)
		c.Abort()
	}
}

// NewLoginLimiter builds the in-memory limiter for login attempts from a
// rate such as "10-M"
func NewLoginLimiter(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}

// LoginRateLimit throttles POST /login per client IP
func (h *Handler) LoginRateLimit(l *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := l.Get(c.Request.Context(), "login:"+c.ClientIP())
		if err != nil {
			h.logger.Warn("rate limiter failed", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))
		if ctx.Reached {
			h.logger.Warn("login rate limit reached", zap.String("client_ip", c.ClientIP()))
			h.pageError(c, http.StatusTooManyRequests, "login", "ログイン",
				"ログインの試行回数が多すぎます。しばらくしてから再度お試しください",
				map[string]any{"Email": c.PostForm("email")})
			c.Abort()
			return
		}
		c.Next()
	}
}
