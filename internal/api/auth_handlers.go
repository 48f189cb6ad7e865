package api

import (
	"net/http"
	"strings"

	"github.com/aethra/daicho/internal/auth"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// setSession stores the signed token in the session cookie
func (h *Handler) setSession(c *gin.Context, token *auth.Token) {
	maxAge := int(token.ExpiresAt.Sub(h.now()).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token.Value, maxAge, "/", "", h.secureCookie, true)
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", h.secureCookie, true)
}

// LoginPage shows the sign-in form, or the first-run setup when nobody
// can sign in yet
// GET /login
func (h *Handler) LoginPage(c *gin.Context) {
	count, err := h.svc.Employees.Count(c.Request.Context())
	if err != nil {
		h.notFound(c, err)
		return
	}
	if count == 0 {
		c.Redirect(http.StatusSeeOther, "/setup")
		return
	}
	h.page(c, http.StatusOK, "login", "ログイン", "", map[string]any{
		"Email": c.Query("email"),
	})
}

// Login authenticates an employee and starts a session
// POST /login
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	email := strings.TrimSpace(c.PostForm("email"))

	emp, err := h.svc.Employees.Authenticate(ctx, email, c.PostForm("password"))
	if err != nil {
		h.logError(c, err)
		h.pageError(c, http.StatusUnauthorized, "login", "ログイン", apperr.Message(err),
			map[string]any{"Email": email})
		return
	}

	token, err := h.tokens.Generate(emp.ID, emp.Email, string(emp.Role))
	if err != nil {
		h.fail(c, err, "/login")
		return
	}
	if err := h.svc.Employees.TouchLogin(ctx, emp.ID, h.now()); err != nil {
		h.logger.Warn("failed to record login time", zap.Error(err), zap.String("employee_id", emp.ID.String()))
	}

	h.logger.Info("employee signed in", zap.String("employee_id", emp.ID.String()), zap.String("client_ip", c.ClientIP()))
	h.setSession(c, token)
	c.Redirect(http.StatusSeeOther, "/")
}

// Logout revokes the current token and clears the cookie
// POST /logout
func (h *Handler) Logout(c *gin.Context) {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok && claims.ExpiresAt != nil {
			if err := h.revoker.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				h.logger.Warn("failed to revoke token", zap.Error(err))
			}
		}
	}
	h.clearSession(c)
	h.done(c, "ログアウトしました", "/login")
}
