// Package api serves the back-office pages, form actions and JSON widgets
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/aethra/daicho/internal/ui"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves every route. Pages render through the gin HTML renderer,
// which must be a *ui.Renderer.
type Handler struct {
	svc          Services
	tokens       *auth.JWTService
	revoker      auth.Revoker
	logger       *zap.Logger
	secureCookie bool
	now          func() time.Time
}

// NewHandler creates the HTTP handler
func NewHandler(svc Services, tokens *auth.JWTService, revoker auth.Revoker, logger *zap.Logger, secureCookie bool) *Handler {
	return &Handler{
		svc:          svc,
		tokens:       tokens,
		revoker:      revoker,
		logger:       logger,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// Health returns the health status
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "daicho",
		"time":    h.now().In(engine.JST).Format(time.RFC3339),
	})
}

// NoRoute answers unknown paths
func (h *Handler) NoRoute(c *gin.Context) {
	err := apperr.NewNotFoundError("ページ")
	if isAPI(c) {
		h.jsonError(c, err)
		return
	}
	h.page(c, http.StatusNotFound, "error", err.Error(), "", nil)
}

// =============================================================================
// RENDERING
// =============================================================================

// page renders a full HTML page with the layout, the signed-in employee and
// any pending flash message
func (h *Handler) page(c *gin.Context, status int, name, title, active string, data map[string]any) {
	c.HTML(status, name, h.view(c, title, active, data))
}

// pageError renders a page with msg shown as an error, without a redirect
func (h *Handler) pageError(c *gin.Context, status int, name, title, msg string, data map[string]any) {
	view := h.view(c, title, "", data)
	view.Flash = msg
	c.HTML(status, name, view)
}

func (h *Handler) view(c *gin.Context, title, active string, data map[string]any) ui.View {
	if data == nil {
		data = map[string]any{}
	}
	view := ui.View{
		Title:   title,
		Active:  active,
		User:    viewer(c),
		Company: h.svc.Settings.Company().Name,
		Data:    data,
	}
	switch kind, msg := takeFlash(c, h.secureCookie); kind {
	case flashError:
		view.Flash = msg
	case flashNotice:
		view.Notice = msg
	}
	return view
}

// fail sends the user back to target with err as the flash message
func (h *Handler) fail(c *gin.Context, err error, target string) {
	h.logError(c, err)
	setFlash(c, flashError, apperr.Message(err), h.secureCookie)
	c.Redirect(http.StatusSeeOther, target)
}

// done redirects to target with a success notice
func (h *Handler) done(c *gin.Context, notice, target string) {
	if notice != "" {
		setFlash(c, flashNotice, notice, h.secureCookie)
	}
	c.Redirect(http.StatusSeeOther, target)
}

// notFound renders the error page for a failed lookup
func (h *Handler) notFound(c *gin.Context, err error) {
	h.logError(c, err)
	status := http.StatusInternalServerError
	var ae apperr.AppError
	if errors.As(err, &ae) {
		status = ae.HTTPStatus()
	}
	h.page(c, status, "error", apperr.Message(err), "", nil)
}

// jsonError writes err as {"error": message, "code": code}
func (h *Handler) jsonError(c *gin.Context, err error) {
	h.logError(c, err)
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	var ae apperr.AppError
	if errors.As(err, &ae) {
		status = ae.HTTPStatus()
		code = ae.Code()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "code": code})
}

// logError logs server-side failures; user mistakes are logged at debug
func (h *Handler) logError(c *gin.Context, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	}
	if emp := currentEmployee(c); emp != nil {
		fields = append(fields, zap.String("employee_id", emp.ID.String()))
	}
	var internal *apperr.InternalError
	if errors.As(err, &internal) || !isAppError(err) {
		h.logger.Error("request failed", fields...)
		return
	}
	h.logger.Debug("request rejected", fields...)
}

func isAppError(err error) bool {
	var ae apperr.AppError
	return errors.As(err, &ae)
}

// =============================================================================
// HELPERS
// =============================================================================

// paramID parses the uuid path parameter name
func paramID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.NewNotFoundError("ページ")
	}
	return id, nil
}

// optionalID parses an optional uuid query or form value
func optionalID(value string) *uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		return nil
	}
	return &id
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

// currentEmployee returns the employee loaded by the session middleware
func currentEmployee(c *gin.Context) *models.Employee {
	if v, ok := c.Get(employeeKey); ok {
		if emp, ok := v.(*models.Employee); ok {
			return emp
		}
	}
	return nil
}

// actor returns the signed-in employee as an engine actor
func actor(c *gin.Context) engine.Actor {
	emp := currentEmployee(c)
	if emp == nil {
		return engine.Actor{}
	}
	return engine.Actor{ID: emp.ID, Admin: emp.IsAdmin()}
}

// viewer returns the signed-in employee for templates, nil when anonymous
func viewer(c *gin.Context) *ui.Viewer {
	emp := currentEmployee(c)
	if emp == nil {
		return nil
	}
	return &ui.Viewer{ID: emp.ID, Name: emp.FullName(), Email: emp.Email, Role: string(emp.Role)}
}

// role returns the signed-in employee's role
func role(c *gin.Context) string {
	if emp := currentEmployee(c); emp != nil {
		return string(emp.Role)
	}
	return ""
}

// pickerData loads the option lists shared by several forms
func (h *Handler) pickerData(c *gin.Context, data map[string]any, accounts, contacts, employees, projects bool) error {
	ctx := c.Request.Context()
	if accounts {
		list, err := h.svc.Accounts.All(ctx, engine.AccountFilter{})
		if err != nil {
			return err
		}
		data["Accounts"] = list
	}
	if contacts {
		list, err := h.svc.Contacts.All(ctx, engine.ContactFilter{})
		if err != nil {
			return err
		}
		data["Contacts"] = list
	}
	if employees {
		list, err := h.svc.Employees.Active(ctx)
		if err != nil {
			return err
		}
		data["Employees"] = list
	}
	if projects {
		list, err := h.svc.Projects.Options(ctx)
		if err != nil {
			return err
		}
		data["Projects"] = list
	}
	return nil
}
