package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// setupDone reports whether the first employee already exists. Setup is
// only reachable before that.
func (h *Handler) setupDone(c *gin.Context) (bool, error) {
	count, err := h.svc.Employees.Count(c.Request.Context())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetupPage serves the first-run form
// GET /setup
func (h *Handler) SetupPage(c *gin.Context) {
	done, err := h.setupDone(c)
	if err != nil {
		h.notFound(c, err)
		return
	}
	if done {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	h.page(c, http.StatusOK, "setup", "初期設定", "", nil)
}

// Setup stores the company profile and creates the first admin
// POST /setup
func (h *Handler) Setup(c *gin.Context) {
	done, err := h.setupDone(c)
	if err != nil {
		h.fail(c, err, "/setup")
		return
	}
	if done {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	company := config.CompanyProfile{
		Name:               strings.TrimSpace(c.PostForm("company_name")),
		PostalCode:         strings.TrimSpace(c.PostForm("company_postal_code")),
		Address:            strings.TrimSpace(c.PostForm("company_address")),
		Phone:              strings.TrimSpace(c.PostForm("company_phone")),
		RegistrationNumber: strings.TrimSpace(c.PostForm("company_registration_number")),
		BankAccount:        strings.TrimSpace(c.PostForm("company_bank_account")),
	}
	if company.Name == "" {
		h.fail(c, apperr.NewValidationError("company_name", "事業者名は必須です"), "/setup")
		return
	}
	if company.RegistrationNumber != "" && !config.ValidRegistrationNumber(company.RegistrationNumber) {
		h.fail(c, apperr.NewValidationError("company_registration_number",
			"登録番号は T に続く13桁の数字で入力してください"), "/setup")
		return
	}
	if company.PostalCode != "" {
		code, err := engine.NormalizePostalCode(company.PostalCode)
		if err != nil {
			h.fail(c, err, "/setup")
			return
		}
		company.PostalCode = code
	}

	emp, err := h.svc.Employees.Create(c.Request.Context(), engine.EmployeeInput{
		Code:      c.PostForm("code"),
		LastName:  c.PostForm("last_name"),
		FirstName: c.PostForm("first_name"),
		Email:     c.PostForm("email"),
		Password:  c.PostForm("password"),
		Role:      string(models.RoleAdmin),
		IsActive:  true,
	})
	if err != nil {
		h.fail(c, err, "/setup")
		return
	}
	if err := h.svc.Settings.SaveCompany(company); err != nil {
		h.fail(c, apperr.NewInternalError(err), "/login")
		return
	}

	h.logger.Info("initial setup completed", zap.String("employee_id", emp.ID.String()))
	h.done(c, "初期設定が完了しました。ログインしてください", "/login?email="+url.QueryEscape(emp.Email))
}
