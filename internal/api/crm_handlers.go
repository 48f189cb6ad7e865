package api

import (
	"net/http"
	"strings"

	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bindQuery binds list filters, rendering the error page on bad input
func (h *Handler) bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		h.notFound(c, apperr.NewBadRequestError("検索条件が正しくありません"))
		return false
	}
	return true
}

// bindForm binds a posted form, redirecting to target on bad input
func (h *Handler) bindForm(c *gin.Context, dst any, target string) bool {
	if err := c.ShouldBind(dst); err != nil {
		h.fail(c, apperr.NewBadRequestError("入力内容が正しくありません"), target)
		return false
	}
	return true
}

func formAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// branchInputs collects the branch rows of the account form. Rows without a
// name are dropped.
func branchInputs(c *gin.Context) []engine.BranchInput {
	names := c.PostFormArray("branch_name")
	postal := c.PostFormArray("branch_postal_code")
	address := c.PostFormArray("branch_address")
	phone := c.PostFormArray("branch_phone")

	var out []engine.BranchInput
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, engine.BranchInput{
			Name:       name,
			PostalCode: formAt(postal, i),
			Address:    formAt(address, i),
			Phone:      formAt(phone, i),
		})
	}
	return out
}

// ListAccounts shows the account list
// GET /accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	var f engine.AccountFilter
	if !h.bindQuery(c, &f) {
		return
	}
	ctx := c.Request.Context()
	result, err := h.svc.Accounts.List(ctx, f)
	if err != nil {
		h.notFound(c, err)
		return
	}
	industries, err := h.svc.Accounts.Industries(ctx)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "accounts", "取引先", "accounts", map[string]any{
		"Filter":     f,
		"Industries": industries,
		"Result":     result,
		"Query":      c.Request.URL.RawQuery,
	})
}

// ShowAccount shows one account with its branches and contacts
// GET /accounts/:id
func (h *Handler) ShowAccount(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	account, err := h.svc.Accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "account_detail", account.Name, "accounts", map[string]any{"Account": account})
}

// NewAccount shows an empty account form
// GET /accounts/new
func (h *Handler) NewAccount(c *gin.Context) {
	h.page(c, http.StatusOK, "account_form", "取引先の登録", "accounts", map[string]any{
		"Account": &models.Account{},
		"Action":  "/accounts",
		"Cancel":  "/accounts",
	})
}

// EditAccount shows the account form filled in
// GET /accounts/:id/edit
func (h *Handler) EditAccount(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	account, err := h.svc.Accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "account_form", "取引先の編集", "accounts", map[string]any{
		"Account": account,
		"Action":  "/accounts/" + id.String(),
		"Cancel":  "/accounts/" + id.String(),
	})
}

// CreateAccount saves a new account
// POST /accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var in engine.AccountInput
	if !h.bindForm(c, &in, "/accounts/new") {
		return
	}
	in.Branches = branchInputs(c)
	account, err := h.svc.Accounts.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "/accounts/new")
		return
	}
	h.done(c, "取引先を登録しました", "/accounts/"+account.ID.String())
}

// UpdateAccount saves changes to an account and replaces its branches
// POST /accounts/:id
func (h *Handler) UpdateAccount(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/accounts/" + id.String() + "/edit"
	var in engine.AccountInput
	if !h.bindForm(c, &in, back) {
		return
	}
	in.Branches = branchInputs(c)
	if _, err := h.svc.Accounts.Update(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "取引先を更新しました", "/accounts/"+id.String())
}

// DeleteAccount soft-deletes an account
// POST /accounts/:id/delete
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if err := h.svc.Accounts.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/accounts/"+id.String())
		return
	}
	h.done(c, "取引先を削除しました", "/accounts")
}

// =============================================================================
// CONTACTS
// =============================================================================

// ListContacts shows the contact list
// GET /contacts
func (h *Handler) ListContacts(c *gin.Context) {
	var f engine.ContactFilter
	if !h.bindQuery(c, &f) {
		return
	}
	result, err := h.svc.Contacts.List(c.Request.Context(), f)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "contacts", "担当者", "contacts", map[string]any{
		"Filter": f,
		"Result": result,
		"Query":  c.Request.URL.RawQuery,
	})
}

// ShowContact shows one contact
// GET /contacts/:id
func (h *Handler) ShowContact(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	contact, err := h.svc.Contacts.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "contact_detail", contact.FullName(), "contacts", map[string]any{"Contact": contact})
}

// contactForm renders the contact form with the account picker and the
// branches of the selected account
func (h *Handler) contactForm(c *gin.Context, title string, contact *models.Contact, action, cancel string) {
	data := map[string]any{
		"Contact": contact,
		"Action":  action,
		"Cancel":  cancel,
	}
	if err := h.pickerData(c, data, true, false, false, false); err != nil {
		h.notFound(c, err)
		return
	}
	var branches []models.Branch
	if contact.AccountID != nil {
		account, err := h.svc.Accounts.Get(c.Request.Context(), *contact.AccountID)
		if err != nil && !apperr.IsNotFound(err) {
			h.notFound(c, err)
			return
		}
		if account != nil {
			branches = account.Branches
		}
	}
	data["Branches"] = branches
	h.page(c, http.StatusOK, "contact_form", title, "contacts", data)
}

// NewContact shows an empty contact form, preselecting ?account_id
// GET /contacts/new
func (h *Handler) NewContact(c *gin.Context) {
	contact := &models.Contact{AccountID: optionalID(c.Query("account_id"))}
	cancel := "/contacts"
	if contact.AccountID != nil {
		cancel = "/accounts/" + contact.AccountID.String()
	}
	h.contactForm(c, "担当者の登録", contact, "/contacts", cancel)
}

// EditContact shows the contact form filled in
// GET /contacts/:id/edit
func (h *Handler) EditContact(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	contact, err := h.svc.Contacts.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.contactForm(c, "担当者の編集", contact, "/contacts/"+id.String(), "/contacts/"+id.String())
}

// CreateContact saves a new contact
// POST /contacts
func (h *Handler) CreateContact(c *gin.Context) {
	var in engine.ContactInput
	back := "/contacts/new"
	if accountID := optionalID(c.PostForm("account_id")); accountID != nil {
		back += "?account_id=" + accountID.String()
	}
	if !h.bindForm(c, &in, back) {
		return
	}
	contact, err := h.svc.Contacts.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "担当者を登録しました", "/contacts/"+contact.ID.String())
}

// UpdateContact saves changes to a contact
// POST /contacts/:id
func (h *Handler) UpdateContact(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/contacts/" + id.String() + "/edit"
	var in engine.ContactInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if _, err := h.svc.Contacts.Update(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "担当者を更新しました", "/contacts/"+id.String())
}

// DeleteContact soft-deletes a contact
// POST /contacts/:id/delete
func (h *Handler) DeleteContact(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if err := h.svc.Contacts.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/contacts/"+id.String())
		return
	}
	h.done(c, "担当者を削除しました", "/contacts")
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// ListEmployees shows the staff list
// GET /employees
func (h *Handler) ListEmployees(c *gin.Context) {
	var p engine.Page
	if !h.bindQuery(c, &p) {
		return
	}
	search := c.Query("q")
	result, err := h.svc.Employees.List(c.Request.Context(), search, p)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "employees", "社員", "employees", map[string]any{
		"Search": search,
		"Result": result,
		"Query":  c.Request.URL.RawQuery,
	})
}

// NewEmployee shows an empty employee form
// GET /employees/new
func (h *Handler) NewEmployee(c *gin.Context) {
	h.page(c, http.StatusOK, "employee_form", "社員の登録", "employees", map[string]any{
		"Employee": &models.Employee{Role: models.RoleStaff, IsActive: true},
		"Action":   "/employees",
		"Editing":  false,
	})
}

// EditEmployee shows the employee form filled in
// GET /employees/:id/edit
func (h *Handler) EditEmployee(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	emp, err := h.svc.Employees.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "employee_form", emp.FullName(), "employees", map[string]any{
		"Employee": emp,
		"Action":   "/employees/" + id.String(),
		"Editing":  true,
	})
}

// CreateEmployee saves a new employee
// POST /employees
func (h *Handler) CreateEmployee(c *gin.Context) {
	var in engine.EmployeeInput
	if !h.bindForm(c, &in, "/employees/new") {
		return
	}
	if _, err := h.svc.Employees.Create(c.Request.Context(), in); err != nil {
		h.fail(c, err, "/employees/new")
		return
	}
	h.done(c, "社員を登録しました", "/employees")
}

// UpdateEmployee saves changes to an employee. A blank password keeps the
// current one.
// POST /employees/:id
func (h *Handler) UpdateEmployee(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/employees/" + id.String() + "/edit"
	var in engine.EmployeeInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if err := h.guardSelf(c, id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	if _, err := h.svc.Employees.Update(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "社員を更新しました", "/employees")
}

// guardSelf stops an admin from locking themselves out
func (h *Handler) guardSelf(c *gin.Context, id uuid.UUID, in engine.EmployeeInput) error {
	me := currentEmployee(c)
	if me == nil || me.ID != id {
		return nil
	}
	if !in.IsActive || models.Role(in.Role) != models.RoleAdmin {
		return apperr.NewValidationError("role", "自分自身の権限や有効状態は変更できません")
	}
	return nil
}

// DeleteEmployee soft-deletes an employee
// POST /employees/:id/delete
func (h *Handler) DeleteEmployee(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if me := currentEmployee(c); me != nil && me.ID == id {
		h.fail(c, apperr.NewValidationError("id", "自分自身は削除できません"), "/employees/"+id.String()+"/edit")
		return
	}
	if err := h.svc.Employees.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/employees/"+id.String()+"/edit")
		return
	}
	h.done(c, "社員を削除しました", "/employees")
}
