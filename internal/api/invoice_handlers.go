package api

import (
	"net/http"
	"strings"

	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// lineInputs collects the invoice line rows. Rows without a description
// are dropped.
func lineInputs(c *gin.Context) []engine.LineInput {
	descriptions := c.PostFormArray("line_description")
	quantities := c.PostFormArray("line_quantity")
	units := c.PostFormArray("line_unit")
	prices := c.PostFormArray("line_unit_price")

	var out []engine.LineInput
	for i, d := range descriptions {
		if strings.TrimSpace(d) == "" {
			continue
		}
		out = append(out, engine.LineInput{
			Description: d,
			Quantity:    formAt(quantities, i),
			Unit:        formAt(units, i),
			UnitPrice:   formAt(prices, i),
		})
	}
	return out
}

func (h *Handler) bindInvoice(c *gin.Context, back string) (engine.InvoiceInput, bool) {
	var in engine.InvoiceInput
	if !h.bindForm(c, &in, back) {
		return in, false
	}
	in.Lines = lineInputs(c)
	return in, true
}

// ListInvoices shows invoices matching the filter query
// GET /invoices
func (h *Handler) ListInvoices(c *gin.Context) {
	var f engine.InvoiceFilter
	if !h.bindQuery(c, &f) {
		return
	}
	result, err := h.svc.Invoices.List(c.Request.Context(), f)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "invoices", "請求書", "invoices", map[string]any{
		"Filter": f,
		"Result": result,
		"Query":  c.Request.URL.RawQuery,
	})
}

// ShowInvoice shows an invoice with its lines and the allowed status changes
// GET /invoices/:id
func (h *Handler) ShowInvoice(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	inv, err := h.svc.Invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "invoice_detail", inv.InvoiceNumber, "invoices", map[string]any{
		"Invoice":     inv,
		"Transitions": engine.Transitions(inv.Status),
		"TaxPercent":  inv.TaxRate.Mul(hundred).String(),
	})
}

func (h *Handler) invoiceForm(c *gin.Context, title string, inv *models.Invoice, action, cancel string) {
	data := map[string]any{
		"Invoice": inv,
		"Action":  action,
		"Cancel":  cancel,
	}
	if err := h.pickerData(c, data, true, true, false, true); err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "invoice_form", title, "invoices", data)
}

// NewInvoice shows an empty invoice. ?project_id preselects the project and
// its customer.
// GET /invoices/new
func (h *Handler) NewInvoice(c *gin.Context) {
	rate, err := decimal.NewFromString(h.svc.Settings.TaxRate())
	if err != nil {
		rate = decimal.RequireFromString("0.10")
	}
	inv := &models.Invoice{
		Status:    models.InvoiceDraft,
		IssueDate: h.now().In(engine.JST),
		TaxRate:   rate,
	}
	cancel := "/invoices"
	if projectID := optionalID(c.Query("project_id")); projectID != nil {
		project, err := h.svc.Projects.Get(c.Request.Context(), *projectID)
		if err != nil {
			h.notFound(c, err)
			return
		}
		inv.ProjectID = project.ID
		inv.AccountID = project.AccountID
		inv.ContactID = project.ContactID
		cancel = "/projects/" + project.ID.String()
	}
	h.invoiceForm(c, "請求書の作成", inv, "/invoices", cancel)
}

// EditInvoice shows the form for a draft invoice
// GET /invoices/:id/edit
func (h *Handler) EditInvoice(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	inv, err := h.svc.Invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	if inv.Status != models.InvoiceDraft {
		h.fail(c, apperr.NewValidationError("status", "下書き以外の請求書は編集できません"), "/invoices/"+id.String())
		return
	}
	h.invoiceForm(c, "請求書の編集", inv, "/invoices/"+id.String(), "/invoices/"+id.String())
}

// CreateInvoice saves a new draft invoice
// POST /invoices
func (h *Handler) CreateInvoice(c *gin.Context) {
	back := "/invoices/new"
	if projectID := optionalID(c.PostForm("project_id")); projectID != nil {
		back += "?project_id=" + projectID.String()
	}
	in, ok := h.bindInvoice(c, back)
	if !ok {
		return
	}
	inv, err := h.svc.Invoices.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "請求書を作成しました", "/invoices/"+inv.ID.String())
}

// UpdateInvoice saves changes to a draft invoice
// POST /invoices/:id
func (h *Handler) UpdateInvoice(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/invoices/" + id.String() + "/edit"
	in, ok := h.bindInvoice(c, back)
	if !ok {
		return
	}
	if _, err := h.svc.Invoices.Update(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "請求書を更新しました", "/invoices/"+id.String())
}

// SetInvoiceStatus issues, settles or voids an invoice
// POST /invoices/:id/status
func (h *Handler) SetInvoiceStatus(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/invoices/" + id.String()
	inv, err := h.svc.Invoices.SetStatus(c.Request.Context(), id, c.PostForm("status"))
	if err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "状態を「"+models.StatusLabel(inv.Status)+"」に変更しました", back)
}

// DeleteInvoice soft-deletes an invoice
// POST /invoices/:id/delete
func (h *Handler) DeleteInvoice(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if err := h.svc.Invoices.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/invoices/"+id.String())
		return
	}
	h.done(c, "請求書を削除しました", "/invoices")
}
