package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aethra/daicho/internal/config"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CompanySource provides the issuing business printed on invoices
type CompanySource interface {
	Company() config.CompanyProfile
	TaxRate() string
}

// InvoiceFilter narrows an invoice listing
type InvoiceFilter struct {
	Page
	Search     string `form:"q"`
	Status     string `form:"status"`
	ProjectID  string `form:"project_id"`
	AccountID  string `form:"account_id"`
	IssuedFrom string `form:"from"`
	IssuedTo   string `form:"to"`
}

// LineInput is one invoice line from the form
type LineInput struct {
	Description string `form:"description" json:"description"`
	Quantity    string `form:"quantity" json:"quantity"`
	Unit        string `form:"unit" json:"unit"`
	UnitPrice   string `form:"unit_price" json:"unit_price"`
}

// InvoiceInput is the invoice form. An empty InvoiceNumber is assigned
// automatically; empty recipient fields default to the project's customer.
type InvoiceInput struct {
	ProjectID     string `form:"project_id" json:"project_id"`
	InvoiceNumber string `form:"invoice_number" json:"invoice_number"`
	AccountID     string `form:"account_id" json:"account_id"`
	ContactID     string `form:"contact_id" json:"contact_id"`
	IssueDate     string `form:"issue_date" json:"issue_date"`
	DueDate       string `form:"due_date" json:"due_date"`
	TaxRate       string `form:"tax_rate" json:"tax_rate"`
	Notes         string `form:"notes" json:"notes"`

	Lines []LineInput `form:"-" json:"lines"`
}

// InvoiceEngine manages invoices and their lines
type InvoiceEngine struct {
	db       *gorm.DB
	invoices *Records[models.Invoice]
	lines    *Records[models.InvoiceLine]
	projects *Records[models.Project]
	accounts *Records[models.Account]
	contacts *Records[models.Contact]
	company  CompanySource
}

// NewInvoiceEngine creates an invoice engine
func NewInvoiceEngine(db *gorm.DB, company CompanySource) *InvoiceEngine {
	return &InvoiceEngine{
		db: db,
		invoices: NewRecords[models.Invoice](db, "請求書",
			[]string{"invoice_number", "notes"},
			[]string{"invoice_number", "issue_date", "due_date", "status", "total", "created_at"},
			"issue_date DESC, invoice_number DESC"),
		lines:    NewRecords[models.InvoiceLine](db, "請求明細", nil, nil, "sort_order ASC"),
		projects: NewRecords[models.Project](db, "案件", nil, nil, ""),
		accounts: NewRecords[models.Account](db, "取引先", nil, nil, ""),
		contacts: NewRecords[models.Contact](db, "担当者", nil, nil, ""),
		company:  company,
	}
}

func (e *InvoiceEngine) filters(f InvoiceFilter) ([]Scope, error) {
	filters := []Scope{e.invoices.Search(f.Search)}
	if f.Status != "" {
		status := f.Status
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) })
	}
	if f.ProjectID != "" {
		id, err := parseUUID("project_id", "案件", f.ProjectID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("project_id = ?", id) })
	}
	if f.AccountID != "" {
		id, err := parseUUID("account_id", "取引先", f.AccountID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("account_id = ?", id) })
	}
	if f.IssuedFrom != "" {
		from, err := parseDate("from", "発行日(から)", f.IssuedFrom)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("issue_date >= ?", from.Format(dateLayout)) })
	}
	if f.IssuedTo != "" {
		to, err := parseDate("to", "発行日(まで)", f.IssuedTo)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("issue_date <= ?", to.Format(dateLayout)) })
	}
	return filters, nil
}

// List returns a page of invoices
func (e *InvoiceEngine) List(ctx context.Context, f InvoiceFilter) (*ListResult[models.Invoice], error) {
	filters, err := e.filters(f)
	if err != nil {
		return nil, err
	}
	return e.invoices.List(ctx, f.Page, filters, preload("Project"), preload("Account"))
}

// All returns every invoice matching f with its lines, for exports
func (e *InvoiceEngine) All(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error) {
	filters, err := e.filters(f)
	if err != nil {
		return nil, err
	}
	return e.invoices.All(ctx, filters, preload("Project"), preload("Account"), preload("Contact"), linesPreload)
}

func linesPreload(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") })
}

// Get returns an invoice with its lines and parties
func (e *InvoiceEngine) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return e.invoices.Get(ctx, id, preload("Project"), preload("Account"), preload("Contact"), linesPreload)
}

// Create validates and inserts a draft invoice, then its lines
func (e *InvoiceEngine) Create(ctx context.Context, in InvoiceInput) (*models.Invoice, error) {
	inv := models.Invoice{Status: models.InvoiceDraft}
	inv.ID = uuid.New()
	lines, err := e.apply(ctx, &inv, in)
	if err != nil {
		return nil, err
	}
	if inv.InvoiceNumber == "" {
		num, err := e.NextNumber(ctx, inv.IssueDate)
		if err != nil {
			return nil, err
		}
		inv.InvoiceNumber = num
	}
	if err := e.checkNumber(ctx, inv.InvoiceNumber, uuid.Nil); err != nil {
		return nil, err
	}
	if err := e.invoices.Create(ctx, &inv); err != nil {
		return nil, err
	}
	for i := range lines {
		if err := e.lines.Create(ctx, &lines[i]); err != nil {
			return nil, err
		}
	}
	inv.Lines = lines
	return &inv, nil
}

// Update rewrites a draft invoice and replaces its lines, sequentially
func (e *InvoiceEngine) Update(ctx context.Context, id uuid.UUID, in InvoiceInput) (*models.Invoice, error) {
	inv, err := e.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft {
		return nil, apperr.NewValidationError("status", "下書き以外の請求書は編集できません")
	}
	lines, err := e.apply(ctx, inv, in)
	if err != nil {
		return nil, err
	}
	if inv.InvoiceNumber == "" {
		return nil, apperr.NewValidationError("invoice_number", "請求書番号は必須です")
	}
	if err := e.checkNumber(ctx, inv.InvoiceNumber, inv.ID); err != nil {
		return nil, err
	}
	if err := e.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	if err := e.lines.DeleteWhere(ctx, "invoice_id = ?", inv.ID); err != nil {
		return nil, err
	}
	for i := range lines {
		if err := e.lines.Create(ctx, &lines[i]); err != nil {
			return nil, err
		}
	}
	inv.Lines = lines
	return inv, nil
}

// Delete soft-deletes an invoice and its lines
func (e *InvoiceEngine) Delete(ctx context.Context, id uuid.UUID) error {
	if err := e.invoices.Delete(ctx, id); err != nil {
		return err
	}
	return e.lines.DeleteWhere(ctx, "invoice_id = ?", id)
}

// SetStatus moves an invoice along draft → issued → paid, or to void from
// anything but paid
func (e *InvoiceEngine) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Invoice, error) {
	inv, err := e.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(inv.Status, status) {
		return nil, apperr.NewValidationError("status",
			fmt.Sprintf("「%s」から「%s」には変更できません", models.StatusLabel(inv.Status), models.StatusLabel(status)))
	}
	if err := e.invoices.Query(ctx).Where("id = ?", id).UpdateColumn("status", status).Error; err != nil {
		return nil, apperr.FromDB(err, "請求書")
	}
	inv.Status = status
	return inv, nil
}

// NextNumber returns the next free INV-YYYYMM-NNNN for the JST month of
// issued. Deleted invoices keep their numbers.
func (e *InvoiceEngine) NextNumber(ctx context.Context, issued time.Time) (string, error) {
	prefix := "INV-" + issued.In(JST).Format("200601") + "-"
	var numbers []string
	err := e.db.WithContext(ctx).Unscoped().Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Pluck("invoice_number", &numbers).Error
	if err != nil {
		return "", apperr.FromDB(err, "請求書")
	}
	return fmt.Sprintf("%s%04d", prefix, nextSequence(numbers, prefix)), nil
}

func (e *InvoiceEngine) apply(ctx context.Context, inv *models.Invoice, in InvoiceInput) ([]models.InvoiceLine, error) {
	projectID, err := parseUUID("project_id", "案件", in.ProjectID)
	if err != nil {
		return nil, err
	}
	project, err := e.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	issue, err := parseDate("issue_date", "発行日", in.IssueDate)
	if err != nil {
		return nil, err
	}
	due, err := parseOptionalDate("due_date", "支払期限", in.DueDate)
	if err != nil {
		return nil, err
	}
	if due != nil && due.Before(issue) {
		return nil, apperr.NewValidationError("due_date", "支払期限は発行日以降を指定してください")
	}
	rateText := trim(in.TaxRate)
	if rateText == "" {
		rateText = e.company.TaxRate()
	}
	rate, err := parseDecimal("tax_rate", "税率", rateText)
	if err != nil {
		return nil, err
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, apperr.NewValidationError("tax_rate", "税率は0.10のように小数で入力してください")
	}

	accountID, err := parseOptionalUUID("account_id", "請求先", in.AccountID)
	if err != nil {
		return nil, err
	}
	contactID, err := parseOptionalUUID("contact_id", "宛名", in.ContactID)
	if err != nil {
		return nil, err
	}
	if accountID == nil {
		accountID = project.AccountID
	}
	if contactID == nil {
		contactID = project.ContactID
	}
	if accountID != nil {
		if _, err := e.accounts.Get(ctx, *accountID); err != nil {
			return nil, err
		}
	}
	if contactID != nil {
		if _, err := e.contacts.Get(ctx, *contactID); err != nil {
			return nil, err
		}
	}

	lines := make([]models.InvoiceLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if trim(l.Description) == "" && trim(l.Quantity) == "" && trim(l.UnitPrice) == "" {
			continue
		}
		if err := required("lines.description", "明細の品名", l.Description); err != nil {
			return nil, err
		}
		qtyText := l.Quantity
		if trim(qtyText) == "" {
			qtyText = "1"
		}
		qty, err := parseDecimal("lines.quantity", "数量", qtyText)
		if err != nil {
			return nil, err
		}
		price, err := parseDecimal("lines.unit_price", "単価", l.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, models.InvoiceLine{
			InvoiceID:   inv.ID,
			Description: trim(l.Description),
			Quantity:    qty,
			Unit:        trim(l.Unit),
			UnitPrice:   price,
			SortOrder:   len(lines),
		})
	}
	if len(lines) == 0 {
		return nil, apperr.NewValidationError("lines", "明細を1行以上入力してください")
	}

	company := e.company.Company()
	inv.ProjectID = projectID
	inv.InvoiceNumber = trim(in.InvoiceNumber)
	inv.IssuerName = company.Name
	inv.RegistrationNumber = company.RegistrationNumber
	inv.AccountID = accountID
	inv.ContactID = contactID
	inv.IssueDate = issue
	inv.DueDate = due
	inv.TaxRate = rate
	inv.Notes = in.Notes
	inv.Subtotal, inv.Tax, inv.Total = ComputeTotals(lines, rate)
	return lines, nil
}

func (e *InvoiceEngine) checkNumber(ctx context.Context, number string, except uuid.UUID) error {
	taken, err := e.invoices.Taken(ctx, "invoice_number", number, except)
	if err != nil {
		return err
	}
	if taken {
		return apperr.NewConflictError("請求書番号「" + number + "」")
	}
	return nil
}

// ComputeTotals sets each line's amount (quantity × unit price, yen rounded
// down) and returns subtotal, tax rounded down, and total
func ComputeTotals(lines []models.InvoiceLine, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for i := range lines {
		lines[i].Amount = lines[i].Quantity.Mul(lines[i].UnitPrice).Floor()
		subtotal = subtotal.Add(lines[i].Amount)
	}
	tax = subtotal.Mul(taxRate).Floor()
	total = subtotal.Add(tax)
	return subtotal, tax, total
}

// canTransition reports whether an invoice may move from one status to another
func canTransition(from, to string) bool {
	switch to {
	case models.InvoiceIssued:
		return from == models.InvoiceDraft
	case models.InvoicePaid:
		return from == models.InvoiceIssued
	case models.InvoiceVoid:
		return from == models.InvoiceDraft || from == models.InvoiceIssued
	default:
		return false
	}
}

// Transitions lists the statuses an invoice in status from may move to
func Transitions(from string) []string {
	var out []string
	for _, to := range []string{models.InvoiceIssued, models.InvoicePaid, models.InvoiceVoid} {
		if canTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}
