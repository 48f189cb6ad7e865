package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/database/dbtest"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompany struct {
	profile config.CompanyProfile
	rate    string
}

func (f fakeCompany) Company() config.CompanyProfile { return f.profile }
func (f fakeCompany) TaxRate() string                { return f.rate }

func line(qty, price string) models.InvoiceLine {
	return models.InvoiceLine{Quantity: decimal.RequireFromString(qty), UnitPrice: decimal.RequireFromString(price)}
}

func TestComputeTotals(t *testing.T) {
	lines := []models.InvoiceLine{
		line("1", "250000"),
		line("2.5", "3333"),
		line("0.5", "99"),
	}
	subtotal, tax, total := ComputeTotals(lines, decimal.RequireFromString("0.10"))

	assert.Equal(t, "250000", lines[0].Amount.String())
	assert.Equal(t, "8332", lines[1].Amount.String())
	assert.Equal(t, "49", lines[2].Amount.String())
	assert.Equal(t, "258381", subtotal.String())
	assert.Equal(t, "25838", tax.String())
	assert.Equal(t, "284219", total.String())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.InvoiceDraft, models.InvoiceIssued, true},
		{models.InvoiceIssued, models.InvoicePaid, true},
		{models.InvoiceDraft, models.InvoiceVoid, true},
		{models.InvoiceIssued, models.InvoiceVoid, true},
		{models.InvoiceDraft, models.InvoicePaid, false},
		{models.InvoicePaid, models.InvoiceVoid, false},
		{models.InvoiceVoid, models.InvoiceIssued, false},
		{models.InvoiceIssued, models.InvoiceDraft, false},
		{models.InvoiceDraft, "cancelled", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}

	assert.Equal(t, []string{models.InvoiceIssued, models.InvoiceVoid}, Transitions(models.InvoiceDraft))
	assert.Equal(t, []string{models.InvoicePaid, models.InvoiceVoid}, Transitions(models.InvoiceIssued))
	assert.Empty(t, Transitions(models.InvoicePaid))
}

func TestInvoiceEngine_CreateDefaultsFromProjectAndCompany(t *testing.T) {
	db, mock := dbtest.New(t)
	company := fakeCompany{
		profile: config.CompanyProfile{Name: "山田測量事務所", RegistrationNumber: "T1234567890123"},
		rate:    "0.10",
	}
	e := NewInvoiceEngine(db, company)
	projectID, accountID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "account_id", "contact_id"}).
			AddRow(projectID.String(), "SV-2024-001", accountID.String(), nil))
	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(accountID.String(), "山田商事"))
	mock.ExpectQuery(`SELECT "invoice_number" FROM "invoices" WHERE invoice_number LIKE \$1`).
		WithArgs("INV-202406-%").
		WillReturnRows(sqlmock.NewRows([]string{"invoice_number"}).AddRow("INV-202406-0007"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "invoices" WHERE "invoice_number" = \$1`).
		WithArgs("INV-202406-0008").
		WillReturnRows(countRows(0))
	mock.ExpectExec(`INSERT INTO "invoices"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "invoice_lines"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "invoice_lines"`).WillReturnResult(sqlmock.NewResult(0, 1))

	inv, err := e.Create(context.Background(), InvoiceInput{
		ProjectID: projectID.String(),
		IssueDate: "2024-06-30",
		Lines: []LineInput{
			{Description: "境界確定測量", UnitPrice: "300,000"},
			{},
			{Description: "交通費", Quantity: "2", UnitPrice: "1500"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-202406-0008", inv.InvoiceNumber)
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, "山田測量事務所", inv.IssuerName)
	assert.Equal(t, "T1234567890123", inv.RegistrationNumber)
	require.NotNil(t, inv.AccountID)
	assert.Equal(t, accountID, *inv.AccountID)
	assert.Nil(t, inv.ContactID)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "1", inv.Lines[0].Quantity.String())
	assert.Equal(t, "303000", inv.Subtotal.String())
	assert.Equal(t, "30300", inv.Tax.String())
	assert.Equal(t, "333300", inv.Total.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceEngine_CreateRejectsBadInput(t *testing.T) {
	projectID := uuid.New()
	tests := []struct {
		name    string
		in      InvoiceInput
		wantErr string
	}{
		{"no lines", InvoiceInput{IssueDate: "2024-06-01"}, "明細を1行以上入力してください"},
		{"percent tax rate", InvoiceInput{IssueDate: "2024-06-01", TaxRate: "10"}, "税率は0.10のように小数で入力してください"},
		{"due before issue", InvoiceInput{IssueDate: "2024-06-01", DueDate: "2024-05-31"}, "支払期限は発行日以降を指定してください"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := dbtest.New(t)
			e := NewInvoiceEngine(db, fakeCompany{rate: "0.10"})
			mock.ExpectQuery(`SELECT \* FROM "projects"`).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(projectID.String()))

			tt.in.ProjectID = projectID.String()
			_, err := e.Create(context.Background(), tt.in)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestInvoiceEngine_UpdateOnlyDrafts(t *testing.T) {
	db, mock := dbtest.New(t)
	e := NewInvoiceEngine(db, fakeCompany{rate: "0.10"})
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "issue_date"}).
			AddRow(id.String(), models.InvoiceIssued, time.Now()))

	_, err := e.Update(context.Background(), id, InvoiceInput{})
	assert.EqualError(t, err, "下書き以外の請求書は編集できません")
	assert.NoError(t, mock.ExpectationsWereMet())
}
