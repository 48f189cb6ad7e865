package export

import (
	"time"

	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006/01/02"

var hundred = decimal.NewFromInt(100)

// AccountHeader is the column row of the account export
var AccountHeader = []string{
	"取引先コード", "取引先名", "フリガナ", "郵便番号", "住所", "電話番号", "FAX",
	"メールアドレス", "Webサイト", "業種", "備考", "登録日",
}

// AccountRows converts accounts to CSV rows
func AccountRows(accounts []models.Account) [][]string {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []string{
			a.Code, a.Name, a.NameKana, a.PostalCode, a.Address, a.Phone, a.Fax,
			a.Email, a.Website, a.Industry, a.Notes, date(a.CreatedAt),
		})
	}
	return rows
}

// ContactHeader is the column row of the contact export
var ContactHeader = []string{
	"氏名", "フリガナ", "取引先", "支店", "部署", "役職", "メールアドレス",
	"電話番号", "携帯電話", "郵便番号", "住所", "主担当", "備考",
}

// ContactRows converts contacts, with Account and Branch loaded, to CSV rows.
// Individual customers have an empty account column.
func ContactRows(contacts []models.Contact) [][]string {
	rows := make([][]string, 0, len(contacts))
	for _, c := range contacts {
		var account, branch string
		if c.Account != nil {
			account = c.Account.Name
		}
		if c.Branch != nil {
			branch = c.Branch.Name
		}
		kana := c.LastNameKana
		if c.FirstNameKana != "" {
			kana += " " + c.FirstNameKana
		}
		rows = append(rows, []string{
			c.FullName(), kana, account, branch, c.Department, c.Position, c.Email,
			c.Phone, c.Mobile, c.PostalCode, c.Address, flag(c.IsPrimary), c.Notes,
		})
	}
	return rows
}

// InvoiceHeader is the column row of the invoice export
var InvoiceHeader = []string{
	"請求書番号", "発行日", "支払期限", "案件コード", "案件名", "請求先", "ステータス",
	"小計", "税率", "消費税", "合計", "登録番号",
}

// InvoiceRows converts invoices, with Project and Account loaded, to rows
func InvoiceRows(invoices []models.Invoice) [][]string {
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.InvoiceNumber,
			date(inv.IssueDate),
			optionalDate(inv.DueDate),
			projectCode(inv),
			projectName(inv),
			recipient(inv),
			models.StatusLabel(inv.Status),
			inv.Subtotal.String(),
			inv.TaxRate.Mul(hundred).String() + "%",
			inv.Tax.String(),
			inv.Total.String(),
			inv.RegistrationNumber,
		})
	}
	return rows
}

func recipient(inv models.Invoice) string {
	if inv.Account != nil {
		return inv.Account.Name
	}
	if inv.Contact != nil {
		return inv.Contact.FullName()
	}
	return ""
}

func projectCode(inv models.Invoice) string {
	if inv.Project == nil {
		return ""
	}
	return inv.Project.Code
}

func projectName(inv models.Invoice) string {
	if inv.Project == nil {
		return ""
	}
	return inv.Project.Name
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(engine.JST).Format(dateLayout)
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return date(*t)
}

func flag(b bool) string {
	if b {
		return "○"
	}
	return ""
}
