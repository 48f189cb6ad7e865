package export

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestParseEncoding(t *testing.T) {
	assert.Equal(t, ShiftJIS, ParseEncoding("Shift_JIS"))
	assert.Equal(t, ShiftJIS, ParseEncoding("sjis"))
	assert.Equal(t, UTF8BOM, ParseEncoding(""))
	assert.Equal(t, UTF8BOM, ParseEncoding("latin1"))
	assert.Equal(t, "text/csv; charset=Shift_JIS", ShiftJIS.ContentType())
}

func TestWriteCSV_UTF8BOM(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"名前", "備考"}, [][]string{{"山田, 太郎", "改行\nあり"}}, UTF8BOM)
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBF名前,備考\r\n\"山田, 太郎\",\"改行\r\nあり\"\r\n", buf.String())
}

func TestWriteCSV_ShiftJIS(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"取引先名"}, [][]string{{"株式会社高橋😀"}, {"山田測量"}}, ShiftJIS)
	require.NoError(t, err)

	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("\xEF\xBB\xBF")))
	decoded, err := io.ReadAll(transform.NewReader(&buf, japanese.ShiftJIS.NewDecoder()))
	require.NoError(t, err)
	// emoji have no Shift_JIS code point
	assert.Equal(t, "取引先名\r\n株式会社高橋?\r\n山田測量\r\n", string(decoded))
}

func TestRows(t *testing.T) {
	created := time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC)
	accounts := AccountRows([]models.Account{{Base: models.Base{CreatedAt: created}, Code: "A001", Name: "山田商事"}})
	require.Len(t, accounts, 1)
	assert.Len(t, accounts[0], len(AccountHeader))
	assert.Equal(t, "2024/04/01", accounts[0][11])

	contacts := ContactRows([]models.Contact{
		{LastName: "佐藤", FirstName: "花子", LastNameKana: "サトウ", FirstNameKana: "ハナコ", IsPrimary: true,
			Account: &models.Account{Name: "山田商事"}},
		{LastName: "鈴木"},
	})
	assert.Len(t, contacts[0], len(ContactHeader))
	assert.Equal(t, []string{"佐藤 花子", "サトウ ハナコ", "山田商事"}, contacts[0][:3])
	assert.Equal(t, "○", contacts[0][11])
	assert.Equal(t, "", contacts[1][2])

	due := time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)
	invoices := InvoiceRows([]models.Invoice{{
		InvoiceNumber: "INV-202406-0001",
		IssueDate:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		Status:        models.InvoiceIssued,
		TaxRate:       decimal.RequireFromString("0.10"),
		Subtotal:      decimal.NewFromInt(300000),
		Tax:           decimal.NewFromInt(30000),
		Total:         decimal.NewFromInt(330000),
		Project:       &models.Project{Code: "SV-2024-001", Name: "境界確定測量"},
		Contact:       &models.Contact{LastName: "佐藤"},
	}})
	assert.Len(t, invoices[0], len(InvoiceHeader))
	assert.Equal(t, []string{
		"INV-202406-0001", "2024/06/30", "2024/07/31", "SV-2024-001", "境界確定測量", "佐藤",
		models.StatusLabel(models.InvoiceIssued), "300000", "10%", "30000", "330000", "",
	}, invoices[0])
}

func TestInvoicesXLSX(t *testing.T) {
	data, err := InvoicesXLSX([]models.Invoice{{
		InvoiceNumber: "INV-202406-0001",
		IssueDate:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Status:        models.InvoiceDraft,
		TaxRate:       decimal.RequireFromString("0.10"),
		Subtotal:      decimal.NewFromInt(1000),
		Tax:           decimal.NewFromInt(100),
		Total:         decimal.NewFromInt(1100),
		Account:       &models.Account{Name: "山田商事"},
	}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"請求書一覧"}, f.GetSheetList())
	rows, err := f.GetRows("請求書一覧")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, InvoiceHeader, rows[0])
	assert.Equal(t, "山田商事", rows[1][5])
	assert.Equal(t, "1100", rows[1][10])
}

func TestAttendanceXLSX(t *testing.T) {
	in := time.Date(2024, 6, 3, 9, 0, 0, 0, engine.JST)
	out := in.Add(9 * time.Hour)
	report := &engine.MonthReport{
		Employee: models.Employee{Base: models.Base{ID: uuid.New()}, LastName: "山田", FirstName: "太郎"},
		Year:     2024,
		Month:    time.June,
		Records: []models.AttendanceRecord{
			{WorkDate: engine.WorkDate(in), ClockInAt: in, ClockOutAt: &out, BreakMinutes: 60, Note: "現地調査"},
			{WorkDate: engine.WorkDate(in.AddDate(0, 0, 1)), ClockInAt: in.AddDate(0, 0, 1)},
		},
		Summary: engine.MonthlySummary{WorkDays: 1, TotalMinutes: 480, OpenDays: 1, WageEstimate: decimal.NewFromInt(10000)},
	}

	data, err := AttendanceXLSX(report)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("2024年6月")
	require.NoError(t, err)
	assert.Equal(t, AttendanceHeader, rows[0])
	assert.Equal(t, []string{"2024/06/03", "09:00", "18:00", "60", "8:00", "現地調査"}, rows[1])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, []string{"氏名", "山田 太郎"}, rows[4])
	assert.Equal(t, []string{"実働合計", "8:00"}, rows[6])
	assert.Equal(t, []string{"退勤未打刻", "1"}, rows[8])
}
