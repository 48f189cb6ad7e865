package api

import (
	"bytes"
	"net/http"

	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/export"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// csvExport writes rows as a CSV download. ?encoding=sjis switches to
// Shift_JIS.
func (h *Handler) csvExport(c *gin.Context, name string, header []string, rows [][]string) {
	enc := export.ParseEncoding(c.Query("encoding"))
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, header, rows, enc); err != nil {
		h.jsonError(c, apperr.NewInternalError(err))
		return
	}
	h.logger.Debug("csv export", zap.String("file", name), zap.Int("rows", len(rows)), zap.String("encoding", string(enc)))
	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, enc.ContentType(), buf.Bytes())
}

func (h *Handler) xlsxExport(c *gin.Context, name string, body []byte) {
	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, export.XLSXContentType, body)
}

func (h *Handler) bindExport(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("検索条件が正しくありません"))
		return false
	}
	return true
}

// ExportAccounts downloads the filtered account list
// GET /exports/accounts.csv
func (h *Handler) ExportAccounts(c *gin.Context) {
	var f engine.AccountFilter
	if !h.bindExport(c, &f) {
		return
	}
	accounts, err := h.svc.Accounts.All(c.Request.Context(), f)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.csvExport(c, "取引先_"+h.stamp()+".csv", export.AccountHeader, export.AccountRows(accounts))
}

// ExportContacts downloads the filtered contact list
// GET /exports/contacts.csv
func (h *Handler) ExportContacts(c *gin.Context) {
	var f engine.ContactFilter
	if !h.bindExport(c, &f) {
		return
	}
	contacts, err := h.svc.Contacts.All(c.Request.Context(), f)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.csvExport(c, "担当者_"+h.stamp()+".csv", export.ContactHeader, export.ContactRows(contacts))
}

// ExportInvoicesCSV downloads the filtered invoices
// GET /exports/invoices.csv
func (h *Handler) ExportInvoicesCSV(c *gin.Context) {
	var f engine.InvoiceFilter
	if !h.bindExport(c, &f) {
		return
	}
	invoices, err := h.svc.Invoices.All(c.Request.Context(), f)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.csvExport(c, "請求書_"+h.stamp()+".csv", export.InvoiceHeader, export.InvoiceRows(invoices))
}

// ExportInvoicesXLSX downloads the filtered invoices as a workbook
// GET /exports/invoices.xlsx
func (h *Handler) ExportInvoicesXLSX(c *gin.Context) {
	var f engine.InvoiceFilter
	if !h.bindExport(c, &f) {
		return
	}
	invoices, err := h.svc.Invoices.All(c.Request.Context(), f)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	body, err := export.InvoicesXLSX(invoices)
	if err != nil {
		h.jsonError(c, apperr.NewInternalError(err))
		return
	}
	h.xlsxExport(c, "請求書_"+h.stamp()+".xlsx", body)
}

// ExportAttendance downloads one employee's month. Staff may only export
// their own.
// GET /exports/attendance.xlsx
func (h *Handler) ExportAttendance(c *gin.Context) {
	month, err := parseMonth(c.Query("month"), h.now())
	if err != nil {
		h.jsonError(c, err)
		return
	}
	report, err := h.svc.Attendance.Month(c.Request.Context(), attendanceSubject(c), month.Year(), month.Month())
	if err != nil {
		h.jsonError(c, err)
		return
	}
	body, err := export.AttendanceXLSX(report)
	if err != nil {
		h.jsonError(c, apperr.NewInternalError(err))
		return
	}
	name := "勤怠_" + report.Employee.FullName() + "_" + month.Format("200601") + ".xlsx"
	h.xlsxExport(c, name, body)
}

func (h *Handler) stamp() string {
	return h.now().In(engine.JST).Format("20060102")
}
