package export

import (
	"bytes"
	"fmt"

	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/models"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of Excel workbooks
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sheet writes one styled table into a new workbook
type sheet struct {
	f    *excelize.File
	name string
	row  int
}

func newSheet(name string, header []string, widths []float64) (*sheet, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	s := &sheet{f: f, name: name, row: 1}
	if err := s.append(toCells(header)); err != nil {
		f.Close()
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(name, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}
	return s, nil
}

// append writes values as the next row
func (s *sheet) append(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", s.row, err)
	}
	s.row++
	return nil
}

// bytes closes the workbook and returns its encoded form
func (s *sheet) bytes() ([]byte, error) {
	defer s.f.Close()
	var buf bytes.Buffer
	if err := s.f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// InvoicesXLSX renders invoices, with Project and Account loaded, as a
// workbook. Money columns are numeric so totals can be summed in Excel.
func InvoicesXLSX(invoices []models.Invoice) ([]byte, error) {
	s, err := newSheet("請求書一覧", InvoiceHeader,
		[]float64{18, 12, 12, 14, 30, 30, 10, 14, 8, 12, 14, 18})
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		subtotal, _ := inv.Subtotal.Float64()
		tax, _ := inv.Tax.Float64()
		total, _ := inv.Total.Float64()
		err := s.append([]interface{}{
			inv.InvoiceNumber,
			date(inv.IssueDate),
			optionalDate(inv.DueDate),
			projectCode(inv),
			projectName(inv),
			recipient(inv),
			models.StatusLabel(inv.Status),
			subtotal,
			inv.TaxRate.Mul(hundred).String() + "%",
			tax,
			total,
			inv.RegistrationNumber,
		})
		if err != nil {
			s.f.Close()
			return nil, err
		}
	}
	return s.bytes()
}

// AttendanceHeader is the column row of the monthly attendance sheet
var AttendanceHeader = []string{"日付", "出勤", "退勤", "休憩(分)", "実働", "備考"}

// AttendanceXLSX renders an employee's month with a totals row
func AttendanceXLSX(report *engine.MonthReport) ([]byte, error) {
	name := fmt.Sprintf("%d年%d月", report.Year, int(report.Month))
	s, err := newSheet(name, AttendanceHeader, []float64{12, 8, 8, 10, 8, 40})
	if err != nil {
		return nil, err
	}
	for _, r := range report.Records {
		clockOut, worked := "", ""
		if r.ClockOutAt != nil {
			clockOut = r.ClockOutAt.In(engine.JST).Format("15:04")
			worked = engine.FormatMinutes(r.WorkedMinutes())
		}
		err := s.append([]interface{}{
			r.WorkDate.Format(dateLayout),
			r.ClockInAt.In(engine.JST).Format("15:04"),
			clockOut,
			r.BreakMinutes,
			worked,
			r.Note,
		})
		if err != nil {
			s.f.Close()
			return nil, err
		}
	}

	wage, _ := report.Summary.WageEstimate.Float64()
	footer := [][]interface{}{
		{},
		{"氏名", report.Employee.FullName()},
		{"出勤日数", report.Summary.WorkDays},
		{"実働合計", report.Summary.Hours()},
		{"概算給与", wage},
	}
	if report.Summary.OpenDays > 0 {
		footer = append(footer, []interface{}{"退勤未打刻", report.Summary.OpenDays})
	}
	for _, row := range footer {
		if err := s.append(row); err != nil {
			s.f.Close()
			return nil, err
		}
	}
	return s.bytes()
}
