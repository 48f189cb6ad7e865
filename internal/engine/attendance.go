package engine

import (
	"context"
	"fmt"
	"time"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttendanceInput is an admin correction of one record
type AttendanceInput struct {
	ClockInAt    string `form:"clock_in_at" json:"clock_in_at"`
	ClockOutAt   string `form:"clock_out_at" json:"clock_out_at"`
	BreakMinutes int    `form:"break_minutes" json:"break_minutes"`
	Note         string `form:"note" json:"note"`
}

// MonthlySummary totals one employee's month
type MonthlySummary struct {
	WorkDays     int             `json:"work_days"`
	TotalMinutes int             `json:"total_minutes"`
	OpenDays     int             `json:"open_days"`
	WageEstimate decimal.Decimal `json:"wage_estimate"`
}

// Hours formats TotalMinutes as H:MM
func (s MonthlySummary) Hours() string {
	return FormatMinutes(s.TotalMinutes)
}

// MonthReport is an employee's attendance for one month
type MonthReport struct {
	Employee models.Employee
	Year     int
	Month    time.Month
	Records  []models.AttendanceRecord
	Summary  MonthlySummary
}

// AttendanceEngine records clock-in and clock-out, one record per employee
// per JST work day
type AttendanceEngine struct {
	records   *Records[models.AttendanceRecord]
	employees *Records[models.Employee]
}

// NewAttendanceEngine creates an attendance engine
func NewAttendanceEngine(db *gorm.DB) *AttendanceEngine {
	return &AttendanceEngine{
		records:   NewRecords[models.AttendanceRecord](db, "勤怠記録", nil, nil, "work_date ASC"),
		employees: NewRecords[models.Employee](db, "社員", nil, nil, ""),
	}
}

// WorkDate returns the JST calendar day containing at
func WorkDate(at time.Time) time.Time {
	local := at.In(JST)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, JST)
}

// ClockIn opens today's record. A second clock-in on the same day is a
// conflict, and a record left open on an earlier day must be closed first.
func (e *AttendanceEngine) ClockIn(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error) {
	day := WorkDate(at)
	exists, err := e.records.Exists(ctx, "employee_id = ? AND work_date = ?", employeeID, day.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.NewConflictError("本日の出勤記録")
	}
	stale, err := e.openBefore(ctx, employeeID, day)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		return nil, apperr.NewValidationError("clock_in", fmt.Sprintf(
			"%sの退勤が打刻されていません。退勤を打刻するか管理者に修正を依頼してください",
			stale.WorkDate.In(JST).Format(dateLayout)))
	}
	r := models.AttendanceRecord{EmployeeID: employeeID, WorkDate: day, ClockInAt: at}
	if err := e.records.Create(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// openBefore returns the newest record still open from a day before day
func (e *AttendanceEngine) openBefore(ctx context.Context, employeeID uuid.UUID, day time.Time) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := e.records.Query(ctx).
		Where("employee_id = ? AND clock_out_at IS NULL AND work_date < ?", employeeID, day.Format(dateLayout)).
		Order("work_date DESC").
		First(&r).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperr.FromDB(err, "勤怠記録")
	}
	return &r, nil
}

// ClockOut closes the employee's latest open record
func (e *AttendanceEngine) ClockOut(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := e.records.Query(ctx).
		Where("employee_id = ? AND clock_out_at IS NULL", employeeID).
		Order("clock_in_at DESC").
		First(&r).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NewValidationError("clock_out", "出勤記録がありません")
		}
		return nil, apperr.FromDB(err, "勤怠記録")
	}
	if !at.After(r.ClockInAt) {
		return nil, apperr.NewValidationError("clock_out", "退勤時刻は出勤時刻より後である必要があります")
	}
	if err := e.records.Query(ctx).Where("id = ?", r.ID).UpdateColumn("clock_out_at", at).Error; err != nil {
		return nil, apperr.FromDB(err, "勤怠記録")
	}
	r.ClockOutAt = &at
	return &r, nil
}

// Today returns the employee's record for the work day containing at, or
// nil when there is none
func (e *AttendanceEngine) Today(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := e.records.Query(ctx).
		Where("employee_id = ? AND work_date = ?", employeeID, WorkDate(at).Format(dateLayout)).
		First(&r).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperr.FromDB(err, "勤怠記録")
	}
	return &r, nil
}

// Month returns an employee's records and summary for a calendar month
func (e *AttendanceEngine) Month(ctx context.Context, employeeID uuid.UUID, year int, month time.Month) (*MonthReport, error) {
	if month < time.January || month > time.December || year < 2000 || year > 2100 {
		return nil, apperr.NewValidationError("month", "対象月の指定が正しくありません")
	}
	emp, err := e.employees.Get(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, JST)
	next := first.AddDate(0, 1, 0)

	records, err := e.records.All(ctx, []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Where("employee_id = ? AND work_date >= ? AND work_date < ?",
			employeeID, first.Format(dateLayout), next.Format(dateLayout))
	}})
	if err != nil {
		return nil, err
	}
	return &MonthReport{
		Employee: *emp,
		Year:     year,
		Month:    month,
		Records:  records,
		Summary:  summarize(records, emp.HourlyWage),
	}, nil
}

// Get returns a record by id
func (e *AttendanceEngine) Get(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error) {
	return e.records.Get(ctx, id)
}

// Update corrects a record's times, break and note
func (e *AttendanceEngine) Update(ctx context.Context, id uuid.UUID, in AttendanceInput) (*models.AttendanceRecord, error) {
	r, err := e.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	clockIn, err := parseDateTime("clock_in_at", "出勤時刻", in.ClockInAt)
	if err != nil {
		return nil, err
	}
	var out *time.Time
	if trim(in.ClockOutAt) != "" {
		t, err := parseDateTime("clock_out_at", "退勤時刻", in.ClockOutAt)
		if err != nil {
			return nil, err
		}
		if !t.After(clockIn) {
			return nil, apperr.NewValidationError("clock_out_at", "退勤時刻は出勤時刻より後である必要があります")
		}
		out = &t
	}
	if in.BreakMinutes < 0 {
		return nil, apperr.NewValidationError("break_minutes", "休憩時間は0以上で入力してください")
	}
	if !WorkDate(clockIn).Equal(WorkDate(r.WorkDate)) {
		return nil, apperr.NewValidationError("clock_in_at", "出勤時刻は勤務日の日付で入力してください")
	}

	r.ClockInAt = clockIn
	r.ClockOutAt = out
	r.BreakMinutes = in.BreakMinutes
	r.Note = in.Note
	if err := e.records.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// summarize counts closed days and net minutes. The wage estimate is
// hourly wage × minutes / 60, rounded down to the yen.
func summarize(records []models.AttendanceRecord, hourlyWage decimal.Decimal) MonthlySummary {
	var s MonthlySummary
	for _, r := range records {
		if r.ClockOutAt == nil {
			s.OpenDays++
			continue
		}
		s.WorkDays++
		s.TotalMinutes += r.WorkedMinutes()
	}
	s.WageEstimate = hourlyWage.Mul(decimal.NewFromInt(int64(s.TotalMinutes))).
		Div(decimal.NewFromInt(60)).
		Floor()
	return s
}

// FormatMinutes formats a minute count as H:MM
func FormatMinutes(m int) string {
	return fmt.Sprintf("%d:%02d", m/60, m%60)
}
