package api

import (
	"net/http"
	"time"

	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const monthLayout = "2006-01"

// Dashboard shows my open tasks, today's attendance and the coming week
// GET /
func (h *Handler) Dashboard(c *gin.Context) {
	me := currentEmployee(c)
	ctx := c.Request.Context()
	now := h.now()

	tasks, err := h.svc.Tasks.ListByAssignee(ctx, me.ID, false)
	if err != nil {
		h.notFound(c, err)
		return
	}
	today, err := h.svc.Attendance.Today(ctx, me.ID, now)
	if err != nil {
		h.notFound(c, err)
		return
	}
	start := engine.WorkDate(now)
	events, err := h.svc.Calendar.ListRange(ctx, start, start.AddDate(0, 0, 7), engine.EventFilter{EmployeeID: &me.ID})
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "dashboard", "ホーム", "dashboard", map[string]any{
		"Today":  today,
		"Events": events,
		"Tasks":  tasks,
	})
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// parseMonth reads a YYYY-MM value, defaulting to the JST month of now
func parseMonth(value string, now time.Time) (time.Time, error) {
	if value == "" {
		local := now.In(engine.JST)
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, engine.JST), nil
	}
	t, err := time.ParseInLocation(monthLayout, value, engine.JST)
	if err != nil {
		return time.Time{}, apperr.NewValidationError("month", "対象月はYYYY-MMの形式で指定してください")
	}
	return t, nil
}

// attendanceSubject returns whose attendance to show. Staff only ever see
// their own; admins may pick anyone with ?employee_id.
func attendanceSubject(c *gin.Context) uuid.UUID {
	me := currentEmployee(c)
	if me.IsAdmin() {
		if id := optionalID(c.Query("employee_id")); id != nil {
			return *id
		}
	}
	return me.ID
}

// Attendance shows a month of attendance with clock buttons
// GET /attendance
func (h *Handler) Attendance(c *gin.Context) {
	me := currentEmployee(c)
	ctx := c.Request.Context()
	now := h.now()

	month, err := parseMonth(c.Query("month"), now)
	if err != nil {
		h.notFound(c, err)
		return
	}
	subject := attendanceSubject(c)
	report, err := h.svc.Attendance.Month(ctx, subject, month.Year(), month.Month())
	if err != nil {
		h.notFound(c, err)
		return
	}
	today, err := h.svc.Attendance.Today(ctx, me.ID, now)
	if err != nil {
		h.notFound(c, err)
		return
	}
	data := map[string]any{
		"Report":     report,
		"Today":      today,
		"PrevMonth":  month.AddDate(0, -1, 0).Format(monthLayout),
		"NextMonth":  month.AddDate(0, 1, 0).Format(monthLayout),
		"MonthValue": month.Format(monthLayout),
		"EmployeeID": subject.String(),
		"CanCorrect": auth.Can(string(me.Role), auth.ActionEdit, auth.ResourceAttendance),
	}
	if me.IsAdmin() {
		if err := h.pickerData(c, data, false, false, true, false); err != nil {
			h.notFound(c, err)
			return
		}
	}
	h.page(c, http.StatusOK, "attendance", "勤怠", "attendance", data)
}

// ClockIn opens today's attendance record
// POST /attendance/clock-in
func (h *Handler) ClockIn(c *gin.Context) {
	rec, err := h.svc.Attendance.ClockIn(c.Request.Context(), currentEmployee(c).ID, h.now())
	if err != nil {
		h.fail(c, err, backTo(c, "/attendance"))
		return
	}
	h.done(c, "出勤しました（"+rec.ClockInAt.In(engine.JST).Format("15:04")+"）", backTo(c, "/attendance"))
}

// ClockOut closes the open attendance record
// POST /attendance/clock-out
func (h *Handler) ClockOut(c *gin.Context) {
	rec, err := h.svc.Attendance.ClockOut(c.Request.Context(), currentEmployee(c).ID, h.now())
	if err != nil {
		h.fail(c, err, backTo(c, "/attendance"))
		return
	}
	h.done(c, "退勤しました（"+rec.ClockOutAt.In(engine.JST).Format("15:04")+"）", backTo(c, "/attendance"))
}

// CorrectAttendance lets an admin fix a record
// POST /attendance/:id
func (h *Handler) CorrectAttendance(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	ctx := c.Request.Context()
	rec, err := h.svc.Attendance.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "/attendance")
		return
	}
	back := "/attendance?month=" + rec.WorkDate.Format(monthLayout) + "&employee_id=" + rec.EmployeeID.String()

	var in engine.AttendanceInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if _, err := h.svc.Attendance.Update(ctx, id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "勤怠記録を修正しました", back)
}

// backTo returns the referring path when it is on this site
func backTo(c *gin.Context, fallback string) string {
	ref := c.Request.Referer()
	if ref == "" {
		return fallback
	}
	if u, err := c.Request.URL.Parse(ref); err == nil && u.Host == c.Request.Host && u.Path != "" {
		if u.RawQuery != "" {
			return u.Path + "?" + u.RawQuery
		}
		return u.Path
	}
	return fallback
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar serves the week view; events load over JSON
// GET /calendar
func (h *Handler) Calendar(c *gin.Context) {
	data := map[string]any{}
	if err := h.pickerData(c, data, false, false, true, true); err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "calendar", "カレンダー", "calendar", data)
}

// parseInstant accepts RFC 3339 from the widget or a plain JST date
func parseInstant(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, engine.JST); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.NewValidationError(field, "日時の形式が正しくありません")
}

// ListEvents returns events overlapping ?from..?to
// GET /api/calendar/events
func (h *Handler) ListEvents(c *gin.Context) {
	from, err := parseInstant("from", c.Query("from"))
	if err != nil {
		h.jsonError(c, err)
		return
	}
	to, err := parseInstant("to", c.Query("to"))
	if err != nil {
		h.jsonError(c, err)
		return
	}
	f := engine.EventFilter{
		EmployeeID: optionalID(c.Query("employee_id")),
		ProjectID:  optionalID(c.Query("project_id")),
	}
	events, err := h.svc.Calendar.ListRange(c.Request.Context(), from, to, f)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CreateEvent adds an event from the widget form
// POST /api/calendar/events
func (h *Handler) CreateEvent(c *gin.Context) {
	var in engine.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("予定の内容が正しくありません"))
		return
	}
	ev, err := h.svc.Calendar.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// UpdateEvent rewrites an event and its participants
// PUT /api/calendar/events/:id
func (h *Handler) UpdateEvent(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	var in engine.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("予定の内容が正しくありません"))
		return
	}
	ev, err := h.svc.Calendar.Update(c.Request.Context(), id, in)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

type moveRequest struct {
	StartAt string `json:"start_at" binding:"required"`
	EndAt   string `json:"end_at" binding:"required"`
}

// MoveEvent stores a drag or resize
// PATCH /api/calendar/events/:id/move
func (h *Handler) MoveEvent(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("開始と終了を指定してください"))
		return
	}
	start, err := parseInstant("start_at", req.StartAt)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	end, err := parseInstant("end_at", req.EndAt)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	ev, err := h.svc.Calendar.Move(c.Request.Context(), id, start, end)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// DeleteEvent soft-deletes an event
// DELETE /api/calendar/events/:id
func (h *Handler) DeleteEvent(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	if err := h.svc.Calendar.Delete(c.Request.Context(), id); err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
