package engine

import (
	"context"
	"time"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventFilter narrows a calendar range query
type EventFilter struct {
	EmployeeID *uuid.UUID
	ProjectID  *uuid.UUID
}

// EventInput is the calendar event form, shared by the HTML form and the
// JSON widget. Times accept RFC 3339 or datetime-local values in JST.
type EventInput struct {
	Title          string   `form:"title" json:"title"`
	Description    string   `form:"description" json:"description"`
	Location       string   `form:"location" json:"location"`
	StartAt        string   `form:"start_at" json:"start_at"`
	EndAt          string   `form:"end_at" json:"end_at"`
	AllDay         bool     `form:"all_day" json:"all_day"`
	Color          string   `form:"color" json:"color"`
	ProjectID      string   `form:"project_id" json:"project_id"`
	TaskID         string   `form:"task_id" json:"task_id"`
	ParticipantIDs []string `form:"participant_ids" json:"participant_ids"`
}

// CalendarEngine persists calendar events. Views (month, week, day) are
// filtered client-side from ListRange.
type CalendarEngine struct {
	db        *gorm.DB
	events    *Records[models.CalendarEvent]
	projects  *Records[models.Project]
	tasks     *Records[models.Task]
	employees *Records[models.Employee]
}

// NewCalendarEngine creates a calendar engine
func NewCalendarEngine(db *gorm.DB) *CalendarEngine {
	return &CalendarEngine{
		db:        db,
		events:    NewRecords[models.CalendarEvent](db, "予定", nil, nil, "start_at ASC, end_at ASC"),
		projects:  NewRecords[models.Project](db, "案件", nil, nil, ""),
		tasks:     NewRecords[models.Task](db, "タスク", nil, nil, ""),
		employees: NewRecords[models.Employee](db, "社員", nil, nil, ""),
	}
}

// ListRange returns the events overlapping [from, to)
func (e *CalendarEngine) ListRange(ctx context.Context, from, to time.Time, f EventFilter) ([]models.CalendarEvent, error) {
	if !to.After(from) {
		return nil, apperr.NewValidationError("to", "表示期間の指定が正しくありません")
	}
	filters := []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Where("start_at < ? AND (end_at > ? OR (all_day AND end_at >= ?))", to, from, from)
	}}
	if f.ProjectID != nil {
		id := *f.ProjectID
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("project_id = ?", id) })
	}
	if f.EmployeeID != nil {
		id := *f.EmployeeID
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("(created_by = ? OR id IN (SELECT event_id FROM event_participants WHERE employee_id = ?))", id, id)
		})
	}
	return e.events.All(ctx, filters, preload("Participants"), preload("Participants.Employee"), preload("Project"))
}

// Get returns an event with its participants
func (e *CalendarEngine) Get(ctx context.Context, id uuid.UUID) (*models.CalendarEvent, error) {
	return e.events.Get(ctx, id, preload("Participants"), preload("Participants.Employee"), preload("Project"))
}

// Create inserts an event created by actor, then its participants
func (e *CalendarEngine) Create(ctx context.Context, actor Actor, in EventInput) (*models.CalendarEvent, error) {
	ev := models.CalendarEvent{CreatedBy: actor.ID}
	participants, err := e.apply(ctx, &ev, in)
	if err != nil {
		return nil, err
	}
	if err := e.events.Create(ctx, &ev); err != nil {
		return nil, err
	}
	if err := e.replaceParticipants(ctx, ev.ID, participants); err != nil {
		return nil, err
	}
	return e.Get(ctx, ev.ID)
}

// Update writes an event and replaces its participants
func (e *CalendarEngine) Update(ctx context.Context, id uuid.UUID, in EventInput) (*models.CalendarEvent, error) {
	ev, err := e.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := e.apply(ctx, ev, in)
	if err != nil {
		return nil, err
	}
	if err := e.events.Save(ctx, ev); err != nil {
		return nil, err
	}
	if err := e.replaceParticipants(ctx, ev.ID, participants); err != nil {
		return nil, err
	}
	return e.Get(ctx, ev.ID)
}

// Move persists a drag or resize from the calendar widget
func (e *CalendarEngine) Move(ctx context.Context, id uuid.UUID, startAt, endAt time.Time) (*models.CalendarEvent, error) {
	ev, err := e.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateSpan(startAt, endAt, ev.AllDay); err != nil {
		return nil, err
	}
	err = e.events.Query(ctx).Where("id = ?", id).
		Updates(map[string]interface{}{"start_at": startAt, "end_at": endAt}).Error
	if err != nil {
		return nil, apperr.FromDB(err, "予定")
	}
	ev.StartAt, ev.EndAt = startAt, endAt
	return ev, nil
}

// Delete soft-deletes an event
func (e *CalendarEngine) Delete(ctx context.Context, id uuid.UUID) error {
	return e.events.Delete(ctx, id)
}

func (e *CalendarEngine) apply(ctx context.Context, ev *models.CalendarEvent, in EventInput) ([]uuid.UUID, error) {
	if err := required("title", "件名", in.Title); err != nil {
		return nil, err
	}
	start, err := parseDateTime("start_at", "開始", in.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := parseDateTime("end_at", "終了", in.EndAt)
	if err != nil {
		return nil, err
	}
	if err := validateSpan(start, end, in.AllDay); err != nil {
		return nil, err
	}
	if ev.ProjectID, err = parseOptionalUUID("project_id", "案件", in.ProjectID); err != nil {
		return nil, err
	}
	if ev.TaskID, err = parseOptionalUUID("task_id", "タスク", in.TaskID); err != nil {
		return nil, err
	}
	if ev.ProjectID != nil {
		if _, err := e.projects.Get(ctx, *ev.ProjectID); err != nil {
			return nil, err
		}
	}
	if ev.TaskID != nil {
		t, err := e.tasks.Get(ctx, *ev.TaskID)
		if err != nil {
			return nil, err
		}
		if ev.ProjectID == nil {
			ev.ProjectID = &t.ProjectID
		} else if *ev.ProjectID != t.ProjectID {
			return nil, apperr.NewValidationError("task_id", "タスクが案件に属していません")
		}
	}

	participants := make([]uuid.UUID, 0, len(in.ParticipantIDs))
	seen := make(map[uuid.UUID]bool)
	for _, raw := range in.ParticipantIDs {
		id, err := parseOptionalUUID("participant_ids", "参加者", raw)
		if err != nil {
			return nil, err
		}
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		participants = append(participants, *id)
	}
	if len(participants) > 0 {
		var count int64
		if err := e.employees.Query(ctx).Where("id IN ?", participants).Count(&count).Error; err != nil {
			return nil, apperr.FromDB(err, "社員")
		}
		if int(count) != len(participants) {
			return nil, apperr.NewNotFoundError("参加者")
		}
	}

	ev.Title = trim(in.Title)
	ev.Description = in.Description
	ev.Location = trim(in.Location)
	ev.StartAt = start
	ev.EndAt = end
	ev.AllDay = in.AllDay
	ev.Color = trim(in.Color)
	return participants, nil
}

func (e *CalendarEngine) replaceParticipants(ctx context.Context, eventID uuid.UUID, employees []uuid.UUID) error {
	db := e.db.WithContext(ctx)
	if err := db.Where("event_id = ?", eventID).Delete(&models.EventParticipant{}).Error; err != nil {
		return apperr.FromDB(err, "参加者")
	}
	for _, emp := range employees {
		p := models.EventParticipant{EventID: eventID, EmployeeID: emp}
		if err := db.Create(&p).Error; err != nil {
			return apperr.FromDB(err, "参加者")
		}
	}
	return nil
}

// validateSpan requires end after start; all-day events may end on the
// day they start
func validateSpan(start, end time.Time, allDay bool) error {
	if start.IsZero() || end.IsZero() {
		return apperr.NewValidationError("start_at", "開始と終了を指定してください")
	}
	if allDay {
		if end.Before(start) {
			return apperr.NewValidationError("end_at", "終了日は開始日以降を指定してください")
		}
		return nil
	}
	if !end.After(start) {
		return apperr.NewValidationError("end_at", "終了は開始より後の日時を指定してください")
	}
	return nil
}
