package engine

import (
	"context"
	"time"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskInput is the task form
type TaskInput struct {
	ParentID    string `form:"parent_id" json:"parent_id"`
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	AssigneeID  string `form:"assignee_id" json:"assignee_id"`
	DueDate     string `form:"due_date" json:"due_date"`
	Status      string `form:"status" json:"status"`
}

func validTaskStatus(s string) bool {
	return s == models.TaskTodo || s == models.TaskDoing || s == models.TaskDone
}

// TaskEngine manages project tasks, nested at most one level
type TaskEngine struct {
	db        *gorm.DB
	tasks     *Records[models.Task]
	projects  *Records[models.Project]
	employees *Records[models.Employee]
	now       func() time.Time
}

// NewTaskEngine creates a task engine
func NewTaskEngine(db *gorm.DB) *TaskEngine {
	return &TaskEngine{
		db:        db,
		tasks:     NewRecords[models.Task](db, "タスク", []string{"title"}, nil, "sort_order ASC, created_at ASC"),
		projects:  NewRecords[models.Project](db, "案件", nil, nil, ""),
		employees: NewRecords[models.Employee](db, "社員", nil, nil, ""),
		now:       time.Now,
	}
}

// ListByProject returns the project's top-level tasks with their subtasks
func (e *TaskEngine) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Task, error) {
	return e.tasks.All(ctx,
		[]Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("project_id = ? AND parent_id IS NULL", projectID)
		}},
		preload("Assignee"),
		func(db *gorm.DB) *gorm.DB {
			return db.Preload("Children", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC, created_at ASC")
			}).Preload("Children.Assignee")
		},
	)
}

// ListByAssignee returns an employee's tasks across projects, earliest due first
func (e *TaskEngine) ListByAssignee(ctx context.Context, employeeID uuid.UUID, includeDone bool) ([]models.Task, error) {
	var tasks []models.Task
	q := e.tasks.Query(ctx).Where("assignee_id = ?", employeeID)
	if !includeDone {
		q = q.Where("status <> ?", models.TaskDone)
	}
	err := q.Preload("Project").
		Order("due_date ASC NULLS LAST, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperr.FromDB(err, "タスク")
	}
	return tasks, nil
}

// Get returns a task by id
func (e *TaskEngine) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return e.tasks.Get(ctx, id)
}

// Create adds a task to a project. A parent must be a top-level task of the
// same project.
func (e *TaskEngine) Create(ctx context.Context, projectID uuid.UUID, in TaskInput) (*models.Task, error) {
	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	t := models.Task{ProjectID: projectID}
	if err := e.apply(ctx, &t, in); err != nil {
		return nil, err
	}
	if t.ParentID != nil {
		parent, err := e.tasks.Get(ctx, *t.ParentID)
		if err != nil {
			return nil, err
		}
		if err := validateParent(&t, parent); err != nil {
			return nil, err
		}
	}

	var maxOrder struct{ Max int }
	q := e.tasks.Query(ctx).Select("COALESCE(MAX(sort_order), -1) AS max").Where("project_id = ?", projectID)
	if t.ParentID != nil {
		q = q.Where("parent_id = ?", *t.ParentID)
	} else {
		q = q.Where("parent_id IS NULL")
	}
	if err := q.Scan(&maxOrder).Error; err != nil {
		return nil, apperr.FromDB(err, "タスク")
	}
	t.SortOrder = maxOrder.Max + 1

	if err := e.tasks.Create(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Update writes a task's fields. The parent cannot change.
func (e *TaskEngine) Update(ctx context.Context, projectID, id uuid.UUID, in TaskInput) (*models.Task, error) {
	t, err := e.taskOf(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	parent := t.ParentID
	if err := e.apply(ctx, t, in); err != nil {
		return nil, err
	}
	t.ParentID = parent
	if err := e.tasks.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetStatus changes a task's status, stamping completed_at on done and
// clearing it otherwise
func (e *TaskEngine) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error) {
	if !validTaskStatus(status) {
		return nil, apperr.NewValidationError("status", "ステータスの指定が正しくありません")
	}
	t, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stampCompletion(t, status, e.now())
	err = e.tasks.Query(ctx).Where("id = ?", id).
		Updates(map[string]interface{}{"status": t.Status, "completed_at": t.CompletedAt}).Error
	if err != nil {
		return nil, apperr.FromDB(err, "タスク")
	}
	return t, nil
}

// Delete soft-deletes a task and its subtasks
func (e *TaskEngine) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	if _, err := e.taskOf(ctx, projectID, id); err != nil {
		return err
	}
	if err := e.tasks.DeleteWhere(ctx, "parent_id = ?", id); err != nil {
		return err
	}
	return e.tasks.Delete(ctx, id)
}

// Reorder assigns sort_order by position in orderedIDs. Every id must be a
// task of the project; siblings keep their own sequence.
func (e *TaskEngine) Reorder(ctx context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	var count int64
	err := e.tasks.Query(ctx).Where("project_id = ? AND id IN ?", projectID, orderedIDs).Count(&count).Error
	if err != nil {
		return apperr.FromDB(err, "タスク")
	}
	if int(count) != len(uniqueIDs(orderedIDs)) {
		return apperr.NewValidationError("ids", "並び替え対象に他の案件のタスクが含まれています")
	}
	for i, id := range orderedIDs {
		err := e.tasks.Query(ctx).Where("id = ?", id).UpdateColumn("sort_order", i).Error
		if err != nil {
			return apperr.FromDB(err, "タスク")
		}
	}
	return nil
}

func (e *TaskEngine) taskOf(ctx context.Context, projectID, id uuid.UUID) (*models.Task, error) {
	t, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != projectID {
		return nil, apperr.NewNotFoundError("タスク")
	}
	return t, nil
}

func (e *TaskEngine) apply(ctx context.Context, t *models.Task, in TaskInput) error {
	if err := required("title", "タイトル", in.Title); err != nil {
		return err
	}
	status := in.Status
	if status == "" {
		status = models.TaskTodo
	}
	if !validTaskStatus(status) {
		return apperr.NewValidationError("status", "ステータスの指定が正しくありません")
	}
	var err error
	if t.ParentID, err = parseOptionalUUID("parent_id", "親タスク", in.ParentID); err != nil {
		return err
	}
	if t.AssigneeID, err = parseOptionalUUID("assignee_id", "担当者", in.AssigneeID); err != nil {
		return err
	}
	if t.DueDate, err = parseOptionalDate("due_date", "期限", in.DueDate); err != nil {
		return err
	}
	if t.AssigneeID != nil {
		if _, err := e.employees.Get(ctx, *t.AssigneeID); err != nil {
			return err
		}
	}
	t.Title = trim(in.Title)
	t.Description = in.Description
	stampCompletion(t, status, e.now())
	return nil
}

// validateParent enforces one level of nesting within one project
func validateParent(child, parent *models.Task) error {
	if parent.ProjectID != child.ProjectID {
		return apperr.NewValidationError("parent_id", "親タスクが別の案件に属しています")
	}
	if parent.ParentID != nil {
		return apperr.NewValidationError("parent_id", "サブタスクの下にはタスクを追加できません")
	}
	return nil
}

func stampCompletion(t *models.Task, status string, now time.Time) {
	if status == models.TaskDone {
		if t.Status != models.TaskDone || t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	} else {
		t.CompletedAt = nil
	}
	t.Status = status
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
