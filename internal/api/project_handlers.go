package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// detailsInput picks the details[<category>.<key>] fields of the chosen
// category and strips the prefix
func detailsInput(c *gin.Context, category string) map[string]string {
	prefix := category + "."
	out := make(map[string]string)
	for key, value := range c.PostFormMap("details") {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			out[rest] = value
		}
	}
	return out
}

// allocationsInput pairs alloc_month with alloc_amount. Rows without a month
// are dropped; a month given twice is summed.
func allocationsInput(c *gin.Context) map[string]string {
	months := c.PostFormArray("alloc_month")
	amounts := c.PostFormArray("alloc_amount")
	out := make(map[string]string)
	for i, month := range months {
		month = strings.TrimSpace(month)
		amount := engine.NormalizeAmount(formAt(amounts, i))
		if month == "" {
			continue
		}
		if prev, ok := out[month]; ok {
			a, errA := decimal.NewFromString(prev)
			b, errB := decimal.NewFromString(amount)
			if errA == nil && errB == nil {
				amount = a.Add(b).String()
			}
		}
		out[month] = amount
	}
	return out
}

func (h *Handler) bindProject(c *gin.Context, back string) (engine.ProjectInput, bool) {
	var in engine.ProjectInput
	if !h.bindForm(c, &in, back) {
		return in, false
	}
	in.Details = detailsInput(c, in.Category)
	in.Allocations = allocationsInput(c)
	return in, true
}

// ListProjects shows the project list and the monthly revenue widget
// GET /projects
func (h *Handler) ListProjects(c *gin.Context) {
	var f engine.ProjectFilter
	if !h.bindQuery(c, &f) {
		return
	}
	result, err := h.svc.Projects.List(c.Request.Context(), f)
	if err != nil {
		h.notFound(c, err)
		return
	}
	year := h.now().In(engine.JST).Year()
	data := map[string]any{
		"Filter":      f,
		"Result":      result,
		"Query":       c.Request.URL.RawQuery,
		"RevenueFrom": fmt.Sprintf("%04d-01", year),
		"RevenueTo":   fmt.Sprintf("%04d-12", year),
	}
	if err := h.pickerData(c, data, false, false, true, false); err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "projects", "案件", "projects", data)
}

// ShowProject shows a project with its parties, tasks, comments,
// documents and invoices
// GET /projects/:id
func (h *Handler) ShowProject(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	ctx := c.Request.Context()
	project, err := h.svc.Projects.Get(ctx, id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	templates, err := h.svc.Templates.List(ctx, project.Category)
	if err != nil {
		h.notFound(c, err)
		return
	}
	documents, err := h.svc.Templates.Documents(ctx, id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	data := map[string]any{
		"Project":   project,
		"Templates": templates,
		"Documents": documents,
	}
	if cat, ok := models.CategoryByCode(project.Category); ok {
		data["Category"] = cat
	}
	if err := h.pickerData(c, data, true, true, true, false); err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "project_detail", project.Name, "projects", data)
}

func (h *Handler) projectForm(c *gin.Context, title string, project *models.Project, action, cancel string) {
	data := map[string]any{
		"Project": project,
		"Action":  action,
		"Cancel":  cancel,
	}
	if err := h.pickerData(c, data, true, true, true, false); err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "project_form", title, "projects", data)
}

// NewProject shows an empty project form
// GET /projects/new
func (h *Handler) NewProject(c *gin.Context) {
	project := &models.Project{
		Category:  models.CategorySurvey,
		Status:    models.ProjectInquiry,
		AccountID: optionalID(c.Query("account_id")),
	}
	if me := currentEmployee(c); me != nil {
		project.ManagerID = &me.ID
	}
	h.projectForm(c, "案件の登録", project, "/projects", "/projects")
}

// EditProject shows the project form filled in
// GET /projects/:id/edit
func (h *Handler) EditProject(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	project, err := h.svc.Projects.Get(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.projectForm(c, "案件の編集", project, "/projects/"+id.String(), "/projects/"+id.String())
}

// CreateProject saves a new project
// POST /projects
func (h *Handler) CreateProject(c *gin.Context) {
	in, ok := h.bindProject(c, "/projects/new")
	if !ok {
		return
	}
	project, err := h.svc.Projects.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "/projects/new")
		return
	}
	h.done(c, "案件を登録しました", "/projects/"+project.ID.String())
}

// UpdateProject saves changes to a project
// POST /projects/:id
func (h *Handler) UpdateProject(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String() + "/edit"
	in, ok := h.bindProject(c, back)
	if !ok {
		return
	}
	if _, err := h.svc.Projects.Update(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "案件を更新しました", "/projects/"+id.String())
}

// DeleteProject soft-deletes a project
// POST /projects/:id/delete
func (h *Handler) DeleteProject(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if err := h.svc.Projects.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/projects/"+id.String())
		return
	}
	h.done(c, "案件を削除しました", "/projects")
}

// AddStakeholder tags another account or contact on a project
// POST /projects/:id/stakeholders
func (h *Handler) AddStakeholder(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	var in engine.StakeholderInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if _, err := h.svc.Projects.AddStakeholder(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "関係者を追加しました", back)
}

// RemoveStakeholder removes a stakeholder tag
// POST /projects/:id/stakeholders/:sid/delete
func (h *Handler) RemoveStakeholder(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	sid, err := paramID(c, "sid")
	if err != nil {
		h.fail(c, err, back)
		return
	}
	if err := h.svc.Projects.RemoveStakeholder(c.Request.Context(), id, sid); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "関係者を外しました", back)
}

// =============================================================================
// TASKS & COMMENTS
// =============================================================================

// CreateTask adds a task to a project
// POST /projects/:id/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	var in engine.TaskInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if _, err := h.svc.Tasks.Create(c.Request.Context(), id, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "タスクを追加しました", back)
}

// UpdateTask saves the task edit form
// POST /projects/:id/tasks/:tid
func (h *Handler) UpdateTask(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	tid, err := paramID(c, "tid")
	if err != nil {
		h.fail(c, err, back)
		return
	}
	var in engine.TaskInput
	if !h.bindForm(c, &in, back) {
		return
	}
	if _, err := h.svc.Tasks.Update(c.Request.Context(), id, tid, in); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "タスクを更新しました", back)
}

// DeleteTask soft-deletes a task and its subtasks
// POST /projects/:id/tasks/:tid/delete
func (h *Handler) DeleteTask(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	tid, err := paramID(c, "tid")
	if err != nil {
		h.fail(c, err, back)
		return
	}
	if err := h.svc.Tasks.Delete(c.Request.Context(), id, tid); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "タスクを削除しました", back)
}

// CreateComment posts a comment as the signed-in employee
// POST /projects/:id/comments
func (h *Handler) CreateComment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	if _, err := h.svc.Comments.Create(c.Request.Context(), id, actor(c), c.PostForm("body")); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "", back)
}

// DeleteComment removes a comment. Only its author or an admin may.
// POST /projects/:id/comments/:cid/delete
func (h *Handler) DeleteComment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	back := "/projects/" + id.String()
	cid, err := paramID(c, "cid")
	if err != nil {
		h.fail(c, err, back)
		return
	}
	if err := h.svc.Comments.Delete(c.Request.Context(), id, cid, actor(c)); err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "コメントを削除しました", back)
}

// =============================================================================
// JSON
// =============================================================================

// ListTasks returns a project's task tree, refreshed by the sortable list
// after a drop
// GET /api/projects/:id/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	tasks, err := h.svc.Tasks.ListByProject(c.Request.Context(), id)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListComments returns a project's comments oldest first
// GET /api/projects/:id/comments
func (h *Handler) ListComments(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	comments, err := h.svc.Comments.ListByProject(c.Request.Context(), id)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type reorderRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// ReorderTasks stores a new order for a project's top-level tasks
// POST /api/projects/:id/tasks/reorder
func (h *Handler) ReorderTasks(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("並び順の指定が正しくありません"))
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		tid, err := uuid.Parse(raw)
		if err != nil {
			h.jsonError(c, apperr.NewBadRequestError("並び順の指定が正しくありません"))
			return
		}
		ids = append(ids, tid)
	}
	if err := h.svc.Tasks.Reorder(c.Request.Context(), id, ids); err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetTaskStatus changes a task's status from the inline select
// POST /api/tasks/:id/status
func (h *Handler) SetTaskStatus(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.jsonError(c, err)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, apperr.NewBadRequestError("状態を指定してください"))
		return
	}
	task, err := h.svc.Tasks.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Revenue returns allocated revenue per month over ?from..?to (YYYY-MM)
// GET /api/revenue
func (h *Handler) Revenue(c *gin.Context) {
	months, err := h.svc.Projects.MonthlyRevenue(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		h.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": months})
}
