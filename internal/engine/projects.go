package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectFilter narrows a project listing
type ProjectFilter struct {
	Page
	Search    string `form:"q"`
	Category  string `form:"category"`
	Status    string `form:"status"`
	AccountID string `form:"account_id"`
	ManagerID string `form:"manager_id"`
}

// ProjectInput is the project form. Details and Allocations come from the
// details[key] and allocations[YYYY-MM] form maps.
type ProjectInput struct {
	Code      string `form:"code" json:"code"`
	Name      string `form:"name" json:"name"`
	Category  string `form:"category" json:"category"`
	Status    string `form:"status" json:"status"`
	AccountID string `form:"account_id" json:"account_id"`
	ContactID string `form:"contact_id" json:"contact_id"`
	ManagerID string `form:"manager_id" json:"manager_id"`
	StartDate string `form:"start_date" json:"start_date"`
	DueDate   string `form:"due_date" json:"due_date"`
	Amount    string `form:"amount" json:"amount"`
	Notes     string `form:"notes" json:"notes"`

	Details     map[string]string `form:"-" json:"details"`
	Allocations map[string]string `form:"-" json:"allocations"`
}

// StakeholderInput links another account or contact to a project.
// Tags are comma separated.
type StakeholderInput struct {
	AccountID string `form:"account_id" json:"account_id"`
	ContactID string `form:"contact_id" json:"contact_id"`
	Tags      string `form:"tags" json:"tags"`
	Notes     string `form:"notes" json:"notes"`
}

// MonthRevenue is the revenue allocated to one month
type MonthRevenue struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

func (in ProjectInput) apply(p *models.Project) error {
	if err := required("name", "案件名", in.Name); err != nil {
		return err
	}
	if _, ok := models.CategoryByCode(in.Category); !ok {
		return apperr.NewValidationError("category", "業務区分の指定が正しくありません")
	}
	status := in.Status
	if status == "" {
		status = models.ProjectInquiry
	}
	if !validProjectStatus(status) {
		return apperr.NewValidationError("status", "ステータスの指定が正しくありません")
	}

	var err error
	if p.AccountID, err = parseOptionalUUID("account_id", "取引先", in.AccountID); err != nil {
		return err
	}
	if p.ContactID, err = parseOptionalUUID("contact_id", "担当者", in.ContactID); err != nil {
		return err
	}
	if p.ManagerID, err = parseOptionalUUID("manager_id", "主担当", in.ManagerID); err != nil {
		return err
	}
	if p.StartDate, err = parseOptionalDate("start_date", "開始日", in.StartDate); err != nil {
		return err
	}
	if p.DueDate, err = parseOptionalDate("due_date", "期限", in.DueDate); err != nil {
		return err
	}
	if p.StartDate != nil && p.DueDate != nil && p.DueDate.Before(*p.StartDate) {
		return apperr.NewValidationError("due_date", "期限は開始日以降の日付を指定してください")
	}
	if p.Amount, err = parseDecimal("amount", "受注金額", in.Amount); err != nil {
		return err
	}
	if p.Details, err = validateDetails(in.Category, in.Details); err != nil {
		return err
	}
	if p.RevenueAllocations, err = validateAllocations(in.Allocations, p.Amount); err != nil {
		return err
	}

	p.Code = trim(in.Code)
	p.Name = trim(in.Name)
	p.Category = in.Category
	p.Status = status
	p.Notes = in.Notes
	return nil
}

func validProjectStatus(s string) bool {
	for _, st := range models.ProjectStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// validateDetails checks raw form values against the category's field set
// and converts them to typed JSON values. Blank values are dropped.
func validateDetails(category string, raw map[string]string) (models.JSONB, error) {
	cat, ok := models.CategoryByCode(category)
	if !ok {
		return nil, apperr.NewValidationError("category", "業務区分の指定が正しくありません")
	}
	known := make(map[string]models.CategoryField, len(cat.Fields))
	for _, f := range cat.Fields {
		known[f.Key] = f
	}
	for key := range raw {
		if _, ok := known[key]; !ok {
			return nil, apperr.NewValidationError("details."+key, fmt.Sprintf("%sの案件に「%s」は指定できません", cat.Label, key))
		}
	}

	details := make(models.JSONB)
	for _, f := range cat.Fields {
		v := trim(raw[f.Key])
		if v == "" {
			if f.Required {
				return nil, apperr.NewValidationError("details."+f.Key, f.Label+"は必須です")
			}
			continue
		}
		switch f.Kind {
		case models.FieldNumber:
			d, err := parseDecimal("details."+f.Key, f.Label, v)
			if err != nil {
				return nil, err
			}
			details[f.Key] = json.Number(d.String())
		case models.FieldDate:
			t, err := parseDate("details."+f.Key, f.Label, v)
			if err != nil {
				return nil, err
			}
			details[f.Key] = t.Format(dateLayout)
		case models.FieldBool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				b = v == "on"
			}
			details[f.Key] = b
		default:
			details[f.Key] = v
		}
	}
	return details, nil
}

// validateAllocations parses month → amount values. When amount is
// positive the allocations may not exceed it.
func validateAllocations(raw map[string]string, amount decimal.Decimal) (models.Allocations, error) {
	out := make(models.Allocations)
	for month, v := range raw {
		if trim(v) == "" {
			continue
		}
		if !models.ValidMonth(month) {
			return nil, apperr.NewValidationError("allocations", "売上計上月はYYYY-MMの形式で指定してください")
		}
		d, err := parseDecimal("allocations."+month, month+"の売上", v)
		if err != nil {
			return nil, err
		}
		if d.IsZero() {
			continue
		}
		out[month] = d
	}
	if amount.IsPositive() && out.Total().GreaterThan(amount) {
		return nil, apperr.NewValidationError("allocations", "売上配分の合計が受注金額を超えています")
	}
	return out, nil
}

// ProjectEngine manages projects and their stakeholders
type ProjectEngine struct {
	db           *gorm.DB
	projects     *Records[models.Project]
	stakeholders *Records[models.ProjectStakeholder]
	accounts     *Records[models.Account]
	contacts     *Records[models.Contact]
	employees    *Records[models.Employee]
	now          func() time.Time
}

// NewProjectEngine creates a project engine
func NewProjectEngine(db *gorm.DB) *ProjectEngine {
	return &ProjectEngine{
		db: db,
		projects: NewRecords[models.Project](db, "案件",
			[]string{"code", "name", "notes"},
			[]string{"code", "name", "category", "status", "start_date", "due_date", "amount", "created_at", "updated_at"},
			"created_at DESC"),
		stakeholders: NewRecords[models.ProjectStakeholder](db, "関係者", nil, nil, "created_at ASC"),
		accounts:     NewRecords[models.Account](db, "取引先", nil, nil, ""),
		contacts:     NewRecords[models.Contact](db, "担当者", nil, nil, ""),
		employees:    NewRecords[models.Employee](db, "社員", nil, nil, ""),
		now:          time.Now,
	}
}

func (e *ProjectEngine) filters(f ProjectFilter) ([]Scope, error) {
	filters := []Scope{e.projects.Search(f.Search)}
	if f.Category != "" {
		category := f.Category
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("category = ?", category) })
	}
	if f.Status != "" {
		status := f.Status
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) })
	}
	if f.AccountID != "" {
		id, err := parseUUID("account_id", "取引先", f.AccountID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("account_id = ?", id) })
	}
	if f.ManagerID != "" {
		id, err := parseUUID("manager_id", "主担当", f.ManagerID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB { return db.Where("manager_id = ?", id) })
	}
	return filters, nil
}

// List returns a page of projects
func (e *ProjectEngine) List(ctx context.Context, f ProjectFilter) (*ListResult[models.Project], error) {
	filters, err := e.filters(f)
	if err != nil {
		return nil, err
	}
	return e.projects.List(ctx, f.Page, filters, preload("Account"), preload("Manager"))
}

// Options returns every live project for pickers, newest first
func (e *ProjectEngine) Options(ctx context.Context) ([]models.Project, error) {
	return e.projects.All(ctx, []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "code", "name", "category", "account_id", "contact_id")
	}})
}

// Get returns a project with everything shown on its detail page
func (e *ProjectEngine) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return e.projects.Get(ctx, id, func(db *gorm.DB) *gorm.DB {
		return db.
			Preload("Account").
			Preload("Contact").
			Preload("Manager").
			Preload("Stakeholders", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
			Preload("Stakeholders.Account").
			Preload("Stakeholders.Contact").
			Preload("Tasks", func(db *gorm.DB) *gorm.DB {
				return db.Where("parent_id IS NULL").Order("sort_order ASC, created_at ASC")
			}).
			Preload("Tasks.Assignee").
			Preload("Tasks.Children", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, created_at ASC") }).
			Preload("Tasks.Children.Assignee").
			Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
			Preload("Comments.Employee").
			Preload("Invoices", func(db *gorm.DB) *gorm.DB { return db.Order("issue_date DESC") })
	})
}

// Create validates and inserts a project, assigning the next code for its
// category when none was given
func (e *ProjectEngine) Create(ctx context.Context, in ProjectInput) (*models.Project, error) {
	var p models.Project
	if err := in.apply(&p); err != nil {
		return nil, err
	}
	if err := e.checkRefs(ctx, &p); err != nil {
		return nil, err
	}
	if p.Code == "" {
		year := e.now().In(JST).Year()
		if p.StartDate != nil {
			year = p.StartDate.Year()
		}
		code, err := e.NextCode(ctx, p.Category, year)
		if err != nil {
			return nil, err
		}
		p.Code = code
	}
	if err := e.checkCode(ctx, p.Code, uuid.Nil); err != nil {
		return nil, err
	}
	if err := e.projects.Create(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update validates and writes a project
func (e *ProjectEngine) Update(ctx context.Context, id uuid.UUID, in ProjectInput) (*models.Project, error) {
	p, err := e.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	if p.Code == "" {
		return nil, apperr.NewValidationError("code", "案件コードは必須です")
	}
	if err := e.checkRefs(ctx, p); err != nil {
		return nil, err
	}
	if err := e.checkCode(ctx, p.Code, p.ID); err != nil {
		return nil, err
	}
	if err := e.projects.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete soft-deletes a project
func (e *ProjectEngine) Delete(ctx context.Context, id uuid.UUID) error {
	return e.projects.Delete(ctx, id)
}

// AddStakeholder links an account or contact to a project
func (e *ProjectEngine) AddStakeholder(ctx context.Context, projectID uuid.UUID, in StakeholderInput) (*models.ProjectStakeholder, error) {
	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	s := models.ProjectStakeholder{ProjectID: projectID, Notes: in.Notes, Tags: parseTags(in.Tags)}
	var err error
	if s.AccountID, err = parseOptionalUUID("account_id", "取引先", in.AccountID); err != nil {
		return nil, err
	}
	if s.ContactID, err = parseOptionalUUID("contact_id", "担当者", in.ContactID); err != nil {
		return nil, err
	}
	if s.AccountID == nil && s.ContactID == nil {
		return nil, apperr.NewValidationError("account_id", "取引先または担当者を指定してください")
	}
	if s.AccountID != nil {
		if _, err := e.accounts.Get(ctx, *s.AccountID); err != nil {
			return nil, err
		}
	}
	if s.ContactID != nil {
		if _, err := e.contacts.Get(ctx, *s.ContactID); err != nil {
			return nil, err
		}
	}
	if err := e.stakeholders.Create(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RemoveStakeholder soft-deletes a stakeholder link of the project
func (e *ProjectEngine) RemoveStakeholder(ctx context.Context, projectID, stakeholderID uuid.UUID) error {
	ok, err := e.stakeholders.Exists(ctx, "id = ? AND project_id = ?", stakeholderID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NewNotFoundError("関係者")
	}
	return e.stakeholders.Delete(ctx, stakeholderID)
}

// NextCode returns the next free <PREFIX>-<YYYY>-<NNN> code. Deleted
// projects keep their numbers.
func (e *ProjectEngine) NextCode(ctx context.Context, category string, year int) (string, error) {
	cat, ok := models.CategoryByCode(category)
	if !ok {
		return "", apperr.NewValidationError("category", "業務区分の指定が正しくありません")
	}
	prefix := fmt.Sprintf("%s-%04d-", cat.Prefix, year)

	var codes []string
	err := e.db.WithContext(ctx).Unscoped().Model(&models.Project{}).
		Where("code LIKE ?", prefix+"%").
		Pluck("code", &codes).Error
	if err != nil {
		return "", apperr.FromDB(err, "案件")
	}
	return fmt.Sprintf("%s%03d", prefix, nextSequence(codes, prefix)), nil
}

// MonthlyRevenue totals allocations per month over [from, to] across live
// projects that are not cancelled. Every month in range is present.
func (e *ProjectEngine) MonthlyRevenue(ctx context.Context, from, to string) ([]MonthRevenue, error) {
	months, err := monthRange(from, to)
	if err != nil {
		return nil, err
	}
	var rows []models.Project
	err = e.projects.Query(ctx).
		Select("id", "revenue_allocations").
		Where("status <> ?", models.ProjectCancelled).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.FromDB(err, "案件")
	}
	allocs := make([]models.Allocations, 0, len(rows))
	for _, r := range rows {
		allocs = append(allocs, r.RevenueAllocations)
	}
	return sumAllocations(months, allocs), nil
}

func (e *ProjectEngine) checkRefs(ctx context.Context, p *models.Project) error {
	if p.AccountID != nil {
		if _, err := e.accounts.Get(ctx, *p.AccountID); err != nil {
			return err
		}
	}
	if p.ContactID != nil {
		c, err := e.contacts.Get(ctx, *p.ContactID)
		if err != nil {
			return err
		}
		if p.AccountID != nil && c.AccountID != nil && *c.AccountID != *p.AccountID {
			return apperr.NewValidationError("contact_id", "担当者が取引先に所属していません")
		}
	}
	if p.ManagerID != nil {
		if _, err := e.employees.Get(ctx, *p.ManagerID); err != nil {
			return err
		}
	}
	return nil
}

func (e *ProjectEngine) checkCode(ctx context.Context, code string, except uuid.UUID) error {
	taken, err := e.projects.Taken(ctx, "code", code, except)
	if err != nil {
		return err
	}
	if taken {
		return apperr.NewConflictError("案件コード「" + code + "」")
	}
	return nil
}

// nextSequence returns one past the highest numeric suffix among codes
// starting with prefix
func nextSequence(codes []string, prefix string) int {
	max := 0
	for _, c := range codes {
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(c, prefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1
}

// monthRange expands YYYY-MM bounds, inclusive. At most five years.
func monthRange(from, to string) ([]string, error) {
	start, err := time.Parse("2006-01", from)
	if err != nil || !models.ValidMonth(from) {
		return nil, apperr.NewValidationError("from", "開始月はYYYY-MMの形式で指定してください")
	}
	end, err := time.Parse("2006-01", to)
	if err != nil || !models.ValidMonth(to) {
		return nil, apperr.NewValidationError("to", "終了月はYYYY-MMの形式で指定してください")
	}
	if end.Before(start) {
		return nil, apperr.NewValidationError("to", "終了月は開始月以降を指定してください")
	}
	var months []string
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m.Format("2006-01"))
		if len(months) > 60 {
			return nil, apperr.NewValidationError("to", "集計期間は60か月以内で指定してください")
		}
	}
	return months, nil
}

func sumAllocations(months []string, allocs []models.Allocations) []MonthRevenue {
	out := make([]MonthRevenue, len(months))
	for i, m := range months {
		total := decimal.Zero
		for _, a := range allocs {
			if v, ok := a[m]; ok {
				total = total.Add(v)
			}
		}
		out[i] = MonthRevenue{Month: m, Amount: total}
	}
	return out
}

// parseTags splits comma separated tags, trimming and de-duplicating
func parseTags(s string) pq.StringArray {
	s = strings.ReplaceAll(s, "、", ",")
	tags := pq.StringArray{}
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
