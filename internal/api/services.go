package api

import (
	"context"
	"time"

	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
)

// The handlers depend on these narrow views of the engines so they can be
// tested with fakes. The engine types satisfy them.

type AccountService interface {
	List(ctx context.Context, f engine.AccountFilter) (*engine.ListResult[models.Account], error)
	All(ctx context.Context, f engine.AccountFilter) ([]models.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Create(ctx context.Context, in engine.AccountInput) (*models.Account, error)
	Update(ctx context.Context, id uuid.UUID, in engine.AccountInput) (*models.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Industries(ctx context.Context) ([]string, error)
}

type ContactService interface {
	List(ctx context.Context, f engine.ContactFilter) (*engine.ListResult[models.Contact], error)
	All(ctx context.Context, f engine.ContactFilter) ([]models.Contact, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	Create(ctx context.Context, in engine.ContactInput) (*models.Contact, error)
	Update(ctx context.Context, id uuid.UUID, in engine.ContactInput) (*models.Contact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type EmployeeService interface {
	List(ctx context.Context, search string, p engine.Page) (*engine.ListResult[models.Employee], error)
	Active(ctx context.Context) ([]models.Employee, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, in engine.EmployeeInput) (*models.Employee, error)
	Update(ctx context.Context, id uuid.UUID, in engine.EmployeeInput) (*models.Employee, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Authenticate(ctx context.Context, email, password string) (*models.Employee, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type ProjectService interface {
	List(ctx context.Context, f engine.ProjectFilter) (*engine.ListResult[models.Project], error)
	Options(ctx context.Context) ([]models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Create(ctx context.Context, in engine.ProjectInput) (*models.Project, error)
	Update(ctx context.Context, id uuid.UUID, in engine.ProjectInput) (*models.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddStakeholder(ctx context.Context, projectID uuid.UUID, in engine.StakeholderInput) (*models.ProjectStakeholder, error)
	RemoveStakeholder(ctx context.Context, projectID, stakeholderID uuid.UUID) error
	MonthlyRevenue(ctx context.Context, from, to string) ([]engine.MonthRevenue, error)
}

type TaskService interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Task, error)
	ListByAssignee(ctx context.Context, employeeID uuid.UUID, includeDone bool) ([]models.Task, error)
	Create(ctx context.Context, projectID uuid.UUID, in engine.TaskInput) (*models.Task, error)
	Update(ctx context.Context, projectID, id uuid.UUID, in engine.TaskInput) (*models.Task, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Task, error)
	Delete(ctx context.Context, projectID, id uuid.UUID) error
	Reorder(ctx context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error
}

type CommentService interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Comment, error)
	Create(ctx context.Context, projectID uuid.UUID, actor engine.Actor, body string) (*models.Comment, error)
	Delete(ctx context.Context, projectID, id uuid.UUID, actor engine.Actor) error
}

type CalendarService interface {
	ListRange(ctx context.Context, from, to time.Time, f engine.EventFilter) ([]models.CalendarEvent, error)
	Create(ctx context.Context, actor engine.Actor, in engine.EventInput) (*models.CalendarEvent, error)
	Update(ctx context.Context, id uuid.UUID, in engine.EventInput) (*models.CalendarEvent, error)
	Move(ctx context.Context, id uuid.UUID, startAt, endAt time.Time) (*models.CalendarEvent, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AttendanceService interface {
	ClockIn(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error)
	ClockOut(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error)
	Today(ctx context.Context, employeeID uuid.UUID, at time.Time) (*models.AttendanceRecord, error)
	Month(ctx context.Context, employeeID uuid.UUID, year int, month time.Month) (*engine.MonthReport, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error)
	Update(ctx context.Context, id uuid.UUID, in engine.AttendanceInput) (*models.AttendanceRecord, error)
}

type InvoiceService interface {
	List(ctx context.Context, f engine.InvoiceFilter) (*engine.ListResult[models.Invoice], error)
	All(ctx context.Context, f engine.InvoiceFilter) ([]models.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Create(ctx context.Context, in engine.InvoiceInput) (*models.Invoice, error)
	Update(ctx context.Context, id uuid.UUID, in engine.InvoiceInput) (*models.Invoice, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Invoice, error)
}

type TemplateService interface {
	List(ctx context.Context, category string) ([]models.DocumentTemplate, error)
	Upload(ctx context.Context, up engine.TemplateUpload) (*models.DocumentTemplate, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Generate(ctx context.Context, templateID, projectID uuid.UUID, actor engine.Actor) (*models.GeneratedDocument, error)
	Documents(ctx context.Context, projectID uuid.UUID) ([]models.GeneratedDocument, error)
	Download(ctx context.Context, documentID uuid.UUID) (*engine.Download, error)
	DownloadTemplate(ctx context.Context, templateID uuid.UUID) (*engine.Download, error)
}

// SettingsStore reads and writes the company profile
type SettingsStore interface {
	Company() config.CompanyProfile
	SaveCompany(p config.CompanyProfile) error
	TaxRate() string
}

// PostalGuesser looks up postal codes from addresses
type PostalGuesser interface {
	Guess(ctx context.Context, address string) (string, error)
}

// Services bundles everything the handlers call
type Services struct {
	Accounts   AccountService
	Contacts   ContactService
	Employees  EmployeeService
	Projects   ProjectService
	Tasks      TaskService
	Comments   CommentService
	Calendar   CalendarService
	Attendance AttendanceService
	Invoices   InvoiceService
	Templates  TemplateService
	Settings   SettingsStore
	Postal     PostalGuesser
}
