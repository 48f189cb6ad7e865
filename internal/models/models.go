// Package models contains the business records persisted by Daicho.
// Every record is soft-deleted through gorm.DeletedAt and carries audit
// timestamps.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base holds the identity and audit columns shared by every record
type Base struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns an id when the caller did not
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// =============================================================================
// CRM
// =============================================================================

// Account is a corporate customer
type Account struct {
	Base
	Code       string `json:"code" gorm:"size:50;not null"`
	Name       string `json:"name" gorm:"size:255;not null"`
	NameKana   string `json:"name_kana" gorm:"size:255"`
	PostalCode string `json:"postal_code" gorm:"size:8"`
	Address    string `json:"address"`
	Phone      string `json:"phone" gorm:"size:20"`
	Fax        string `json:"fax" gorm:"size:20"`
	Email      string `json:"email" gorm:"size:255"`
	Website    string `json:"website" gorm:"size:255"`
	Industry   string `json:"industry" gorm:"size:100"`
	Notes      string `json:"notes"`

	Branches []Branch  `json:"branches,omitempty" gorm:"foreignKey:AccountID"`
	Contacts []Contact `json:"contacts,omitempty" gorm:"foreignKey:AccountID"`
}

// Branch is a sub-location of an Account
type Branch struct {
	Base
	AccountID  uuid.UUID `json:"account_id" gorm:"type:uuid;index;not null"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	PostalCode string    `json:"postal_code" gorm:"size:8"`
	Address    string    `json:"address"`
	Phone      string    `json:"phone" gorm:"size:20"`
	SortOrder  int       `json:"sort_order"`
}

// Contact is a person, either attached to an Account or an individual customer
type Contact struct {
	Base
	AccountID     *uuid.UUID `json:"account_id" gorm:"type:uuid;index"`
	BranchID      *uuid.UUID `json:"branch_id" gorm:"type:uuid"`
	LastName      string     `json:"last_name" gorm:"size:100;not null"`
	FirstName     string     `json:"first_name" gorm:"size:100"`
	LastNameKana  string     `json:"last_name_kana" gorm:"size:100"`
	FirstNameKana string     `json:"first_name_kana" gorm:"size:100"`
	Department    string     `json:"department" gorm:"size:100"`
	Position      string     `json:"position" gorm:"size:100"`
	Email         string     `json:"email" gorm:"size:255"`
	Phone         string     `json:"phone" gorm:"size:20"`
	Mobile        string     `json:"mobile" gorm:"size:20"`
	PostalCode    string     `json:"postal_code" gorm:"size:8"`
	Address       string     `json:"address"`
	IsPrimary     bool       `json:"is_primary"`
	Notes         string     `json:"notes"`

	Account *Account `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Branch  *Branch  `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
}

// FullName returns the name in Japanese order
func (c Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	return c.LastName + " " + c.FirstName
}

// IsIndividual reports whether the contact stands alone without an account
func (c Contact) IsIndividual() bool {
	return c.AccountID == nil
}

// =============================================================================
// STAFF
// =============================================================================

// Role is an employee's permission level
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Employee is a staff member and the login identity
type Employee struct {
	Base
	Code         string          `json:"code" gorm:"size:50;not null"`
	LastName     string          `json:"last_name" gorm:"size:100;not null"`
	FirstName    string          `json:"first_name" gorm:"size:100"`
	Email        string          `json:"email" gorm:"size:255;not null"`
	PasswordHash string          `json:"-" gorm:"size:255"`
	Role         Role            `json:"role" gorm:"size:20;not null"`
	HourlyWage   decimal.Decimal `json:"hourly_wage" gorm:"type:numeric(10,0)"`
	IsActive     bool            `json:"is_active"`
	LastLoginAt  *time.Time      `json:"last_login_at"`
}

// FullName returns the name in Japanese order
func (e Employee) FullName() string {
	if e.FirstName == "" {
		return e.LastName
	}
	return e.LastName + " " + e.FirstName
}

// IsAdmin reports whether the employee has the admin role
func (e Employee) IsAdmin() bool {
	return e.Role == RoleAdmin
}

// =============================================================================
// PROJECTS
// =============================================================================

// Project categories
const (
	CategorySurvey       = "survey"
	CategoryRegistration = "registration"
	CategoryDrone        = "drone"
	CategoryFarmland     = "farmland"
)

// Project statuses
const (
	ProjectInquiry    = "inquiry"
	ProjectInProgress = "in_progress"
	ProjectCompleted  = "completed"
	ProjectCancelled  = "cancelled"
)

// Project is a tracked case with a category-specific details payload
type Project struct {
	Base
	Code               string          `json:"code" gorm:"size:50;not null"`
	Name               string          `json:"name" gorm:"size:255;not null"`
	Category           string          `json:"category" gorm:"size:30;not null"`
	Status             string          `json:"status" gorm:"size:30;not null"`
	AccountID          *uuid.UUID      `json:"account_id" gorm:"type:uuid;index"`
	ContactID          *uuid.UUID      `json:"contact_id" gorm:"type:uuid;index"`
	ManagerID          *uuid.UUID      `json:"manager_id" gorm:"type:uuid;index"`
	StartDate          *time.Time      `json:"start_date" gorm:"type:date"`
	DueDate            *time.Time      `json:"due_date" gorm:"type:date"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:numeric(14,0)"`
	Details            JSONB           `json:"details" gorm:"type:jsonb"`
	RevenueAllocations Allocations     `json:"revenue_allocations" gorm:"type:jsonb"`
	Notes              string          `json:"notes"`

	Account      *Account             `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Contact      *Contact             `json:"contact,omitempty" gorm:"foreignKey:ContactID"`
	Manager      *Employee            `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
	Stakeholders []ProjectStakeholder `json:"stakeholders,omitempty" gorm:"foreignKey:ProjectID"`
	Tasks        []Task               `json:"tasks,omitempty" gorm:"foreignKey:ProjectID"`
	Comments     []Comment            `json:"comments,omitempty" gorm:"foreignKey:ProjectID"`
	Invoices     []Invoice            `json:"invoices,omitempty" gorm:"foreignKey:ProjectID"`
}

// ProjectStakeholder tags a relationship between a Project and an
// Account or Contact other than the primary customer
type ProjectStakeholder struct {
	Base
	ProjectID uuid.UUID      `json:"project_id" gorm:"type:uuid;index;not null"`
	AccountID *uuid.UUID     `json:"account_id" gorm:"type:uuid"`
	ContactID *uuid.UUID     `json:"contact_id" gorm:"type:uuid"`
	Tags      pq.StringArray `json:"tags" gorm:"type:text[]"`
	Notes     string         `json:"notes"`

	Account *Account `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Contact *Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID"`
}

// Task statuses
const (
	TaskTodo  = "todo"
	TaskDoing = "doing"
	TaskDone  = "done"
)

// Task is a to-do item scoped to a Project, nested at most one level
type Task struct {
	Base
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;index;not null"`
	ParentID    *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	Title       string     `json:"title" gorm:"size:255;not null"`
	Description string     `json:"description"`
	AssigneeID  *uuid.UUID `json:"assignee_id" gorm:"type:uuid;index"`
	DueDate     *time.Time `json:"due_date" gorm:"type:date"`
	Status      string     `json:"status" gorm:"size:20;not null"`
	SortOrder   int        `json:"sort_order"`
	CompletedAt *time.Time `json:"completed_at"`

	Assignee *Employee `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	Project  *Project  `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Children []Task    `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

// Comment is a note left on a Project
type Comment struct {
	Base
	ProjectID  uuid.UUID `json:"project_id" gorm:"type:uuid;index;not null"`
	EmployeeID uuid.UUID `json:"employee_id" gorm:"type:uuid;not null"`
	Body       string    `json:"body" gorm:"not null"`

	Employee *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

// =============================================================================
// CALENDAR & ATTENDANCE
// =============================================================================

// CalendarEvent is a scheduled item, optionally linked to a Project or Task
type CalendarEvent struct {
	Base
	Title       string     `json:"title" gorm:"size:255;not null"`
	Description string     `json:"description"`
	Location    string     `json:"location" gorm:"size:255"`
	StartAt     time.Time  `json:"start_at" gorm:"not null;index"`
	EndAt       time.Time  `json:"end_at" gorm:"not null;index"`
	AllDay      bool       `json:"all_day"`
	Color       string     `json:"color" gorm:"size:20"`
	ProjectID   *uuid.UUID `json:"project_id" gorm:"type:uuid;index"`
	TaskID      *uuid.UUID `json:"task_id" gorm:"type:uuid"`
	CreatedBy   uuid.UUID  `json:"created_by" gorm:"type:uuid"`

	Participants []EventParticipant `json:"participants,omitempty" gorm:"foreignKey:EventID"`
	Project      *Project           `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
}

// EventParticipant links an employee to a CalendarEvent
type EventParticipant struct {
	EventID    uuid.UUID `json:"event_id" gorm:"type:uuid;primaryKey"`
	EmployeeID uuid.UUID `json:"employee_id" gorm:"type:uuid;primaryKey"`

	Employee *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

// AttendanceRecord is one employee's clock-in/out for one work day
type AttendanceRecord struct {
	Base
	EmployeeID   uuid.UUID  `json:"employee_id" gorm:"type:uuid;index;not null"`
	WorkDate     time.Time  `json:"work_date" gorm:"type:date;not null"`
	ClockInAt    time.Time  `json:"clock_in_at" gorm:"not null"`
	ClockOutAt   *time.Time `json:"clock_out_at"`
	BreakMinutes int        `json:"break_minutes"`
	Note         string     `json:"note"`

	Employee *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

// WorkedMinutes returns minutes worked net of breaks, zero while still open
func (r AttendanceRecord) WorkedMinutes() int {
	if r.ClockOutAt == nil {
		return 0
	}
	m := int(r.ClockOutAt.Sub(r.ClockInAt).Minutes()) - r.BreakMinutes
	if m < 0 {
		return 0
	}
	return m
}

// =============================================================================
// INVOICES
// =============================================================================

// Invoice statuses
const (
	InvoiceDraft  = "draft"
	InvoiceIssued = "issued"
	InvoicePaid   = "paid"
	InvoiceVoid   = "void"
)

// Invoice is a bill issued for a Project
type Invoice struct {
	Base
	ProjectID          uuid.UUID       `json:"project_id" gorm:"type:uuid;index;not null"`
	InvoiceNumber      string          `json:"invoice_number" gorm:"size:50;not null"`
	IssuerName         string          `json:"issuer_name" gorm:"size:255"`
	RegistrationNumber string          `json:"registration_number" gorm:"size:20"`
	AccountID          *uuid.UUID      `json:"account_id" gorm:"type:uuid;index"`
	ContactID          *uuid.UUID      `json:"contact_id" gorm:"type:uuid"`
	IssueDate          time.Time       `json:"issue_date" gorm:"type:date;not null"`
	DueDate            *time.Time      `json:"due_date" gorm:"type:date"`
	Status             string          `json:"status" gorm:"size:20;not null"`
	TaxRate            decimal.Decimal `json:"tax_rate" gorm:"type:numeric(4,2)"`
	Subtotal           decimal.Decimal `json:"subtotal" gorm:"type:numeric(14,0)"`
	Tax                decimal.Decimal `json:"tax" gorm:"type:numeric(14,0)"`
	Total              decimal.Decimal `json:"total" gorm:"type:numeric(14,0)"`
	Notes              string          `json:"notes"`

	Lines   []InvoiceLine `json:"lines,omitempty" gorm:"foreignKey:InvoiceID"`
	Project *Project      `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Account *Account      `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Contact *Contact      `json:"contact,omitempty" gorm:"foreignKey:ContactID"`
}

// InvoiceLine is one billed item
type InvoiceLine struct {
	Base
	InvoiceID   uuid.UUID       `json:"invoice_id" gorm:"type:uuid;index;not null"`
	Description string          `json:"description" gorm:"size:255;not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(10,2)"`
	Unit        string          `json:"unit" gorm:"size:20"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(14,0)"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(14,0)"`
	SortOrder   int             `json:"sort_order"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// DocumentTemplate is an uploaded Word file with placeholders
type DocumentTemplate struct {
	Base
	Name         string         `json:"name" gorm:"size:255;not null"`
	Category     string         `json:"category" gorm:"size:30"`
	Description  string         `json:"description"`
	FileName     string         `json:"file_name" gorm:"size:255;not null"`
	StorageKey   string         `json:"-" gorm:"size:512;not null"`
	ContentType  string         `json:"content_type" gorm:"size:255"`
	Size         int64          `json:"size"`
	Placeholders pq.StringArray `json:"placeholders" gorm:"type:text[]"`
}

// GeneratedDocument is a document rendered from a template for a project
type GeneratedDocument struct {
	Base
	TemplateID  uuid.UUID `json:"template_id" gorm:"type:uuid;index;not null"`
	ProjectID   uuid.UUID `json:"project_id" gorm:"type:uuid;index;not null"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	StorageKey  string    `json:"-" gorm:"size:512;not null"`
	GeneratedBy uuid.UUID `json:"generated_by" gorm:"type:uuid"`

	Template *DocumentTemplate `json:"template,omitempty" gorm:"foreignKey:TemplateID"`
}
