package engine

import (
	"context"
	"strings"
	"time"

	"github.com/aethra/daicho/internal/auth"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmployeeInput is the employee form. An empty Password keeps the current one
// on update.
type EmployeeInput struct {
	Code       string `form:"code" json:"code"`
	LastName   string `form:"last_name" json:"last_name"`
	FirstName  string `form:"first_name" json:"first_name"`
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	Role       string `form:"role" json:"role"`
	HourlyWage string `form:"hourly_wage" json:"hourly_wage"`
	IsActive   bool   `form:"is_active" json:"is_active"`
}

func (in EmployeeInput) apply(emp *models.Employee, creating bool) error {
	if err := required("code", "社員コード", in.Code); err != nil {
		return err
	}
	if err := required("last_name", "氏名（姓）", in.LastName); err != nil {
		return err
	}
	if err := required("email", "メールアドレス", in.Email); err != nil {
		return err
	}
	email := strings.ToLower(trim(in.Email))
	if err := validEmail("email", email); err != nil {
		return err
	}
	role := models.Role(in.Role)
	if role == "" {
		role = models.RoleStaff
	}
	if role != models.RoleAdmin && role != models.RoleStaff {
		return apperr.NewValidationError("role", "権限の指定が正しくありません")
	}
	wage, err := parseDecimal("hourly_wage", "時給", in.HourlyWage)
	if err != nil {
		return err
	}
	if creating || in.Password != "" {
		if err := auth.ValidatePassword(in.Password); err != nil {
			return apperr.NewValidationError("password", err.Error())
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return apperr.NewInternalError(err)
		}
		emp.PasswordHash = hash
	}

	emp.Code = trim(in.Code)
	emp.LastName = trim(in.LastName)
	emp.FirstName = trim(in.FirstName)
	emp.Email = email
	emp.Role = role
	emp.HourlyWage = wage
	emp.IsActive = in.IsActive
	return nil
}

// EmployeeEngine manages staff and their login identity
type EmployeeEngine struct {
	employees *Records[models.Employee]
}

// NewEmployeeEngine creates an employee engine
func NewEmployeeEngine(db *gorm.DB) *EmployeeEngine {
	return &EmployeeEngine{
		employees: NewRecords[models.Employee](db, "社員",
			[]string{"code", "last_name", "first_name", "email"},
			[]string{"code", "last_name", "email", "role", "created_at"},
			"code ASC"),
	}
}

// List returns a page of employees
func (e *EmployeeEngine) List(ctx context.Context, search string, p Page) (*ListResult[models.Employee], error) {
	return e.employees.List(ctx, p, []Scope{e.employees.Search(search)})
}

// Active returns every active employee, for assignee and participant pickers
func (e *EmployeeEngine) Active(ctx context.Context) ([]models.Employee, error) {
	return e.employees.All(ctx, []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ?", true)
	}})
}

// Get returns an employee by id
func (e *EmployeeEngine) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return e.employees.Get(ctx, id)
}

// GetByEmail returns an employee by login email
func (e *EmployeeEngine) GetByEmail(ctx context.Context, email string) (*models.Employee, error) {
	var emp models.Employee
	err := e.employees.Query(ctx).
		Where("lower(email) = ?", strings.ToLower(trim(email))).
		First(&emp).Error
	if err != nil {
		return nil, apperr.FromDB(err, "社員")
	}
	return &emp, nil
}

// Count returns the number of live employees
func (e *EmployeeEngine) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := e.employees.Query(ctx).Count(&n).Error; err != nil {
		return 0, apperr.FromDB(err, "社員")
	}
	return n, nil
}

// Create hashes the password and inserts an employee
func (e *EmployeeEngine) Create(ctx context.Context, in EmployeeInput) (*models.Employee, error) {
	var emp models.Employee
	if err := in.apply(&emp, true); err != nil {
		return nil, err
	}
	if err := e.checkUnique(ctx, &emp); err != nil {
		return nil, err
	}
	if err := e.employees.Create(ctx, &emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

// Update writes an employee, changing the password only when one is given
func (e *EmployeeEngine) Update(ctx context.Context, id uuid.UUID, in EmployeeInput) (*models.Employee, error) {
	emp, err := e.employees.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(emp, false); err != nil {
		return nil, err
	}
	if err := e.checkUnique(ctx, emp); err != nil {
		return nil, err
	}
	if err := e.employees.Save(ctx, emp); err != nil {
		return nil, err
	}
	return emp, nil
}

// Delete soft-deletes an employee
func (e *EmployeeEngine) Delete(ctx context.Context, id uuid.UUID) error {
	return e.employees.Delete(ctx, id)
}

// Authenticate checks an email and password. Unknown, inactive and wrong
// password all produce the same Unauthorized error.
func (e *EmployeeEngine) Authenticate(ctx context.Context, email, password string) (*models.Employee, error) {
	invalid := apperr.NewUnauthorizedError("メールアドレスまたはパスワードが正しくありません")

	emp, err := e.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, invalid
		}
		return nil, err
	}
	if !emp.IsActive || emp.PasswordHash == "" {
		return nil, invalid
	}
	if !auth.CheckPassword(password, emp.PasswordHash) {
		return nil, invalid
	}
	return emp, nil
}

// TouchLogin records a successful login
func (e *EmployeeEngine) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := e.employees.Query(ctx).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
	return apperr.FromDB(err, "社員")
}

func (e *EmployeeEngine) checkUnique(ctx context.Context, emp *models.Employee) error {
	taken, err := e.employees.Taken(ctx, "code", emp.Code, emp.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.NewConflictError("社員コード「" + emp.Code + "」")
	}
	taken, err = e.employees.Taken(ctx, "email", emp.Email, emp.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.NewConflictError("メールアドレス「" + emp.Email + "」")
	}
	return nil
}
