package engine

import (
	"context"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountFilter narrows an account listing
type AccountFilter struct {
	Page
	Search   string `form:"q"`
	Industry string `form:"industry"`
}

// BranchInput is one branch row submitted with an account form
type BranchInput struct {
	Name       string `form:"name" json:"name"`
	PostalCode string `form:"postal_code" json:"postal_code"`
	Address    string `form:"address" json:"address"`
	Phone      string `form:"phone" json:"phone"`
}

// AccountInput is the account form
type AccountInput struct {
	Code       string `form:"code" json:"code"`
	Name       string `form:"name" json:"name"`
	NameKana   string `form:"name_kana" json:"name_kana"`
	PostalCode string `form:"postal_code" json:"postal_code"`
	Address    string `form:"address" json:"address"`
	Phone      string `form:"phone" json:"phone"`
	Fax        string `form:"fax" json:"fax"`
	Email      string `form:"email" json:"email"`
	Website    string `form:"website" json:"website"`
	Industry   string `form:"industry" json:"industry"`
	Notes      string `form:"notes" json:"notes"`

	Branches []BranchInput `form:"-" json:"branches"`
}

func (in AccountInput) apply(a *models.Account) error {
	if err := required("code", "取引先コード", in.Code); err != nil {
		return err
	}
	if err := required("name", "取引先名", in.Name); err != nil {
		return err
	}
	postal, err := NormalizePostalCode(in.PostalCode)
	if err != nil {
		return err
	}
	if err := validEmail("email", trim(in.Email)); err != nil {
		return err
	}

	a.Code = trim(in.Code)
	a.Name = trim(in.Name)
	a.NameKana = trim(in.NameKana)
	a.PostalCode = postal
	a.Address = trim(in.Address)
	a.Phone = trim(in.Phone)
	a.Fax = trim(in.Fax)
	a.Email = trim(in.Email)
	a.Website = trim(in.Website)
	a.Industry = trim(in.Industry)
	a.Notes = in.Notes
	return nil
}

// branches converts the submitted rows, skipping entirely blank ones
func (in AccountInput) branches(accountID uuid.UUID) ([]models.Branch, error) {
	out := make([]models.Branch, 0, len(in.Branches))
	for _, b := range in.Branches {
		if trim(b.Name) == "" && trim(b.Address) == "" && trim(b.Phone) == "" && trim(b.PostalCode) == "" {
			continue
		}
		if err := required("branches.name", "支店名", b.Name); err != nil {
			return nil, err
		}
		postal, err := NormalizePostalCode(b.PostalCode)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Branch{
			AccountID:  accountID,
			Name:       trim(b.Name),
			PostalCode: postal,
			Address:    trim(b.Address),
			Phone:      trim(b.Phone),
			SortOrder:  len(out),
		})
	}
	return out, nil
}

// AccountEngine manages corporate customers and their branches
type AccountEngine struct {
	accounts *Records[models.Account]
	branches *Records[models.Branch]
}

// NewAccountEngine creates an account engine
func NewAccountEngine(db *gorm.DB) *AccountEngine {
	return &AccountEngine{
		accounts: NewRecords[models.Account](db, "取引先",
			[]string{"code", "name", "name_kana", "address", "phone"},
			[]string{"code", "name", "name_kana", "industry", "created_at", "updated_at"},
			"code ASC"),
		branches: NewRecords[models.Branch](db, "支店", nil, nil, "sort_order ASC"),
	}
}

// List returns a page of accounts
func (e *AccountEngine) List(ctx context.Context, f AccountFilter) (*ListResult[models.Account], error) {
	filters := []Scope{e.accounts.Search(f.Search)}
	if f.Industry != "" {
		industry := f.Industry
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("industry = ?", industry)
		})
	}
	return e.accounts.List(ctx, f.Page, filters)
}

// All returns every account matching f, for exports and pickers
func (e *AccountEngine) All(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	filters := []Scope{e.accounts.Search(f.Search)}
	if f.Industry != "" {
		industry := f.Industry
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("industry = ?", industry)
		})
	}
	return e.accounts.All(ctx, filters)
}

// Get returns an account with its branches and contacts
func (e *AccountEngine) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return e.accounts.Get(ctx, id, func(db *gorm.DB) *gorm.DB {
		return db.
			Preload("Branches", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
			Preload("Contacts", func(db *gorm.DB) *gorm.DB { return db.Order("is_primary DESC, created_at ASC") })
	})
}

// Create validates and inserts an account, then each branch
func (e *AccountEngine) Create(ctx context.Context, in AccountInput) (*models.Account, error) {
	var a models.Account
	if err := in.apply(&a); err != nil {
		return nil, err
	}
	a.ID = uuid.New()
	branches, err := in.branches(a.ID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCode(ctx, a.Code, uuid.Nil); err != nil {
		return nil, err
	}
	if err := e.accounts.Create(ctx, &a); err != nil {
		return nil, err
	}
	for i := range branches {
		if err := e.branches.Create(ctx, &branches[i]); err != nil {
			return nil, err
		}
	}
	a.Branches = branches
	return &a, nil
}

// Update writes the account fields, then replaces its branches by
// soft-deleting the old rows and inserting the submitted ones. The
// statements run one after another; the first failure is returned and
// earlier statements stay applied.
func (e *AccountEngine) Update(ctx context.Context, id uuid.UUID, in AccountInput) (*models.Account, error) {
	a, err := e.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(a); err != nil {
		return nil, err
	}
	branches, err := in.branches(a.ID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCode(ctx, a.Code, a.ID); err != nil {
		return nil, err
	}

	if err := e.accounts.Save(ctx, a); err != nil {
		return nil, err
	}
	if err := e.branches.DeleteWhere(ctx, "account_id = ?", a.ID); err != nil {
		return nil, err
	}
	for i := range branches {
		if err := e.branches.Create(ctx, &branches[i]); err != nil {
			return nil, err
		}
	}
	a.Branches = branches
	return a, nil
}

// Delete soft-deletes the account and its branches. Contacts and projects
// keep their reference.
func (e *AccountEngine) Delete(ctx context.Context, id uuid.UUID) error {
	if err := e.accounts.Delete(ctx, id); err != nil {
		return err
	}
	return e.branches.DeleteWhere(ctx, "account_id = ?", id)
}

// Industries returns the distinct industries in use, for the filter menu
func (e *AccountEngine) Industries(ctx context.Context) ([]string, error) {
	var out []string
	err := e.accounts.Query(ctx).
		Where("industry <> ''").
		Distinct("industry").
		Order("industry").
		Pluck("industry", &out).Error
	if err != nil {
		return nil, apperr.FromDB(err, "取引先")
	}
	return out, nil
}

func (e *AccountEngine) checkCode(ctx context.Context, code string, except uuid.UUID) error {
	taken, err := e.accounts.Taken(ctx, "code", code, except)
	if err != nil {
		return err
	}
	if taken {
		return apperr.NewConflictError("取引先コード「" + code + "」")
	}
	return nil
}
