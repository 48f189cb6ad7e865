package engine

import (
	"context"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactFilter narrows a contact listing
type ContactFilter struct {
	Page
	Search          string `form:"q"`
	AccountID       string `form:"account_id"`
	IndividualsOnly bool   `form:"individuals"`
}

// ContactInput is the contact form
type ContactInput struct {
	AccountID     string `form:"account_id" json:"account_id"`
	BranchID      string `form:"branch_id" json:"branch_id"`
	LastName      string `form:"last_name" json:"last_name"`
	FirstName     string `form:"first_name" json:"first_name"`
	LastNameKana  string `form:"last_name_kana" json:"last_name_kana"`
	FirstNameKana string `form:"first_name_kana" json:"first_name_kana"`
	Department    string `form:"department" json:"department"`
	Position      string `form:"position" json:"position"`
	Email         string `form:"email" json:"email"`
	Phone         string `form:"phone" json:"phone"`
	Mobile        string `form:"mobile" json:"mobile"`
	PostalCode    string `form:"postal_code" json:"postal_code"`
	Address       string `form:"address" json:"address"`
	IsPrimary     bool   `form:"is_primary" json:"is_primary"`
	Notes         string `form:"notes" json:"notes"`
}

func (in ContactInput) apply(c *models.Contact) error {
	if err := required("last_name", "氏名（姓）", in.LastName); err != nil {
		return err
	}
	accountID, err := parseOptionalUUID("account_id", "取引先", in.AccountID)
	if err != nil {
		return err
	}
	branchID, err := parseOptionalUUID("branch_id", "支店", in.BranchID)
	if err != nil {
		return err
	}
	if branchID != nil && accountID == nil {
		return apperr.NewValidationError("branch_id", "支店を指定する場合は取引先も指定してください")
	}
	postal, err := NormalizePostalCode(in.PostalCode)
	if err != nil {
		return err
	}
	if err := validEmail("email", trim(in.Email)); err != nil {
		return err
	}

	c.AccountID = accountID
	c.BranchID = branchID
	c.LastName = trim(in.LastName)
	c.FirstName = trim(in.FirstName)
	c.LastNameKana = trim(in.LastNameKana)
	c.FirstNameKana = trim(in.FirstNameKana)
	c.Department = trim(in.Department)
	c.Position = trim(in.Position)
	c.Email = trim(in.Email)
	c.Phone = trim(in.Phone)
	c.Mobile = trim(in.Mobile)
	c.PostalCode = postal
	c.Address = trim(in.Address)
	c.IsPrimary = in.IsPrimary && accountID != nil
	c.Notes = in.Notes
	return nil
}

// ContactEngine manages people, keeping exactly one primary contact per
// account that has any contacts
type ContactEngine struct {
	db       *gorm.DB
	contacts *Records[models.Contact]
	accounts *Records[models.Account]
	branches *Records[models.Branch]
}

// NewContactEngine creates a contact engine
func NewContactEngine(db *gorm.DB) *ContactEngine {
	return &ContactEngine{
		db: db,
		contacts: NewRecords[models.Contact](db, "担当者",
			[]string{"last_name", "first_name", "last_name_kana", "first_name_kana", "email", "phone", "mobile"},
			[]string{"last_name_kana", "last_name", "created_at", "updated_at"},
			"last_name_kana ASC, last_name ASC"),
		accounts: NewRecords[models.Account](db, "取引先", nil, nil, ""),
		branches: NewRecords[models.Branch](db, "支店", nil, nil, ""),
	}
}

func (e *ContactEngine) filters(f ContactFilter) ([]Scope, error) {
	filters := []Scope{e.contacts.Search(f.Search)}
	if f.IndividualsOnly {
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("account_id IS NULL")
		})
	} else if f.AccountID != "" {
		id, err := parseUUID("account_id", "取引先", f.AccountID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("account_id = ?", id)
		})
	}
	return filters, nil
}

// List returns a page of contacts with their account
func (e *ContactEngine) List(ctx context.Context, f ContactFilter) (*ListResult[models.Contact], error) {
	filters, err := e.filters(f)
	if err != nil {
		return nil, err
	}
	return e.contacts.List(ctx, f.Page, filters, preload("Account"))
}

// All returns every contact matching f
func (e *ContactEngine) All(ctx context.Context, f ContactFilter) ([]models.Contact, error) {
	filters, err := e.filters(f)
	if err != nil {
		return nil, err
	}
	return e.contacts.All(ctx, filters, preload("Account"), preload("Branch"))
}

// Get returns a contact with its account and branch
func (e *ContactEngine) Get(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	return e.contacts.Get(ctx, id, preload("Account"), preload("Branch"))
}

// Create inserts a contact and settles the account's primary flag
func (e *ContactEngine) Create(ctx context.Context, in ContactInput) (*models.Contact, error) {
	var c models.Contact
	if err := in.apply(&c); err != nil {
		return nil, err
	}
	if err := e.checkRefs(ctx, &c); err != nil {
		return nil, err
	}
	if err := e.contacts.Create(ctx, &c); err != nil {
		return nil, err
	}
	if c.AccountID != nil {
		if err := e.ensurePrimary(ctx, *c.AccountID, preferredID(&c)); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Update writes a contact. Both the old and new account have their
// primary flag settled when the contact moved.
func (e *ContactEngine) Update(ctx context.Context, id uuid.UUID, in ContactInput) (*models.Contact, error) {
	c, err := e.contacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldAccount := c.AccountID
	if err := in.apply(c); err != nil {
		return nil, err
	}
	if err := e.checkRefs(ctx, c); err != nil {
		return nil, err
	}
	if err := e.contacts.Save(ctx, c); err != nil {
		return nil, err
	}

	if c.AccountID != nil {
		if err := e.ensurePrimary(ctx, *c.AccountID, preferredID(c)); err != nil {
			return nil, err
		}
	}
	if oldAccount != nil && (c.AccountID == nil || *oldAccount != *c.AccountID) {
		if err := e.ensurePrimary(ctx, *oldAccount, uuid.Nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Delete soft-deletes a contact, promoting another to primary if needed
func (e *ContactEngine) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := e.contacts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.contacts.Delete(ctx, id); err != nil {
		return err
	}
	if c.AccountID != nil {
		return e.ensurePrimary(ctx, *c.AccountID, uuid.Nil)
	}
	return nil
}

func (e *ContactEngine) checkRefs(ctx context.Context, c *models.Contact) error {
	if c.AccountID == nil {
		return nil
	}
	if _, err := e.accounts.Get(ctx, *c.AccountID); err != nil {
		return err
	}
	if c.BranchID != nil {
		ok, err := e.branches.Exists(ctx, "id = ? AND account_id = ?", *c.BranchID, *c.AccountID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NewNotFoundError("支店")
		}
	}
	return nil
}

// ensurePrimary loads the live contacts of an account and rewrites the
// is_primary flags that differ from primaryFlags
func (e *ContactEngine) ensurePrimary(ctx context.Context, accountID, preferred uuid.UUID) error {
	var siblings []models.Contact
	err := e.contacts.Query(ctx).
		Select("id", "is_primary", "created_at").
		Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").
		Find(&siblings).Error
	if err != nil {
		return apperr.FromDB(err, "担当者")
	}

	flags := primaryFlags(siblings, preferred)
	for _, s := range siblings {
		if flags[s.ID] == s.IsPrimary {
			continue
		}
		err := e.db.WithContext(ctx).Model(&models.Contact{}).
			Where("id = ?", s.ID).
			UpdateColumn("is_primary", flags[s.ID]).Error
		if err != nil {
			return apperr.FromDB(err, "担当者")
		}
	}
	return nil
}

func preferredID(c *models.Contact) uuid.UUID {
	if c.IsPrimary {
		return c.ID
	}
	return uuid.Nil
}

// primaryFlags decides which of an account's contacts (ordered oldest
// first) is primary: the preferred one when present, else the oldest
// contact already flagged, else the oldest contact.
func primaryFlags(contacts []models.Contact, preferred uuid.UUID) map[uuid.UUID]bool {
	flags := make(map[uuid.UUID]bool, len(contacts))
	if len(contacts) == 0 {
		return flags
	}

	chosen := uuid.Nil
	for _, c := range contacts {
		if preferred != uuid.Nil && c.ID == preferred {
			chosen = c.ID
			break
		}
	}
	if chosen == uuid.Nil {
		for _, c := range contacts {
			if c.IsPrimary {
				chosen = c.ID
				break
			}
		}
	}
	if chosen == uuid.Nil {
		chosen = contacts[0].ID
	}

	for _, c := range contacts {
		flags[c.ID] = c.ID == chosen
	}
	return flags
}

func preload(name string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Preload(name)
	}
}
