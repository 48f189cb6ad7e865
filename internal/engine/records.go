// Package engine holds the data-access and mutation layer for every
// business slice. Each engine is a thin set of operations over a
// soft-deleted table built on Records.
package engine

import (
	"context"
	"errors"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope narrows a query
type Scope = func(*gorm.DB) *gorm.DB

// =============================================================================
// QUERY TYPES
// =============================================================================

// Page represents paging and sorting of a list request
type Page struct {
	Page     int    `form:"page" json:"page"`
	PageSize int    `form:"page_size" json:"page_size"`
	Sort     string `form:"sort" json:"sort"`
	SortDir  string `form:"dir" json:"sort_dir"`
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

// ListResult represents one page of records
type ListResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// HasNext reports whether a later page exists
func (r ListResult[T]) HasNext() bool { return r.Page < r.TotalPages }

// HasPrev reports whether an earlier page exists
func (r ListResult[T]) HasPrev() bool { return r.Page > 1 }

// =============================================================================
// RECORDS
// =============================================================================

// Records is the soft-delete CRUD shared by every engine. gorm.DeletedAt on
// the model keeps deleted rows out of every query it builds.
type Records[T any] struct {
	db           *gorm.DB
	resource     string
	search       []string
	sortable     map[string]bool
	defaultOrder string
}

// NewRecords creates a record helper. resource is the user-facing noun used
// in error messages.
func NewRecords[T any](db *gorm.DB, resource string, search []string, sortable []string, defaultOrder string) *Records[T] {
	allowed := make(map[string]bool, len(sortable))
	for _, s := range sortable {
		allowed[s] = true
	}
	return &Records[T]{
		db:           db,
		resource:     resource,
		search:       search,
		sortable:     allowed,
		defaultOrder: defaultOrder,
	}
}

// Query starts a query on the live rows of T
func (r *Records[T]) Query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(new(T))
}

// Get returns a single record by ID
func (r *Records[T]) Get(ctx context.Context, id uuid.UUID, scopes ...Scope) (*T, error) {
	var rec T
	err := r.db.WithContext(ctx).Scopes(scopes...).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, apperr.FromDB(err, r.resource)
	}
	return &rec, nil
}

// Create inserts rec without touching its associations
func (r *Records[T]) Create(ctx context.Context, rec *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error; err != nil {
		return apperr.FromDB(err, r.resource)
	}
	return nil
}

// Save writes every column of an existing live record
func (r *Records[T]) Save(ctx context.Context, rec *T) error {
	result := r.db.WithContext(ctx).Model(rec).
		Select("*").
		Omit(clause.Associations, "id", "created_at", "deleted_at").
		Updates(rec)
	if result.Error != nil {
		return apperr.FromDB(result.Error, r.resource)
	}
	if result.RowsAffected == 0 {
		return apperr.NewNotFoundError(r.resource)
	}
	return nil
}

// Delete soft-deletes the record with id
func (r *Records[T]) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		return apperr.FromDB(result.Error, r.resource)
	}
	if result.RowsAffected == 0 {
		return apperr.NewNotFoundError(r.resource)
	}
	return nil
}

// DeleteWhere soft-deletes every live row matching the condition
func (r *Records[T]) DeleteWhere(ctx context.Context, query string, args ...interface{}) error {
	if err := r.db.WithContext(ctx).Where(query, args...).Delete(new(T)).Error; err != nil {
		return apperr.FromDB(err, r.resource)
	}
	return nil
}

// Exists reports whether a live row matches the condition
func (r *Records[T]) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := r.Query(ctx).Where(query, args...).Count(&count).Error; err != nil {
		return false, apperr.FromDB(err, r.resource)
	}
	return count > 0, nil
}

// Taken reports whether another live row already uses value in column.
// except is ignored when Nil.
func (r *Records[T]) Taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error) {
	if err := security.ValidateIdentifier(column); err != nil {
		return false, err
	}
	q := r.Query(ctx).Where(security.QuoteIdentifier(column)+" = ?", value)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, apperr.FromDB(err, r.resource)
	}
	return count > 0, nil
}

// Search matches term against the configured columns
func (r *Records[T]) Search(term string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		cond, args := security.SearchCondition(r.search, term)
		if cond == "" {
			return db
		}
		return db.Where(cond, args...)
	}
}

// List returns a page of live records. filters narrow both the count and
// the page; preloads only apply to the page.
func (r *Records[T]) List(ctx context.Context, p Page, filters []Scope, preloads ...Scope) (*ListResult[T], error) {
	p = p.normalize()

	var total int64
	if err := r.Query(ctx).Scopes(filters...).Count(&total).Error; err != nil {
		return nil, apperr.FromDB(err, r.resource)
	}

	items := make([]T, 0)
	err := r.db.WithContext(ctx).
		Scopes(filters...).
		Scopes(preloads...).
		Order(security.OrderClause(p.Sort, p.SortDir, r.sortable, r.defaultOrder)).
		Offset((p.Page - 1) * p.PageSize).
		Limit(p.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, apperr.FromDB(err, r.resource)
	}

	totalPages := int(total) / p.PageSize
	if int(total)%p.PageSize > 0 {
		totalPages++
	}

	return &ListResult[T]{
		Data:       items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: totalPages,
	}, nil
}

// All returns every live record matching filters in the default order
func (r *Records[T]) All(ctx context.Context, filters []Scope, preloads ...Scope) ([]T, error) {
	items := make([]T, 0)
	err := r.db.WithContext(ctx).
		Scopes(filters...).
		Scopes(preloads...).
		Order(r.defaultOrder).
		Find(&items).Error
	if err != nil {
		return nil, apperr.FromDB(err, r.resource)
	}
	return items, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || apperr.IsNotFound(err)
}
