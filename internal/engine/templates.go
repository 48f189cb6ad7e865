package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aethra/daicho/internal/docgen"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/aethra/daicho/internal/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// DocxContentType is the MIME type of Word documents
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// MaxTemplateSize caps uploaded template files
const MaxTemplateSize = 20 << 20

// TemplateUpload is an uploaded template file and its metadata
type TemplateUpload struct {
	Name        string
	Category    string
	Description string
	FileName    string
	Content     io.Reader
}

// ProjectLoader loads a project with its parties for document generation
type ProjectLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// Download is an open blob ready to be streamed to the client
type Download struct {
	FileName    string
	ContentType string
	Body        io.ReadCloser
}

// TemplateEngine manages Word templates and the documents generated from them
type TemplateEngine struct {
	templates *Records[models.DocumentTemplate]
	documents *Records[models.GeneratedDocument]
	store     storage.Store
	projects  ProjectLoader
	company   CompanySource
	now       func() time.Time
}

// NewTemplateEngine creates a template engine
func NewTemplateEngine(db *gorm.DB, store storage.Store, projects ProjectLoader, company CompanySource) *TemplateEngine {
	return &TemplateEngine{
		templates: NewRecords[models.DocumentTemplate](db, "テンプレート", []string{"name", "file_name"}, nil, "name ASC"),
		documents: NewRecords[models.GeneratedDocument](db, "生成書類", nil, nil, "created_at DESC"),
		store:     store,
		projects:  projects,
		company:   company,
		now:       time.Now,
	}
}

// List returns every template, optionally only those usable for category.
// Templates without a category apply to all.
func (e *TemplateEngine) List(ctx context.Context, category string) ([]models.DocumentTemplate, error) {
	var filters []Scope
	if category != "" {
		filters = append(filters, func(db *gorm.DB) *gorm.DB {
			return db.Where("category = ? OR category = ''", category)
		})
	}
	return e.templates.All(ctx, filters)
}

// Get returns a template by id
func (e *TemplateEngine) Get(ctx context.Context, id uuid.UUID) (*models.DocumentTemplate, error) {
	return e.templates.Get(ctx, id)
}

// Upload stores a .docx template and records its placeholders
func (e *TemplateEngine) Upload(ctx context.Context, up TemplateUpload) (*models.DocumentTemplate, error) {
	if err := required("name", "テンプレート名", up.Name); err != nil {
		return nil, err
	}
	fileName := path.Base(strings.ReplaceAll(up.FileName, `\`, "/"))
	if !strings.EqualFold(path.Ext(fileName), ".docx") {
		return nil, apperr.NewValidationError("file", "Word形式（.docx）のファイルを選択してください")
	}
	if up.Category != "" {
		if _, ok := models.CategoryByCode(up.Category); !ok {
			return nil, apperr.NewValidationError("category", "業務区分の指定が正しくありません")
		}
	}

	content, err := io.ReadAll(io.LimitReader(up.Content, MaxTemplateSize+1))
	if err != nil {
		return nil, apperr.NewInternalError(err)
	}
	if len(content) > MaxTemplateSize {
		return nil, apperr.NewValidationError("file", "ファイルサイズは20MBまでです")
	}
	placeholders, err := docgen.ExtractPlaceholders(content)
	if err != nil {
		if errors.Is(err, docgen.ErrNotDocx) {
			return nil, apperr.NewValidationError("file", "Wordファイルを読み込めませんでした")
		}
		return nil, apperr.NewInternalError(err)
	}

	key := storage.NewKey("templates", fileName)
	if err := e.store.Put(ctx, key, bytes.NewReader(content)); err != nil {
		return nil, apperr.NewInternalError(err)
	}

	t := models.DocumentTemplate{
		Name:         trim(up.Name),
		Category:     up.Category,
		Description:  up.Description,
		FileName:     fileName,
		StorageKey:   key,
		ContentType:  DocxContentType,
		Size:         int64(len(content)),
		Placeholders: pq.StringArray(placeholders),
	}
	if err := e.templates.Create(ctx, &t); err != nil {
		_ = e.store.Delete(ctx, key)
		return nil, err
	}
	return &t, nil
}

// Delete soft-deletes a template and removes its file. Documents already
// generated from it are kept.
func (e *TemplateEngine) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := e.templates.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.templates.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, t.StorageKey); err != nil {
		return apperr.NewInternalError(err)
	}
	return nil
}

// Generate renders a template for a project, stores the result and records
// it as a GeneratedDocument
func (e *TemplateEngine) Generate(ctx context.Context, templateID, projectID uuid.UUID, actor Actor) (*models.GeneratedDocument, error) {
	t, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	p, err := e.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	src, err := e.readBlob(ctx, t.StorageKey)
	if err != nil {
		return nil, err
	}
	now := e.now().In(JST)
	values := docgen.ProjectValues(p, e.company.Company(), now)
	rendered, err := docgen.Render(src, values)
	if err != nil {
		return nil, apperr.NewInternalError(err)
	}

	name := documentFileName(t, p, now)
	key := storage.NewKey("documents", name)
	if err := e.store.Put(ctx, key, bytes.NewReader(rendered)); err != nil {
		return nil, apperr.NewInternalError(err)
	}

	doc := models.GeneratedDocument{
		TemplateID:  t.ID,
		ProjectID:   p.ID,
		FileName:    name,
		StorageKey:  key,
		GeneratedBy: actor.ID,
	}
	if err := e.documents.Create(ctx, &doc); err != nil {
		_ = e.store.Delete(ctx, key)
		return nil, err
	}
	doc.Template = t
	return &doc, nil
}

// Documents returns a project's generated documents, newest first
func (e *TemplateEngine) Documents(ctx context.Context, projectID uuid.UUID) ([]models.GeneratedDocument, error) {
	return e.documents.All(ctx, []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Where("project_id = ?", projectID)
	}}, preload("Template"))
}

// Download opens a generated document by id
func (e *TemplateEngine) Download(ctx context.Context, documentID uuid.UUID) (*Download, error) {
	doc, err := e.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return e.open(ctx, doc.StorageKey, doc.FileName)
}

// DownloadTemplate opens the original template file
func (e *TemplateEngine) DownloadTemplate(ctx context.Context, templateID uuid.UUID) (*Download, error) {
	t, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return e.open(ctx, t.StorageKey, t.FileName)
}

func (e *TemplateEngine) open(ctx context.Context, key, name string) (*Download, error) {
	rc, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NewNotFoundError("ファイル")
		}
		return nil, apperr.NewInternalError(err)
	}
	return &Download{FileName: name, ContentType: DocxContentType, Body: rc}, nil
}

func (e *TemplateEngine) readBlob(ctx context.Context, key string) ([]byte, error) {
	d, err := e.open(ctx, key, "")
	if err != nil {
		return nil, err
	}
	defer d.Body.Close()
	b, err := io.ReadAll(d.Body)
	if err != nil {
		return nil, apperr.NewInternalError(err)
	}
	return b, nil
}

// documentFileName is "<project code>_<template name>_<YYYYMMDD>.docx"
func documentFileName(t *models.DocumentTemplate, p *models.Project, now time.Time) string {
	name := strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(t.Name)
	return p.Code + "_" + name + "_" + now.Format("20060102") + ".docx"
}
