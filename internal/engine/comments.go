package engine

import (
	"context"
	"unicode/utf8"

	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCommentLength = 4000

// CommentEngine manages notes left on projects
type CommentEngine struct {
	comments *Records[models.Comment]
	projects *Records[models.Project]
}

// NewCommentEngine creates a comment engine
func NewCommentEngine(db *gorm.DB) *CommentEngine {
	return &CommentEngine{
		comments: NewRecords[models.Comment](db, "コメント", nil, nil, "created_at ASC"),
		projects: NewRecords[models.Project](db, "案件", nil, nil, ""),
	}
}

// ListByProject returns a project's comments oldest first
func (e *CommentEngine) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Comment, error) {
	return e.comments.All(ctx, []Scope{func(db *gorm.DB) *gorm.DB {
		return db.Where("project_id = ?", projectID)
	}}, preload("Employee"))
}

// Create posts a comment as actor
func (e *CommentEngine) Create(ctx context.Context, projectID uuid.UUID, actor Actor, body string) (*models.Comment, error) {
	body = trim(body)
	if body == "" {
		return nil, apperr.NewValidationError("body", "コメントを入力してください")
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return nil, apperr.NewValidationError("body", "コメントが長すぎます")
	}
	if _, err := e.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	c := models.Comment{ProjectID: projectID, EmployeeID: actor.ID, Body: body}
	if err := e.comments.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes a comment. Only its author or an admin may.
func (e *CommentEngine) Delete(ctx context.Context, projectID, id uuid.UUID, actor Actor) error {
	c, err := e.comments.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.ProjectID != projectID {
		return apperr.NewNotFoundError("コメント")
	}
	if c.EmployeeID != actor.ID && !actor.Admin {
		return apperr.NewPermissionDeniedError("delete", "comment")
	}
	return e.comments.Delete(ctx, id)
}
