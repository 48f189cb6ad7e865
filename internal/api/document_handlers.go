package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aethra/daicho/internal/docgen"
	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/postal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Templates lists the Word templates with the upload form
// GET /templates
func (h *Handler) Templates(c *gin.Context) {
	templates, err := h.svc.Templates.List(c.Request.Context(), "")
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.page(c, http.StatusOK, "templates", "書類テンプレート", "templates", map[string]any{
		"Templates":    templates,
		"StandardKeys": docgen.StandardKeys,
	})
}

// UploadTemplate stores an uploaded .docx template
// POST /templates
func (h *Handler) UploadTemplate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, engine.MaxTemplateSize+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, apperr.NewValidationError("file", "ファイルサイズは20MBまでです"), "/templates")
			return
		}
		h.fail(c, apperr.NewValidationError("file", "ファイルを選択してください"), "/templates")
		return
	}
	defer file.Close()

	t, err := h.svc.Templates.Upload(c.Request.Context(), engine.TemplateUpload{
		Name:        c.PostForm("name"),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		FileName:    header.Filename,
		Content:     file,
	})
	if err != nil {
		h.fail(c, err, "/templates")
		return
	}
	h.logger.Info("template uploaded",
		zap.String("template_id", t.ID.String()),
		zap.Int("placeholders", len(t.Placeholders)),
	)
	h.done(c, "テンプレート「"+t.Name+"」を登録しました", "/templates")
}

// DeleteTemplate removes a template; generated documents stay
// POST /templates/:id/delete
func (h *Handler) DeleteTemplate(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	if err := h.svc.Templates.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/templates")
		return
	}
	h.done(c, "テンプレートを削除しました", "/templates")
}

// GenerateDocument renders a template for the posted project_id
// POST /templates/:id/generate
func (h *Handler) GenerateDocument(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	projectID := optionalID(c.PostForm("project_id"))
	if projectID == nil {
		h.fail(c, apperr.NewValidationError("project_id", "案件を指定してください"), "/projects")
		return
	}
	back := "/projects/" + projectID.String()
	doc, err := h.svc.Templates.Generate(c.Request.Context(), id, *projectID, actor(c))
	if err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, "書類「"+doc.FileName+"」を作成しました", back)
}

// DownloadDocument streams a generated document
// GET /documents/:id/download
func (h *Handler) DownloadDocument(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	d, err := h.svc.Templates.Download(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.send(c, d)
}

// DownloadTemplate streams the original template file
// GET /templates/:id/download
func (h *Handler) DownloadTemplate(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.notFound(c, err)
		return
	}
	d, err := h.svc.Templates.DownloadTemplate(c.Request.Context(), id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	h.send(c, d)
}

func (h *Handler) send(c *gin.Context, d *engine.Download) {
	defer d.Body.Close()
	c.Header("Content-Disposition", attachment(d.FileName))
	c.Header("Content-Type", d.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, d.Body); err != nil {
		h.logger.Warn("download interrupted", zap.Error(err), zap.String("file", d.FileName))
	}
}

// attachment builds a Content-Disposition value that keeps Japanese file
// names intact
func attachment(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	encoded := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + encoded
}

// =============================================================================
// POSTAL CODE
// =============================================================================

// PostalCode guesses the postal code of ?address
// GET /api/postal-code
func (h *Handler) PostalCode(c *gin.Context) {
	code, err := h.svc.Postal.Guess(c.Request.Context(), c.Query("address"))
	if err != nil {
		h.jsonError(c, postalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"postal_code": code})
}

func postalError(err error) error {
	switch {
	case errors.Is(err, postal.ErrNoAddress):
		return apperr.NewValidationError("address", err.Error())
	case errors.Is(err, postal.ErrNotFound):
		return apperr.NewNotFoundError("郵便番号")
	case errors.Is(err, postal.ErrDisabled):
		return &apperr.BaseError{Message: err.Error(), StatusCode: http.StatusServiceUnavailable, ErrorCode: "POSTAL_DISABLED"}
	default:
		return &apperr.BaseError{
			Message:    "郵便番号の推定に失敗しました。しばらくしてから再度お試しください",
			StatusCode: http.StatusBadGateway,
			ErrorCode:  "POSTAL_UNAVAILABLE",
			Details:    err.Error(),
		}
	}
}
