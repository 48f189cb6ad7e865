// Package ui renders the server-side HTML pages of the back-office
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/engine"
	"github.com/aethra/daicho/internal/models"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var files embed.FS

const (
	layoutFile   = "templates/layout.html"
	partialsFile = "templates/partials.html"
)

// Viewer is the signed-in employee as seen by templates
type Viewer struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  string
}

// Can reports whether the viewer may perform action on resource
func (v *Viewer) Can(action, resource string) bool {
	if v == nil {
		return false
	}
	return auth.Can(v.Role, auth.Action(action), resource)
}

// IsAdmin reports whether the viewer has the admin role
func (v *Viewer) IsAdmin() bool {
	return v != nil && v.Role == auth.RoleAdmin
}

// View is the data every page is executed with
type View struct {
	Title   string
	Active  string
	User    *Viewer
	Company string
	Flash   string
	Notice  string
	Data    map[string]any
}

// Renderer holds one template set per page, each sharing the layout.
// It satisfies gin's render.HTMLRender.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded layout and pages
func NewRenderer() (*Renderer, error) {
	base, err := template.New("layout").Funcs(Funcs()).ParseFS(files, layoutFile, partialsFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	names, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		if name == layoutFile || name == partialsFile {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(files, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(path.Base(name), ".html")] = t
	}
	return r, nil
}

// Has reports whether a page named name exists
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render writes page name with data
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("ui: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// Instance implements render.HTMLRender
func (r *Renderer) Instance(name string, data any) render.Render {
	t, ok := r.pages[name]
	if !ok {
		t = r.pages["error"]
		data = View{Title: "エラー", Flash: "画面が見つかりません: " + name}
	}
	return render.HTML{Template: t, Name: "layout", Data: data}
}

// Funcs returns the template helpers
func Funcs() template.FuncMap {
	return template.FuncMap{
		"yen":           yen,
		"date":          formatDate,
		"datetime":      formatDateTime,
		"clock":         formatClock,
		"inputDate":     inputDate,
		"inputDateTime": inputDateTime,
		"minutes":       engine.FormatMinutes,
		"statusLabel":   models.StatusLabel,
		"categoryLabel": models.CategoryLabel,
		"categories":    func() []models.Category { return models.Categories },
		"projectStatuses": func() []string {
			return models.ProjectStatuses
		},
		"taskStatuses": func() []string {
			return []string{models.TaskTodo, models.TaskDoing, models.TaskDone}
		},
		"invoiceStatuses": func() []string {
			return []string{models.InvoiceDraft, models.InvoiceIssued, models.InvoicePaid, models.InvoiceVoid}
		},
		"detail":    func(j models.JSONB, key string) string { return j.String(key) },
		"rawDetail": rawDetail,
		"join":      strings.Join,
		"idOf":      idOf,
		"isID":      isID,
		"add":       func(a, b int) int { return a + b },
		"pageLink":  pageLink,
		"query":     filterQuery,
		"dict":      dict,
		"seq": func(n int) []int {
			s := make([]int, n)
			for i := range s {
				s[i] = i
			}
			return s
		},
	}
}

func yen(v any) string {
	switch d := v.(type) {
	case decimal.Decimal:
		return models.Yen(d)
	case *decimal.Decimal:
		if d == nil {
			return ""
		}
		return models.Yen(*d)
	}
	return fmt.Sprint(v)
}

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	}
	return time.Time{}, false
}

func formatDate(v any) string {
	if t, ok := timeOf(v); ok {
		return t.In(engine.JST).Format("2006/01/02")
	}
	return ""
}

func formatDateTime(v any) string {
	if t, ok := timeOf(v); ok {
		return t.In(engine.JST).Format("2006/01/02 15:04")
	}
	return ""
}

func formatClock(v any) string {
	if t, ok := timeOf(v); ok {
		return t.In(engine.JST).Format("15:04")
	}
	return ""
}

func inputDate(v any) string {
	if t, ok := timeOf(v); ok {
		return t.In(engine.JST).Format("2006-01-02")
	}
	return ""
}

func inputDateTime(v any) string {
	if t, ok := timeOf(v); ok {
		return t.In(engine.JST).Format("2006-01-02T15:04")
	}
	return ""
}

// rawDetail returns a details value as a form input value
func rawDetail(j models.JSONB, key string) string {
	if b, ok := j[key].(bool); ok {
		if b {
			return "true"
		}
		return ""
	}
	return j.String(key)
}

// idOf renders an optional id as a form value
func idOf(v any) string {
	switch id := v.(type) {
	case uuid.UUID:
		if id == uuid.Nil {
			return ""
		}
		return id.String()
	case *uuid.UUID:
		if id == nil {
			return ""
		}
		return id.String()
	}
	return ""
}

// isID reports whether an optional id equals want, for <option selected>
func isID(v any, want uuid.UUID) bool {
	return idOf(v) != "" && idOf(v) == want.String()
}

// pageLink returns the current query with page replaced
func pageLink(query string, page int) template.URL {
	v, _ := url.ParseQuery(query)
	v.Set("page", strconv.Itoa(page))
	return template.URL("?" + v.Encode())
}

// filterQuery returns the current filters without paging, for export links
func filterQuery(query string) template.URL {
	v, _ := url.ParseQuery(query)
	v.Del("page")
	if len(v) == 0 {
		return ""
	}
	return template.URL("?" + v.Encode())
}

// dict builds a map from key/value pairs for passing several values to a
// nested template
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[k] = pairs[i+1]
	}
	return m, nil
}
