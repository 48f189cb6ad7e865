package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/engine"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/aethra/daicho/internal/ui"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// FAKES
// =============================================================================

type fakeEmployees struct {
	EmployeeService
	byID    map[uuid.UUID]*models.Employee
	authErr error
	created []engine.EmployeeInput
	touched []uuid.UUID
}

func newFakeEmployees(emps ...*models.Employee) *fakeEmployees {
	f := &fakeEmployees{byID: map[uuid.UUID]*models.Employee{}}
	for _, e := range emps {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEmployees) Get(_ context.Context, id uuid.UUID) (*models.Employee, error) {
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, apperr.NewNotFoundError("社員")
}

func (f *fakeEmployees) Count(context.Context) (int64, error) {
	return int64(len(f.byID)), nil
}

func (f *fakeEmployees) Authenticate(_ context.Context, email, _ string) (*models.Employee, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	for _, e := range f.byID {
		if e.Email == email {
			return e, nil
		}
	}
	return nil, apperr.NewUnauthorizedError("メールアドレスまたはパスワードが正しくありません")
}

func (f *fakeEmployees) TouchLogin(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeEmployees) Create(_ context.Context, in engine.EmployeeInput) (*models.Employee, error) {
	f.created = append(f.created, in)
	return &models.Employee{
		Base:     models.Base{ID: uuid.New()},
		Code:     in.Code,
		LastName: in.LastName,
		Email:    in.Email,
		Role:     models.Role(in.Role),
		IsActive: in.IsActive,
	}, nil
}

type fakeSettings struct {
	company config.CompanyProfile
	saved   *config.CompanyProfile
}

func (f *fakeSettings) Company() config.CompanyProfile { return f.company }

func (f *fakeSettings) SaveCompany(p config.CompanyProfile) error {
	f.saved = &p
	return nil
}

func (f *fakeSettings) TaxRate() string { return "0.10" }

type fakeRevoker struct {
	revoked map[string]time.Time
}

func (f *fakeRevoker) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	f.revoked[jti] = expiresAt
	return nil
}

func (f *fakeRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := f.revoked[jti]
	return ok, nil
}

// =============================================================================
// HARNESS
// =============================================================================

var testNow = time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC)

type testServer struct {
	router    *gin.Engine
	handler   *Handler
	tokens    *auth.JWTService
	revoker   *fakeRevoker
	employees *fakeEmployees
	settings  *fakeSettings
}

func newTestServer(t *testing.T, svc Services, loginRate string) *testServer {
	t.Helper()
	if svc.Employees == nil {
		svc.Employees = newFakeEmployees()
	}
	settings, ok := svc.Settings.(*fakeSettings)
	if !ok {
		settings = &fakeSettings{company: config.CompanyProfile{Name: "株式会社テスト"}}
		svc.Settings = settings
	}

	renderer, err := ui.NewRenderer()
	require.NoError(t, err)
	if loginRate == "" {
		loginRate = "100-M"
	}
	limiter, err := NewLoginLimiter(loginRate)
	require.NoError(t, err)

	tokens := auth.NewJWTService("test-secret-for-handlers", time.Hour)
	revoker := &fakeRevoker{revoked: map[string]time.Time{}}
	h := NewHandler(svc, tokens, revoker, zap.NewNop(), false)
	h.now = func() time.Time { return testNow }

	cfg := &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:8090"}}}
	return &testServer{
		router:    SetupRouter(h, renderer, cfg, limiter, zap.NewNop()),
		handler:   h,
		tokens:    tokens,
		revoker:   revoker,
		employees: svc.Employees.(*fakeEmployees),
		settings:  settings,
	}
}

func newEmployee(role models.Role) *models.Employee {
	return &models.Employee{
		Base:     models.Base{ID: uuid.New()},
		Code:     "E001",
		LastName: "山田",
		Email:    "yamada@example.jp",
		Role:     role,
		IsActive: true,
	}
}

func (s *testServer) token(t *testing.T, emp *models.Employee) *auth.Token {
	t.Helper()
	tok, err := s.tokens.Generate(emp.ID, emp.Email, string(emp.Role))
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func withSession(req *http.Request, tok *auth.Token) *http.Request {
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: tok.Value})
	return req
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// =============================================================================
// TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2026-10-18T10:00:00+09:00", body["time"])
}

func TestNoRoute_APIGetsJSON(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeJSON(t, w)["code"])
}

func TestLoginPage_RedirectsToSetupBeforeFirstEmployee(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	w := s.do(httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/setup", w.Header().Get("Location"))
}

func TestLoginPage_PrefillsEmail(t *testing.T) {
	s := newTestServer(t, Services{Employees: newFakeEmployees(newEmployee(models.RoleAdmin))}, "")
	w := s.do(httptest.NewRequest(http.MethodGet, "/login?email=sato%40example.jp", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="sato@example.jp"`)
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	emp := newEmployee(models.RoleStaff)
	s := newTestServer(t, Services{Employees: newFakeEmployees(emp)}, "")

	w := s.do(postForm("/login", url.Values{"email": {" yamada@example.jp "}, "password": {"secret123"}}))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	cookie := findCookie(w, sessionCookie)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	claims, err := s.tokens.ValidateToken(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, emp.ID, claims.EmployeeID)
	assert.Equal(t, []uuid.UUID{emp.ID}, s.employees.touched)
}

func TestLogin_FailureShowsMessage(t *testing.T) {
	s := newTestServer(t, Services{Employees: newFakeEmployees(newEmployee(models.RoleStaff))}, "")

	w := s.do(postForm("/login", url.Values{"email": {"nobody@example.jp"}, "password": {"x"}}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "メールアドレスまたはパスワードが正しくありません")
	assert.Contains(t, w.Body.String(), `value="nobody@example.jp"`)
	assert.Nil(t, findCookie(w, sessionCookie))
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, Services{Employees: newFakeEmployees(newEmployee(models.RoleStaff))}, "2-M")
	form := url.Values{"email": {"nobody@example.jp"}, "password": {"x"}}

	for i := 0; i < 2; i++ {
		w := s.do(postForm("/login", form))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(postForm("/login", form))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "ログインの試行回数が多すぎます")
}

func TestSession_PageRedirectsToLogin(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	w := s.do(httptest.NewRequest(http.MethodGet, "/accounts", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.NotNil(t, findCookie(w, flashCookie))
}

func TestSession_APIGetsJSON401(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/revenue", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := s.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestSession_InactiveEmployeeRejected(t *testing.T) {
	emp := newEmployee(models.RoleAdmin)
	emp.IsActive = false
	s := newTestServer(t, Services{Employees: newFakeEmployees(emp)}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/postal-code", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, emp).Value)
	w := s.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	emp := newEmployee(models.RoleStaff)
	s := newTestServer(t, Services{Employees: newFakeEmployees(emp)}, "")
	tok := s.token(t, emp)

	w := s.do(withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), tok))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Contains(t, s.revoker.revoked, tok.ID)
	cleared := findCookie(w, sessionCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// the old token no longer opens a session
	w = s.do(withSession(httptest.NewRequest(http.MethodGet, "/accounts", nil), tok))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRequire_StaffCannotManageEmployees(t *testing.T) {
	staff := newEmployee(models.RoleStaff)
	s := newTestServer(t, Services{Employees: newFakeEmployees(staff)}, "")

	w := s.do(withSession(httptest.NewRequest(http.MethodGet, "/employees", nil), s.token(t, staff)))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "権限がありません")
}

func TestCreateEmployee_RedirectsToList(t *testing.T) {
	admin := newEmployee(models.RoleAdmin)
	s := newTestServer(t, Services{Employees: newFakeEmployees(admin)}, "")
	form := url.Values{
		"code":      {"E002"},
		"last_name": {"佐藤"},
		"email":     {"sato@example.jp"},
		"password":  {"password123"},
		"role":      {"staff"},
		"is_active": {"true"},
	}

	w := s.do(withSession(postForm("/employees", form), s.token(t, admin)))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/employees", w.Header().Get("Location"))
	require.Len(t, s.employees.created, 1)
	assert.Equal(t, "E002", s.employees.created[0].Code)
	assert.Equal(t, "staff", s.employees.created[0].Role)
}

func TestSetup_CreatesAdminAndCompany(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	form := url.Values{
		"company_name":                {"株式会社ダイチョウ"},
		"company_postal_code":         {"１００－０００１"},
		"company_registration_number": {"T1234567890123"},
		"code":                        {"E001"},
		"last_name":                   {"山田"},
		"email":                       {"yamada+admin@example.jp"},
		"password":                    {"password123"},
	}

	w := s.do(postForm("/setup", form))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?email=yamada%2Badmin%40example.jp", w.Header().Get("Location"))
	require.Len(t, s.employees.created, 1)
	assert.Equal(t, string(models.RoleAdmin), s.employees.created[0].Role)
	assert.True(t, s.employees.created[0].IsActive)
	require.NotNil(t, s.settings.saved)
	assert.Equal(t, "株式会社ダイチョウ", s.settings.saved.Name)
	assert.Equal(t, "100-0001", s.settings.saved.PostalCode)
}

func TestSetup_RejectsBadRegistrationNumber(t *testing.T) {
	s := newTestServer(t, Services{}, "")
	w := s.do(postForm("/setup", url.Values{
		"company_name":                {"株式会社ダイチョウ"},
		"company_registration_number": {"1234"},
	}))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/setup", w.Header().Get("Location"))
	assert.NotNil(t, findCookie(w, flashCookie))
	assert.Empty(t, s.employees.created)
	assert.Nil(t, s.settings.saved)
}

func TestSetup_ClosedOnceAnEmployeeExists(t *testing.T) {
	s := newTestServer(t, Services{Employees: newFakeEmployees(newEmployee(models.RoleAdmin))}, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/setup", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = s.do(postForm("/setup", url.Values{"company_name": {"乗っ取り"}}))
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Empty(t, s.employees.created)
}

func TestFlash_RoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	setFlash(c, flashNotice, "保存しました", false)

	cookie := findCookie(w, flashCookie)
	require.NotNil(t, cookie)

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c2.Request.AddCookie(cookie)

	kind, msg := takeFlash(c2, false)
	assert.Equal(t, flashNotice, kind)
	assert.Equal(t, "保存しました", msg)
	cleared := findCookie(w2, flashCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}
