package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/database/dbtest"
	apperr "github.com/aethra/daicho/internal/errors"
	"github.com/aethra/daicho/internal/models"
	"github.com/aethra/daicho/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (s *memStore) Put(_ context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = b
	return nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

type fakeProjects map[uuid.UUID]*models.Project

func (f fakeProjects) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, apperr.NewNotFoundError("案件")
}

func docx(t *testing.T, document string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTemplateEngine_UploadValidates(t *testing.T) {
	db, _ := dbtest.New(t)
	e := NewTemplateEngine(db, newMemStore(), fakeProjects{}, fakeCompany{})
	ctx := context.Background()

	_, err := e.Upload(ctx, TemplateUpload{Name: "見積書", FileName: "mitsumori.doc", Content: strings.NewReader("x")})
	assert.EqualError(t, err, "Word形式（.docx）のファイルを選択してください")

	_, err = e.Upload(ctx, TemplateUpload{Name: "見積書", FileName: "m.docx", Category: "catering", Content: strings.NewReader("x")})
	assert.EqualError(t, err, "業務区分の指定が正しくありません")

	_, err = e.Upload(ctx, TemplateUpload{Name: "見積書", FileName: "m.docx", Content: strings.NewReader("not a zip")})
	assert.EqualError(t, err, "Wordファイルを読み込めませんでした")

	_, err = e.Upload(ctx, TemplateUpload{FileName: "m.docx"})
	assert.EqualError(t, err, "テンプレート名は必須です")
}

func TestTemplateEngine_UploadStoresFileAndPlaceholders(t *testing.T) {
	db, mock := dbtest.New(t)
	store := newMemStore()
	e := NewTemplateEngine(db, store, fakeProjects{}, fakeCompany{})

	mock.ExpectExec(`INSERT INTO "document_templates"`).WillReturnResult(sqlmock.NewResult(0, 1))

	tpl, err := e.Upload(context.Background(), TemplateUpload{
		Name:     " 測量図書表紙 ",
		Category: models.CategorySurvey,
		FileName: `C:\Users\yamada\表紙.DOCX`,
		Content:  bytes.NewReader(docx(t, `<w:t>{{project.name}} {{account.name}}</w:t>`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "測量図書表紙", tpl.Name)
	assert.Equal(t, `表紙.DOCX`, tpl.FileName)
	assert.Equal(t, []string{"account.name", "project.name"}, []string(tpl.Placeholders))
	assert.True(t, strings.HasPrefix(tpl.StorageKey, "templates/"))
	assert.Contains(t, store.blobs, tpl.StorageKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateEngine_UploadRemovesBlobWhenInsertFails(t *testing.T) {
	db, mock := dbtest.New(t)
	store := newMemStore()
	e := NewTemplateEngine(db, store, fakeProjects{}, fakeCompany{})

	mock.ExpectExec(`INSERT INTO "document_templates"`).WillReturnError(assert.AnError)

	_, err := e.Upload(context.Background(), TemplateUpload{
		Name:     "表紙",
		FileName: "cover.docx",
		Content:  bytes.NewReader(docx(t, `<w:t>{{today}}</w:t>`)),
	})
	require.Error(t, err)
	assert.Empty(t, store.blobs)
}

func TestTemplateEngine_Generate(t *testing.T) {
	db, mock := dbtest.New(t)
	store := newMemStore()
	tplID, projectID, actor := uuid.New(), uuid.New(), uuid.New()

	key := "templates/x/cover.docx"
	require.NoError(t, store.Put(context.Background(), key,
		bytes.NewReader(docx(t, `<w:t>{{project.code}} {{account.name}} 御中 {{company.name}}</w:t>`))))

	projects := fakeProjects{projectID: {
		Base:    models.Base{ID: projectID},
		Code:    "SV-2024-003",
		Name:    "境界確定測量",
		Account: &models.Account{Name: "株式会社山田商事"},
	}}
	e := NewTemplateEngine(db, store, projects, fakeCompany{profile: config.CompanyProfile{Name: "佐藤測量"}})
	e.now = func() time.Time { return time.Date(2024, 6, 30, 16, 0, 0, 0, time.UTC) }

	mock.ExpectQuery(`SELECT \* FROM "document_templates" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "file_name", "storage_key"}).
			AddRow(tplID.String(), "表紙 / 控え", "cover.docx", key))
	mock.ExpectExec(`INSERT INTO "generated_documents"`).WillReturnResult(sqlmock.NewResult(0, 1))

	doc, err := e.Generate(context.Background(), tplID, projectID, Actor{ID: actor})
	require.NoError(t, err)
	// 16:00 UTC on the 30th is already July 1st in Japan
	assert.Equal(t, "SV-2024-003_表紙___控え_20240701.docx", doc.FileName)
	assert.Equal(t, actor, doc.GeneratedBy)
	assert.Equal(t, tplID, doc.TemplateID)

	rendered := store.blobs[doc.StorageKey]
	require.NotEmpty(t, rendered)
	zr, err := zip.NewReader(bytes.NewReader(rendered), int64(len(rendered)))
	require.NoError(t, err)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `<w:t>SV-2024-003 株式会社山田商事 御中 佐藤測量</w:t>`, string(body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateEngine_GenerateUnknownProject(t *testing.T) {
	db, mock := dbtest.New(t)
	e := NewTemplateEngine(db, newMemStore(), fakeProjects{}, fakeCompany{})

	mock.ExpectQuery(`SELECT \* FROM "document_templates"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "storage_key"}).AddRow(uuid.New().String(), "templates/a/b.docx"))

	_, err := e.Generate(context.Background(), uuid.New(), uuid.New(), Actor{})
	assert.True(t, apperr.IsNotFound(err))
}
