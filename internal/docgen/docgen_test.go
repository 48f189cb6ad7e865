package docgen

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = `<w:document><w:body>` +
	`<w:p><w:r><w:t>件名: {{project.name}}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{{</w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>account.name}}</w:t></w:r><w:r><w:t> 御中</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{</w:t></w:r><w:r><w:t>{company.name}</w:t></w:r><w:r><w:t>} 様</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>{{ details.parcel_number }} / {{unknown.key}} / {{not a key}}</w:t></w:r></w:p>` +
	`</w:body></w:document>`

func makeDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readEntry(t *testing.T, docx []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func TestExtractPlaceholders(t *testing.T) {
	docx := makeDocx(t, map[string]string{
		"word/document.xml": body,
		"word/header1.xml":  `<w:hdr><w:t>{{company.name}} {{project.name}}</w:t></w:hdr>`,
		"word/styles.xml":   `<w:styles>{{ignored.key}}</w:styles>`,
	})

	keys, err := ExtractPlaceholders(docx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"account.name",
		"company.name",
		"details.parcel_number",
		"project.name",
		"unknown.key",
	}, keys)
}

func TestExtractPlaceholders_SplitBraces(t *testing.T) {
	docx := makeDocx(t, map[string]string{
		"word/document.xml": `<w:p><w:r><w:t>{</w:t></w:r><w:r><w:t>{project.name}}</w:t></w:r></w:p>`,
	})

	keys, err := ExtractPlaceholders(docx)
	require.NoError(t, err)
	assert.Equal(t, []string{"project.name"}, keys)

	out, err := Render(docx, map[string]string{"project.name": "分筆登記"})
	require.NoError(t, err)
	assert.Equal(t, `<w:p><w:r><w:t>分筆登記</w:t></w:r></w:p>`, readEntry(t, out, "word/document.xml"))
}

func TestExtractPlaceholders_NotDocx(t *testing.T) {
	_, err := ExtractPlaceholders([]byte("plain text"))
	assert.ErrorIs(t, err, ErrNotDocx)

	_, err = ExtractPlaceholders(makeDocx(t, map[string]string{"content.xml": "x"}))
	assert.ErrorIs(t, err, ErrNotDocx)
}

func TestRender(t *testing.T) {
	docx := makeDocx(t, map[string]string{
		"word/document.xml": body,
		"word/styles.xml":   `<w:styles>{{project.name}}</w:styles>`,
	})

	out, err := Render(docx, map[string]string{
		"project.name":          "境界確定測量 <A&B>",
		"account.name":          "株式会社山田商事",
		"details.parcel_number": "123-4",
		"company.name":          "株式会社ダイチョウ",
	})
	require.NoError(t, err)

	doc := readEntry(t, out, "word/document.xml")
	assert.Contains(t, doc, "件名: 境界確定測量 &lt;A&amp;B&gt;")
	assert.Contains(t, doc, `<w:r><w:t>株式会社山田商事</w:t></w:r><w:r><w:t> 御中</w:t></w:r>`)
	assert.Contains(t, doc, `<w:r><w:t>株式会社ダイチョウ</w:t></w:r><w:r><w:t> 様</w:t></w:r>`)
	assert.Contains(t, doc, "123-4 /  / {{not a key}}")
	assert.NotContains(t, doc, "{{project.name}}")

	// non-content parts are untouched
	assert.Equal(t, `<w:styles>{{project.name}}</w:styles>`, readEntry(t, out, "word/styles.xml"))
}

func TestProjectValues(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	p := &models.Project{
		Code:      "SV-2024-001",
		Name:      "境界確定測量",
		Category:  models.CategorySurvey,
		Status:    models.ProjectInProgress,
		Amount:    decimal.NewFromInt(1250000),
		StartDate: &start,
		Details:   models.JSONB{"parcel_number": "123-4", "boundary_confirmed": true},
		Contact:   &models.Contact{LastName: "佐藤", FirstName: "花子", Address: "東京都千代田区"},
		Manager:   &models.Employee{LastName: "山田", FirstName: "太郎"},
	}
	now := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	v := ProjectValues(p, config.CompanyProfile{Name: "山田測量事務所"}, now)
	assert.Equal(t, "SV-2024-001", v["project.code"])
	assert.Equal(t, "測量", v["project.category"])
	assert.Equal(t, "進行中", v["project.status"])
	assert.Equal(t, "1,250,000", v["project.amount"])
	assert.Equal(t, "2024年4月1日", v["project.start_date"])
	assert.Equal(t, "", v["project.due_date"])
	assert.Equal(t, "佐藤 花子", v["contact.name"])
	assert.Equal(t, "佐藤 花子", v["account.name"])
	assert.Equal(t, "東京都千代田区", v["account.address"])
	assert.Equal(t, "山田 太郎", v["manager.name"])
	assert.Equal(t, "山田測量事務所", v["company.name"])
	assert.Equal(t, "2024年5月20日", v["today"])
	assert.Equal(t, "123-4", v["details.parcel_number"])
	assert.Equal(t, "はい", v["details.boundary_confirmed"])
}
