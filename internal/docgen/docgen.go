// Package docgen fills {{key}} placeholders in Word (.docx) templates.
//
// Word often splits typed text across several runs, so a placeholder may
// arrive as "{{</w:t></w:r><w:r><w:t>project.name}}" or even with the
// paired braces themselves split apart. Markup anywhere inside is tolerated: it is ignored when reading the key and dropped when
// the placeholder is replaced.
package docgen

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// ErrNotDocx is returned when the input is not a Word document
var ErrNotDocx = errors.New("docgen: not a .docx file")

var (
	placeholderRe = regexp.MustCompile(`\{(?:<[^>]*>)*\{(?:<[^>]*>|[^{}<])*?\}(?:<[^>]*>)*\}`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	keyRe         = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	partRe        = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)
)

// placeholderKey returns the key inside a raw match, or "" when the text
// between the braces is not a valid key
func placeholderKey(match string) string {
	text := tagRe.ReplaceAllString(match, "")
	key := strings.TrimSpace(text[2 : len(text)-2])
	if !keyRe.MatchString(key) {
		return ""
	}
	return key
}

func open(docx []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return nil, ErrNotDocx
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return zr, nil
		}
	}
	return nil, ErrNotDocx
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ExtractPlaceholders returns the sorted, de-duplicated keys used in the
// document body, headers and footers
func ExtractPlaceholders(docx []byte) ([]string, error) {
	zr, err := open(docx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, f := range zr.File {
		if !partRe.MatchString(f.Name) {
			continue
		}
		content, err := readPart(f)
		if err != nil {
			return nil, fmt.Errorf("docgen: read %s: %w", f.Name, err)
		}
		for _, m := range placeholderRe.FindAllString(string(content), -1) {
			if key := placeholderKey(m); key != "" {
				seen[key] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Render replaces every placeholder with its XML-escaped value. Unknown
// keys render empty. Other archive entries are copied unchanged.
func Render(docx []byte, values map[string]string) ([]byte, error) {
	zr, err := open(docx)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if !partRe.MatchString(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("docgen: copy %s: %w", f.Name, err)
			}
			continue
		}

		content, err := readPart(f)
		if err != nil {
			return nil, fmt.Errorf("docgen: read %s: %w", f.Name, err)
		}
		rendered := substitute(content, values)

		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(rendered); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func substitute(content []byte, values map[string]string) []byte {
	return placeholderRe.ReplaceAllFunc(content, func(m []byte) []byte {
		key := placeholderKey(string(m))
		if key == "" {
			return m
		}
		var buf bytes.Buffer
		xml.EscapeText(&buf, []byte(values[key]))
		return buf.Bytes()
	})
}
