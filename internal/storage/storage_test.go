package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	key := NewKey("templates", "見積書.docx")
	require.NoError(t, s.Put(ctx, key, strings.NewReader("hello")))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello", string(b))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, key))

	// the per-upload directory is gone too
	entries, err := os.ReadDir(filepath.Join(root, "templates"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "a//b", `a\b`} {
		assert.ErrorIs(t, s.Put(ctx, key, strings.NewReader("x")), ErrInvalidKey, key)
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStore_PutHonoursContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key := NewKey("documents", "a.docx")
	assert.ErrorIs(t, s.Put(ctx, key, strings.NewReader("x")), context.Canceled)
	_, err = s.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewKey(t *testing.T) {
	key := NewKey("documents", `..\..\evil.docx`)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "documents", parts[0])
	assert.Equal(t, "evil.docx", parts[2])

	assert.True(t, strings.HasSuffix(NewKey("documents", ".."), "/file"))
}
