package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qrcollect/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 最小的合法 PNG 文件头
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewLocalStorage(config.StorageConfig{
		Dir:          dir,
		URLPrefix:    "/uploads/",
		MaxSize:      1024,
		AllowedTypes: []string{"image/png"},
	})
	s.now = func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) }
	return s, dir
}

func TestLocalStorageSave(t *testing.T) {
	s, dir := newTestStorage(t)

	url, err := s.Save(context.Background(), "screenshot", "pay.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/screenshot/2024/03/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	rel := strings.TrimPrefix(url, "/uploads/")
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content)
}

func TestLocalStorageRejects(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "qrcode", "a.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrFileEmpty)

	_, err = s.Save(ctx, "qrcode", "a.txt", strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrFileTypeInvalid)

	big := append(append([]byte{}, pngHeader...), make([]byte, 2048)...)
	_, err = s.Save(ctx, "qrcode", "a.png", bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestSanitizeScene(t *testing.T) {
	assert.Equal(t, "qrcode", sanitizeScene(" QRCode "))
	assert.Equal(t, "common", sanitizeScene("../etc"))
}

func TestLocalStorageRejectsExtension(t *testing.T) {
	s, _ := newTestStorage(t)
	s.allowedExtensions = []string{".png", ".jpg"}
	ctx := context.Background()

	_, err := s.Save(ctx, "screenshot", "pay.html", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrFileExtInvalid)

	_, err = s.Save(ctx, "screenshot", "pay", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrFileExtInvalid)

	url, err := s.Save(ctx, "screenshot", "pay.JPG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".png"), url)
}

func TestLocalStorageExtensionFromContent(t *testing.T) {
	s, _ := newTestStorage(t)

	// 客户端文件名不影响落盘扩展名
	url, err := s.Save(context.Background(), "screenshot", "pay.html", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	s.allowedTypes = nil
	url, err = s.Save(context.Background(), "screenshot", "x.html", strings.NewReader("<html><script>alert(1)</script></html>"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".bin"), url)
}
