package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"qrcollect/internal/config"

	"github.com/google/uuid"
)

var (
	ErrFileTooLarge    = errors.New("文件大小超过限制")
	ErrFileTypeInvalid = errors.New("文件类型不被允许")
	ErrFileEmpty       = errors.New("文件不能为空")
	ErrFileExtInvalid  = errors.New("文件扩展名不被允许")
)

// extByType 落盘扩展名只取自嗅探出的类型，静态路由据此决定 Content-Type
var extByType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStorage 图片存储，返回可公开访问的 URL
type ObjectStorage interface {
	Save(ctx context.Context, scene, filename string, r io.Reader) (string, error)
}

// LocalStorage 本地磁盘存储，文件按 scene/年/月 分目录，由 gin 静态路由对外提供
type LocalStorage struct {
	dir               string
	urlPrefix         string
	maxSize           int64
	allowedTypes      []string
	allowedExtensions []string
	now               func() time.Time
}

func NewLocalStorage(cfg config.StorageConfig) *LocalStorage {
	return &LocalStorage{
		dir:               cfg.Dir,
		urlPrefix:         strings.TrimRight(cfg.URLPrefix, "/"),
		maxSize:           cfg.MaxSize,
		allowedTypes:      cfg.AllowedTypes,
		allowedExtensions: cfg.AllowedExtensions,
		now:               time.Now,
	}
}

// Save 保存文件，文件名使用 uuid 重新生成，扩展名按嗅探出的类型决定
func (s *LocalStorage) Save(ctx context.Context, scene, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clientExt := strings.ToLower(filepath.Ext(filename))
	if len(s.allowedExtensions) > 0 {
		if clientExt == "" || !containsFold(s.allowedExtensions, clientExt) {
			return "", fmt.Errorf("%w: %s", ErrFileExtInvalid, clientExt)
		}
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	if len(data) == 0 {
		return "", ErrFileEmpty
	}
	if int64(len(data)) > limit {
		return "", ErrFileTooLarge
	}

	contentType := http.DetectContentType(data)
	if !s.typeAllowed(contentType) {
		return "", fmt.Errorf("%w: %s", ErrFileTypeInvalid, contentType)
	}

	ext, ok := extByType[contentType]
	if !ok {
		ext = ".bin"
	}
	now := s.now()
	rel := path.Join(sanitizeScene(scene), now.Format("2006"), now.Format("01"), uuid.NewString()+ext)

	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("创建上传目录失败: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("写入文件失败: %w", err)
	}

	return s.urlPrefix + "/" + rel, nil
}

func (s *LocalStorage) typeAllowed(contentType string) bool {
	if len(s.allowedTypes) == 0 {
		return true
	}
	return containsFold(s.allowedTypes, contentType)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func sanitizeScene(scene string) string {
	scene = strings.ToLower(strings.TrimSpace(scene))
	switch scene {
	case "qrcode", "screenshot":
		return scene
	}
	return "common"
}
