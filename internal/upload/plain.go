package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBadEncoding means base64 content could not be decoded.
var ErrBadEncoding = errors.New("invalid base64 content")

// StoredFile describes one file accepted by a plain (non-resumable) upload.
type StoredFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Saver accepts one-shot uploads: raw request bodies, multipart form files,
// and base64 payloads. Everything lands in a single directory under a
// server-generated name so clients cannot collide or traverse.
type Saver struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

// NewSaver creates a saver writing under dir with the given size ceiling.
func NewSaver(dir string, maxSize int64) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Saver{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

// MaxSize returns the size ceiling enforced on every accepted file.
func (s *Saver) MaxSize() int64 { return s.maxSize }

// SaveRaw streams a request body to disk. The reader is consumed up to the
// ceiling; anything longer is rejected and nothing is kept.
func (s *Saver) SaveRaw(name string, body io.Reader) (*StoredFile, error) {
	return s.save(name, body)
}

// SaveMultipart stores one file from a parsed multipart form.
func (s *Saver) SaveMultipart(header *multipart.FileHeader) (*StoredFile, error) {
	if s.maxSize > 0 && header.Size > s.maxSize {
		return nil, ErrTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open multipart file: %w", err)
	}
	defer file.Close()
	return s.save(header.Filename, file)
}

// SaveBase64 decodes and stores base64 content. A data URI prefix
// ("data:...;base64,") is stripped before decoding.
func (s *Saver) SaveBase64(name, content string) (*StoredFile, error) {
	if idx := strings.Index(content, ";base64,"); idx >= 0 && strings.HasPrefix(content, "data:") {
		content = content[idx+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return nil, ErrBadEncoding
	}
	return s.save(name, strings.NewReader(string(decoded)))
}

// List returns every stored file, newest first.
func (s *Saver) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	files := make([]StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{
			Name:       entry.Name(),
			Size:       info.Size(),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	return files, nil
}

func (s *Saver) save(name string, body io.Reader) (*StoredFile, error) {
	stored := uuid.NewString()[:8] + "_" + sanitizeName(name)

	path := filepath.Join(s.dir, stored)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	limit := body
	if s.maxSize > 0 {
		limit = io.LimitReader(body, s.maxSize+1)
	}
	size, err := io.Copy(file, limit)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	return &StoredFile{Name: stored, Size: size, UploadedAt: s.now().UTC()}, nil
}

// sanitizeName strips any path components and keeps a conservative character
// set, falling back to a generic name when nothing survives.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload.bin"
	}
	return out
}
