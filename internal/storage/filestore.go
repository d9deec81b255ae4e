package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// FileStore keeps captures in a local directory, for single-node deployments.
type FileStore struct {
	dir     string
	baseURL string
}

func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "captures"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory served under the files base URL.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	key := "captures/" + ulid.Make().String() + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(s.dir, filepath.FromSlash(key)), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if s.baseURL == "" {
		return key, nil
	}
	return s.baseURL + "/" + key, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	clean := path.Clean("/" + key)
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}
