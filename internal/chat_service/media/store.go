// Package media stores message attachments on the local filesystem and maps
// them to the stable URL paths persisted alongside messages.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps uploaded files under a single directory and serves them at
// baseURL (e.g. "/uploads").
type Store struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

func NewStore(dir, baseURL string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir %s: %w", dir, err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "media_store"),
	}, nil
}

// sanitize collapses whitespace to underscores and strips any path
// components a client may have smuggled into the name.
func sanitize(filename string) string {
	name := filepath.Base(filename)
	return strings.Join(strings.Fields(name), "_")
}

// Store writes the upload and returns its URL path. Name collisions get a
// random prefix rather than overwriting the existing file.
func (s *Store) Store(filename string, contents io.Reader) (string, error) {
	name := sanitize(filename)
	if name == "" || name == "." {
		return "", fmt.Errorf("unusable upload filename %q", filename)
	}

	target := filepath.Join(s.dir, name)
	if _, err := os.Stat(target); err == nil {
		name = uuid.NewString()[:8] + "_" + name
		target = filepath.Join(s.dir, name)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, contents); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	return s.baseURL + "/" + name, nil
}

// Remove deletes the file behind a URL path. Removal is best-effort: a file
// that is already gone is not an error.
func (s *Store) Remove(urlPath string) error {
	name := sanitize(filepath.Base(urlPath))
	if name == "" || name == "." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file %s: %w", name, err)
	}
	return nil
}
