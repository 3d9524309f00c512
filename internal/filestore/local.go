package filestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local keeps uploaded files in one directory served under URLPrefix.
type Local struct {
	dir       string
	urlPrefix string
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/images/places"
	}
	log.Printf("Storage: Uploads stored in %s, served at %s", dir, urlPrefix)
	return &Local{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory files are written to.
func (l *Local) Dir() string {
	return l.dir
}

// Save writes data under name and returns its public URL path.
func (l *Local) Save(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	target := filepath.Join(l.dir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return l.urlPrefix + "/" + name, nil
}

// Delete removes the file behind locator. Unknown locators and missing files are ignored.
func (l *Local) Delete(_ context.Context, locator string) error {
	name, ok := l.nameOf(locator)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

func (l *Local) nameOf(locator string) (string, bool) {
	if !strings.HasPrefix(locator, l.urlPrefix+"/") {
		return "", false
	}
	name := path.Base(strings.TrimPrefix(locator, l.urlPrefix+"/"))
	if name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return "", false
	}
	return name, true
}
