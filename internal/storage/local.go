// Package storage keeps uploaded files on local disk under a single root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidRef = errors.New("invalid storage reference")

// File describes a stored upload. Ref is relative to the store root.
type File struct {
	Name     string
	Ref      string
	Size     int64
	MimeType string
}

type Local struct {
	root   string
	logger *zap.Logger
}

func NewLocal(dir string, logger *zap.Logger) (*Local, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{root: root, logger: logger.Named("storage")}, nil
}

func (s *Local) Root() string { return s.root }

// Save copies r under a fresh uuid name keeping the original extension.
func (s *Local) Save(name string, r io.Reader) (*File, error) {
	ext := strings.ToLower(filepath.Ext(name))
	ref := uuid.NewString() + ext
	path := filepath.Join(s.root, ref)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	s.logger.Debug("File stored", zap.String("ref", ref), zap.Int64("size", size))
	return &File{
		Name:     filepath.Base(name),
		Ref:      ref,
		Size:     size,
		MimeType: mime.TypeByExtension(ext),
	}, nil
}

// Adopt registers a file that already lives under the root.
func (s *Local) Adopt(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ref, err := filepath.Rel(s.root, abs)
	if err != nil || !local(ref) {
		return nil, fmt.Errorf("%w: %s is outside %s", ErrInvalidRef, path, s.root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:     filepath.Base(abs),
		Ref:      filepath.ToSlash(ref),
		Size:     info.Size(),
		MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(abs))),
	}, nil
}

func (s *Local) Open(ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *Local) Remove(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Local) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if ref == "" || filepath.IsAbs(clean) || !local(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, clean), nil
}

func local(rel string) bool {
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
