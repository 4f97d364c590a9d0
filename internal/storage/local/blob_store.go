// Package local persists Markdown artifacts to a directory on the local
// filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/pagemark/internal/digest"
	"github.com/JakeFAU/pagemark/internal/extract"
)

// DefaultExtension is appended to every label.
const DefaultExtension = "md"

// Config captures the parameters for the local artifact store.
type Config struct {
	// Root is the directory artifacts are written into.
	Root string `mapstructure:"dir" yaml:"dir"`
	// Extension is the file extension without the leading dot.
	Extension string `mapstructure:"extension" yaml:"extension"`
}

// Store writes artifacts to {Root}/{label}.{Extension}.
type Store struct {
	fs     afero.Fs
	root   string
	ext    string
	hasher extract.Hasher
}

// Option customizes a Store.
type Option func(*Store)

// WithFs swaps the filesystem implementation.
func WithFs(fs afero.Fs) Option {
	return func(s *Store) { s.fs = fs }
}

// WithHasher swaps the content hasher.
func WithHasher(h extract.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

// New creates the root directory if needed and verifies it is writable.
func New(cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, extract.IOError(errors.New("output directory is required"))
	}
	s := &Store{
		fs:     afero.NewOsFs(),
		root:   filepath.Clean(cfg.Root),
		ext:    strings.TrimPrefix(strings.TrimSpace(cfg.Extension), "."),
		hasher: digest.SHA256{},
	}
	if s.ext == "" {
		s.ext = DefaultExtension
	}
	for _, opt := range opts {
		opt(s)
	}

	info, err := s.fs.Stat(s.root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := s.fs.MkdirAll(s.root, 0o750); mkErr != nil {
			return nil, extract.IOError(fmt.Errorf("create output directory: %w", mkErr))
		}
	case err != nil:
		return nil, extract.IOError(fmt.Errorf("stat output directory: %w", err))
	case !info.IsDir():
		return nil, extract.IOError(fmt.Errorf("output path %s is not a directory", s.root))
	}

	probe := filepath.Join(s.root, ".writable_test")
	if err := afero.WriteFile(s.fs, probe, []byte("test"), 0o600); err != nil {
		return nil, extract.IOError(fmt.Errorf("output directory is not writable: %w", err))
	}
	if err := s.fs.Remove(probe); err != nil {
		return nil, extract.IOError(fmt.Errorf("clean up probe file: %w", err))
	}
	return s, nil
}

// Root returns the cleaned output directory.
func (s *Store) Root() string { return s.root }

// PathFor returns the artifact path for label, or an error if the label does
// not resolve to a file directly inside the root.
func (s *Store) PathFor(label string) (string, error) {
	if label == "" || label == "." || label == ".." ||
		strings.ContainsAny(label, `/\`+"\x00") || filepath.Base(label) != label {
		return "", extract.IOError(fmt.Errorf("label %q: %w", label, extract.ErrPathEscape))
	}
	full := filepath.Join(s.root, label+"."+s.ext)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel != filepath.Base(full) {
		return "", extract.IOError(fmt.Errorf("label %q: %w", label, extract.ErrPathEscape))
	}
	return full, nil
}

// Persist writes content for label, replacing any previous artifact. The
// write goes to a temp file in the root first and is renamed into place.
func (s *Store) Persist(ctx context.Context, label, content string) (extract.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return extract.Artifact{}, extract.IOError(err)
	}
	full, err := s.PathFor(label)
	if err != nil {
		return extract.Artifact{}, err
	}

	data := []byte(content)
	sum, err := s.hasher.Hash(data)
	if err != nil {
		return extract.Artifact{}, extract.IOError(fmt.Errorf("hash %s: %w", label, err))
	}

	tmp, err := afero.TempFile(s.fs, s.root, "."+label+"-*.tmp")
	if err != nil {
		return extract.Artifact{}, extract.IOError(fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return extract.Artifact{}, extract.IOError(fmt.Errorf("write %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return extract.Artifact{}, extract.IOError(fmt.Errorf("close %s: %w", tmpName, err))
	}
	if err := s.fs.Rename(tmpName, full); err != nil {
		cleanup()
		return extract.Artifact{}, extract.IOError(fmt.Errorf("rename into %s: %w", full, err))
	}

	return extract.Artifact{Path: full, Bytes: len(data), SHA256: sum}, nil
}
