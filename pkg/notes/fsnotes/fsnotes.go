// Package fsnotes serves notes from a directory of org and markdown files.
package fsnotes

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// DefaultExtensions are the note file extensions read when none are configured.
var DefaultExtensions = []string{".org", ".md"}

// Config holds configuration for a directory source.
type Config struct {
	// Dir is the root directory of the notes.
	Dir string

	// Extensions filters the files read; defaults to DefaultExtensions.
	Extensions []string
}

// Source implements notes.Source over a directory tree. Hidden files and
// directories are skipped.
type Source struct {
	dir        string
	extensions []string
	logger     *slog.Logger
}

// New creates a directory source rooted at c.Dir.
func New(c Config, logger *slog.Logger) (*Source, error) {
	if c.Dir == "" {
		return nil, fmt.Errorf("%w: notes directory is required", vector.ErrConfiguration)
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving notes directory: %w", vector.ErrConfiguration, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: notes directory: %w", vector.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", vector.ErrConfiguration, dir)
	}

	extensions := c.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	return &Source{dir: dir, extensions: extensions, logger: logger}, nil
}

// Dir returns the absolute root directory.
func (s *Source) Dir() string {
	return s.dir
}

// IsNote reports whether path has one of the configured extensions and no
// hidden path element below the root.
func (s *Source) IsNote(path string) bool {
	if !slices.Contains(s.extensions, strings.ToLower(filepath.Ext(path))) {
		return false
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// Nodes reads every note under the root. Nodes declaring an id already seen
// are skipped with a warning.
func (s *Source) Nodes(ctx context.Context) ([]*notes.Node, error) {
	var nodes []*notes.Node
	seen := map[string]string{}

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.IsNote(path) {
			return nil
		}

		node, err := s.Load(path)
		if err != nil {
			return err
		}
		if prev, dup := seen[node.ID]; dup {
			s.logger.Warn("skipping note with duplicate id",
				"id", node.ID, "path", node.Path, "first_path", prev)
			return nil
		}
		seen[node.ID] = node.Path
		nodes = append(nodes, node)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking notes directory %s: %w", s.dir, err)
	}

	return nodes, nil
}

// Node finds the note with the given id.
func (s *Source) Node(ctx context.Context, id string) (*notes.Node, error) {
	nodes, err := s.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", notes.ErrNodeNotFound, id)
}

// Load reads one note file. The node id is the id declared in its metadata,
// or its slash separated path relative to the root.
func (s *Source) Load(path string) (*notes.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading note %s: %w", path, err)
	}

	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return nil, fmt.Errorf("resolving note path %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	content := string(data)
	ext := filepath.Ext(path)
	md, err := notes.ParseMetadata(content, ext)
	if err != nil {
		s.logger.Warn("ignoring malformed note metadata", "path", rel, "error", err)
	}

	node := &notes.Node{
		ID:          md.ID,
		Path:        rel,
		Title:       md.Title,
		Content:     content,
		MetadataEnd: md.End,
	}
	if node.ID == "" {
		node.ID = rel
	}
	if node.Title == "" {
		node.Title = strings.TrimSuffix(filepath.Base(path), ext)
	}

	return node, nil
}

var _ notes.Source = (*Source)(nil)
