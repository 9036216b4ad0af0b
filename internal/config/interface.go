package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/fsutil"
)

// Loader is the interface for a format-specific pipeline definition parser.
type Loader interface {
	// Extensions returns the file extensions this loader claims,
	// including the leading dot.
	Extensions() []string

	// LoadFile parses a single definition file into the agnostic model.
	LoadFile(ctx context.Context, path string) (*Model, error)
}

// MultiLoader routes a file or directory of pipeline definitions to the
// registered format-specific loaders by file extension and merges the
// results into one model.
type MultiLoader struct {
	loaders []Loader
}

// NewMultiLoader builds a MultiLoader over the given format loaders.
func NewMultiLoader(loaders ...Loader) *MultiLoader {
	return &MultiLoader{loaders: loaders}
}

// Load reads the pipeline definition at path. A directory is searched
// recursively for files matching any registered extension; their jobs are
// merged into a single pipeline. The returned model is not yet validated.
func (m *MultiLoader) Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline path: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, m.extensions()...)
		if err != nil {
			return nil, fmt.Errorf("scanning pipeline directory: %w", err)
		}
		if len(files) == 0 {
			return nil, &Error{Message: fmt.Sprintf("no pipeline definition files found under %s", path)}
		}
	} else {
		files = []string{path}
	}

	merged := &Model{Pipeline: &Pipeline{}}
	for _, file := range files {
		loader := m.loaderFor(file)
		if loader == nil {
			return nil, &Error{Message: fmt.Sprintf("no loader for pipeline file %s", file)}
		}
		logger.Debug("Loading pipeline file.", "path", file)
		model, err := loader.LoadFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		mergeInto(merged, model)
	}
	logger.Debug("Pipeline definition loaded.", "files", len(files), "jobs", len(merged.Pipeline.Jobs))
	return merged, nil
}

func (m *MultiLoader) extensions() []string {
	var exts []string
	for _, l := range m.loaders {
		exts = append(exts, l.Extensions()...)
	}
	return exts
}

func (m *MultiLoader) loaderFor(path string) Loader {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range m.loaders {
		for _, e := range l.Extensions() {
			if e == ext {
				return l
			}
		}
	}
	return nil
}

// mergeInto appends src's jobs to dst. The pipeline takes its name from the
// first file that declares one; duplicate job names across files are left
// for Validate to reject.
func mergeInto(dst, src *Model) {
	if src == nil || src.Pipeline == nil {
		return
	}
	if dst.Pipeline.Name == "" {
		dst.Pipeline.Name = src.Pipeline.Name
	}
	dst.Pipeline.Jobs = append(dst.Pipeline.Jobs, src.Pipeline.Jobs...)
}
