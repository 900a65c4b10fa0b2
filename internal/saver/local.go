package saver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/logging"
)

// LocalConfig holds local directory target settings.
type LocalConfig struct {
	Dir        string
	CreateDirs bool
}

// Local writes files into a directory. Existing files are never
// overwritten; a " (n)" suffix is added instead.
type Local struct {
	dir string
}

// NewLocal creates a local directory target.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("save dir is required")
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.Dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("create save dir %s: %w", cfg.Dir, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat save dir %s: %w", cfg.Dir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("save dir %s is not a directory", cfg.Dir)
	}

	return &Local{dir: cfg.Dir}, nil
}

// SaveAsFile writes data atomically under a free variant of suggestedName.
func (l *Local) SaveAsFile(_ context.Context, data []byte, suggestedName string) error {
	name, err := cleanName(suggestedName)
	if err != nil {
		return fmt.Errorf("save %q: %w", suggestedName, err)
	}

	tmp, err := os.CreateTemp(l.dir, ".docconnector-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}

	dst := l.freePath(name)
	// Link fails if dst appeared since freePath looked, so nothing is clobbered.
	for i := 0; ; i++ {
		err = os.Link(tmpName, dst)
		if err == nil || !errors.Is(err, fs.ErrExist) || i >= 100 {
			break
		}
		dst = l.freePath(name)
	}
	os.Remove(tmpName)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	logging.Debug("file saved", zap.String("path", dst), zap.Int("size", len(data)))
	return nil
}

// freePath returns dir/name, or dir/"base (n).ext" for the first n not taken.
func (l *Local) freePath(name string) string {
	candidate := filepath.Join(l.dir, name)
	if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(l.dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// Type returns "local".
func (l *Local) Type() string { return "local" }
