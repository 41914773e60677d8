package ddi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ritzau/module-graph/pkg/analysis/api"
	"github.com/ritzau/module-graph/pkg/logging"
)

// DefaultVersionConstraint accepts format versions 0 and 1
const DefaultVersionConstraint = "< 2.0.0"

// DefaultCacheSize is the number of parsed files kept between loads
const DefaultCacheSize = 512

// cacheEntry is a parsed file together with the stat data it was parsed from
type cacheEntry struct {
	size    int64
	modTime time.Time
	file    *File
}

// Loader finds and parses all DDI files below a root directory. Parsed files
// are cached, so repeated loads only parse files that changed.
type Loader struct {
	constraint *semver.Constraints
	cache      *lru.Cache[string, cacheEntry]
}

// NewLoader creates a loader accepting format versions that satisfy
// versionConstraint (e.g. "< 2.0.0").
func NewLoader(versionConstraint string, cacheSize int) (*Loader, error) {
	constraint, err := semver.NewConstraint(versionConstraint)
	if err != nil {
		return nil, fmt.Errorf("parsing version constraint %q: %w", versionConstraint, err)
	}

	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating parse cache: %w", err)
	}

	return &Loader{
		constraint: constraint,
		cache:      cache,
	}, nil
}

func (l *Loader) Name() string {
	return "DDI"
}

// Load returns the facts of every valid file below root. Files that cannot be
// read or parsed, or that have an unsupported version, are logged and
// skipped. Files without any providing rule contribute nothing.
func (l *Loader) Load(ctx context.Context, root string) (*api.FactSet, error) {
	logger := logging.New("source.ddi")

	paths, err := FindFiles(root)
	if err != nil {
		return nil, err
	}
	logger.Debug("found DDI files", "root", root, "count", len(paths))

	set := &api.FactSet{Files: len(paths)}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, err := l.loadFile(path)
		if err != nil {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			logger.Warn("failed to load DDI file", "path", rel, "error", err)
			set.Skipped++
			continue
		}

		if len(file.Rules) == 0 {
			continue
		}
		set.Facts = append(set.Facts, file.Facts()...)
	}

	logger.Info("loaded dependency facts", "files", set.Files, "skipped", set.Skipped, "facts", len(set.Facts))
	return set, nil
}

// loadFile parses a file unless an unchanged copy is cached
func (l *Loader) loadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if entry, ok := l.cache.Get(path); ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		logging.Trace("DDI cache hit", "path", path)
		return entry.file, nil
	}

	file, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := l.CheckVersion(file); err != nil {
		return nil, err
	}
	file.DropConsumers()

	l.cache.Add(path, cacheEntry{size: info.Size(), modTime: info.ModTime(), file: file})
	return file, nil
}

// CheckVersion returns ErrUnsupportedVersion unless version.revision
// satisfies the loader's constraint.
func (l *Loader) CheckVersion(f *File) error {
	if f.Version < 0 || f.Revision < 0 {
		return fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, f.Version, f.Revision)
	}

	v := semver.New(uint64(f.Version), uint64(f.Revision), 0, "", "")
	if !l.constraint.Check(v) {
		return fmt.Errorf("%w: got %d, want %s", ErrUnsupportedVersion, f.Version, l.constraint)
	}
	return nil
}

// Cached returns the number of parsed files currently cached
func (l *Loader) Cached() int {
	return l.cache.Len()
}

// Forget drops cached parse results for paths
func (l *Loader) Forget(paths []string) {
	for _, path := range paths {
		l.cache.Remove(path)
	}
}
