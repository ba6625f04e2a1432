package specs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoMatch is returned by Registry.Match when no spec's path_pattern
// matches the given object path. The caller moves the object to failed/
// with reason "no matching spec".
var ErrNoMatch = errors.New("specs: no matching source spec")

// Registry holds every loaded Source, in the order specs were registered.
// Matching uses registry order: the first spec whose glob matches wins.
type Registry struct {
	sources []Source
}

// NewRegistry returns an empty Registry. Use Load or Add to populate it.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends src to the registry.
func (r *Registry) Add(src Source) {
	r.sources = append(r.sources, src)
}

// All returns every registered Source, in registry order.
func (r *Registry) All() []Source {
	return append([]Source(nil), r.sources...)
}

// Load walks dir for *.yaml/*.yml files and parses each as a Source,
// appending them to the registry in a deterministic (lexical) directory
// order.
func Load(dir string) (*Registry, error) {
	r := NewRegistry()

	var paths []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, p)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("specs: load %q: %w", dir, err)
	}

	for _, p := range paths {
		src, err := loadOne(p)
		if err != nil {
			return nil, fmt.Errorf("specs: load %q: %w", p, err)
		}

		r.Add(src)
	}

	return r, nil
}

func loadOne(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}

	var src Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return Source{}, err
	}

	return src, nil
}

// Match returns the first registered Source whose path_pattern matches
// objectPath (with the logical bucket prefix already stripped by the
// caller), using first-match-wins over registry order.
func (r *Registry) Match(objectPath string) (Source, error) {
	for _, src := range r.sources {
		ok, err := filepath.Match(src.Source.PathPattern, objectPath)
		if err != nil {
			return Source{}, fmt.Errorf("specs: match %q against %q: %w", objectPath, src.Source.PathPattern, err)
		}

		if ok {
			return src, nil
		}
	}

	return Source{}, fmt.Errorf("%w: %s", ErrNoMatch, objectPath)
}
