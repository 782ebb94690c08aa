package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// extensionOrder is the preference order when a dataset exists in several
// formats. Parquet is what the analysis engine writes natively; the rest
// are export fallbacks.
var extensionOrder = []string{".parquet", ".csv", ".xlsx", ".json"}

// Resolver maps dataset kinds to files in one scenario directory.
// Matching is case-insensitive on the base name, mirroring how the original
// located archive members regardless of how the tooling cased them.
type Resolver struct {
	dir string

	// byBase maps lower(base name without extension) -> lower(ext) -> path.
	byBase map[string]map[string]string

	// byName maps lower(full base name) -> path.
	byName map[string]string
}

// NewResolver indexes dir (recursively) for dataset resolution.
func NewResolver(dir string) (*Resolver, error) {
	r := &Resolver{
		dir:    dir,
		byBase: make(map[string]map[string]string),
		byName: make(map[string]string),
	}

	// Walk order is lexical, not breadth-first, so track depth explicitly:
	// a scenario directory's own files shadow duplicates in subdirectories.
	baseDepth := make(map[string]int)
	nameDepth := make(map[string]int)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(filepath.Separator))

		name := d.Name()
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))

		if r.byBase[base] == nil {
			r.byBase[base] = make(map[string]string)
		}
		baseKey := base + ext
		if prev, ok := baseDepth[baseKey]; !ok || depth < prev {
			r.byBase[base][ext] = path
			baseDepth[baseKey] = depth
		}
		lower := strings.ToLower(name)
		if prev, ok := nameDepth[lower]; !ok || depth < prev {
			r.byName[lower] = path
			nameDepth[lower] = depth
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

// Dir returns the indexed directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve returns the on-disk path for a dataset kind, trying each candidate
// base name against each extension in preference order.
func (r *Resolver) Resolve(kind Kind) (string, bool) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return "", false
	}
	for _, base := range spec.bases {
		exts := r.byBase[strings.ToLower(base)]
		if exts == nil {
			continue
		}
		for _, ext := range extensionOrder {
			if path, ok := exts[ext]; ok {
				return path, true
			}
		}
	}
	return "", false
}

// ResolveFile finds a file by exact (case-insensitive) base name,
// e.g. "heat_ALL.xlsx".
func (r *Resolver) ResolveFile(name string) (string, bool) {
	path, ok := r.byName[strings.ToLower(name)]
	return path, ok
}

// Available returns the dataset kinds present in the directory.
func (r *Resolver) Available() []Kind {
	var out []Kind
	for _, kind := range Kinds() {
		if _, ok := r.Resolve(kind); ok {
			out = append(out, kind)
		}
	}
	return out
}

// Load resolves and decodes a dataset kind in one step.
// A missing file yields an empty table, not an error: pages probe for many
// optional datasets and an absent artifact is a normal condition.
func (r *Resolver) Load(kind Kind) (*Table, error) {
	path, ok := r.Resolve(kind)
	if !ok {
		return NewTable(nil, nil, nil)
	}
	return LoadFile(path, kind.Sheet())
}
