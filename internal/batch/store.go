// Package batch persists sample batches as whole-file JSON and recovers
// failed completion calls inside them.
package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/example/rationale-probe/internal/models"
)

const baseDir = "base"

// Store resolves batch locations under a data directory:
// <root>/base/{safe,unsafe}.json for the base examples and
// <root>/<family>/<name>.json for everything a stage writes.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// BasePath returns the base example file for the safe or unsafe set.
func (s *Store) BasePath(safe bool) string {
	name := "unsafe"
	if safe {
		name = "safe"
	}
	return filepath.Join(s.root, baseDir, name+".json")
}

// Path returns the batch file for name inside a stage family directory.
func (s *Store) Path(family, name string) string {
	return filepath.Join(s.root, family, name+".json")
}

// ReadBase loads the base examples, keeping only domain unless it is
// models.DomainAll.
func (s *Store) ReadBase(safe bool, domain models.Domain) ([]models.Sample, error) {
	if domain != models.DomainAll && !domain.Valid() {
		return nil, fmt.Errorf("read base examples: %w: %q", models.ErrUnknownDomain, domain)
	}
	var all []models.Sample
	if err := ReadJSON(s.BasePath(safe), &all); err != nil {
		return nil, err
	}
	if domain == models.DomainAll {
		return all, nil
	}
	out := all[:0]
	for _, sm := range all {
		if sm.Domain == domain {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (s *Store) Load(family, name string) ([]models.Sample, error) {
	var samples []models.Sample
	if err := ReadJSON(s.Path(family, name), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (s *Store) Save(family, name string, v any) (string, error) {
	path := s.Path(family, name)
	return path, WriteJSON(path, v)
}

// ReadJSON decodes the whole file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON replaces the file at path with v, indented by two spaces. The
// new content is written to a sibling temp file first and renamed over path.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Subsample shuffles samples with a generator seeded by seed and keeps the
// first n. The input slice is not modified.
func Subsample[T any](samples []T, seed int64, n int) []T {
	out := append([]T(nil), samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
