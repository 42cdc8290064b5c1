package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const metaSuffix = ".meta.json"

// FileStore keeps each artifact as a file in one directory, next to a
// sidecar holding its metadata.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the content file path for an artifact of the given kind.
func (s *FileStore) Path(name string, kind Kind) string {
	return filepath.Join(s.dir, name+kind.Extension())
}

func (s *FileStore) metaPath(name string) string {
	return filepath.Join(s.dir, name+metaSuffix)
}

// Put implements Store. The metadata sidecar is written last, so an
// interrupted Put leaves the previous artifact detectable as stale rather
// than silently mixed.
func (s *FileStore) Put(_ context.Context, a Artifact) error {
	if a.Name == "" {
		return &WriteError{Name: "(unnamed)", Cause: errors.New("artifact name is required")}
	}
	if a.Checksum == "" {
		a.Checksum = Checksum(a.Content)
	}

	meta, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return &WriteError{Name: a.Name, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a previous artifact of the other kind would shadow this one on Get
	for _, k := range []Kind{KindJSON, KindText} {
		if k != a.Kind {
			if err := os.Remove(s.Path(a.Name, k)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return &WriteError{Name: a.Name, Cause: err}
			}
		}
	}

	if err := writeAtomic(s.Path(a.Name, a.Kind), a.Content); err != nil {
		return &WriteError{Name: a.Name, Cause: err}
	}
	if err := writeAtomic(s.metaPath(a.Name), meta); err != nil {
		return &WriteError{Name: a.Name, Cause: err}
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, name string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(name)
}

func (s *FileStore) read(name string) (*Artifact, error) {
	metaBytes, err := os.ReadFile(s.metaPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s metadata: %w", name, err)
	}

	var a Artifact
	if err := json.Unmarshal(metaBytes, &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s metadata: %w", name, err)
	}

	content, err := os.ReadFile(s.Path(name, a.Kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}

	if actual := Checksum(content); actual != a.Checksum {
		return nil, &StaleError{Name: name, Expected: a.Checksum, Actual: actual}
	}
	a.Content = content
	return &a, nil
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List implements Store. Artifacts are returned in pipeline order; missing
// ones are skipped.
func (s *FileStore) List(_ context.Context) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Artifact
	for _, name := range Names {
		a, err := s.read(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// ClearAll implements Store. It removes every pipeline artifact, along with
// leftover temp files from interrupted writes.
func (s *FileStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, name := range Names {
		for _, p := range []string{s.metaPath(name), s.Path(name, KindJSON), s.Path(name, KindText)} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	temps, _ := filepath.Glob(filepath.Join(s.dir, ".*.tmp-*"))
	for _, p := range temps {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return &WriteError{Name: "(all)", Cause: err}
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
