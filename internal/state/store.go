// Package state persists what the installer needs to remember between
// runs: the release currently installed and the rotating folder index used
// to pick fresh install directories. The file-backed store validates its
// contents against an embedded JSON schema before trusting them, so a
// corrupt or hand-edited state file is reported instead of acted on.
package state

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeql-community/qldist/internal/registry"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/state.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

const stateFileName = "distribution.json"

// Store is the key-value collaborator the distribution components read and
// write through. Implementations must make BumpFolderIndex an atomic
// read-modify-write so two installs never select the same index.
type Store interface {
	// InstalledRelease returns the recorded release, or nil when none is
	// installed.
	InstalledRelease() (*registry.Release, error)

	// SetInstalledRelease records r as installed; nil clears the record.
	SetInstalledRelease(r *registry.Release) error

	// FolderIndex returns the current rotating folder index (0 initially).
	FolderIndex() (int, error)

	// BumpFolderIndex increments the folder index and returns the new
	// value. The index strictly increases across installs.
	BumpFolderIndex() (int, error)
}

// fileState is the on-disk shape of the persisted state.
type fileState struct {
	FolderIndex int               `json:"distributionFolderIndex"`
	Release     *registry.Release `json:"distributionRelease,omitempty"`
	InstalledAt string            `json:"installedAt,omitempty"`
}

// FileStore persists state as a schema-validated JSON file in dir.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore returns a FileStore writing to dir/distribution.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, stateFileName),
		now:  time.Now,
	}
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling state schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("state.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding state schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("state.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling state schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// load reads and validates the state file. A missing file is an empty
// state, not an error.
func (s *FileStore) load() (*fileState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	schema, err := getSchema()
	if err != nil {
		return nil, err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("state file %s is not valid: %w", s.path, err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return &st, nil
}

func (s *FileStore) save(st *fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// InstalledRelease implements Store.
func (s *FileStore) InstalledRelease() (*registry.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Release, nil
}

// SetInstalledRelease implements Store.
func (s *FileStore) SetInstalledRelease(r *registry.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	st.Release = r
	if r == nil {
		st.InstalledAt = ""
	} else {
		st.InstalledAt = s.now().UTC().Format(time.RFC3339)
	}
	return s.save(st)
}

// InstalledAt returns when the recorded release was installed, if known.
func (s *FileStore) InstalledAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil || st.InstalledAt == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, st.InstalledAt)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// FolderIndex implements Store.
func (s *FileStore) FolderIndex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	return st.FolderIndex, nil
}

// BumpFolderIndex implements Store.
func (s *FileStore) BumpFolderIndex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	st.FolderIndex++
	if err := s.save(st); err != nil {
		return 0, err
	}
	return st.FolderIndex, nil
}
