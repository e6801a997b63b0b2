package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// FileStore keeps credentials in a YAML state file. Writes go through a
// temp file plus rename so a crash mid-write cannot corrupt the state.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// fileState is the on-disk document.
type fileState struct {
	Credentials map[string]domain.Credential `yaml:"credentials"`
}

// NewFileStore creates a FileStore at path. The file is created lazily on
// the first save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	return &FileStore{path: path}, nil
}

// SaveCredential implements Store.
func (s *FileStore) SaveCredential(_ context.Context, connectionID string, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	state.Credentials[connectionID] = cred

	return s.write(state)
}

// GetCredential implements Store.
func (s *FileStore) GetCredential(_ context.Context, connectionID string) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return domain.Credential{}, err
	}

	cred, ok := state.Credentials[connectionID]
	if !ok {
		return domain.Credential{}, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	return cred, nil
}

// Ping implements Store by checking the parent directory is writable.
func (s *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("state directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("state directory %s is not a directory", dir)
	}
	return nil
}

// Close implements Store. The file store holds no open resources.
func (s *FileStore) Close() {}

func (s *FileStore) load() (*fileState, error) {
	state := &fileState{Credentials: make(map[string]domain.Credential)}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	if state.Credentials == nil {
		state.Credentials = make(map[string]domain.Credential)
	}
	return state, nil
}

func (s *FileStore) write(state *fileState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".shopmon-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// Tokens are secrets; keep the state file private.
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting state file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
