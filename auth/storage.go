package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joy-dx/gobox/dto"
)

// InMemoryTokenStorage is the default storage of every Authentication.
type InMemoryTokenStorage struct {
	mu    sync.RWMutex
	token *dto.AccessToken
}

func NewInMemoryTokenStorage(token *dto.AccessToken) *InMemoryTokenStorage {
	return &InMemoryTokenStorage{token: token}
}

func (s *InMemoryTokenStorage) Store(_ context.Context, token *dto.AccessToken) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *InMemoryTokenStorage) Get(_ context.Context) (*dto.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *InMemoryTokenStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	return nil
}

// FileTokenStorage keeps the token as JSON on disk so it survives restarts.
// Writes go through a temp file and rename.
type FileTokenStorage struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenStorage(path string) *FileTokenStorage {
	return &FileTokenStorage{path: path}
}

func (s *FileTokenStorage) Path() string { return s.path }

func (s *FileTokenStorage) Store(_ context.Context, token *dto.AccessToken) error {
	if token == nil {
		return s.Clear(context.Background())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileTokenStorage) Get(_ context.Context) (*dto.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var tok dto.AccessToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.path, err)
	}
	return &tok, nil
}

func (s *FileTokenStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// FileWithInMemoryCacheTokenStorage reads the file once and serves later
// reads from memory. Writes go to both.
type FileWithInMemoryCacheTokenStorage struct {
	file   *FileTokenStorage
	mu     sync.RWMutex
	cached *dto.AccessToken
	loaded bool
}

func NewFileWithInMemoryCacheTokenStorage(path string) *FileWithInMemoryCacheTokenStorage {
	return &FileWithInMemoryCacheTokenStorage{file: NewFileTokenStorage(path)}
}

func (s *FileWithInMemoryCacheTokenStorage) Store(ctx context.Context, token *dto.AccessToken) error {
	if err := s.file.Store(ctx, token); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached, s.loaded = token, true
	s.mu.Unlock()
	return nil
}

func (s *FileWithInMemoryCacheTokenStorage) Get(ctx context.Context) (*dto.AccessToken, error) {
	s.mu.RLock()
	if s.loaded {
		tok := s.cached
		s.mu.RUnlock()
		return tok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}
	tok, err := s.file.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.cached, s.loaded = tok, true
	return tok, nil
}

func (s *FileWithInMemoryCacheTokenStorage) Clear(ctx context.Context) error {
	if err := s.file.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached, s.loaded = nil, true
	s.mu.Unlock()
	return nil
}
