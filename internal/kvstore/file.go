package kvstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/securefile"
)

// FileStore keeps one file per key under dir. Writes are atomic (tmp + rename).
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("kvstore: dir must not be empty")
	}
	if err := os.MkdirAll(dir, constants.DirectoryPerm); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return securefile.AtomicWriteFile(f.pathFor(key), value, constants.FilePerm)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// keys may contain '/', so file names are hex encoded.
func (f *FileStore) pathFor(key string) string {
	return filepath.Join(f.dir, hex.EncodeToString([]byte(key))+".json")
}
