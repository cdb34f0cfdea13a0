package hub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store locates model artifacts either inside a local model directory or,
// for anything else, on the hub. It satisfies pooling.ConfigReader.
type Store struct {
	client *Client
}

// NewStore wraps c. A nil client uses New().
func NewStore(c *Client) *Store {
	if c == nil {
		c = New()
	}
	return &Store{client: c}
}

// Open returns a local path for artifact name of model path. found is
// false when the artifact does not exist.
func (s *Store) Open(ctx context.Context, path, name string) (localPath string, found bool, err error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		p := filepath.Join(path, filepath.FromSlash(name))
		switch fi, err := os.Stat(p); {
		case err == nil && !fi.IsDir():
			return p, true, nil
		case err == nil, errors.Is(err, fs.ErrNotExist):
			return "", false, nil
		default:
			return "", false, fmt.Errorf("hub: %w", err)
		}
	}
	return s.client.Fetch(ctx, path, name)
}

// Load returns the content of artifact name of model path.
func (s *Store) Load(ctx context.Context, path, name string) ([]byte, bool, error) {
	p, found, err := s.Open(ctx, path, name)
	if err != nil || !found {
		return nil, found, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false, fmt.Errorf("hub: %w", err)
	}
	return data, true, nil
}
