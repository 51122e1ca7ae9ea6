package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotExist is returned by Read when the location holds no object
var ErrNotExist = errors.New("object does not exist")

// Store reads and writes whole documents addressed by location
type Store interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// Options configures the backends a Router can create
type Options struct {
	S3Region   string
	S3Endpoint string
}

// Router dispatches each location to the backend matching its scheme:
// s3://bucket/key goes to S3, anything else is a local path.
type Router struct {
	opts  Options
	files *FileStore

	mu sync.Mutex
	s3 *S3Store
}

// NewRouter creates a router. The S3 client is only created when first needed.
func NewRouter(opts Options) *Router {
	return &Router{
		opts:  opts,
		files: NewFileStore(),
	}
}

func (r *Router) backend(ctx context.Context, location string) (Store, error) {
	if !strings.HasPrefix(location, s3Scheme) {
		return r.files, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 == nil {
		s, err := NewS3Store(ctx, r.opts.S3Region, r.opts.S3Endpoint)
		if err != nil {
			return nil, err
		}
		r.s3 = s
	}
	return r.s3, nil
}

func (r *Router) Read(ctx context.Context, location string) ([]byte, error) {
	b, err := r.backend(ctx, location)
	if err != nil {
		return nil, err
	}
	return b.Read(ctx, location)
}

func (r *Router) Write(ctx context.Context, location string, data []byte) error {
	b, err := r.backend(ctx, location)
	if err != nil {
		return err
	}
	return b.Write(ctx, location, data)
}

// FileStore keeps documents on the local filesystem
type FileStore struct{}

func NewFileStore() *FileStore {
	return &FileStore{}
}

func (f *FileStore) Read(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", location, ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Write replaces the file content, creating parent directories as needed
func (f *FileStore) Write(_ context.Context, location string, data []byte) error {
	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(location, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	return nil
}
