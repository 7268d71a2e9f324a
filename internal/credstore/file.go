package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// File keeps credentials in a dotenv file
// Every write replaces the whole file through a temp file and rename
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("credential file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	return &File{path: path}, nil
}

func (f *File) Get(_ context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *File) Set(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	maps.Copy(all, values)

	return f.write(all)
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(all, k)
	}

	return f.write(all)
}

func (f *File) Close() error {
	return nil
}

func (f *File) read() (map[string]string, error) {
	values, err := godotenv.Read(f.path)
	switch {
	case err == nil:
		return values, nil
	case errors.Is(err, fs.ErrNotExist):
		return make(map[string]string), nil
	default:
		return nil, fmt.Errorf("read credential file: %w", err)
	}
}

func (f *File) write(values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	if _, err := tmp.WriteString(content + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
