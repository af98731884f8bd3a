package state

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// FileStore keeps state in a local JSON file. Saves write a temporary file
// and rename it, so a crash never leaves a truncated state behind.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (f *FileStore) Load(context.Context) (*singer.State, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return singer.NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file").
			WithDetail("path", f.path)
	}
	return decode(data)
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, s *singer.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to encode state")
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state file").
			WithDetail("path", f.path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to replace state file").
			WithDetail("path", f.path)
	}
	return nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }
