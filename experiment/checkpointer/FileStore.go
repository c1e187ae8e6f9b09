package checkpointer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileStore stores each checkpoint in its own file in a directory
type FileStore struct {
	dir       string
	extension string

	// filename returns the name of the file to save the next
	// checkpoint in, without directory or extension.
	//
	// If each checkpoint should be saved with an incremented number as
	// a suffix (e.g. ckpt1.bin, ckpt2.bin, ..., ckptK.bin), then use
	// FilenameEnumerator. If the name does not matter, FileTimer
	// generates names from the current time.
	filename func() string
}

// NewFileStore returns a new FileStore saving checkpoints with the
// given extension in dir, named by filename
func NewFileStore(dir, extension string,
	filename func() string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create checkpoint "+
			"directory %v", dir)
	}
	return &FileStore{dir: dir, extension: extension, filename: filename}, nil
}

// Save implements the Store interface
func (f *FileStore) Save(ctx context.Context, s *State) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	data, err := s.Marshal()
	if err != nil {
		return Entry{}, err
	}

	id := f.filename() + f.extension
	path := filepath.Join(f.dir, id)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Entry{}, errors.Wrapf(err, "could not write checkpoint %v",
			path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, errors.Wrap(err, "could not stat checkpoint")
	}
	return Entry{
		ID:        id,
		Timesteps: s.TimestepsTotal,
		Strategy:  strategyOf(s),
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// Load implements the Store interface
func (f *FileStore) Load(ctx context.Context, id string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(f.dir, id))
	if os.IsNotExist(err) {
		return nil, &CheckpointError{Op: "load", Err: errNotFound}
	} else if err != nil {
		return nil, errors.Wrapf(err, "could not read checkpoint %v", id)
	}
	return Unmarshal(data)
}

// Latest implements the Store interface
func (f *FileStore) Latest(ctx context.Context) (*State, error) {
	entries, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &CheckpointError{Op: "latest", Err: errNotFound}
	}
	return f.Load(ctx, entries[len(entries)-1].ID)
}

// List implements the Store interface. Only the file metadata is read,
// so the entries carry no timesteps or strategy.
func (f *FileStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read directory %v", f.dir)
	}

	var entries []Entry
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), f.extension) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "could not stat %v", file.Name())
		}
		entries = append(entries, Entry{
			ID:        file.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Close implements the Store interface
func (f *FileStore) Close() error {
	return nil
}
