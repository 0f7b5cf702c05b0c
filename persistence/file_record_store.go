package persistence

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileRecordStore persists records to a file system.
// The store is a directory and every record is a file within it, named by
// its key. The store name and description live in a reserved control file.
//
// The record count is derived from a directory scan at open and maintained
// in memory afterwards, so changes made to the directory behind the store's
// back are only noticed when it is opened again.
type FileRecordStore struct {
	root        string
	name        string
	description string
	count       uint64
	fileMode    os.FileMode
	dirMode     os.FileMode

	// write transfers a record into its temporary file.
	write func(w io.Writer, data []byte) (int, error)
}

var _ recordstore.RecordStore = (*FileRecordStore)(nil)

func newFileRecordStore(path string, options []Option) *FileRecordStore {
	s := &FileRecordStore{
		root:     path,
		fileMode: defaultFileMode,
		dirMode:  defaultDirMode,
		write: func(w io.Writer, data []byte) (int, error) {
			return w.Write(data)
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Create makes a new, empty store rooted at path. The store is named after
// the last element of path. It fails with ErrAlreadyExists if anything
// already exists at path.
func Create(path, description string, options ...Option) (*FileRecordStore, error) {
	s := newFileRecordStore(path, options)
	md := recordstore.ControlMetadata{Name: filepath.Base(filepath.Clean(path)), Description: description}
	if err := md.Validate(); err != nil {
		return nil, errors.Wrap(err, "persistence.Create")
	}

	if _, err := os.Lstat(path); err == nil {
		return nil, errors.Wrapf(recordstore.ErrAlreadyExists, "persistence.Create %s", path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(recordstore.ErrStorage, "persistence.Create os.Lstat: %v", err)
	}

	if err := os.Mkdir(path, s.dirMode); err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(recordstore.ErrAlreadyExists, "persistence.Create %s", path)
		}
		return nil, errors.Wrapf(recordstore.ErrStorage, "persistence.Create os.Mkdir: %v", err)
	}
	if err := recordstore.WriteControl(path, md, s.fileMode); err != nil {
		_ = os.RemoveAll(path)
		return nil, errors.Wrap(err, "persistence.Create")
	}

	s.name = md.Name
	s.description = md.Description
	log.Info().Str("store", path).Msg("created record store")
	return s, nil
}

// Open opens the existing store rooted at path. It fails with ErrNotFound if
// there is nothing at path and with ErrStorage if the control file is
// missing or corrupt.
func Open(path string, options ...Option) (*FileRecordStore, error) {
	s := newFileRecordStore(path, options)

	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(recordstore.ErrNotFound, "persistence.Open %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(recordstore.ErrStorage, "persistence.Open os.Stat: %v", err)
	}
	if !st.IsDir() {
		return nil, errors.Wrapf(recordstore.ErrStorage, "persistence.Open %s is not a directory", path)
	}

	md, err := recordstore.ReadControl(path)
	if err != nil {
		return nil, errors.Wrap(err, "persistence.Open")
	}
	s.name = md.Name
	s.description = md.Description

	keys, err := s.Keys()
	if err != nil {
		return nil, errors.Wrap(err, "persistence.Open")
	}
	s.count = uint64(len(keys))

	log.Info().Str("store", path).Uint64("records", s.count).Msg("opened record store")
	return s, nil
}

// Path returns the root directory of the store.
func (s *FileRecordStore) Path() string {
	return s.root
}

// Name returns the store name.
func (s *FileRecordStore) Name() string {
	return s.name
}

// Description returns the store description.
func (s *FileRecordStore) Description() string {
	return s.description
}

// ChangeDescription rewrites the control file with a new description.
func (s *FileRecordStore) ChangeDescription(description string) error {
	md := recordstore.ControlMetadata{Name: s.name, Description: description}
	if err := recordstore.WriteControl(s.root, md, s.fileMode); err != nil {
		return errors.Wrap(err, "FileRecordStore.ChangeDescription")
	}
	s.description = description
	return nil
}

// Insert writes a new record.
func (s *FileRecordStore) Insert(key string, data []byte) error {
	path, err := recordstore.CanonicalPath(s.root, key)
	if err != nil {
		return errors.Wrap(err, "FileRecordStore.Insert")
	}
	exists, err := s.probe(path)
	if err != nil {
		return errors.Wrapf(err, "FileRecordStore.Insert %s", key)
	}
	if exists {
		return errors.Wrapf(recordstore.ErrAlreadyExists, "FileRecordStore.Insert %s", key)
	}

	if err := s.writeRecord(path, data); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Insert %s: %v", key, err)
	}
	s.count++
	log.Debug().Str("store", s.name).Str("key", key).Int("bytes", len(data)).Msg("inserted record")
	return nil
}

// Replace overwrites an existing record.
func (s *FileRecordStore) Replace(key string, data []byte) error {
	path, err := s.existingPath("FileRecordStore.Replace", key)
	if err != nil {
		return err
	}
	if err := s.writeRecord(path, data); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Replace %s: %v", key, err)
	}
	log.Debug().Str("store", s.name).Str("key", key).Int("bytes", len(data)).Msg("replaced record")
	return nil
}

// Remove deletes a record.
func (s *FileRecordStore) Remove(key string) error {
	path, err := s.existingPath("FileRecordStore.Remove", key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Remove %s: %v", key, err)
	}
	if s.count > 0 {
		s.count--
	}
	log.Debug().Str("store", s.name).Str("key", key).Msg("removed record")
	return nil
}

// Read returns a newly allocated copy of a record.
func (s *FileRecordStore) Read(key string) ([]byte, error) {
	path, err := s.existingPath("FileRecordStore.Read", key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Read %s: %v", key, err)
	}
	return data, nil
}

// Flush syncs a record file to stable storage. Records are never buffered
// in memory, so this only guards against operating system write caching.
func (s *FileRecordStore) Flush(key string) error {
	path, err := s.existingPath("FileRecordStore.Flush", key)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Flush %s: %v", key, err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Flush %s: %v", key, err)
	}
	return nil
}

// Length returns the number of records.
func (s *FileRecordStore) Length() uint64 {
	return s.count
}

// Exists reports whether key names a record.
func (s *FileRecordStore) Exists(key string) bool {
	path, err := recordstore.CanonicalPath(s.root, key)
	if err != nil {
		return false
	}
	exists, err := s.probe(path)
	return err == nil && exists
}

// Size returns the length of a record without reading it.
func (s *FileRecordStore) Size(key string) (uint64, error) {
	path, err := s.existingPath("FileRecordStore.Size", key)
	if err != nil {
		return 0, err
	}
	st, err := os.Lstat(path)
	if err != nil {
		return 0, errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Size %s: %v", key, err)
	}
	return uint64(st.Size()), nil
}

// Keys scans the store directory and returns every record key.
func (s *FileRecordStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrapf(recordstore.ErrStorage, "FileRecordStore.Keys: %v", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			if name != recordstore.ControlFileName {
				log.Warn().Str("store", s.root).Str("file", name).Msg("leftover temporary file in store")
			}
			continue
		}
		if !e.Type().IsRegular() || !recordstore.KeyValid(name) {
			continue
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// existingPath validates key and returns its path, failing with ErrNotFound
// if no record exists there.
func (s *FileRecordStore) existingPath(op, key string) (string, error) {
	path, err := recordstore.CanonicalPath(s.root, key)
	if err != nil {
		return "", errors.Wrap(err, op)
	}
	exists, err := s.probe(path)
	if err != nil {
		return "", errors.Wrapf(err, "%s %s", op, key)
	}
	if !exists {
		return "", errors.Wrapf(recordstore.ErrNotFound, "%s %s", op, key)
	}
	return path, nil
}

// probe stats path. Anything other than a regular file at a record path is
// corruption.
func (s *FileRecordStore) probe(path string) (bool, error) {
	st, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(recordstore.ErrStorage, "os.Lstat: %v", err)
	}
	if !st.Mode().IsRegular() {
		return false, errors.Wrapf(recordstore.ErrStorage, "%s is not a regular file", path)
	}
	return true, nil
}

// writeRecord replaces path with data through a hidden temporary file in
// the store directory, so a failed or short write never leaves a partial
// record at path.
func (s *FileRecordStore) writeRecord(path string, data []byte) error {
	t, err := renameio.NewPendingFile(path, renameio.WithTempDir(s.root), renameio.WithPermissions(s.fileMode))
	if err != nil {
		return err
	}
	defer t.Cleanup()

	n, err := s.write(t, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return t.CloseAtomicallyReplace()
}
