package persistence

import "os"

const (
	defaultFileMode os.FileMode = 0600
	defaultDirMode  os.FileMode = 0700
)

// Option is a type for functions that configure a FileRecordStore.
// These functions are intended to be used with Create and Open.
type Option func(s *FileRecordStore)

// WithFileMode returns an Option that sets the permission bits of record and
// control files written by the store.
//
// Example:
//
//	Create("images", "face images", WithFileMode(0640))
func WithFileMode(mode os.FileMode) Option {
	return func(s *FileRecordStore) {
		s.fileMode = mode
	}
}

// WithDirMode returns an Option that sets the permission bits of the store
// root directory created by Create.
func WithDirMode(mode os.FileMode) Option {
	return func(s *FileRecordStore) {
		s.dirMode = mode
	}
}
