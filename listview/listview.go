// Package listview implements a derived record store exposing a chosen
// subset of another store's keys without copying its data, together with the
// maintenance operations that keep the subset consistent with the source.
//
// A view is a directory holding a control file, a KeyList and a small YAML
// metadata record with the path of the source store and the last known
// count. Records are always read from the source, which is looked up by path
// on each read; the view itself cannot be written through the RecordStore
// interface.
//
// InsertKeys and RemoveKeys write the KeyList once, after every key of the
// batch has been attempted. A batch interrupted by a crash therefore makes
// no progress at all: the KeyList on disk is the one from before the batch.
package listview

import (
	"os"

	"github.com/jrsteele09/go-recordstore/keylist"
	"github.com/jrsteele09/go-recordstore/persistence"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ListView is a read-only RecordStore whose keys are the contents of a
// KeyList and whose records are read from a source store.
type ListView struct {
	root        string
	name        string
	description string
	sourcePath  string
	count       uint64
	keys        *keylist.KeyList
	opener      Opener
}

var _ recordstore.RecordStore = (*ListView)(nil)

// Open opens the view rooted at path. The source store is not opened until
// a record is needed.
func Open(path string, options ...Option) (*ListView, error) {
	c := newConfig(options)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(recordstore.ErrNotFound, "listview.Open %s", path)
	}
	if !IsListView(path) {
		return nil, errors.Wrapf(recordstore.ErrStorage, "listview.Open %s is not a list view", path)
	}

	control, err := recordstore.ReadControl(path)
	if err != nil {
		return nil, errors.Wrap(err, "listview.Open")
	}
	md, err := readMetadata(path)
	if err != nil {
		return nil, errors.Wrap(err, "listview.Open")
	}
	keys, err := keylist.Load(keyListPath(path))
	if err != nil {
		return nil, errors.Wrap(err, "listview.Open")
	}
	if uint64(keys.Size()) != md.Count {
		log.Warn().Str("view", path).Uint64("count", md.Count).Int("keys", keys.Size()).
			Msg("list view count differs from its key list")
	}

	return &ListView{
		root:        path,
		name:        control.Name,
		description: control.Description,
		sourcePath:  md.Source,
		count:       md.Count,
		keys:        keys,
		opener:      c.opener,
	}, nil
}

// OpenStore opens whatever store is rooted at path: a ListView if the path
// holds one, otherwise a FileRecordStore.
func OpenStore(path string) (recordstore.RecordStore, error) {
	if IsListView(path) {
		return Open(path)
	}
	return persistence.Open(path)
}

// Path returns the root directory of the view.
func (v *ListView) Path() string {
	return v.root
}

// SourcePath returns the path of the source store.
func (v *ListView) SourcePath() string {
	return v.sourcePath
}

// Source looks up the source store by its path. The view holds no handle
// to it, so every record lookup sees the source as it is on disk, including
// the current keys of a source that is itself a view.
func (v *ListView) Source() (recordstore.RecordStore, error) {
	src, err := v.opener(v.sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "ListView.Source %s", v.sourcePath)
	}
	return src, nil
}

// Name returns the view name.
func (v *ListView) Name() string {
	return v.name
}

// Description returns the view description.
func (v *ListView) Description() string {
	return v.description
}

// ChangeDescription rewrites the view's control file.
func (v *ListView) ChangeDescription(description string) error {
	md := recordstore.ControlMetadata{Name: v.name, Description: description}
	if err := recordstore.WriteControl(v.root, md, fileMode); err != nil {
		return errors.Wrap(err, "ListView.ChangeDescription")
	}
	v.description = description
	return nil
}

// Insert is not supported; use InsertKeys.
func (v *ListView) Insert(key string, _ []byte) error {
	return errors.Wrapf(recordstore.ErrUnsupported, "ListView.Insert %s", key)
}

// Replace is not supported.
func (v *ListView) Replace(key string, _ []byte) error {
	return errors.Wrapf(recordstore.ErrUnsupported, "ListView.Replace %s", key)
}

// Remove is not supported; use RemoveKeys.
func (v *ListView) Remove(key string) error {
	return errors.Wrapf(recordstore.ErrUnsupported, "ListView.Remove %s", key)
}

// Read returns the source's record for a key in the view.
func (v *ListView) Read(key string) ([]byte, error) {
	src, err := v.memberSource("ListView.Read", key)
	if err != nil {
		return nil, err
	}
	return src.Read(key)
}

// Size returns the length of the source's record for a key in the view.
func (v *ListView) Size(key string) (uint64, error) {
	src, err := v.memberSource("ListView.Size", key)
	if err != nil {
		return 0, err
	}
	return src.Size(key)
}

// Flush checks that key is in the view. Views hold no data of their own, so
// there is nothing to write.
func (v *ListView) Flush(key string) error {
	return v.checkMember("ListView.Flush", key)
}

// Length returns the persisted count of the view.
func (v *ListView) Length() uint64 {
	return v.count
}

// Exists reports whether key is in the view.
func (v *ListView) Exists(key string) bool {
	return v.keys.Contains(key)
}

// Keys returns the view's keys in KeyList order.
func (v *ListView) Keys() ([]string, error) {
	return v.keys.Keys(), nil
}

func (v *ListView) checkMember(op, key string) error {
	if err := recordstore.ValidateKey(key); err != nil {
		return errors.Wrap(err, op)
	}
	if !v.keys.Contains(key) {
		return errors.Wrapf(recordstore.ErrNotFound, "%s %s", op, key)
	}
	return nil
}

func (v *ListView) memberSource(op, key string) (recordstore.RecordStore, error) {
	if err := v.checkMember(op, key); err != nil {
		return nil, err
	}
	src, err := v.Source()
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return src, nil
}
