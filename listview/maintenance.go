package listview

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-recordstore/keylist"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// The batch operations below are not atomic. Every key is attempted, the
// KeyList is written once at the end, and the returned Report names each key
// that succeeded or failed. A failure of some keys is reported as a
// *recordstore.AggregateError alongside the Report.

// IsListView reports whether path is the root of a list view. It returns
// false for anything else, including ordinary file stores.
func IsListView(path string) bool {
	return isRegularFile(keyListPath(path)) && isRegularFile(filepath.Join(path, MetadataFileName))
}

// Construct creates an empty view called name inside dir over the store at
// sourcePath. It fails with ErrNotFound if there is no store at sourcePath,
// ErrAlreadyExists if dir already holds name, and ErrStorage on filesystem
// failures. The view is assembled in a staging directory and renamed into
// place, so a failed Construct leaves nothing behind.
func Construct(name, dir, sourcePath string, options ...Option) error {
	c := newConfig(options)
	if err := recordstore.ValidateKey(name); err != nil {
		return errors.Wrap(err, "listview.Construct view name")
	}

	src, err := c.opener(sourcePath)
	if err != nil {
		return errors.Wrapf(err, "listview.Construct source %s", sourcePath)
	}
	absSource, err := filepath.Abs(sourcePath)
	if err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "listview.Construct filepath.Abs: %v", err)
	}

	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); err == nil {
		return errors.Wrapf(recordstore.ErrAlreadyExists, "listview.Construct %s", target)
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(recordstore.ErrStorage, "listview.Construct os.Lstat: %v", err)
	}

	staging := filepath.Join(dir, "."+name+"-"+uuid.NewString())
	if err := os.Mkdir(staging, dirMode); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "listview.Construct os.Mkdir: %v", err)
	}
	done := false
	defer func() {
		if !done {
			_ = os.RemoveAll(staging)
		}
	}()

	description := c.description
	if description == "" {
		description = "List view of " + src.Name()
	}
	if err := recordstore.WriteControl(staging, recordstore.ControlMetadata{Name: name, Description: description}, fileMode); err != nil {
		return errors.Wrap(err, "listview.Construct")
	}
	if err := keylist.Save(keyListPath(staging), &keylist.KeyList{}); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "listview.Construct: %v", err)
	}
	if err := writeMetadata(staging, metadata{Source: absSource}); err != nil {
		return errors.Wrap(err, "listview.Construct")
	}
	if err := os.Rename(staging, target); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "listview.Construct os.Rename: %v", err)
	}
	done = true

	log.Info().Str("view", target).Str("source", absSource).Msg("constructed list view")
	return nil
}

// UpdateCount overwrites the persisted count of the view at path. Use it
// after editing a KeyList by other means than InsertKeys and RemoveKeys.
func UpdateCount(path string, count uint64) error {
	if !IsListView(path) {
		return errors.Wrapf(recordstore.ErrStorage, "listview.UpdateCount %s is not a list view", path)
	}
	md, err := readMetadata(path)
	if err != nil {
		return errors.Wrap(err, "listview.UpdateCount")
	}
	md.Count = count
	if err := writeMetadata(path, md); err != nil {
		return errors.Wrap(err, "listview.UpdateCount")
	}
	return nil
}

// ReadKeys opens the view at path and returns its opened source store and
// its KeyList. KeyList problems are ErrFile errors; failures to open either
// store are returned as they are.
func ReadKeys(path string, options ...Option) (recordstore.RecordStore, *keylist.KeyList, error) {
	v, err := Open(path, options...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listview.ReadKeys")
	}
	src, err := v.Source()
	if err != nil {
		return nil, nil, errors.Wrap(err, "listview.ReadKeys")
	}
	return src, v.keys, nil
}

// WriteKeys replaces the KeyList of the view at path and sets its count to
// the size of keys.
func WriteKeys(path string, keys *keylist.KeyList) error {
	if !IsListView(path) {
		return errors.Wrapf(recordstore.ErrStorage, "listview.WriteKeys %s is not a list view", path)
	}
	if err := keylist.Save(keyListPath(path), keys); err != nil {
		return errors.Wrap(err, "listview.WriteKeys")
	}
	return UpdateCount(path, uint64(keys.Size()))
}

// InsertKeys adds keys to the view at path. A key fails with ErrParameter if
// it is malformed, ErrNotFound if the source store does not hold it, and
// ErrAlreadyExists if the view already does. Every other key is inserted.
func InsertKeys(path string, keys []string, options ...Option) (recordstore.Report, error) {
	const op = "listview.InsertKeys"
	src, kl, err := ReadKeys(path, options...)
	if err != nil {
		return recordstore.Report{}, errors.Wrap(err, op)
	}

	var report recordstore.Report
	for _, key := range keys {
		var keyErr error
		switch {
		case !recordstore.KeyValid(key):
			keyErr = recordstore.ValidateKey(key)
		case !src.Exists(key):
			keyErr = errors.Wrap(recordstore.ErrNotFound, "not in source store")
		default:
			keyErr = kl.Add(key)
		}
		report.Record(key, keyErr)
	}
	return finishBatch(op, path, kl, report)
}

// RemoveKeys removes keys from the view at path. A key fails with
// ErrNotFound if the view does not hold it, or ErrParameter if it is also
// malformed. A malformed key placed in the KeyList by hand is still removed.
// Every other key is removed.
func RemoveKeys(path string, keys []string, options ...Option) (recordstore.Report, error) {
	const op = "listview.RemoveKeys"
	v, err := Open(path, options...)
	if err != nil {
		return recordstore.Report{}, errors.Wrap(err, op)
	}

	var report recordstore.Report
	for _, key := range keys {
		keyErr := v.keys.Remove(key)
		if keyErr != nil {
			if err := recordstore.ValidateKey(key); err != nil {
				keyErr = err
			}
		}
		report.Record(key, keyErr)
	}
	return finishBatch(op, path, v.keys, report)
}

// finishBatch persists the KeyList of a batch that changed it. If the
// KeyList cannot be written, no key succeeded and every attempted change is
// reported as failed with the write error.
func finishBatch(op, path string, kl *keylist.KeyList, report recordstore.Report) (recordstore.Report, error) {
	if len(report.Succeeded) > 0 {
		if err := keylist.Save(keyListPath(path), kl); err != nil {
			for _, key := range report.Succeeded {
				report.Failed = append(report.Failed, recordstore.KeyFailure{Key: key, Err: err})
			}
			report.Succeeded = nil
			return report, report.Err(op)
		}
		if err := UpdateCount(path, uint64(kl.Size())); err != nil {
			log.Error().Str("view", path).Err(err).Msg("key list written but count not updated")
			return report, errors.Wrapf(err, "%s count out of date, call UpdateCount", op)
		}
	}

	if len(report.Failed) > 0 {
		log.Warn().Str("view", path).Int("succeeded", len(report.Succeeded)).Int("failed", len(report.Failed)).
			Msg(op + " partially failed")
	}
	return report, report.Err(op)
}

func keyListPath(dir string) string {
	return filepath.Join(dir, KeyListFileName)
}

func isRegularFile(path string) bool {
	st, err := os.Lstat(path)
	return err == nil && st.Mode().IsRegular()
}
