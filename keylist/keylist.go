// Package keylist implements an ordered set of record keys persisted as a
// flat file, one key per line in insertion order.
package keylist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
)

const fileMode os.FileMode = 0600

// KeyList is an ordered set of keys. The zero value is an empty list.
type KeyList struct {
	keys  []string
	index map[string]struct{}
}

// New returns a KeyList holding keys in order. It fails with
// ErrAlreadyExists on a duplicate key.
func New(keys ...string) (*KeyList, error) {
	kl := &KeyList{}
	for _, k := range keys {
		if err := kl.Add(k); err != nil {
			return nil, err
		}
	}
	return kl, nil
}

// Contains reports whether key is in the list.
func (kl *KeyList) Contains(key string) bool {
	_, ok := kl.index[key]
	return ok
}

// Add appends key. It fails with ErrAlreadyExists if key is already present
// and with ErrParameter if key cannot be stored on a line of its own.
func (kl *KeyList) Add(key string) error {
	if key == "" || strings.ContainsAny(key, "\r\n") {
		return errors.Wrapf(recordstore.ErrParameter, "KeyList.Add %q", key)
	}
	if kl.Contains(key) {
		return errors.Wrapf(recordstore.ErrAlreadyExists, "KeyList.Add %s", key)
	}
	if kl.index == nil {
		kl.index = make(map[string]struct{})
	}
	kl.index[key] = struct{}{}
	kl.keys = append(kl.keys, key)
	return nil
}

// Remove deletes key. It fails with ErrNotFound if key is absent.
func (kl *KeyList) Remove(key string) error {
	if !kl.Contains(key) {
		return errors.Wrapf(recordstore.ErrNotFound, "KeyList.Remove %s", key)
	}
	delete(kl.index, key)
	for i, k := range kl.keys {
		if k == key {
			kl.keys = append(kl.keys[:i], kl.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Size returns the number of keys.
func (kl *KeyList) Size() int {
	return len(kl.keys)
}

// Keys returns a copy of the keys in insertion order.
func (kl *KeyList) Keys() []string {
	return append([]string(nil), kl.keys...)
}

// Load reads the KeyList stored at path. A missing or unreadable file, an
// empty line or a duplicate key is an ErrFile error; corrupt lists are never
// repaired silently.
func Load(path string) (*KeyList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(recordstore.ErrFile, "keylist.Load %s: %v", path, err)
	}
	defer f.Close()

	kl := &KeyList{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		key := scanner.Text()
		if kl.Contains(key) {
			return nil, errors.Wrapf(recordstore.ErrFile, "keylist.Load %s: duplicate key %q on line %d", path, key, line)
		}
		if err := kl.Add(key); err != nil {
			return nil, errors.Wrapf(recordstore.ErrFile, "keylist.Load %s line %d: %v", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(recordstore.ErrFile, "keylist.Load %s: %v", path, err)
	}
	return kl, nil
}

// Save replaces the file at path with the contents of kl. The previous
// contents stay in place if the write fails.
func Save(path string, kl *KeyList) error {
	var sb strings.Builder
	for _, k := range kl.keys {
		sb.WriteString(k)
		sb.WriteByte('\n')
	}
	if err := renameio.WriteFile(path, []byte(sb.String()), fileMode, renameio.WithTempDir(filepath.Dir(path))); err != nil {
		return errors.Wrapf(recordstore.ErrFile, "keylist.Save %s: %v", path, err)
	}
	return nil
}
