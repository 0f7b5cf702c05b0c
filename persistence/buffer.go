package persistence

import (
	"sort"

	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type pendingOp int

const (
	insertOp pendingOp = iota + 1
	replaceOp
)

type pendingRecord struct {
	op   pendingOp
	data []byte
}

// Buffer stages inserts and replaces in memory in front of another
// RecordStore. Staged records are written to the underlying store by Flush,
// by Sync, or oldest first to make room once bufferSize records are staged.
// Reads, lengths and key listings see staged records as if they were stored.
//
// A staged record that cannot be written when it is evicted or synced is
// set aside: it is no longer visible through the Buffer, is retried by every
// Sync and is reported by Failed until it is written, staged again or
// removed.
type Buffer struct {
	store   recordstore.RecordStore
	size    uint
	pending map[string]*pendingRecord
	order   []string
	failed  map[string]*pendingRecord
}

var _ recordstore.RecordStore = (*Buffer)(nil)

// NewBuffer creates a new Buffer over store holding at most bufferSize
// staged records. A bufferSize of zero writes every record through.
func NewBuffer(store recordstore.RecordStore, bufferSize uint) (*Buffer, error) {
	if store == nil {
		return nil, errors.Wrap(recordstore.ErrParameter, "NewBuffer store cannot be nil")
	}
	return &Buffer{
		store:   store,
		size:    bufferSize,
		pending: make(map[string]*pendingRecord),
		failed:  make(map[string]*pendingRecord),
	}, nil
}

// Name returns the underlying store name.
func (b *Buffer) Name() string {
	return b.store.Name()
}

// Description returns the underlying store description.
func (b *Buffer) Description() string {
	return b.store.Description()
}

// ChangeDescription changes the underlying store description.
func (b *Buffer) ChangeDescription(description string) error {
	return b.store.ChangeDescription(description)
}

// Insert stages a new record.
func (b *Buffer) Insert(key string, data []byte) error {
	if err := recordstore.ValidateKey(key); err != nil {
		return errors.Wrap(err, "Buffer.Insert")
	}
	if _, ok := b.pending[key]; ok || b.store.Exists(key) {
		return errors.Wrapf(recordstore.ErrAlreadyExists, "Buffer.Insert %s", key)
	}
	return b.stageAndEvict(key, insertOp, data)
}

// Replace stages a new value for an existing record.
func (b *Buffer) Replace(key string, data []byte) error {
	if err := recordstore.ValidateKey(key); err != nil {
		return errors.Wrap(err, "Buffer.Replace")
	}
	if _, ok := b.pending[key]; !ok && !b.store.Exists(key) {
		return errors.Wrapf(recordstore.ErrNotFound, "Buffer.Replace %s", key)
	}
	return b.stageAndEvict(key, replaceOp, data)
}

// Remove deletes a record. A staged insert is dropped without touching the
// underlying store.
func (b *Buffer) Remove(key string) error {
	if err := recordstore.ValidateKey(key); err != nil {
		return errors.Wrap(err, "Buffer.Remove")
	}
	delete(b.failed, key)
	if rec, ok := b.pending[key]; ok {
		b.unstage(key)
		if rec.op == insertOp {
			return nil
		}
	}
	return b.store.Remove(key)
}

// Read returns a copy of a staged record, or reads it from the underlying store.
func (b *Buffer) Read(key string) ([]byte, error) {
	if rec, ok := b.pending[key]; ok {
		return append([]byte(nil), rec.data...), nil
	}
	return b.store.Read(key)
}

// Flush writes a staged record to the underlying store and flushes it there.
func (b *Buffer) Flush(key string) error {
	if err := recordstore.ValidateKey(key); err != nil {
		return errors.Wrap(err, "Buffer.Flush")
	}
	if _, ok := b.pending[key]; ok {
		if err := b.flushKey(key); err != nil {
			return err
		}
	}
	return b.store.Flush(key)
}

// Sync retries every set aside record and writes every staged record to
// the underlying store. Every record is attempted; the ones that failed are
// set aside and named in the returned *recordstore.AggregateError.
func (b *Buffer) Sync() error {
	var report recordstore.Report
	for _, key := range b.Failed() {
		err := b.write(key, b.failed[key])
		if err == nil {
			delete(b.failed, key)
		}
		report.Record(key, err)
	}
	for _, key := range append([]string(nil), b.order...) {
		err := b.flushKey(key)
		if err != nil {
			b.setAside(key, err)
		}
		report.Record(key, err)
	}
	return report.Err("Buffer.Sync")
}

// Close syncs the buffer.
func (b *Buffer) Close() error {
	return b.Sync()
}

// Failed returns the keys of the records set aside because they could not be
// written, in key order.
func (b *Buffer) Failed() []string {
	keys := make([]string, 0, len(b.failed))
	for key := range b.failed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Pending returns the number of staged records.
func (b *Buffer) Pending() int {
	return len(b.pending)
}

// Length returns the number of records including staged inserts.
func (b *Buffer) Length() uint64 {
	n := b.store.Length()
	for _, rec := range b.pending {
		if rec.op == insertOp {
			n++
		}
	}
	return n
}

// Exists reports whether key is staged or stored.
func (b *Buffer) Exists(key string) bool {
	if _, ok := b.pending[key]; ok {
		return true
	}
	return b.store.Exists(key)
}

// Size returns the length of a staged or stored record.
func (b *Buffer) Size(key string) (uint64, error) {
	if rec, ok := b.pending[key]; ok {
		return uint64(len(rec.data)), nil
	}
	return b.store.Size(key)
}

// Keys returns the stored keys followed by staged inserts.
func (b *Buffer) Keys() ([]string, error) {
	keys, err := b.store.Keys()
	if err != nil {
		return nil, errors.Wrap(err, "Buffer.Keys")
	}
	for _, key := range b.order {
		if b.pending[key].op == insertOp {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// stageAndEvict makes room in the buffer and then stages data under key.
// With no room to stage, as with a zero bufferSize, the record is written
// straight through and a failure leaves the buffer as it was.
func (b *Buffer) stageAndEvict(key string, op pendingOp, data []byte) error {
	copied := append([]byte(nil), data...)
	if rec, ok := b.pending[key]; ok {
		// a replace of a staged insert is still an insert for the store
		rec.data = copied
		return nil
	}

	b.evict()
	rec := &pendingRecord{op: op, data: copied}
	if uint(len(b.pending)) >= b.size {
		if err := b.write(key, rec); err != nil {
			return err
		}
		delete(b.failed, key)
		return nil
	}

	delete(b.failed, key)
	b.pending[key] = rec
	b.order = append(b.order, key)
	return nil
}

func (b *Buffer) unstage(key string) {
	delete(b.pending, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// evict writes the oldest staged records until there is room for one more.
// Records that cannot be written are set aside.
func (b *Buffer) evict() {
	for len(b.order) > 0 && uint(len(b.pending)) >= b.size {
		key := b.order[0]
		if err := b.flushKey(key); err != nil {
			b.setAside(key, err)
		}
	}
}

func (b *Buffer) setAside(key string, err error) {
	b.failed[key] = b.pending[key]
	b.unstage(key)
	log.Warn().Str("store", b.store.Name()).Str("key", key).Err(err).Msg("staged record set aside")
}

func (b *Buffer) flushKey(key string) error {
	if err := b.write(key, b.pending[key]); err != nil {
		return err
	}
	b.unstage(key)
	return nil
}

func (b *Buffer) write(key string, rec *pendingRecord) error {
	var err error
	switch rec.op {
	case insertOp:
		err = b.store.Insert(key, rec.data)
	case replaceOp:
		err = b.store.Replace(key, rec.data)
	}
	if err != nil {
		log.Error().Str("store", b.store.Name()).Str("key", key).Err(err).Msg("Buffer.write failed")
		return errors.Wrap(err, "Buffer.write")
	}
	return nil
}
