// Package recordstore defines the contract shared by every record store
// backend, along with the key rules, error kinds and control metadata that
// backends have in common.
package recordstore

// RecordStore is a key-addressed collection of opaque byte records.
//
// Insert: Adds a record under a key that is not yet present.
//
// Replace: Overwrites the record of a key that is present.
//
// Remove: Deletes a present record.
//
// Read: Returns a copy of a present record.
//
// Flush: Makes any buffered state for a present record durable.
//
// Derived backends that do not own their data fail Insert, Replace and
// Remove with ErrUnsupported.
type RecordStore interface {
	// Name returns the store name recorded at creation.
	Name() string

	// Description returns the free text description of the store.
	Description() string

	// ChangeDescription replaces the stored description.
	ChangeDescription(description string) error

	// Insert stores data under key. It fails with ErrAlreadyExists if key is present.
	Insert(key string, data []byte) error

	// Remove deletes the record under key. It fails with ErrNotFound if key is absent.
	Remove(key string) error

	// Read returns the bytes stored under key. It fails with ErrNotFound if key is absent.
	Read(key string) ([]byte, error)

	// Replace overwrites the record under key. It fails with ErrNotFound if key is absent.
	Replace(key string, data []byte) error

	// Flush forces the record under key to durable storage.
	// It fails with ErrNotFound if key is absent.
	Flush(key string) error

	// Length returns the number of records.
	Length() uint64

	// Exists reports whether a record is stored under key.
	Exists(key string) bool

	// Size returns the length in bytes of the record under key.
	Size(key string) (uint64, error)

	// Keys returns every key in the store.
	Keys() ([]string, error)
}
