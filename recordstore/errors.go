package recordstore

import "github.com/pkg/errors"

// Error kinds returned by record stores. Errors are wrapped with context, so
// test for a kind with errors.Is.
var (
	// ErrNotFound returned when a key or store is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists returned when a key or store is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrParameter returned for a malformed key or argument.
	ErrParameter = errors.New("invalid parameter")

	// ErrStorage returned when the underlying filesystem fails or a store's
	// persisted state is corrupt.
	ErrStorage = errors.New("storage error")

	// ErrFile returned for I/O failures on auxiliary artifacts such as key lists.
	ErrFile = errors.New("file error")

	// ErrUnsupported returned by derived stores for operations they cannot perform.
	ErrUnsupported = errors.New("operation not supported on derived view")

	// ErrAggregate matches an *AggregateError.
	ErrAggregate = errors.New("batch partially failed")
)
