package recordstore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// KeyFailure records why a single key of a batch could not be processed.
type KeyFailure struct {
	Key string
	Err error
}

// Report is the outcome of a best-effort batch operation.
type Report struct {
	Succeeded []string
	Failed    []KeyFailure
}

// Record adds key to Succeeded when err is nil and to Failed otherwise.
func (r *Report) Record(key string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, KeyFailure{Key: key, Err: err})
		return
	}
	r.Succeeded = append(r.Succeeded, key)
}

// Err returns nil when every key succeeded, otherwise an *AggregateError
// naming each failed key.
func (r Report) Err(op string) error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &AggregateError{Op: op, Failures: r.Failed}
}

// AggregateError is returned by batch operations that completed partially.
type AggregateError struct {
	Op       string
	Failures []KeyFailure
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
	return fmt.Sprintf("%s: %d key(s) failed: %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
}

// Is matches ErrAggregate.
func (e *AggregateError) Is(target error) bool {
	return target == ErrAggregate
}

// KeysWith returns the failed keys whose error matches kind.
func (e *AggregateError) KeysWith(kind error) []string {
	var keys []string
	for _, f := range e.Failures {
		if errors.Is(f.Err, kind) {
			keys = append(keys, f.Key)
		}
	}
	return keys
}
