package recordstore_test

import (
	"testing"

	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportErr(t *testing.T) {
	r := recordstore.Report{Succeeded: []string{"a"}}
	assert.NoError(t, r.Err("InsertKeys"))

	r.Failed = []recordstore.KeyFailure{
		{Key: "b", Err: errors.Wrap(recordstore.ErrAlreadyExists, "in view")},
		{Key: "z", Err: errors.Wrap(recordstore.ErrNotFound, "in source")},
	}
	err := r.Err("InsertKeys")
	require.Error(t, err)
	assert.ErrorIs(t, err, recordstore.ErrAggregate)
	assert.Contains(t, err.Error(), "InsertKeys: 2 key(s) failed")
	assert.Contains(t, err.Error(), "b: in view: already exists")

	var agg *recordstore.AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, []string{"b"}, agg.KeysWith(recordstore.ErrAlreadyExists))
	assert.Equal(t, []string{"z"}, agg.KeysWith(recordstore.ErrNotFound))
	assert.Empty(t, agg.KeysWith(recordstore.ErrStorage))
}
