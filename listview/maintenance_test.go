package listview_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-recordstore/keylist"
	"github.com/jrsteele09/go-recordstore/listview"
	"github.com/jrsteele09/go-recordstore/persistence"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSource creates a file store holding a, b and c and returns its path.
func newSource(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source")
	s, err := persistence.Create(path, "source store")
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(k, []byte("value of "+k)))
	}
	return path
}

// newView constructs an empty view over a fresh source and returns both paths.
func newView(t *testing.T) (viewPath, sourcePath string) {
	t.Helper()
	dir := t.TempDir()
	sourcePath = newSource(t, dir)
	require.NoError(t, listview.Construct("view", dir, sourcePath))
	return filepath.Join(dir, "view"), sourcePath
}

func aggregate(t *testing.T, err error) *recordstore.AggregateError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, recordstore.ErrAggregate)
	var agg *recordstore.AggregateError
	require.True(t, errors.As(err, &agg))
	return agg
}

func TestConstruct(t *testing.T) {
	viewPath, sourcePath := newView(t)
	assert.True(t, listview.IsListView(viewPath))
	assert.False(t, listview.IsListView(sourcePath))

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, "view", v.Name())
	assert.Equal(t, "List view of source", v.Description())
	assert.Equal(t, uint64(0), v.Length())

	absSource, err := filepath.Abs(sourcePath)
	require.NoError(t, err)
	assert.Equal(t, absSource, v.SourcePath())

	entries, err := os.ReadDir(filepath.Dir(viewPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".view-"), "staging directory %s left behind", e.Name())
	}
}

func TestConstructWithDescription(t *testing.T) {
	dir := t.TempDir()
	sourcePath := newSource(t, dir)
	require.NoError(t, listview.Construct("view", dir, sourcePath, listview.WithDescription("probes only")))

	v, err := listview.Open(filepath.Join(dir, "view"))
	require.NoError(t, err)
	assert.Equal(t, "probes only", v.Description())
}

func TestConstructMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := listview.Construct("view", dir, filepath.Join(dir, "nothing"))
	assert.ErrorIs(t, err, recordstore.ErrNotFound)

	_, statErr := os.Stat(filepath.Join(dir, "view"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConstructExisting(t *testing.T) {
	viewPath, sourcePath := newView(t)
	err := listview.Construct("view", filepath.Dir(viewPath), sourcePath)
	assert.ErrorIs(t, err, recordstore.ErrAlreadyExists)
}

func TestConstructFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	sourcePath := newSource(t, dir)

	err := listview.Construct("view", filepath.Join(dir, "missing"), sourcePath)
	assert.ErrorIs(t, err, recordstore.ErrStorage)

	err = listview.Construct("view", dir, sourcePath, listview.WithDescription("two\nlines"))
	assert.ErrorIs(t, err, recordstore.ErrParameter)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"source"}, names)
}

func TestConstructInvalidName(t *testing.T) {
	dir := t.TempDir()
	sourcePath := newSource(t, dir)
	err := listview.Construct("a/b", dir, sourcePath)
	assert.ErrorIs(t, err, recordstore.ErrParameter)
}

func TestIsListViewOrdinaryPaths(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, listview.IsListView(dir))
	assert.False(t, listview.IsListView(filepath.Join(dir, "missing")))
	assert.False(t, listview.IsListView(newSource(t, dir)))
}

func TestInsertKeys(t *testing.T) {
	viewPath, _ := newView(t)

	report, err := listview.InsertKeys(viewPath, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Succeeded)
	assert.Empty(t, report.Failed)

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Length())
	data, err := v.Read("a")
	require.NoError(t, err)
	assert.Equal(t, "value of a", string(data))

	_, err = v.Read("c")
	assert.ErrorIs(t, err, recordstore.ErrNotFound, "c is in the source but not in the view")
}

func TestInsertKeysPartialFailure(t *testing.T) {
	viewPath, _ := newView(t)
	_, err := listview.InsertKeys(viewPath, []string{"a", "b"})
	require.NoError(t, err)

	report, err := listview.InsertKeys(viewPath, []string{"b", "z"})
	agg := aggregate(t, err)
	assert.Equal(t, []string{"b"}, agg.KeysWith(recordstore.ErrAlreadyExists))
	assert.Equal(t, []string{"z"}, agg.KeysWith(recordstore.ErrNotFound))
	assert.Empty(t, report.Succeeded)
	assert.Len(t, report.Failed, 2)

	_, kl, err := listview.ReadKeys(viewPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, kl.Keys())
}

func TestInsertKeysBestEffort(t *testing.T) {
	viewPath, _ := newView(t)

	report, err := listview.InsertKeys(viewPath, []string{"z", "c", ".bad", "a", "c"})
	agg := aggregate(t, err)
	assert.Equal(t, []string{"c", "a"}, report.Succeeded)
	assert.Equal(t, []string{"z"}, agg.KeysWith(recordstore.ErrNotFound))
	assert.Equal(t, []string{".bad"}, agg.KeysWith(recordstore.ErrParameter))
	assert.Equal(t, []string{"c"}, agg.KeysWith(recordstore.ErrAlreadyExists))

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Length())
	keys, err := v.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, keys)
}

func TestRemoveKeys(t *testing.T) {
	viewPath, _ := newView(t)
	_, err := listview.InsertKeys(viewPath, []string{"a", "b"})
	require.NoError(t, err)

	report, err := listview.RemoveKeys(viewPath, []string{"a", "x"})
	agg := aggregate(t, err)
	assert.Equal(t, []string{"a"}, report.Succeeded)
	assert.Equal(t, []string{"x"}, agg.KeysWith(recordstore.ErrNotFound))

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	keys, err := v.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
	assert.Equal(t, uint64(1), v.Length())

	report, err = listview.RemoveKeys(viewPath, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, report.Succeeded)
}

func TestRemoveKeysHandEditedKeyList(t *testing.T) {
	viewPath, _ := newView(t)
	require.NoError(t, os.WriteFile(filepath.Join(viewPath, listview.KeyListFileName), []byte("a\na/b\n"), 0600))
	require.NoError(t, listview.UpdateCount(viewPath, 2))

	report, err := listview.RemoveKeys(viewPath, []string{"a/b", "c/d"})
	agg := aggregate(t, err)
	assert.Equal(t, []string{"a/b"}, report.Succeeded)
	assert.Equal(t, []string{"c/d"}, agg.KeysWith(recordstore.ErrParameter))

	_, kl, err := listview.ReadKeys(viewPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, kl.Keys())
}

func TestRemoveKeysLeavesSourceAlone(t *testing.T) {
	viewPath, sourcePath := newView(t)
	_, err := listview.InsertKeys(viewPath, []string{"a"})
	require.NoError(t, err)
	_, err = listview.RemoveKeys(viewPath, []string{"a"})
	require.NoError(t, err)

	src, err := persistence.Open(sourcePath)
	require.NoError(t, err)
	assert.True(t, src.Exists("a"))
	assert.Equal(t, uint64(3), src.Length())
}

func TestBatchOnNonView(t *testing.T) {
	dir := t.TempDir()
	sourcePath := newSource(t, dir)

	_, err := listview.InsertKeys(sourcePath, []string{"a"})
	assert.ErrorIs(t, err, recordstore.ErrStorage)
	assert.NotErrorIs(t, err, recordstore.ErrAggregate)

	_, err = listview.RemoveKeys(filepath.Join(dir, "missing"), []string{"a"})
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
}

func TestInsertKeysCorruptKeyList(t *testing.T) {
	viewPath, _ := newView(t)
	require.NoError(t, os.WriteFile(filepath.Join(viewPath, listview.KeyListFileName), []byte("a\na\n"), 0600))

	_, err := listview.InsertKeys(viewPath, []string{"b"})
	assert.ErrorIs(t, err, recordstore.ErrFile)
}

func TestUpdateCount(t *testing.T) {
	viewPath, sourcePath := newView(t)

	// out of band edit of the key list
	kl, err := keylist.New("a", "b", "c")
	require.NoError(t, err)
	require.NoError(t, keylist.Save(filepath.Join(viewPath, listview.KeyListFileName), kl))

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.Length())

	require.NoError(t, listview.UpdateCount(viewPath, 3))
	require.NoError(t, listview.UpdateCount(viewPath, 3))
	v, err = listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v.Length())

	err = listview.UpdateCount(sourcePath, 1)
	assert.ErrorIs(t, err, recordstore.ErrStorage)
}

func TestWriteKeys(t *testing.T) {
	viewPath, sourcePath := newView(t)
	kl, err := keylist.New("c", "a")
	require.NoError(t, err)
	require.NoError(t, listview.WriteKeys(viewPath, kl))

	src, loaded, err := listview.ReadKeys(viewPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, loaded.Keys())
	assert.Equal(t, "source", src.Name())

	v, err := listview.Open(viewPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Length())

	assert.ErrorIs(t, listview.WriteKeys(sourcePath, kl), recordstore.ErrStorage)
}

func TestReadKeysMissingSource(t *testing.T) {
	viewPath, sourcePath := newView(t)
	require.NoError(t, os.RemoveAll(sourcePath))

	_, _, err := listview.ReadKeys(viewPath)
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
}
