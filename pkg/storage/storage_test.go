package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)

	require.NoError(t, store.Put(region, []byte("alice"), []byte("30")))

	value, ok, err := store.Get(region, []byte("alice"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("30"), value)
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	store := newTestStore(t)
	value, ok, err := store.Get(types.RegionID(1), []byte("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestGetMissingRegionReturnsFalse(t *testing.T) {
	store := newTestStore(t)
	value, ok, err := store.Get(types.RegionID(99), []byte("alice"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestPutOverwritesExistingValue(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)

	require.NoError(t, store.Put(region, []byte("alice"), []byte("30")))
	require.NoError(t, store.Put(region, []byte("alice"), []byte("31")))

	value, ok, err := store.Get(region, []byte("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("31"), value)
}

func TestDeleteRemovesKey(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)

	require.NoError(t, store.Put(region, []byte("alice"), []byte("30")))
	require.NoError(t, store.Delete(region, []byte("alice")))

	_, ok, err := store.Get(region, []byte("alice"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Delete(types.RegionID(1), []byte("nobody")))
}

func TestRegionsDoNotCollideOnSharedKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(types.RegionID(1), []byte("k"), []byte("region-one")))
	require.NoError(t, store.Put(types.RegionID(2), []byte("k"), []byte("region-two")))

	v1, _, err := store.Get(types.RegionID(1), []byte("k"))
	require.NoError(t, err)
	v2, _, err := store.Get(types.RegionID(2), []byte("k"))
	require.NoError(t, err)

	assert.Equal(t, []byte("region-one"), v1)
	assert.Equal(t, []byte("region-two"), v2)
}

func TestIterateVisitsEveryKeyInRegion(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)
	want := map[string]string{"alice": "30", "bob": "40"}
	for k, v := range want {
		require.NoError(t, store.Put(region, []byte(k), []byte(v)))
	}
	require.NoError(t, store.Put(types.RegionID(2), []byte("carol"), []byte("50")))

	got := map[string]string{}
	err := store.Iterate(region, func(k, v []byte) error {
		got[string(k)] = string(v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIterateStopsOnCallbackError(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)
	require.NoError(t, store.Put(region, []byte("alice"), []byte("30")))
	require.NoError(t, store.Put(region, []byte("bob"), []byte("40")))

	boom := assert.AnError
	calls := 0
	err := store.Iterate(region, func(k, v []byte) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIterateOnMissingRegionIsNoop(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	err := store.Iterate(types.RegionID(7), func(k, v []byte) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestDropRegionRemovesAllItsKeys(t *testing.T) {
	store := newTestStore(t)
	region := types.RegionID(1)
	require.NoError(t, store.Put(region, []byte("alice"), []byte("30")))
	require.NoError(t, store.Put(types.RegionID(2), []byte("bob"), []byte("40")))

	require.NoError(t, store.DropRegion(region))

	_, ok, err := store.Get(region, []byte("alice"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err := store.Get(types.RegionID(2), []byte("bob"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("40"), value)
}

func TestDropRegionOnAbsentRegionIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DropRegion(types.RegionID(123)))
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(types.RegionID(1), []byte("alice"), []byte("30")))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(types.RegionID(1), []byte("alice"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("30"), value)
}
