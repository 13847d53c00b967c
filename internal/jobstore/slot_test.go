package jobstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/r2clabs/bulkstudy/internal/cache"
	"github.com/r2clabs/bulkstudy/internal/jobstore"
	"github.com/r2clabs/bulkstudy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slotContract exercises the behaviour every Slot implementation shares.
func slotContract(t *testing.T, slot jobstore.Slot) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh slot should be empty")

	require.NoError(t, slot.Save(ctx, []byte(`[1]`)))
	require.NoError(t, slot.Save(ctx, []byte(`[2]`)))

	got, ok, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[2]`, string(got))

	require.NoError(t, slot.Clear(ctx))
	_, ok, err = slot.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing twice is fine.
	require.NoError(t, slot.Clear(ctx))
}

func TestMemorySlot(t *testing.T) {
	slotContract(t, jobstore.NewMemorySlot())
}

func TestMemorySlot_CopiesData(t *testing.T) {
	slot := jobstore.NewMemorySlot()
	buf := []byte(`[1]`)
	require.NoError(t, slot.Save(context.Background(), buf))
	buf[1] = '9'

	got, _, err := slot.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))
}

func TestFileSlot(t *testing.T) {
	slot, err := jobstore.NewFileSlot(t.TempDir(), "bulkAnalysisJobs")
	require.NoError(t, err)
	slotContract(t, slot)
}

func TestFileSlot_CreatesDirAndPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	slot, err := jobstore.NewFileSlot(dir, "bulkAnalysisJobs")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "bulkAnalysisJobs.json"), slot.Path())
	require.NoError(t, slot.Save(context.Background(), []byte("[]")))

	data, err := os.ReadFile(slot.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileSlot_RejectsPathKeys(t *testing.T) {
	for _, key := range []string{"", "../escape", "a/b"} {
		_, err := jobstore.NewFileSlot(t.TempDir(), key)
		assert.Error(t, err, key)
	}
}

func TestFileSlot_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := jobstore.NewFileSlot(dir, "k")
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), []byte(`[]`)))

	second, err := jobstore.NewFileSlot(dir, "k")
	require.NoError(t, err)
	got, ok, err := second.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(got))
}

func TestFileSlot_MalformedContentReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("not json"), 0o644))

	slot, err := jobstore.NewFileSlot(dir, "k")
	require.NoError(t, err)
	assert.Empty(t, jobstore.New(slot).Load(context.Background()))
}

// fakeCache is an in-memory cache.Cache.
type fakeCache struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

func TestRedisSlot(t *testing.T) {
	slotContract(t, jobstore.NewRedisSlot(newFakeCache(), "bulkAnalysisJobs"))
}

func TestRedisSlot_KeyAndNoExpiry(t *testing.T) {
	c := newFakeCache()
	slot := jobstore.NewRedisSlot(c, "bulkAnalysisJobs")
	require.NoError(t, slot.Save(context.Background(), []byte("[]")))

	key := cache.JobSlotKey("bulkAnalysisJobs")
	assert.Contains(t, c.data, key)
	assert.Equal(t, time.Duration(0), c.ttls[key])
}

// fakeStore is an in-memory store.Store.
type fakeStore struct {
	slots map[string][]byte
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetSlot(_ context.Context, name string) ([]byte, error) {
	v, ok := f.slots[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) PutSlot(_ context.Context, name string, value []byte) error {
	f.slots[name] = value
	return nil
}

func (f *fakeStore) DeleteSlot(_ context.Context, name string) error {
	delete(f.slots, name)
	return nil
}

func TestPostgresSlot(t *testing.T) {
	slotContract(t, jobstore.NewPostgresSlot(&fakeStore{slots: map[string][]byte{}}, "bulkAnalysisJobs"))
}
