package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxcollect/internal/storage"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "recordings", "p1/t1/take.wav", []byte("wav-bytes"), "audio/wav"))

	got, err := store.Download(ctx, "recordings", "p1/t1/take.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("wav-bytes"), got)

	exists, err := store.Exists(ctx, "recordings", "p1/t1/take.wav")
	require.NoError(t, err)
	assert.True(t, exists)

	paths, err := store.List(ctx, "recordings", "p1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1/t1/take.wav"}, paths)

	require.NoError(t, store.Remove(ctx, "recordings", "p1/t1/take.wav"))
	_, err = store.Download(ctx, "recordings", "p1/t1/take.wav")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalStoreMissingObject(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Download(ctx, "recordings", "nope.wav")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Remove(ctx, "recordings", "nope.wav")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := store.Exists(ctx, "recordings", "nope.wav")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorePublicURLRoundTrips(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	url := store.PublicURL("recordings", "p1/t1/take.wav")
	bucket, path, err := storage.ParseURL(url)
	require.NoError(t, err)
	assert.Equal(t, "recordings", bucket)
	assert.Equal(t, "p1/t1/take.wav", path)
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		url    string
		bucket string
		path   string
		ok     bool
	}{
		{"local://store/recordings/p1/take.wav", "recordings", "p1/take.wav", true},
		{"https://my-bucket.s3.eu-west-1.amazonaws.com/p1/t1/take.wav", "my-bucket", "p1/t1/take.wav", true},
		{"mem://test/rec/a/b.wav", "rec", "a/b.wav", true},
		{"recordings", "", "", false},
		{"local://store/onlybucket", "", "", false},
	}
	for _, c := range cases {
		bucket, path, err := storage.ParseURL(c.url)
		if !c.ok {
			assert.Error(t, err, c.url)
			continue
		}
		require.NoError(t, err, c.url)
		assert.Equal(t, c.bucket, bucket, c.url)
		assert.Equal(t, c.path, path, c.url)
	}
}
