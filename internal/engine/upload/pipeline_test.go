package upload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxcollect/internal/engine/upload"
	"voxcollect/internal/storage"
)

// flakyStore fails the first failures uploads, then succeeds.
type flakyStore struct {
	failures int
	uploads  int
	removes  int
	noURL    bool
}

func (s *flakyStore) Upload(context.Context, string, string, []byte, string) error {
	s.uploads++
	if s.uploads <= s.failures {
		return errors.New("transient write error")
	}
	return nil
}

func (s *flakyStore) Download(context.Context, string, string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func (s *flakyStore) Remove(context.Context, string, string) error {
	s.removes++
	return nil
}

func (s *flakyStore) List(context.Context, string, string) ([]string, error) { return nil, nil }

func (s *flakyStore) Exists(context.Context, string, string) (bool, error) { return false, nil }

func (s *flakyStore) PublicURL(bucket, path string) string {
	if s.noURL {
		return ""
	}
	return "mem://test/" + bucket + "/" + path
}

func (s *flakyStore) SignedURL(_ context.Context, bucket, path string, _ time.Duration) (string, error) {
	return s.PublicURL(bucket, path), nil
}

func newPipeline(store storage.Store) (*upload.Pipeline, *[]time.Duration) {
	var sleeps []time.Duration
	p := upload.New(store, nil)
	p.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return p, &sleeps
}

func TestUploadFirstTry(t *testing.T) {
	store := &flakyStore{}
	p, sleeps := newPipeline(store)

	res := p.Upload(context.Background(), "rec", "a/b.wav", []byte("x"), "audio/wav")
	require.NoError(t, res.Err)
	assert.Equal(t, upload.StageComplete, res.Stage)
	assert.Equal(t, "mem://test/rec/a/b.wav", res.URL)
	assert.Empty(t, *sleeps)
}

func TestUploadRetriesWithLinearBackoff(t *testing.T) {
	store := &flakyStore{failures: 2}
	p, sleeps := newPipeline(store)

	res := p.Upload(context.Background(), "rec", "a/b.wav", []byte("x"), "audio/wav")
	require.NoError(t, res.Err)
	assert.Equal(t, 3, store.uploads)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestUploadExhaustsRetries(t *testing.T) {
	store := &flakyStore{failures: 10}
	p, _ := newPipeline(store)

	res := p.Upload(context.Background(), "rec", "a/b.wav", []byte("x"), "audio/wav")
	require.Error(t, res.Err)
	assert.Equal(t, upload.StageUpload, res.Stage)
	assert.Equal(t, 3, store.uploads)
	assert.Zero(t, store.removes, "nothing was written, nothing to clean up")
}

func TestUploadCleansPartialBlobOnLateFailure(t *testing.T) {
	store := &flakyStore{noURL: true}
	p, _ := newPipeline(store)

	res := p.Upload(context.Background(), "rec", "a/b.wav", []byte("x"), "audio/wav")
	require.Error(t, res.Err)
	assert.Equal(t, upload.StageURLGeneration, res.Stage)
	assert.Equal(t, 1, store.removes, "written blob must be deleted best effort")
}

func TestUploadRejectsEmptyInput(t *testing.T) {
	store := &flakyStore{}
	p, _ := newPipeline(store)

	res := p.Upload(context.Background(), "rec", "a/b.wav", nil, "audio/wav")
	require.Error(t, res.Err)
	assert.Equal(t, upload.StagePreUpload, res.Stage)
	assert.Zero(t, store.uploads)

	res = p.Upload(context.Background(), "", "a/b.wav", []byte("x"), "audio/wav")
	require.Error(t, res.Err)
	assert.Equal(t, upload.StagePreUpload, res.Stage)
}
