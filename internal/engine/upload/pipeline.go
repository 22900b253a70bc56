package upload

import (
	"context"
	"fmt"
	"log"
	"time"

	"voxcollect/internal/storage"
)

// Stages a single attempt walks through, in order. Result.Stage records how
// far the last attempt got.
const (
	StagePreUpload     = "pre-upload"
	StageUpload        = "upload"
	StageURLGeneration = "url-generation"
	StageComplete      = "complete"
)

// Pipeline uploads recording blobs with retry. Each retry is preceded by a
// linear backoff of attempt x 1s.
type Pipeline struct {
	Store  storage.Store
	Logger *log.Logger

	// ExtraAttempts is the retry count after the first attempt.
	ExtraAttempts int
	// Sleep is swappable in tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Result reports the outcome of an upload. URL is set only when Stage is
// StageComplete.
type Result struct {
	Stage string
	URL   string
	Err   error
}

// New returns a Pipeline with the default retry policy.
func New(store storage.Store, logger *log.Logger) *Pipeline {
	return &Pipeline{Store: store, Logger: logger, ExtraAttempts: 2, Sleep: time.Sleep}
}

// Upload runs the staged pipeline, retrying the whole sequence on failure at
// any stage. If a blob was written but a later stage failed on every attempt,
// it is deleted best effort before returning.
func (p *Pipeline) Upload(ctx context.Context, bucket, path string, blob []byte, contentType string) Result {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var res Result
	uploaded := false
	for attempt := 0; attempt <= p.ExtraAttempts; attempt++ {
		if attempt > 0 {
			if p.Logger != nil {
				p.Logger.Printf("upload retry %d for %s/%s after %s failure: %v", attempt, bucket, path, res.Stage, res.Err)
			}
			sleep(time.Duration(attempt) * time.Second)
		}
		res = p.attempt(ctx, bucket, path, blob, contentType)
		if res.Err == nil {
			return res
		}
		// A failure past the upload stage means the blob landed.
		if res.Stage == StageURLGeneration {
			uploaded = true
		}
	}

	if uploaded {
		if err := p.Store.Remove(ctx, bucket, path); err != nil && p.Logger != nil {
			p.Logger.Printf("could not delete partial blob %s/%s: %v", bucket, path, err)
		}
	}
	return res
}

func (p *Pipeline) attempt(ctx context.Context, bucket, path string, blob []byte, contentType string) Result {
	if bucket == "" || path == "" {
		return Result{Stage: StagePreUpload, Err: fmt.Errorf("bucket and path are required")}
	}
	if len(blob) == 0 {
		return Result{Stage: StagePreUpload, Err: fmt.Errorf("empty blob")}
	}

	if err := p.Store.Upload(ctx, bucket, path, blob, contentType); err != nil {
		return Result{Stage: StageUpload, Err: err}
	}

	url := p.Store.PublicURL(bucket, path)
	if url == "" {
		return Result{Stage: StageURLGeneration, Err: fmt.Errorf("no public URL for %s/%s", bucket, path)}
	}

	return Result{Stage: StageComplete, URL: url}
}
