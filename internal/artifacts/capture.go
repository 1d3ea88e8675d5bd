package artifacts

import (
	"context"
	"time"

	"github.com/kuitang/machreg-e2e/internal/obs"
)

// Screenshotter is the part of the driver needed to capture a page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// captureTimeout bounds the screenshot and upload after a failure, whose
// own context may already be cancelled.
const captureTimeout = 30 * time.Second

// CaptureOnFailure uploads a screenshot when err is non-nil and returns err
// unchanged. Capture problems are logged, never returned. A nil store
// disables capture.
func CaptureOnFailure(ctx context.Context, store *Store, page Screenshotter, name string, err error) error {
	if err == nil || store == nil || page == nil {
		return err
	}
	runID := obs.RunIDFromContext(ctx)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	logger := obs.From(ctx).With("pkg", "artifacts", "name", name)
	png, shotErr := page.Screenshot(cctx)
	if shotErr != nil {
		logger.Warn("screenshot_failed", "error", shotErr.Error())
		return err
	}
	key, putErr := store.PutScreenshot(cctx, runID, name, png)
	if putErr != nil {
		logger.Warn("artifact_upload_failed", "error", putErr.Error())
		return err
	}
	logger.Info("artifact_uploaded", "bucket", store.BucketName(), "key", key, "bytes", len(png))
	return err
}
