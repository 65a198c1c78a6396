// Package upload stores lesson and profile images on an external host and
// returns their public URL.
package upload

import (
	"context"
	"errors"
	"io"
)

var ErrUploadFailed = errors.New("image upload failed")

// Uploader puts one image somewhere publicly reachable.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

// MaxImageBytes bounds accepted image uploads.
const MaxImageBytes = 8 << 20
