package media

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/yoockh/sagecreek/internal/utils"
)

// TempPrefix marks every staged upload so the janitor only touches our files.
const TempPrefix = "sagecreek-upload-"

type TempFile struct {
	Path string
	Size int64

	once sync.Once
	err  error
}

// Stage copies r into a fresh temp file under dir. Reading more than maxBytes
// removes the partial file and fails with TOO_LARGE. maxBytes <= 0 means no limit.
func Stage(dir, ext string, r io.Reader, maxBytes int64) (*TempFile, error) {
	const op = "media.Stage"

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to prepare temp dir", err)
	}

	f, err := os.CreateTemp(dir, TempPrefix+"*"+ext)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create temp file", err)
	}
	tf := &TempFile{Path: f.Name()}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = tf.Remove()
		return nil, utils.E(utils.CodeInvalidArgument, op, "failed to read uploaded video", copyErr)
	case closeErr != nil:
		_ = tf.Remove()
		return nil, utils.E(utils.CodeInternal, op, "failed to write temp file", closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = tf.Remove()
		return nil, utils.E(utils.CodeTooLarge, op, "video exceeds the upload limit", nil)
	case n == 0:
		_ = tf.Remove()
		return nil, utils.E(utils.CodeInvalidArgument, op, "uploaded video is empty", nil)
	}

	tf.Size = n
	return tf, nil
}

// Remove deletes the file once; later calls return the first result.
func (t *TempFile) Remove() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = err
		}
	})
	return t.err
}
