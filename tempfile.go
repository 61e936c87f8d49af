package attachcrypto

import (
	"errors"
	"io"
	"os"
)

// withGuardedOutput implements the temp-file guard (C6): it creates relPath
// on storage, opens a write handle, runs fn with it, and on any error
// closes the handle (if still open) and unlinks relPath, swallowing a
// not-exist error on cleanup. An unlink failure for any other reason is
// logged rather than masking the original error. Grounded on the
// teacher's create/open/close sequencing in its OpenFile and flush paths.
func withGuardedOutput(storage Storage, logger Logger, relPath string, fn func(w io.Writer) error) (err error) {
	w, err := storage.CreateForWrite(relPath)
	if err != nil {
		return newIOError("open", relPath, err)
	}

	defer func() {
		if err == nil {
			return
		}
		_ = w.Close()
		if rmErr := storage.Remove(relPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logPipelineError(logger, "unlink", relPath, newIOError("unlink", relPath, rmErr))
		}
	}()

	if err = fn(w); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return newIOError("write", relPath, err)
	}
	return nil
}
