package docvault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/absfs/absfs"
)

// SecureErase overwrites the existing contents of name with random bytes,
// bufSize bytes at a time, syncs, and then removes the file. A missing file
// is not an error. Failures are reported as *IOError; a partial overwrite is
// possible when one occurs.
func SecureErase(fs absfs.FileSystem, name string, bufSize int) error {
	if err := ValidateFilePath(name); err != nil {
		return err
	}

	info, err := fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return NewIOError("stat", name, err)
	}
	if info.IsDir() {
		return NewIOError("erase", name, errors.New("is a directory"))
	}

	if err := overwrite(fs, name, info.Size(), bufSize); err != nil {
		return err
	}

	if err := fs.Remove(name); err != nil {
		return NewIOError("remove", name, err)
	}
	return nil
}

// overwrite replaces size bytes of name in place with random data
func overwrite(fs absfs.FileSystem, name string, size int64, bufSize int) (err error) {
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_SYNC, 0)
	if err != nil {
		return NewIOError("open", name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = NewIOError("close", name, cerr)
		}
	}()

	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	var off int64
	for off < size {
		n := int(min(int64(len(buf)), size-off))
		if _, err := rand.Read(buf[:n]); err != nil {
			return NewEnvironmentError("rand", fmt.Errorf("failed to generate overwrite data: %w", err))
		}
		if _, err := f.WriteAt(buf[:n], off); err != nil {
			return NewIOError("write", name, err)
		}
		off += int64(n)
	}

	if err := f.Sync(); err != nil {
		return NewIOError("sync", name, err)
	}
	return nil
}
