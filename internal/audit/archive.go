package audit

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archiver stores an expired day file somewhere durable before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, name string, r io.Reader) error
}

// LocalArchiver gzips expired files into a directory.
type LocalArchiver struct {
	Dir string
}

func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{Dir: dir}
}

func (a *LocalArchiver) Archive(ctx context.Context, name string, r io.Reader) error {
	if err := os.MkdirAll(a.Dir, 0o700); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	dst := filepath.Join(a.Dir, name+".gz")
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw := gzip.NewWriter(f)
	zw.Name = name
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("compress archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("compress archive: %w", err)
	}
	return f.Close()
}
