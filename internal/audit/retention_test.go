package audit

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func writeDayFile(t *testing.T, dir, day, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit-"+day+".log"), []byte(content), 0o600))
}

func TestTrail_Sweep_ArchivesExpiredFiles(t *testing.T) {
	archiveDir := t.TempDir()
	trail := newTestTrail(t, func(c *Config) {
		c.Retention = 30 * 24 * time.Hour
		c.Archiver = NewLocalArchiver(archiveDir)
	})

	writeDayFile(t, trail.cfg.Dir, "2026-01-01", "old\n")
	writeDayFile(t, trail.cfg.Dir, "2026-03-01", "recent\n")
	require.NoError(t, os.WriteFile(filepath.Join(trail.cfg.Dir, "notes.txt"), []byte("x"), 0o600))

	n, err := trail.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(trail.cfg.Dir, "audit-2026-01-01.log"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(trail.cfg.Dir, "audit-2026-03-01.log"))
	assert.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(archiveDir, "audit-2026-01-01.log.gz"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", gunzip(t, archived))
}

func TestTrail_Sweep_KeepsFileWhenArchiveFails(t *testing.T) {
	putter := &fakePutter{err: errors.New("bucket unavailable")}
	trail := newTestTrail(t, func(c *Config) {
		c.Retention = 24 * time.Hour
		c.Archiver = NewS3Archiver(putter, "audit-bucket", "prod")
	})
	writeDayFile(t, trail.cfg.Dir, "2025-12-01", "old\n")

	n, err := trail.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	_, statErr := os.Stat(filepath.Join(trail.cfg.Dir, "audit-2025-12-01.log"))
	assert.NoError(t, statErr)
}

func TestTrail_Sweep_DisabledWithoutRetention(t *testing.T) {
	trail := newTestTrail(t, nil)
	writeDayFile(t, trail.cfg.Dir, "2000-01-01", "ancient\n")

	n, err := trail.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestS3Archiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	archiver := NewS3Archiver(putter, "audit-bucket", "prod")

	err := archiver.Archive(context.Background(), "audit-2026-01-01.log", bytes.NewReader([]byte("line\n")))
	require.NoError(t, err)

	require.NotNil(t, putter.input)
	assert.Equal(t, "audit-bucket", *putter.input.Bucket)
	assert.Equal(t, "prod/audit-2026-01-01.log.gz", *putter.input.Key)
	assert.Equal(t, "line\n", gunzip(t, putter.body))
}
