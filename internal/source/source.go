// Package source opens attachment payloads by path. Plain paths are read
// from the local filesystem, s3://bucket/key paths from an S3-compatible store.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const s3Scheme = "s3://"

var ErrNoS3Source = errors.New("s3 source not configured")

// Opener opens the content behind path. Callers must close the reader.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalOpener reads from the local filesystem.
type LocalOpener struct{}

func (LocalOpener) Open(_ context.Context, p string) (io.ReadCloser, error) {
	return os.Open(p)
}

// Mux dispatches s3:// paths to S3 and everything else to Local.
type Mux struct {
	Local Opener
	S3    Opener
}

func NewMux(s3 Opener) *Mux {
	return &Mux{Local: LocalOpener{}, S3: s3}
}

func (m *Mux) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if IsS3(p) {
		if m.S3 == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoS3Source, p)
		}
		return m.S3.Open(ctx, p)
	}
	local := m.Local
	if local == nil {
		local = LocalOpener{}
	}
	return local.Open(ctx, p)
}

// IsS3 reports whether p is an s3:// reference.
func IsS3(p string) bool {
	return strings.HasPrefix(p, s3Scheme)
}

// ReadAll reads the whole payload behind p.
func ReadAll(ctx context.Context, o Opener, p string) ([]byte, error) {
	rc, err := o.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// FileName returns the last path element, used as the upload file name.
func FileName(p string) string {
	if IsS3(p) {
		return path.Base(strings.TrimPrefix(p, s3Scheme))
	}
	return filepath.Base(p)
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}
