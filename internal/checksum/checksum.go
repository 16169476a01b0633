// Package checksum computes the content fingerprints and derived external ids
// used to match desired attachments against remote ones.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/estatesync/internal/source"
)

var ErrRead = errors.New("cannot read attachment content")

// File streams the content behind path through MD5 and returns the
// lowercase hex digest. Only the bytes are hashed, never names or timestamps.
func File(ctx context.Context, o source.Opener, path string) (string, error) {
	rc, err := o.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}
	defer rc.Close()

	h := md5.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the hex MD5 digest of data.
func Bytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ExternalID derives a stable identifier from the attachment title and its
// source path: the hex MD5 of "title:path".
func ExternalID(title, path string) string {
	return Bytes([]byte(title + ":" + path))
}
