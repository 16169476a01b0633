package checksum

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/estatesync/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_KnownDigest(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o600))

	got, err := File(context.Background(), source.LocalOpener{}, p)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", got)
}

func TestFile_IgnoresNameAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "renamed-copy.jpg")
	require.NoError(t, os.WriteFile(a, []byte{1, 2, 3, 4}, 0o600))
	require.NoError(t, os.WriteFile(b, []byte{1, 2, 3, 4}, 0o644))

	ha, err := File(context.Background(), source.LocalOpener{}, a)
	require.NoError(t, err)
	hb, err := File(context.Background(), source.LocalOpener{}, b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Equal(t, Bytes([]byte{1, 2, 3, 4}), ha)
}

func TestFile_MissingFile(t *testing.T) {
	_, err := File(context.Background(), source.LocalOpener{}, filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrRead)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExternalID_Deterministic(t *testing.T) {
	a1 := ExternalID("Room 1", "/path/a.jpg")
	a2 := ExternalID("Room 1", "/path/a.jpg")
	b := ExternalID("Room 1", "/path/b.jpg")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 32)
	assert.Equal(t, Bytes([]byte("Room 1:/path/a.jpg")), a1)
}

func TestExternalID_EmptyTitle(t *testing.T) {
	assert.Equal(t, Bytes([]byte(":/x.pdf")), ExternalID("", "/x.pdf"))
}
