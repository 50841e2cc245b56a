package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, 0, s.Size())
}

func TestPersistLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	blob := []byte("SQLite format 3\x00fake-database-bytes")
	require.NoError(t, s.Persist(blob))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	assert.Equal(t, len(blob), s.Size())

	// overwrite is idempotent and full
	blob2 := []byte("second generation")
	require.NoError(t, s.Persist(blob2))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, blob2, got)
}

func TestExportImportBase64(t *testing.T) {
	s := newTestStore(t)

	blob := []byte{0x53, 0x51, 0x4c, 0x00, 0xff, 0x01}
	require.NoError(t, s.Persist(blob))

	b64, err := s.ExportBase64()
	require.NoError(t, err)

	s2 := newTestStore(t)
	require.NoError(t, s2.ImportBase64(b64))
	got, err := s2.Load()
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestExportTo(t *testing.T) {
	s := newTestStore(t)
	blob := []byte("export-me")
	require.NoError(t, s.Persist(blob))

	var buf bytes.Buffer
	n, err := s.ExportTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(blob)), n)
	assert.Equal(t, blob, buf.Bytes())
}

func TestImportRejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Import(nil))

	assert.Error(t, s.ImportBase64("%%%not-base64%%%"))
}
