package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")

	s, err := Open(path)
	require.NoError(t, err, "open on missing file should succeed")

	require.NoError(t, s.Set("card_number", "4411"))
	require.NoError(t, s.Set("store_id", "S1"))
	require.Equal(t, "4411", s.Get("card_number"))

	// reopen from disk
	s2, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "4411", s2.Get("card_number"))
	require.Equal(t, "S1", s2.Get("store_id"))

	require.NoError(t, s2.Delete("card_number", "missing-key"))
	require.Equal(t, "", s2.Get("card_number"))

	s3, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "", s3.Get("card_number"))
	require.Equal(t, "S1", s3.Get("store_id"))
}

func TestMemoryStoreNeverWrites(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Set("k", "v"))
	require.Equal(t, "v", s.Get("k"))
	require.Len(t, s.Snapshot(), 1)
}
