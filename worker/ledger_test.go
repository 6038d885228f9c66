package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "spool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordOnce(t *testing.T) {
	l := newTestLedger(t)

	seen, err := l.Seen("a.json", "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	created, err := l.Record(LedgerEntry{Name: "a.json", SHA256: "abc", Written: 3})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.Record(LedgerEntry{Name: "a.json", SHA256: "abc", Written: 99})
	require.NoError(t, err)
	assert.False(t, created)

	e, err := l.Get("a.json", "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Written)
	assert.False(t, e.IngestedAt.IsZero())
}

func TestLedger_ContentChangeIsNew(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Record(LedgerEntry{Name: "a.json", SHA256: "v1"})
	require.NoError(t, err)

	seen, err := l.Seen("a.json", "v2")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = l.Get("a.json", "v2")
	assert.True(t, errors.Is(err, ErrNotRecorded))
}

func TestLedger_List(t *testing.T) {
	l := newTestLedger(t)

	entries, err := l.List()
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, _ = l.Record(LedgerEntry{Name: "b.json", SHA256: "1"})
	_, _ = l.Record(LedgerEntry{Name: "a.json", SHA256: "1"})

	entries, err = l.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.json", entries[0].Name)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
