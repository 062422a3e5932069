package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDocumentStore_SaveAndRead(t *testing.T) {
	store := NewDocumentStore(t.TempDir(), zap.NewNop())

	relPath, err := store.Save("req-1", KindProforma, "quote.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("req-1", "proforma_quote.pdf"), relPath)

	content, err := store.Read(relPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), content)
}

func TestDocumentStore_SaveStripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	store := NewDocumentStore(dir, zap.NewNop())

	relPath, err := store.Save("req-1", KindReceipt, "../../evil.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("req-1", "receipt_evil.pdf"), relPath)

	_, err = os.Stat(filepath.Join(dir, "req-1", "receipt_evil.pdf"))
	assert.NoError(t, err)
}

func TestDocumentStore_ReadRejectsEscapingPaths(t *testing.T) {
	store := NewDocumentStore(t.TempDir(), zap.NewNop())

	_, err := store.Read("../outside.txt")
	assert.Error(t, err)
}

func TestDocumentStore_ReadMissingFile(t *testing.T) {
	store := NewDocumentStore(t.TempDir(), zap.NewNop())

	_, err := store.Read("req-1/proforma_missing.pdf")
	assert.Error(t, err)
}
