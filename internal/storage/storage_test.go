package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebridge/internal/errs"
	logx "gamebridge/pkg/logx"
)

func sampleDocument() Document {
	return Document{
		"111111111111111111": {"joined": "222222222222222222", "nextupdate": "333333333333333333"},
		"444444444444444444": {"joined": "555555555555555555"},
	}
}

func TestFileStoreMissingFileLoadsEmpty(t *testing.T) {
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "none.json")}, logx.Nop())
	require.NoError(t, err)
	doc, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, doc)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	want := sampleDocument()
	require.NoError(t, st.Save(context.Background(), want))

	got, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no temp files are left next to the document
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStoreSaveReplacesPreviousDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	st := newFileStore(path, logx.Nop())
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, sampleDocument()))
	next := Document{"1": {"joined": "2"}}
	require.NoError(t, st.Save(ctx, next))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, next, got)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{guild"},
		{"wrong shape", `{"1": ["2"]}`},
		{"trailing data", `{"1":{"joined":"2"}} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registry.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := newFileStore(path, logx.Nop()).Load(context.Background())
			require.Error(t, err)
			require.True(t, errs.Is(err, errs.CodeCorruptState), "got %v", err)
		})
	}
}

func TestFileStoreNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": null}`), 0o600))
	doc, err := newFileStore(path, logx.Nop()).Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, doc)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	empty, err := st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, st.Save(ctx, sampleDocument()))
	require.NoError(t, st.Save(ctx, Document{"1": {"joined": "2"}}))
	require.NoError(t, st.Close())

	reopened, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Document{"1": {"joined": "2"}}, got)
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}

func TestDocumentClone(t *testing.T) {
	doc := sampleDocument()
	cp := doc.Clone()
	cp["111111111111111111"]["joined"] = "mutated"
	require.Equal(t, "222222222222222222", doc["111111111111111111"]["joined"])
	require.Equal(t, 3, doc.Len())
}
