package metadata

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jirabackup/internal/downloader"
	"jirabackup/pkg/storage"
)

func sampleEntry(root, key string, sizes ...int64) *storage.Entry {
	path := filepath.Join(root, "Open", "Fix bug_"+key)
	e := &storage.Entry{Key: key, Status: "Open", Summary: "Fix bug", Path: path, Bytes: 100}
	for i, n := range sizes {
		e.Attachments = append(e.Attachments, downloader.Result{
			Path:  filepath.Join(path, "file"+string(rune('a'+i))+".bin"),
			Bytes: n,
		})
		e.Bytes += n
	}
	return e
}

func TestFromEntry(t *testing.T) {
	root := t.TempDir()
	meta := FromEntry(sampleEntry(root, "ABC-1", 10, 20), root)

	assert.Equal(t, "ABC-1", meta.Key)
	assert.Equal(t, "Open/Fix bug_ABC-1", meta.Path)
	assert.Equal(t, int64(130), meta.Bytes)
	require.Len(t, meta.Attachments, 2)
	assert.Equal(t, "filea.bin", meta.Attachments[0].Filename)
	assert.Equal(t, int64(20), meta.Attachments[1].Bytes)
	assert.False(t, meta.WrittenAt.IsZero())
}

func TestRecordReplacesSamePath(t *testing.T) {
	root := t.TempDir()
	m := New("run", "ABC", "http://jira", 2, 0)

	m.Record(FromEntry(sampleEntry(root, "ABC-1", 10), root))
	m.Record(FromEntry(sampleEntry(root, "ABC-2"), root))

	again := sampleEntry(root, "ABC-1", 10, 5)
	again.Replaced = true
	m.Record(FromEntry(again, root))

	require.Len(t, m.Entries, 2)
	assert.True(t, m.Entries[0].Replaced)
	assert.Equal(t, 2, m.Attachments())
	assert.Equal(t, int64(115+100), m.Bytes())
}

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	m := New("run-1", "ABC", "http://jira", 2, 0)
	m.Record(FromEntry(sampleEntry(root, "ABC-2"), root))
	m.Record(FromEntry(sampleEntry(root, "ABC-1", 7), root))

	assert.False(t, Exists(root))
	m.Complete()
	require.NoError(t, m.Save(root))
	assert.True(t, Exists(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, 2, loaded.Total)
	assert.False(t, loaded.CompletedAt.IsZero())
	require.Len(t, loaded.Entries, 2)
	assert.Equal(t, "ABC-1", loaded.Entries[0].Key, "entries are sorted by path")

	assert.NoFileExists(t, filepath.Join(root, ManifestFile+".tmp"))
}

func TestMerge(t *testing.T) {
	root := t.TempDir()
	prev := New("run-1", "ABC", "http://jira", 3, 0)
	prev.Record(FromEntry(sampleEntry(root, "ABC-1"), root))
	prev.Record(FromEntry(sampleEntry(root, "ABC-2"), root))

	m := New("run-2", "ABC", "http://jira", 3, 2)
	m.Record(FromEntry(sampleEntry(root, "ABC-2", 1), root))
	m.Record(FromEntry(sampleEntry(root, "ABC-3"), root))
	m.Merge(prev)
	m.Merge(nil)

	require.Len(t, m.Entries, 3)
	assert.Equal(t, 1, m.Attachments(), "the newer ABC-2 wins")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
