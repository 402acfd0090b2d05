package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	store := New(path, nil)

	assert.Empty(t, store.LoadAll(), "missing file reads as empty")

	at := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.FixedZone("X", 3600))
	require.NoError(t, store.Append(NewEntry(at, "hello world")))
	require.NoError(t, store.Append(NewEntry(at.Add(time.Second), "second")))

	entries := store.LoadAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello world", entries[0].Text)
	assert.Equal(t, "second", entries[1].Text)
	assert.True(t, at.Equal(entries[0].Time()))
	assert.Equal(t, "2024-03-01T09:30:00.123456789+01:00", entries[0].Timestamp)
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	store := New(path, nil)
	require.NoError(t, store.Append(Entry{Timestamp: "2024-01-01T00:00:00Z", Text: "x"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []map[string]string{{"timestamp": "2024-01-01T00:00:00Z", "text": "x"}}, raw)
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := New(path, nil)
	assert.Empty(t, store.LoadAll())

	require.NoError(t, store.Append(Entry{Timestamp: "t", Text: "recovered"}))
	assert.Equal(t, []Entry{{Timestamp: "t", Text: "recovered"}}, store.LoadAll())
}

func TestNullFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("null"), 0644))

	assert.Equal(t, []Entry{}, New(path, nil).LoadAll())
}

func TestAppendCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", DefaultFile)
	store := New(path, nil)

	require.NoError(t, store.Append(Entry{Timestamp: "t", Text: "x"}))
	assert.FileExists(t, path)
}

func TestAppendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, DefaultFile), nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(Entry{Timestamp: "t", Text: "x"}))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, DefaultFile, files[0].Name())
}

func TestConcurrentAppends(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), DefaultFile), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Append(Entry{Timestamp: "t", Text: "x"}))
		}()
	}
	wg.Wait()

	assert.Len(t, store.LoadAll(), 20)
}

func TestRecent(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), DefaultFile), nil)
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(Entry{Timestamp: "t", Text: text}))
	}

	recent := store.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text)
	assert.Equal(t, "c", recent[1].Text)
	assert.Len(t, store.Recent(0), 3)
	assert.Len(t, store.Recent(10), 3)
}
