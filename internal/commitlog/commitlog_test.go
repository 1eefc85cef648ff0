package commitlog

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendAndReadAll(t *testing.T) {
	dir, err := ioutil.TempDir("", "commitlog-test")
	require.NoError(t, err)

	log, err := Open(dir)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(1, json.RawMessage(`{"key":"a"}`)))
	require.NoError(t, log.Append(2, json.RawMessage(`{"key":"b"}`)))

	records, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(1), records[0].Offset)
	require.Equal(t, int64(2), records[1].Offset)
	require.Equal(t, int64(2), log.MaxOffset())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].Payload, &decoded))
	require.Equal(t, "a", decoded["key"])
	require.Equal(t, float64(1), decoded["offset"])
}

func TestLogReopenSeedsMaxOffset(t *testing.T) {
	dir, err := ioutil.TempDir("", "commitlog-test")
	require.NoError(t, err)

	log, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, log.Append(1, json.RawMessage(`{}`)))
	require.NoError(t, log.Append(5, json.RawMessage(`{}`)))
	require.NoError(t, log.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, int64(5), reopened.MaxOffset())
}

func TestLogSkipsMalformedLines(t *testing.T) {
	dir, err := ioutil.TempDir("", "commitlog-test")
	require.NoError(t, err)

	log, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, log.Append(1, json.RawMessage(`{}`)))

	path := filepath.Join(dir, partitionDir, logFileName)
	f, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(path, append(f, []byte("not json\n")...), 0o644))

	records, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestStoreEnsureTopicIsIdempotent(t *testing.T) {
	dir, err := ioutil.TempDir("", "commitlog-store-test")
	require.NoError(t, err)

	store, err := NewStore(dir, 7)
	require.NoError(t, err)

	l1, err := store.EnsureTopic("orders")
	require.NoError(t, err)
	l2, err := store.EnsureTopic("orders")
	require.NoError(t, err)
	require.Same(t, l1, l2)

	_, ok := store.Log("orders")
	require.True(t, ok)
	require.Contains(t, store.ListTopics(), "orders")
}

func TestStoreLoadExistingSeedsTopics(t *testing.T) {
	dir, err := ioutil.TempDir("", "commitlog-store-test")
	require.NoError(t, err)

	store, err := NewStore(dir, 3)
	require.NoError(t, err)
	_, err = store.EnsureTopic("events")
	require.NoError(t, err)

	reopened, err := NewStore(dir, 3)
	require.NoError(t, err)
	require.Contains(t, reopened.ListTopics(), "events")
}
