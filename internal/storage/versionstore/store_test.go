package versionstore_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/model"
	"github.com/stratadb/strata/internal/storage/versionstore"
)

func newRecord(writeID, contentID, previous string, ts int64, value string) *model.VersionedRecord {
	return &model.VersionedRecord{
		ContentID:       contentID,
		WriteID:         writeID,
		Value:           []byte(value),
		Timestamp:       ts,
		PreviousWriteID: previous,
	}
}

// appendChain writes n versions for the key, timestamps 100, 200, ...
func appendChain(s *versionstore.Store, key model.FullKey, n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("write-%d", i)
		previous := ""
		if i > 0 {
			previous = ids[i-1]
		}
		s.Append(newRecord(ids[i], fmt.Sprintf("content-%d", i), previous, int64((i+1)*100), fmt.Sprintf(`{"v":%d}`, i)))
		s.SetCurrent(key, ids[i])
	}
	return ids
}

func TestAppendAndCurrent(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "users", Key: "alice"}

	s.Append(newRecord("w1", "c1", "", 100, `{"v":1}`))
	s.SetCurrent(key, "w1")

	rec, ok := s.Current(key)
	require.True(t, ok)
	assert.Equal(t, "w1", rec.WriteID)
	assert.Equal(t, "c1", rec.ContentID)
	assert.Equal(t, []byte(`{"v":1}`), rec.Value)
	assert.Empty(t, rec.PreviousWriteID)

	_, ok = s.Current(model.FullKey{Namespace: "users", Key: "bob"})
	assert.False(t, ok)
}

func TestPayloadDeduplication(t *testing.T) {
	s := versionstore.NewStore()
	keyA := model.FullKey{Namespace: "ns", Key: "a"}
	keyB := model.FullKey{Namespace: "ns", Key: "b"}

	// Same content written under two keys and again under the first
	s.Append(newRecord("w1", "shared", "", 100, `{"x":1}`))
	s.SetCurrent(keyA, "w1")
	s.Append(newRecord("w2", "shared", "", 200, `{"x":1}`))
	s.SetCurrent(keyB, "w2")
	s.Append(newRecord("w3", "shared", "w1", 300, `{"x":1}`))
	s.SetCurrent(keyA, "w3")

	assert.Equal(t, 3, s.VersionCount())
	assert.Equal(t, 1, s.UniqueValueCount())

	rec, ok := s.Record("w3")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"x":1}`), rec.Value)
}

func TestHistoryNewestFirst(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}
	ids := appendChain(s, key, 4)

	var got []string
	for rec := range s.History(key) {
		got = append(got, rec.WriteID)
	}

	assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, got)
}

func TestHistoryRestartable(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}
	appendChain(s, key, 3)

	seq := s.History(key)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, first, second)
	assert.Equal(t, 3, first)
}

func TestVersionAt(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}
	ids := appendChain(s, key, 3) // timestamps 100, 200, 300

	rec, ok := s.VersionAt(key, 250)
	require.True(t, ok)
	assert.Equal(t, ids[1], rec.WriteID)

	// Exact timestamp matches
	rec, ok = s.VersionAt(key, 200)
	require.True(t, ok)
	assert.Equal(t, ids[1], rec.WriteID)

	// After the latest version
	rec, ok = s.VersionAt(key, 10_000)
	require.True(t, ok)
	assert.Equal(t, ids[2], rec.WriteID)

	// Before the first version
	_, ok = s.VersionAt(key, 50)
	assert.False(t, ok)
}

func TestEnumerateInsertionOrder(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}
	ids := appendChain(s, key, 3)

	var writes []string
	var contents []string
	for writeID, contentID := range s.Enumerate() {
		writes = append(writes, writeID)
		contents = append(contents, contentID)
	}

	assert.Equal(t, ids, writes)
	assert.Equal(t, []string{"content-0", "content-1", "content-2"}, contents)
}

func TestContainsKeyAndTombstones(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}

	s.Append(newRecord("w1", "c1", "", 100, `{"v":1}`))
	s.SetCurrent(key, "w1")
	assert.True(t, s.ContainsKey(key))
	assert.Equal(t, 1, s.KeyCount())

	// Tombstone hides the key but keeps its history
	tomb := newRecord("w2", "c-tomb", "w1", 200, `{"__tombstone__":true}`)
	tomb.Deleted = true
	s.Append(tomb)
	s.SetCurrent(key, "w2")

	assert.False(t, s.ContainsKey(key))
	assert.Equal(t, 0, s.KeyCount())
	assert.Equal(t, 2, s.VersionCount())

	var chain []string
	for rec := range s.History(key) {
		chain = append(chain, rec.WriteID)
	}
	assert.Equal(t, []string{"w2", "w1"}, chain)
}

func TestNamespacesAndKeys(t *testing.T) {
	s := versionstore.NewStore()

	for i, fk := range []model.FullKey{
		{Namespace: "users", Key: "bob"},
		{Namespace: "users", Key: "alice"},
		{Namespace: "orders", Key: "1001"},
	} {
		writeID := fmt.Sprintf("w%d", i)
		s.Append(newRecord(writeID, fmt.Sprintf("c%d", i), "", int64(i+1)*100, `{"v":1}`))
		s.SetCurrent(fk, writeID)
	}

	assert.Equal(t, []string{"orders", "users"}, s.Namespaces())
	assert.Equal(t, []string{"alice", "bob"}, s.Keys("users"))
	assert.Empty(t, s.Keys("missing"))

	// Deleting the only key in a namespace removes the namespace
	tomb := newRecord("w-del", "c-del", "w2", 400, `{"__tombstone__":true}`)
	tomb.Deleted = true
	s.Append(tomb)
	s.SetCurrent(model.FullKey{Namespace: "orders", Key: "1001"}, "w-del")

	assert.Equal(t, []string{"users"}, s.Namespaces())
}

func TestScanNamespace(t *testing.T) {
	s := versionstore.NewStore()

	for i, fk := range []model.FullKey{
		{Namespace: "users", Key: "bob"},
		{Namespace: "users", Key: "alice"},
		{Namespace: "orders", Key: "1001"},
	} {
		writeID := fmt.Sprintf("w%d", i)
		s.Append(newRecord(writeID, fmt.Sprintf("c%d", i), "", int64(i+1)*100, `{"v":1}`))
		s.SetCurrent(fk, writeID)
	}

	var keys []string
	var writeIDs []string
	for key, rec := range s.Scan("users") {
		keys = append(keys, key)
		writeIDs = append(writeIDs, rec.WriteID)
	}
	assert.Equal(t, []string{"alice", "bob"}, keys)
	assert.Equal(t, []string{"w1", "w0"}, writeIDs)

	for range s.Scan("missing") {
		t.Fatal("scan of a missing namespace yielded a record")
	}
}

func TestRecordValueIsCallerOwned(t *testing.T) {
	s := versionstore.NewStore()
	key := model.FullKey{Namespace: "ns", Key: "k"}

	// Two records sharing one deduplicated payload
	s.Append(newRecord("w1", "c1", "", 100, `{"v":1}`))
	s.Append(newRecord("w2", "c1", "w1", 200, `{"v":1}`))
	s.SetCurrent(key, "w2")

	rec, ok := s.Record("w1")
	require.True(t, ok)
	rec.Value[2] = 'X'

	sibling, ok := s.Record("w2")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), sibling.Value)

	current, ok := s.Current(key)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), current.Value)
}

func TestAppendIdempotent(t *testing.T) {
	s := versionstore.NewStore()

	s.Append(newRecord("w1", "c1", "", 100, `{"v":1}`))
	s.Append(newRecord("w1", "c1", "", 100, `{"v":1}`))

	assert.Equal(t, 1, s.VersionCount())

	count := 0
	for range s.Enumerate() {
		count++
	}
	assert.Equal(t, 1, count)
}
