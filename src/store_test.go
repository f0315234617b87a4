package pacsat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_store(t *testing.T) *store_t {
	t.Helper()
	var s, err = store_open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func test_store_add(t *testing.T, s *store_t, name string, source string, body string) uint32 {
	t.Helper()
	var p = test_pfh()
	p.file_name = name
	p.source = source
	var n, err = s.store_file(p, []byte(body))
	require.NoError(t, err)
	return n
}

func TestStoreFileAndReadBack(t *testing.T) {
	var s = test_store(t)

	var body = []byte("First post!")
	var p = test_pfh()
	var n, err = s.store_file(p, body)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n, "numbering starts at 1, zero is reserved")

	/* The blob lands in the fanned out layout. */
	var _, statErr = os.Stat(filepath.Join(s.dir, store_blob_path(n)))
	assert.NoError(t, statErr)

	var pfh, blob, readErr = s.read_file(n)
	require.NoError(t, readErr)
	assert.Equal(t, n, pfh.file_number)
	assert.Equal(t, uint32(len(blob)), pfh.file_size)
	assert.True(t, pfh.has_download_count, "committed headers always carry the count item")

	var q, gotBody, parseErr = pfh_parse(blob)
	require.NoError(t, parseErr)
	assert.Equal(t, n, q.file_number)
	assert.Equal(t, body, gotBody)
	assert.NotZero(t, q.upload_time)
}

func TestStoreNumbersSurviveReopen(t *testing.T) {
	var dir = t.TempDir()

	var s, err = store_open(dir)
	require.NoError(t, err)
	var first = test_store_add(t, s, "ONE", "G0ABC", "one")
	var second = test_store_add(t, s, "TWO", "G0ABC", "two")
	assert.Greater(t, second, first)

	/* Purging the highest number must not cause its reuse. */
	require.NoError(t, s.purge(second))
	s.close()

	s, err = store_open(dir)
	require.NoError(t, err)
	defer s.close()

	var third = test_store_add(t, s, "THREE", "G0ABC", "three")
	assert.Greater(t, third, second, "purged numbers are never reissued")

	var _, ok = s.lookup(first)
	assert.True(t, ok, "index rebuilt from the blobs")
	_, ok = s.lookup(second)
	assert.False(t, ok)
}

func TestStoreSecondOpenLocked(t *testing.T) {
	var dir = t.TempDir()

	var s, err = store_open(dir)
	require.NoError(t, err)

	var _, lockErr = store_open(dir)
	assert.ErrorIs(t, lockErr, ErrStoreLocked)

	s.close()
	var again, reopenErr = store_open(dir)
	require.NoError(t, reopenErr)
	again.close()
}

func TestStoreList(t *testing.T) {
	var s = test_store(t)

	var n1 = test_store_add(t, s, "ALPHA", "G0ABC", "a")
	var n2 = test_store_add(t, s, "BRAVO", "K1XYZ", "b")
	var n3 = test_store_add(t, s, "CHARLI", "G0ABC", "c")

	var all = s.list(list_opts_t{}) //nolint:exhaustruct
	require.Len(t, all, 3)
	assert.Equal(t, n3, all[0].file_number, "newest first")
	assert.Equal(t, n2, all[1].file_number)
	assert.Equal(t, n1, all[2].file_number)

	var oldest = s.list(list_opts_t{oldest_first: true}) //nolint:exhaustruct
	assert.Equal(t, n1, oldest[0].file_number)

	var mine = s.list(list_opts_t{source: "g0abc"}) //nolint:exhaustruct
	require.Len(t, mine, 2, "source filter is case insensitive")

	var page = s.list(list_opts_t{offset: 1, limit: 1}) //nolint:exhaustruct
	require.Len(t, page, 1)
	assert.Equal(t, n2, page[0].file_number)

	assert.Empty(t, s.list(list_opts_t{offset: 10})) //nolint:exhaustruct
}

func TestStoreSearch(t *testing.T) {
	var s = test_store(t)

	test_store_add(t, s, "WEATHER", "G0ABC", "wx data")
	test_store_add(t, s, "KEPS", "K1XYZ", "elements")

	var p = test_pfh()
	p.file_name = "MISC"
	p.body_desc = "Weekly weather summary"
	var _, err = s.store_file(p, []byte("x"))
	require.NoError(t, err)

	assert.Len(t, s.search("weather"), 2, "matches name and description")
	assert.Len(t, s.search("K1XYZ"), 1, "matches source callsign")
	assert.Empty(t, s.search("nothing"))
}

func TestStoreSoftDeleteAndRecover(t *testing.T) {
	var s = test_store(t)

	var n = test_store_add(t, s, "KEEP", "G0ABC", "precious bytes")
	var _, original, readErr = s.read_file(n)
	require.NoError(t, readErr)
	original = append([]byte(nil), original...)

	require.NoError(t, s.soft_delete(n, ""))

	var _, _, goneErr = s.read_file(n)
	assert.ErrorIs(t, goneErr, ErrStoreNotFound, "trash is invisible to retrieval")
	var _, ok = s.lookup(n)
	assert.False(t, ok)
	assert.Empty(t, s.list(list_opts_t{})) //nolint:exhaustruct

	var st = s.stats()
	assert.Zero(t, st.active)
	assert.Equal(t, 1, st.trashed)

	var names = s.list_trash()
	require.Len(t, names, 1)

	var recovered, recErr = s.recover(names[0])
	require.NoError(t, recErr)
	assert.Equal(t, n, recovered, "recovery keeps the original number")

	var _, blob, backErr = s.read_file(n)
	require.NoError(t, backErr)
	assert.Equal(t, original, blob, "recovered blob is byte identical")
	assert.Empty(t, s.list_trash())

	/* Delete, recover, delete again.  The trash name is free again. */
	require.NoError(t, s.soft_delete(n, ""))
	assert.Equal(t, names, s.list_trash())
}

func TestStoreSoftDeleteOwnership(t *testing.T) {
	var s = test_store(t)
	var n = test_store_add(t, s, "MINE", "G0ABC", "body")

	assert.ErrorIs(t, s.soft_delete(n, "K1XYZ"), ErrStoreForbidden)
	assert.NoError(t, s.soft_delete(n, "g0abc"), "owner match is case insensitive")

	assert.ErrorIs(t, s.soft_delete(n, ""), ErrStoreNotFound, "already trashed")
	assert.ErrorIs(t, s.soft_delete(9999, ""), ErrStoreNotFound)
}

func TestStorePurge(t *testing.T) {
	var s = test_store(t)

	var n1 = test_store_add(t, s, "ONE", "G0ABC", "1")
	var n2 = test_store_add(t, s, "TWO", "G0ABC", "2")

	require.NoError(t, s.purge(n1))
	var _, _, err = s.read_file(n1)
	assert.ErrorIs(t, err, ErrStoreNotFound)

	/* Purge reaches into trash too. */
	require.NoError(t, s.soft_delete(n2, ""))
	require.NoError(t, s.purge(n2))
	assert.Empty(t, s.list_trash())

	assert.ErrorIs(t, s.purge(n2), ErrStoreNotFound)
}

func TestStoreUploadChunks(t *testing.T) {
	var s = test_store(t)

	var payload = []byte("0123456789abcdefghij") /* 20 bytes. */
	var tr, err = s.begin_receive("G0ABC", uint32(len(payload)))
	require.NoError(t, err)
	assert.NotZero(t, tr.file_number)
	assert.Equal(t, uint32(len(payload)), tr.holes.remaining())
	assert.Equal(t, 1, s.stats().pending)

	/* Chunks land out of order, with a duplicate thrown in. */
	require.NoError(t, s.write_chunk(tr, 10, payload[10:20]))
	require.NoError(t, s.write_chunk(tr, 0, payload[0:5]))
	require.NoError(t, s.write_chunk(tr, 10, payload[10:20]))
	require.NoError(t, s.write_chunk(tr, 5, payload[5:10]))

	assert.True(t, tr.holes.empty())

	assert.ErrorIs(t, s.write_chunk(tr, 15, payload[0:10]), ErrStoreOverlap,
		"chunk past the declared size")

	var got, blobErr = s.pending_blob(tr)
	require.NoError(t, blobErr)
	assert.Equal(t, payload, got)

	/* Promote it.  The caller stamps the final header. */
	var p = test_pfh()
	var header = store_finalize_header(p, tr.file_number, len(payload))
	require.NoError(t, s.commit_receive(tr, p, append(header, payload...)))

	assert.Zero(t, s.stats().pending)
	var q, blob, readErr = s.read_file(tr.file_number)
	require.NoError(t, readErr)
	assert.Equal(t, uint32(len(blob)), q.file_size)

	/* The pending blob is gone. */
	var _, statErr = os.Stat(filepath.Join(s.dir, store_pending_path(tr.file_number)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStoreResumeReceive(t *testing.T) {
	var s = test_store(t)

	var tr, err = s.begin_receive("G0ABC", 100)
	require.NoError(t, err)
	require.NoError(t, s.write_chunk(tr, 0, make([]byte, 40)))

	var _, wrongErr = s.resume_receive(tr.file_number, "K1XYZ")
	assert.ErrorIs(t, wrongErr, ErrStoreForbidden)

	var back, resumeErr = s.resume_receive(tr.file_number, "g0abc")
	require.NoError(t, resumeErr)
	assert.Same(t, tr, back)
	var h, ok = back.holes.first()
	require.True(t, ok)
	assert.Equal(t, uint32(40), h.start, "holes survive the dropout")

	var _, unknownErr = s.resume_receive(9999, "G0ABC")
	assert.ErrorIs(t, unknownErr, ErrStoreNotFound)
}

func TestStoreResumeAfterCommitConflicts(t *testing.T) {
	var s = test_store(t)

	var body = []byte("done")
	var tr, err = s.begin_receive("G0ABC", uint32(len(body)))
	require.NoError(t, err)
	require.NoError(t, s.write_chunk(tr, 0, body))

	var p = test_pfh()
	var header = store_finalize_header(p, tr.file_number, len(body))
	require.NoError(t, s.commit_receive(tr, p, append(header, body...)))

	var _, resumeErr = s.resume_receive(tr.file_number, "G0ABC")
	assert.ErrorIs(t, resumeErr, ErrStoreConflict)
}

func TestStoreRejectReceive(t *testing.T) {
	var s = test_store(t)

	var tr, err = s.begin_receive("G0ABC", 10)
	require.NoError(t, err)

	s.reject_receive(tr)
	assert.Zero(t, s.stats().pending)

	var _, statErr = os.Stat(filepath.Join(s.dir, tr.path))
	assert.True(t, os.IsNotExist(statErr))

	/* The burned number is not reissued. */
	var tr2, beginErr = s.begin_receive("G0ABC", 10)
	require.NoError(t, beginErr)
	assert.Greater(t, tr2.file_number, tr.file_number)
}

func TestStoreReadBody(t *testing.T) {
	var s = test_store(t)

	var body = "The quick brown fox jumps over the lazy dog"
	var n = test_store_add(t, s, "FOX", "G0ABC", body)

	var _, part, err = s.read_body(n, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("quick"), part)

	_, part, err = s.read_body(n, uint32(len(body)-3), 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("dog"), part, "range clipped to the body")

	_, part, err = s.read_body(n, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, part)

	_, _, err = s.read_body(9999, 0, 10)
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestStoreIncrementDownloadCount(t *testing.T) {
	var s = test_store(t)
	var n = test_store_add(t, s, "POPULR", "G0ABC", "everyone wants this")

	require.NoError(t, s.increment_download_count(n))
	require.NoError(t, s.increment_download_count(n))

	var pfh, ok = s.lookup(n)
	require.True(t, ok)
	assert.Equal(t, uint32(2), pfh.download_count)

	/* The rewritten blob still verifies. */
	var _, blob, readErr = s.read_file(n)
	require.NoError(t, readErr)
	var q, _, parseErr = pfh_parse(blob)
	require.NoError(t, parseErr)
	assert.Equal(t, uint32(len(blob)), q.file_size)
}

func TestStoreCleanup(t *testing.T) {
	var s = test_store(t)
	var old = time.Now().Add(-48 * time.Hour)

	/* Old trash. */
	var n = test_store_add(t, s, "DOOMED", "G0ABC", "x")
	require.NoError(t, s.soft_delete(n, ""))
	var trashName = s.list_trash()[0]
	require.NoError(t, os.Chtimes(filepath.Join(s.dir, STORE_TRASH_DIR, trashName), old, old))

	/* Fresh trash stays. */
	var keep = test_store_add(t, s, "KEEPME", "G0ABC", "y")
	require.NoError(t, s.soft_delete(keep, ""))

	/* Abandoned upload. */
	var tr, err = s.begin_receive("G0ABC", 10)
	require.NoError(t, err)
	tr.touched = old

	/* Live upload stays. */
	var live, liveErr = s.begin_receive("G0ABC", 10)
	require.NoError(t, liveErr)

	/* Stale pending blob from an earlier run, not in the map. */
	var stale = filepath.Join(s.dir, STORE_PENDING_DIR, "0000ffff"+STORE_PENDING_EXT)
	require.NoError(t, os.WriteFile(stale, []byte("leftover"), 0o644))
	require.NoError(t, os.Chtimes(stale, old, old))

	var removed = s.cleanup(24 * time.Hour)
	assert.Equal(t, 3, removed)

	var st = s.stats()
	assert.Equal(t, 1, st.trashed)
	assert.Equal(t, 1, st.pending)
	var _, resumeErr = s.resume_receive(live.file_number, "G0ABC")
	assert.NoError(t, resumeErr)
}

func TestStoreStats(t *testing.T) {
	var s = test_store(t)

	var n1 = test_store_add(t, s, "A", "G0ABC", "aaaa")
	test_store_add(t, s, "B", "G0ABC", "bb")

	var p1, ok = s.lookup(n1)
	require.True(t, ok)

	var st = s.stats()
	assert.Equal(t, 2, st.active)
	assert.Zero(t, st.trashed)
	assert.Zero(t, st.pending)
	assert.Positive(t, st.active_bytes)
	assert.GreaterOrEqual(t, st.active_bytes, int64(p1.file_size))
}

func TestStoreSkipsCorruptBlobOnOpen(t *testing.T) {
	var dir = t.TempDir()

	var s, err = store_open(dir)
	require.NoError(t, err)
	var good = test_store_add(t, s, "GOOD", "G0ABC", "fine")
	var bad = test_store_add(t, s, "BAD", "G0ABC", "doomed")
	var badPath = filepath.Join(dir, store_blob_path(bad))
	s.close()

	/* Flip a byte in one header.  The other blob must still index. */
	var blob, readErr = os.ReadFile(badPath)
	require.NoError(t, readErr)
	blob[5] ^= 0xff
	require.NoError(t, os.WriteFile(badPath, blob, 0o644))

	s, err = store_open(dir)
	require.NoError(t, err)
	defer s.close()

	var _, ok = s.lookup(good)
	assert.True(t, ok)
	_, ok = s.lookup(bad)
	assert.False(t, ok, "unparseable blob is skipped, not fatal")
}
