package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	File store - the collection of PACSAT files behind the
 *		protocol engines.
 *
 * Description:	Each file lives on disk as a single blob, PACSAT file
 *		header first, body immediately after.  Blobs are named
 *		by file number and fanned out two directory levels so
 *		no directory grows without bound:
 *
 *			xx/yy/zzzzzzzz.pfh
 *
 *		where zzzzzzzz is the file number in hex, xx its top
 *		byte and yy the next one.
 *
 *		Deleting is soft: the blob moves to trash/ and stops
 *		being visible to listings, directories, and downloads
 *		until recovered or purged.  Uploads in progress live
 *		under pending/ until they verify.
 *
 *		Every mutation goes through a write-to-temp-then-rename
 *		so a crash leaves a file either fully present or fully
 *		absent, never half written.
 *
 *		The index is rebuilt from the blobs at startup.  An
 *		external database, when one is attached, is a cache
 *		over this layout, never the authority.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const STORE_TRASH_DIR = "trash"
const STORE_PENDING_DIR = "pending"
const STORE_LOCK_FILE = ".lock"
const STORE_SEQUENCE_FILE = "sequence"
const STORE_BLOB_EXT = ".pfh"
const STORE_PENDING_EXT = ".upl"

var ErrStoreNotFound = errors.New("no such file")
var ErrStoreForbidden = errors.New("not the file owner")
var ErrStoreOverlap = errors.New("chunk outside the file")
var ErrStoreConflict = errors.New("file number already active")
var ErrStoreLocked = errors.New("store is in use by another process")

/* One committed file.  The body stays on disk until somebody asks. */

type stored_file_t struct {
	pfh  *pfh_t
	path string /* Relative to the store root. */
}

/* One upload in progress.  Survives the session that started it so
   the uploader can resume after a dropout. */

type transfer_t struct {
	file_number uint32
	size        uint32 /* Declared total length of the upload. */
	source      string
	holes       *hole_list_t
	path        string /* Pending blob, relative to the store root. */
	touched     time.Time
}

type store_t struct {
	dir     string
	lock_fp *os.File

	mu      sync.Mutex
	files   map[uint32]*stored_file_t /* Active, by file number. */
	trash   map[string]*stored_file_t /* Trashed, by trash file name. */
	pending map[uint32]*transfer_t
	next    uint32 /* Next file number to hand out. */
}

type store_stats_t struct {
	active       int
	trashed      int
	pending      int
	active_bytes int64
}

type list_opts_t struct {
	source       string /* Only files from this callsign.  Empty for all. */
	oldest_first bool   /* Default order is newest upload first. */
	offset       int
	limit        int /* 0 for no limit. */
}

/*-------------------------------------------------------------------
 *
 * Name:        store_open
 *
 * Purpose:     Open (creating if necessary) the file store.
 *
 * Inputs:	dir	- Store root directory.
 *
 * Returns:	The store, or an error.  ErrStoreLocked means another
 *		process has it.
 *
 * Description:	Takes an exclusive flock on a lock file so two daemons
 *		can never interleave writes, then rebuilds the index by
 *		reading every blob.  A blob that fails to parse is
 *		left on disk and skipped, with a complaint, so one bad
 *		sector does not take the whole station down.
 *
 *--------------------------------------------------------------------*/

func store_open(dir string) (*store_t, error) {

	for _, d := range []string{dir, filepath.Join(dir, STORE_TRASH_DIR), filepath.Join(dir, STORE_PENDING_DIR)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	var lock_fp, lockErr = os.OpenFile(filepath.Join(dir, STORE_LOCK_FILE), os.O_CREATE|os.O_RDWR, 0o644)
	if lockErr != nil {
		return nil, fmt.Errorf("opening store lock: %w", lockErr)
	}
	if err := unix.Flock(int(lock_fp.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock_fp.Close()
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, dir)
	}

	var s = &store_t{
		dir:     dir,
		lock_fp: lock_fp,
		files:   make(map[uint32]*stored_file_t),
		trash:   make(map[string]*stored_file_t),
		pending: make(map[uint32]*transfer_t),
		next:    1, /* Zero is reserved. */
	}

	if seq, err := os.ReadFile(filepath.Join(dir, STORE_SEQUENCE_FILE)); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(string(seq)), 10, 32); err == nil && uint32(n) > s.next {
			s.next = uint32(n)
		}
	}

	var blobs, _ = filepath.Glob(filepath.Join(dir, "??", "??", "*"+STORE_BLOB_EXT))
	for _, path := range blobs {
		var sf = store_read_entry(path)
		if sf == nil {
			continue
		}
		sf.path, _ = filepath.Rel(dir, path)
		if _, dup := s.files[sf.pfh.file_number]; dup {
			store_log.Warnf("Duplicate file number %d at %s, ignoring.", sf.pfh.file_number, path)
			continue
		}
		s.files[sf.pfh.file_number] = sf
		if sf.pfh.file_number >= s.next {
			s.next = sf.pfh.file_number + 1
		}
	}

	var trashed, _ = filepath.Glob(filepath.Join(dir, STORE_TRASH_DIR, "*"))
	for _, path := range trashed {
		var sf = store_read_entry(path)
		if sf == nil {
			continue
		}
		sf.path, _ = filepath.Rel(dir, path)
		s.trash[filepath.Base(path)] = sf
		if sf.pfh.file_number >= s.next {
			s.next = sf.pfh.file_number + 1
		}
	}

	// Pending blobs from an earlier run have no hole list any more, so
	// they cannot be resumed.  The cleanup pass ages them out.

	var stale, _ = filepath.Glob(filepath.Join(dir, STORE_PENDING_DIR, "*"+STORE_PENDING_EXT))
	for _, path := range stale {
		if n, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(path), STORE_PENDING_EXT), 16, 32); err == nil && uint32(n) >= s.next {
			s.next = uint32(n) + 1
		}
	}

	store_log.Infof("Store opened at %s: %d active, %d trashed, next file number %d.",
		dir, len(s.files), len(s.trash), s.next)

	return s, nil
} /* end store_open */

// Read one blob and parse enough to index it.
func store_read_entry(path string) *stored_file_t {
	var data, err = os.ReadFile(path)
	if err != nil {
		store_log.Warnf("Cannot read %s: %v", path, err)
		return nil
	}
	var pfh, _, perr = pfh_parse(data)
	if perr != nil {
		store_log.Warnf("Cannot index %s: %v", path, perr)
		return nil
	}
	if int(pfh.file_size) != len(data) {
		store_log.Warnf("Cannot index %s: header says %d bytes, blob is %d.", path, pfh.file_size, len(data))
		return nil
	}
	return &stored_file_t{pfh: pfh}
} /* end store_read_entry */

func (s *store_t) close() {
	unix.Flock(int(s.lock_fp.Fd()), unix.LOCK_UN)
	s.lock_fp.Close()
} /* end close */

/*-------------------------------------------------------------------
 *
 * Name:        store_blob_path
 *
 * Purpose:     Where a file number lives, relative to the store root.
 *
 *--------------------------------------------------------------------*/

func store_blob_path(file_number uint32) string {
	return filepath.Join(
		fmt.Sprintf("%02x", byte(file_number>>24)),
		fmt.Sprintf("%02x", byte(file_number>>16)),
		fmt.Sprintf("%08x%s", file_number, STORE_BLOB_EXT))
} /* end store_blob_path */

func store_pending_path(file_number uint32) string {
	return filepath.Join(STORE_PENDING_DIR, fmt.Sprintf("%08x%s", file_number, STORE_PENDING_EXT))
}

/*-------------------------------------------------------------------
 *
 * Name:        allocate_file_number
 *
 * Purpose:     Hand out the next file number.
 *
 * Description:	Numbers only ever go up, even across restarts and even
 *		when the highest numbered file has been purged.  Reusing
 *		a number would poison every directory cache that ever
 *		saw the old file.  The counter is persisted on every
 *		allocation for that reason.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) allocate_file_number() (uint32, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	var n = s.next
	s.next++

	if err := s.write_atomic(STORE_SEQUENCE_FILE, []byte(strconv.FormatUint(uint64(s.next), 10))); err != nil {
		s.next = n
		return 0, fmt.Errorf("persisting file number sequence: %w", err)
	}

	return n, nil
} /* end allocate_file_number */

/*-------------------------------------------------------------------
 *
 * Name:        begin_receive
 *
 * Purpose:     Start collecting an upload.
 *
 * Inputs:	source	- Uploading station.
 *
 *		size	- Declared total length, header and body.
 *
 * Returns:	A transfer with a freshly allocated file number and one
 *		hole covering the whole file.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) begin_receive(source string, size uint32) (*transfer_t, error) {

	var n, err = s.allocate_file_number()
	if err != nil {
		return nil, err
	}

	var t = &transfer_t{
		file_number: n,
		size:        size,
		source:      source,
		holes:       hole_list_new(size),
		path:        store_pending_path(n),
		touched:     time.Now(),
	}

	var fp, createErr = os.OpenFile(filepath.Join(s.dir, t.path), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if createErr != nil {
		return nil, fmt.Errorf("creating pending blob: %w", createErr)
	}
	if err := fp.Truncate(int64(size)); err != nil {
		fp.Close()
		return nil, fmt.Errorf("sizing pending blob: %w", err)
	}
	fp.Close()

	s.mu.Lock()
	s.pending[n] = t
	s.mu.Unlock()

	store_log.Infof("Upload started: file %d, %d bytes from %s.", n, size, source)
	return t, nil
} /* end begin_receive */

/*-------------------------------------------------------------------
 *
 * Name:        resume_receive
 *
 * Purpose:     Re-attach to an upload from a previous session.
 *
 * Returns:	The pending transfer.
 *
 *		ErrStoreConflict	that number is already a complete file
 *		ErrStoreNotFound	nothing pending under that number
 *		ErrStoreForbidden	pending, but for a different station
 *
 *--------------------------------------------------------------------*/

func (s *store_t) resume_receive(file_number uint32, source string) (*transfer_t, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.files[file_number]; done {
		return nil, fmt.Errorf("%w: %d", ErrStoreConflict, file_number)
	}

	var t, ok = s.pending[file_number]
	if !ok {
		return nil, fmt.Errorf("%w: no pending upload %d", ErrStoreNotFound, file_number)
	}
	if !strings.EqualFold(t.source, source) {
		return nil, fmt.Errorf("%w: upload %d belongs to %s", ErrStoreForbidden, file_number, t.source)
	}

	t.touched = time.Now()
	return t, nil
} /* end resume_receive */

/*-------------------------------------------------------------------
 *
 * Name:        write_chunk
 *
 * Purpose:     Apply one received chunk to a pending upload.
 *
 * Inputs:	t	- The transfer.
 *
 *		offset	- Where the chunk goes.
 *
 *		data	- The bytes.
 *
 * Returns:	ErrStoreOverlap when the chunk reaches outside the
 *		declared size.  A chunk that only covers bytes already
 *		received is a quiet no-op, the remote is just resending.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) write_chunk(t *transfer_t, offset uint32, data []byte) error {

	if uint64(offset)+uint64(len(data)) > uint64(t.size) {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrStoreOverlap, offset, uint64(offset)+uint64(len(data)), t.size)
	}
	if len(data) == 0 {
		return nil
	}

	var fp, err = os.OpenFile(filepath.Join(s.dir, t.path), os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening pending blob: %w", err)
	}
	if _, err := fp.WriteAt(data, int64(offset)); err != nil {
		fp.Close()
		return fmt.Errorf("writing pending blob: %w", err)
	}
	fp.Close()

	t.holes.fill(offset, len(data))
	t.touched = time.Now()
	return nil
} /* end write_chunk */

/*-------------------------------------------------------------------
 *
 * Name:        pending_blob
 *
 * Purpose:     The assembled bytes of a pending upload, for final
 *		verification once the hole list is empty.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) pending_blob(t *transfer_t) ([]byte, error) {
	var data, err = os.ReadFile(filepath.Join(s.dir, t.path))
	if err != nil {
		return nil, fmt.Errorf("reading pending blob: %w", err)
	}
	return data, nil
} /* end pending_blob */

/*-------------------------------------------------------------------
 *
 * Name:        commit_receive
 *
 * Purpose:     Promote a verified upload to an active file.
 *
 * Inputs:	t	- The transfer.
 *
 *		pfh	- Final header, already stamped with the assigned
 *			  file number and upload time.
 *
 *		blob	- Final serialized header plus body.
 *
 * Description:	Verification is the caller's business.  This only
 *		guarantees the atomic swap from pending to active.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) commit_receive(t *transfer_t, pfh *pfh_t, blob []byte) error {

	Assert(pfh.file_number == t.file_number)

	var rel = store_blob_path(t.file_number)
	if err := s.write_atomic(rel, blob); err != nil {
		return err
	}

	s.mu.Lock()
	s.files[t.file_number] = &stored_file_t{pfh: pfh, path: rel}
	delete(s.pending, t.file_number)
	s.mu.Unlock()

	os.Remove(filepath.Join(s.dir, t.path))

	store_log.Infof("Upload complete: file %d, %d bytes from %s.", t.file_number, len(blob), t.source)
	return nil
} /* end commit_receive */

/*-------------------------------------------------------------------
 *
 * Name:        reject_receive
 *
 * Purpose:     Discard a pending upload that failed verification.
 *		The file number is burned, never reissued.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) reject_receive(t *transfer_t) {

	s.mu.Lock()
	delete(s.pending, t.file_number)
	s.mu.Unlock()

	os.Remove(filepath.Join(s.dir, t.path))
	store_log.Infof("Upload rejected: file %d from %s discarded.", t.file_number, t.source)
} /* end reject_receive */

/*-------------------------------------------------------------------
 *
 * Name:        store_finalize_header
 *
 * Purpose:     Stamp a header the way every committed file carries it.
 *
 * Inputs:	pfh		- Header to stamp, modified in place.
 *
 *		file_number	- Assigned number.
 *
 *		body_len	- Length of the body that will follow.
 *
 * Returns:	The serialized header.
 *
 * Description:	A committed header always carries a download count item,
 *		even at zero, so incrementing it later never changes the
 *		header length.  file_size is the whole blob, so it can
 *		only be computed after the header length is known, which
 *		takes a second serialization pass.  Only fixed width
 *		values change between passes so the length holds still.
 *
 *--------------------------------------------------------------------*/

func store_finalize_header(pfh *pfh_t, file_number uint32, body_len int) []byte {

	pfh.file_number = file_number
	pfh.upload_time = uint32(time.Now().Unix())
	pfh.has_download_count = true

	var header = pfh.serialize()
	pfh.file_size = uint32(len(header) + body_len)
	header = pfh.serialize()

	return header
} /* end store_finalize_header */

/*-------------------------------------------------------------------
 *
 * Name:        store_file
 *
 * Purpose:     Add a complete file in one call.  This is the path the
 *		front end and the tests use; radio uploads arrive through
 *		begin_receive / write_chunk / commit_receive instead.
 *
 * Returns:	The assigned file number.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) store_file(pfh *pfh_t, body []byte) (uint32, error) {

	var n, err = s.allocate_file_number()
	if err != nil {
		return 0, err
	}

	var header = store_finalize_header(pfh, n, len(body))
	var blob = append(header, body...)

	var rel = store_blob_path(n)
	if err := s.write_atomic(rel, blob); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.files[n] = &stored_file_t{pfh: pfh, path: rel}
	s.mu.Unlock()

	store_log.Infof("Added file %d: %s, %d bytes from %s.", n, pfh.file_name, len(blob), pfh.source)
	return n, nil
} /* end store_file */

/*-------------------------------------------------------------------
 *
 * Name:        read_file
 *
 * Purpose:     Whole blob of an active file, header first.
 *
 * Returns:	ErrStoreNotFound for unknown, pending, or trashed
 *		numbers.  Trash is not visible to normal retrieval.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) read_file(file_number uint32) (*pfh_t, []byte, error) {

	s.mu.Lock()
	var sf, ok = s.files[file_number]
	s.mu.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrStoreNotFound, file_number)
	}

	var data, err = os.ReadFile(filepath.Join(s.dir, sf.path))
	if err != nil {
		return nil, nil, fmt.Errorf("reading file %d: %w", file_number, err)
	}

	return sf.pfh, data, nil
} /* end read_file */

/*-------------------------------------------------------------------
 *
 * Name:        read_body
 *
 * Purpose:     A byte range of an active file's body.
 *
 * Inputs:	offset, length	- Range within the body.  The range is
 *				  clipped to what exists.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) read_body(file_number uint32, offset uint32, length int) (*pfh_t, []byte, error) {

	var pfh, blob, err = s.read_file(file_number)
	if err != nil {
		return nil, nil, err
	}

	var body = blob[pfh.body_offset:]
	if int64(offset) >= int64(len(body)) {
		return pfh, nil, nil
	}
	var end = int64(offset) + int64(length)
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return pfh, body[offset:end], nil
} /* end read_body */

func (s *store_t) lookup(file_number uint32) (*pfh_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sf, ok = s.files[file_number]
	if !ok {
		return nil, false
	}
	return sf.pfh, true
}

/*-------------------------------------------------------------------
 *
 * Name:        list
 *
 * Purpose:     Headers of active files, newest upload first unless
 *		asked otherwise.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) list(opts list_opts_t) []*pfh_t {

	s.mu.Lock()
	var result = make([]*pfh_t, 0, len(s.files))
	for _, sf := range s.files {
		if opts.source != "" && !strings.EqualFold(sf.pfh.source, opts.source) {
			continue
		}
		result = append(result, sf.pfh)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].upload_time != result[j].upload_time {
			if opts.oldest_first {
				return result[i].upload_time < result[j].upload_time
			}
			return result[i].upload_time > result[j].upload_time
		}
		if opts.oldest_first {
			return result[i].file_number < result[j].file_number
		}
		return result[i].file_number > result[j].file_number
	})

	if opts.offset > 0 {
		if opts.offset >= len(result) {
			return nil
		}
		result = result[opts.offset:]
	}
	if opts.limit > 0 && opts.limit < len(result) {
		result = result[:opts.limit]
	}

	return result
} /* end list */

/*-------------------------------------------------------------------
 *
 * Name:        search
 *
 * Purpose:     Substring search over name, callsigns, and description.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) search(query string) []*pfh_t {

	var q = strings.ToUpper(query)
	var all = s.list(list_opts_t{})
	var result []*pfh_t

	for _, p := range all {
		var name = p.file_name
		if p.file_ext != "" {
			name += "." + p.file_ext
		}
		if strings.Contains(strings.ToUpper(name), q) ||
			strings.Contains(strings.ToUpper(p.source), q) ||
			strings.Contains(strings.ToUpper(p.destination), q) ||
			strings.Contains(strings.ToUpper(p.body_desc), q) {
			result = append(result, p)
		}
	}

	return result
} /* end search */

/*-------------------------------------------------------------------
 *
 * Name:        soft_delete
 *
 * Purpose:     Move a file to trash.
 *
 * Inputs:	file_number
 *
 *		actor	- Who is asking.  Must match the file's source
 *			  callsign.  Empty means the caller already
 *			  authorized the operation; the store is not the
 *			  place where policy lives.
 *
 * Returns:	ErrStoreNotFound or ErrStoreForbidden.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) soft_delete(file_number uint32, actor string) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	var sf, ok = s.files[file_number]
	if !ok {
		return fmt.Errorf("%w: %d", ErrStoreNotFound, file_number)
	}
	if actor != "" && !strings.EqualFold(actor, sf.pfh.source) {
		return fmt.Errorf("%w: file %d belongs to %s", ErrStoreForbidden, file_number, sf.pfh.source)
	}

	// The same number can end up in trash more than once if a file is
	// deleted, recovered, and deleted again.  Suffix until free.

	var base = fmt.Sprintf("%08x%s", file_number, STORE_BLOB_EXT)
	var name = base
	for n := 1; ; n++ {
		var _, taken = s.trash[name]
		if !taken {
			if _, err := os.Stat(filepath.Join(s.dir, STORE_TRASH_DIR, name)); os.IsNotExist(err) {
				break
			}
		}
		name = fmt.Sprintf("%s.%d", base, n)
	}

	var old_abs = filepath.Join(s.dir, sf.path)
	var new_rel = filepath.Join(STORE_TRASH_DIR, name)
	if err := os.Rename(old_abs, filepath.Join(s.dir, new_rel)); err != nil {
		return fmt.Errorf("moving file %d to trash: %w", file_number, err)
	}

	delete(s.files, file_number)
	sf.path = new_rel
	s.trash[name] = sf

	s.prune_empty_dirs(filepath.Dir(old_abs))

	store_log.Infof("Soft-deleted file %d to trash as %s.", file_number, name)
	return nil
} /* end soft_delete */

/*-------------------------------------------------------------------
 *
 * Name:        recover
 *
 * Purpose:     Bring a file back from trash.
 *
 * Inputs:	trash_name	- Name within the trash directory, as
 *				  reported by list_trash.
 *
 * Returns:	The file number, or ErrStoreNotFound, or
 *		ErrStoreConflict if that number is active again.
 *		Renumbering on recovery is deliberately not offered.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) recover(trash_name string) (uint32, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	var sf, ok = s.trash[trash_name]
	if !ok {
		return 0, fmt.Errorf("%w: trash entry %s", ErrStoreNotFound, trash_name)
	}

	var n = sf.pfh.file_number
	if _, active := s.files[n]; active {
		return 0, fmt.Errorf("%w: %d", ErrStoreConflict, n)
	}

	var new_rel = store_blob_path(n)
	var new_abs = filepath.Join(s.dir, new_rel)
	if err := os.MkdirAll(filepath.Dir(new_abs), 0o755); err != nil {
		return 0, fmt.Errorf("recovering file %d: %w", n, err)
	}
	if err := os.Rename(filepath.Join(s.dir, sf.path), new_abs); err != nil {
		return 0, fmt.Errorf("recovering file %d: %w", n, err)
	}

	delete(s.trash, trash_name)
	sf.path = new_rel
	s.files[n] = sf

	store_log.Infof("Recovered file %d from trash.", n)
	return n, nil
} /* end recover */

/*-------------------------------------------------------------------
 *
 * Name:        purge
 *
 * Purpose:     Remove a file for good, active or trashed.  Terminal.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) purge(file_number uint32) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if sf, ok := s.files[file_number]; ok {
		var abs = filepath.Join(s.dir, sf.path)
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("purging file %d: %w", file_number, err)
		}
		delete(s.files, file_number)
		s.prune_empty_dirs(filepath.Dir(abs))
		store_log.Infof("Purged active file %d.", file_number)
		return nil
	}

	for name, sf := range s.trash {
		if sf.pfh.file_number == file_number {
			if err := os.Remove(filepath.Join(s.dir, sf.path)); err != nil {
				return fmt.Errorf("purging file %d: %w", file_number, err)
			}
			delete(s.trash, name)
			store_log.Infof("Purged trashed file %d.", file_number)
			return nil
		}
	}

	return fmt.Errorf("%w: %d", ErrStoreNotFound, file_number)
} /* end purge */

func (s *store_t) list_trash() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names = make([]string, 0, len(s.trash))
	for name := range s.trash {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

/*-------------------------------------------------------------------
 *
 * Name:        increment_download_count
 *
 * Purpose:     Count a completed chunk broadcast of a file.
 *
 * Description:	The count lives in the header, so the blob is rewritten
 *		through the usual temp-and-rename.  Headers are stamped
 *		with the item at commit time, so the rewrite never
 *		changes the header length.  Readers holding the old
 *		header pointer keep seeing a consistent snapshot; the
 *		index swaps to the reparsed one.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) increment_download_count(file_number uint32) error {

	var _, blob, err = s.read_file(file_number)
	if err != nil {
		return err
	}

	var pfh, body, perr = pfh_parse(blob)
	if perr != nil {
		return fmt.Errorf("rereading file %d: %w", file_number, perr)
	}

	pfh.has_download_count = true
	pfh.download_count++

	var header = pfh.serialize()
	pfh.file_size = uint32(len(header) + len(body))
	header = pfh.serialize()

	var rel = store_blob_path(file_number)
	if err := s.write_atomic(rel, append(header, body...)); err != nil {
		return err
	}

	s.mu.Lock()
	if sf, ok := s.files[file_number]; ok {
		sf.pfh = pfh
	}
	s.mu.Unlock()

	return nil
} /* end increment_download_count */

func (s *store_t) stats() store_stats_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st store_stats_t
	st.active = len(s.files)
	st.trashed = len(s.trash)
	st.pending = len(s.pending)
	for _, sf := range s.files {
		st.active_bytes += int64(sf.pfh.file_size)
	}
	return st
}

/*-------------------------------------------------------------------
 *
 * Name:        cleanup
 *
 * Purpose:     Periodic housekeeping: age out old trash and abandoned
 *		uploads, prune directories emptied by deletions.
 *
 * Inputs:	retention	- How long trash and idle pending uploads
 *				  are kept.
 *
 * Returns:	Number of blobs removed.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) cleanup(retention time.Duration) int {

	var cutoff = time.Now().Add(-retention)
	var removed = 0

	s.mu.Lock()
	var dead_trash []string
	for name, sf := range s.trash {
		if info, err := os.Stat(filepath.Join(s.dir, sf.path)); err == nil && info.ModTime().Before(cutoff) {
			dead_trash = append(dead_trash, name)
		}
	}
	for _, name := range dead_trash {
		if os.Remove(filepath.Join(s.dir, s.trash[name].path)) == nil {
			store_log.Infof("Trash retention expired for %s.", name)
			delete(s.trash, name)
			removed++
		}
	}

	var dead_pending []uint32
	for n, t := range s.pending {
		if t.touched.Before(cutoff) {
			dead_pending = append(dead_pending, n)
		}
	}
	for _, n := range dead_pending {
		os.Remove(filepath.Join(s.dir, s.pending[n].path))
		delete(s.pending, n)
		store_log.Infof("Abandoned upload %d aged out.", n)
		removed++
	}
	s.mu.Unlock()

	// Pending blobs left over from an earlier run are not in the map.

	var stale, _ = filepath.Glob(filepath.Join(s.dir, STORE_PENDING_DIR, "*"+STORE_PENDING_EXT))
	for _, path := range stale {
		var n, err = strconv.ParseUint(strings.TrimSuffix(filepath.Base(path), STORE_PENDING_EXT), 16, 32)
		if err != nil {
			continue
		}
		s.mu.Lock()
		var _, live = s.pending[uint32(n)]
		s.mu.Unlock()
		if live {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				store_log.Infof("Stale pending blob %s removed.", filepath.Base(path))
				removed++
			}
		}
	}

	var subdirs, _ = filepath.Glob(filepath.Join(s.dir, "??", "??"))
	for _, d := range subdirs {
		s.prune_empty_dirs(d)
	}

	return removed
} /* end cleanup */

// Remove empty fan-out directories up to, but never including, the root.
func (s *store_t) prune_empty_dirs(dir string) {
	for dir != s.dir {
		var entries, err = os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
} /* end prune_empty_dirs */

/*-------------------------------------------------------------------
 *
 * Name:        write_atomic
 *
 * Purpose:     Write a blob so a crash leaves either the old content
 *		or the new, never a torn mixture.
 *
 *--------------------------------------------------------------------*/

func (s *store_t) write_atomic(rel string, data []byte) error {

	var abs = filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(rel), err)
	}

	var tmp = abs + ".tmp"
	var fp, err = os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := fp.Write(data); err != nil {
		fp.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fp.Sync(); err != nil {
		fp.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	fp.Close()

	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}

	return nil
} /* end write_atomic */
