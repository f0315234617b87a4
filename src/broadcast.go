package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Broadcast scheduler - the downlink side of a PACSAT
 *		station.
 *
 * Description:	Two kinds of frame go out from here:
 *
 *		Directory entries, PID bd, information part one
 *		serialized PACSAT file header, addressed to the
 *		broadcast callsign.  Every listener assembles its
 *		directory from these for free.
 *
 *		File chunks, PID bb:
 *
 *			flags		1 byte, bit 0 set on the chunk
 *					carrying the last body byte
 *			file number	u32 little endian
 *			offset		u32 little endian, into the body
 *			data		up to 244 bytes
 *			CRC		u16 over flags through data
 *
 *		The header is never chunked; it already went out as a
 *		directory entry.  Chunks are addressed to whoever asked
 *		for them, so an open receiver still collects everything
 *		while the requester knows which frames answer it.
 *
 *		One goroutine does all the sending, paced so the
 *		transmitter is shared fairly: half a second between
 *		directory entries, a tenth between chunks, and chunk
 *		jobs take turns in bursts so one big download cannot
 *		freeze out the rest.  Frames leave through the transmit
 *		queue at low priority; FTL0 responses overtake them.
 *
 * References:	PACSAT Broadcast Protocol
 *		Jeff Ward G0/K8KA and Harold Price NK6K
 *
 *		ARRL 9th Computer Networking Conference, 1990.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

const BCAST_DEST = "PACSAT-0" /* Directory and open chunk destination. */

const BCAST_CHUNK_DATA_LEN = 244 /* Keeps the whole frame inside 256 bytes. */

const BCAST_DIR_SPACING_MS = 500
const BCAST_CHUNK_SPACING_MS = 100

const BCAST_CHUNK_BURST = 8 /* Chunks per job before the next job gets a turn. */

const BCAST_TQ_HIGH_WATER = 16 /* Hold off while this many frames wait to transmit. */

const BCAST_FLAG_LAST = 0x01

/* One download in progress: where to, and which body ranges remain.
   The hole list coalesces repeated requests for the same bytes. */

type bcast_job_t struct {
	file_number uint32
	dest        ax25_addr_t
	ranges      *hole_list_t
}

type bcast_t struct {
	mycall       ax25_addr_t
	bcast_addr   ax25_addr_t
	store        *store_t
	dir_interval time.Duration

	mu        sync.Mutex
	dir_queue []uint32 /* File numbers awaiting a directory entry. */
	jobs      []*bcast_job_t

	nudge chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

/*------------------------------------------------------------------
 *
 * Name:	bcast_new
 *
 * Purpose:	Set up the scheduler.  Call run in its own goroutine
 *		to start transmitting.
 *
 * Inputs:	mycall		- Station callsign frames are sent from.
 *
 *		store		- Source of headers and bodies.
 *
 *		dir_interval	- How often the full directory cycle
 *				  restarts.
 *
 *------------------------------------------------------------------*/

func bcast_new(mycall string, store *store_t, dir_interval time.Duration) (*bcast_t, error) {

	var addr, err = ax25_parse_addr(mycall)
	if err != nil {
		return nil, err
	}
	var bcast_addr, _ = ax25_parse_addr(BCAST_DEST)

	return &bcast_t{
		mycall:       addr,
		bcast_addr:   bcast_addr,
		store:        store,
		dir_interval: dir_interval,
		nudge:        make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
} /* end bcast_new */

/*------------------------------------------------------------------
 *
 * Name:	announce_file
 *
 * Purpose:	Put a file's directory entry at the head of the queue,
 *		ahead of the routine cycle.  Called when an upload
 *		completes so listeners hear about it promptly.
 *
 *------------------------------------------------------------------*/

func (bc *bcast_t) announce_file(file_number uint32) {
	bc.mu.Lock()
	bc.dir_queue = append([]uint32{file_number}, bc.dir_queue...)
	bc.mu.Unlock()
	bc.wake()
} /* end announce_file */

/*------------------------------------------------------------------
 *
 * Name:	request_chunks
 *
 * Purpose:	Queue body ranges of a file for transmission to one
 *		station.  Ranges for a file and station already queued
 *		merge into the existing job.
 *
 *------------------------------------------------------------------*/

func (bc *bcast_t) request_chunks(file_number uint32, dest string, holes []hole_t) {

	var to, err = ax25_parse_addr(dest)
	if err != nil {
		bcast_log.Errorf("Cannot send chunks to \"%s\": %v", dest, err)
		return
	}

	bc.mu.Lock()
	var job *bcast_job_t
	for _, j := range bc.jobs {
		if j.file_number == file_number && j.dest == to {
			job = j
			break
		}
	}
	if job == nil {
		job = &bcast_job_t{file_number: file_number, dest: to, ranges: hole_list_new(0)}
		bc.jobs = append(bc.jobs, job)
	}
	for _, h := range holes {
		job.ranges.add(h.start, h.end)
	}
	bc.mu.Unlock()

	bc.wake()
} /* end request_chunks */

func (bc *bcast_t) wake() {
	select {
	case bc.nudge <- struct{}{}:
	default:
	}
}

func (bc *bcast_t) shutdown() {
	close(bc.stop)
	<-bc.done
}

/*------------------------------------------------------------------
 *
 * Name:	run
 *
 * Purpose:	The transmit pump.  Each turn is at most one burst of
 *		chunk work followed by one directory entry, around a
 *		periodic refill of the directory queue.
 *
 * Description:	Chunk jobs go first within a turn because somebody is
 *		actively waiting on them, but one burst per turn is all
 *		they get: any pending directory entry goes out before
 *		the next burst starts, so the directory cycle keeps its
 *		schedule no matter how much chunk traffic is queued.
 *		The cycle refills newest upload first, so a fresh
 *		listener learns about recent traffic soonest.
 *
 *------------------------------------------------------------------*/

func (bc *bcast_t) run() {

	defer close(bc.done)

	var next_cycle = time.Now() /* First cycle right away. */

	for {
		select {
		case <-bc.stop:
			return
		default:
		}

		if !time.Now().Before(next_cycle) && bc.refill_dir_queue() {
			next_cycle = time.Now().Add(bc.dir_interval)
		}

		var worked = false

		if job := bc.take_job(); job != nil {
			if !bc.serve_job(job) {
				return
			}
			worked = true
		}

		if file_number, ok := bc.take_dir_entry(); ok {
			bc.send_dir_entry(file_number)
			if !bc.pause(BCAST_DIR_SPACING_MS) {
				return
			}
			worked = true
		}

		if worked {
			continue
		}

		select {
		case <-bc.nudge:
		case <-bc.stop:
			return
		case <-time.After(time.Until(next_cycle)):
		}
	}
} /* end run */

/* Sleep that cuts short on shutdown.  False means stop now. */

func (bc *bcast_t) pause(ms int) bool {
	select {
	case <-bc.stop:
		return false
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return true
	}
}

/* Wait for the transmit queue to drain below the high water mark so
   we pace the channel, not pile up frames in memory. */

func (bc *bcast_t) drain_tq() bool {
	for tq_count(TQ_PRIO_1_LO, false) > BCAST_TQ_HIGH_WATER {
		if !bc.pause(BCAST_CHUNK_SPACING_MS) {
			return false
		}
	}
	return true
}

func (bc *bcast_t) take_job() *bcast_job_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.jobs) == 0 {
		return nil
	}
	var job = bc.jobs[0]
	bc.jobs = bc.jobs[1:]
	return job
}

func (bc *bcast_t) take_dir_entry() (uint32, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.dir_queue) == 0 {
		return 0, false
	}
	var n = bc.dir_queue[0]
	bc.dir_queue = bc.dir_queue[1:]
	return n, true
}

/* Queues every active file for the next directory cycle, newest
   upload first.  Returns false while the previous cycle is still
   draining; the next one waits its turn rather than stacking
   duplicate entries behind a slow channel. */
func (bc *bcast_t) refill_dir_queue() bool {
	bc.mu.Lock()
	var pending = len(bc.dir_queue)
	bc.mu.Unlock()
	if pending > 0 {
		return false
	}

	var files = bc.store.list(list_opts_t{})
	if len(files) == 0 {
		return true
	}

	bc.mu.Lock()
	for _, p := range files {
		bc.dir_queue = append(bc.dir_queue, p.file_number)
	}
	bc.mu.Unlock()

	bcast_log.Debugf("Directory cycle: %d entries queued.", len(files))
	return true
} /* end refill_dir_queue */

/*------------------------------------------------------------------
 *
 * Name:	send_dir_entry
 *
 * Purpose:	One directory broadcast frame: the file's serialized
 *		header and nothing else.
 *
 *		A file that went to trash between queueing and now is
 *		skipped without comment.  Broadcasting a header for a
 *		file nobody can download would only waste airtime.
 *
 *------------------------------------------------------------------*/

func (bc *bcast_t) send_dir_entry(file_number uint32) {

	var pfh, ok = bc.store.lookup(file_number)
	if !ok {
		return
	}

	var pp = &ax25_packet_t{
		dest: bc.bcast_addr,
		src:  bc.mycall,
		pid:  PID_PACSAT_DIR,
		info: pfh.serialize(),
	}

	var frame, err = ax25_pack(pp)
	if err != nil {
		bcast_log.Errorf("Cannot build directory entry for file %d: %v", file_number, err)
		return
	}

	bcast_log.Debugf("Directory entry for file %d (%s).", file_number, pfh)
	tq_append_frame(0, TQ_PRIO_1_LO, frame)
} /* end send_dir_entry */

/*------------------------------------------------------------------
 *
 * Name:	serve_job
 *
 * Purpose:	Send up to one burst of chunks for a download job,
 *		then requeue it if ranges remain.
 *
 * Returns:	False only on shutdown.
 *
 * Description:	The body is read fresh each turn; a file purged while
 *		its job waited just ends the job.  When the last range
 *		is filled the file's download count goes up, which is
 *		what the directory shows other stations as popularity.
 *
 *------------------------------------------------------------------*/

func (bc *bcast_t) serve_job(job *bcast_job_t) bool {

	var pfh, blob, err = bc.store.read_file(job.file_number)
	if err != nil {
		bcast_log.Infof("Dropping chunk job for file %d: %v", job.file_number, err)
		return true
	}
	var body = blob[pfh.body_offset:]

	/* Requests can name ranges past the end of the body. */
	job.ranges.clip(uint32(len(body)))

	for i := 0; i < BCAST_CHUNK_BURST; i++ {
		var h, ok = job.ranges.first()
		if !ok {
			break
		}

		var n = h.end - h.start
		if n > BCAST_CHUNK_DATA_LEN {
			n = BCAST_CHUNK_DATA_LEN
		}
		var data = body[h.start : h.start+n]
		var last = h.start+n == uint32(len(body))

		if !bc.drain_tq() {
			return false
		}
		bc.send_chunk(job, h.start, data, last)
		job.ranges.fill(h.start, int(n))

		if !bc.pause(BCAST_CHUNK_SPACING_MS) {
			return false
		}
	}

	if !job.ranges.empty() {
		bc.mu.Lock()
		bc.jobs = append(bc.jobs, job)
		bc.mu.Unlock()
		return true
	}

	bcast_log.Infof("Chunk job for file %d to %s complete.", job.file_number, job.dest)
	log_activity("SENT", job.dest.String(), job.file_number, fmt.Sprintf("%d body bytes", len(body)))

	if err := bc.store.increment_download_count(job.file_number); err != nil {
		bcast_log.Warnf("Cannot count download of file %d: %v", job.file_number, err)
	}

	return true
} /* end serve_job */

func (bc *bcast_t) send_chunk(job *bcast_job_t, offset uint32, data []byte, last bool) {

	var info = make([]byte, 0, 1+4+4+len(data)+2)

	var flags byte
	if last {
		flags |= BCAST_FLAG_LAST
	}
	info = append(info, flags)
	info = binary.LittleEndian.AppendUint32(info, job.file_number)
	info = binary.LittleEndian.AppendUint32(info, offset)
	info = append(info, data...)
	info = binary.LittleEndian.AppendUint16(info, fcs_calc(info))

	var pp = &ax25_packet_t{
		dest: job.dest,
		src:  bc.mycall,
		pid:  PID_PACSAT_FILE,
		info: info,
	}

	var frame, err = ax25_pack(pp)
	if err != nil {
		bcast_log.Errorf("Cannot build chunk for file %d: %v", job.file_number, err)
		return
	}

	bcast_log.Debugf("Chunk of file %d to %s, offset %d, %d bytes%s.",
		job.file_number, job.dest, offset, len(data), IfThenElse(last, ", last", ""))
	tq_append_frame(0, TQ_PRIO_1_LO, frame)
} /* end send_chunk */
