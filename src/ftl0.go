package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	FTL0 - the PACSAT file transfer protocol, server side.
 *
 * Description:	FTL0 packets ride in UI frames with PID bc, addressed
 *		to the station callsign.  Each packet is a two byte
 *		header and up to 2047 bytes of data:
 *
 *			byte 0:	length, low 8 bits
 *			byte 1:	length bits 8-10 in the top 3 bits,
 *				packet type in the low 5
 *
 *		An upload starts with UPLOAD_CMD naming a declared size
 *		(file number 0 for a new file, a previous number to
 *		resume), continues with DATA packets carrying an offset
 *		and bytes in any order, and finishes with DATA_END
 *		carrying a CRC over the whole assembled file.  The
 *		uploaded bytes are a complete PACSAT file, header
 *		first, and nothing is accepted into the store until
 *		the CRC, the header checksum, and the declared size
 *		all agree.
 *
 *		Downloads are a request, not a transfer: DOWNLOAD_CMD
 *		names a file and the body ranges still missing, and the
 *		broadcast scheduler fills them with directed chunk
 *		frames.  An empty range list asks whether the file is
 *		complete, answered with length and CRC of the body.
 *
 *		Everything here runs on the receive dispatch thread,
 *		the idle sweep included, so session state needs no
 *		locking.
 *
 * References:	PACSAT Protocol: File Transfer Level 0
 *		Jeff Ward G0/K8KA and Harold Price NK6K
 *
 *		ARRL 9th Computer Networking Conference, 1990.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const FTL0_TYPE_DATA = 0
const FTL0_TYPE_DATA_END = 1
const FTL0_TYPE_UPLOAD_CMD = 3
const FTL0_TYPE_UL_GO_RESP = 4
const FTL0_TYPE_UL_ERROR_RESP = 5
const FTL0_TYPE_UL_ACK_RESP = 6
const FTL0_TYPE_UL_NAK_RESP = 7
const FTL0_TYPE_DOWNLOAD_CMD = 8
const FTL0_TYPE_DL_ERROR_RESP = 9
const FTL0_TYPE_DL_COMPLETED_RESP = 10

const FTL0_MAX_DATA_LEN = 2047 /* 11 bit length field. */

/*
 * Error codes carried in UL_ERROR_RESP and DL_ERROR_RESP.
 * The numbering is from the published protocol; gaps are codes for
 * conditions that cannot arise in a connectionless server.
 */

const FTL0_ERR_ILL_FORMED = 1
const FTL0_ERR_BAD_CONTINUE = 2
const FTL0_ERR_SERVER_FSYS = 3
const FTL0_ERR_NO_SUCH_FILE = 4
const FTL0_ERR_FILE_COMPLETE = 12
const FTL0_ERR_NO_ROOM = 13
const FTL0_ERR_BAD_HEADER = 14
const FTL0_ERR_HEADER_CHECK = 15
const FTL0_ERR_BODY_CHECK = 16

const FTL0_MAX_FILE_SIZE = 20_000_000 /* Largest upload accepted. */

const FTL0_SESSION_TIMEOUT = 300 * time.Second

var ErrFTL0Truncated = errors.New("FTL0 packet extends past the frame")

/*------------------------------------------------------------------
 *
 * Name:	ftl0_encode / ftl0_decode
 *
 * Purpose:	The two byte packet header.
 *
 *		Several packets can share one frame; decode returns
 *		what follows the first so the caller can loop.
 *
 *------------------------------------------------------------------*/

func ftl0_encode(ptype int, payload []byte) []byte {
	Assert(len(payload) <= FTL0_MAX_DATA_LEN)
	Assert(ptype >= 0 && ptype <= 0x1f)

	var pkt = make([]byte, 0, 2+len(payload))
	pkt = append(pkt, byte(len(payload)&0xff), byte((len(payload)>>8)&0x07)<<5|byte(ptype&0x1f))
	pkt = append(pkt, payload...)
	return pkt
} /* end ftl0_encode */

func ftl0_decode(data []byte) (ptype int, payload []byte, rest []byte, err error) {
	if len(data) < 2 {
		return 0, nil, nil, fmt.Errorf("%w: %d bytes is not even a header", ErrFTL0Truncated, len(data))
	}

	var length = int(data[0]) | int(data[1]>>5&0x07)<<8
	ptype = int(data[1] & 0x1f)

	if len(data) < 2+length {
		return 0, nil, nil, fmt.Errorf("%w: header says %d data bytes, %d remain", ErrFTL0Truncated, length, len(data)-2)
	}

	return ptype, data[2 : 2+length], data[2+length:], nil
} /* end ftl0_decode */

func ftl0_type_text(ptype int) string {
	switch ptype {
	case FTL0_TYPE_DATA:
		return "DATA"
	case FTL0_TYPE_DATA_END:
		return "DATA_END"
	case FTL0_TYPE_UPLOAD_CMD:
		return "UPLOAD_CMD"
	case FTL0_TYPE_UL_GO_RESP:
		return "UL_GO_RESP"
	case FTL0_TYPE_UL_ERROR_RESP:
		return "UL_ERROR_RESP"
	case FTL0_TYPE_UL_ACK_RESP:
		return "UL_ACK_RESP"
	case FTL0_TYPE_UL_NAK_RESP:
		return "UL_NAK_RESP"
	case FTL0_TYPE_DOWNLOAD_CMD:
		return "DOWNLOAD_CMD"
	case FTL0_TYPE_DL_ERROR_RESP:
		return "DL_ERROR_RESP"
	case FTL0_TYPE_DL_COMPLETED_RESP:
		return "DL_COMPLETED_RESP"
	}
	return fmt.Sprintf("type %d", ptype)
} /* end ftl0_type_text */

func ftl0_err_text(code byte) string {
	switch code {
	case FTL0_ERR_ILL_FORMED:
		return "ill formed command"
	case FTL0_ERR_BAD_CONTINUE:
		return "no session open, or data does not continue it"
	case FTL0_ERR_SERVER_FSYS:
		return "server filesystem trouble"
	case FTL0_ERR_NO_SUCH_FILE:
		return "no such file"
	case FTL0_ERR_FILE_COMPLETE:
		return "file is already complete"
	case FTL0_ERR_NO_ROOM:
		return "no room for a file of that size"
	case FTL0_ERR_BAD_HEADER:
		return "file header rejected"
	case FTL0_ERR_HEADER_CHECK:
		return "file header fails its checksum"
	case FTL0_ERR_BODY_CHECK:
		return "assembled file fails its CRC"
	}
	return fmt.Sprintf("error %d", code)
} /* end ftl0_err_text */

/*
 * Hole lists on the wire are pairs of offset and length, both u32
 * little endian.  Internally a hole is a half open range.
 */

func ftl0_holes_encode(holes []hole_t) []byte {
	var out = make([]byte, 0, 8*len(holes))
	for _, h := range holes {
		out = binary.LittleEndian.AppendUint32(out, h.start)
		out = binary.LittleEndian.AppendUint32(out, h.end-h.start)
	}
	return out
}

func ftl0_holes_decode(data []byte) ([]hole_t, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("hole list of %d bytes is not a whole number of offset/length pairs", len(data))
	}
	var holes []hole_t
	for i := 0; i < len(data); i += 8 {
		var offset = binary.LittleEndian.Uint32(data[i:])
		var length = binary.LittleEndian.Uint32(data[i+4:])
		if length == 0 {
			return nil, fmt.Errorf("hole list has a zero length range at offset %d", offset)
		}
		if uint64(offset)+uint64(length) > 0xffffffff {
			return nil, fmt.Errorf("hole list range at %d wraps around", offset)
		}
		holes = append(holes, hole_t{start: offset, end: offset + length})
	}
	return holes, nil
}

/* One station's upload in progress. */

type ftl0_session_t struct {
	source string
	t      *transfer_t
	last   time.Time
}

type ftl0_t struct {
	mycall      ax25_addr_t
	store       *store_t
	bcast       *bcast_t
	max_size    uint32
	timeout     time.Duration
	default_ext string /* For uploads that arrive without a name. */

	sessions map[string]*ftl0_session_t /* Keyed by uploader callsign. */
}

/*------------------------------------------------------------------
 *
 * Name:	ftl0_new
 *
 * Purpose:	Set up the FTL0 server.
 *
 * Inputs:	mycall	- Station callsign responses are sent from.
 *
 *		store	- Where completed uploads go.
 *
 *		bc	- Broadcast scheduler, for directed downloads.
 *			  nil is allowed and turns DOWNLOAD_CMD with
 *			  holes into a quiet no-op, which the tests use.
 *
 *------------------------------------------------------------------*/

func ftl0_new(mycall string, store *store_t, bc *bcast_t) (*ftl0_t, error) {
	var addr, err = ax25_parse_addr(mycall)
	if err != nil {
		return nil, err
	}

	return &ftl0_t{
		mycall:      addr,
		store:       store,
		bcast:       bc,
		max_size:    FTL0_MAX_FILE_SIZE,
		timeout:     FTL0_SESSION_TIMEOUT,
		default_ext: DEFAULT_FILE_EXT,
		sessions:    make(map[string]*ftl0_session_t),
	}, nil
} /* end ftl0_new */

/*------------------------------------------------------------------
 *
 * Name:	handle_frame
 *
 * Purpose:	Process one received FTL0 frame.
 *
 * Inputs:	pp	- UI frame with PID bc, already checked to be
 *			  addressed to us.
 *
 * Description:	A frame can carry several packets back to back.  The
 *		first ill-formed one draws UL_ERROR_RESP 1 and ends
 *		the frame; whatever parsed before it already took
 *		effect.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) handle_frame(pp *ax25_packet_t) {

	var from = pp.src.String()
	var data = pp.info

	for len(data) > 0 {
		var ptype, payload, rest, err = ftl0_decode(data)
		if err != nil {
			ftl0_log.Debugf("Ill-formed packet from %s: %v", from, err)
			e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
			return
		}
		data = rest

		ftl0_log.Debugf("%s from %s, %d data bytes.", ftl0_type_text(ptype), from, len(payload))

		switch ptype {
		case FTL0_TYPE_UPLOAD_CMD:
			e.handle_upload_cmd(from, payload)
		case FTL0_TYPE_DATA:
			e.handle_data(from, payload)
		case FTL0_TYPE_DATA_END:
			e.handle_data_end(from, payload)
		case FTL0_TYPE_DOWNLOAD_CMD:
			e.handle_download_cmd(from, payload)
		default:
			/* Response types coming at a server are somebody
			   else's traffic.  Not an error, just not ours. */
			ftl0_log.Debugf("Ignoring %s from %s.", ftl0_type_text(ptype), from)
		}
	}
} /* end handle_frame */

/*------------------------------------------------------------------
 *
 * Name:	handle_upload_cmd
 *
 * Purpose:	UPLOAD_CMD: file number u32 (0 for new), declared
 *		size u32.
 *
 * Description:	A new upload allocates a file number and answers
 *		UL_GO_RESP with it and continue offset 0.  A resume
 *		re-attaches to the pending transfer and answers with
 *		the first missing offset, so the uploader can skip
 *		what already arrived.  Starting a new command while
 *		one is open abandons the old session; its pending
 *		bytes stay resumable until they age out.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) handle_upload_cmd(from string, payload []byte) {

	if len(payload) != 8 {
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
		return
	}

	var file_number = binary.LittleEndian.Uint32(payload[0:4])
	var size = binary.LittleEndian.Uint32(payload[4:8])

	if file_number == 0 {

		if size == 0 {
			e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
			return
		}
		if size > e.max_size {
			ftl0_log.Infof("Refusing %d byte upload from %s, cap is %d.", size, from, e.max_size)
			e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_NO_ROOM})
			return
		}

		var t, err = e.store.begin_receive(from, size)
		if err != nil {
			ftl0_log.Errorf("Cannot start upload for %s: %v", from, err)
			e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
			return
		}

		e.sessions[from] = &ftl0_session_t{source: from, t: t, last: time.Now()}

		var resp = make([]byte, 8)
		binary.LittleEndian.PutUint32(resp[0:4], t.file_number)
		binary.LittleEndian.PutUint32(resp[4:8], 0)
		e.send(from, FTL0_TYPE_UL_GO_RESP, resp)
		return
	}

	/* Resume. */

	var t, err = e.store.resume_receive(file_number, from)
	switch {
	case errors.Is(err, ErrStoreConflict):
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_FILE_COMPLETE})
		return
	case errors.Is(err, ErrStoreNotFound):
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_NO_SUCH_FILE})
		return
	case errors.Is(err, ErrStoreForbidden):
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BAD_CONTINUE})
		return
	case err != nil:
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
		return
	}

	if size != t.size {
		ftl0_log.Infof("Resume of %d from %s declares %d bytes, transfer is %d.", file_number, from, size, t.size)
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BAD_CONTINUE})
		return
	}

	e.sessions[from] = &ftl0_session_t{source: from, t: t, last: time.Now()}

	var cont = t.size
	if h, ok := t.holes.first(); ok {
		cont = h.start
	}

	ftl0_log.Infof("Resuming upload %d for %s at offset %d.", file_number, from, cont)

	var resp = make([]byte, 8)
	binary.LittleEndian.PutUint32(resp[0:4], file_number)
	binary.LittleEndian.PutUint32(resp[4:8], cont)
	e.send(from, FTL0_TYPE_UL_GO_RESP, resp)
} /* end handle_upload_cmd */

/*------------------------------------------------------------------
 *
 * Name:	handle_data
 *
 * Purpose:	DATA: offset u32, then bytes.
 *
 * Description:	Chunks accumulate silently; there is no per-chunk
 *		acknowledgement in the protocol.  A chunk covering
 *		bytes already received is the uplink hiccuping, not
 *		an error.  One reaching past the declared size is.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) handle_data(from string, payload []byte) {

	if len(payload) < 4 {
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
		return
	}

	var sess = e.sessions[from]
	if sess == nil {
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BAD_CONTINUE})
		return
	}
	sess.last = time.Now()

	var offset = binary.LittleEndian.Uint32(payload[0:4])

	var err = e.store.write_chunk(sess.t, offset, payload[4:])
	switch {
	case errors.Is(err, ErrStoreOverlap):
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BAD_CONTINUE})
	case err != nil:
		ftl0_log.Errorf("Cannot store chunk at %d for %s: %v", offset, from, err)
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
	}
} /* end handle_data */

/*------------------------------------------------------------------
 *
 * Name:	handle_data_end
 *
 * Purpose:	DATA_END: CRC u16 over the whole assembled file.
 *
 * Description:	The decision point of the whole upload.
 *
 *		Holes left		UL_NAK_RESP with the list, the
 *					session stays open.
 *		CRC mismatch		error 16, session stays open so
 *					the uploader can resend chunks.
 *		Header unreadable	error 14, upload rejected.
 *		Header checksum bad	error 15, upload rejected.
 *		Size disagrees		error 14, upload rejected.
 *
 *		Rejection is final: if the CRC matched, the bytes are
 *		exactly what the uploader sent, so sending them again
 *		cannot help.
 *
 *		On success the header is restamped with the assigned
 *		file number and upload time, given a derived name if it
 *		came without one, committed, and answered with
 *		UL_ACK_RESP.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) handle_data_end(from string, payload []byte) {

	if len(payload) != 2 {
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
		return
	}

	var sess = e.sessions[from]
	if sess == nil {
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BAD_CONTINUE})
		return
	}
	sess.last = time.Now()

	if !sess.t.holes.empty() {
		ftl0_log.Infof("DATA_END from %s with %d bytes missing: %v", from, sess.t.holes.remaining(), sess.t.holes)
		e.send(from, FTL0_TYPE_UL_NAK_RESP, ftl0_holes_encode(sess.t.holes.holes))
		return
	}

	var blob, err = e.store.pending_blob(sess.t)
	if err != nil {
		ftl0_log.Errorf("Cannot read back upload from %s: %v", from, err)
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
		return
	}

	var want_crc = binary.LittleEndian.Uint16(payload)
	if got := fcs_calc(blob); got != want_crc {
		ftl0_log.Infof("Upload from %s fails its CRC, %04x against %04x claimed.", from, got, want_crc)
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_BODY_CHECK})
		return
	}

	var pfh, body, perr = pfh_parse(blob)
	if perr != nil {
		var code byte = FTL0_ERR_BAD_HEADER
		if errors.Is(perr, ErrHeaderChecksum) {
			code = FTL0_ERR_HEADER_CHECK
		}
		ftl0_log.Infof("Upload from %s rejected, bad header: %v", from, perr)
		e.reject(from, sess, code)
		return
	}

	if pfh.file_size != sess.t.size {
		ftl0_log.Infof("Upload from %s rejected, header says %d bytes but %d were declared.", from, pfh.file_size, sess.t.size)
		e.reject(from, sess, FTL0_ERR_BAD_HEADER)
		return
	}

	/* A nameless upload gets an 8.3 name derived from its number so
	   directory listings always have something to show. */
	if pfh.file_name == "" {
		pfh.file_name = fmt.Sprintf("F%07x", sess.t.file_number)
		if pfh.file_ext == "" {
			pfh.file_ext = e.default_ext
		}
	}

	var header = store_finalize_header(pfh, sess.t.file_number, len(body))
	var final = append(header, body...)

	if err := e.store.commit_receive(sess.t, pfh, final); err != nil {
		ftl0_log.Errorf("Cannot commit upload from %s: %v", from, err)
		e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
		return
	}

	delete(e.sessions, from)
	e.send(from, FTL0_TYPE_UL_ACK_RESP, nil)
	log_activity("UPLOAD", from, pfh.file_number, fmt.Sprintf("%d bytes", len(final)))

	if e.bcast != nil {
		e.bcast.announce_file(pfh.file_number)
	}
} /* end handle_data_end */

func (e *ftl0_t) reject(from string, sess *ftl0_session_t, code byte) {
	e.store.reject_receive(sess.t)
	delete(e.sessions, from)
	e.send(from, FTL0_TYPE_UL_ERROR_RESP, []byte{code})
}

/*------------------------------------------------------------------
 *
 * Name:	handle_download_cmd
 *
 * Purpose:	DOWNLOAD_CMD: file number u32, then the hole list the
 *		requester still needs, as body ranges.
 *
 * Description:	Ranges go to the broadcast scheduler, which sends
 *		directed chunk frames between its other work.  An
 *		empty list means "have I got it all?" and draws
 *		DL_COMPLETED_RESP with the body length and CRC.
 *
 *		A trashed file is indistinguishable from one that
 *		never existed.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) handle_download_cmd(from string, payload []byte) {

	if len(payload) < 4 {
		e.send(from, FTL0_TYPE_DL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
		return
	}

	var file_number = binary.LittleEndian.Uint32(payload[0:4])

	var holes, herr = ftl0_holes_decode(payload[4:])
	if herr != nil {
		ftl0_log.Debugf("Bad hole list from %s: %v", from, herr)
		e.send(from, FTL0_TYPE_DL_ERROR_RESP, []byte{FTL0_ERR_ILL_FORMED})
		return
	}

	var pfh, ok = e.store.lookup(file_number)
	if !ok {
		e.send(from, FTL0_TYPE_DL_ERROR_RESP, []byte{FTL0_ERR_NO_SUCH_FILE})
		return
	}

	if len(holes) == 0 {
		var _, blob, err = e.store.read_file(file_number)
		if err != nil {
			ftl0_log.Errorf("Cannot read file %d: %v", file_number, err)
			e.send(from, FTL0_TYPE_DL_ERROR_RESP, []byte{FTL0_ERR_SERVER_FSYS})
			return
		}
		var body = blob[pfh.body_offset:]

		var resp = make([]byte, 6)
		binary.LittleEndian.PutUint32(resp[0:4], uint32(len(body)))
		binary.LittleEndian.PutUint16(resp[4:6], fcs_calc(body))
		e.send(from, FTL0_TYPE_DL_COMPLETED_RESP, resp)
		return
	}

	ftl0_log.Infof("Download request from %s for file %d, %d ranges.", from, file_number, len(holes))
	log_activity("DOWNLOAD", from, file_number, fmt.Sprintf("%d ranges", len(holes)))

	if e.bcast != nil {
		e.bcast.request_chunks(file_number, from, holes)
	}
} /* end handle_download_cmd */

/*------------------------------------------------------------------
 *
 * Name:	sweep
 *
 * Purpose:	Drop sessions that have gone quiet.  Driven by the
 *		periodic tick on the dispatch thread.
 *
 *		Only the session goes; the partial upload stays
 *		pending so the station can resume when the satellite
 *		comes back over the horizon.
 *
 *------------------------------------------------------------------*/

func (e *ftl0_t) sweep() {
	var cutoff = time.Now().Add(-e.timeout)

	for from, sess := range e.sessions {
		if sess.last.Before(cutoff) {
			ftl0_log.Infof("Upload session for %s idle for %v, dropping.  File %d stays resumable.",
				from, e.timeout, sess.t.file_number)
			delete(e.sessions, from)
		}
	}
} /* end sweep */

/* Build the response frame and queue it at transmit priority 0 so
   protocol answers go out ahead of routine broadcasts. */

func (e *ftl0_t) send(dest string, ptype int, payload []byte) {

	var to, err = ax25_parse_addr(dest)
	if err != nil {
		ftl0_log.Errorf("Cannot answer \"%s\": %v", dest, err)
		return
	}

	var pp = &ax25_packet_t{
		dest: to,
		src:  e.mycall,
		pid:  PID_FTL0,
		info: ftl0_encode(ptype, payload),
	}

	var frame, packErr = ax25_pack(pp)
	if packErr != nil {
		ftl0_log.Errorf("Cannot build %s for %s: %v", ftl0_type_text(ptype), dest, packErr)
		return
	}

	ftl0_log.Debugf("%s to %s, %d data bytes.", ftl0_type_text(ptype), dest, len(payload))
	tq_append_frame(0, TQ_PRIO_0_HI, frame)
} /* end send */
