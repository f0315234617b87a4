package pacsat

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFTL0EncodeDecode(t *testing.T) {
	var payload = []byte("hello")
	var pkt = ftl0_encode(FTL0_TYPE_DATA, payload)
	assert.Equal(t, byte(5), pkt[0])
	assert.Equal(t, byte(FTL0_TYPE_DATA), pkt[1])

	var ptype, got, rest, err = ftl0_decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, FTL0_TYPE_DATA, ptype)
	assert.Equal(t, payload, got)
	assert.Empty(t, rest)

	/* Length uses 11 bits, split across the two header bytes. */
	var big = make([]byte, FTL0_MAX_DATA_LEN)
	pkt = ftl0_encode(FTL0_TYPE_DATA_END, big)
	assert.Equal(t, byte(0xff), pkt[0])
	assert.Equal(t, byte(7<<5|FTL0_TYPE_DATA_END), pkt[1])

	ptype, got, _, err = ftl0_decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, FTL0_TYPE_DATA_END, ptype)
	assert.Len(t, got, FTL0_MAX_DATA_LEN)
}

func TestFTL0DecodeSeveralPackets(t *testing.T) {
	var data = ftl0_encode(FTL0_TYPE_UPLOAD_CMD, []byte("12345678"))
	data = append(data, ftl0_encode(FTL0_TYPE_DATA_END, []byte("cc"))...)

	var ptype, payload, rest, err = ftl0_decode(data)
	require.NoError(t, err)
	assert.Equal(t, FTL0_TYPE_UPLOAD_CMD, ptype)
	assert.Len(t, payload, 8)

	ptype, payload, rest, err = ftl0_decode(rest)
	require.NoError(t, err)
	assert.Equal(t, FTL0_TYPE_DATA_END, ptype)
	assert.Equal(t, []byte("cc"), payload)
	assert.Empty(t, rest)
}

func TestFTL0DecodeErrors(t *testing.T) {
	var _, _, _, err = ftl0_decode([]byte{0x05})
	assert.ErrorIs(t, err, ErrFTL0Truncated)

	/* Header claims more data than the frame holds. */
	_, _, _, err = ftl0_decode([]byte{0x10, FTL0_TYPE_DATA, 1, 2, 3})
	assert.ErrorIs(t, err, ErrFTL0Truncated)
}

func TestFTL0HolesCodec(t *testing.T) {
	var holes = []hole_t{{start: 0, end: 10}, {start: 100, end: 164}}

	var wire = ftl0_holes_encode(holes)
	require.Len(t, wire, 16)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(wire[0:4]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(wire[4:8]), "pairs are offset and length")
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(wire[8:12]))
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(wire[12:16]))

	var back, err = ftl0_holes_decode(wire)
	require.NoError(t, err)
	assert.Equal(t, holes, back)

	_, err = ftl0_holes_decode(wire[:7])
	assert.Error(t, err, "not a whole number of pairs")

	var zero = make([]byte, 8)
	_, err = ftl0_holes_decode(zero)
	assert.Error(t, err, "zero length range")

	var wrap = make([]byte, 8)
	binary.LittleEndian.PutUint32(wrap[0:4], 0xffffffff)
	binary.LittleEndian.PutUint32(wrap[4:8], 2)
	_, err = ftl0_holes_decode(wrap)
	assert.Error(t, err, "range wraps around 32 bits")
}

func TestFTL0ErrText(t *testing.T) {
	assert.Equal(t, "no such file", ftl0_err_text(FTL0_ERR_NO_SUCH_FILE))
	assert.Equal(t, "error 99", ftl0_err_text(99))
}

/*
 * Server tests.  The engine queues its answers on the transmit queue
 * as complete AX.25 frames, so each test resets the queue, pokes
 * frames in, and unpacks whatever came out.
 */

type test_resp_t struct {
	ptype   int
	payload []byte
}

func test_ftl0(t *testing.T) *ftl0_t {
	t.Helper()
	tq_init()
	var e, err = ftl0_new("PACSAT-1", test_store(t), nil)
	require.NoError(t, err)
	return e
}

func test_ftl0_frame(t *testing.T, e *ftl0_t, from string, packets ...[]byte) {
	t.Helper()
	var src, err = ax25_parse_addr(from)
	require.NoError(t, err)

	var info []byte
	for _, p := range packets {
		info = append(info, p...)
	}
	e.handle_frame(&ax25_packet_t{dest: e.mycall, src: src, pid: PID_FTL0, info: info}) //nolint:exhaustruct
}

func test_ftl0_drain(t *testing.T) []test_resp_t {
	t.Helper()
	var out []test_resp_t
	for {
		var frame = tq_remove(TQ_PRIO_0_HI)
		if frame == nil {
			break
		}
		var pp, err = ax25_unpack(frame)
		require.NoError(t, err)
		require.Equal(t, byte(PID_FTL0), pp.pid)

		var data = pp.info
		for len(data) > 0 {
			var ptype, payload, rest, derr = ftl0_decode(data)
			require.NoError(t, derr)
			out = append(out, test_resp_t{ptype: ptype, payload: append([]byte(nil), payload...)})
			data = rest
		}
	}
	return out
}

func test_ftl0_upload_cmd(file_number uint32, size uint32) []byte {
	var p = make([]byte, 8)
	binary.LittleEndian.PutUint32(p[0:4], file_number)
	binary.LittleEndian.PutUint32(p[4:8], size)
	return ftl0_encode(FTL0_TYPE_UPLOAD_CMD, p)
}

func test_ftl0_data(offset uint32, data []byte) []byte {
	var p = make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(p[0:4], offset)
	copy(p[4:], data)
	return ftl0_encode(FTL0_TYPE_DATA, p)
}

func test_ftl0_data_end(crc uint16) []byte {
	var p = make([]byte, 2)
	binary.LittleEndian.PutUint16(p, crc)
	return ftl0_encode(FTL0_TYPE_DATA_END, p)
}

/* A well formed upload: PACSAT file header first, body after, sized
   and checksummed the way a client would send it. */

func test_upload_blob(body []byte) []byte {
	var p = test_pfh()
	p.file_number = 0 /* Not assigned yet. */
	p.file_size = uint32(len(p.serialize()) + len(body))
	return append(p.serialize(), body...)
}

func TestFTL0UploadComplete(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob([]byte("A fresh bulletin for everybody."))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	require.Equal(t, FTL0_TYPE_UL_GO_RESP, resp[0].ptype)
	require.Len(t, resp[0].payload, 8)
	var assigned = binary.LittleEndian.Uint32(resp[0].payload[0:4])
	assert.NotZero(t, assigned)
	assert.Zero(t, binary.LittleEndian.Uint32(resp[0].payload[4:8]), "new upload continues from 0")

	/* Two chunks, then the CRC over the whole blob. */
	var half = len(blob) / 2
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob[:half]))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(uint32(half), blob[half:]))
	assert.Empty(t, test_ftl0_drain(t), "chunks are not acknowledged individually")

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))

	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[0].ptype)

	/* Committed with the assigned number stamped in. */
	var pfh, ok = e.store.lookup(assigned)
	require.True(t, ok)
	assert.Equal(t, assigned, pfh.file_number)
	assert.Equal(t, "NOTES", pfh.file_name)
	assert.NotZero(t, pfh.upload_time)
	assert.Equal(t, "G1ABC", pfh.source, "the header source field is the author, not the uplink station")

	var _, stored, err = e.store.read_file(assigned)
	require.NoError(t, err)
	var q, body, perr = pfh_parse(stored)
	require.NoError(t, perr)
	assert.Equal(t, []byte("A fresh bulletin for everybody."), body)
	assert.Equal(t, uint32(len(stored)), q.file_size)

	assert.Empty(t, e.sessions, "session closed after the ack")
}

func TestFTL0UploadWholeExchangeInOneFrame(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob([]byte("short"))

	test_ftl0_frame(t, e, "G0ABC",
		test_ftl0_upload_cmd(0, uint32(len(blob))),
		test_ftl0_data(0, blob),
		test_ftl0_data_end(fcs_calc(blob)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 2)
	assert.Equal(t, FTL0_TYPE_UL_GO_RESP, resp[0].ptype)
	assert.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[1].ptype)
}

func TestFTL0UploadNamelessGetsName(t *testing.T) {
	var e = test_ftl0(t)

	var p = test_pfh()
	p.file_number = 0
	p.file_name = ""
	p.file_ext = ""
	var body = []byte("anonymous bytes")
	p.file_size = uint32(len(p.serialize()) + len(body))
	var blob = append(p.serialize(), body...)

	test_ftl0_frame(t, e, "G0ABC",
		test_ftl0_upload_cmd(0, uint32(len(blob))),
		test_ftl0_data(0, blob),
		test_ftl0_data_end(fcs_calc(blob)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 2)
	require.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[1].ptype)
	var assigned = binary.LittleEndian.Uint32(resp[0].payload[0:4])

	var pfh, ok = e.store.lookup(assigned)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("F%07x", assigned), pfh.file_name)
	assert.Equal(t, DEFAULT_FILE_EXT, pfh.file_ext)
}

func TestFTL0UploadNakListsHoles(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob(make([]byte, 100))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	test_ftl0_drain(t)

	/* Send the front and the back, leaving a gap. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob[:20]))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(50, blob[50:]))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	require.Equal(t, FTL0_TYPE_UL_NAK_RESP, resp[0].ptype)

	var holes, err = ftl0_holes_decode(resp[0].payload)
	require.NoError(t, err)
	assert.Equal(t, []hole_t{{start: 20, end: 50}}, holes)

	/* Fill the hole, try again. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(20, blob[20:50]))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))

	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[0].ptype)
}

func TestFTL0UploadBadCRCKeepsSession(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob([]byte("body"))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	test_ftl0_drain(t)
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)+1))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ERROR_RESP, resp[0].ptype)
	assert.Equal(t, []byte{FTL0_ERR_BODY_CHECK}, resp[0].payload)

	/* The session survives, so a retry with the right CRC succeeds
	   without starting over. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[0].ptype)
}

func TestFTL0UploadRejectsGarbageHeader(t *testing.T) {
	var e = test_ftl0(t)
	var blob = []byte("this is not a PACSAT file at all, not even close")

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	test_ftl0_drain(t)
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ERROR_RESP, resp[0].ptype)
	assert.Equal(t, []byte{FTL0_ERR_BAD_HEADER}, resp[0].payload)

	/* Rejection is final.  No session, no pending upload. */
	assert.Empty(t, e.sessions)
	assert.Zero(t, e.store.stats().pending)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, []byte("more")))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[0].payload)
}

func TestFTL0UploadRejectsDamagedHeader(t *testing.T) {
	var e = test_ftl0(t)

	/* A real header with one byte flipped.  The transfer CRC matches
	   what was sent, so only the header checksum can object. */
	var blob = test_upload_blob([]byte("body"))
	blob[5] ^= 0xff

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	test_ftl0_drain(t)
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_HEADER_CHECK}, resp[0].payload)
	assert.Empty(t, e.sessions)
}

func TestFTL0UploadRejectsSizeMismatch(t *testing.T) {
	var e = test_ftl0(t)

	/* Declared size three bytes longer than the header claims. */
	var blob = test_upload_blob([]byte("body"))
	var padded = append(append([]byte(nil), blob...), 0, 0, 0)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(padded))))
	test_ftl0_drain(t)
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, padded))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(padded)))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_BAD_HEADER}, resp[0].payload)
}

func TestFTL0UploadRefusals(t *testing.T) {
	var e = test_ftl0(t)
	e.max_size = 1000

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 1001))
	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ERROR_RESP, resp[0].ptype)
	assert.Equal(t, []byte{FTL0_ERR_NO_ROOM}, resp[0].payload)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 0))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_ILL_FORMED}, resp[0].payload)
}

func TestFTL0DataOutsideDeclaredSize(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 10))
	test_ftl0_drain(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(8, []byte("12345")))
	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[0].payload)
}

func TestFTL0NoSessionErrors(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, []byte("data")))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(0))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 2)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[0].payload)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[1].payload)
}

func TestFTL0IllFormedPackets(t *testing.T) {
	var e = test_ftl0(t)

	/* A header promising more bytes than the frame carries. */
	var src, _ = ax25_parse_addr("G0ABC")
	e.handle_frame(&ax25_packet_t{dest: e.mycall, src: src, pid: PID_FTL0, info: []byte{0x50, FTL0_TYPE_DATA, 1}}) //nolint:exhaustruct

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_ILL_FORMED}, resp[0].payload)

	/* Payloads of the wrong shape. */
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_UPLOAD_CMD, []byte("1234567")))
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DATA, []byte("123")))
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DATA_END, []byte("1")))

	resp = test_ftl0_drain(t)
	require.Len(t, resp, 3)
	for _, r := range resp {
		assert.Equal(t, []byte{FTL0_ERR_ILL_FORMED}, r.payload)
	}
}

func TestFTL0ServerIgnoresResponseTypes(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_UL_GO_RESP, make([]byte, 8)))
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_UL_ACK_RESP, nil))

	assert.Empty(t, test_ftl0_drain(t), "another station's responses are not our business")
}

func TestFTL0ResumeAfterDroppedSession(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob(make([]byte, 200))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	var assigned = binary.LittleEndian.Uint32(resp[0].payload[0:4])

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob[:75]))
	test_ftl0_drain(t)

	/* The pass ends; the session idles out but the bytes stay. */
	e.sessions["G0ABC"].last = time.Now().Add(-time.Hour)
	e.sweep()
	assert.Empty(t, e.sessions)
	assert.Equal(t, 1, e.store.stats().pending)

	/* Next pass: resume names the file number and the same size. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(assigned, uint32(len(blob))))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	require.Equal(t, FTL0_TYPE_UL_GO_RESP, resp[0].ptype)
	assert.Equal(t, assigned, binary.LittleEndian.Uint32(resp[0].payload[0:4]))
	assert.Equal(t, uint32(75), binary.LittleEndian.Uint32(resp[0].payload[4:8]),
		"continue offset is the first missing byte")

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(75, blob[75:]))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_UL_ACK_RESP, resp[0].ptype)
}

func TestFTL0ResumeRefusals(t *testing.T) {
	var e = test_ftl0(t)
	var blob = test_upload_blob([]byte("resumable"))

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, uint32(len(blob))))
	var resp = test_ftl0_drain(t)
	var assigned = binary.LittleEndian.Uint32(resp[0].payload[0:4])

	/* Somebody else cannot take over the upload. */
	test_ftl0_frame(t, e, "K1XYZ", test_ftl0_upload_cmd(assigned, uint32(len(blob))))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[0].payload)

	/* Wrong declared size is a different transfer. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(assigned, uint32(len(blob))+1))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_BAD_CONTINUE}, resp[0].payload)

	/* Resuming a number that was never issued. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(99999, 100))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_NO_SUCH_FILE}, resp[0].payload)

	/* Finish it, then try to resume the finished file. */
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data(0, blob))
	test_ftl0_frame(t, e, "G0ABC", test_ftl0_data_end(fcs_calc(blob)))
	test_ftl0_drain(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(assigned, uint32(len(blob))))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_FILE_COMPLETE}, resp[0].payload)
}

func TestFTL0SecondUploadAbandonsFirst(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 100))
	var first = binary.LittleEndian.Uint32(test_ftl0_drain(t)[0].payload[0:4])

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 200))
	var second = binary.LittleEndian.Uint32(test_ftl0_drain(t)[0].payload[0:4])

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, e.store.stats().pending, "the abandoned upload stays resumable")
	assert.Equal(t, second, e.sessions["G0ABC"].t.file_number)
}

func TestFTL0SweepDropsOnlyIdleSessions(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC", test_ftl0_upload_cmd(0, 50))
	test_ftl0_frame(t, e, "K1XYZ", test_ftl0_upload_cmd(0, 50))
	test_ftl0_drain(t)
	require.Len(t, e.sessions, 2)

	e.sessions["G0ABC"].last = time.Now().Add(-e.timeout - time.Minute)
	e.sweep()

	assert.Len(t, e.sessions, 1)
	assert.Contains(t, e.sessions, "K1XYZ")
	assert.Equal(t, 2, e.store.stats().pending, "dropped session keeps its pending bytes")
}

func TestFTL0DownloadCompletedCheck(t *testing.T) {
	var e = test_ftl0(t)

	var body = []byte("the file body everyone already has")
	var p = test_pfh()
	var n, err = e.store.store_file(p, body)
	require.NoError(t, err)

	/* Empty hole list asks: is my copy complete? */
	var req = make([]byte, 4)
	binary.LittleEndian.PutUint32(req, n)
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, req))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	require.Equal(t, FTL0_TYPE_DL_COMPLETED_RESP, resp[0].ptype)
	require.Len(t, resp[0].payload, 6)
	assert.Equal(t, uint32(len(body)), binary.LittleEndian.Uint32(resp[0].payload[0:4]))
	assert.Equal(t, fcs_calc(body), binary.LittleEndian.Uint16(resp[0].payload[4:6]))
}

func TestFTL0DownloadRangedIsQuiet(t *testing.T) {
	var e = test_ftl0(t)

	var n, err = e.store.store_file(test_pfh(), make([]byte, 500))
	require.NoError(t, err)

	var req = make([]byte, 4)
	binary.LittleEndian.PutUint32(req, n)
	req = append(req, ftl0_holes_encode([]hole_t{{start: 100, end: 200}})...)
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, req))

	/* The data travels on the broadcast side.  Nothing comes back on
	   the command channel. */
	assert.Empty(t, test_ftl0_drain(t))
}

func TestFTL0DownloadErrors(t *testing.T) {
	var e = test_ftl0(t)

	var req = make([]byte, 4)
	binary.LittleEndian.PutUint32(req, 42)
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, req))

	var resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, FTL0_TYPE_DL_ERROR_RESP, resp[0].ptype)
	assert.Equal(t, []byte{FTL0_ERR_NO_SUCH_FILE}, resp[0].payload)

	/* A trashed file looks exactly like a missing one. */
	var n, err = e.store.store_file(test_pfh(), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, e.store.soft_delete(n, ""))

	binary.LittleEndian.PutUint32(req, n)
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, req))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{FTL0_ERR_NO_SUCH_FILE}, resp[0].payload)

	/* Too short, and a mangled hole list. */
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, []byte{1, 2}))
	test_ftl0_frame(t, e, "G0ABC", ftl0_encode(FTL0_TYPE_DOWNLOAD_CMD, append(req, 1, 2, 3)))
	resp = test_ftl0_drain(t)
	require.Len(t, resp, 2)
	assert.Equal(t, []byte{FTL0_ERR_ILL_FORMED}, resp[0].payload)
	assert.Equal(t, []byte{FTL0_ERR_ILL_FORMED}, resp[1].payload)
}

func TestFTL0ResponseAddressing(t *testing.T) {
	var e = test_ftl0(t)

	test_ftl0_frame(t, e, "G0ABC-3", test_ftl0_upload_cmd(0, 10))

	var frame = tq_remove(TQ_PRIO_0_HI)
	require.NotNil(t, frame)
	var pp, err = ax25_unpack(frame)
	require.NoError(t, err)
	assert.Equal(t, "G0ABC-3", pp.dest.String())
	assert.Equal(t, "PACSAT-1", pp.src.String())
	assert.Equal(t, byte(PID_FTL0), pp.pid)
}
