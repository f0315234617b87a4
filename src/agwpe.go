package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	AGWPE message codec, shared by the server here and
 *		any client built against this module.
 *
 * Description:	Every AGWPE message is a fixed 36 byte header, all
 *		little endian, followed by DataLen bytes of data:
 *
 *			offset	 0	port
 *			offset	 4	data kind, one letter
 *			offset	 6	PID
 *			offset	 8	call from, 10 bytes
 *			offset	18	call to, 10 bytes
 *			offset	28	data length, u32
 *			offset	32	user field
 *
 *		The gaps are reserved bytes.  encoding/binary maps the
 *		struct straight onto the wire, which is why the fields
 *		are exported.
 *
 * References:	AGWPE TCP/IP API Tutorial
 *		http://uz7ho.org.ua/includes/agwpeapi.htm
 *
 *		It has disappeared from the original location but you
 *		can find it here:
 *		https://www.on7lds.net/42/sites/default/files/AGWPEAPI.HTM
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type Callsign [10]byte

/* The field is 10 bytes but content must not exceed 9 characters.
   Bytes after the terminating nul are not guaranteed to be zero. */

func (c Callsign) String() string {
	var b = c[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func callsign_field(s string) Callsign {
	var c Callsign
	copy(c[:9], s)
	return c
}

type AGWPEHeader struct {
	Portx        byte
	Reserved1    byte
	Reserved2    byte
	Reserved3    byte
	DataKind     byte
	Reserved4    byte
	PID          byte
	Reserved5    byte
	CallFrom     Callsign
	CallTo       Callsign
	DataLen      uint32
	UserReserved [4]byte
}

type AGWPEMessage struct {
	Header AGWPEHeader
	Data   []byte
}

/* Nothing legitimate is anywhere near this size.  A length beyond it
   means the stream is out of step and the connection is unusable. */

const AGWPE_MAX_DATA_LEN = 4096

/*-------------------------------------------------------------------
 *
 * Name:        Write
 *
 * Purpose:     Send one message.  DataLen is filled in from the data
 *		so the two can never disagree.
 *
 *--------------------------------------------------------------------*/

func (m *AGWPEMessage) Write(w io.Writer, order binary.ByteOrder) (int, error) {

	m.Header.DataLen = uint32(len(m.Data))

	if err := binary.Write(w, order, &m.Header); err != nil {
		return 0, err
	}
	if len(m.Data) > 0 {
		if _, err := w.Write(m.Data); err != nil {
			return 0, err
		}
	}

	return binary.Size(&m.Header) + len(m.Data), nil
} /* end Write */

/*-------------------------------------------------------------------
 *
 * Name:        agwpe_read_message
 *
 * Purpose:     Read one complete message from the stream.
 *
 * Returns:	The message, or an error when the stream ends or the
 *		header is not believable.  Either way the caller should
 *		close the connection; there is no way to resynchronize
 *		a byte stream with no framing marker.
 *
 *--------------------------------------------------------------------*/

func agwpe_read_message(r io.Reader, order binary.ByteOrder) (*AGWPEMessage, error) {

	var m = new(AGWPEMessage)

	if err := binary.Read(r, order, &m.Header); err != nil {
		return nil, err
	}

	if m.Header.DataLen > AGWPE_MAX_DATA_LEN {
		return nil, fmt.Errorf("message claims %d data bytes, limit is %d", m.Header.DataLen, AGWPE_MAX_DATA_LEN)
	}

	if m.Header.DataLen > 0 {
		m.Data = make([]byte, m.Header.DataLen)
		if _, err := io.ReadFull(r, m.Data); err != nil {
			return nil, err
		}
	}

	return m, nil
} /* end agwpe_read_message */
