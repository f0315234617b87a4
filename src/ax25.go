package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Encode and decode AX.25 v2.2 UI frames.
 *
 * Description:	The PACSAT protocols all ride in UI frames: directory
 *		broadcasts, file chunk broadcasts, FTL0 negotiation,
 *		and the status beacon.  Connected mode is not used, so
 *		this is deliberately limited to the U frame with
 *		control 0x03.
 *
 *		Frame format:
 *
 *			destination	7 bytes
 *			source		7 bytes
 *			digipeaters	0 to 8 x 7 bytes
 *			control		1 byte, 0x03 for UI
 *			PID		1 byte
 *			information	0 to AX25_MAX_INFO_LEN bytes
 *			FCS		2 bytes, low byte first
 *
 * References:	AX.25 Link Access Protocol for Amateur Packet Radio
 *		Version 2.2 Revision: July 1998
 *
 *		http://www.tapr.org/pub_ax25.html
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

/* Anything wrong with a received frame wraps this, so callers can
   treat "bad frame" as one condition without matching messages. */

var ErrBadFrame = errors.New("malformed frame")

const AX25_MAX_REPEATERS = 8
const AX25_MAX_ADDRS = 10 /* Destination, Source, 8 digipeaters. */

const AX25_MAX_ADDR_LEN = 12 /* In theory, you would expect the maximum length */
/* to be 6 letters, dash, 2 digits, and nul for a */
/* total of 10.  However, object labels can be 10 */
/* characters so throw in a couple extra bytes */
/* to be safe. */

const AX25_MAX_INFO_LEN = 2048 /* Maximum size for APRS. */
/* AX.25 starts out with 256 as the default max */
/* length but the end stations can negotiate */
/* something different. */
/* BPQ32 limits have been verified to be 2048. */

const AX25_UI_FRAME = 3 /* Control field value. */

/*
 * SSID octet, as found in the 7 byte shifted address fields.
 */

const SSID_H_MASK = 0x80 /* Command/response on dest & src, H bit on digipeaters. */
const SSID_RR_MASK = 0x60 /* Reserved, set to 11 when not used otherwise. */
const SSID_SSID_MASK = 0x1e
const SSID_SSID_SHIFT = 1
const SSID_LAST_MASK = 0x01 /* Means this is the last address field. */

/* Smallest UI frame: two addresses, control, PID, empty info, FCS. */

const AX25_MIN_UI_LEN = 7 + 7 + 1 + 1 + 2

/*------------------------------------------------------------------
 *
 * Name:	ax25_addr_t
 *
 * Purpose:	One station address, e.g. "G0ABC-5".
 *
 *		Call is 1 to 6 characters from the set A-Z 0-9.
 *		SSID is 0 to 15 and 0 is not shown in the text form.
 *
 *------------------------------------------------------------------*/

type ax25_addr_t struct {
	call string
	ssid int
}

func (a ax25_addr_t) String() string {
	if a.ssid == 0 {
		return a.call
	}
	return fmt.Sprintf("%s-%d", a.call, a.ssid)
}

/*------------------------------------------------------------------
 *
 * Name:	ax25_parse_addr
 *
 * Purpose:	Parse a callsign in the usual text form.
 *
 * Inputs:	text	- Address such as "PACSAT" or "G0ABC-5".
 *
 * Returns:	The address and an error when the text does not
 *		satisfy the AX.25 address rules.
 *
 * Errors:	Empty callsign, more than 6 characters, characters
 *		outside A-Z 0-9, SSID outside 0-15.
 *		Lower case is accepted and folded to upper case.
 *
 *------------------------------------------------------------------*/

func ax25_parse_addr(text string) (ax25_addr_t, error) {
	var addr ax25_addr_t

	var call, ssid_text, has_ssid = strings.Cut(strings.ToUpper(strings.TrimSpace(text)), "-")

	if len(call) == 0 {
		return addr, fmt.Errorf("address \"%s\" has an empty callsign", text)
	}
	if len(call) > 6 {
		return addr, fmt.Errorf("address \"%s\" has more than 6 characters in the callsign", text)
	}
	for _, c := range call {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return addr, fmt.Errorf("address \"%s\" has a character other than A-Z 0-9 in the callsign", text)
		}
	}

	addr.call = call

	if has_ssid {
		var ssid, convErr = strconv.Atoi(ssid_text)
		if convErr != nil || ssid < 0 || ssid > 15 {
			return addr, fmt.Errorf("address \"%s\" has an SSID outside the range of 0 to 15", text)
		}
		addr.ssid = ssid
	}

	return addr, nil
} /* end ax25_parse_addr */

/*------------------------------------------------------------------
 *
 * Name:	ax25_packet_t
 *
 * Purpose:	One UI frame, between wire format and the rest of
 *		the application.
 *
 *		Digipeater addresses are carried through so a monitor
 *		can display them but nothing here ever sets the
 *		"has been repeated" bit.  A PACSAT ground station is
 *		not a digipeater.
 *
 *------------------------------------------------------------------*/

type ax25_packet_t struct {
	dest ax25_addr_t
	src  ax25_addr_t
	digi []ax25_addr_t

	pid  byte
	info []byte
}

/*------------------------------------------------------------------
 *
 * Name:	fcs_calc
 *
 * Purpose:	Frame check sequence for an AX.25 frame.
 *
 * Inputs:	data	- All frame octets before the FCS itself.
 *
 * Returns:	CRC-16/X-25: initial value ffff, reflected
 *		polynomial 8408, final exclusive-or with ffff.
 *
 *		Appended to the frame low byte first.  The same CRC
 *		protects FTL0 file bodies and broadcast data chunks.
 *
 *------------------------------------------------------------------*/

func fcs_calc(data []byte) uint16 {
	var crc uint16 = 0xffff

	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}

	return crc ^ 0xffff
} /* end fcs_calc */

/*
 * Write one 7 byte shifted address field.
 * ssid_bits supplies everything below the shifted SSID: the H/C bit,
 * the RR bits, and the last-address bit.
 */

func ax25_encode_addr_field(addr ax25_addr_t, ssid_bits byte, out []byte) {
	for i := 0; i < 6; i++ {
		var c byte = ' '
		if i < len(addr.call) {
			c = addr.call[i]
		}
		out[i] = c << 1
	}
	out[6] = byte(addr.ssid)<<SSID_SSID_SHIFT | ssid_bits
}

func ax25_decode_addr_field(in []byte) (ax25_addr_t, error) {
	var addr ax25_addr_t

	for i := 0; i < 6; i++ {
		if in[i]&0x01 != 0 {
			return addr, fmt.Errorf("%w: address field has the extension bit set inside a callsign", ErrBadFrame)
		}
		var c = in[i] >> 1
		if c == ' ' {
			break
		}
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return addr, fmt.Errorf("%w: address field has invalid character 0x%02x in a callsign", ErrBadFrame, c)
		}
		addr.call += string(rune(c))
	}
	if len(addr.call) == 0 {
		return addr, fmt.Errorf("%w: address field has an empty callsign", ErrBadFrame)
	}

	addr.ssid = int(in[6]&SSID_SSID_MASK) >> SSID_SSID_SHIFT

	return addr, nil
}

/*------------------------------------------------------------------
 *
 * Name:	ax25_pack
 *
 * Purpose:	Serialize a UI frame into wire format with FCS.
 *
 * Inputs:	pp	- Frame to be serialized.
 *
 * Returns:	Frame octets ready for KISS encapsulation, or an
 *		error when an address or the info part is out of
 *		bounds.
 *
 * Description:	Sent as a command frame per v2.2 convention: C bit
 *		set on the destination, clear on the source.  The RR
 *		bits are set to 11 in all address fields.
 *
 *------------------------------------------------------------------*/

func ax25_pack(pp *ax25_packet_t) ([]byte, error) {
	if len(pp.digi) > AX25_MAX_REPEATERS {
		return nil, fmt.Errorf("frame has %d digipeaters but the limit is %d", len(pp.digi), AX25_MAX_REPEATERS)
	}
	if len(pp.info) > AX25_MAX_INFO_LEN {
		return nil, fmt.Errorf("frame info part has %d bytes but the limit is %d", len(pp.info), AX25_MAX_INFO_LEN)
	}
	for _, a := range []ax25_addr_t{pp.dest, pp.src} {
		if _, parseErr := ax25_parse_addr(a.String()); parseErr != nil {
			return nil, parseErr
		}
	}

	var frame = make([]byte, 0, 7*(2+len(pp.digi))+2+len(pp.info)+2)
	var field [7]byte

	ax25_encode_addr_field(pp.dest, SSID_H_MASK|SSID_RR_MASK, field[:])
	frame = append(frame, field[:]...)

	var src_bits byte = SSID_RR_MASK
	if len(pp.digi) == 0 {
		src_bits |= SSID_LAST_MASK
	}
	ax25_encode_addr_field(pp.src, src_bits, field[:])
	frame = append(frame, field[:]...)

	for i, d := range pp.digi {
		var digi_bits byte = SSID_RR_MASK
		if i == len(pp.digi)-1 {
			digi_bits |= SSID_LAST_MASK
		}
		ax25_encode_addr_field(d, digi_bits, field[:])
		frame = append(frame, field[:]...)
	}

	frame = append(frame, AX25_UI_FRAME, pp.pid)
	frame = append(frame, pp.info...)

	var fcs = fcs_calc(frame)
	frame = append(frame, byte(fcs&0xff), byte(fcs>>8))

	return frame, nil
} /* end ax25_pack */

/*------------------------------------------------------------------
 *
 * Name:	ax25_unpack
 *
 * Purpose:	Parse a received frame, FCS included.
 *
 * Inputs:	frame	- Raw frame octets as they came out of the
 *			  KISS or AGWPE layer.
 *
 * Returns:	The frame, or an error for anything malformed: too
 *		short, FCS mismatch, bad address field, or a control
 *		field other than UI.
 *
 *		The caller still has to check the PID.  Satellites
 *		share the channel with all sorts of traffic and
 *		frames for other protocols are normal, not errors.
 *
 *------------------------------------------------------------------*/

func ax25_unpack(frame []byte) (*ax25_packet_t, error) {
	if len(frame) < AX25_MIN_UI_LEN {
		return nil, fmt.Errorf("%w: frame of %d bytes is shorter than the %d byte minimum", ErrBadFrame, len(frame), AX25_MIN_UI_LEN)
	}

	var want = fcs_calc(frame[:len(frame)-2])
	var got = uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	if want != got {
		return nil, fmt.Errorf("%w: frame check sequence mismatch, computed %04x but frame carries %04x", ErrBadFrame, want, got)
	}

	var pp = new(ax25_packet_t)
	var err error

	pp.dest, err = ax25_decode_addr_field(frame[0:7])
	if err != nil {
		return nil, err
	}
	pp.src, err = ax25_decode_addr_field(frame[7:14])
	if err != nil {
		return nil, err
	}

	var offset = 14
	for frame[offset-1]&SSID_LAST_MASK == 0 {
		if len(pp.digi) == AX25_MAX_REPEATERS {
			return nil, fmt.Errorf("%w: frame has more than %d digipeater addresses", ErrBadFrame, AX25_MAX_REPEATERS)
		}
		if offset+7+2+2 > len(frame) {
			return nil, fmt.Errorf("%w: frame ends in the middle of the address fields", ErrBadFrame)
		}
		var d, digiErr = ax25_decode_addr_field(frame[offset : offset+7])
		if digiErr != nil {
			return nil, digiErr
		}
		pp.digi = append(pp.digi, d)
		offset += 7
	}

	if offset+2+2 > len(frame) {
		return nil, fmt.Errorf("%w: frame ends before the control and PID fields", ErrBadFrame)
	}

	var control = frame[offset]
	if control&^0x10 != AX25_UI_FRAME { /* Poll bit tolerated. */
		return nil, fmt.Errorf("%w: frame has control field %02x, only UI (%02x) is handled here", ErrBadFrame, control, AX25_UI_FRAME)
	}

	pp.pid = frame[offset+1]
	pp.info = append([]byte(nil), frame[offset+2:len(frame)-2]...)

	return pp, nil
} /* end ax25_unpack */
