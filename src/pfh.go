package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	PACSAT File Header codec.
 *
 * Description:	Every stored file starts with a PFH: two magic bytes,
 *		a run of tagged items, and a three byte terminator.
 *		The body follows immediately after the terminator.
 *
 *			0xAA 0x55
 *			id(2, little endian)  length(1)  payload(length)
 *			...
 *			0x00 0x00 0x00
 *
 *		The header carries its own additive checksum and the
 *		offset of the body, so a parser can locate the body
 *		without rescanning and a receiver can judge a directory
 *		broadcast without having the file.
 *
 * References:	The PACSAT File Header Definition (G3RUH / HS1JB style
 *		tagged items) as used by the microsat store and forward
 *		missions.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"strings"
)

const PFH_MAGIC1 = 0xAA
const PFH_MAGIC2 = 0x55

/* Mandatory items.  A header without all of these is rejected. */

const PFH_ITEM_FILE_NUMBER = 1 /* u32, assigned by the server, 0 until then */
const PFH_ITEM_FILE_NAME = 2   /* 8 bytes, space padded */
const PFH_ITEM_FILE_EXT = 3    /* 3 bytes, space padded */
const PFH_ITEM_FILE_TYPE = 4   /* u8 */
const PFH_ITEM_FILE_SIZE = 5   /* u32, whole file including this header */
const PFH_ITEM_CREATE_TIME = 7 /* u32, unix time */
const PFH_ITEM_UPLOAD_TIME = 8 /* u32, unix time, 0 until stored */
const PFH_ITEM_SEU_FLAG = 9    /* u8 */
const PFH_ITEM_CHECKSUM = 10   /* u8, additive complement of the header */
const PFH_ITEM_BODY_OFFSET = 11 /* u16, total header length */
const PFH_ITEM_SOURCE = 16     /* callsign, variable length ASCII */
const PFH_ITEM_DESTINATION = 17

/* Optional items.  Unknown ids are preserved, not interpreted. */

const PFH_ITEM_COMPRESSION = 12    /* u8 */
const PFH_ITEM_BODY_DESC = 13      /* ASCII */
const PFH_ITEM_DOWNLOAD_COUNT = 20 /* u32 */
const PFH_ITEM_PRIORITY = 21       /* u8 */
const PFH_ITEM_BBS_TEXT = 32       /* u8, 0 or 1 */
const PFH_ITEM_FORWARDING = 99     /* ';' joined callsigns */

const PFH_MIN_LEN = 2 + 3 /* Magic plus terminator.  Real headers are much longer. */

var ErrHeaderMagic = errors.New("file header magic missing")
var ErrHeaderTruncated = errors.New("file header truncated")
var ErrHeaderChecksum = errors.New("file header checksum mismatch")
var ErrHeaderItem = errors.New("file header item invalid")

/* An item we carry through parse and serialize without interpreting. */

type pfh_item_t struct {
	id      uint16
	payload []byte
}

type pfh_t struct {
	file_number     uint32
	file_name       string /* Up to 8 characters. */
	file_ext        string /* Up to 3 characters. */
	file_type       byte
	file_size       uint32 /* Whole file, header included. */
	create_time     uint32
	upload_time     uint32
	seu_flag        byte
	header_checksum byte   /* Set by parse and serialize. */
	body_offset     uint16 /* Set by parse and serialize. */
	source          string
	destination     string

	/* Optional extended items. */

	has_compression    bool
	compression        byte
	body_desc          string
	has_download_count bool
	download_count     uint32
	has_priority       bool
	priority           byte
	has_bbs_text       bool
	bbs_text           byte
	forwarding         []string

	unknown []pfh_item_t /* Preserved in parse order. */
}

/*------------------------------------------------------------------------------
 *
 * Name:	pfh_body_size
 *
 * Purpose:	Number of body bytes the header claims follow it.
 *
 *------------------------------------------------------------------------------*/

func (p *pfh_t) pfh_body_size() int {
	if p.file_size < uint32(p.body_offset) {
		return 0
	}
	return int(p.file_size) - int(p.body_offset)
} /* end pfh_body_size */

/*------------------------------------------------------------------------------
 *
 * Name:	String
 *
 * Purpose:	One line summary for logs and directory listings.
 *
 *------------------------------------------------------------------------------*/

func (p *pfh_t) String() string {
	var name = p.file_name
	if p.file_ext != "" {
		name += "." + p.file_ext
	}
	return fmt.Sprintf("%d %s %d %s>%s", p.file_number, name, p.file_size, p.source, p.destination)
} /* end String */

/*------------------------------------------------------------------------------
 *
 * Name:	pfh_add_item
 *
 * Purpose:	Append one tagged item to a header under construction.
 *
 * Inputs:	buf	- Header so far.
 *
 *		id	- Item id.
 *
 *		payload	- Up to 255 bytes.  Longer payloads are truncated
 *			  because the length field is a single byte.
 *
 * Returns:	The extended buffer.
 *
 *------------------------------------------------------------------------------*/

func pfh_add_item(buf []byte, id uint16, payload []byte) []byte {
	if len(payload) > 255 {
		payload = payload[:255]
	}
	buf = append(buf, byte(id&0xff), byte(id>>8), byte(len(payload)))
	buf = append(buf, payload...)
	return buf
} /* end pfh_add_item */

func pfh_u32_item(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func pfh_u16_item(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

/*------------------------------------------------------------------------------
 *
 * Name:	serialize
 *
 * Purpose:	Produce the wire form of a header.
 *
 * Outputs:	p.body_offset and p.header_checksum are updated to the
 *		values that went over the wire.
 *
 * Returns:	Serialized header, magic through terminator.
 *
 * Description:	Mandatory items go first in ascending id order, then
 *		the optional items we understand, then any preserved
 *		unknown items.  The checksum item is emitted as zero,
 *		then patched once the total length is known, so the sum
 *		of every header byte comes out congruent to zero mod 256.
 *
 *------------------------------------------------------------------------------*/

func (p *pfh_t) serialize() []byte {

	var buf = []byte{PFH_MAGIC1, PFH_MAGIC2}

	buf = pfh_add_item(buf, PFH_ITEM_FILE_NUMBER, pfh_u32_item(p.file_number))
	buf = pfh_add_item(buf, PFH_ITEM_FILE_NAME, stringToByteField(p.file_name, 8))
	buf = pfh_add_item(buf, PFH_ITEM_FILE_EXT, stringToByteField(p.file_ext, 3))
	buf = pfh_add_item(buf, PFH_ITEM_FILE_TYPE, []byte{p.file_type})
	buf = pfh_add_item(buf, PFH_ITEM_FILE_SIZE, pfh_u32_item(p.file_size))
	buf = pfh_add_item(buf, PFH_ITEM_CREATE_TIME, pfh_u32_item(p.create_time))
	buf = pfh_add_item(buf, PFH_ITEM_UPLOAD_TIME, pfh_u32_item(p.upload_time))
	buf = pfh_add_item(buf, PFH_ITEM_SEU_FLAG, []byte{p.seu_flag})

	var checksum_pos = len(buf) + 3 /* Payload position within the item about to be added. */
	buf = pfh_add_item(buf, PFH_ITEM_CHECKSUM, []byte{0})

	var body_offset_pos = len(buf) + 3
	buf = pfh_add_item(buf, PFH_ITEM_BODY_OFFSET, pfh_u16_item(0))

	buf = pfh_add_item(buf, PFH_ITEM_SOURCE, []byte(p.source))
	buf = pfh_add_item(buf, PFH_ITEM_DESTINATION, []byte(p.destination))

	if p.has_compression {
		buf = pfh_add_item(buf, PFH_ITEM_COMPRESSION, []byte{p.compression})
	}
	if p.body_desc != "" {
		buf = pfh_add_item(buf, PFH_ITEM_BODY_DESC, []byte(p.body_desc))
	}
	if p.has_download_count {
		buf = pfh_add_item(buf, PFH_ITEM_DOWNLOAD_COUNT, pfh_u32_item(p.download_count))
	}
	if p.has_priority {
		buf = pfh_add_item(buf, PFH_ITEM_PRIORITY, []byte{p.priority})
	}
	if p.has_bbs_text {
		buf = pfh_add_item(buf, PFH_ITEM_BBS_TEXT, []byte{p.bbs_text})
	}
	if len(p.forwarding) > 0 {
		buf = pfh_add_item(buf, PFH_ITEM_FORWARDING, []byte(strings.Join(p.forwarding, ";")))
	}

	for _, item := range p.unknown {
		buf = pfh_add_item(buf, item.id, item.payload)
	}

	buf = append(buf, 0, 0, 0) /* Terminator. */

	p.body_offset = uint16(len(buf))
	buf[body_offset_pos] = byte(p.body_offset & 0xff)
	buf[body_offset_pos+1] = byte(p.body_offset >> 8)

	var sum = 0
	for _, b := range buf {
		sum += int(b)
	}
	p.header_checksum = byte((256 - (sum & 0xff)) & 0xff)
	buf[checksum_pos] = p.header_checksum

	return buf
} /* end serialize */

/*------------------------------------------------------------------------------
 *
 * Name:	pfh_parse
 *
 * Purpose:	Parse the header at the front of a stored or received file.
 *
 * Inputs:	data	- Header followed by body.  A bare header, as in a
 *			  directory broadcast, is fine too.
 *
 * Returns:	The header, the body as a slice into the same storage
 *		(never copied), and an error.
 *
 *		ErrHeaderMagic		not a PACSAT file header at all
 *		ErrHeaderTruncated	ran out of bytes mid item
 *		ErrHeaderChecksum	damaged in transit or storage
 *		ErrHeaderItem		malformed or missing mandatory item
 *
 * Description:	Anything with an id we don't recognize is carried along
 *		unmodified so the header survives a parse and reserialize
 *		even when produced by newer software.
 *
 *------------------------------------------------------------------------------*/

func pfh_parse(data []byte) (*pfh_t, []byte, error) {

	if len(data) < PFH_MIN_LEN {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTruncated, len(data))
	}
	if data[0] != PFH_MAGIC1 || data[1] != PFH_MAGIC2 {
		return nil, nil, fmt.Errorf("%w: found %02x %02x", ErrHeaderMagic, data[0], data[1])
	}

	var p = new(pfh_t)
	var seen = make(map[uint16]bool)
	var checksum_pos = -1
	var pos = 2

	for {
		if pos+3 > len(data) {
			return nil, nil, fmt.Errorf("%w: item at offset %d", ErrHeaderTruncated, pos)
		}

		var id = uint16(data[pos]) | uint16(data[pos+1])<<8
		var length = int(data[pos+2])

		if id == 0 {
			if length != 0 {
				return nil, nil, fmt.Errorf("%w: terminator with length %d", ErrHeaderItem, length)
			}
			pos += 3
			break
		}

		if pos+3+length > len(data) {
			return nil, nil, fmt.Errorf("%w: item %d at offset %d", ErrHeaderTruncated, id, pos)
		}

		var payload = data[pos+3 : pos+3+length]

		// Duplicates of items we interpret are rejected.  Duplicates of
		// unknown items pass straight through to the preserved list.

		if pfh_known_item(id) {
			if seen[id] {
				return nil, nil, fmt.Errorf("%w: duplicate item %d", ErrHeaderItem, id)
			}
			seen[id] = true
		}

		var bad_length = false

		switch id {
		case PFH_ITEM_FILE_NUMBER:
			if length != 4 {
				bad_length = true
				break
			}
			p.file_number = pfh_item_u32(payload)
		case PFH_ITEM_FILE_NAME:
			if length != 8 {
				bad_length = true
				break
			}
			p.file_name = ByteFieldToString(payload)
		case PFH_ITEM_FILE_EXT:
			if length != 3 {
				bad_length = true
				break
			}
			p.file_ext = ByteFieldToString(payload)
		case PFH_ITEM_FILE_TYPE:
			if length != 1 {
				bad_length = true
				break
			}
			p.file_type = payload[0]
		case PFH_ITEM_FILE_SIZE:
			if length != 4 {
				bad_length = true
				break
			}
			p.file_size = pfh_item_u32(payload)
		case PFH_ITEM_CREATE_TIME:
			if length != 4 {
				bad_length = true
				break
			}
			p.create_time = pfh_item_u32(payload)
		case PFH_ITEM_UPLOAD_TIME:
			if length != 4 {
				bad_length = true
				break
			}
			p.upload_time = pfh_item_u32(payload)
		case PFH_ITEM_SEU_FLAG:
			if length != 1 {
				bad_length = true
				break
			}
			p.seu_flag = payload[0]
		case PFH_ITEM_CHECKSUM:
			if length != 1 {
				bad_length = true
				break
			}
			p.header_checksum = payload[0]
			checksum_pos = pos + 3
		case PFH_ITEM_BODY_OFFSET:
			if length != 2 {
				bad_length = true
				break
			}
			p.body_offset = uint16(payload[0]) | uint16(payload[1])<<8
		case PFH_ITEM_SOURCE:
			p.source = string(payload)
		case PFH_ITEM_DESTINATION:
			p.destination = string(payload)

		case PFH_ITEM_COMPRESSION:
			if length != 1 {
				bad_length = true
				break
			}
			p.has_compression = true
			p.compression = payload[0]
		case PFH_ITEM_BODY_DESC:
			p.body_desc = string(payload)
		case PFH_ITEM_DOWNLOAD_COUNT:
			if length != 4 {
				bad_length = true
				break
			}
			p.has_download_count = true
			p.download_count = pfh_item_u32(payload)
		case PFH_ITEM_PRIORITY:
			if length != 1 {
				bad_length = true
				break
			}
			p.has_priority = true
			p.priority = payload[0]
		case PFH_ITEM_BBS_TEXT:
			if length != 1 {
				bad_length = true
				break
			}
			p.has_bbs_text = true
			p.bbs_text = payload[0]
		case PFH_ITEM_FORWARDING:
			if length > 0 {
				p.forwarding = strings.Split(string(payload), ";")
			}

		default:
			var copied = make([]byte, length)
			copy(copied, payload)
			p.unknown = append(p.unknown, pfh_item_t{id: id, payload: copied})
		}

		if bad_length {
			return nil, nil, fmt.Errorf("%w: item %d has length %d", ErrHeaderItem, id, length)
		}

		pos += 3 + length
	}

	for _, id := range []uint16{
		PFH_ITEM_FILE_NUMBER, PFH_ITEM_FILE_NAME, PFH_ITEM_FILE_EXT,
		PFH_ITEM_FILE_TYPE, PFH_ITEM_FILE_SIZE, PFH_ITEM_CREATE_TIME,
		PFH_ITEM_UPLOAD_TIME, PFH_ITEM_SEU_FLAG, PFH_ITEM_CHECKSUM,
		PFH_ITEM_BODY_OFFSET, PFH_ITEM_SOURCE, PFH_ITEM_DESTINATION,
	} {
		if !seen[id] {
			return nil, nil, fmt.Errorf("%w: mandatory item %d missing", ErrHeaderItem, id)
		}
	}

	if int(p.body_offset) != pos {
		return nil, nil, fmt.Errorf("%w: body offset %d but header is %d bytes", ErrHeaderItem, p.body_offset, pos)
	}

	var sum = 0
	for i := 0; i < pos; i++ {
		if i == checksum_pos {
			continue
		}
		sum += int(data[i])
	}
	var expected = byte((256 - (sum & 0xff)) & 0xff)
	if expected != p.header_checksum {
		return nil, nil, fmt.Errorf("%w: stored %02x computed %02x", ErrHeaderChecksum, p.header_checksum, expected)
	}

	return p, data[pos:], nil
} /* end pfh_parse */

func pfh_item_u32(payload []byte) uint32 {
	return uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24
}

func pfh_known_item(id uint16) bool {
	switch id {
	case PFH_ITEM_FILE_NUMBER, PFH_ITEM_FILE_NAME, PFH_ITEM_FILE_EXT,
		PFH_ITEM_FILE_TYPE, PFH_ITEM_FILE_SIZE, PFH_ITEM_CREATE_TIME,
		PFH_ITEM_UPLOAD_TIME, PFH_ITEM_SEU_FLAG, PFH_ITEM_CHECKSUM,
		PFH_ITEM_BODY_OFFSET, PFH_ITEM_SOURCE, PFH_ITEM_DESTINATION,
		PFH_ITEM_COMPRESSION, PFH_ITEM_BODY_DESC, PFH_ITEM_DOWNLOAD_COUNT,
		PFH_ITEM_PRIORITY, PFH_ITEM_BBS_TEXT, PFH_ITEM_FORWARDING:
		return true
	}
	return false
}
