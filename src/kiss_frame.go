package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Common code used by the serial port and network
 *		versions of the KISS protocol.
 *
 * Description: The KISS TNC protocol is described in
 *		http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the frame contains:
 *
 *			* radio channel in upper nybble.
 *			* command in lower nybble.
 *
 *		Commands:
 *
 *			_0	Data Frame	AX.25 frame in raw format,
 *						FCS included.
 *
 *			_1 .. _6		TNC parameters.  There is no
 *						modem behind us so they are
 *						reported and ignored, except
 *						SetHardware which can answer
 *						queries.
 *
 *			_C	XKISS data	G8BPQ variant, data frame with
 *						a trailing XOR checksum.
 *						http://he.fi/pub/oh7lzb/bpq/multi-kiss.pdf
 *
 *			_E	XKISS poll	G8BPQ variant, answered with
 *						an empty poll so the other
 *						end knows we are alive.
 *
 *			FF	Return		Exit KISS mode.  Ignored.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const KISS_CMD_DATA_FRAME = 0
const KISS_CMD_TXDELAY = 1
const KISS_CMD_PERSISTENCE = 2
const KISS_CMD_SLOTTIME = 3
const KISS_CMD_TXTAIL = 4
const KISS_CMD_FULLDUPLEX = 5
const KISS_CMD_SET_HARDWARE = 6
const XKISS_CMD_DATA = 12 /* G8BPQ checksummed data. */
const XKISS_CMD_POLL = 14 /* G8BPQ poll. */
const KISS_CMD_END_KISS = 15

/*
 * Special characters used by SLIP protocol.
 */

const FEND = 0xC0
const FESC = 0xDB
const TFEND = 0xDC
const TFESC = 0xDD

type kiss_state_e int

const (
	KS_SEARCHING  kiss_state_e = 0 /* Looking for FEND to start KISS frame. Must be 0 so we can simply zero whole structure to initialize. */
	KS_COLLECTING kiss_state_e = 1 /* In process of collecting KISS frame. */
)

const MAX_KISS_LEN = 2048 /* Spec calls for at least 1024. */
/* Might want to make it longer to accommodate */
/* maximum packet length. */

const MAX_NOISE_LEN = 100

// A malformed escape sequence loses framing.  The frame in progress is
// dropped and decoding resumes at the next FEND.
var ErrDesync = errors.New("lost kiss framing")

type kiss_frame_t struct {
	state kiss_state_e

	kiss_msg [MAX_KISS_LEN]byte
	/* Leading FEND is optional. */
	/* Contains escapes and ending FEND. */
	kiss_len int

	overrun bool /* Frame in progress blew past MAX_KISS_LEN. */

	noise     [MAX_NOISE_LEN]byte
	noise_len int
}

type fromto_t int

const (
	FROM_CLIENT fromto_t = 0
	TO_CLIENT   fromto_t = 1
)

/*
 * Where a completed data frame goes and how a reply reaches the peer.
 *
 * The same byte collector serves both directions: the radio side hands
 * data frames to the receive dispatch queue, the network listener hands
 * them to the transmit queue.  Polls and hardware queries are answered
 * on the stream they arrived on.
 */

type kiss_handler_fun func(channel int, frame []byte)

type kiss_sendfun func(data []byte)

/*-------------------------------------------------------------------
 *
 * Name:        kiss_encapsulate
 *
 * Purpose:     Encapsulate a frame into KISS format.
 *
 * Inputs:	in	- Address of input block.
 *			  First byte is the "type indicator" with type and
 *			  channel but we don't care about that here.
 *			  If it happens to be FEND or FESC, it is escaped,
 *			  like any other byte.
 *
 *			  Note that this is "binary" data and can contain
 *			  nul (0x00) values.   Don't treat it like a text string!
 *
 * Returns:	The KISS encoded representation.  The sequence is:
 *			FEND		- Magic frame separator.
 *			data		- with certain byte values replaced so
 *					  FEND will never occur here.
 *			FEND		- Magic frame separator.
 *
 *		Absolute max length (extremely unlikely) will be twice
 *		input plus 2.
 *
 *-----------------------------------------------------------------*/

func kiss_encapsulate(in []byte) []byte {
	var buf bytes.Buffer

	buf.WriteByte(FEND)

	for _, b := range in {
		switch b {
		case FEND:
			buf.WriteByte(FESC)
			buf.WriteByte(TFEND)
		case FESC:
			buf.WriteByte(FESC)
			buf.WriteByte(TFESC)
		default:
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(FEND)

	return buf.Bytes()
} /* end kiss_encapsulate */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_unwrap
 *
 * Purpose:     Extract original data from a KISS frame.
 *
 * Inputs:	in	- The received KISS encoded representation.
 *			  The sequence is:
 *				FEND		- Magic frame separator, optional.
 *				data		- with escapes.
 *				FEND		- Magic frame separator.
 *
 * Returns:	The frame without the escapes or FEND.
 *		First byte is the "type indicator" with type and channel.
 *		Note that this is "binary" data and can contain
 *		nul (0x00) values.   Don't treat it like a text string!
 *
 *		ErrDesync when an escape sequence is malformed.  The
 *		caller drops the frame and picks up again at the next
 *		FEND, so one mangled frame never takes the stream down.
 *
 *-----------------------------------------------------------------*/

func kiss_unwrap(in []byte) ([]byte, error) {
	if len(in) < 2 {
		/* Need at least the "type indicator" byte and FEND. */
		/* Probably more. */
		return nil, fmt.Errorf("%w: message less than minimum length", ErrDesync)
	}

	if in[len(in)-1] == FEND {
		in = in[:len(in)-1] // Ignore last FEND
	}

	if len(in) > 0 && in[0] == FEND {
		in = in[1:] // Skip over optional leading FEND
	}

	var escapedMode = false
	var buf bytes.Buffer
	for _, b := range in {
		if escapedMode {
			switch b {
			case TFESC:
				buf.WriteByte(FESC)
			case TFEND:
				buf.WriteByte(FEND)
			default:
				return nil, fmt.Errorf("%w: found 0x%02x after FESC", ErrDesync, b)
			}
			escapedMode = false
		} else if b == FESC {
			escapedMode = true
		} else if b == FEND {
			return nil, fmt.Errorf("%w: FEND in the middle of a frame", ErrDesync)
		} else {
			buf.WriteByte(b)
		}
	}

	if escapedMode {
		return nil, fmt.Errorf("%w: frame ends with a dangling FESC", ErrDesync)
	}

	return buf.Bytes(), nil
} /* end kiss_unwrap */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_debug_print
 *
 * Purpose:     Print message to/from client for debugging.
 *
 * Inputs:	fromto		- Direction of message.
 *		special		- Comment if not a KISS frame.
 *		pmsg		- The message block.
 *
 *--------------------------------------------------------------------*/

func kiss_debug_print(fromto fromto_t, special string, pmsg []byte) {
	var direction = []string{"from", "to"}
	var prefix = []string{"<<<", ">>>"}
	var function = []string{
		"Data frame", "TXDELAY", "P", "SlotTime",
		"TXtail", "FullDuplex", "SetHardware", "Invalid 7",
		"Invalid 8", "Invalid 9", "Invalid 10", "Invalid 11",
		"XKISS data", "Invalid 13", "XKISS poll", "Return"}

	if special == "" {
		if len(pmsg) > 0 && pmsg[0] == FEND {
			/* Skip over FEND if present. */
			pmsg = pmsg[1:]
		}
		if len(pmsg) == 0 {
			return
		}

		kiss_log.Debugf("%s %s %s KISS client application, channel %d, total length = %d\n%s",
			prefix[fromto], function[pmsg[0]&0xf], direction[fromto],
			(pmsg[0]>>4)&0xf, len(pmsg), hex_dump(pmsg))
	} else {
		kiss_log.Debugf("%s %s %s KISS client application, total length = %d\n%s",
			prefix[fromto], special, direction[fromto],
			len(pmsg), hex_dump(pmsg))
	}
} /* end kiss_debug_print */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_rec_byte
 *
 * Purpose:     Process one byte from a KISS stream.
 *
 * Inputs:	kf	- Current state of building a frame.
 *		ch	- A byte from the input stream.
 *		debug	- Activates debug output.
 *		handler	- Where completed data frames go.
 *		sendfun	- Function to send something back on the same
 *			  stream.  Used for poll and hardware query
 *			  responses.
 *
 * Outputs:	kf	- Current state is updated.
 *
 *-----------------------------------------------------------------*/

/*
 * Application might send some commands to put a TNC into KISS mode.
 * For example, APRSIS32 sends something like:
 *
 *	<0x0d>
 *	XFLOW OFF<0x0d>
 *	FULLDUP OFF<0x0d>
 *	KISS ON<0x0d>
 *	RESTART<0x0d>
 *
 * This keeps repeating over and over and over and over again if
 * it doesn't get any sort of response.
 *
 * Let's try to keep it happy by sending back a command prompt.
 */

func kiss_rec_byte(kf *kiss_frame_t, ch byte, debug int, handler kiss_handler_fun, sendfun kiss_sendfun) {
	switch kf.state {
	case KS_SEARCHING: /* Searching for starting FEND. */
		if ch == FEND {
			/* Start of frame.  But first print any collected noise for debugging. */

			if kf.noise_len > 0 {
				if debug > 0 {
					kiss_debug_print(FROM_CLIENT, "Rejected Noise", kf.noise[:kf.noise_len])
				}
				kf.noise_len = 0
			}

			kf.kiss_len = 1
			kf.kiss_msg[0] = ch
			kf.overrun = false
			kf.state = KS_COLLECTING
			return
		}

		/* Noise to be rejected. */

		if kf.noise_len < MAX_NOISE_LEN {
			kf.noise[kf.noise_len] = ch
			kf.noise_len++
		}
		if ch == '\r' {
			if debug > 0 {
				kiss_debug_print(FROM_CLIENT, "Rejected Noise", kf.noise[:kf.noise_len])
			}

			/* Try to appease client app by sending something back. */

			var noise = string(kf.noise[:kf.noise_len])
			if sendfun != nil {
				if strings.EqualFold("restart\r", noise) || strings.EqualFold("reset\r", noise) {
					sendfun([]byte{FEND, FEND})
				} else {
					sendfun([]byte("\r\ncmd:"))
				}
			}
			kf.noise_len = 0
		}
		return

	case KS_COLLECTING: /* Frame collection in progress. */
		if ch == FEND {
			/* End of frame. */

			if kf.kiss_len == 1 && kf.kiss_msg[0] == FEND {
				/* Empty frame.  Just go on collecting. */
				return
			}

			if kf.overrun {
				kiss_log.Error("KISS frame exceeded maximum length, discarded.")
				kf.kiss_len = 1
				kf.kiss_msg[0] = FEND
				kf.overrun = false
				return
			}

			kf.kiss_msg[kf.kiss_len] = ch
			kf.kiss_len++
			if debug > 0 {
				/* As received over the wire. */
				kiss_debug_print(FROM_CLIENT, "", kf.kiss_msg[:kf.kiss_len])
			}

			var unwrapped, unwrapErr = kiss_unwrap(kf.kiss_msg[:kf.kiss_len])
			if unwrapErr != nil {
				kiss_log.Error("Dropping frame.", "err", unwrapErr)
				kf.state = KS_SEARCHING
				return
			}

			kiss_process_msg(unwrapped, debug, handler, sendfun)

			kf.state = KS_SEARCHING
			return
		}

		if kf.kiss_len < MAX_KISS_LEN-1 {
			kf.kiss_msg[kf.kiss_len] = ch
			kf.kiss_len++
		} else {
			kf.overrun = true
		}
		return
	}
} /* end kiss_rec_byte */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_process_msg
 *
 * Purpose:     Process a complete message from a KISS stream.
 *
 * Inputs:	kiss_msg	- KISS frame with FEND and escapes removed.
 *				  The first byte contains channel and command.
 *
 *		debug		- Debug option is selected.
 *
 *		handler		- Where a data frame goes.
 *
 *		sendfun		- Function to send something back on the
 *				  same stream.
 *
 *-----------------------------------------------------------------*/

func kiss_process_msg(kiss_msg []byte, debug int, handler kiss_handler_fun, sendfun kiss_sendfun) {
	if len(kiss_msg) == 0 {
		return
	}

	var channel = int(kiss_msg[0]>>4) & 0xf
	var cmd = kiss_msg[0] & 0xf

	switch cmd {
	case KISS_CMD_DATA_FRAME: /* 0 = Data Frame */

		if handler != nil {
			handler(channel, kiss_msg[1:])
		}

	case XKISS_CMD_DATA: /* 12 = G8BPQ data with XOR checksum. */

		/* Last byte is the XOR of everything before it, command */
		/* byte included.  Drop the frame on mismatch; the other */
		/* end's hole list recovers the loss. */

		if len(kiss_msg) < 2 {
			kiss_log.Error("XKISS data frame too short for a checksum.")
			return
		}
		var check byte = 0
		for _, b := range kiss_msg[:len(kiss_msg)-1] {
			check ^= b
		}
		if check != kiss_msg[len(kiss_msg)-1] {
			kiss_log.Error("XKISS checksum mismatch, frame discarded.",
				"computed", fmt.Sprintf("%02x", check),
				"received", fmt.Sprintf("%02x", kiss_msg[len(kiss_msg)-1]))
			return
		}
		if handler != nil {
			handler(channel, kiss_msg[1:len(kiss_msg)-1])
		}

	case XKISS_CMD_POLL: /* 14 = G8BPQ poll. */

		/* Nothing is queued per-poll here; answer with an empty */
		/* poll so a multi-drop master moves on. */

		if sendfun != nil {
			sendfun(kiss_encapsulate([]byte{byte(channel<<4) | XKISS_CMD_POLL}))
		}

	case KISS_CMD_TXDELAY: /* 1 = TXDELAY */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for TXDELAY command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set TXDELAY = %d (*10mS units = %d mS), channel %d", kiss_msg[1], int(kiss_msg[1])*10, channel))
		kiss_log.Info("There is no modem behind this TNC so the value is noted and ignored.")

	case KISS_CMD_PERSISTENCE: /* 2 = Persistence */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for PERSISTENCE command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set Persistence = %d, channel %d", kiss_msg[1], channel))
		kiss_log.Info("There is no modem behind this TNC so the value is noted and ignored.")

	case KISS_CMD_SLOTTIME: /* 3 = SlotTime */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for SLOTTIME command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set SlotTime = %d (*10mS units = %d mS), channel %d", kiss_msg[1], int(kiss_msg[1])*10, channel))
		kiss_log.Info("There is no modem behind this TNC so the value is noted and ignored.")

	case KISS_CMD_TXTAIL: /* 4 = TXtail */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for TXTAIL command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set TXtail = %d (*10mS units = %d mS), channel %d", kiss_msg[1], int(kiss_msg[1])*10, channel))
		kiss_log.Info("There is no modem behind this TNC so the value is noted and ignored.")

	case KISS_CMD_FULLDUPLEX: /* 5 = FullDuplex */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for FULLDUPLEX command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set FullDuplex = %d, channel %d", kiss_msg[1], channel))

	case KISS_CMD_SET_HARDWARE: /* 6 = TNC specific */

		if len(kiss_msg) < 2 {
			kiss_log.Error("KISS ERROR: Missing value for SET HARDWARE command.")
			return
		}
		kiss_log.Info(fmt.Sprintf("KISS protocol set hardware \"%s\", channel %d", kiss_msg[1:], channel))
		kiss_set_hardware(channel, kiss_msg[1:], sendfun)

	case KISS_CMD_END_KISS: /* 15 = End KISS mode, channel should be 15. */
		/* Ignore it. */
		kiss_log.Info("KISS protocol end KISS mode - Ignored.")

	default:
		kiss_log.Error(fmt.Sprintf("KISS Invalid command %d", cmd))
		kiss_debug_print(FROM_CLIENT, "", kiss_msg)

		kiss_log.Info("Troubleshooting tip: use the -d option to observe all communication with the client application.")
	}
} /* end kiss_process_msg */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_set_hardware
 *
 * Purpose:     Process the "set hardware" command.
 *
 * Inputs:	channel		- channel, 0 - 15.
 *
 *		command		- All but the first byte.  e.g.  "TXBUF:"
 *				  Case sensitive.
 *
 *		sendfun		- Function to send the response back on
 *				  the same stream the query arrived on.
 *
 * Description:	The original KISS protocol spec offers no guidance on
 *		what "Set Hardware" might look like.  The fldigi
 *		convention is human readable in both directions:
 *
 *			COMMAND: [ parameter [ , parameter ... ] ]
 *
 *		Lack of a parameter, in the client to TNC direction,
 *		is a query which should generate a response in the
 *		same format.
 *
 * Queries:	Query		Response		Comment
 *		-----		--------		-------
 *
 *		TNC:		TNC:MALAMUTE 9.9	9.9 is current version.
 *
 *		TXBUF:		TXBUF:999		Number of bytes (not frames)
 *							in transmit queue.
 *
 *--------------------------------------------------------------------*/

func kiss_set_hardware(channel int, command []byte, sendfun kiss_sendfun) {
	var cmd, value, found = bytes.Cut(command, []byte{':'})

	if !found {
		kiss_log.Error(fmt.Sprintf("KISS Set Hardware \"%s\" expected the form COMMAND:[parameter[,parameter...]]", command))
		return
	}

	var respond = func(response string) {
		if sendfun != nil {
			sendfun(kiss_encapsulate(append([]byte{byte(channel<<4) | KISS_CMD_SET_HARDWARE}, response...)))
		}
	}

	switch {
	case bytes.Equal(cmd, []byte("TNC")): /* TNC - Identify software version. */
		if len(value) > 0 {
			kiss_log.Error("KISS Set Hardware TNC: Did not expect a parameter.")
		}
		respond(fmt.Sprintf("TNC:MALAMUTE %s", MALAMUTE_VERSION))

	case bytes.Equal(cmd, []byte("TXBUF")): /* TXBUF - Number of bytes in transmit queue. */
		if len(value) > 0 {
			kiss_log.Error("KISS Set Hardware TXBUF: Did not expect a parameter.")
		}
		respond(fmt.Sprintf("TXBUF:%d", tq_byte_count()))

	default:
		kiss_log.Error(fmt.Sprintf("KISS Set Hardware unrecognized command: %s.", cmd))
	}
} /* end kiss_set_hardware */
