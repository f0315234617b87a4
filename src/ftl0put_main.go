package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for standalone application to upload a
 *		file to a PACSAT server.
 *
 * Inputs:	One file name on the command line, plus options for
 *		the KISS TNC to transmit through and the callsigns
 *		involved.
 *
 * Outputs:	Progress on stdout.  Exit status 0 when the server
 *		acknowledges the complete file.
 *
 * Description:	./ftl0put -t localhost:8001 -m W1AW -s PACSAT hello.txt
 *
 *		The file is wrapped in a PACSAT file header unless it
 *		already starts with one, offered with UPLOAD_CMD, and
 *		streamed in DATA packets.  After DATA_END the server
 *		either acknowledges or answers with the list of byte
 *		ranges it is missing, which are sent again.  A partial
 *		upload can be resumed later with --file-number.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type ftl0put_resp_t struct {
	ptype   int
	payload []byte
}

type ftl0put_t struct {
	conn   net.Conn
	kf     kiss_frame_t
	mycall ax25_addr_t
	server ax25_addr_t

	pending []ftl0put_resp_t /* Responses decoded but not yet consumed. */
}

func FTL0PutMain(args []string) {
	var fs = pflag.NewFlagSet("ftl0put", pflag.ExitOnError)

	var tnc = fs.StringP("tnc", "t", "localhost:8001", "KISS TNC to transmit through, host:port.")
	var mycallStr = fs.StringP("mycall", "m", "", "Your callsign.  Required.")
	var serverStr = fs.StringP("server", "s", "", "File server callsign.  Required.")
	var to = fs.StringP("to", "T", "ALL", "Destination callsign written into the file header.")
	var desc = fs.StringP("description", "i", "", "One line description written into the file header.")
	var fileNumber = fs.Uint32P("file-number", "n", 0, "Resume this partial upload instead of starting a new one.")
	var chunkSize = fs.IntP("chunk-size", "k", 244, "Data bytes per packet.")
	var pace = fs.IntP("pace", "P", 100, "Milliseconds between data packets.")
	var timeout = fs.IntP("timeout", "w", 60, "Seconds to wait for each response.")
	var retries = fs.IntP("retries", "r", 5, "Rounds of hole filling before giving up.")

	var help = fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - upload a file to a PACSAT server.\n", args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: ftl0put [options] file\n")
		fs.PrintDefaults()
	}

	fs.Parse(args[1:])

	if *help {
		fs.Usage()
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Exactly one file to upload must be given.\n")
		fs.Usage()
		os.Exit(1)
	}

	var mycall, myErr = ax25_parse_addr(*mycallStr)
	if myErr != nil {
		fmt.Printf("Bad --mycall: %v\n", myErr)
		os.Exit(1)
	}
	var server, serverErr = ax25_parse_addr(*serverStr)
	if serverErr != nil {
		fmt.Printf("Bad --server: %v\n", serverErr)
		os.Exit(1)
	}

	/* Two bytes of packet header and four of offset ride along with */
	/* every chunk, and the whole packet must fit one frame. */

	if *chunkSize < 1 || *chunkSize > AX25_MAX_INFO_LEN-2-4 {
		fmt.Printf("Chunk size must be between 1 and %d.\n", AX25_MAX_INFO_LEN-2-4)
		os.Exit(1)
	}

	var fname = fs.Arg(0)
	var blob, blobErr = ftl0put_build(fname, mycall.String(), *to, *desc)
	if blobErr != nil {
		fmt.Printf("%s: %v\n", fname, blobErr)
		os.Exit(1)
	}

	var conn, dialErr = net.Dial("tcp", *tnc)
	if dialErr != nil {
		fmt.Printf("Cannot connect to KISS TNC at %s: %v\n", *tnc, dialErr)
		os.Exit(1)
	}
	defer conn.Close()

	var up = &ftl0put_t{conn: conn, mycall: mycall, server: server}
	var wait = time.Duration(*timeout) * time.Second

	/* Offer the file.  0 asks for a new file number, anything else */
	/* re-attaches to a partial upload on the server. */

	var cmd = make([]byte, 8)
	binary.LittleEndian.PutUint32(cmd[0:4], *fileNumber)
	binary.LittleEndian.PutUint32(cmd[4:8], uint32(len(blob)))
	if err := up.send_packet(FTL0_TYPE_UPLOAD_CMD, cmd); err != nil {
		fmt.Printf("Cannot send: %v\n", err)
		os.Exit(1)
	}

	var ptype, payload, respErr = up.wait_response(wait)
	if respErr != nil {
		fmt.Printf("%v\n", respErr)
		os.Exit(1)
	}

	var cont uint32
	var assigned uint32

	switch {
	case ptype == FTL0_TYPE_UL_GO_RESP && len(payload) == 8:
		assigned = binary.LittleEndian.Uint32(payload[0:4])
		cont = binary.LittleEndian.Uint32(payload[4:8])
	case ptype == FTL0_TYPE_UL_ERROR_RESP && len(payload) == 1:
		fmt.Printf("Server refused the upload: %s.\n", ftl0_err_text(payload[0]))
		os.Exit(1)
	default:
		fmt.Printf("Unexpected %s response to UPLOAD_CMD.\n", ftl0_type_text(ptype))
		os.Exit(1)
	}

	if cont > 0 {
		fmt.Printf("Resuming file %d at offset %d of %d.\n", assigned, cont, len(blob))
	} else {
		fmt.Printf("Uploading %d bytes as file %d.\n", len(blob), assigned)
	}

	if err := up.send_range(blob, int(cont), len(blob), *chunkSize, *pace); err != nil {
		fmt.Printf("Cannot send: %v\n", err)
		os.Exit(1)
	}

	var crc = make([]byte, 2)
	binary.LittleEndian.PutUint16(crc, fcs_calc(blob))

	for round := 0; round < *retries; round++ {
		if err := up.send_packet(FTL0_TYPE_DATA_END, crc); err != nil {
			fmt.Printf("Cannot send: %v\n", err)
			os.Exit(1)
		}

		ptype, payload, respErr = up.wait_response(wait)
		if respErr != nil {
			fmt.Printf("%v\n", respErr)
			os.Exit(1)
		}

		switch ptype {
		case FTL0_TYPE_UL_ACK_RESP:
			fmt.Printf("Upload complete, file %d.\n", assigned)
			return

		case FTL0_TYPE_UL_NAK_RESP:
			var holes, holesErr = ftl0_holes_decode(payload)
			if holesErr != nil {
				fmt.Printf("Cannot make sense of the server's hole list: %v\n", holesErr)
				os.Exit(1)
			}
			fmt.Printf("Server is missing %d ranges, sending them again.\n", len(holes))
			for _, h := range holes {
				var end = min(int(h.end), len(blob))
				if err := up.send_range(blob, int(h.start), end, *chunkSize, *pace); err != nil {
					fmt.Printf("Cannot send: %v\n", err)
					os.Exit(1)
				}
			}

		case FTL0_TYPE_UL_ERROR_RESP:
			if len(payload) == 1 {
				fmt.Printf("Server rejected the upload: %s.\n", ftl0_err_text(payload[0]))
			} else {
				fmt.Printf("Server rejected the upload.\n")
			}
			os.Exit(1)

		default:
			fmt.Printf("Unexpected %s response to DATA_END.\n", ftl0_type_text(ptype))
			os.Exit(1)
		}
	}

	fmt.Printf("Server still reports missing data after %d rounds.  Giving up.\n", *retries)
	fmt.Printf("The upload can be resumed with --file-number %d.\n", assigned)
	os.Exit(1)
} /* end FTL0PutMain */

/*------------------------------------------------------------------
 *
 * Name:	ftl0put_build
 *
 * Purpose:	Produce the header plus body blob to be uploaded.
 *
 * Description:	A file that already begins with a valid PACSAT file
 *		header is sent exactly as it is, so a previously
 *		downloaded file can be passed along.  Anything else
 *		gets a fresh header built around it.  The server
 *		assigns the real file number and upload time when it
 *		commits, whatever these say.
 *
 *------------------------------------------------------------------*/

func ftl0put_build(fname string, source string, dest string, desc string) ([]byte, error) {
	var data, readErr = os.ReadFile(fname)
	if readErr != nil {
		return nil, readErr
	}

	if _, _, err := pfh_parse(data); err == nil {
		fmt.Printf("%s already has a file header, sending as is.\n", fname)
		return data, nil
	}

	var stat, statErr = os.Stat(fname)
	if statErr != nil {
		return nil, statErr
	}

	var p = new(pfh_t)
	p.file_name, p.file_ext = name_to_83(fname)
	p.file_size = 0 /* Patched below once the header length is known. */
	p.create_time = uint32(stat.ModTime().Unix())
	p.source = source
	p.destination = dest
	p.body_desc = desc

	/* The size item is fixed width, so restamping it does not */
	/* change the header length. */

	var header = p.serialize()
	p.file_size = uint32(len(header) + len(data))
	header = p.serialize()

	return append(header, data...), nil
} /* end ftl0put_build */

/* Squeeze a path's base name into the 8.3 form the header wants. */

func name_to_83(fname string) (string, string) {
	var base = filepath.Base(fname)
	var name = base
	var ext = ""

	if dot := strings.LastIndex(base, "."); dot > 0 {
		name = base[:dot]
		ext = base[dot+1:]
	}

	if len(name) > 8 {
		name = name[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return name, ext
} /* end name_to_83 */

/*------------------------------------------------------------------
 *
 * Name:	send_packet / send_range
 *
 * Purpose:	Wrap FTL0 packets into UI frames into KISS and out
 *		the TCP connection.
 *
 *------------------------------------------------------------------*/

func (up *ftl0put_t) send_packet(ptype int, payload []byte) error {
	var pp = &ax25_packet_t{
		dest: up.server,
		src:  up.mycall,
		pid:  PID_FTL0,
		info: ftl0_encode(ptype, payload),
	}

	var frame, err = ax25_pack(pp)
	if err != nil {
		return err
	}

	var _, werr = up.conn.Write(kiss_encapsulate(append([]byte{0}, frame...)))
	return werr
} /* end send_packet */

func (up *ftl0put_t) send_range(blob []byte, start int, end int, chunk int, pace int) error {
	for off := start; off < end; off += chunk {
		var n = min(chunk, end-off)

		var payload = make([]byte, 4+n)
		binary.LittleEndian.PutUint32(payload, uint32(off))
		copy(payload[4:], blob[off:off+n])

		if err := up.send_packet(FTL0_TYPE_DATA, payload); err != nil {
			return err
		}

		/* Give the TNC a chance to empty its queue over the air. */

		SLEEP_MS(pace)
	}
	return nil
} /* end send_range */

/*------------------------------------------------------------------
 *
 * Name:	wait_response
 *
 * Purpose:	Block until the server sends us an FTL0 packet or the
 *		timeout passes.
 *
 * Description:	The TNC hands over everything it hears, including our
 *		own directory broadcasts coming back and unrelated
 *		traffic, so frames are filtered down to FTL0 from the
 *		server to us before being decoded.
 *
 *------------------------------------------------------------------*/

func (up *ftl0put_t) wait_response(timeout time.Duration) (int, []byte, error) {
	var deadline = time.Now().Add(timeout)
	var buf [1024]byte

	for {
		if len(up.pending) > 0 {
			var r = up.pending[0]
			up.pending = up.pending[1:]
			return r.ptype, r.payload, nil
		}

		if err := up.conn.SetReadDeadline(deadline); err != nil {
			return 0, nil, err
		}

		var n, readErr = up.conn.Read(buf[:])
		for i := 0; i < n; i++ {
			kiss_rec_byte(&up.kf, buf[i], 0, up.take_frame, nil)
		}
		if readErr != nil {
			if errors.Is(readErr, os.ErrDeadlineExceeded) {
				return 0, nil, fmt.Errorf("no response from %s within %s", up.server, timeout)
			}
			return 0, nil, readErr
		}
	}
} /* end wait_response */

func (up *ftl0put_t) take_frame(channel int, frame []byte) {
	var pp, err = ax25_unpack(frame)
	if err != nil {
		return
	}
	if pp.pid != PID_FTL0 || pp.src != up.server || pp.dest != up.mycall {
		return
	}

	var data = pp.info
	for len(data) > 0 {
		var ptype, payload, rest, derr = ftl0_decode(data)
		if derr != nil {
			return
		}
		up.pending = append(up.pending, ftl0put_resp_t{ptype, append([]byte(nil), payload...)})
		data = rest
	}
} /* end take_frame */
