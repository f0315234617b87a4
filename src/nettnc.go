package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Attach to a network KISS TNC.
 *
 * Description:	Some TNCs, software modems, and SDR rigs present the
 *		radio as KISS over TCP rather than a serial device.
 *		This attaches to one of those.  Frames decoded from the
 *		stream go into the received frame queue for the
 *		dispatcher, the same as the serial port TNC.
 *
 *		If the TNC goes away we keep trying to reattach.  The
 *		term "attach" is used here in an attempt to avoid
 *		confusion with the AX.25 connect.
 *
 *---------------------------------------------------------------*/

import (
	"net"
	"strconv"
	"sync"
)

var nettnc_mu sync.Mutex

var nettnc_sock net.Conn

var nettnc_host string

var nettnc_port int

var nettnc_kf kiss_frame_t /* Accumulated KISS frame and state of decoder. */

var nettnc_debug = 0

func nettnc_set_debug(n int) {
	nettnc_debug = n
}

/*-------------------------------------------------------------------
 *
 * Name:        nettnc_init
 *
 * Purpose:     Attach to a network KISS TNC.
 *
 * Inputs:	host	- Host name or IP address.  Often "localhost".
 *
 *		port	- TCP port number.  Typically 8001.
 *
 * Description:	The initial attachment must succeed so a bad host name
 *		or port number shows up at startup rather than as an
 *		endless quiet retry loop.  After that, a TNC that goes
 *		away is reattached automatically.
 *
 *--------------------------------------------------------------------*/

func nettnc_init(host string, port int) error {
	nettnc_host = host
	nettnc_port = port

	var conn, connErr = net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if connErr != nil {
		return connErr
	}

	nettnc_mu.Lock()
	nettnc_sock = conn
	nettnc_mu.Unlock()

	kiss_log.Infof("Attached to network TNC at %s:%d.", host, port)

	radio_send_frame = nettnc_send_frame

	/*
	 * Read frames from the network TNC.
	 * If the TNC disappears, try to reestablish communication.
	 */
	go nettnc_listen_thread()
	return nil
} /* end nettnc_init */

func nettnc_conn() net.Conn {
	nettnc_mu.Lock()
	defer nettnc_mu.Unlock()
	return nettnc_sock
}

func nettnc_drop_conn() {
	nettnc_mu.Lock()
	if nettnc_sock != nil {
		nettnc_sock.Close()
		nettnc_sock = nil
	}
	nettnc_mu.Unlock()
}

/*-------------------------------------------------------------------
 *
 * Name:        nettnc_listen_thread
 *
 * Purpose:     Listen for anything from TNC and process it.
 *		Reconnect if something goes wrong and we got
 *		disconnected.
 *
 *--------------------------------------------------------------------*/

func nettnc_listen_thread() {

	var handler = func(channel int, frame []byte) {
		// Use the channel associated with this TNC, not the channel
		// in the KISS frame.
		dlq_rec_frame(0, frame)
	}

	var buf = make([]byte, 2048)

	for {
		var conn = nettnc_conn()

		if conn == nil {
			kiss_log.Error("Attempting to reattach to network TNC...")

			var newConn, connErr = net.Dial("tcp", net.JoinHostPort(nettnc_host, strconv.Itoa(nettnc_port)))
			if connErr != nil {
				SLEEP_SEC(5)
				continue
			}

			nettnc_mu.Lock()
			nettnc_sock = newConn
			nettnc_kf = kiss_frame_t{} // Start with clean state.
			nettnc_mu.Unlock()

			kiss_log.Error("Successfully reattached to network TNC.")
			continue
		}

		var n, readErr = conn.Read(buf)
		if readErr != nil {
			kiss_log.Error("Lost communication with network TNC.  Will try to reattach.")
			nettnc_drop_conn()
			SLEEP_SEC(5)
			continue
		}

		for j := 0; j < n; j++ {
			// Separate the byte stream into KISS frame(s) and make it
			// look like this came from a radio channel.
			kiss_rec_byte(&nettnc_kf, buf[j], nettnc_debug, handler, nil)
		}
	}
} /* end nettnc_listen_thread */

/*-------------------------------------------------------------------
 *
 * Name:	nettnc_send_frame
 *
 * Purpose:	Send a frame to the radio by way of the network TNC.
 *
 * Inputs:	channel	- Radio channel number.
 *
 *		fbuf	- Raw frame octets, FCS included.
 *
 * Returns:	True if the frame was written.
 *
 *-----------------------------------------------------------------*/

func nettnc_send_frame(channel int, fbuf []byte) bool {

	var conn = nettnc_conn()
	if conn == nil {
		return false
	}

	var frame_buff = []byte{byte((channel << 4) | KISS_CMD_DATA_FRAME)}
	frame_buff = append(frame_buff, fbuf...)

	// Encapsulate into KISS frame with surrounding FENDs and any escapes.

	var kiss_buff = kiss_encapsulate(frame_buff)

	if nettnc_debug > 0 {
		kiss_debug_print(TO_CLIENT, "", kiss_buff)
	}

	var _, err = conn.Write(kiss_buff)
	if err != nil {
		kiss_log.Errorf("Error sending frame to network TNC (%v).  Closing connection.", err)
		nettnc_drop_conn()
		return false
	}

	return true
} /* end nettnc_send_frame */
