package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Provide service to other applications via "AGW TCPIP
 *		Socket Interface".
 *
 * Description:	This provides a TCP socket for communication with a
 *		client application.  It implements the subset of the
 *		AGW socket interface that makes sense for a station
 *		carrying only UI frames.
 *
 *		Commands from application recognized:
 *
 *			'R'	Request for version number.
 *
 *			'G'	Ask about radio ports.
 *
 *			'g'	Capabilities of a port.
 *
 *			'k'	Ask to start receiving RAW AX25 frames.
 *
 *			'm'	Ask to start receiving Monitor AX25 frames.
 *
 *			'V'	Transmit UI data frame.
 *
 *			'M'	Transmit UI data frame, no digipeaters.
 *
 *			'K'	Transmit raw AX.25 frame.
 *
 *			'X'	Register CallSign
 *
 *			'x'	Unregister CallSign
 *
 *			'y'	Ask Outstanding frames waiting on a Port
 *
 *		Connected mode commands ('C', 'v', 'c', 'D') draw an
 *		immediate disconnect notice.  The PACSAT protocols all
 *		ride in UI frames; there is no link state machine here
 *		to connect to.
 *
 *		Messages sent to client application:
 *
 *			'R'	Version number.
 *			'G'	Port information.
 *			'g'	Port capabilities.
 *			'X'	Callsign registration result.
 *			'K'	Received frame in raw format.   (Enabled with 'k'.)
 *			'U'	Received frame in monitor format.  (Enabled with 'm'.)
 *			'T'	Own transmitted frame in monitor format.
 *			'y'	Frames outstanding on a port.
 *			'd'	Disconnected.
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
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

var server_mu sync.Mutex /* Guards the three client tables. */

var client_sock [MAX_NET_CLIENTS]net.Conn

var enable_send_raw_to_client [MAX_NET_CLIENTS]bool

/* Should we send received packets to client app in raw form? */
/* Note that it starts as false for a new connection. */
/* The client app must send a command to enable this. */

var enable_send_monitor_to_client [MAX_NET_CLIENTS]bool

var debug_client int = 0 /* Print information flowing from and to client. */

func server_set_debug(n int) {
	debug_client = n
}

func debug_print(fromto fromto_t, client int, pmsg *AGWPEMessage) {
	var direction = map[fromto_t]string{FROM_CLIENT: "from", TO_CLIENT: "to"}[fromto]

	agwpe_log.Debugf("'%c' %s client application %d: port %d, pid %02x, call_from \"%s\", call_to \"%s\", data_len %d\n%s",
		pmsg.Header.DataKind, direction, client,
		pmsg.Header.Portx, pmsg.Header.PID,
		pmsg.Header.CallFrom, pmsg.Header.CallTo,
		pmsg.Header.DataLen, hex_dump(pmsg.Data))
}

/*-------------------------------------------------------------------
 *
 * Name:        server_init
 *
 * Purpose:     Set up a server to listen for connection requests from
 *		an application.
 *
 * Inputs:	server_port	- TCP port for server.  0 means disable.
 *
 * Description:	This starts at least two threads:
 *		  *  one to listen for a connection from client app.
 *		  *  one or more to listen for commands from client app.
 *		so the main application doesn't block while we wait for
 *		these.
 *
 *--------------------------------------------------------------------*/

func server_init(server_port int) {

	for client := 0; client < MAX_NET_CLIENTS; client++ {
		enable_send_raw_to_client[client] = false
		enable_send_monitor_to_client[client] = false
	}

	if server_port == 0 {
		agwpe_log.Info("Disabled AGW network client port.")
		return
	}

	/*
	 * This waits for a client to connect and sets an available client_sock[n].
	 */
	go server_connect_listen_thread(server_port)

	/*
	 * These read messages from client when client_sock[n] is valid.
	 * One thread for each potential connection.
	 */
	for client := 0; client < MAX_NET_CLIENTS; client++ {
		go cmd_listen_thread(client)
	}
} /* end server_init */

func server_connect_listen_thread(server_port int) {

	var listener, listenErr = net.Listen("tcp", fmt.Sprintf(":%d", server_port))
	if listenErr != nil {
		agwpe_log.Errorf("Could not listen for AGW client applications: %v", listenErr)
		return
	}

	for {
		var client = -1
		server_mu.Lock()
		for c := 0; c < MAX_NET_CLIENTS && client < 0; c++ {
			if client_sock[c] == nil {
				client = c
			}
		}
		server_mu.Unlock()

		if client < 0 {
			SLEEP_SEC(1) /* wait then check again if more clients allowed. */
			continue
		}

		agwpe_log.Infof("Ready to accept AGW client application %d on port %d ...", client, server_port)

		var conn, acceptErr = listener.Accept()
		if acceptErr != nil {
			agwpe_log.Errorf("Accept failed: %v", acceptErr)
			continue
		}

		agwpe_log.Infof("Attached to AGW client application %d.", client)

		/*
		 * The command to enable raw or monitor frames is a toggle, not
		 * explicit on or off.  Make sure it has proper state when we
		 * get a new connection.
		 */
		server_mu.Lock()
		enable_send_raw_to_client[client] = false
		enable_send_monitor_to_client[client] = false
		client_sock[client] = conn
		server_mu.Unlock()
	}
} /* end server_connect_listen_thread */

func server_client_conn(client int) net.Conn {
	server_mu.Lock()
	defer server_mu.Unlock()
	return client_sock[client]
}

func server_close_client(client int) {
	server_mu.Lock()
	if client_sock[client] != nil {
		client_sock[client].Close()
		client_sock[client] = nil
	}
	server_mu.Unlock()
}

/*-------------------------------------------------------------------
 *
 * Name:        server_send_rec_packet
 *
 * Purpose:     Send a received packet to the client app.
 *
 * Inputs:	channel		- Radio channel where packet was received.
 *
 *		pp		- The parsed frame, for the monitor format.
 *
 *		fbuf		- Raw frame octets, FCS included.
 *
 * Description:	There are two different formats:
 *			RAW - the original received frame.
 *			MONITOR - human readable monitoring format.
 *
 *--------------------------------------------------------------------*/

func server_send_rec_packet(channel int, pp *ax25_packet_t, fbuf []byte) {

	for client := 0; client < MAX_NET_CLIENTS; client++ {
		if !enable_send_raw_to_client[client] || server_client_conn(client) == nil {
			continue
		}

		var msg = new(AGWPEMessage)

		msg.Header.Portx = byte(channel)
		msg.Header.DataKind = 'K'
		msg.Header.CallFrom = callsign_field(pp.src.String())
		msg.Header.CallTo = callsign_field(pp.dest.String())

		/* Stick in extra byte for the "TNC" to use. */

		msg.Data = make([]byte, 1+len(fbuf))
		msg.Data[0] = byte(channel) << 4
		copy(msg.Data[1:], fbuf)

		send_to_client(client, msg)
	}

	/* Application might want more human readable format. */

	server_send_monitored(channel, pp, false)
} /* end server_send_rec_packet */

/*
 * Monitor format.  Only UI frames pass through this station so the
 * description is always the UI form, e.g.
 *
 *	 1:Fm G0ABC To PACSAT <UI pid=BD Len=77 >[11:22:33]
 *
 * 'T' marks our own transmissions, 'U' everything heard.
 */

func server_send_monitored(channel int, pp *ax25_packet_t, own_xmit bool) {

	for client := 0; client < MAX_NET_CLIENTS; client++ {
		if !enable_send_monitor_to_client[client] || server_client_conn(client) == nil {
			continue
		}

		var msg = new(AGWPEMessage)

		msg.Header.Portx = byte(channel)
		msg.Header.DataKind = 'U'
		if own_xmit {
			msg.Header.DataKind = 'T'
		}
		msg.Header.CallFrom = callsign_field(pp.src.String())
		msg.Header.CallTo = callsign_field(pp.dest.String())

		var text = fmt.Sprintf(" %d:Fm %s To %s", channel+1, pp.src, pp.dest)
		for i, d := range pp.digi {
			if i == 0 {
				text += " Via " + d.String()
			} else {
				text += "," + d.String()
			}
		}
		text += fmt.Sprintf(" <UI pid=%02X Len=%d >", pp.pid, len(pp.info))
		text += time.Now().Format("[15:04:05]\r")

		msg.Data = append([]byte(text), pp.info...)
		msg.Data = append(msg.Data, '\r', 0)

		send_to_client(client, msg)
	}
} /* end server_send_monitored */

func send_to_client(client int, reply *AGWPEMessage) {

	var conn = server_client_conn(client)
	if conn == nil {
		return
	}

	if debug_client > 0 {
		debug_print(TO_CLIENT, client, reply)
	}

	var _, err = reply.Write(conn, binary.LittleEndian)
	if err != nil {
		agwpe_log.Errorf("Error sending message to AGW client application %d (%v).  Closing connection.", client, err)
		server_close_client(client)
	}
} /* end send_to_client */

/*-------------------------------------------------------------------
 *
 * Name:        cmd_listen_thread
 *
 * Purpose:     Wait for command messages from an application.
 *
 * Inputs:	client	- client number, 0 .. MAX_NET_CLIENTS-1
 *
 * Description:	Process messages from the client application.
 *		Note that the client can go away and come back again and
 *		re-establish communication without restarting this
 *		application.
 *
 *--------------------------------------------------------------------*/

func cmd_listen_thread(client int) {
	Assert(client >= 0 && client < MAX_NET_CLIENTS)

	for {
		var conn = server_client_conn(client)
		if conn == nil {
			SLEEP_SEC(1) /* Not connected.  Try again later. */
			continue
		}

		var cmd, readErr = agwpe_read_message(conn, binary.LittleEndian)
		if readErr != nil {
			agwpe_log.Errorf("Error getting message from AGW client application %d: %v.  Closing connection.", client, readErr)
			server_close_client(client)
			continue
		}

		/*
		 * Take some precautions to guard against bad data which
		 * could cause problems later.
		 */
		if cmd.Header.Portx >= MAX_RADIO_CHANS {
			agwpe_log.Errorf("Invalid port number, %d, in command '%c', from AGW client application %d.",
				cmd.Header.Portx, cmd.Header.DataKind, client)
			cmd.Header.Portx = 0
		}

		if debug_client > 0 {
			debug_print(FROM_CLIENT, client, cmd)
		}

		switch cmd.Header.DataKind {
		case 'R': /* Request for version number */
			var reply = new(AGWPEMessage)
			reply.Header.DataKind = 'R'
			reply.Data = make([]byte, 8)
			// Some clients check the version and expect an AGWPE-ish
			// number, so report the same thing everyone else does.
			binary.LittleEndian.PutUint32(reply.Data[0:4], 2005)
			binary.LittleEndian.PutUint32(reply.Data[4:8], 127)
			send_to_client(client, reply)

		case 'G': /* Ask about radio ports */
			var reply = new(AGWPEMessage)
			reply.Header.DataKind = 'G'
			reply.Data = []byte("1;Port1 PACSAT file relay;")
			send_to_client(client, reply)

		case 'g': /* Ask about capabilities of a port. */
			var reply = new(AGWPEMessage)
			reply.Header.Portx = cmd.Header.Portx /* Reply with same port number. */
			reply.Header.DataKind = 'g'
			reply.Data = make([]byte, 12)
			reply.Data[0] = 0                                  // on_air_baud_rate, 0=1200
			reply.Data[1] = 1                                  // traffic_level
			reply.Data[2] = 0x19                               // tx_delay
			reply.Data[3] = 4                                  // tx_tail
			reply.Data[4] = 0xc8                               // persist
			reply.Data[5] = 4                                  // slottime
			reply.Data[6] = 7                                  // maxframe
			reply.Data[7] = 0                                  // active_connections
			binary.LittleEndian.PutUint32(reply.Data[8:12], 1) // how_many_bytes
			send_to_client(client, reply)

		case 'k': /* Ask to start receiving RAW AX25 frames */
			// Actually it is a toggle so we must be sure to clear it for a new connection.
			server_mu.Lock()
			enable_send_raw_to_client[client] = !enable_send_raw_to_client[client]
			server_mu.Unlock()

		case 'm': /* Ask to start receiving Monitor frames */
			server_mu.Lock()
			enable_send_monitor_to_client[client] = !enable_send_monitor_to_client[client]
			server_mu.Unlock()

		case 'K': /* Transmit raw AX.25 frame */
			/*
			 * The first data byte is described as "the TNC to use",
			 * which duplicates the port in the header.  Skip it.
			 * The rest is a raw frame, FCS included, same form as
			 * the KISS transport carries.
			 */
			if len(cmd.Data) < 2 {
				agwpe_log.Errorf("AGW 'K' message from client %d has no frame in it.", client)
				break
			}

			var frame = cmd.Data[1:]
			if _, err := ax25_unpack(frame); err != nil {
				agwpe_log.Errorf("Discarding unusable frame from AGW client %d: %v", client, err)
				break
			}

			tq_append_frame(int(cmd.Header.Portx), TQ_PRIO_1_LO, frame)

		case 'V', 'M': /* Transmit UI frame, with and without digipeater path. */
			server_transmit_ui(client, cmd)

		case 'P': /* Application Login */
			// Silently ignore it.

		case 'X': /* Register CallSign */
			/*
			 * Registration matters for connected mode, which we do
			 * not provide, so accept anything with a valid port and
			 * move on.
			 */
			var reply = new(AGWPEMessage)
			reply.Header.DataKind = 'X'
			reply.Header.Portx = cmd.Header.Portx
			reply.Header.CallFrom = cmd.Header.CallFrom
			reply.Data = []byte{1}
			send_to_client(client, reply)

		case 'x': /* Unregister CallSign */
			/* No response is expected. */

		case 'y': /* Ask Outstanding frames waiting on a Port */
			var reply = new(AGWPEMessage)
			reply.Header.Portx = cmd.Header.Portx /* Reply with same port number */
			reply.Header.DataKind = 'y'
			reply.Data = make([]byte, 4)
			binary.LittleEndian.PutUint32(reply.Data, uint32(tq_count(-1, false)))
			send_to_client(client, reply)

		case 'Y': /* Outstanding frames for a connection.  We have no connections. */
			var reply = new(AGWPEMessage)
			reply.Header.Portx = cmd.Header.Portx
			reply.Header.DataKind = 'Y'
			reply.Header.CallFrom = cmd.Header.CallFrom
			reply.Header.CallTo = cmd.Header.CallTo
			reply.Data = make([]byte, 4)
			send_to_client(client, reply)

		case 'C', 'v', 'c', 'D': /* Connected mode family. */
			/*
			 * Everything this station does rides in UI frames.
			 * Answer with a disconnect so the application finds
			 * out right away instead of timing out.
			 */
			agwpe_log.Infof("AGW client application %d asked for connected mode ('%c'), which this station does not provide.",
				client, cmd.Header.DataKind)

			var reply = new(AGWPEMessage)
			reply.Header.Portx = cmd.Header.Portx
			reply.Header.DataKind = 'd'
			reply.Header.CallFrom = cmd.Header.CallTo
			reply.Header.CallTo = cmd.Header.CallFrom
			reply.Data = append([]byte(fmt.Sprintf("*** DISCONNECTED From Station %s\r", cmd.Header.CallTo)), 0)
			send_to_client(client, reply)

		case 'd': /* Disconnect.  Nothing to tear down. */

		case 'H': /* Ask about recently heard stations. */
			// Not collected here.  A monitoring client sees
			// everything anyway.

		default:
			agwpe_log.Errorf("Unexpected command '%c' from AGW client application %d.", cmd.Header.DataKind, client)
		}
	}
} /* end cmd_listen_thread */

/*
 * 'V' carries a digipeater path in the data: one count byte, then
 * ten bytes per digipeater, then the information part.  'M' is the
 * same thing with no path provision.
 */

func server_transmit_ui(client int, cmd *AGWPEMessage) {

	var pp = new(ax25_packet_t)
	var err error

	pp.src, err = ax25_parse_addr(cmd.Header.CallFrom.String())
	if err != nil {
		agwpe_log.Errorf("Bad source in AGW '%c' message from client %d: %v", cmd.Header.DataKind, client, err)
		return
	}
	pp.dest, err = ax25_parse_addr(cmd.Header.CallTo.String())
	if err != nil {
		agwpe_log.Errorf("Bad destination in AGW '%c' message from client %d: %v", cmd.Header.DataKind, client, err)
		return
	}

	pp.pid = cmd.Header.PID
	var data = cmd.Data

	if cmd.Header.DataKind == 'V' {
		if len(data) < 1 {
			agwpe_log.Errorf("AGW 'V' message from client %d is missing the digipeater count.", client)
			return
		}
		var ndigi = int(data[0])
		if len(data) < 1+10*ndigi {
			agwpe_log.Errorf("AGW 'V' message from client %d ends inside the digipeater list.", client)
			return
		}
		for k := 0; k < ndigi; k++ {
			var field Callsign
			copy(field[:], data[1+10*k:1+10*k+10])
			var d, digiErr = ax25_parse_addr(field.String())
			if digiErr != nil {
				agwpe_log.Errorf("Bad digipeater in AGW 'V' message from client %d: %v", client, digiErr)
				return
			}
			pp.digi = append(pp.digi, d)
		}
		data = data[1+10*ndigi:]
	}

	pp.info = data

	var frame, packErr = ax25_pack(pp)
	if packErr != nil {
		agwpe_log.Errorf("Failed to create frame from AGW '%c' message: %v", cmd.Header.DataKind, packErr)
		return
	}

	/* An original, so it goes into the low priority queue. */

	tq_append_frame(int(cmd.Header.Portx), TQ_PRIO_1_LO, frame)
} /* end server_transmit_ui */
