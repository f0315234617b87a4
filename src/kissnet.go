package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Provide service to other applications via KISS protocol
 *		via TCP socket.
 *
 * Description:	This provides a TCP socket for communication with a
 *		client application.
 *
 *		It implements the KISS TNC protocol as described in:
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
 *			* port number in upper nybble.
 *			* command in lower nybble.
 *
 *		Frames from the client application go into the transmit
 *		queue.  Frames received over the radio are sent to every
 *		attached client.
 *
 *		Note that the client can go away and come back again and
 *		re-establish communication without restarting this
 *		application.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"net"
	"sync"
	"syscall"
)

var kissnet_mu sync.Mutex

var kissnet_client_sock [MAX_NET_CLIENTS]net.Conn

var kissnet_kf [MAX_NET_CLIENTS]*kiss_frame_t /* Accumulated KISS frame and state of decoder. */

var kiss_debug = 0 /* Print information flowing from and to client. */

func kiss_net_set_debug(n int) {
	kiss_debug = n
}

/*-------------------------------------------------------------------
 *
 * Name:        kissnet_init
 *
 * Purpose:     Set up a server to listen for connection requests from
 *		an application.
 *		This is called once from the main program.
 *
 * Inputs:	kiss_port	- TCP port for server.
 *				  0 means disable.
 *
 * Description:	This starts two kinds of threads:
 *		  *  one to listen for a connection from client app.
 *		  *  one per potential client to listen for commands
 *		     from client app.
 *		so the main application doesn't block while we wait for
 *		these.
 *
 *--------------------------------------------------------------------*/

func kissnet_init(kiss_port int) {

	for client := 0; client < MAX_NET_CLIENTS; client++ {
		kissnet_kf[client] = new(kiss_frame_t)
	}

	if kiss_port == 0 {
		kiss_log.Info("Disabled KISS network client port.")
		return
	}

	/*
	 * This waits for a client to connect and sets client_sock[n].
	 */
	go kissnet_connect_listen_thread(kiss_port)

	/*
	 * These read messages from client when client_sock[n] is valid.
	 * Currently we start up a separate thread for each potential
	 * connection.
	 */
	for client := 0; client < MAX_NET_CLIENTS; client++ {
		go kissnet_listen_thread(client)
	}
} /* end kissnet_init */

func kissnet_connect_listen_thread(kiss_port int) {

	var listener, listenErr = net.Listen("tcp", fmt.Sprintf(":%d", kiss_port))
	if listenErr != nil {
		kiss_log.Errorf("Could not listen for KISS client applications: %v", listenErr)
		return
	}

	/* Without this, if you kill the application then try to run it */
	/* again quickly the port number is unavailable for a while. */
	if tcpListener, ok := listener.(*net.TCPListener); ok {
		file, err := tcpListener.File()
		if err == nil {
			defer file.Close()
			syscall.SetsockoptInt(int(file.Fd()), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		}
	}

	for {
		var client = -1
		kissnet_mu.Lock()
		for c := 0; c < MAX_NET_CLIENTS && client < 0; c++ {
			if kissnet_client_sock[c] == nil {
				client = c
			}
		}
		kissnet_mu.Unlock()

		if client < 0 {
			SLEEP_SEC(1) /* wait then check again if more clients allowed. */
			continue
		}

		kiss_log.Infof("Ready to accept KISS TCP client application %d on port %d ...", client, kiss_port)

		var conn, acceptErr = listener.Accept()
		if acceptErr != nil {
			kiss_log.Errorf("Accept failed: %v", acceptErr)
			continue
		}

		kiss_log.Infof("Attached to KISS TCP client application %d.", client)

		/* A fresh decoder so leftovers from the previous client do not bleed in. */

		kissnet_mu.Lock()
		kissnet_kf[client] = new(kiss_frame_t)
		kissnet_client_sock[client] = conn
		kissnet_mu.Unlock()
	}
} /* end kissnet_connect_listen_thread */

func kissnet_client_conn(client int) net.Conn {
	kissnet_mu.Lock()
	defer kissnet_mu.Unlock()
	return kissnet_client_sock[client]
}

func kissnet_close_client(client int) {
	kissnet_mu.Lock()
	if kissnet_client_sock[client] != nil {
		kissnet_client_sock[client].Close()
		kissnet_client_sock[client] = nil
	}
	kissnet_mu.Unlock()
}

/*-------------------------------------------------------------------
 *
 * Name:        kissnet_send_rec_packet
 *
 * Purpose:     Send a packet, received over the radio, to the client app.
 *
 * Inputs:	channel		- Channel number where packet was received.
 *
 *		kiss_cmd	- Usually KISS_CMD_DATA_FRAME but we can
 *				  also have KISS_CMD_SET_HARDWARE when
 *				  responding to a query.
 *
 *		fbuf		- Raw frame octets, FCS included, or a
 *				  text string.
 *
 *		text		- True when fbuf is a text string which
 *				  already has any framing it needs.
 *
 *		onlyclient	- When a frame is received from the radio we
 *				  normally want it to go to all of the
 *				  clients; specify -1.  When responding to a
 *				  command from one client, send only to that
 *				  one.
 *
 * Description:	Send message to client(s) if connected.
 *		Disconnect from client, and notify user, if any error.
 *
 *--------------------------------------------------------------------*/

func kissnet_send_rec_packet(channel int, kiss_cmd int, fbuf []byte, text bool, onlyclient int) {

	for client := 0; client < MAX_NET_CLIENTS; client++ {
		if onlyclient != -1 && client != onlyclient {
			continue
		}
		if kissnet_client_conn(client) == nil {
			continue
		}

		var kiss_buff []byte
		if text {
			if kiss_debug > 0 {
				kiss_debug_print(TO_CLIENT, "Fake command prompt", fbuf)
			}
			kiss_buff = fbuf
		} else {
			var stemp = []byte{byte((channel << 4) | kiss_cmd)}
			stemp = append(stemp, fbuf...)

			kiss_buff = kiss_encapsulate(stemp)

			/* This has the escapes and the surrounding FENDs. */

			if kiss_debug > 0 {
				kiss_debug_print(TO_CLIENT, "", kiss_buff)
			}
		}

		var _, err = kissnet_client_conn(client).Write(kiss_buff)
		if err != nil {
			kiss_log.Errorf("Error sending message to KISS client application %d (%v).  Closing connection.", client, err)
			kissnet_close_client(client)
		}
	}
} /* end kissnet_send_rec_packet */

/*-------------------------------------------------------------------
 *
 * Name:        kissnet_listen_thread
 *
 * Purpose:     Wait for KISS messages from an application.
 *
 * Inputs:	client	- client number, 0 .. MAX_NET_CLIENTS-1
 *
 * Description:	Process messages from the client application.
 *		Decoded data frames go into the transmit queue.
 *
 *--------------------------------------------------------------------*/

/* Return one byte (value 0 - 255) */

func kissnet_get(client int) byte {
	for {
		var conn = kissnet_client_conn(client)
		for conn == nil {
			SLEEP_SEC(1) /* Not connected.  Try again later. */
			conn = kissnet_client_conn(client)
		}

		/* Just get one byte at a time. */

		var ch = make([]byte, 1)
		var n, _ = conn.Read(ch)

		if n == 1 {
			return ch[0]
		}

		kiss_log.Errorf("KISS client application %d has gone away.", client)
		kissnet_close_client(client)
	}
}

func kissnet_listen_thread(client int) {
	Assert(client >= 0 && client < MAX_NET_CLIENTS)

	var handler = func(channel int, frame []byte) {
		tq_append_frame(channel, TQ_PRIO_1_LO, frame)
	}
	var sendfun = func(data []byte) {
		/* Responses go back to the client that asked, not everyone. */
		kissnet_send_rec_packet(0, KISS_CMD_DATA_FRAME, data, true, client)
	}

	for {
		var ch = kissnet_get(client)
		kiss_rec_byte(kissnet_kf[client], ch, kiss_debug, handler, sendfun)
	}
} /* end kissnet_listen_thread */
