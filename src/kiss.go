package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC for use by other packet
 *		radio applications.  This file implements it with a
 *		pseudo terminal for Linux only.
 *
 * Description:	A client application, e.g. a PACSAT directory viewer
 *		using the kernel AX.25 stack via kissattach, opens the
 *		slave side and sees raw KISS.  Data frames it writes
 *		are transmitted; everything heard on the radio side is
 *		copied to it.
 *
 *		The pseudo terminal name is not the same every time so
 *		a symlink with a fixed name points at the current one.
 *
 *---------------------------------------------------------------*/

import (
	"os"

	"github.com/creack/pty"
)

/*
 * Accumulated KISS frame and state of decoder.
 */

var kisspt_kf *kiss_frame_t

/*
 * These are for a Linux pseudo terminal.
 */

var pt_master *os.File /* File descriptor for my end. */
var pt_slave *os.File  /* Pseudo terminal slave */

/*
 * Symlink to pseudo terminal name which changes.
 */

const TMP_KISSTNC_SYMLINK = "/tmp/kisstnc"

var kisspt_debug = 0 /* Print information flowing from and to client. */

func kisspt_set_debug(n int) {
	kisspt_debug = n
}

/*-------------------------------------------------------------------
 *
 * Name:        kisspt_init
 *
 * Purpose:     Set up a pseudo terminal acting as a virtual KISS TNC.
 *
 * Inputs:	enable	- From the -p option or config.
 *
 * Description:	(1) Create a pseudo terminal for the client to use.
 *		(2) Start a new thread to listen for commands from
 *		    client app so the main application doesn't block
 *		    while we wait.
 *
 *--------------------------------------------------------------------*/

func kisspt_init(enable bool) {
	pt_master = nil

	kisspt_kf = new(kiss_frame_t)

	if enable {
		kisspt_open_pt()

		if pt_master != nil {
			go kisspt_listen_thread()
		}
	}
}

func kisspt_open_pt() {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		kiss_log.Error("Could not create pseudo terminal for KISS TNC.", "err", err)
		return
	}

	pt_master = ptmx
	pt_slave = pts

	kiss_log.Info("Virtual KISS TNC is available on " + pt_slave.Name())

	/*
	 * The device name is not the same every time.
	 * This is inconvenient for the application because it might
	 * be necessary to change the device name in the configuration.
	 * Create a symlink, /tmp/kisstnc, so the application configuration
	 * does not need to change when the pseudo terminal name changes.
	 */

	os.Remove(TMP_KISSTNC_SYMLINK)

	var symlinkErr = os.Symlink(pt_slave.Name(), TMP_KISSTNC_SYMLINK)
	if symlinkErr == nil {
		kiss_log.Info("Created symlink " + TMP_KISSTNC_SYMLINK + " -> " + pt_slave.Name())
	} else {
		kiss_log.Error("Failed to create symlink "+TMP_KISSTNC_SYMLINK, "err", symlinkErr)
	}
} /* end kisspt_open_pt */

/*-------------------------------------------------------------------
 *
 * Name:        kisspt_send_rec_packet
 *
 * Purpose:     Send a received packet or text string to the client app.
 *
 * Inputs:	channel		- Channel number where packet was received.
 *
 *		kiss_cmd	- Usually KISS_CMD_DATA_FRAME but we can
 *				  also have KISS_CMD_SET_HARDWARE when
 *				  responding to a query.
 *
 *		fbuf		- Raw received frame, FCS included, or a
 *				  text string.
 *
 *		text		- True when fbuf is a text string which
 *				  already has any framing it needs.
 *
 * Description:	Send message to client.
 *		We really don't care if anyone is listening or not.
 *		I don't even know if we can find out.
 *
 *--------------------------------------------------------------------*/

func kisspt_send_rec_packet(channel int, kiss_cmd int, fbuf []byte, text bool) {
	if pt_master == nil {
		return
	}

	var kiss_buff []byte
	if text {
		if kisspt_debug > 0 {
			kiss_debug_print(TO_CLIENT, "Fake command prompt", fbuf)
		}
		kiss_buff = fbuf
	} else {
		var stemp = []byte{byte((channel << 4) | kiss_cmd)}
		stemp = append(stemp, fbuf...)

		if kisspt_debug >= 2 {
			kiss_log.Debugf("Packet content before adding KISS framing and any escapes:\n%s", hex_dump(fbuf))
		}

		kiss_buff = kiss_encapsulate(stemp)

		/* This has KISS framing and escapes for sending to client app. */

		if kisspt_debug > 0 {
			kiss_debug_print(TO_CLIENT, "", kiss_buff)
		}
	}

	var n, err = pt_master.Write(kiss_buff)

	if err != nil || n != len(kiss_buff) {
		kiss_log.Error("Error sending KISS message to client application on pseudo terminal.",
			"len", len(kiss_buff), "wrote", n, "err", err)
	}
} /* end kisspt_send_rec_packet */

/*-------------------------------------------------------------------
 *
 * Name:        kisspt_get
 *
 * Purpose:     Read one byte from the KISS client app.
 *
 * Returns:	One byte (value 0 - 255) and true, or false when the
 *		pseudo terminal is gone and the thread should end.
 *
 * Description:	There is room for improvement here.  Reading one byte
 *		at a time is inefficient.  We could read a large block
 *		into a local buffer and return a byte from that most of
 *		the time.  Is it worth the effort?  I don't know.  With
 *		GHz processors and the low data rate here it might not
 *		make a noticeable difference.
 *
 *--------------------------------------------------------------------*/

func kisspt_get() (byte, bool) {
	var ch [1]byte

	for {
		var n, err = pt_master.Read(ch[:])
		if err != nil {
			kiss_log.Error("Error receiving KISS message from client application. Closing "+pt_slave.Name(), "err", err)

			pt_master.Close()
			pt_master = nil
			os.Remove(TMP_KISSTNC_SYMLINK)
			return 0, false
		}
		if n == 1 {
			return ch[0], true
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        kisspt_listen_thread
 *
 * Purpose:     Read messages from the pseudo terminal KISS client
 *		application.
 *
 * Description:	Reads bytes from the KISS client app and sends them
 *		to kiss_rec_byte for processing.  Data frames go to
 *		the transmit queue.
 *
 *--------------------------------------------------------------------*/

func kisspt_listen_thread() {
	var handler = func(channel int, frame []byte) {
		tq_append_frame(channel, TQ_PRIO_1_LO, frame)
	}
	var sendfun = func(data []byte) {
		kisspt_send_rec_packet(0, KISS_CMD_DATA_FRAME, data, true)
	}

	for {
		var ch, ok = kisspt_get()
		if !ok {
			return
		}
		kiss_rec_byte(kisspt_kf, ch, kisspt_debug, handler, sendfun)
	}
}
