package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Attach to the radio through a hardware TNC speaking
 *		KISS over a serial port.
 *
 * Description:	This implements the KISS TNC protocol as described in:
 *		http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		Here we are the client side: the TNC is real hardware
 *		and the radio is on the other end of it.  Frames decoded
 *		from the serial stream go into the received frame queue
 *		for the dispatcher.  The transmit thread hands us frames
 *		to encapsulate and write out.
 *
 *		The polling option is for devices that come and go, such
 *		as Bluetooth TNCs.  Instead of giving up when the device
 *		is absent at startup, check for it periodically.
 *
 *---------------------------------------------------------------*/

import (
	"os"

	"github.com/pkg/term"
)

var kissserial_fd *term.Term

var kissserial_device string

var kissserial_speed int

var kissserial_poll int /* Seconds between checks for the device to appear.  0 = open once at startup. */

var kissserial_kf kiss_frame_t /* Accumulated KISS frame and state of decoder. */

var kissserial_debug = 0

func kissserial_set_debug(n int) {
	kissserial_debug = n
}

/*-------------------------------------------------------------------
 *
 * Name:        kissserial_init
 *
 * Purpose:     Open the serial port KISS TNC and start listening to it.
 *
 * Inputs:	device		- Name of device for real or virtual
 *				  serial port.
 *
 *		speed		- Speed, bps, or 0 meaning leave it alone.
 *
 *		poll		- When non-zero, poll each n seconds to
 *				  see if device has appeared.
 *
 * Description:	(1) Open file descriptor for the device.
 *		(2) Start a new thread to listen for frames from the
 *		    TNC so the main application doesn't block.
 *
 *--------------------------------------------------------------------*/

func kissserial_init(device string, speed int, poll int) error {
	kissserial_device = device
	kissserial_speed = speed
	kissserial_poll = poll

	if kissserial_poll == 0 {
		// Normal case, try to open the serial port at start up time.

		var fd, err = serial_port_open(device, speed)
		if err != nil {
			return err
		}
		kissserial_fd = fd

		kiss_log.Infof("Opened %s for serial port KISS.", device)
	} else {
		// Polling case.  Defer until read and device not opened.
		kiss_log.Infof("Will be checking periodically for %s", device)
	}

	radio_send_frame = kissserial_send_frame

	go kissserial_listen_thread()
	return nil
} /* end kissserial_init */

/*-------------------------------------------------------------------
 *
 * Name:        kissserial_send_frame
 *
 * Purpose:     Send a frame to the radio by way of the TNC.
 *
 * Inputs:	channel		- Radio channel number.
 *
 *		fbuf		- Raw frame octets, FCS included.
 *
 * Returns:	True if the frame was written.
 *
 *--------------------------------------------------------------------*/

func kissserial_send_frame(channel int, fbuf []byte) bool {
	/*
	 * Quietly discard if we don't have open connection.
	 */
	if kissserial_fd == nil {
		return false
	}

	var stemp = []byte{byte((channel << 4) | KISS_CMD_DATA_FRAME)}
	stemp = append(stemp, fbuf...)

	var kiss_buff = kiss_encapsulate(stemp)

	/* This has KISS framing and escapes for sending to the TNC. */

	if kissserial_debug > 0 {
		kiss_debug_print(TO_CLIENT, "", kiss_buff)
	}

	var n = serial_port_write(kissserial_fd, kiss_buff)
	if n != len(kiss_buff) {
		kiss_log.Error("Error sending KISS frame to TNC thru serial port.  Closing connection.")
		serial_port_close(kissserial_fd)
		kissserial_fd = nil
		return false
	}

	return true
} /* end kissserial_send_frame */

/*-------------------------------------------------------------------
 *
 * Name:        kissserial_get
 *
 * Purpose:     Read one byte from the serial port KISS TNC.
 *
 * Returns:	One byte (value 0 - 255) or an error when the device is
 *		gone and polling is off.
 *
 * Description:	There is room for improvement here.  Reading one byte
 *		at a time is inefficient.  We could read a large block
 *		into a local buffer and return a byte from that most of
 *		the time.  Is it worth the effort?  I don't know.  With
 *		GHz processors and the low data rate here it might not
 *		make a noticeable difference.
 *
 *--------------------------------------------------------------------*/

func kissserial_get() (byte, error) {

	if kissserial_poll == 0 {
		/*
		 * Normal case, was opened at start up time.
		 */
		var ch, err = serial_port_get1(kissserial_fd)
		if err != nil {
			kiss_log.Error("Serial port KISS read error.  Closing connection.", "err", err)
			serial_port_close(kissserial_fd)
			kissserial_fd = nil
			return ch, err
		}
		return ch, nil
	}

	/*
	 * Polling case.  Wait until device is present and open.
	 */
	for {
		if kissserial_fd != nil {
			// Open, try to read.

			var ch, err = serial_port_get1(kissserial_fd)
			if err == nil {
				return ch, nil
			}

			kiss_log.Error("Serial port KISS read error.  Closing connection.", "err", err)
			serial_port_close(kissserial_fd)
			kissserial_fd = nil
		} else {
			// Not open.  Wait for it to appear and try opening.

			SLEEP_SEC(kissserial_poll)

			var _, statErr = os.Stat(kissserial_device)
			if statErr != nil {
				continue
			}

			// It's there now.  Try to open.

			var fd, openErr = serial_port_open(kissserial_device, kissserial_speed)
			if openErr != nil {
				kiss_log.Error("Could not open serial port.", "err", openErr)
				continue
			}
			kissserial_fd = fd
			kissserial_kf = kiss_frame_t{} // Start with clean state.

			kiss_log.Infof("Opened %s for serial port KISS.", kissserial_device)
		}
	}
} /* end kissserial_get */

/*-------------------------------------------------------------------
 *
 * Name:        kissserial_listen_thread
 *
 * Purpose:     Read frames from the serial port KISS TNC.
 *
 * Description:	Reads bytes from the TNC and sends them to
 *		kiss_rec_byte for processing.
 *		kiss_rec_byte is a common function used by all the KISS
 *		interfaces: serial port, pseudo terminal, and TCP.
 *
 *		Decoded data frames are frames heard on the air.  They
 *		go into the received frame queue.  Nothing here responds
 *		to command-mode noise; the TNC is the one in charge of
 *		the line.
 *
 *--------------------------------------------------------------------*/

func kissserial_listen_thread() {
	var handler = func(channel int, frame []byte) {
		dlq_rec_frame(channel, frame)
	}

	for {
		var ch, err = kissserial_get()
		if err != nil {
			return
		}
		kiss_rec_byte(&kissserial_kf, ch, kissserial_debug, handler, nil)
	}
} /* end kissserial_listen_thread */
