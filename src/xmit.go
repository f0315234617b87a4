package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit queued up frames.
 *
 * Description:	Producers of frames to be transmitted call
 *		tq_append_frame and then go merrily on their way,
 *		unconcerned about when the frame might actually get
 *		transmitted.
 *
 *		This thread waits until there is something in the queue
 *		and hands it to whichever radio transport is attached.
 *		Highest priority first: protocol responses jump ahead
 *		of the broadcast stream so a station mid-upload is not
 *		kept waiting behind directory chatter.
 *
 *		Channel access timing (TXDELAY, persistence and so on)
 *		belongs to the TNC at the other end of the KISS link.
 *		We do no pacing here; the broadcast scheduler paces its
 *		own traffic before it ever reaches the queue.
 *
 *---------------------------------------------------------------*/

/*
 * Set by the radio transport that is attached, serial port or
 * network TNC.  Nil means no radio, in which case frames are
 * dropped.  Useful on the bench; useless on orbit.
 */

var radio_send_frame func(channel int, fbuf []byte) bool

/*-------------------------------------------------------------------
 *
 * Name:        xmit_init
 *
 * Purpose:     Start up the transmit thread.
 *		This is called once at application startup time.
 *
 *--------------------------------------------------------------------*/

func xmit_init() {
	tq_init()

	go xmit_thread()
} /* end xmit_init */

func xmit_thread() {

	for {
		tq_wait_while_empty()

		for {
			var fbuf = tq_remove(TQ_PRIO_0_HI)
			if fbuf == nil {
				fbuf = tq_remove(TQ_PRIO_1_LO)
			}
			if fbuf == nil {
				break
			}

			xmit_frame(0, fbuf)
		}
	}
} /* end xmit_thread */

/*-------------------------------------------------------------------
 *
 * Name:        xmit_frame
 *
 * Purpose:     Send one frame to the radio.
 *
 * Inputs:	channel	- Radio channel number.
 *
 *		fbuf	- Raw frame octets, FCS included.
 *
 * Description:	Also give attached client applications a monitor copy
 *		of our own transmissions.  A real TNC would not echo
 *		these back, so the raw and KISS paths do not get them;
 *		only the AGW monitor format carries own traffic, marked
 *		as such.
 *
 *--------------------------------------------------------------------*/

func xmit_frame(channel int, fbuf []byte) {

	var pp, err = ax25_unpack(fbuf)
	if err != nil {
		/* Everything in the queue came through ax25_pack or was
		   checked on arrival, so this is a program error. */
		main_log.Errorf("INTERNAL ERROR: unsendable frame in transmit queue (%v). Please report this!", err)
		return
	}

	main_log.Debugf("[%d>] %s>%s pid=%02X len=%d", channel, pp.src, pp.dest, pp.pid, len(pp.info))

	if radio_send_frame != nil {
		if !radio_send_frame(channel, fbuf) {
			main_log.Error("Frame could not be sent to the radio.")
		}
	} else {
		main_log.Debug("No radio attached.  Dropping frame.")
	}

	server_send_monitored(channel, pp, true)
} /* end xmit_frame */
