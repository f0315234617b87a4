package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Process received frames.
 *
 * Description:	Each transport has its own reader thread.  Frames
 *		decoded from any of them are appended to a single queue
 *		with dlq_rec_frame.
 *
 *		recv_process waits for something to show up in that
 *		queue and handles the items one at a time.  The upload
 *		state machine is only ever touched from here, so it
 *		needs no locking of its own.
 *
 *		A separate thread posts a housekeeping tick into the
 *		same queue once a second.  Session timeouts and store
 *		cleanup ride on those ticks, again keeping everything
 *		on the one thread.
 *
 *---------------------------------------------------------------*/

import (
	"time"
)

var s_recv_ftl0 *ftl0_t

var s_recv_store *store_t

var s_recv_retention time.Duration /* Age limit for trash and abandoned uploads. */

var s_recv_ticks int /* Counts seconds so cleanup can run much less often. */

const RECV_CLEANUP_EVERY = 3600 /* Run store cleanup once an hour. */

/*------------------------------------------------------------------
 *
 * Name:        recv_init
 *
 * Purpose:     Prepare frame processing and start the housekeeping
 *		tick thread.
 *
 * Inputs:      f		- Upload state machine.
 *
 *		st		- File store, for periodic cleanup.
 *
 *		retention	- Age limit for trash and abandoned
 *				  uploads.  Zero disables cleanup.
 *
 *----------------------------------------------------------------*/

func recv_init(f *ftl0_t, st *store_t, retention time.Duration) {
	s_recv_ftl0 = f
	s_recv_store = st
	s_recv_retention = retention

	dlq_init()

	go recv_tick_thread()
} /* end recv_init */

func recv_tick_thread() {
	for {
		SLEEP_SEC(1)
		dlq_tick()
	}
}

/*------------------------------------------------------------------
 *
 * Name:        recv_process
 *
 * Purpose:     Main processing loop.  Does not return.
 *
 *----------------------------------------------------------------*/

func recv_process() {
	for {
		dlq_wait_while_empty(0)

		var pitem = dlq_remove()
		if pitem == nil {
			continue
		}

		switch pitem.dtype {
		case DLQ_REC_FRAME:
			app_process_rec_packet(pitem.channel, pitem.frame)

		case DLQ_TICK:
			if s_recv_ftl0 != nil {
				s_recv_ftl0.sweep()
			}

			s_recv_ticks++
			if s_recv_retention != 0 && s_recv_ticks >= RECV_CLEANUP_EVERY {
				s_recv_ticks = 0
				if s_recv_store != nil {
					var n = s_recv_store.cleanup(s_recv_retention)
					if n > 0 {
						store_log.Infof("Cleanup removed %d expired item(s).", n)
					}
				}
			}
		}
	}
} /* end recv_process */

/*------------------------------------------------------------------
 *
 * Name:        app_process_rec_packet
 *
 * Purpose:     Process one frame received over the radio.
 *
 * Inputs:      channel	- Radio port the frame arrived on.
 *
 *		fbuf	- Raw frame as it came off the air, FCS
 *			  included.
 *
 * Description: For all frames:
 *		  - Send to KISS client applications.
 *		  - Send to AGW client applications in raw or
 *		    monitor format.
 *		For FTL0 frames addressed to us:
 *		  - Feed the upload state machine.
 *
 *		A frame that fails the FCS check or has a malformed
 *		address field is noise.  Radio links produce plenty of
 *		it and it is only worth a debug message.
 *
 *----------------------------------------------------------------*/

func app_process_rec_packet(channel int, fbuf []byte) {

	var pp, err = ax25_unpack(fbuf)
	if err != nil {
		ax25_log.Debug("Discarding received frame.", "err", err, "len", len(fbuf))
		return
	}

	ax25_log.Debugf("[%d] %s>%s pid=%02X len=%d", channel, pp.src, pp.dest, pp.pid, len(pp.info))

	/*
	 * Pass everything heard along to attached client applications.
	 * A monitoring client wants the whole channel, not just our
	 * own traffic.
	 */
	server_send_rec_packet(channel, pp, fbuf)
	kissnet_send_rec_packet(channel, KISS_CMD_DATA_FRAME, fbuf, false, -1)
	kisspt_send_rec_packet(channel, KISS_CMD_DATA_FRAME, fbuf, false)

	/*
	 * Frames for the upload/download state machine must be addressed
	 * to us.  Everything else on the channel is other stations
	 * talking to the satellite or among themselves.
	 */
	if s_recv_ftl0 != nil && pp.pid == PID_FTL0 && pp.dest == s_recv_ftl0.mycall {
		s_recv_ftl0.handle_frame(pp)
	}
} /* end app_process_rec_packet */
