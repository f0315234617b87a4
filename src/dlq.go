package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Received frame queue.
 *
 * Description:	Each radio port has its own reader thread.  This queue
 *		is used to collect received frames from all of them and
 *		process them serially.
 *
 *		Other types of events also go into this queue and we use
 *		it to drive the upload state machine.  The periodic tick
 *		goes through here so session timeouts are handled on the
 *		same thread as the frames, with no further locking.
 *
 *---------------------------------------------------------------*/

import (
	"sync"
	"time"
)

type dlq_type_e int

const (
	DLQ_REC_FRAME dlq_type_e = iota /* Frame received from the radio. */
	DLQ_TICK                        /* Periodic housekeeping. */
)

type dlq_item_t struct {
	dtype   dlq_type_e
	channel int
	frame   []byte /* Raw frame as it came off the air, including FCS. */
}

var dlq_queue []*dlq_item_t /* Pending events, oldest first. */

var dlq_mutex sync.Mutex /* Critical section for updating the queue. */

var dlq_wake_up_chan = make(chan struct{}) /* Notify processing thread when queue not empty. */

var dlq_recv_thread_is_waiting bool

var dlq_was_init bool /* was initialization performed? */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_init
 *
 * Purpose:     Initialize the queue.
 *
 * Description:	Initialize the queue to be empty and set up other
 *		mechanisms for sharing it between different threads.
 *
 *--------------------------------------------------------------------*/

func dlq_init() {

	dlq_mutex.Lock()
	dlq_queue = nil
	dlq_mutex.Unlock()

	dlq_recv_thread_is_waiting = false

	dlq_was_init = true

} /* end dlq_init */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_rec_frame
 *
 * Purpose:     Add a received frame to the end of the queue.
 *
 * Inputs:	channel	- Radio port the frame arrived on, 0 is first.
 *
 *		frame	- Raw frame including FCS.  A copy is made so the
 *				caller is free to reuse its buffer.
 *
 *--------------------------------------------------------------------*/

func dlq_rec_frame(channel int, frame []byte) {

	if len(frame) == 0 {
		main_log.Error("INTERNAL ERROR:  dlq_rec_frame empty frame. Please report this!")
		return
	}

	var pnew = new(dlq_item_t)
	pnew.dtype = DLQ_REC_FRAME
	pnew.channel = channel

	// The KISS reader hands us a window into its own buffer.

	pnew.frame = make([]byte, len(frame))
	copy(pnew.frame, frame)

	dlq_append(pnew)

} /* end dlq_rec_frame */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_tick
 *
 * Purpose:     Add a housekeeping tick to the end of the queue.
 *
 * Description:	The upload state machine runs entirely on the processing
 *		thread.  Its session sweep is driven by these ticks rather
 *		than by a separate timer thread touching shared state.
 *
 *--------------------------------------------------------------------*/

func dlq_tick() {

	var pnew = new(dlq_item_t)
	pnew.dtype = DLQ_TICK

	dlq_append(pnew)

} /* end dlq_tick */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_append
 *
 * Purpose:     Append some type of event to queue.
 *
 * Inputs:	pnew		- Queue item.
 *
 * Description:	Add item to end of queue.
 *		Signal the processing thread if the queue was formerly empty.
 *
 *--------------------------------------------------------------------*/

func dlq_append(pnew *dlq_item_t) {

	if !dlq_was_init {
		dlq_init()
	}

	dlq_mutex.Lock()
	dlq_queue = append(dlq_queue, pnew)
	var queue_length = len(dlq_queue)
	dlq_mutex.Unlock()

	/*
	 * It has long been known that we will eventually block trying to
	 * write to a pseudo terminal if nothing is reading from the other
	 * end.  The processing thread stops, nothing comes out of this
	 * queue, and it looks like a leak.  Complain if the queue is
	 * growing too large so we are a step closer to the root cause.
	 */

	if queue_length > 10 {
		main_log.Errorf("Received frame queue is out of control. Length=%d.", queue_length)
		main_log.Error("Processing thread is probably frozen.")
		main_log.Error("This can be caused by using a pseudo terminal (malamute -p) where another")
		main_log.Error("application is not reading the frames from the other side.")
	}

	if dlq_recv_thread_is_waiting {
		dlq_wake_up_chan <- struct{}{}
	}

} /* end dlq_append */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_wait_while_empty
 *
 * Purpose:     Sleep while the received data queue is empty rather than
 *		polling periodically.
 *
 * Inputs:	timeout		- Return after this long even if queue is
 *				  empty.  Zero for no timeout.
 *
 * Returns:	True if timed out before any event arrived.
 *
 *--------------------------------------------------------------------*/

func dlq_wait_while_empty(timeout time.Duration) bool {
	var timed_out_result = false

	if !dlq_was_init {
		dlq_init()
	}

	dlq_mutex.Lock()
	var is_empty = len(dlq_queue) == 0
	dlq_mutex.Unlock()

	if is_empty {
		dlq_recv_thread_is_waiting = true
		if timeout != 0 {
			select {
			case <-dlq_wake_up_chan:
				// Signalled
			case <-time.After(timeout):
				timed_out_result = true
			}
		} else {
			<-dlq_wake_up_chan
		}
		dlq_recv_thread_is_waiting = false
	}

	return timed_out_result

} /* end dlq_wait_while_empty */

/*-------------------------------------------------------------------
 *
 * Name:        dlq_remove
 *
 * Purpose:     Remove an item from the head of the queue.
 *
 * Returns:	The queue item, or nil if queue is empty.
 *
 *--------------------------------------------------------------------*/

func dlq_remove() *dlq_item_t {

	if !dlq_was_init {
		dlq_init()
	}

	dlq_mutex.Lock()

	var result *dlq_item_t
	if len(dlq_queue) > 0 {
		result = dlq_queue[0]
		dlq_queue = dlq_queue[1:]
	}

	dlq_mutex.Unlock()

	return result
} /* end dlq_remove */
