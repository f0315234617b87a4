package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit queue - hold frames for transmission until the
 *		radio port can take them.
 *
 * Description:	Producers of frames to be transmitted call tq_append_frame
 *		and then go merrily on their way, unconcerned about when the
 *		frame might actually get transmitted.
 *
 *		The transmit thread waits until something is queued and then
 *		removes frames and sends them to the radio port.
 *
 *---------------------------------------------------------------*/

import (
	"sync"
)

const TQ_NUM_PRIO = 2 /* Number of priorities. */

const TQ_PRIO_0_HI = 0
const TQ_PRIO_1_LO = 1

var tq_queue [TQ_NUM_PRIO][][]byte /* Pending frames for each priority. */

var tq_mutex sync.Mutex /* Critical section for updating queues. */
/* Just one for both queues. */

var tq_wake_up_cond *sync.Cond /* Notify transmit thread when queue not empty. */

var tq_wake_up_mutex sync.Mutex /* Required by cond_wait. */

var tq_xmit_thread_is_waiting bool

/*-------------------------------------------------------------------
 *
 * Name:        tq_init
 *
 * Purpose:     Initialize the transmit queue.
 *
 * Description:	Initialize the queues to be empty and set up the
 *		mechanism for sharing them between different threads.
 *
 *		We have different timing rules for different types of
 *		frames so they are put into different queues.
 *
 *		High Priority -
 *
 *			FTL0 responses and other directed traffic go out
 *			first so an uploader is never kept waiting behind
 *			a long run of broadcast frames.
 *
 *		Low Priority -
 *
 *			Directory and file broadcasts, beacons, and frames
 *			injected by attached client applications.
 *
 *--------------------------------------------------------------------*/

func tq_init() {

	tq_mutex.Lock()
	for p := 0; p < TQ_NUM_PRIO; p++ {
		tq_queue[p] = nil
	}
	tq_mutex.Unlock()

	tq_xmit_thread_is_waiting = false
	tq_wake_up_cond = sync.NewCond(&tq_wake_up_mutex)

} /* end tq_init */

/*-------------------------------------------------------------------
 *
 * Name:        tq_append_frame
 *
 * Purpose:     Add an AX.25 frame to the end of the specified transmit queue.
 *
 * Inputs:	channel	- Radio channel, 0 is first.  There is only one.
 *
 *		prio	- Priority, use TQ_PRIO_0_HI for directed responses
 *				or TQ_PRIO_1_LO for broadcasts.
 *
 *		frame	- Complete frame, as it should go over the air,
 *				including the FCS.
 *
 * Description:	Add frame to end of queue.
 *		Signal the transmit thread if the queue was formerly empty.
 *
 *--------------------------------------------------------------------*/

func tq_append_frame(channel int, prio int, frame []byte) {

	Assert(prio >= 0 && prio < TQ_NUM_PRIO)

	if len(frame) == 0 {
		main_log.Error("INTERNAL ERROR:  tq_append_frame empty frame. Please report this!")
		return
	}

	// Error if trying to transmit on a radio channel which does not exist.
	// The port number comes from the client, not from us, so it can be wrong.

	if channel != 0 {
		main_log.Errorf("Request to transmit on invalid radio channel %d.", channel)
		main_log.Error("This is probably a client application error, not a problem with malamute.")
		main_log.Error("Are you using AX.25 for Linux?  It might be trying to use a modified")
		main_log.Error("version of KISS which uses the port field differently than the")
		main_log.Error("original KISS protocol specification.  The solution might be to use")
		main_log.Error("a command like \"kissparms -c 1 -p radio\" to set CRC none mode.")
		return
	}

	/*
	 * Is transmit queue out of control?
	 *
	 * There is no technical reason to limit the transmit queue length.
	 * When a large file is being broadcast it is perfectly reasonable to
	 * have a good number of frames waiting for transmission, so unlike
	 * an APRS digipeater we only warn here and never discard.
	 */

	if tq_count(prio, false) > 250 {
		main_log.Warnf("Transmit queue for priority %d is extremely long.", prio)
		main_log.Warn("Perhaps the channel is so busy there is no opportunity to send.")
	}

	tq_mutex.Lock()

	tq_queue[prio] = append(tq_queue[prio], frame)

	tq_mutex.Unlock()

	if tq_xmit_thread_is_waiting {
		tq_wake_up_mutex.Lock()
		tq_wake_up_cond.Signal()
		tq_wake_up_mutex.Unlock()
	}
} /* end tq_append_frame */

/*-------------------------------------------------------------------
 *
 * Name:        tq_wait_while_empty
 *
 * Purpose:     Sleep while the transmit queue is empty rather than
 *		polling periodically.
 *
 *--------------------------------------------------------------------*/

func tq_wait_while_empty() {

	tq_mutex.Lock()
	var is_empty = tq_is_empty()
	tq_mutex.Unlock()

	if is_empty {
		tq_wake_up_mutex.Lock()
		tq_xmit_thread_is_waiting = true
		tq_wake_up_cond.Wait()
		tq_xmit_thread_is_waiting = false
		tq_wake_up_mutex.Unlock()
	}

} /* end tq_wait_while_empty */

/*-------------------------------------------------------------------
 *
 * Name:        tq_remove
 *
 * Purpose:     Remove a frame from the head of the specified transmit queue.
 *
 * Inputs:	prio	- Priority, use TQ_PRIO_0_HI or TQ_PRIO_1_LO.
 *
 * Returns:	The frame, or nil if the queue is empty.
 *
 *--------------------------------------------------------------------*/

func tq_remove(prio int) []byte {

	tq_mutex.Lock()

	var result []byte

	if len(tq_queue[prio]) > 0 {
		result = tq_queue[prio][0]
		tq_queue[prio] = tq_queue[prio][1:]
	}

	tq_mutex.Unlock()

	return result

} /* end tq_remove */

/*-------------------------------------------------------------------
 *
 * Name:        tq_peek
 *
 * Purpose:     Take a peek at the next frame in the queue but don't remove it.
 *
 * Inputs:	prio	- Priority, use TQ_PRIO_0_HI or TQ_PRIO_1_LO.
 *
 * Returns:	The frame, or nil.  It is still in the queue.
 *
 *--------------------------------------------------------------------*/

func tq_peek(prio int) []byte {

	tq_mutex.Lock()

	var result []byte

	if len(tq_queue[prio]) > 0 {
		result = tq_queue[prio][0]
	}

	tq_mutex.Unlock()

	return result

} /* end tq_peek */

/*-------------------------------------------------------------------
 *
 * Name:        tq_is_empty
 *
 * Purpose:     Test if both queues are empty.
 *
 * Returns:	True if nothing in either queue.
 *
 * Description:	Caller must hold tq_mutex.
 *
 *--------------------------------------------------------------------*/

func tq_is_empty() bool {

	for p := 0; p < TQ_NUM_PRIO; p++ {
		if len(tq_queue[p]) > 0 {
			return false
		}
	}

	return true

} /* end tq_is_empty */

/*-------------------------------------------------------------------
 *
 * Name:        tq_count
 *
 * Purpose:     Return count of the number of frames (or bytes) in the
 *		specified transmit queue.
 *		This is used only for queries from KISS or AGW client
 *		applications.
 *
 * Inputs:	prio	- Priority, use TQ_PRIO_0_HI or TQ_PRIO_1_LO.
 *			  Specify -1 for total of both.
 *
 *		bytes	- If true, return number of bytes rather than frames.
 *
 * Returns:	Number of items in specified queue.
 *
 *--------------------------------------------------------------------*/

func tq_count(prio int, bytes bool) int {

	if prio == -1 {
		return tq_count(TQ_PRIO_0_HI, bytes) + tq_count(TQ_PRIO_1_LO, bytes)
	}

	if prio < 0 || prio >= TQ_NUM_PRIO {
		main_log.Errorf("INTERNAL ERROR - tq_count(%d, %v)", prio, bytes)
		return 0
	}

	// Don't want lists being rearranged while we are traversing them.

	tq_mutex.Lock()

	var n = 0
	for _, f := range tq_queue[prio] {
		if bytes {
			n += len(f)
		} else {
			n++
		}
	}

	tq_mutex.Unlock()

	return n
} /* end tq_count */

/*-------------------------------------------------------------------
 *
 * Name:        tq_byte_count
 *
 * Purpose:     Total number of bytes waiting for transmission.
 *		Answers the XKISS TXBUF hardware query and the AGW 'y'
 *		outstanding frames request.
 *
 *--------------------------------------------------------------------*/

func tq_byte_count() int {
	return tq_count(-1, true)
} /* end tq_byte_count */
