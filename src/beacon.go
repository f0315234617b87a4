package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Transmit a status beacon on a fixed schedule.
 *
 * Description:	A short UI frame announcing that the file server is
 *		on the air.  Client stations use it to find the
 *		server and to judge how busy it is before asking for
 *		anything.  The text carries the station callsign, the
 *		Maidenhead grid square when a location is configured,
 *		the number of files available for download, and the
 *		current depth of the transmit queue.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
)

/* Wait for the radio side to settle before the first beacon. */

const BEACON_STARTUP_SEC = 30

var g_beacon_every int /* Seconds between beacons. */

var g_beacon_mycall ax25_addr_t
var g_beacon_dest ax25_addr_t
var g_beacon_grid string
var g_beacon_store *store_t

/*-------------------------------------------------------------------
 *
 * Name:        beacon_init
 *
 * Purpose:     Initialize the beacon process.
 *
 * Inputs:	p	- Configuration.  An interval of 0 disables
 *			  the beacon entirely.
 *		st	- File store, for the file count.
 *
 * Description:	Start up beacon_thread to send the packets at the
 *		appropriate times.
 *
 *--------------------------------------------------------------------*/

func beacon_init(p *config_t, st *store_t) {
	if p.Beacon.Interval == 0 {
		return
	}

	var dest, destErr = ax25_parse_addr(p.Beacon.Dest)
	if destErr != nil {
		// Config validation already rejected bad destinations.
		main_log.Errorf("Beacon disabled: %v", destErr)
		return
	}

	g_beacon_every = p.Beacon.Interval
	g_beacon_mycall = p.mycall
	g_beacon_dest = dest
	g_beacon_grid = p.grid_square()
	g_beacon_store = st

	go beacon_thread()
} /* end beacon_init */

/*-------------------------------------------------------------------
 *
 * Name:        beacon_thread
 *
 * Purpose:     Transmit beacons when it is time.
 *
 * Description:	Go to sleep until it is time for the next beacon.
 *		Transmit.  Repeat.
 *
 *--------------------------------------------------------------------*/

func beacon_thread() {
	SLEEP_SEC(BEACON_STARTUP_SEC)

	for {
		beacon_send()
		SLEEP_SEC(g_beacon_every)
	}
} /* end beacon_thread */

/*-------------------------------------------------------------------
 *
 * Name:        beacon_send
 *
 * Purpose:     Build the status text and queue one UI frame.
 *
 * Description:	The counts are sampled when the frame is built, not
 *		when it finally goes out, so a busy channel can make
 *		the queue depth read a little stale.  Nobody minds.
 *
 *--------------------------------------------------------------------*/

func beacon_send() {
	var text = fmt.Sprintf("Malamute file server de %s", g_beacon_mycall)

	if len(g_beacon_grid) > 0 {
		text += fmt.Sprintf(" [%s]", g_beacon_grid)
	}

	var st = g_beacon_store.stats()
	text += fmt.Sprintf(". %d files, %d frames queued.", st.active, tq_count(-1, false))

	var pp = &ax25_packet_t{
		dest: g_beacon_dest,
		src:  g_beacon_mycall,
		pid:  PID_NO_LAYER_3,
		info: []byte(text),
	}

	var frame, err = ax25_pack(pp)
	if err != nil {
		main_log.Errorf("Cannot build beacon frame: %v", err)
		return
	}

	main_log.Debugf("Beacon: %s", text)
	tq_append_frame(0, TQ_PRIO_1_LO, frame)
} /* end beacon_send */
