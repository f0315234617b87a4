// Package pacsat implements the PACSAT store-and-forward file relay
// protocols: the PACSAT File Header codec, FTL0 upload/download with
// hole-list selective retransmission, directory and file broadcasts,
// and the file store behind them, over KISS or AGWPE framing.
package pacsat

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
)

/*
 * AX.25 protocol id bytes for the PACSAT protocol family.
 *
 * 0xBD and 0xBB are fixed by the broadcast protocol.  FTL0 negotiation
 * gets the adjacent reserved value so a monitor can tell the three
 * apart at a glance.
 */

const PID_PACSAT_DIR = 0xBD  /* Directory broadcast, info is a serialized PFH. */
const PID_PACSAT_FILE = 0xBB /* File chunk broadcast. */
const PID_FTL0 = 0xBC        /* FTL0 upload/download negotiation. */
const PID_NO_LAYER_3 = 0xF0  /* Plain text, used by the status beacon. */

/* One radio, so one channel.  Port numbers above this are rejected. */

const MAX_RADIO_CHANS = 1

/*
 * One logger per concern so `-d` output can be told apart.
 * Levels are raised together by SetDebugLevel.
 */

var kiss_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "kiss"})
var ax25_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "ax25"})
var agwpe_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "agwpe"})
var store_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "store"})
var ftl0_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "ftl0"})
var bcast_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "bcast"})
var main_log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "malamute"})

var all_logs = []*log.Logger{kiss_log, ax25_log, agwpe_log, store_log, ftl0_log, bcast_log, main_log}

// SetDebugLevel maps a repeat count of the -d flag onto log levels:
// 0 info, 1 debug, 2+ debug with caller locations.
func SetDebugLevel(n int) {
	for _, l := range all_logs {
		switch {
		case n <= 0:
			l.SetLevel(log.InfoLevel)
		case n == 1:
			l.SetLevel(log.DebugLevel)
		default:
			l.SetLevel(log.DebugLevel)
			l.SetReportCaller(true)
		}
	}
}

func SLEEP_MS(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func SLEEP_SEC(s int) {
	SLEEP_MS(s * 1000)
}

// Fixed-width header fields are space padded; trim for display and
// comparisons, pad when building.
func ByteFieldToString(b []byte) string {
	return string(bytes.TrimRight(b, " \x00"))
}

func stringToByteField(s string, width int) []byte {
	var b = make([]byte, width)
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = ' '
	}
	return b
}

// Can't be "assert" because of conflicts with stretchr/testify/assert, but otherwise, it's compatible enough
func Assert(t bool) {
	if !t {
		_, file, line, _ := runtime.Caller(1)
		panic(fmt.Sprintf("Assertion failed at %s:%d", file, line))
	}
}
