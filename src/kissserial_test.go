package pacsat

/*
 * The serial port KISS transport is tested against a pseudo terminal.
 * The master side plays the hardware TNC; the slave side is the
 * "serial port" we attach to.  Attaching puts the slave in raw mode
 * so the line discipline never touches the KISS byte stream.
 */

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* Poll the received frame queue so a lost frame fails instead of hanging. */

func test_dlq_next(t *testing.T) *dlq_item_t {
	t.Helper()
	var deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var item = dlq_remove()
		if item != nil {
			return item
		}
		SLEEP_MS(10)
	}
	t.Fatal("nothing arrived on the received frame queue")
	return nil
}

func TestKISSSerialBothDirections(t *testing.T) {
	dlq_init()

	var tnc, pts, err = pty.Open()
	require.NoError(t, err)
	defer tnc.Close()
	defer pts.Close()

	require.NoError(t, kissserial_init(pts.Name(), 0, 0))

	/* The TNC sends a received frame.  It lands on the queue with the
	   port number taken from the command byte. */

	var _, frame = test_ui_packet(t)

	var _, writeErr = tnc.Write(kiss_encapsulate(append([]byte{0x00}, frame...)))
	require.NoError(t, writeErr)

	var item = test_dlq_next(t)
	assert.Equal(t, DLQ_REC_FRAME, item.dtype)
	assert.Equal(t, 0, item.channel)
	assert.Equal(t, frame, item.frame)

	/* The stream keeps going after the first frame.  This one needs
	   escaping on the wire and arrives on a different TNC port. */

	var second = []byte{0x82, 0xa0, FEND, FESC, 0x61, 0x03, 0xf0, 'h', 'i'}
	_, writeErr = tnc.Write(kiss_encapsulate(append([]byte{0x10}, second...)))
	require.NoError(t, writeErr)

	item = test_dlq_next(t)
	assert.Equal(t, 1, item.channel)
	assert.Equal(t, second, item.frame)

	/* Now transmit.  The TNC should read the same frame back with
	   KISS framing and the data frame command byte. */

	require.True(t, kissserial_send_frame(0, frame))

	var expected = kiss_encapsulate(append([]byte{0x00}, frame...))
	var wire = make([]byte, len(expected))
	var _, readErr = io.ReadFull(tnc, wire)
	require.NoError(t, readErr)
	assert.Equal(t, expected, wire)
}

// A TNC that only shows up after startup, such as one on Bluetooth,
// is found by the polling option.
func TestKISSSerialPollingFindsLateDevice(t *testing.T) {
	dlq_init()

	var device = filepath.Join(t.TempDir(), "tnc")

	require.NoError(t, kissserial_init(device, 0, 1))

	var tnc, pts, err = pty.Open()
	require.NoError(t, err)
	defer pts.Close()

	/* Raw mode before the device becomes visible, the way a real TNC
	   presents a clean byte pipe from the start. */

	var raw, rawErr = term.Open(pts.Name(), term.RawMode)
	require.NoError(t, rawErr)
	defer raw.Close()

	require.NoError(t, os.Symlink(pts.Name(), device))
	t.Cleanup(func() {
		os.Remove(device)
		tnc.Close()
	})

	/* Resend until the poller has attached and delivered.  Duplicate
	   copies are harmless, every one decodes to the same frame. */

	var _, frame = test_ui_packet(t)
	var wire = kiss_encapsulate(append([]byte{0x00}, frame...))

	var item *dlq_item_t
	var deadline = time.Now().Add(10 * time.Second)
	for item == nil && time.Now().Before(deadline) {
		var _, writeErr = tnc.Write(wire)
		require.NoError(t, writeErr)
		for i := 0; i < 50; i++ {
			item = dlq_remove()
			if item != nil {
				break
			}
			SLEEP_MS(10)
		}
	}

	require.NotNil(t, item, "poller never attached to the late device")
	assert.Equal(t, frame, item.frame)
}

func TestKISSSerialOpenFailure(t *testing.T) {
	var device = filepath.Join(t.TempDir(), "no-such-tnc")
	var err = kissserial_init(device, 0, 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, device)

	/* Without an open connection a frame is quietly discarded. */

	kissserial_fd = nil
	assert.False(t, kissserial_send_frame(0, []byte{0x01, 0x02}))
}
