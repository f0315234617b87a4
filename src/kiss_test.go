package pacsat

/*
 * The virtual KISS TNC.  The test plays a client application on the
 * slave side of the pseudo terminal and, like kissattach, puts the
 * line in raw mode before talking.
 */

import (
	"io"
	"testing"

	"github.com/pkg/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKISSPseudoTerminalTNC(t *testing.T) {
	tq_init()

	kisspt_init(true)
	require.NotNil(t, pt_master, "pseudo terminal did not open")
	t.Cleanup(func() {
		if pt_master != nil {
			pt_master.Close()
		}
	})

	var client, err = term.Open(pt_slave.Name(), term.RawMode)
	require.NoError(t, err)
	defer client.Close()

	/* Frames the client writes are queued for transmission. */

	var _, frame = test_ui_packet(t)
	var _, writeErr = client.Write(kiss_encapsulate(append([]byte{0x00}, frame...)))
	require.NoError(t, writeErr)

	assert.Equal(t, frame, test_tq_next(t, TQ_PRIO_1_LO))

	/* Traffic heard on the radio is copied to the client. */

	kisspt_send_rec_packet(0, KISS_CMD_DATA_FRAME, frame, false)

	var expected = kiss_encapsulate(append([]byte{0x00}, frame...))
	var wire = make([]byte, len(expected))
	var _, readErr = io.ReadFull(client, wire)
	require.NoError(t, readErr)
	assert.Equal(t, expected, wire)
}

func TestKISSPseudoTerminalDisabled(t *testing.T) {
	kisspt_init(false)
	assert.Nil(t, pt_master)

	/* Nothing to send to is not an error. */

	kisspt_send_rec_packet(0, KISS_CMD_DATA_FRAME, []byte{0x01}, false)
}
