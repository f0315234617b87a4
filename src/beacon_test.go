package pacsat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_beacon(t *testing.T, grid string) *store_t {
	t.Helper()
	tq_init()

	var s = test_store(t)
	var mycall, _ = ax25_parse_addr("PACSAT-1")
	var dest, _ = ax25_parse_addr("PSTAT")

	g_beacon_mycall = mycall
	g_beacon_dest = dest
	g_beacon_grid = grid
	g_beacon_store = s
	return s
}

func TestBeaconText(t *testing.T) {
	var s = test_beacon(t, "FN31pr")
	test_store_add(t, s, "ONE", "G1ABC", "first")
	test_store_add(t, s, "TWO", "G1ABC", "second")

	beacon_send()

	var frame = tq_remove(TQ_PRIO_1_LO)
	require.NotNil(t, frame)

	var pp, err = ax25_unpack(frame)
	require.NoError(t, err)
	assert.Equal(t, "PSTAT", pp.dest.String())
	assert.Equal(t, "PACSAT-1", pp.src.String())
	assert.Equal(t, byte(PID_NO_LAYER_3), pp.pid)
	assert.Equal(t, "Malamute file server de PACSAT-1 [FN31pr]. 2 files, 0 frames queued.", string(pp.info))
}

func TestBeaconTextWithoutLocation(t *testing.T) {
	test_beacon(t, "")

	beacon_send()

	var frame = tq_remove(TQ_PRIO_1_LO)
	require.NotNil(t, frame)

	var pp, err = ax25_unpack(frame)
	require.NoError(t, err)
	assert.Equal(t, "Malamute file server de PACSAT-1. 0 files, 0 frames queued.", string(pp.info))
}

func TestBeaconCountsOnlyVisibleFiles(t *testing.T) {
	var s = test_beacon(t, "")
	var n = test_store_add(t, s, "GONE", "G1ABC", "trashed before the beacon")
	test_store_add(t, s, "HERE", "G1ABC", "still listed")
	require.NoError(t, s.soft_delete(n, "G1ABC"))

	beacon_send()

	var frame = tq_remove(TQ_PRIO_1_LO)
	require.NotNil(t, frame)

	var pp, err = ax25_unpack(frame)
	require.NoError(t, err)
	assert.Contains(t, string(pp.info), " 1 files,")
}
