package pacsat

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tzneal/coordconv"
)

func test_config_file(t *testing.T, text string) string {
	t.Helper()
	var fname = filepath.Join(t.TempDir(), "malamute.yaml")
	require.NoError(t, os.WriteFile(fname, []byte(text), 0o600))
	return fname
}

func TestConfigMinimal(t *testing.T) {
	var p, err = config_load(test_config_file(t, `
callsign: PACSAT-1
storage:
  dir: /tank/pacsat
`))
	require.NoError(t, err)

	assert.Equal(t, "PACSAT-1", p.mycall.String())
	assert.Equal(t, "/tank/pacsat", p.Storage.Dir)

	/* Everything else at its default. */
	assert.Equal(t, uint32(FTL0_MAX_FILE_SIZE), p.Storage.MaxFileSize)
	assert.Equal(t, DEFAULT_TRASH_RETENTION_DAYS, p.Storage.TrashRetentionDays)
	assert.Equal(t, DEFAULT_FILE_EXT, p.Storage.DefaultExt)
	assert.Equal(t, "none", p.Radio.Type)
	assert.Equal(t, DEFAULT_AGW_PORT, p.Clients.AGWPort)
	assert.Equal(t, DEFAULT_KISS_PORT, p.Clients.KISSPort)
	assert.Equal(t, DEFAULT_BEACON_DEST, p.Beacon.Dest)
	assert.Zero(t, p.Beacon.Interval, "no beacon until asked for")
	assert.Equal(t, DEFAULT_SESSION_TIMEOUT, p.Upload.SessionTimeout)
	assert.Equal(t, DEFAULT_DIR_INTERVAL, p.Directory.Interval)
	assert.False(t, p.has_loc)
	assert.Empty(t, p.grid_square())
}

func TestConfigFullyLoaded(t *testing.T) {
	var p, err = config_load(test_config_file(t, `
callsign: G0ABC-2
storage:
  dir: /var/lib/malamute
  max_file_size: 500000
  trash_retention_days: 7
  default_ext: dat
radio:
  type: tcp
  host: tnc.local
  port: 8100
clients:
  agw_port: 9000
  kiss_port: 9001
  pty: true
  dns_sd: true
  dns_sd_name: Shack Malamute
station:
  latitude: 41.714775
  longitude: -72.727260
beacon:
  interval: 120
  dest: BEACON
upload:
  session_timeout: 600
directory:
  interval: 90
activity:
  dir: /var/log/malamute
`))
	require.NoError(t, err)

	assert.Equal(t, "G0ABC-2", p.mycall.String())
	assert.Equal(t, uint32(500000), p.Storage.MaxFileSize)
	assert.Equal(t, 7, p.Storage.TrashRetentionDays)
	assert.Equal(t, "dat", p.Storage.DefaultExt)
	assert.Equal(t, "tcp", p.Radio.Type)
	assert.Equal(t, "tnc.local", p.Radio.Host)
	assert.Equal(t, 8100, p.Radio.Port)
	assert.Equal(t, 9000, p.Clients.AGWPort)
	assert.True(t, p.Clients.PTY)
	assert.True(t, p.Clients.DNSSD)
	assert.Equal(t, "Shack Malamute", p.Clients.DNSSDName)
	assert.Equal(t, 120, p.Beacon.Interval)
	assert.Equal(t, "BEACON", p.Beacon.Dest)
	assert.Equal(t, 600, p.Upload.SessionTimeout)
	assert.Equal(t, 90, p.Directory.Interval)
	assert.Equal(t, "/var/log/malamute", p.Activity.Dir)

	assert.True(t, p.has_loc)
	assert.Equal(t, "FN31pr", p.grid_square())
}

func TestConfigMissingFile(t *testing.T) {
	var _, err = config_load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigEmptyFileFailsValidation(t *testing.T) {
	/* An empty file is not a decode error, just an unusable station. */
	var _, err = config_load(test_config_file(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callsign is required")
}

func TestConfigUnknownKeyRejected(t *testing.T) {
	var _, err = config_load(test_config_file(t, `
callsgin: PACSAT-1
storage:
  dir: /tank/pacsat
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callsgin", "a typo must not silently run with defaults")
}

func TestConfigValidation(t *testing.T) {
	var base = `
callsign: PACSAT-1
storage:
  dir: /tank/pacsat
`
	var cases = []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no storage dir", "callsign: PACSAT-1\n", "storage.dir is required"},
		{"bad callsign", "callsign: TOOLONG99\nstorage:\n  dir: /x\n", "callsign"},
		{"zero max file size", base + "  max_file_size: 0\n", "max_file_size"},
		{"negative retention", base + "  trash_retention_days: -1\n", "trash_retention_days"},
		{"long extension", base + "  default_ext: html\n", "default_ext"},
		{"serial without device", base + "radio:\n  type: serial\n", "radio.device"},
		{"tcp with bad port", base + "radio:\n  type: tcp\n  port: 0\n", "radio.port"},
		{"unknown radio type", base + "radio:\n  type: carrier-pigeon\n", "radio.type"},
		{"agw port out of range", base + "clients:\n  agw_port: 70000\n", "agw_port"},
		{"port clash", base + "clients:\n  agw_port: 8000\n  kiss_port: 8000\n", "must differ"},
		{"negative beacon interval", base + "beacon:\n  interval: -5\n", "beacon.interval"},
		{"bad beacon dest", base + "beacon:\n  dest: NOT A CALL\n", "beacon.dest"},
		{"zero session timeout", base + "upload:\n  session_timeout: 0\n", "session_timeout"},
		{"zero directory interval", base + "directory:\n  interval: 0\n", "directory.interval"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var _, err = config_load(test_config_file(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfigLocationForms(t *testing.T) {
	var base = "callsign: PACSAT-1\nstorage:\n  dir: /x\n"

	/* Maidenhead locator. */
	var p, err = config_load(test_config_file(t, base+"station:\n  grid: FN31pr\n"))
	require.NoError(t, err)
	assert.True(t, p.has_loc)
	assert.Equal(t, "FN31pr", p.grid_square(), "locator survives the round trip through a position")

	/* UTM, built from the same spot so the expected locator is known. */
	var utm, cerr = coordconv.DefaultUTMConverter.ConvertFromGeodetic(ll_make(41.714775, -72.727260), 0)
	require.NoError(t, cerr)
	var utmText = fmt.Sprintf("%d %c %.0f %.0f", utm.Zone, HemisphereToRune(utm.Hemisphere), utm.Easting, utm.Northing)

	p, err = config_load(test_config_file(t, base+fmt.Sprintf("station:\n  utm: %q\n", utmText)))
	require.NoError(t, err)
	assert.True(t, p.has_loc)
	assert.Equal(t, "FN31pr", p.grid_square())

	/* Several forms at once is a mistake, not a preference order. */
	_, err = config_load(test_config_file(t, base+"station:\n  grid: FN31pr\n  latitude: 41.7\n  longitude: -72.7\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not several")

	/* Half a coordinate pair. */
	_, err = config_load(test_config_file(t, base+"station:\n  latitude: 41.7\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "go together")

	/* Out of range. */
	_, err = config_load(test_config_file(t, base+"station:\n  latitude: 91.0\n  longitude: 0.0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")

	/* Unusable locator. */
	_, err = config_load(test_config_file(t, base+"station:\n  grid: ZZ99\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "station.grid")
}

func TestConfigPathExpansion(t *testing.T) {
	var p, err = config_load(test_config_file(t, `
callsign: PACSAT-1
storage:
  dir: "  /tank/pacsat  "
activity:
  dir: ~/logs
`))
	require.NoError(t, err)
	assert.Equal(t, "/tank/pacsat", p.Storage.Dir, "surrounding whitespace is trimmed")

	var home, herr = os.UserHomeDir()
	require.NoError(t, herr)
	assert.Equal(t, home+"/logs", p.Activity.Dir)
}
