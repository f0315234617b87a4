package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration information from a file.
 *
 * Description:	This started out as a simple little application with a
 *		few command line options.  Due to creeping featurism,
 *		it's now time to add a configuration file to specify
 *		options.
 *
 *		The file is YAML.  Anything not specified gets a
 *		sensible default, and unknown keys are an error so a
 *		typo does not silently run with the default.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/geo/s2"
	"gopkg.in/yaml.v3"
)

const DEFAULT_AGW_PORT = 8000 /* Same well known ports as everyone else, */

const DEFAULT_KISS_PORT = 8001 /* so client applications work unconfigured. */

const DEFAULT_RADIO_SPEED = 9600

const DEFAULT_DIR_INTERVAL = 60 /* Seconds between directory broadcast cycles. */

const DEFAULT_SESSION_TIMEOUT = 300 /* Seconds of silence before an upload session is abandoned. */

const DEFAULT_TRASH_RETENTION_DAYS = 30

const DEFAULT_FILE_EXT = "txt" /* For uploads that arrive without a name. */

const DEFAULT_BEACON_DEST = "PSTAT"

/*
 * Exported fields are what the YAML decoder needs to see.
 * Everything below the yaml-tagged part is derived during validation.
 */

type config_t struct {
	Callsign string `yaml:"callsign"`

	Storage struct {
		Dir                string `yaml:"dir"`
		MaxFileSize        uint32 `yaml:"max_file_size"`
		TrashRetentionDays int    `yaml:"trash_retention_days"`
		DefaultExt         string `yaml:"default_ext"`
	} `yaml:"storage"`

	Radio struct {
		Type   string `yaml:"type"` /* serial, tcp, or none */
		Device string `yaml:"device"`
		Speed  int    `yaml:"speed"`
		Poll   int    `yaml:"poll"` /* Seconds.  Check for the serial device to appear instead of failing at startup. */
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
	} `yaml:"radio"`

	Clients struct {
		AGWPort   int    `yaml:"agw_port"`  /* 0 disables. */
		KISSPort  int    `yaml:"kiss_port"` /* 0 disables. */
		PTY       bool   `yaml:"pty"`
		DNSSD     bool   `yaml:"dns_sd"`
		DNSSDName string `yaml:"dns_sd_name"` /* Override "Malamute on <hostname>". */
	} `yaml:"clients"`

	Station struct {
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		Grid      string   `yaml:"grid"` /* Maidenhead locator, alternative to lat/lon. */
		UTM       string   `yaml:"utm"`  /* "zone hemisphere easting northing", another alternative. */
	} `yaml:"station"`

	Beacon struct {
		Interval int    `yaml:"interval"` /* Seconds.  0 disables. */
		Dest     string `yaml:"dest"`
	} `yaml:"beacon"`

	Upload struct {
		SessionTimeout int `yaml:"session_timeout"` /* Seconds. */
	} `yaml:"upload"`

	Directory struct {
		Interval int `yaml:"interval"` /* Seconds between full directory cycles. */
	} `yaml:"directory"`

	Activity struct {
		Dir string `yaml:"dir"` /* Daily log files go here.  Empty disables. */
	} `yaml:"activity"`

	mycall  ax25_addr_t /* Parsed form of Callsign. */
	latlng  s2.LatLng
	has_loc bool
}

/*-------------------------------------------------------------------
 *
 * Name:	config_default
 *
 * Purpose:	A configuration with everything at its default.
 *
 * Description:	The callsign and storage directory have no sensible
 *		defaults, so a default configuration does not validate.
 *
 *--------------------------------------------------------------------*/

func config_default() *config_t {
	var p = new(config_t)

	p.Storage.MaxFileSize = FTL0_MAX_FILE_SIZE
	p.Storage.TrashRetentionDays = DEFAULT_TRASH_RETENTION_DAYS
	p.Storage.DefaultExt = DEFAULT_FILE_EXT

	p.Radio.Type = "none"
	p.Radio.Speed = DEFAULT_RADIO_SPEED
	p.Radio.Host = "localhost"
	p.Radio.Port = 8001

	p.Clients.AGWPort = DEFAULT_AGW_PORT
	p.Clients.KISSPort = DEFAULT_KISS_PORT

	p.Beacon.Dest = DEFAULT_BEACON_DEST

	p.Upload.SessionTimeout = DEFAULT_SESSION_TIMEOUT

	p.Directory.Interval = DEFAULT_DIR_INTERVAL

	return p
} /* end config_default */

/*-------------------------------------------------------------------
 *
 * Name:	config_load
 *
 * Purpose:	Read a configuration file and check it over.
 *
 * Inputs:	fname	- Name of configuration file.
 *
 * Returns:	Validated configuration.
 *
 *--------------------------------------------------------------------*/

func config_load(fname string) (*config_t, error) {

	var fp, openErr = os.Open(fname)
	if openErr != nil {
		return nil, fmt.Errorf("could not open config file: %w", openErr)
	}
	defer fp.Close()

	var p = config_default()

	var dec = yaml.NewDecoder(fp)
	dec.KnownFields(true)

	/* An empty file decodes to io.EOF.  All defaults, validation will
	   say what is missing. */

	var decodeErr = dec.Decode(p)
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return nil, fmt.Errorf("config file %s: %w", fname, decodeErr)
	}

	var validateErr = p.validate()
	if validateErr != nil {
		return nil, fmt.Errorf("config file %s: %w", fname, validateErr)
	}

	return p, nil
} /* end config_load */

/*-------------------------------------------------------------------
 *
 * Name:	validate
 *
 * Purpose:	Complain about anything unusable before it gets a
 *		chance to misbehave at 0300 during a pass.
 *
 *--------------------------------------------------------------------*/

func (p *config_t) validate() error {

	if p.Callsign == "" {
		return errors.New("callsign is required")
	}
	var mycall, callErr = ax25_parse_addr(p.Callsign)
	if callErr != nil {
		return fmt.Errorf("callsign: %w", callErr)
	}
	p.mycall = mycall

	p.Storage.Dir = config_expand_path(p.Storage.Dir)
	p.Activity.Dir = config_expand_path(p.Activity.Dir)

	if p.Storage.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if p.Storage.MaxFileSize == 0 {
		return errors.New("storage.max_file_size must be positive")
	}
	if p.Storage.TrashRetentionDays < 0 {
		return errors.New("storage.trash_retention_days must not be negative")
	}
	if len(p.Storage.DefaultExt) > 3 {
		return errors.New("storage.default_ext is at most 3 characters")
	}

	switch p.Radio.Type {
	case "serial":
		if p.Radio.Device == "" {
			return errors.New("radio.device is required for radio.type serial")
		}
		if p.Radio.Poll < 0 {
			return errors.New("radio.poll must not be negative")
		}
	case "tcp":
		if p.Radio.Host == "" {
			return errors.New("radio.host is required for radio.type tcp")
		}
		if p.Radio.Port < 1 || p.Radio.Port > 65535 {
			return errors.New("radio.port must be 1 thru 65535")
		}
	case "none", "":
		p.Radio.Type = "none"
	default:
		return fmt.Errorf("radio.type %q is not one of serial, tcp, none", p.Radio.Type)
	}

	if p.Clients.AGWPort < 0 || p.Clients.AGWPort > 65535 {
		return errors.New("clients.agw_port must be 0 thru 65535")
	}
	if p.Clients.KISSPort < 0 || p.Clients.KISSPort > 65535 {
		return errors.New("clients.kiss_port must be 0 thru 65535")
	}
	if p.Clients.AGWPort != 0 && p.Clients.AGWPort == p.Clients.KISSPort {
		return errors.New("clients.agw_port and clients.kiss_port must differ")
	}

	var locErr = p.resolve_location()
	if locErr != nil {
		return locErr
	}

	if p.Beacon.Interval < 0 {
		return errors.New("beacon.interval must not be negative")
	}
	if p.Beacon.Dest == "" {
		p.Beacon.Dest = DEFAULT_BEACON_DEST
	}
	if _, destErr := ax25_parse_addr(p.Beacon.Dest); destErr != nil {
		return fmt.Errorf("beacon.dest: %w", destErr)
	}

	if p.Upload.SessionTimeout <= 0 {
		return errors.New("upload.session_timeout must be positive")
	}
	if p.Directory.Interval <= 0 {
		return errors.New("directory.interval must be positive")
	}

	return nil
} /* end validate */

/*
 * A station location may be given as decimal degrees, as a Maidenhead
 * locator, or as UTM.  At most one form; the canonical value is an
 * s2.LatLng.  No location at all is fine, the beacon just has less
 * to say.
 */

func (p *config_t) resolve_location() error {

	var forms = 0
	if p.Station.Latitude != nil || p.Station.Longitude != nil {
		forms++
	}
	if p.Station.Grid != "" {
		forms++
	}
	if p.Station.UTM != "" {
		forms++
	}
	if forms == 0 {
		return nil
	}
	if forms > 1 {
		return errors.New("station location: give latitude/longitude, grid, or utm, not several")
	}

	switch {
	case p.Station.Grid != "":
		var dlat, dlon, gridErr = ll_from_grid_square(p.Station.Grid)
		if gridErr != nil {
			return fmt.Errorf("station.grid: %w", gridErr)
		}
		p.latlng = ll_make(dlat, dlon)

	case p.Station.UTM != "":
		var latlng, utmErr = ll_from_utm(p.Station.UTM)
		if utmErr != nil {
			return fmt.Errorf("station.utm: %w", utmErr)
		}
		p.latlng = latlng

	default:
		if p.Station.Latitude == nil || p.Station.Longitude == nil {
			return errors.New("station location: latitude and longitude go together")
		}
		var dlat = *p.Station.Latitude
		var dlon = *p.Station.Longitude
		if dlat < -90 || dlat > 90 {
			return errors.New("station.latitude must be -90 thru 90")
		}
		if dlon < -180 || dlon > 180 {
			return errors.New("station.longitude must be -180 thru 180")
		}
		p.latlng = ll_make(dlat, dlon)
	}

	p.has_loc = true
	return nil
} /* end resolve_location */

/*
 * The grid square the beacon advertises.  Empty when the station has
 * no configured location.
 */

func (p *config_t) grid_square() string {
	if !p.has_loc {
		return ""
	}
	var grid, err = ll_to_grid_square(p.latlng, 3)
	if err != nil {
		return ""
	}
	return grid
}

/*
 * Strings like "serial" and "tcp" are for the config file.  Keep the
 * knowledge of which transport init to call in one place.
 */

func (p *config_t) attach_radio() error {
	switch p.Radio.Type {
	case "serial":
		return kissserial_init(p.Radio.Device, p.Radio.Speed, p.Radio.Poll)
	case "tcp":
		return nettnc_init(p.Radio.Host, p.Radio.Port)
	case "none":
		main_log.Info("No radio attached.  Transmit frames will be dropped.")
		return nil
	}
	return fmt.Errorf("radio.type %q is not one of serial, tcp, none", p.Radio.Type)
}

/*
 * Trim surrounding junk a windows editor might have left and expand a
 * leading ~ so the storage path works the way people expect.
 */

func config_expand_path(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~/") {
		var home, err = os.UserHomeDir()
		if err == nil {
			path = home + path[1:]
		}
	}
	return path
}
