package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Activity log for the file server.
 *
 * Description:	Each upload, download, and broadcast completion is
 *		appended to a CSV file so station activity can be
 *		reviewed later with a spreadsheet or a few lines of
 *		awk.  One row per event.
 *
 *		The log can go to a single fixed file or to a
 *		directory where a new file is created for each day.
 *		Daily names look like 2025-11-30.log and sort
 *		chronologically.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

var log_mu sync.Mutex

var g_daily_names bool
var g_log_path string

/* Active file.  Nil when logging is disabled or the open failed. */

var g_log_fp *os.File

/* Name of the open file, used to notice when the date rolls over. */

var g_open_fname string

/*------------------------------------------------------------------
 *
 * Name:	log_init
 *
 * Purpose:	Initialization at start of application.
 *
 * Inputs:	daily_names	- True if a new file is to be created each day.
 *		path		- Log file name or just directory path
 *				  when daily_names is set.  Empty string
 *				  disables activity logging.
 *
 *---------------------------------------------------------------*/

func log_init(daily_names bool, path string) {
	log_mu.Lock()
	defer log_mu.Unlock()

	g_log_fp = nil
	g_open_fname = ""
	g_daily_names = daily_names
	g_log_path = path

	if len(path) == 0 {
		return
	}

	if g_daily_names {
		// Try to create the directory if it doesn't exist.

		var stat, statErr = os.Stat(g_log_path)
		if statErr == nil {
			if !stat.IsDir() {
				main_log.Errorf("Log file location \"%s\" is not a directory.", g_log_path)
				main_log.Errorf("Using current working directory \".\" instead.")
				g_log_path = "."
			}
		} else {
			if mkErr := os.MkdirAll(g_log_path, 0777); mkErr != nil {
				main_log.Errorf("Failed to create log directory \"%s\": %s", g_log_path, mkErr)
				main_log.Errorf("Using current working directory \".\" instead.")
				g_log_path = "."
			}
		}
	}

	/* Single fixed file is opened once and kept open.  Daily */
	/* files are opened lazily by log_activity so the name is */
	/* computed with the timestamp of the event being logged. */

	if !g_daily_names {
		var err error
		g_log_fp, err = os.OpenFile(g_log_path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			main_log.Errorf("Can't open log file \"%s\" for write: %s", g_log_path, err)
			return
		}
		g_open_fname = g_log_path
		log_header(g_log_fp)
	}
} /* end log_init */

/*------------------------------------------------------------------
 *
 * Name:	log_header
 *
 * Purpose:	Write the column header line if the file is new.
 *
 *---------------------------------------------------------------*/

func log_header(fp *os.File) {
	var stat, err = fp.Stat()
	if err == nil && stat.Size() == 0 {
		fmt.Fprintf(fp, "utime,isotime,event,station,file,detail\n")
	}
} /* end log_header */

/*------------------------------------------------------------------
 *
 * Name:	log_activity
 *
 * Purpose:	Append an event to the activity log.
 *
 * Inputs:	event		- "UPLOAD", "DOWNLOAD", "SENT", ...
 *		station		- Callsign of the other station, or
 *				  empty when not applicable.
 *		file_number	- Server file number.  0 means the
 *				  event is not about a single file.
 *		detail		- Free text.  May contain commas; the
 *				  CSV writer quotes as needed.
 *
 * Description:	Called from both the receive process and the
 *		broadcast thread so everything is done under a lock.
 *		File numbers are written in the same zero padded hex
 *		as the storage file names so the two can be matched
 *		up directly.
 *
 *---------------------------------------------------------------*/

func log_activity(event string, station string, file_number uint32, detail string) {
	log_mu.Lock()
	defer log_mu.Unlock()

	if len(g_log_path) == 0 {
		return
	}

	var now = time.Now().UTC()

	if g_daily_names {
		// Generate the file name from the event date.

		var fname, ferr = strftime.Format("%Y-%m-%d.log", now)
		if ferr != nil {
			main_log.Errorf("Can't format log file name: %s", ferr)
			return
		}
		var full_path = filepath.Join(g_log_path, fname)

		// Did the date change?  Close the previous day's file.

		if g_log_fp != nil && full_path != g_open_fname {
			g_log_fp.Close()
			g_log_fp = nil
			g_open_fname = ""
		}

		if g_log_fp == nil {
			var err error
			g_log_fp, err = os.OpenFile(full_path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				main_log.Errorf("Can't open log file \"%s\" for write: %s", full_path, err)
				return
			}
			g_open_fname = full_path
			log_header(g_log_fp)
		}
	}

	if g_log_fp == nil {
		return
	}

	var file_field = ""
	if file_number != 0 {
		file_field = fmt.Sprintf("%08x", file_number)
	}

	var w = csv.NewWriter(g_log_fp)
	w.Write([]string{
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		event,
		station,
		file_field,
		detail,
	})
	w.Flush()
	if err := w.Error(); err != nil {
		main_log.Errorf("Can't write to log file \"%s\": %s", g_open_fname, err)
	}
} /* end log_activity */

/*------------------------------------------------------------------
 *
 * Name:	log_term
 *
 * Purpose:	Close any open log file at shutdown.
 *
 *---------------------------------------------------------------*/

func log_term() {
	log_mu.Lock()
	defer log_mu.Unlock()

	if g_log_fp != nil {
		g_log_fp.Close()
		g_log_fp = nil
		g_open_fname = ""
	}
} /* end log_term */
