package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for the PACSAT file server.
 *
 * Description:	Read the configuration, open the file store, attach
 *		the radio, then bring up the listeners that client
 *		applications connect to.  After that everything is
 *		event driven: received frames and timer ticks arrive
 *		on one queue and are handled one at a time by
 *		recv_process.
 *
 * Outputs:	A socket and optional pseudo terminal are created for
 *		communication with other applications.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

func Main(args []string) {
	var fs = pflag.NewFlagSet("malamute", pflag.ExitOnError)

	var configFileName = fs.StringP("config-file", "c", "malamute.yaml", "Configuration file name.")
	var debug = fs.CountP("debug", "d", "Increase debug output.  Repeat for more detail.")
	var dumpStr = fs.StringP("dump", "D", "", `Dump protocol traffic:
a = AGWPE network protocol client.
k = KISS serial port or pseudo terminal client.
n = KISS network client or network TNC.
Repeat a letter for more detail.`)
	var enablePseudoTerminal = fs.BoolP("enable-ptty", "p", false, "Enable pseudo terminal for KISS protocol.")

	var help = fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - PACSAT store-and-forward file server.\n", args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: malamute [options]\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Client applications connect over AGWPE or KISS TCP, or a pseudo terminal\n")
		fmt.Fprintf(os.Stderr, "with -p.  The radio side is a KISS TNC given in the configuration file.\n")
	}

	fs.Parse(args[1:])

	if *help {
		fs.Usage()
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unexpected command line argument \"%s\".\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	printVersion(false)

	SetDebugLevel(*debug)

	var d_a_opt = 0 /* "-D a" for the AGWPE protocol.  Can be repeated for more detail. */
	var d_k_opt = 0 /* "-D k" for serial port or pseudo terminal KISS. */
	var d_n_opt = 0 /* "-D n" for KISS over the network, both sides. */

	for _, c := range *dumpStr {
		switch c {
		case 'a':
			d_a_opt++
		case 'k':
			d_k_opt++
		case 'n':
			d_n_opt++
		default:
			main_log.Errorf("Unknown dump option '%c'.", c)
		}
	}
	if d_a_opt > 0 {
		server_set_debug(d_a_opt)
	}
	if d_k_opt > 0 {
		kissserial_set_debug(d_k_opt)
		kisspt_set_debug(d_k_opt)
	}
	if d_n_opt > 0 {
		kiss_net_set_debug(d_n_opt)
		nettnc_set_debug(d_n_opt)
	}

	var cfg, cfgErr = config_load(*configFileName)
	if cfgErr != nil {
		main_log.Fatalf("Cannot read configuration file %s: %v", *configFileName, cfgErr)
	}

	var st, stErr = store_open(cfg.Storage.Dir)
	if stErr != nil {
		main_log.Fatalf("Cannot open file store: %v", stErr)
	}

	var stats = st.stats()
	main_log.Infof("Station %s, %d files in %s.", cfg.Callsign, stats.active, cfg.Storage.Dir)

	var bc, bcErr = bcast_new(cfg.Callsign, st, time.Duration(cfg.Directory.Interval)*time.Second)
	if bcErr != nil {
		main_log.Fatalf("Cannot set up broadcast scheduler: %v", bcErr)
	}

	var f, ftl0Err = ftl0_new(cfg.Callsign, st, bc)
	if ftl0Err != nil {
		main_log.Fatalf("Cannot set up upload server: %v", ftl0Err)
	}
	f.max_size = cfg.Storage.MaxFileSize
	f.timeout = time.Duration(cfg.Upload.SessionTimeout) * time.Second
	f.default_ext = cfg.Storage.DefaultExt

	/* Frame plumbing.  The receive queue must exist before the radio */
	/* is attached and the transmit queue before any client listener. */

	xmit_init()
	recv_init(f, st, time.Duration(cfg.Storage.TrashRetentionDays)*24*time.Hour)

	if radioErr := cfg.attach_radio(); radioErr != nil {
		main_log.Fatalf("Cannot attach radio: %v", radioErr)
	}

	server_init(cfg.Clients.AGWPort)
	kissnet_init(cfg.Clients.KISSPort)
	kisspt_init(*enablePseudoTerminal || cfg.Clients.PTY)

	if cfg.Clients.DNSSD && cfg.Clients.KISSPort > 0 {
		dns_sd_announce(cfg.Clients.DNSSDName, cfg.Clients.KISSPort)
	}

	log_init(true, cfg.Activity.Dir)
	beacon_init(cfg, st)

	go bc.run()

	var sigch = make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch
		main_log.Info("Shutting down.")
		bc.shutdown()
		log_term()
		st.close()
		os.Exit(0)
	}()

	recv_process()
} /* end Main */
