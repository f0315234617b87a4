package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for standalone application to examine
 *		PACSAT file headers.
 *
 * Inputs:	File names on the command line, or a single file on
 *		stdin.  Each is expected to start with a PACSAT file
 *		header, as stored by the server or heard in a
 *		directory broadcast.
 *
 * Outputs:	stdout.  One block per file with every header item
 *		spelled out.  The checksum is verified as a side
 *		effect of parsing.
 *
 * Description:	./pfhdump store/00/00/00000001.pfh
 *
 *		A directory broadcast captured off the air works just
 *		as well since a bare header with no body is valid.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
)

func PFHDumpMain(args []string) {
	var fs = pflag.NewFlagSet("pfhdump", pflag.ExitOnError)

	var showBody = fs.BoolP("body", "b", false, "Hex dump the file body too.")

	var help = fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - print a PACSAT file header in readable form.\n", args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: pfhdump [options] [file...]\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "With no file arguments, reads one file from stdin.\n")
	}

	fs.Parse(args[1:])

	if *help {
		fs.Usage()
		os.Exit(1)
	}

	var ok = true

	if fs.NArg() == 0 {
		var data, readErr = io.ReadAll(os.Stdin)
		if readErr != nil {
			fmt.Printf("stdin: %v\n", readErr)
			os.Exit(1)
		}
		ok = pfh_dump_one("stdin", data, *showBody)
	} else {
		for _, fname := range fs.Args() {
			var data, readErr = os.ReadFile(fname)
			if readErr != nil {
				fmt.Printf("%s: %v\n", fname, readErr)
				ok = false
				continue
			}
			if !pfh_dump_one(fname, data, *showBody) {
				ok = false
			}
		}
	}

	if !ok {
		os.Exit(1)
	}
} /* end PFHDumpMain */

func pfh_dump_time(t uint32) string {
	if t == 0 {
		return "-"
	}
	return time.Unix(int64(t), 0).UTC().Format("2006-01-02 15:04:05") + " UTC"
}

/*------------------------------------------------------------------
 *
 * Name:	pfh_dump_one
 *
 * Purpose:	Print every item of one header.
 *
 * Returns:	False when the header does not parse.
 *
 *------------------------------------------------------------------*/

func pfh_dump_one(name string, data []byte, show_body bool) bool {
	var p, body, err = pfh_parse(data)
	if err != nil {
		fmt.Printf("%s: %v\n", name, err)
		return false
	}

	fmt.Printf("%s:\n", name)
	fmt.Printf("  file_number     %d (%08x)\n", p.file_number, p.file_number)
	fmt.Printf("  file_name       %s\n", p.file_name)
	fmt.Printf("  file_ext        %s\n", p.file_ext)
	fmt.Printf("  file_type       %d\n", p.file_type)
	fmt.Printf("  file_size       %d\n", p.file_size)
	fmt.Printf("  create_time     %s\n", pfh_dump_time(p.create_time))
	fmt.Printf("  upload_time     %s\n", pfh_dump_time(p.upload_time))
	fmt.Printf("  seu_flag        %d\n", p.seu_flag)
	fmt.Printf("  header_checksum %02x (verified)\n", p.header_checksum)
	fmt.Printf("  body_offset     %d\n", p.body_offset)
	fmt.Printf("  source          %s\n", p.source)
	fmt.Printf("  destination     %s\n", p.destination)

	if p.has_compression {
		fmt.Printf("  compression     %d\n", p.compression)
	}
	if p.body_desc != "" {
		fmt.Printf("  body_desc       %s\n", p.body_desc)
	}
	if p.has_download_count {
		fmt.Printf("  download_count  %d\n", p.download_count)
	}
	if p.has_priority {
		fmt.Printf("  priority        %d\n", p.priority)
	}
	if p.has_bbs_text {
		fmt.Printf("  bbs_text        %d\n", p.bbs_text)
	}
	if len(p.forwarding) > 0 {
		fmt.Printf("  forwarding      %v\n", p.forwarding)
	}
	for _, item := range p.unknown {
		fmt.Printf("  item %-10d %d bytes\n", item.id, len(item.payload))
	}

	fmt.Printf("  body: %d bytes present, header expects %d\n", len(body), p.pfh_body_size())

	if show_body && len(body) > 0 {
		fmt.Printf("%s\n", hex_dump(body))
	}

	return true
} /* end pfh_dump_one */
