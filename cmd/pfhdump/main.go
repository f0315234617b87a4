package main

import (
	"os"

	pacsat "github.com/doismellburning/malamute/src"
)

/*-------------------------------------------------------------------
 *
 * Name:        main
 *
 * Purpose:     Utility program to print PACSAT file headers.
 *
 *--------------------------------------------------------------------*/

func main() {
	pacsat.PFHDumpMain(os.Args)
}
