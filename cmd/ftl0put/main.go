package main

import (
	"os"

	pacsat "github.com/doismellburning/malamute/src"
)

/*-------------------------------------------------------------------
 *
 * Name:        main
 *
 * Purpose:     Utility program to upload a file to a PACSAT server.
 *
 *--------------------------------------------------------------------*/

func main() {
	pacsat.FTL0PutMain(os.Args)
}
