package main

import (
	"os"

	pacsat "github.com/doismellburning/malamute/src"
)

/*-------------------------------------------------------------------
 *
 * Name:        main
 *
 * Purpose:     Main program for the PACSAT store and forward file server.
 *
 *--------------------------------------------------------------------*/

func main() {
	pacsat.Main(os.Args)
}
