package main

import (
	"os"

	pacsat "github.com/doismellburning/malamute/src"
)

/*-------------------------------------------------------------------
 *
 * Name:        main
 *
 * Purpose:     Utility program to convert a station location between
 *              latitude/longitude, grid square, and UTM.
 *
 *--------------------------------------------------------------------*/

func main() {
	pacsat.LocatorMain(os.Args)
}
