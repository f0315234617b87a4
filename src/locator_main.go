package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for standalone application to convert a
 *		station location between the forms the configuration
 *		file accepts.
 *
 * Inputs:	One location on the command line, as decimal degrees,
 *		as a Maidenhead grid square, or as UTM.
 *
 * Outputs:	stdout.  The same location in every form, ready to
 *		paste into the station section of the configuration.
 *
 * Description:	./locator 42.662139 -71.365553
 *		./locator FN42hp
 *		./locator 19T 306130 4726010
 *		./locator 19 N 306130 4726010
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

func LocatorMain(args []string) {
	// A latitude or longitude may begin with a minus sign, so no
	// flag parsing here, just the argument count.

	var latlng s2.LatLng

	switch len(args) {
	case 2:
		var dlat, dlon, gridErr = ll_from_grid_square(args[1])
		if gridErr != nil {
			// Not a grid square.  MGRS also arrives as a single word.
			var mgrsLatlng, mgrsErr = coordconv.DefaultMGRSConverter.ConvertToGeodetic(args[1])
			if mgrsErr != nil {
				fmt.Printf("%v\n", gridErr)
				os.Exit(1)
			}
			latlng = mgrsLatlng
		} else {
			latlng = ll_make(dlat, dlon)
		}

	case 3:
		var dlat, latErr = strconv.ParseFloat(args[1], 64)
		var dlon, lonErr = strconv.ParseFloat(args[2], 64)
		if latErr != nil || lonErr != nil || dlat < -90 || dlat > 90 || dlon < -180 || dlon > 180 {
			fmt.Printf("latitude %q and longitude %q must be decimal degrees\n", args[1], args[2])
			os.Exit(1)
		}
		latlng = ll_make(dlat, dlon)

	case 4, 5:
		var utmLatlng, utmErr = ll_from_utm(strings.Join(args[1:], " "))
		if utmErr != nil {
			fmt.Printf("%v\n", utmErr)
			os.Exit(1)
		}
		latlng = utmLatlng

	default:
		locator_usage()
	}

	fmt.Printf("latitude = %.6f, longitude = %.6f\n", R2D(float64(latlng.Lat)), R2D(float64(latlng.Lng)))

	var grid, gridErr = ll_to_grid_square(latlng, 3)
	if gridErr == nil {
		fmt.Printf("grid square = %s\n", grid)
	} else {
		fmt.Printf("no grid square: %v\n", gridErr)
	}

	var utmCoord, utmErr = coordconv.DefaultUTMConverter.ConvertFromGeodetic(latlng, 0)
	if utmErr == nil {
		fmt.Printf("UTM zone = %d, hemisphere = %c, easting = %.0f, northing = %.0f\n",
			utmCoord.Zone, HemisphereToRune(utmCoord.Hemisphere), utmCoord.Easting, utmCoord.Northing)
	} else {
		fmt.Printf("no UTM: %v\n", utmErr)
	}

	var mgrsCoord, mgrsErr = coordconv.DefaultMGRSConverter.ConvertFromGeodetic(latlng, 5)
	if mgrsErr == nil {
		fmt.Printf("MGRS = %s\n", mgrsCoord)
	}
} /* end LocatorMain */

func locator_usage() {
	fmt.Println("Convert a station location between configuration forms.")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("\tlocator  latitude  longitude")
	fmt.Println("\tlocator  gridsquare")
	fmt.Println("\tlocator  zone[band]  easting  northing")
	fmt.Println("\tlocator  zone  hemisphere  easting  northing")
	fmt.Println("")
	fmt.Println("where,")
	fmt.Println("\tLatitude and longitude are in decimal degrees.")
	fmt.Println("\t   Use negative for south or west.")
	fmt.Println("\tgridsquare is a Maidenhead locator, or USNG / MGRS.")
	fmt.Println("\tzone is UTM zone 1 thru 60 with optional latitudinal band.")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("\tlocator 42.662139 -71.365553")
	fmt.Println("\tlocator FN42hp")
	fmt.Println("\tlocator 19T 306130 4726010")

	os.Exit(1)
}
