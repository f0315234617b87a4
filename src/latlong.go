package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Various functions for dealing with latitude and longitude.
 *
 * Description: The station location can be configured in several
 *		different forms.  Internally it is always an s2.LatLng;
 *		everything here converts into or out of that.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

func D2R(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func R2D(radians float64) float64 {
	return radians * 180 / math.Pi
}

func ll_make(dlat float64, dlon float64) s2.LatLng {
	return s2.LatLng{
		Lat: s1.Angle(D2R(dlat)),
		Lng: s1.Angle(D2R(dlon)),
	}
}

/*------------------------------------------------------------------
 *
 * Function:	ll_from_grid_square
 *
 * Purpose:	Convert Maidenhead locator to latitude and longitude.
 *
 * Inputs:	maidenhead	- 2, 4, 6, 8, 10, or 12 character grid
 *				  square locator.
 *
 * Outputs:	dlat, dlon	- Latitude and longitude for the center
 *				  of the given square.
 *
 *------------------------------------------------------------------*/

const MH_MIN_PAIR = 1
const MH_MAX_PAIR = 6
const MH_UNITS = (18 * 10 * 24 * 10 * 24 * 10 * 2)

type mhPair struct {
	position string
	min_ch   byte
	max_ch   byte
	value    int
}

var MHPairs = []*mhPair{
	{"first", 'A', 'R', 10 * 24 * 10 * 24 * 10 * 2},
	{"second", '0', '9', 24 * 10 * 24 * 10 * 2},
	{"third", 'A', 'X', 10 * 24 * 10 * 2},
	{"fourth", '0', '9', 24 * 10 * 2},
	{"fifth", 'A', 'X', 10 * 2},
	{"sixth", '0', '9', 2},
} // Even so we can get center of square.

func ll_from_grid_square(maidenhead string) (float64, float64, error) {

	var np = len(maidenhead) / 2 /* Number of pairs of characters. */

	if len(maidenhead)%2 != 0 || np < MH_MIN_PAIR || np > MH_MAX_PAIR {
		return 0, 0, fmt.Errorf("maidenhead locator %q must be from 1 to %d pairs of characters", maidenhead, MH_MAX_PAIR)
	}

	var mh = strings.ToUpper(maidenhead)

	var ilat, ilon int
	for n := 0; n < np; n++ {
		if mh[2*n] < MHPairs[n].min_ch || mh[2*n] > MHPairs[n].max_ch ||
			mh[2*n+1] < MHPairs[n].min_ch || mh[2*n+1] > MHPairs[n].max_ch {
			return 0, 0, fmt.Errorf("the %s pair of characters in maidenhead locator %q must be in range of %c thru %c",
				MHPairs[n].position, maidenhead, MHPairs[n].min_ch, MHPairs[n].max_ch)
		}

		ilon += int(mh[2*n]-MHPairs[n].min_ch) * MHPairs[n].value
		ilat += int(mh[2*n+1]-MHPairs[n].min_ch) * MHPairs[n].value

		if n == np-1 { // If last pair, take center of square.
			ilon += MHPairs[n].value / 2
			ilat += MHPairs[n].value / 2
		}
	}

	var dlat = float64(ilat)/MH_UNITS*180. - 90.
	var dlon = float64(ilon)/MH_UNITS*360. - 180.

	return dlat, dlon, nil
} /* end ll_from_grid_square */

/*------------------------------------------------------------------
 *
 * Function:	ll_to_grid_square
 *
 * Purpose:	Convert latitude and longitude to Maidenhead locator.
 *
 * Inputs:	latlng		- Location.
 *
 *		np		- Number of character pairs wanted,
 *				  1 thru 6.  3 gives the usual 6
 *				  character form like FN42ma.
 *
 * Description:	Just the inverse walk of the pair values above.  The
 *		square containing the location, so no center offset
 *		here.
 *
 *------------------------------------------------------------------*/

func ll_to_grid_square(latlng s2.LatLng, np int) (string, error) {

	if np < MH_MIN_PAIR || np > MH_MAX_PAIR {
		return "", fmt.Errorf("maidenhead locator must be from 1 to %d pairs of characters", MH_MAX_PAIR)
	}

	var dlat = R2D(float64(latlng.Lat))
	var dlon = R2D(float64(latlng.Lng))

	if dlat < -90 || dlat > 90 || dlon < -180 || dlon > 180 {
		return "", errors.New("location is off the map")
	}

	var ilat = int((dlat + 90.) / 180. * MH_UNITS)
	var ilon = int((dlon + 180.) / 360. * MH_UNITS)

	// The seam at 180 E / 90 N belongs to the last square, not one past it.
	if ilat >= MH_UNITS {
		ilat = MH_UNITS - 1
	}
	if ilon >= MH_UNITS {
		ilon = MH_UNITS - 1
	}

	var mh []byte
	for n := 0; n < np; n++ {
		var clon = byte(ilon/MHPairs[n].value) + MHPairs[n].min_ch
		var clat = byte(ilat/MHPairs[n].value) + MHPairs[n].min_ch
		ilon %= MHPairs[n].value
		ilat %= MHPairs[n].value

		if n == 0 || MHPairs[n].min_ch == '0' {
			mh = append(mh, clon, clat)
		} else {
			// Customary form is lower case beyond the first two pairs.
			mh = append(mh, clon-'A'+'a', clat-'A'+'a')
		}
	}

	return string(mh), nil
} /* end ll_to_grid_square */

/*------------------------------------------------------------------
 *
 * Function:	ll_from_utm
 *
 * Purpose:	Convert a UTM position to latitude and longitude.
 *
 * Inputs:	text	- "zone hemisphere easting northing", e.g.
 *			  "19 N 306130 4726010".  The zone may carry
 *			  its latitudinal band instead of a separate
 *			  hemisphere letter, e.g. "19T 306130 4726010".
 *
 *------------------------------------------------------------------*/

func ll_from_utm(text string) (s2.LatLng, error) {

	var fields = strings.Fields(text)

	var zoneStr string
	var hemisphere coordconv.Hemisphere
	var eastingStr, northingStr string

	switch len(fields) {
	case 3:
		zoneStr = fields[0]
		eastingStr = fields[1]
		northingStr = fields[2]

		/* Trailing letter on the zone is the latitudinal band. */

		if len(zoneStr) > 0 && zoneStr[len(zoneStr)-1] >= 'A' && zoneStr[len(zoneStr)-1] <= 'Z' {
			var zlet = rune(zoneStr[len(zoneStr)-1])
			zoneStr = zoneStr[:len(zoneStr)-1]
			if !strings.ContainsRune("CDEFGHJKLMNPQRSTUVWX", zlet) {
				return s2.LatLng{}, errors.New("latitudinal band must be one of CDEFGHJKLMNPQRSTUVWX")
			}
			if zlet >= 'N' {
				hemisphere = coordconv.HemisphereNorth
			} else {
				hemisphere = coordconv.HemisphereSouth
			}
		} else {
			hemisphere = coordconv.HemisphereNorth
		}

	case 4:
		zoneStr = fields[0]
		hemisphere = HemisphereRuneToCoordconvHemisphere(rune(strings.ToUpper(fields[1])[0]))
		if hemisphere == coordconv.HemisphereInvalid {
			return s2.LatLng{}, fmt.Errorf("hemisphere %q must be N or S", fields[1])
		}
		eastingStr = fields[2]
		northingStr = fields[3]

	default:
		return s2.LatLng{}, errors.New("UTM form is \"zone hemisphere easting northing\"")
	}

	var zone, zoneErr = strconv.Atoi(zoneStr)
	if zoneErr != nil || zone < 1 || zone > 60 {
		return s2.LatLng{}, fmt.Errorf("UTM zone %q must be 1 thru 60", zoneStr)
	}
	var easting, eastErr = strconv.ParseFloat(eastingStr, 64)
	if eastErr != nil {
		return s2.LatLng{}, fmt.Errorf("UTM easting: %w", eastErr)
	}
	var northing, northErr = strconv.ParseFloat(northingStr, 64)
	if northErr != nil {
		return s2.LatLng{}, fmt.Errorf("UTM northing: %w", northErr)
	}

	var utmCoord = coordconv.UTMCoord{
		Zone:       zone,
		Hemisphere: hemisphere,
		Easting:    easting,
		Northing:   northing,
	}

	var latlng, convErr = coordconv.DefaultUTMConverter.ConvertToGeodetic(utmCoord)
	if convErr != nil {
		return s2.LatLng{}, fmt.Errorf("conversion from UTM failed: %w", convErr)
	}

	return latlng, nil
} /* end ll_from_utm */
