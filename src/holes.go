package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Hole list - the byte ranges of a file not yet received.
 *
 * Description:	Both sides of a transfer reason about what is missing,
 *		not what has arrived.  An upload starts as one hole
 *		covering the whole file and data chunks carve pieces out
 *		of it.  A download request carries the holes the remote
 *		station still has so we can resend exactly those ranges.
 *
 *		Ranges are half open [start,end) and the list is kept
 *		sorted, non overlapping, and non adjacent at all times.
 *		Anything else would make "empty list means complete"
 *		unreliable.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"
)

type hole_t struct {
	start uint32 /* First missing byte. */
	end   uint32 /* One past the last missing byte. */
}

type hole_list_t struct {
	holes []hole_t /* Sorted by start. */
}

/*-------------------------------------------------------------------
 *
 * Name:        hole_list_new
 *
 * Purpose:     Start tracking a transfer of the given size.
 *
 * Inputs:	size	- Expected total length.  Zero gives an already
 *			  complete (empty) list.
 *
 *--------------------------------------------------------------------*/

func hole_list_new(size uint32) *hole_list_t {
	var hl = new(hole_list_t)
	if size > 0 {
		hl.holes = []hole_t{{start: 0, end: size}}
	}
	return hl
} /* end hole_list_new */

/*-------------------------------------------------------------------
 *
 * Name:        fill
 *
 * Purpose:     Record that the bytes [offset, offset+length) have arrived.
 *
 * Returns:	True if any previously missing byte was covered.
 *		A duplicate or fully overlapping chunk is a no-op,
 *		not an error.
 *
 * Description:	Each hole the range touches is shrunk, split, or removed.
 *		A partial overlap is fine.  The arithmetic is done wide
 *		so a hostile offset near the top of the range cannot
 *		wrap around.
 *
 *--------------------------------------------------------------------*/

func (hl *hole_list_t) fill(offset uint32, length int) bool {

	if length <= 0 {
		return false
	}

	var fstart = offset
	var wide = uint64(offset) + uint64(length)
	if wide > 0xffffffff {
		wide = 0xffffffff
	}
	var fend = uint32(wide)

	var out = make([]hole_t, 0, len(hl.holes)+1)
	var changed = false

	for _, h := range hl.holes {
		if h.end <= fstart || h.start >= fend {
			out = append(out, h)
			continue
		}
		changed = true
		if h.start < fstart {
			out = append(out, hole_t{start: h.start, end: fstart})
		}
		if h.end > fend {
			out = append(out, hole_t{start: fend, end: h.end})
		}
	}

	hl.holes = out
	return changed
} /* end fill */

/*-------------------------------------------------------------------
 *
 * Name:        add
 *
 * Purpose:     Add a missing range, merging with any neighbours.
 *
 * Description:	Used when building a list from a remote request, where
 *		the ranges can arrive in any order and may overlap or
 *		touch.  Adjacent ranges coalesce into one.
 *
 *--------------------------------------------------------------------*/

func (hl *hole_list_t) add(start uint32, end uint32) {

	if end <= start {
		return
	}

	var out = make([]hole_t, 0, len(hl.holes)+1)
	var i = 0

	for i < len(hl.holes) && hl.holes[i].end < start {
		out = append(out, hl.holes[i])
		i++
	}

	for i < len(hl.holes) && hl.holes[i].start <= end {
		if hl.holes[i].start < start {
			start = hl.holes[i].start
		}
		if hl.holes[i].end > end {
			end = hl.holes[i].end
		}
		i++
	}

	out = append(out, hole_t{start: start, end: end})
	out = append(out, hl.holes[i:]...)
	hl.holes = out
} /* end add */

/*-------------------------------------------------------------------
 *
 * Name:        clip
 *
 * Purpose:     Discard everything at or past limit.  Remote requests
 *		can name ranges beyond the end of the file; those bytes
 *		do not exist and are not owed to anybody.
 *
 *--------------------------------------------------------------------*/

func (hl *hole_list_t) clip(limit uint32) {

	var out = hl.holes[:0]
	for _, h := range hl.holes {
		if h.start >= limit {
			break
		}
		if h.end > limit {
			h.end = limit
		}
		out = append(out, h)
	}
	hl.holes = out
} /* end clip */

/*-------------------------------------------------------------------
 *
 * Name:        empty / first / remaining
 *
 * Purpose:     The questions the transfer engines ask.
 *
 *--------------------------------------------------------------------*/

func (hl *hole_list_t) empty() bool {
	return len(hl.holes) == 0
}

// First missing byte, for the continue offset in a resumed upload.
func (hl *hole_list_t) first() (hole_t, bool) {
	if len(hl.holes) == 0 {
		return hole_t{}, false
	}
	return hl.holes[0], true
}

// Total missing bytes.
func (hl *hole_list_t) remaining() uint32 {
	var n uint32
	for _, h := range hl.holes {
		n += h.end - h.start
	}
	return n
}

func (hl *hole_list_t) String() string {
	if len(hl.holes) == 0 {
		return "none"
	}
	var parts = make([]string, len(hl.holes))
	for i, h := range hl.holes {
		parts[i] = fmt.Sprintf("[%d,%d)", h.start, h.end)
	}
	return strings.Join(parts, " ")
}
