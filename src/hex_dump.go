package pacsat

import (
	"fmt"
	"strings"
)

// Debug logging wants the dump as a single string rather than a
// sequence of prints, so it stays attached to its log record.
func hex_dump(p []byte) string {
	var sb strings.Builder
	var offset = 0
	var length = len(p)

	for length > 0 {
		var n = min(length, 16)

		fmt.Fprintf(&sb, "  %03x: ", offset)

		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, " %02x", p[i])
		}

		for i := n; i < 16; i++ {
			sb.WriteString("   ")
		}

		sb.WriteString("  ")

		for i := 0; i < n; i++ {
			if p[i] >= 0x20 && p[i] <= 0x7E {
				sb.WriteByte(p[i])
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteByte('\n')

		p = p[n:]
		offset += n
		length -= n
	}

	return strings.TrimRight(sb.String(), "\n")
}
