package queue

import "fmt"

const numberPad = 3

// FormatTicketNumber renders a display number from a service prefix and a
// 1-based sequence, e.g. ("HD", 3) -> "HD003". Sequences above 999 keep
// their full width.
func FormatTicketNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%0*d", prefix, numberPad, seq)
}
