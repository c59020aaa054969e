// Package frame implements the relay's event-per-chunk wire format.
//
// Each chunk is sent as one unit:
//
//	data: <escaped text>\n\n
//
// The stream ends with a done unit, or with an error unit when the upstream
// fails after the first byte was written:
//
//	event: done\ndata: end\n\n
//	event: error\ndata: <escaped message>\n\n
package frame

import (
	"strings"
)

const (
	EventData  = "message"
	EventDone  = "done"
	EventError = "error"

	ContentType = "text/event-stream"
)

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	doneFrame = []byte("event: done\ndata: end\n\n")
)

// Escape makes text safe to carry on a single data line.
func Escape(text string) string {
	return escaper.Replace(text)
}

// Unescape reverses Escape. Unknown escape sequences are kept as they are.
func Unescape(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 == len(text) {
			b.WriteByte(c)
			continue
		}
		i++
		switch text[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(text[i])
		}
	}
	return b.String()
}
