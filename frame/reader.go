package frame

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded unit.
type Event struct {
	Name string
	Data string
}

// Reader decodes units written by Writer.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next complete unit. It returns io.EOF when the stream
// ends cleanly between units and io.ErrUnexpectedEOF when it ends inside one.
func (fr *Reader) Next() (Event, error) {
	var ev Event
	var data []string
	started := false

	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if started || line != "" {
					return Event{}, io.ErrUnexpectedEOF
				}
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				continue
			}
			if ev.Name == "" {
				ev.Name = EventData
			}
			ev.Data = Unescape(strings.Join(data, "\n"))
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		started = true
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
	}
}
