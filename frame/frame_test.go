package frame

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"line one\nline two",
		"windows\r\nline",
		`back\slash`,
		`literal \n is not a newline`,
		"trailing\\",
		"नमस्ते\nदुनिया",
	}

	for _, in := range inputs {
		escaped := Escape(in)
		assert.NotContains(t, escaped, "\n")
		assert.NotContains(t, escaped, "\r")
		assert.Equal(t, in, Unescape(escaped), "input %q", in)
	}
}

func TestUnescapeKeepsUnknownSequences(t *testing.T) {
	assert.Equal(t, `\t`, Unescape(`\t`))
	assert.Equal(t, `end\`, Unescape(`end\`))
}

func TestWriterUnits(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Data("He"))
	require.NoError(t, w.Data("llo\nworld"))
	require.NoError(t, w.Done())

	assert.Equal(t, "data: He\n\ndata: llo\\nworld\n\nevent: done\ndata: end\n\n", buf.String())
}

func TestWriterFlushesEachUnit(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec)
	w := NewWriter(rec)

	require.NoError(t, w.Data("x"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriterReportsWriteFailure(t *testing.T) {
	assert.ErrorIs(t, NewWriter(failingWriter{}).Data("x"), io.ErrClosedPipe)
}

func TestReaderDecodesWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Data("He"))
	require.NoError(t, w.Data("l\\lo\n"))
	require.NoError(t, w.Error("upstream\nbroke"))
	require.NoError(t, w.Done())

	r := NewReader(&buf)
	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	assert.Equal(t, []Event{
		{Name: EventData, Data: "He"},
		{Name: EventData, Data: "l\\lo\n"},
		{Name: EventError, Data: "upstream\nbroke"},
		{Name: EventDone, Data: "end"},
	}, events)
}

func TestReaderSkipsComments(t *testing.T) {
	r := NewReader(strings.NewReader(": ping\n\ndata: hi\n\n"))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Name: EventData, Data: "hi"}, ev)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedUnit(t *testing.T) {
	r := NewReader(strings.NewReader("data: He\n\ndata: ll"))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "He", ev.Data)

	_, err = r.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
