package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/frame"
	"github.com/hubenschmidt/ultrarelay/llm"
	"github.com/hubenschmidt/ultrarelay/monitor"
)

// countingStream yields chunks forever (or until chunks run out) and
// counts every read.
type countingStream struct {
	mu      sync.Mutex
	chunks  []string
	reads   int
	closed  bool
	failAt  int
	endless bool
	block   bool
	ctx     context.Context
}

func (s *countingStream) Next() (string, error) {
	s.mu.Lock()
	s.reads++
	reads := s.reads
	s.mu.Unlock()

	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.failAt > 0 && reads == s.failAt {
		return "", errors.New("connection reset")
	}
	if s.endless {
		return "tok", nil
	}
	if reads > len(s.chunks) {
		return "", io.EOF
	}
	return s.chunks[reads-1], nil
}

func (s *countingStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *countingStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeUpstream struct {
	stream  *countingStream
	err     error
	request llm.ChatRequest
	calls   int
}

func (f *fakeUpstream) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	f.calls++
	f.request = req
	if f.err != nil {
		return nil, f.err
	}
	f.stream.ctx = ctx
	return f.stream, nil
}

type fakeAugmenter struct {
	calls int
	docs  int
	err   error
}

func (a *fakeAugmenter) SystemPrompt(ctx context.Context, base string, useRAG bool, query string) (string, int, error) {
	a.calls++
	if a.err != nil {
		return "", 0, a.err
	}
	return base + "\n\nDOC1 (score:1.000): " + query, a.docs, nil
}

// cancelOnWrite cancels the request context after n writes.
type cancelOnWrite struct {
	bytes.Buffer
	n      int
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	n, err := w.Buffer.Write(p)
	w.n--
	if w.n == 0 {
		w.cancel()
	}
	return n, err
}

type brokenPipe struct{ after int }

func (w *brokenPipe) Write(p []byte) (int, error) {
	if w.after == 0 {
		return 0, io.ErrClosedPipe
	}
	w.after--
	return len(p), nil
}

func hi() Request {
	return Request{Conversation: []core.Turn{core.NewUserTurn("hi")}}
}

func TestRelayStreamsChunksThenDone(t *testing.T) {
	metrics := monitor.NewInMemoryCollector(0)
	up := &fakeUpstream{stream: &countingStream{chunks: []string{"He", "llo"}}}
	r := New(up, nil, Config{SystemPrompt: "sys", Temperature: 0.2, Metrics: metrics})

	s, err := r.Open(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, StateCallingUpstream, s.State())

	var buf bytes.Buffer
	final := s.Pump(context.Background(), frame.NewWriter(&buf))

	assert.Equal(t, StateDone, final)
	assert.Equal(t, "data: He\n\ndata: llo\n\nevent: done\ndata: end\n\n", buf.String())
	assert.True(t, up.stream.closed)

	assert.Equal(t, DefaultModel, up.request.Model)
	assert.Equal(t, "sys", up.request.System)
	assert.Equal(t, 0.2, up.request.Temperature)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "hi"}}, up.request.Messages)

	summary := metrics.Summary()
	assert.Equal(t, 1, summary.ByState["done"])
	assert.Equal(t, 2, summary.TotalChunks)
}

func TestRelayWithoutRAGSkipsAugmenter(t *testing.T) {
	aug := &fakeAugmenter{}
	up := &fakeUpstream{stream: &countingStream{}}
	r := New(up, aug, Config{SystemPrompt: "sys"})

	s, err := r.Open(context.Background(), hi())
	require.NoError(t, err)
	s.Close()

	assert.Zero(t, aug.calls)
	assert.Equal(t, "sys", up.request.System)
}

func TestRelayWithRAGAugmentsSystemPrompt(t *testing.T) {
	aug := &fakeAugmenter{docs: 1}
	up := &fakeUpstream{stream: &countingStream{}}
	metrics := monitor.NewInMemoryCollector(0)
	r := New(up, aug, Config{SystemPrompt: "sys", Metrics: metrics})

	req := hi()
	req.UseRAG = true
	req.RAGQuery = "hi"

	s, err := r.Open(context.Background(), req)
	require.NoError(t, err)
	s.Pump(context.Background(), frame.NewWriter(io.Discard))

	assert.Equal(t, 1, aug.calls)
	assert.Equal(t, "sys\n\nDOC1 (score:1.000): hi", up.request.System)
	assert.Equal(t, 1, metrics.Summary().RAGRequests)
}

func TestRelayAugmentFailureFailsBeforeUpstream(t *testing.T) {
	aug := &fakeAugmenter{err: core.NewUpstreamError("embed query", errors.New("quota"))}
	up := &fakeUpstream{stream: &countingStream{}}
	metrics := monitor.NewInMemoryCollector(0)
	r := New(up, aug, Config{Metrics: metrics})

	req := hi()
	req.UseRAG = true
	req.RAGQuery = "hi"

	_, err := r.Open(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Zero(t, up.calls)
	assert.Equal(t, 1, metrics.Summary().ByState["failed"])
}

func TestRelayUpstreamConnectFailure(t *testing.T) {
	up := &fakeUpstream{err: core.NewUpstreamError("chat completion", errors.New("API error (status 500)"))}
	r := New(up, nil, Config{})

	s, err := r.Open(context.Background(), hi())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, core.ErrUpstream)
}

func TestRelayPlainConnectErrorIsUpstream(t *testing.T) {
	up := &fakeUpstream{err: errors.New("no openai client configured")}
	r := New(up, nil, Config{})

	_, err := r.Open(context.Background(), hi())
	assert.ErrorIs(t, err, core.ErrUpstream)
}

func TestRelayStopsReadingAfterClientDisconnect(t *testing.T) {
	stream := &countingStream{endless: true}
	up := &fakeUpstream{stream: stream}
	r := New(up, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := r.Open(ctx, hi())
	require.NoError(t, err)

	w := &cancelOnWrite{n: 1, cancel: cancel}
	final := s.Pump(ctx, frame.NewWriter(w))

	assert.Equal(t, StateAborted, final)
	assert.Equal(t, 1, stream.Reads())
	assert.True(t, stream.closed)
	assert.Equal(t, "data: tok\n\n", w.String())
}

func TestRelayStopsReadingAfterWriteFailure(t *testing.T) {
	stream := &countingStream{endless: true}
	r := New(&fakeUpstream{stream: stream}, nil, Config{})

	s, err := r.Open(context.Background(), hi())
	require.NoError(t, err)

	final := s.Pump(context.Background(), frame.NewWriter(&brokenPipe{after: 1}))

	assert.Equal(t, StateAborted, final)
	assert.Equal(t, 2, stream.Reads())
	assert.True(t, stream.closed)
}

func TestRelayMidStreamFailureWritesErrorUnit(t *testing.T) {
	stream := &countingStream{chunks: []string{"He", "llo"}, failAt: 2}
	r := New(&fakeUpstream{stream: stream}, nil, Config{})

	s, err := r.Open(context.Background(), hi())
	require.NoError(t, err)

	var buf bytes.Buffer
	final := s.Pump(context.Background(), frame.NewWriter(&buf))

	assert.Equal(t, StateFailed, final)
	assert.Equal(t, "data: He\n\nevent: error\ndata: connection reset\n\n", buf.String())
	assert.NotContains(t, buf.String(), "event: done")
}

func TestRelayTimeoutIsUpstreamError(t *testing.T) {
	stream := &countingStream{block: true}
	r := New(&fakeUpstream{stream: stream}, nil, Config{Timeout: 20 * time.Millisecond})

	s, err := r.Open(context.Background(), hi())
	require.NoError(t, err)

	var buf bytes.Buffer
	final := s.Pump(context.Background(), frame.NewWriter(&buf))

	assert.Equal(t, StateFailed, final)
	assert.True(t, strings.HasPrefix(buf.String(), "event: error\ndata: "))
	assert.Contains(t, buf.String(), "deadline exceeded")
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "calling_upstream", StateCallingUpstream.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateStreaming.Terminal())
}
