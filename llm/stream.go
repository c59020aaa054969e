package llm

import (
	"io"
	"iter"
	"sync"
)

// Stream is a finite, non-restartable sequence of text chunks. Next reads
// from the upstream connection only until it has one chunk to return, so
// the caller decides when the next read happens.
type Stream interface {
	// Next returns the next chunk, or io.EOF once the upstream has finished.
	Next() (string, error)

	// Close releases the upstream connection. It may be called more than once.
	Close() error
}

// SliceStream serves fixed chunks. It is used when a provider answers in
// one piece and by tests.
type SliceStream struct {
	mu     sync.Mutex
	chunks []string
	closed bool
}

func NewSliceStream(chunks ...string) *SliceStream {
	return &SliceStream{chunks: chunks}
}

func (s *SliceStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.chunks) == 0 {
		return "", io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// pullStream adapts a push-style sequence to Stream.
type pullStream struct {
	next    func() (string, error, bool)
	stop    func()
	pending *pulled
	once    sync.Once
}

type pulled struct {
	chunk string
	err   error
	ok    bool
}

// primeStream pulls the first element of seq so that a failure to start the
// upstream call surfaces as an error from the constructor rather than from
// the first Next.
func primeStream(seq iter.Seq2[string, error]) (Stream, error) {
	next, stop := iter.Pull2(seq)

	chunk, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, err
	}

	return &pullStream{
		next:    next,
		stop:    stop,
		pending: &pulled{chunk: chunk, err: err, ok: ok},
	}, nil
}

func (s *pullStream) Next() (string, error) {
	var chunk string
	var err error
	var ok bool

	if s.pending != nil {
		chunk, err, ok = s.pending.chunk, s.pending.err, s.pending.ok
		s.pending = nil
	} else {
		chunk, err, ok = s.next()
	}

	if !ok {
		return "", io.EOF
	}
	return chunk, err
}

func (s *pullStream) Close() error {
	s.once.Do(s.stop)
	return nil
}
