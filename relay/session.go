package relay

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/frame"
	"github.com/hubenschmidt/ultrarelay/llm"
	"github.com/hubenschmidt/ultrarelay/monitor"
)

// Session is one relay request with a connected upstream stream.
type Session struct {
	relay       *Relay
	stream      llm.Stream
	upstreamCtx context.Context
	cancel      context.CancelFunc

	state   State
	start   time.Time
	logger  *zap.Logger
	metrics monitor.RelayMetrics
}

func (s *Session) State() State {
	return s.state
}

// Pump forwards upstream chunks to w until the upstream ends, the client
// goes away (ctx is cancelled or a write fails) or the upstream fails. The
// upstream stream is released before Pump returns. Each iteration performs
// at most one Stream.Next call and one client write.
func (s *Session) Pump(ctx context.Context, w *frame.Writer) State {
	defer s.Close()
	s.transition(StateStreaming)

	for {
		if ctx.Err() != nil {
			return s.finish(StateAborted, ctx.Err())
		}

		chunk, err := s.stream.Next()
		if errors.Is(err, io.EOF) {
			if werr := w.Done(); werr != nil {
				return s.finish(StateAborted, werr)
			}
			return s.finish(StateDone, nil)
		}
		if err != nil {
			if ctx.Err() != nil {
				return s.finish(StateAborted, ctx.Err())
			}
			if s.upstreamCtx.Err() != nil {
				err = core.NewUpstreamError("chat stream", s.upstreamCtx.Err())
			}
			if werr := w.Error(err.Error()); werr != nil {
				return s.finish(StateAborted, werr)
			}
			return s.finish(StateFailed, err)
		}

		if chunk == "" {
			continue
		}
		if werr := w.Data(chunk); werr != nil {
			return s.finish(StateAborted, werr)
		}
		s.metrics.Chunks++
		s.metrics.Bytes += len(chunk)
	}
}

// Close releases the upstream stream. It is safe to call more than once and
// is only needed when Pump is never called.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *Session) transition(next State) {
	s.logger.Debug("relay state",
		zap.Stringer("from", s.state),
		zap.Stringer("to", next))
	s.state = next
}

// fail ends a request that never reached the streaming phase.
func (s *Session) fail(err error) error {
	if core.KindOf(err) == nil {
		err = core.NewUpstreamError("chat relay", err)
	}
	s.finish(StateFailed, err)
	return err
}

func (s *Session) finish(final State, err error) State {
	s.transition(final)

	s.metrics.State = final.String()
	s.metrics.Duration = time.Since(s.start)
	if err != nil {
		s.metrics.Error = err.Error()
	}
	s.relay.cfg.Metrics.Record(s.metrics)

	fields := []zap.Field{
		zap.String("state", final.String()),
		zap.Int("chunks", s.metrics.Chunks),
		zap.Bool("rag", s.metrics.UsedRAG),
		zap.Int("docs", s.metrics.Docs),
		zap.Duration("duration", s.metrics.Duration),
	}
	switch final {
	case StateDone:
		s.logger.Info("chat relay finished", fields...)
	case StateAborted:
		s.logger.Info("chat relay aborted", append(fields, zap.NamedError("cause", err))...)
	default:
		s.logger.Warn("chat relay failed", append(fields, zap.Error(err))...)
	}
	return final
}
