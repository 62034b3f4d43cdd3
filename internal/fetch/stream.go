package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// errIdle ends a stream whose origin sent nothing for the idle timeout.
var errIdle = fmt.Errorf("no body bytes received within idle timeout: %w", os.ErrDeadlineExceeded)

// Stream is a lazy, finite, non-restartable sequence of body chunks.
type Stream struct {
	URL                string
	StatusCode         int
	TotalSize          int64 // 0 when the origin did not announce a length
	ContentDisposition string

	ctx         context.Context
	reqCtx      context.Context
	cancelReq   context.CancelCauseFunc
	idle        *time.Timer
	idleTimeout time.Duration
	body        io.ReadCloser
	buf         []byte
	pending     error
	done        bool
	cancelled   bool
}

// Next returns the next chunk of the body. The returned slice is only valid
// until the following call. The sequence ends with io.EOF, both on normal
// completion and when the context was cancelled; other errors are classified
// *transfer.NetworkError values.
func (s *Stream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	if s.ctx.Err() != nil {
		return nil, s.cancel()
	}

	if s.pending != nil {
		return nil, s.fail(s.pending)
	}

	for {
		n, err := s.read()
		if n > 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				s.pending = err
			} else if err != nil {
				s.done = true
			}

			return s.buf[:n], nil
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			s.done = true

			return nil, io.EOF
		default:
			return nil, s.fail(err)
		}
	}
}

// read waits for body bytes under the idle deadline. Time spent by the
// caller between calls does not count.
func (s *Stream) read() (int, error) {
	s.idle.Reset(s.idleTimeout)
	n, err := s.body.Read(s.buf)
	s.idle.Stop()

	return n, err
}

// Cancelled reports whether the sequence ended because its context fired.
func (s *Stream) Cancelled() bool {
	return s.cancelled
}

// Close releases the response body.
func (s *Stream) Close() error {
	s.idle.Stop()
	err := s.body.Close()
	s.cancelReq(nil)

	return err
}

func (s *Stream) cancel() error {
	s.done = true
	s.cancelled = true

	return io.EOF
}

func (s *Stream) fail(err error) error {
	if s.ctx.Err() != nil {
		return s.cancel()
	}

	s.done = true

	if errors.Is(context.Cause(s.reqCtx), errIdle) {
		return Classify("read_body", errIdle)
	}

	return Classify("read_body", err)
}
