// Package stdio implements the controller transport over a pair of byte
// streams, normally the process stdin and stdout. Each message is one line
// of UTF-8 text terminated by a line feed.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/metrics"
)

// DefaultMaxLineBytes bounds the size of one inbound message.
const DefaultMaxLineBytes = 4 << 20

// ErrEmbeddedNewline is returned by Send for messages that would not fit on
// a single line.
var ErrEmbeddedNewline = errors.New("stdio: message contains a line feed")

// Dispatcher runs inbound deliveries, typically the scheduler loop.
type Dispatcher interface {
	Post(fn func())
}

// Transport frames messages as lines over r and w.
type Transport struct {
	r io.Reader

	wmu sync.Mutex
	w   io.Writer

	mu        sync.Mutex
	receivers []func([]byte)

	maxLine  int
	dispatch Dispatcher
	log      zerolog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithMaxLineBytes sets the largest inbound line accepted by Serve.
func WithMaxLineBytes(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxLine = n
		}
	}
}

// WithDispatcher makes Serve hand every line to d instead of calling the
// receivers on the reading goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(t *Transport) { t.dispatch = d }
}

// WithLogger sets the transport logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// New returns a transport reading from r and writing to w.
func New(r io.Reader, w io.Writer, opts ...Option) *Transport {
	t := &Transport{
		r:       r,
		w:       w,
		maxLine: DefaultMaxLineBytes,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send writes msg followed by a line feed. Concurrent calls never
// interleave.
func (t *Transport) Send(msg []byte) error {
	if bytes.IndexByte(msg, '\n') >= 0 {
		return ErrEmbeddedNewline
	}

	line := make([]byte, 0, len(msg)+1)
	line = append(line, msg...)
	line = append(line, '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()

	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// OnReceive registers fn for every inbound line.
func (t *Transport) OnReceive(fn func(msg []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers = append(t.receivers, fn)
}

// Serve reads lines until the reader is exhausted or ctx is cancelled.
// Empty lines are skipped. A line longer than the size limit is discarded
// up to its line feed and reading goes on with the next one. Reaching the
// end of input is not an error.
//
// Cancellation is observed between reads; a read already blocked on the
// underlying reader is not interrupted.
func (t *Transport) Serve(ctx context.Context) error {
	r := bufio.NewReaderSize(t.r, min(64<<10, t.maxLine))

	var line []byte
	oversized := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := r.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(trimEOL(line)) > t.maxLine {
				oversized = true
				line = nil
			}
		}

		switch {
		case err == nil:
			t.endLine(line, oversized)
			line, oversized = line[:0], false
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			if len(line) > 0 || oversized {
				t.endLine(line, oversized)
			}
			t.log.Debug().Msg("input closed")
			return nil
		default:
			return fmt.Errorf("failed to read messages: %w", err)
		}
	}
}

func (t *Transport) endLine(line []byte, oversized bool) {
	if oversized {
		metrics.MessagesDropped.WithLabelValues(metrics.DropOversize).Inc()
		t.log.Debug().Int("max_bytes", t.maxLine).Msg("dropping oversized line")
		return
	}

	line = trimEOL(line)
	if len(line) == 0 {
		return
	}
	t.deliver(bytes.Clone(line))
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

func (t *Transport) deliver(msg []byte) {
	t.mu.Lock()
	receivers := slices.Clone(t.receivers)
	t.mu.Unlock()

	run := func() {
		for _, fn := range receivers {
			fn(msg)
		}
	}
	if t.dispatch != nil {
		t.dispatch.Post(run)
		return
	}
	run()
}
