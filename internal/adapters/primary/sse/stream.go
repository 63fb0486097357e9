// Package sse binds a push channel to a text/event-stream response.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// Config tunes a stream.
type Config struct {
	HeartbeatInterval time.Duration
	SendBuffer        int
	SendTimeout       time.Duration
	WriteTimeout      time.Duration // Deadline for writing one frame to the client
	Now               func() time.Time
}

// DefaultConfig returns the stream defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		SendBuffer:        64,
		SendTimeout:       2 * time.Second,
		WriteTimeout:      10 * time.Second,
		Now:               time.Now,
	}
}

// Stream is a ports.Channel writing Server-Sent Events. Frames are queued by
// Send and written by the single goroutine running Run.
type Stream struct {
	w       io.Writer
	flusher http.Flusher
	rc      *http.ResponseController
	cfg     Config
	logger  *slog.Logger

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
}

var _ ports.Channel = (*Stream)(nil)

// NewStream writes the event-stream headers and returns a stream ready for Run.
func NewStream(w http.ResponseWriter, cfg Config, logger *slog.Logger) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &Stream{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
	s.alive.Store(true)
	return s, nil
}

// Send serializes payload and queues the frame. It fails with
// ErrChannelBlocked when the queue stays full for SendTimeout.
func (s *Stream) Send(eventType domain.EventType, payload any) error {
	if !s.IsAlive() {
		return apperrors.ErrChannelClosed
	}

	frame, err := encodeFrame(eventType, payload)
	if err != nil {
		return err
	}

	select {
	case s.queue <- frame:
		return nil
	case <-s.done:
		return apperrors.ErrChannelClosed
	default:
	}

	timer := time.NewTimer(s.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case s.queue <- frame:
		return nil
	case <-s.done:
		return apperrors.ErrChannelClosed
	case <-timer.C:
		return apperrors.ErrChannelBlocked
	}
}

// IsAlive reports whether the stream still accepts frames.
func (s *Stream) IsAlive() bool {
	return s.alive.Load()
}

// Close stops the stream. Queued frames are discarded.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		close(s.done)
	})
}

// Run writes queued frames and heartbeats until ctx ends, Close is called or
// a write fails. It closes the stream on return.
func (s *Stream) Run(ctx context.Context) {
	defer s.Close()

	var tick <-chan time.Time
	if s.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.queue:
			if err := s.write(frame); err != nil {
				s.logger.Debug("sse write failed", "error", err)
				return
			}
		case <-tick:
			frame, _ := encodeFrame(domain.EventHeartbeat, domain.HeartbeatPayload{
				Timestamp: s.cfg.Now().UnixMilli(),
			})
			if err := s.write(frame); err != nil {
				s.logger.Debug("sse heartbeat failed", "error", err)
				return
			}
		}
	}
}

// write sends one frame under WriteTimeout so a stalled client cannot pin
// the writer. Writers without deadline support are written to as-is.
func (s *Stream) write(frame []byte) error {
	if s.cfg.WriteTimeout > 0 {
		err := s.rc.SetWriteDeadline(s.cfg.Now().Add(s.cfg.WriteTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// encodeFrame renders one "event:/data:" block. Compact JSON never contains
// a newline so a single data line is enough.
func encodeFrame(eventType domain.EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnserializablePayload, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(eventType) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(eventType))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
