// Package stream provides a push-based document stream fed by a background source.
//
// A Stream is returned to the caller immediately; its source runs on its own
// goroutine and pushes documents into the channel returned by C. When the
// source finishes, its error (if any) is recorded and then the channel is
// closed, so a consumer observes the error followed by end-of-stream:
//
//	s := q.Stream(ctx)
//	defer s.Close()
//	for doc := range s.C() {
//	    handle(doc)
//	}
//	if err := s.Err(); err != nil {
//	    return err
//	}
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pay-theory/minq/pkg/core"
)

// Source produces documents by calling emit until it is exhausted or emit returns an error
type Source func(ctx context.Context, emit func(core.Document) error) error

// Stream is a push-based stream of documents
type Stream struct {
	c      chan core.Document
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu  sync.Mutex
	err error
}

// New starts src on a new goroutine and returns the stream it feeds
func New(ctx context.Context, src Source) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		c:      make(chan core.Document),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.run(src)
	return s
}

// Failed returns a stream that delivers err followed by end-of-stream
func Failed(err error) *Stream {
	return New(context.Background(), func(context.Context, func(core.Document) error) error {
		return err
	})
}

func (s *Stream) run(src Source) {
	err := s.invoke(src)

	if err != nil && !(s.closed.Load() && errors.Is(err, context.Canceled)) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}

	close(s.c)
	s.cancel()
	close(s.done)
}

func (s *Stream) invoke(src Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src(s.ctx, s.emit)
}

func (s *Stream) emit(doc core.Document) error {
	select {
	case s.c <- doc:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// C returns the channel documents are pushed on. It is closed at end-of-stream.
func (s *Stream) C() <-chan core.Document {
	return s.c
}

// Done returns a channel closed once the source has finished
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream. It is only meaningful after C is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops forwarding documents, cancels the source and waits for it to return
func (s *Stream) Close() error {
	s.closed.Store(true)
	s.cancel()
	<-s.done
	return nil
}

// ForEach consumes the stream, calling fn for each document.
// If fn fails the stream is closed and fn's error returned.
func (s *Stream) ForEach(fn func(core.Document) error) error {
	for doc := range s.c {
		if err := fn(doc); err != nil {
			_ = s.Close()
			return err
		}
	}
	<-s.done
	return s.Err()
}
