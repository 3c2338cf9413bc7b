// Package caption turns embedded raster images into short text descriptions.
package caption

import (
	"context"
	"fmt"
	"sync"
)

// Captioner describes one image.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}

// Func adapts a plain function to Captioner.
type Func func(ctx context.Context, image []byte) (string, error)

func (f Func) Caption(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Error is a captioning failure for a single image. It never aborts the
// page or the document.
type Error struct {
	Page  int
	Block int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("caption page %d block %d: %v", e.Page, e.Block, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoCaptioner is reported for every image when no captioner is configured.
var ErrNoCaptioner = fmt.Errorf("no captioner configured")

type lazy struct {
	mu   sync.Mutex
	init func() (Captioner, error)
	done bool
	c    Captioner
	err  error
}

// Lazy defers construction of the underlying captioner until the first image.
// The result of that single construction, success or failure, is reused for
// every later image.
func Lazy(init func() (Captioner, error)) Captioner {
	return &lazy{init: init}
}

func (l *lazy) get() (Captioner, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.c, l.err = l.init()
		l.done = true
		if l.err == nil && l.c == nil {
			l.err = ErrNoCaptioner
		}
	}
	return l.c, l.err
}

func (l *lazy) Caption(ctx context.Context, image []byte) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", fmt.Errorf("captioner unavailable: %w", err)
	}
	return c.Caption(ctx, image)
}

type serial struct {
	mu sync.Mutex
	c  Captioner
}

// Serial allows at most one caption request in flight on c. Vision models
// loaded in-process are not safe for concurrent use.
func Serial(c Captioner) Captioner {
	return &serial{c: c}
}

func (s *serial) Caption(ctx context.Context, image []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.c.Caption(ctx, image)
}

// Unavailable returns a captioner that fails every call with ErrNoCaptioner.
func Unavailable() Captioner {
	return Func(func(context.Context, []byte) (string, error) {
		return "", ErrNoCaptioner
	})
}
