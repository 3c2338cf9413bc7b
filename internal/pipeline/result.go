package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/fontprofile"
)

// ErrInvalidTransition is returned when a Result is advanced out of order.
var ErrInvalidTransition = errors.New("invalid result transition")

// State is the stage a document Result has reached.
type State string

const (
	StateEmpty    State = "empty"
	StateProfiled State = "profiled"
	StateBlocked  State = "blocked"
	StateChunked  State = "chunked"
)

// Result holds the derived artifacts of one document: its font profile, the
// content blocks of every page and the emitted chunks. It only moves forward
// (empty, profiled, blocked, chunked) except for Clear, which drops all three
// at once.
type Result struct {
	mu      sync.RWMutex
	state   State
	profile fontprofile.Profile
	pages   [][]doctree.ContentBlock
	chunks  []doctree.Chunk
}

func NewResult() *Result {
	return &Result{state: StateEmpty}
}

func (r *Result) advance(from, to State) error {
	if r.state != from {
		return fmt.Errorf("%w: %s -> %s (at %s)", ErrInvalidTransition, from, to, r.state)
	}
	r.state = to
	return nil
}

// SetProfile records the font profile. The result must be empty.
func (r *Result) SetProfile(p fontprofile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.advance(StateEmpty, StateProfiled); err != nil {
		return err
	}
	r.profile = p
	return nil
}

// SetBlocks records the built pages. The result must be profiled.
func (r *Result) SetBlocks(pages [][]doctree.ContentBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.advance(StateProfiled, StateBlocked); err != nil {
		return err
	}
	r.pages = pages
	return nil
}

// SetChunks records the emitted chunks. The result must be blocked.
func (r *Result) SetChunks(chunks []doctree.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.advance(StateBlocked, StateChunked); err != nil {
		return err
	}
	r.chunks = chunks
	return nil
}

// Clear discards everything and returns to the empty state.
func (r *Result) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateEmpty
	r.profile = fontprofile.Profile{}
	r.pages = nil
	r.chunks = nil
}

func (r *Result) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Profile returns the font profile once the result has been profiled.
func (r *Result) Profile() (fontprofile.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile, r.state != StateEmpty
}

// Blocks returns the built pages once available.
func (r *Result) Blocks() ([][]doctree.ContentBlock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages, r.state == StateBlocked || r.state == StateChunked
}

// Chunks returns the emitted chunks once available.
func (r *Result) Chunks() ([]doctree.Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunks, r.state == StateChunked
}
