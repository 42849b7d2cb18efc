package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
)

// streamState tracks where a Stream is in its lifecycle
type streamState int

const (
	stateStreaming streamState = iota // relaying backend fragments
	stateStalledWatch                 // consecutive empties observed, counting toward the limit
	stateFallbackSubstituting         // backend abandoned, emitting fallback words
	stateDone
)

// Stream is a pull-based fragment stream over one generation. Next blocks
// until the next fragment is available and returns ok=false when the
// stream is exhausted. Every backend fragment is relayed, empty ones
// included; when the backend stalls past the empty-fragment limit or
// finishes without a single non-empty fragment, the remainder is
// substituted with the adapter's fallback text, one word per pull.
//
// A Stream is single-consumer and not safe for concurrent use.
type Stream struct {
	src           FragmentSource
	fallbackWords []string
	fallbackIdx   int
	stallLimit    int
	emptyRun      int
	sawContent    bool
	state         streamState
}

func newStream(src FragmentSource, fallback string, stallLimit int) *Stream {
	if stallLimit <= 0 {
		stallLimit = DefaultStallLimit
	}
	return &Stream{
		src:           src,
		fallbackWords: strings.Fields(fallback),
		stallLimit:    stallLimit,
	}
}

// newFallbackStream yields only the fallback text, word by word. Used
// when the backend is unloaded or stream startup failed.
func newFallbackStream(fallback string) *Stream {
	return &Stream{
		fallbackWords: strings.Fields(fallback),
		state:         stateFallbackSubstituting,
	}
}

// Next returns the next fragment. ok is false once the stream is
// exhausted or the context is cancelled; after that every call returns
// ok=false.
func (s *Stream) Next(ctx context.Context) (fragment string, ok bool) {
	for {
		switch s.state {
		case stateDone:
			return "", false

		case stateFallbackSubstituting:
			if s.fallbackIdx >= len(s.fallbackWords) {
				s.finish()
				return "", false
			}
			word := s.fallbackWords[s.fallbackIdx]
			s.fallbackIdx++
			if s.fallbackIdx < len(s.fallbackWords) {
				word += " "
			}
			return word, true

		case stateStreaming, stateStalledWatch:
			if err := ctx.Err(); err != nil {
				s.finish()
				return "", false
			}

			frag, err := s.src.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("⚠️  Stream read failed mid-generation: %v", err)
				}
				s.abandonSource()
				if s.sawContent {
					s.finish()
					return "", false
				}
				// Completed without any real content, substitute
				s.state = stateFallbackSubstituting
				continue
			}

			if strings.TrimSpace(frag) == "" {
				s.emptyRun++
				s.state = stateStalledWatch
				if s.emptyRun >= s.stallLimit {
					log.Printf("⚠️  Stream stalled after %d empty fragments, substituting fallback", s.emptyRun)
					s.abandonSource()
					s.state = stateFallbackSubstituting
				}
				// The empty fragment is still relayed so consumers can
				// account for everything the backend produced.
				return frag, true
			}

			s.emptyRun = 0
			s.sawContent = true
			s.state = stateStreaming
			return frag, true
		}
	}
}

// Close releases the underlying generation. Safe to call more than once
// and after exhaustion.
func (s *Stream) Close() error {
	s.abandonSource()
	s.state = stateDone
	return nil
}

// Collect drains the stream and returns the concatenated fragments.
// Useful when a caller wants the streaming liveness guarantees but a
// single response string.
func (s *Stream) Collect(ctx context.Context) string {
	var b strings.Builder
	for {
		frag, ok := s.Next(ctx)
		if !ok {
			return b.String()
		}
		b.WriteString(frag)
	}
}

func (s *Stream) finish() {
	s.abandonSource()
	s.state = stateDone
}

func (s *Stream) abandonSource() {
	if s.src != nil {
		s.src.Close()
		s.src = nil
	}
}
