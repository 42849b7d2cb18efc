package llm

import (
	"context"
	"io"
	"strings"
	"testing"
)

// scriptedSource replays a fixed fragment sequence then EOF
type scriptedSource struct {
	fragments []string
	pos       int
	closed    bool
	err       error // returned after fragments are exhausted instead of EOF
}

func (s *scriptedSource) Next(ctx context.Context) (string, error) {
	if s.pos >= len(s.fragments) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	frag := s.fragments[s.pos]
	s.pos++
	return frag, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func drain(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for {
		frag, ok := s.Next(context.Background())
		if !ok {
			return out
		}
		out = append(out, frag)
	}
}

func TestStreamRelaysFragments(t *testing.T) {
	src := &scriptedSource{fragments: []string{"Hello", " ", "world"}}
	out := drain(t, newStream(src, "fallback text", 5))

	if got := strings.Join(out, ""); got != "Hello world" {
		t.Errorf("got %q, want %q", got, "Hello world")
	}
	if !src.closed {
		t.Error("source not closed after exhaustion")
	}
}

func TestStreamNeverYieldsNothing(t *testing.T) {
	// A backend that completes without a single non-empty fragment still
	// produces visible output.
	cases := map[string][]string{
		"no fragments":    {},
		"only empties":    {"", "", ""},
		"only whitespace": {"  ", "\n"},
	}

	for name, frags := range cases {
		t.Run(name, func(t *testing.T) {
			out := drain(t, newStream(&scriptedSource{fragments: frags}, "sorry "+FallbackMarker, 10))
			joined := strings.Join(out, "")
			if strings.TrimSpace(joined) == "" {
				t.Fatal("stream yielded no visible content")
			}
			if !strings.Contains(joined, FallbackMarker) {
				t.Errorf("expected fallback substitution, got %q", joined)
			}
		})
	}
}

func TestStreamStallSubstitutesFallback(t *testing.T) {
	src := &scriptedSource{fragments: []string{"partial", "", "", "", ""}}
	out := drain(t, newStream(src, "backup "+FallbackMarker, 4))

	joined := strings.Join(out, "")
	if !strings.HasPrefix(joined, "partial") {
		t.Errorf("real output should be preserved, got %q", joined)
	}
	if !strings.Contains(joined, FallbackMarker) {
		t.Errorf("stalled stream should substitute fallback, got %q", joined)
	}
	if !src.closed {
		t.Error("stalled source should be closed")
	}
}

func TestStreamRelaysEveryBackendFragment(t *testing.T) {
	// Empty fragments are not silently dropped
	frags := []string{"a", "", "b", "", "c"}
	src := &scriptedSource{fragments: frags}
	out := drain(t, newStream(src, "fb", 10))

	if len(out) < len(frags) {
		t.Errorf("observed %d fragments, backend produced %d", len(out), len(frags))
	}
}

func TestStreamEmptyRunResetsOnContent(t *testing.T) {
	// Interleaved empties below the limit never trigger substitution
	frags := []string{"", "", "x", "", "", "y", "", "", "z"}
	out := drain(t, newStream(&scriptedSource{fragments: frags}, FallbackMarker, 3))

	joined := strings.Join(out, "")
	if strings.Contains(joined, FallbackMarker) {
		t.Errorf("substitution triggered despite resets: %q", joined)
	}
	if !strings.Contains(joined, "xyz"[0:1]) || !strings.Contains(joined, "z") {
		t.Errorf("content lost: %q", joined)
	}
}

func TestStreamErrorMidwayAfterContent(t *testing.T) {
	src := &scriptedSource{fragments: []string{"some output"}, err: io.ErrUnexpectedEOF}
	out := drain(t, newStream(src, FallbackMarker, 5))

	joined := strings.Join(out, "")
	if joined != "some output" {
		t.Errorf("got %q, want partial output preserved without fallback", joined)
	}
}

func TestStreamErrorBeforeContent(t *testing.T) {
	src := &scriptedSource{err: io.ErrUnexpectedEOF}
	out := drain(t, newStream(src, "oops "+FallbackMarker, 5))

	if !strings.Contains(strings.Join(out, ""), FallbackMarker) {
		t.Error("error with no prior content should substitute fallback")
	}
}

func TestStreamNextAfterExhaustion(t *testing.T) {
	s := newStream(&scriptedSource{fragments: []string{"x"}}, "fb", 5)
	drain(t, s)

	for i := 0; i < 3; i++ {
		if _, ok := s.Next(context.Background()); ok {
			t.Fatal("Next returned ok after exhaustion")
		}
	}
}

func TestStreamContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStream(&scriptedSource{fragments: []string{"never seen"}}, "fb", 5)
	if _, ok := s.Next(ctx); ok {
		t.Error("Next should stop on cancelled context")
	}
}

func TestFallbackStreamWordByWord(t *testing.T) {
	s := newFallbackStream("one two three")
	out := drain(t, s)

	if len(out) != 3 {
		t.Fatalf("expected 3 word fragments, got %d: %v", len(out), out)
	}
	if got := strings.Join(out, ""); got != "one two three" {
		t.Errorf("joined fallback = %q", got)
	}
}

func TestStreamCollect(t *testing.T) {
	s := newStream(&scriptedSource{fragments: []string{"a", "b", "c"}}, "fb", 5)
	if got := s.Collect(context.Background()); got != "abc" {
		t.Errorf("Collect = %q, want %q", got, "abc")
	}
}

func TestStreamClose(t *testing.T) {
	src := &scriptedSource{fragments: []string{"a", "b"}}
	s := newStream(src, "fb", 5)

	if _, ok := s.Next(context.Background()); !ok {
		t.Fatal("first Next failed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed {
		t.Error("Close did not release the source")
	}
	if _, ok := s.Next(context.Background()); ok {
		t.Error("Next returned ok after Close")
	}
}
