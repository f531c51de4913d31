package translate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubTranslator struct {
	out   string
	err   error
	panic bool
	delay time.Duration
	calls int
}

func (s *stubTranslator) Name() string { return "stub" }

func (s *stubTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.out, s.err
}

func TestEngine_EmptyAndWhitespace(t *testing.T) {
	stub := &stubTranslator{out: "should not be used"}
	e := NewEngine(stub, testLogger())

	for _, in := range []string{"", " ", "\n\t  "} {
		if got := e.Translate(context.Background(), in, "en"); got != in {
			t.Errorf("Translate(%q) = %q, want input unchanged", in, got)
		}
	}
	if stub.calls != 0 {
		t.Errorf("strategy called %d times for blank input", stub.calls)
	}
}

func TestEngine_Success(t *testing.T) {
	e := NewEngine(&stubTranslator{out: "hello"}, testLogger())
	if got := e.Translate(context.Background(), "привіт", "en"); got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestEngine_ErrorFallsBack(t *testing.T) {
	e := NewEngine(&stubTranslator{err: errors.New("service down")}, testLogger())
	if got := e.Translate(context.Background(), "привіт", "en"); got != "привіт" {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestEngine_EmptyResultFallsBack(t *testing.T) {
	e := NewEngine(&stubTranslator{out: "   "}, testLogger())
	if got := e.Translate(context.Background(), "привіт", "en"); got != "привіт" {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestEngine_PanicFallsBack(t *testing.T) {
	e := NewEngine(&stubTranslator{panic: true}, testLogger())
	if got := e.Translate(context.Background(), "привіт", "en"); got != "привіт" {
		t.Errorf("expected original text after panic, got %q", got)
	}
}

func TestEngine_TimeoutFallsBack(t *testing.T) {
	e := NewEngine(&stubTranslator{out: "late", delay: time.Second}, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if got := e.Translate(ctx, "привіт", "en"); got != "привіт" {
		t.Errorf("expected original text on timeout, got %q", got)
	}
}

func TestEngine_NilStrategy(t *testing.T) {
	e := NewEngine(nil, testLogger())
	if got := e.Translate(context.Background(), "привіт", "en"); got != "привіт" {
		t.Errorf("expected passthrough, got %q", got)
	}
	if e.Strategy() != "none" {
		t.Errorf("expected strategy none, got %q", e.Strategy())
	}
}
