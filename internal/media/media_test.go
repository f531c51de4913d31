package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tgrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeFetcher serves file contents keyed by FileID; missing IDs fail.
type fakeFetcher struct {
	files map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref domain.MediaRef) (io.ReadCloser, error) {
	f.calls++
	data, ok := f.files[ref.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func newTestManager(t *testing.T, fetcher domain.MediaFetcher, maxBytes int64) *Manager {
	t.Helper()
	m, err := New(Config{
		Fetcher:  fetcher,
		TempDir:  t.TempDir(),
		MaxBytes: maxBytes,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNew_RequiresFetcher(t *testing.T) {
	if _, err := New(Config{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without fetcher")
	}
}

func TestAcquire_NoMedia(t *testing.T) {
	m := newTestManager(t, &fakeFetcher{}, 0)
	scope := m.Acquire(context.Background(), "inv-1", domain.InboundMessage{Text: "hi"})
	defer scope.Close()
	if scope.Len() != 0 || len(scope.Paths()) != 0 {
		t.Fatalf("expected no attachments, got %d", scope.Len())
	}
}

func TestAcquire_MultipleItemsAndCleanup(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"a": "first", "b": "second"}}
	m := newTestManager(t, fetcher, 0)

	msg := domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaPhoto, FileID: "a"},
		{Kind: domain.MediaDocument, FileID: "b", FileName: "report.PDF", MimeType: "application/pdf"},
	}}
	scope := m.Acquire(context.Background(), "inv-2", msg)

	atts := scope.Attachments()
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(atts))
	}
	if atts[0].Path == atts[1].Path {
		t.Fatal("expected distinct paths")
	}
	if filepath.Ext(atts[0].Path) != ".jpg" || atts[0].Name != "photo.jpg" {
		t.Fatalf("unexpected photo naming: %+v", atts[0])
	}
	if filepath.Ext(atts[1].Path) != ".pdf" || atts[1].Name != "report.PDF" {
		t.Fatalf("unexpected document naming: %+v", atts[1])
	}
	for i, want := range []string{"first", "second"} {
		data, err := os.ReadFile(atts[i].Path)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(data) != want {
			t.Fatalf("expected %q, got %q", want, data)
		}
		if atts[i].Owner != "inv-2" || atts[i].Size != int64(len(want)) {
			t.Fatalf("unexpected metadata: %+v", atts[i])
		}
	}

	scope.Close()
	for _, p := range scope.Paths() {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", p, err)
		}
	}
}

func TestAcquire_FailedItemIsDropped(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"ok": "data"}}
	m := newTestManager(t, fetcher, 0)

	msg := domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaPhoto, FileID: "missing"},
		{Kind: domain.MediaPhoto, FileID: "ok"},
	}}
	scope := m.Acquire(context.Background(), "inv-3", msg)
	defer scope.Close()

	if scope.Len() != 1 {
		t.Fatalf("expected 1 surviving attachment, got %d", scope.Len())
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected both items attempted, got %d calls", fetcher.calls)
	}
}

func TestAcquire_UnsupportedKindIsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"x": "data"}}
	m := newTestManager(t, fetcher, 0)

	msg := domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaKind("poll"), FileID: "x"},
		{Kind: domain.MediaPhoto, FileID: ""},
	}}
	scope := m.Acquire(context.Background(), "inv-4", msg)
	defer scope.Close()

	if scope.Len() != 0 {
		t.Fatalf("expected no attachments, got %d", scope.Len())
	}
	if fetcher.calls != 0 {
		t.Fatalf("unsupported items must not be fetched, got %d calls", fetcher.calls)
	}
}

func TestAcquire_TooLarge(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"big": "0123456789"}}
	m := newTestManager(t, fetcher, 5)

	// Declared size over the cap: rejected without fetching.
	scope := m.Acquire(context.Background(), "inv-5", domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaVideo, FileID: "big", Size: 10},
	}})
	if scope.Len() != 0 || fetcher.calls != 0 {
		t.Fatalf("expected rejection before fetch, len=%d calls=%d", scope.Len(), fetcher.calls)
	}
	scope.Close()

	// Unknown size: the stream is cut and the partial file removed.
	scope = m.Acquire(context.Background(), "inv-6", domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaVideo, FileID: "big"},
	}})
	defer scope.Close()
	if scope.Len() != 0 {
		t.Fatalf("expected oversized stream to be dropped, got %d", scope.Len())
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}

func TestScope_CloseIsIdempotentAndTolerant(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"a": "x"}}
	m := newTestManager(t, fetcher, 0)
	scope := m.Acquire(context.Background(), "inv-7", domain.InboundMessage{Media: []domain.MediaRef{
		{Kind: domain.MediaVoice, FileID: "a"},
	}})
	if scope.Len() != 1 {
		t.Fatalf("expected 1 attachment, got %d", scope.Len())
	}

	// Removed behind the manager's back: Close must only log.
	if err := os.Remove(scope.Paths()[0]); err != nil {
		t.Fatal(err)
	}
	scope.Close()
	scope.Close()
}

func TestExtensionFor(t *testing.T) {
	cases := []struct {
		ref  domain.MediaRef
		want string
		ok   bool
	}{
		{domain.MediaRef{Kind: domain.MediaPhoto}, ".jpg", true},
		{domain.MediaRef{Kind: domain.MediaVoice, MimeType: "audio/ogg"}, ".ogg", true},
		{domain.MediaRef{Kind: domain.MediaSticker}, ".webp", true},
		{domain.MediaRef{Kind: domain.MediaDocument, FileName: "a.TXT"}, ".txt", true},
		{domain.MediaRef{Kind: domain.MediaDocument}, ".bin", true},
		{domain.MediaRef{Kind: domain.MediaKind("contact")}, "", false},
	}
	for _, tc := range cases {
		got, ok := extensionFor(tc.ref)
		if got != tc.want || ok != tc.ok {
			t.Errorf("extensionFor(%+v) = %q, %v; want %q, %v", tc.ref, got, ok, tc.want, tc.ok)
		}
	}
}
