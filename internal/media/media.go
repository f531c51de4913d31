// Package media downloads message attachments to transient local files and
// guarantees their removal once the owning relay invocation is done.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"

	"github.com/google/uuid"
)

const (
	defaultMaxBytes = 25 * 1024 * 1024
	defaultTimeout  = 60 * time.Second
	filePrefix      = "tgrelay-"
)

var (
	// ErrTooLarge indicates the attachment exceeds the configured size cap.
	ErrTooLarge = errors.New("media item too large")
	// ErrUnsupportedMedia indicates a reference shape the relay does not forward.
	ErrUnsupportedMedia = errors.New("unsupported media kind")
)

// Config configures the media manager.
type Config struct {
	Fetcher  domain.MediaFetcher
	TempDir  string // base directory for transient files (default: os.TempDir())
	MaxBytes int64  // per-item cap (default: 25MB)
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Manager downloads attachments into transient storage.
type Manager struct {
	fetcher  domain.MediaFetcher
	dir      string
	maxBytes int64
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a media manager, making sure the temp directory exists.
func New(cfg Config) (*Manager, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("media fetcher is required")
	}
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create media temp dir: %w", err)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Manager{
		fetcher:  cfg.Fetcher,
		dir:      dir,
		maxBytes: cfg.MaxBytes,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}, nil
}

// Acquire downloads every media item of msg and returns the scope owning the
// resulting files. Items that fail to download are logged and left out; the
// caller must Close the scope, typically with defer.
func (m *Manager) Acquire(ctx context.Context, owner string, msg domain.InboundMessage) *Scope {
	scope := &Scope{owner: owner, logger: m.logger}
	for i, ref := range msg.Media {
		att, err := m.download(ctx, owner, ref)
		if err != nil {
			if errors.Is(err, ErrUnsupportedMedia) {
				m.logger.Debug("skipping unsupported media", "owner", owner, "kind", ref.Kind)
				continue
			}
			metrics.MediaFailures.Inc()
			m.logger.Warn("media download failed, dropping item",
				"owner", owner,
				"index", i,
				"kind", ref.Kind,
				"err", err,
			)
			continue
		}
		metrics.MediaDownloads.Inc()
		scope.attachments = append(scope.attachments, att)
	}
	return scope
}

func (m *Manager) download(ctx context.Context, owner string, ref domain.MediaRef) (domain.Attachment, error) {
	ext, ok := extensionFor(ref)
	if !ok || ref.FileID == "" {
		return domain.Attachment{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, ref.Kind)
	}
	if ref.Size > m.maxBytes {
		return domain.Attachment{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, ref.Size, m.maxBytes)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rc, err := m.fetcher.Fetch(ctx, ref)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("fetch: %w", err)
	}
	defer rc.Close()

	path := filepath.Join(m.dir, filePrefix+uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(rc, m.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > m.maxBytes {
		err = fmt.Errorf("%w: max %d bytes", ErrTooLarge, m.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return domain.Attachment{}, fmt.Errorf("write file: %w", err)
	}

	name := strings.TrimSpace(ref.FileName)
	if name == "" {
		name = string(ref.Kind) + ext
	}
	m.logger.Debug("media downloaded", "owner", owner, "kind", ref.Kind, "path", path, "size", written)

	return domain.Attachment{
		Path:     path,
		Name:     name,
		MimeType: ref.MimeType,
		Size:     written,
		Owner:    owner,
	}, nil
}

// kindExtensions lists the supported kinds and their fallback extension.
var kindExtensions = map[domain.MediaKind]string{
	domain.MediaPhoto:     ".jpg",
	domain.MediaDocument:  ".bin",
	domain.MediaVideo:     ".mp4",
	domain.MediaAudio:     ".mp3",
	domain.MediaVoice:     ".ogg",
	domain.MediaAnimation: ".mp4",
	domain.MediaSticker:   ".webp",
	domain.MediaVideoNote: ".mp4",
}

func extensionFor(ref domain.MediaRef) (string, bool) {
	fallback, ok := kindExtensions[ref.Kind]
	if !ok {
		return "", false
	}
	if ext := filepath.Ext(ref.FileName); ext != "" && len(ext) <= 10 {
		return strings.ToLower(ext), true
	}
	if ref.Kind == domain.MediaDocument && ref.MimeType != "" {
		if exts, err := mime.ExtensionsByType(ref.MimeType); err == nil && len(exts) > 0 {
			return exts[0], true
		}
	}
	return fallback, true
}

// Scope owns the transient files downloaded for one relay invocation.
type Scope struct {
	owner       string
	attachments []domain.Attachment
	once        sync.Once
	logger      *slog.Logger
}

// Attachments returns the downloaded items in source order.
func (s *Scope) Attachments() []domain.Attachment {
	return s.attachments
}

// Paths returns the local file paths of the downloaded items.
func (s *Scope) Paths() []string {
	paths := make([]string, len(s.attachments))
	for i, a := range s.attachments {
		paths[i] = a.Path
	}
	return paths
}

// Len reports how many items were downloaded.
func (s *Scope) Len() int { return len(s.attachments) }

// Close removes every downloaded file. Only the first call does anything;
// removal errors are logged, never returned.
func (s *Scope) Close() {
	s.once.Do(func() {
		for _, a := range s.attachments {
			if err := os.Remove(a.Path); err != nil {
				metrics.CleanupFailures.Inc()
				s.logger.Warn("failed to remove transient media", "owner", s.owner, "path", a.Path, "err", err)
			}
		}
	})
}
