package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgrelay/internal/domain"
)

const telegramDownloadTimeout = 60 * time.Second

// ErrNotConnected is returned by Fetch before Start has connected the bot.
var ErrNotConnected = errors.New("telegram bot not connected")

var (
	_ domain.Source       = (*Telegram)(nil)
	_ domain.MediaFetcher = (*Telegram)(nil)
)

// Telegram watches a single chat through the Bot API and publishes its posts.
// It also serves the posts' files to the media manager.
type Telegram struct {
	token     string
	channelID string // numeric chat ID or @username

	mu      sync.RWMutex
	fileURL func(fileID string) (string, error)

	client *http.Client
	logger *slog.Logger
}

type TelegramConfig struct {
	Token           string
	ChannelID       string
	DownloadTimeout time.Duration
	Logger          *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = telegramDownloadTimeout
	}
	return &Telegram{
		token:     cfg.Token,
		channelID: strings.TrimSpace(cfg.ChannelID),
		client:    &http.Client{Timeout: cfg.DownloadTimeout},
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and long-polls for updates until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.mu.Lock()
	t.fileURL = bot.GetFileDirectURL
	t.mu.Unlock()

	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
		"channel", t.channelID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram listener stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := t.convertUpdate(update); ok {
				bus.Publish(msg)
			}
		}
	}
}

// convertUpdate returns the InboundMessage for updates posted in the watched
// chat. Edits, other chats and service updates are ignored.
func (t *Telegram) convertUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	msg := update.ChannelPost
	if msg == nil {
		msg = update.Message
	}
	if msg == nil || msg.Chat == nil {
		return domain.InboundMessage{}, false
	}
	if !matchesChat(msg.Chat, t.channelID) {
		t.logger.Debug("ignoring update from other chat", "chat_id", msg.Chat.ID, "chat", msg.Chat.UserName)
		return domain.InboundMessage{}, false
	}
	return convertMessage(msg), true
}

// matchesChat accepts a numeric chat ID or an @username.
func matchesChat(chat *tgbotapi.Chat, want string) bool {
	if want == "" {
		return false
	}
	if strings.HasPrefix(want, "@") {
		return chat.UserName != "" && strings.EqualFold(chat.UserName, want[1:])
	}
	id, err := strconv.ParseInt(want, 10, 64)
	if err != nil {
		return strings.EqualFold(chat.UserName, want)
	}
	return chat.ID == id
}

func convertMessage(msg *tgbotapi.Message) domain.InboundMessage {
	handle, firstName := resolveSender(msg)
	ts := time.Now().UTC()
	if msg.Date > 0 {
		ts = msg.Time().UTC()
	}
	return domain.InboundMessage{
		ID:              strconv.Itoa(msg.MessageID),
		ChatID:          strconv.FormatInt(msg.Chat.ID, 10),
		SenderHandle:    handle,
		SenderFirstName: firstName,
		Text:            msg.Text,
		Caption:         msg.Caption,
		Media:           collectMedia(msg),
		Timestamp:       ts,
	}
}

// resolveSender returns the sender handle and first name. Channel posts have
// no From user, so the posting chat and author signature stand in.
func resolveSender(msg *tgbotapi.Message) (handle, firstName string) {
	if msg.From != nil {
		return strings.TrimSpace(msg.From.UserName), strings.TrimSpace(msg.From.FirstName)
	}
	if msg.SenderChat != nil {
		handle = strings.TrimSpace(msg.SenderChat.UserName)
	}
	firstName = strings.TrimSpace(msg.AuthorSignature)
	if firstName == "" && msg.SenderChat != nil {
		firstName = strings.TrimSpace(msg.SenderChat.Title)
	}
	if firstName == "" && msg.Chat != nil {
		firstName = strings.TrimSpace(msg.Chat.Title)
	}
	return handle, firstName
}

// collectMedia lists the downloadable items of msg. A Telegram message
// carries at most one media object; photos arrive as several sizes of which
// only the largest is kept.
func collectMedia(msg *tgbotapi.Message) []domain.MediaRef {
	var refs []domain.MediaRef
	if len(msg.Photo) > 0 {
		p := pickPhoto(msg.Photo)
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaPhoto,
			FileID:   p.FileID,
			MimeType: "image/jpeg",
			Size:     int64(p.FileSize),
		})
	}
	if d := msg.Document; d != nil {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaDocument,
			FileID:   d.FileID,
			FileName: d.FileName,
			MimeType: d.MimeType,
			Size:     int64(d.FileSize),
		})
	}
	if v := msg.Video; v != nil {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaVideo,
			FileID:   v.FileID,
			FileName: v.FileName,
			MimeType: v.MimeType,
			Size:     int64(v.FileSize),
		})
	}
	if a := msg.Audio; a != nil {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaAudio,
			FileID:   a.FileID,
			FileName: a.FileName,
			MimeType: a.MimeType,
			Size:     int64(a.FileSize),
		})
	}
	if v := msg.Voice; v != nil {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaVoice,
			FileID:   v.FileID,
			MimeType: v.MimeType,
			Size:     int64(v.FileSize),
		})
	}
	if a := msg.Animation; a != nil && msg.Document == nil {
		refs = append(refs, domain.MediaRef{
			Kind:     domain.MediaAnimation,
			FileID:   a.FileID,
			FileName: a.FileName,
			MimeType: a.MimeType,
			Size:     int64(a.FileSize),
		})
	}
	if s := msg.Sticker; s != nil {
		refs = append(refs, domain.MediaRef{
			Kind:   domain.MediaSticker,
			FileID: s.FileID,
			Size:   int64(s.FileSize),
		})
	}
	if v := msg.VideoNote; v != nil {
		refs = append(refs, domain.MediaRef{
			Kind:   domain.MediaVideoNote,
			FileID: v.FileID,
			Size:   int64(v.FileSize),
		})
	}
	return refs
}

// pickPhoto returns the largest size, by file size then by resolution.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.FileSize == best.FileSize && item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// Fetch opens the file behind ref. The caller closes the returned reader.
func (t *Telegram) Fetch(ctx context.Context, ref domain.MediaRef) (io.ReadCloser, error) {
	t.mu.RLock()
	resolve := t.fileURL
	t.mu.RUnlock()
	if resolve == nil {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(ref.FileID) == "" {
		return nil, fmt.Errorf("telegram media reference has no file id")
	}

	downloadURL, err := resolve(ref.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("download telegram file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// VerifyToken checks the bot token against the Bot API and returns the bot's
// username.
func VerifyToken(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("telegram bot init: %w", err)
	}
	return bot.Self.UserName, nil
}
