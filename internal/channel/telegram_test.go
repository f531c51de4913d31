package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMatchesChat(t *testing.T) {
	chat := &tgbotapi.Chat{ID: -1001234, UserName: "NewsChannel"}
	tests := []struct {
		want string
		ok   bool
	}{
		{"-1001234", true},
		{"-1009999", false},
		{"@newschannel", true},
		{"@other", false},
		{"NewsChannel", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := matchesChat(chat, tt.want); got != tt.ok {
			t.Errorf("matchesChat(%q) = %v, want %v", tt.want, got, tt.ok)
		}
	}
	if matchesChat(&tgbotapi.Chat{ID: 1}, "@news") {
		t.Error("chat without username must not match an @handle")
	}
}

func TestConvertUpdate_ChannelPost(t *testing.T) {
	tg := NewTelegram(TelegramConfig{ChannelID: "@news", Logger: testLogger()})
	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	msg, ok := tg.convertUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{
		MessageID:  42,
		Date:       int(date.Unix()),
		Chat:       &tgbotapi.Chat{ID: -100, UserName: "news", Title: "News"},
		SenderChat: &tgbotapi.Chat{ID: -100, UserName: "news", Title: "News"},
		Text:       "привіт",
	}})
	if !ok {
		t.Fatal("expected channel post to be accepted")
	}
	if msg.ID != "42" || msg.ChatID != "-100" || msg.Text != "привіт" {
		t.Errorf("unexpected message %+v", msg)
	}
	if !msg.Timestamp.Equal(date) || msg.Timestamp.Location() != time.UTC {
		t.Errorf("unexpected timestamp %v", msg.Timestamp)
	}
	if msg.SenderHandle != "news" || msg.SenderFirstName != "News" {
		t.Errorf("unexpected sender %q/%q", msg.SenderHandle, msg.SenderFirstName)
	}
}

func TestConvertUpdate_Filters(t *testing.T) {
	tg := NewTelegram(TelegramConfig{ChannelID: "-100", Logger: testLogger()})

	if _, ok := tg.convertUpdate(tgbotapi.Update{}); ok {
		t.Error("empty update accepted")
	}
	if _, ok := tg.convertUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -200}}}); ok {
		t.Error("update from another chat accepted")
	}
	if _, ok := tg.convertUpdate(tgbotapi.Update{EditedChannelPost: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -100}}}); ok {
		t.Error("edit accepted")
	}
	msg, ok := tg.convertUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: -100},
		From:      &tgbotapi.User{UserName: "alice", FirstName: "Alice"},
		Text:      "hi",
	}})
	if !ok {
		t.Fatal("group message from the watched chat rejected")
	}
	if msg.DisplayName() != "alice" {
		t.Errorf("expected handle alice, got %q", msg.DisplayName())
	}
	if msg.Timestamp.IsZero() {
		t.Error("missing date should fall back to now")
	}
}

func TestResolveSender(t *testing.T) {
	tests := []struct {
		name      string
		msg       *tgbotapi.Message
		handle    string
		firstName string
	}{
		{
			name:      "user",
			msg:       &tgbotapi.Message{From: &tgbotapi.User{UserName: "bob", FirstName: "Bob"}},
			handle:    "bob",
			firstName: "Bob",
		},
		{
			name:      "user without handle",
			msg:       &tgbotapi.Message{From: &tgbotapi.User{FirstName: "Bob"}},
			firstName: "Bob",
		},
		{
			name:      "signed channel post",
			msg:       &tgbotapi.Message{SenderChat: &tgbotapi.Chat{Title: "News"}, AuthorSignature: "Editor"},
			firstName: "Editor",
		},
		{
			name:      "private channel",
			msg:       &tgbotapi.Message{Chat: &tgbotapi.Chat{Title: "Private"}},
			firstName: "Private",
		},
		{
			name: "nothing",
			msg:  &tgbotapi.Message{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, f := resolveSender(tt.msg)
			if h != tt.handle || f != tt.firstName {
				t.Errorf("got %q/%q, want %q/%q", h, f, tt.handle, tt.firstName)
			}
		})
	}
	if (domain.InboundMessage{}).DisplayName() != "Unknown" {
		t.Error("expected Unknown for a sender with no names")
	}
}

func TestCollectMedia(t *testing.T) {
	msg := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90, FileSize: 1000},
			{FileID: "large", Width: 1280, Height: 1280, FileSize: 90000},
			{FileID: "medium", Width: 320, Height: 320, FileSize: 9000},
		},
	}
	refs := collectMedia(msg)
	if len(refs) != 1 || refs[0].FileID != "large" || refs[0].Kind != domain.MediaPhoto {
		t.Fatalf("expected the largest photo only, got %+v", refs)
	}

	doc := collectMedia(&tgbotapi.Message{
		Document: &tgbotapi.Document{FileID: "d1", FileName: "report.pdf", MimeType: "application/pdf", FileSize: 2048},
	})
	if len(doc) != 1 || doc[0].FileName != "report.pdf" || doc[0].Size != 2048 {
		t.Errorf("unexpected document ref %+v", doc)
	}

	// GIFs arrive with both animation and document set.
	anim := collectMedia(&tgbotapi.Message{
		Animation: &tgbotapi.Animation{FileID: "a1"},
		Document:  &tgbotapi.Document{FileID: "a1"},
	})
	if len(anim) != 1 {
		t.Errorf("expected animation reported once, got %+v", anim)
	}

	if refs := collectMedia(&tgbotapi.Message{Text: "plain"}); len(refs) != 0 {
		t.Errorf("expected no media, got %+v", refs)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/file/bot/photos/1.jpg" {
			w.Write([]byte("JPEG"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	if _, err := tg.Fetch(context.Background(), domain.MediaRef{FileID: "f1"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	tg.fileURL = func(fileID string) (string, error) {
		switch fileID {
		case "f1":
			return srv.URL + "/file/bot/photos/1.jpg", nil
		case "gone":
			return srv.URL + "/file/bot/missing", nil
		}
		return "", errors.New("Bad Request: invalid file_id")
	}

	rc, err := tg.Fetch(context.Background(), domain.MediaRef{FileID: "f1"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "JPEG" {
		t.Errorf("unexpected data %q", data)
	}

	for _, id := range []string{"gone", "bad", ""} {
		if _, err := tg.Fetch(context.Background(), domain.MediaRef{FileID: id}); err == nil {
			t.Errorf("expected error for file id %q", id)
		}
	}
}
