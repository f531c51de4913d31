package domain

import (
	"strings"
	"time"
)

// MediaKind classifies an attachment reference coming from the source.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaDocument  MediaKind = "document"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaAnimation MediaKind = "animation"
	MediaSticker   MediaKind = "sticker"
	MediaVideoNote MediaKind = "video_note"
)

// MediaRef points at a downloadable attachment on the source platform.
type MediaRef struct {
	Kind     MediaKind
	FileID   string
	FileName string // optional original name
	MimeType string
	Size     int64
}

// InboundMessage is one event from the monitored source channel.
// It is immutable once published.
type InboundMessage struct {
	ID              string
	ChatID          string
	SenderHandle    string // e.g. Telegram @username, without the @
	SenderFirstName string
	Text            string
	Caption         string
	Media           []MediaRef
	Timestamp       time.Time
}

// DisplayName prefers the handle, then the first name, then "Unknown".
func (m InboundMessage) DisplayName() string {
	if h := strings.TrimSpace(m.SenderHandle); h != "" {
		return h
	}
	if n := strings.TrimSpace(m.SenderFirstName); n != "" {
		return n
	}
	return "Unknown"
}

// Body returns the caption when present, else the message text.
func (m InboundMessage) Body() string {
	if strings.TrimSpace(m.Caption) != "" {
		return m.Caption
	}
	return m.Text
}

// Attachment is a downloaded media item living in transient local storage.
type Attachment struct {
	Path     string
	Name     string // file name presented to the destination
	MimeType string
	Size     int64
	Owner    string // id of the relay invocation that downloaded it
}

// OutboundPost is a single delivery to the destination webhook.
type OutboundPost struct {
	Username string
	Content  string
	File     *Attachment // optional
}
