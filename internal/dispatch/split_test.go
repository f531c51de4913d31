package dispatch

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		maxLen int
		want   int
	}{
		{"empty", "", 10, 1},
		{"short", "hello", 10, 1},
		{"exact", "0123456789", 10, 1},
		{"long no newline", strings.Repeat("x", 25), 10, 3},
		{"newline split", "aaaaaaa\nbbbbbbb", 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitMessage(tt.msg, tt.maxLen)
			if len(chunks) != tt.want {
				t.Fatalf("expected %d chunks, got %d: %q", tt.want, len(chunks), chunks)
			}
			if strings.Join(chunks, "") != tt.msg {
				t.Error("chunks do not reassemble the message")
			}
			for _, c := range chunks {
				if utf8.RuneCountInString(c) > tt.maxLen {
					t.Errorf("chunk too long: %q", c)
				}
			}
		})
	}
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	chunks := splitMessage("aaaaaaa\nbbbbbbb", 10)
	if chunks[0] != "aaaaaaa\n" {
		t.Errorf("expected split after newline, got %q", chunks[0])
	}
}

func TestSplitMessage_CountsCharacters(t *testing.T) {
	msg := strings.Repeat("ї", 2000)
	if chunks := splitMessage(msg, discordMaxMsgLen); len(chunks) != 1 {
		t.Errorf("2000 Cyrillic characters should fit one message, got %d chunks", len(chunks))
	}
	for _, c := range splitMessage(strings.Repeat("ї", 2500), discordMaxMsgLen) {
		if !utf8.ValidString(c) {
			t.Error("chunk split inside a character")
		}
	}
}
