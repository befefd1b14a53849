package telegram

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Telegram 长度限制 (按字符计, 预留转义空间)
const (
	textLimit    = 3800
	captionLimit = 900
)

// splitText cuts text into pieces of at most limit characters, preferring
// paragraph, line, sentence and word boundaries in that order.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := splitPoint(runes[:limit])
		parts = append(parts, strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace))
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func splitPoint(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", "。", ". ", " "} {
		i := strings.LastIndex(s, sep)
		if i <= 0 {
			continue
		}
		if cut := utf8.RuneCountInString(s[:i+len(sep)]); cut >= len(window)/2 {
			return cut
		}
	}
	return len(window)
}

// truncateText 截断并加省略号
func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
