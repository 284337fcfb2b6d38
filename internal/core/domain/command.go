package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseCommand returns the lowercased first word of text.
func ParseCommand(text string) string {
	name, _ := splitFirst(text)
	return strings.ToLower(name)
}

// ParseCommandArgs returns everything after the first word of text.
func ParseCommandArgs(text string) string {
	_, args := splitFirst(text)
	return args
}

// ParsePrefixed extracts the command name and arguments from a prefix-triggered message.
// An empty prefix never matches.
func ParsePrefixed(prefix, content string) (name, args string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}

	body := content[len(prefix):]
	first, _ := utf8.DecodeRuneInString(body)
	if body == "" || unicode.IsSpace(first) {
		return "", "", false
	}

	return ParseCommand(body), ParseCommandArgs(body), true
}

func splitFirst(text string) (string, string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text, ""
	}

	return text[:i], strings.TrimSpace(text[i:])
}

// SplitText cuts text into chunks of at most limit runes, preferring line breaks.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}
