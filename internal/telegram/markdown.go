package telegram

import "strings"

const ParseModeMarkdownV2 = "MarkdownV2"

// EscapeMarkdownV2 escapes every character MarkdownV2 treats as markup, so
// user-supplied text renders literally.
func EscapeMarkdownV2(text string) string {
	const special = "\\_*[]()~`>#+-=|{}.!"
	if !strings.ContainsAny(text, special) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
