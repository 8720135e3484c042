package bot

import (
	"strings"
	"unicode/utf16"

	"github.com/quailyquaily/jab/internal/telegram"
)

// Command is a message reduced to a command name and its argument text.
type Command struct {
	Name  string
	Query string
}

// ParseCommand extracts a command from the message text (or caption).
//
// With a bot_command entity at offset 0 the name is that entity without the
// leading slash and any @botname suffix. Otherwise the first word is the name.
func ParseCommand(msg *telegram.Message) (Command, bool) {
	text, entities := msg.TextAndEntities()
	if strings.TrimSpace(text) == "" {
		return Command{}, false
	}

	var name, query string
	if head, rest, ok := splitCommandEntity(text, entities); ok {
		name, query = head, rest
	} else {
		trimmed := strings.TrimSpace(text)
		name, query, _ = strings.Cut(trimmed, " ")
	}

	name = strings.TrimPrefix(name, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Query: strings.TrimSpace(query)}, true
}

// splitCommandEntity splits text at the end of a leading bot_command entity.
// Entity offsets are in UTF-16 code units.
func splitCommandEntity(text string, entities []telegram.MessageEntity) (string, string, bool) {
	for _, e := range entities {
		if e.Type != telegram.EntityBotCommand || e.Offset != 0 || e.Length <= 0 {
			continue
		}
		units := utf16.Encode([]rune(text))
		if e.Length > len(units) {
			return "", "", false
		}
		head := string(utf16.Decode(units[:e.Length]))
		rest := string(utf16.Decode(units[e.Length:]))
		return head, rest, true
	}
	return "", "", false
}
