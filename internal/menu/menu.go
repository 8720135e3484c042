// Package menu loads the bot command menu from YAML and pushes it to
// Telegram with setMyCommands, one call per scope.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/telegram"
)

const (
	ScopeDefault               = "default"
	ScopeAllPrivateChats       = "all_private_chats"
	ScopeAllGroupChats         = "all_group_chats"
	ScopeAllChatAdministrators = "all_chat_administrators"
	ScopeChat                  = "chat"
	ScopeChatAdministrators    = "chat_administrators"
	ScopeChatMember            = "chat_member"

	maxNameLen        = 32
	maxDescriptionLen = 256
)

var (
	ErrInvalidMenu = errors.New("menu: invalid")

	namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

type Entry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Scope       string `yaml:"scope,omitempty"`
	ChatID      int64  `yaml:"chat_id,omitempty"`
	UserID      int64  `yaml:"user_id,omitempty"`
}

type Menu struct {
	Commands []Entry `yaml:"commands"`
}

// Group is the set of commands shown for one scope.
type Group struct {
	Scope    telegram.BotCommandScope
	Commands []telegram.BotCommand
}

// Load reads and validates the menu file. A missing file yields ok=false.
func Load(path string) (Menu, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Menu{}, false, nil
		}
		return Menu{}, false, fmt.Errorf("read menu %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return Menu{}, true, fmt.Errorf("%s: %w", path, err)
	}
	return m, true, nil
}

func Parse(data []byte) (Menu, error) {
	var m Menu
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Menu{}, fmt.Errorf("%w: %v", ErrInvalidMenu, err)
	}
	for i := range m.Commands {
		e := &m.Commands[i]
		e.Name = strings.TrimPrefix(strings.TrimSpace(e.Name), "/")
		e.Description = strings.TrimSpace(e.Description)
		e.Scope = strings.ToLower(strings.TrimSpace(e.Scope))
		if e.Scope == "" {
			e.Scope = ScopeDefault
		}
	}
	if err := m.Validate(); err != nil {
		return Menu{}, err
	}
	return m, nil
}

func (m Menu) Validate() error {
	seen := make(map[string]bool, len(m.Commands))
	for i, e := range m.Commands {
		if n := len(e.Name); n == 0 || n > maxNameLen || !namePattern.MatchString(e.Name) {
			return fmt.Errorf("%w: commands[%d]: name %q must be 1-%d chars of [a-z0-9_]", ErrInvalidMenu, i, e.Name, maxNameLen)
		}
		if n := utf8.RuneCountInString(e.Description); n == 0 || n > maxDescriptionLen {
			return fmt.Errorf("%w: commands[%d]: description must be 1-%d chars", ErrInvalidMenu, i, maxDescriptionLen)
		}
		if err := validateScope(e); err != nil {
			return fmt.Errorf("%w: commands[%d]: %v", ErrInvalidMenu, i, err)
		}
		key := scopeKey(e) + "/" + e.Name
		if seen[key] {
			return fmt.Errorf("%w: commands[%d]: %q repeated in scope %s", ErrInvalidMenu, i, e.Name, e.Scope)
		}
		seen[key] = true
	}
	return nil
}

func validateScope(e Entry) error {
	switch e.Scope {
	case ScopeDefault, ScopeAllPrivateChats, ScopeAllGroupChats, ScopeAllChatAdministrators:
		if e.ChatID != 0 || e.UserID != 0 {
			return fmt.Errorf("scope %s takes no chat_id or user_id", e.Scope)
		}
	case ScopeChat, ScopeChatAdministrators:
		if e.ChatID == 0 {
			return fmt.Errorf("scope %s requires chat_id", e.Scope)
		}
		if e.UserID != 0 {
			return fmt.Errorf("scope %s takes no user_id", e.Scope)
		}
	case ScopeChatMember:
		if e.ChatID == 0 || e.UserID == 0 {
			return fmt.Errorf("scope %s requires chat_id and user_id", e.Scope)
		}
	default:
		return fmt.Errorf("unknown scope %q", e.Scope)
	}
	return nil
}

func scopeKey(e Entry) string {
	return fmt.Sprintf("%s:%d:%d", e.Scope, e.ChatID, e.UserID)
}

// Groups splits the menu by scope, keeping the order in which scopes and
// commands first appear.
func (m Menu) Groups() []Group {
	var groups []Group
	index := map[string]int{}
	for _, e := range m.Commands {
		key := scopeKey(e)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Scope: telegram.BotCommandScope{Type: e.Scope, ChatID: e.ChatID, UserID: e.UserID}})
		}
		groups[i].Commands = append(groups[i].Commands, telegram.BotCommand{Command: e.Name, Description: e.Description})
	}
	return groups
}

type Setter interface {
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand, scope *telegram.BotCommandScope) error
}

// Apply pushes every scope group. All groups are attempted; failures are
// joined.
func Apply(ctx context.Context, setter Setter, m Menu, logger *slog.Logger) error {
	logger = logutil.OrDiscard(logger)
	var errs []error
	for _, g := range m.Groups() {
		var scope *telegram.BotCommandScope
		if g.Scope.Type != ScopeDefault {
			s := g.Scope
			scope = &s
		}
		if err := setter.SetMyCommands(ctx, g.Commands, scope); err != nil {
			logger.Warn("menu_apply_error", "scope", g.Scope.Type, "chat_id", g.Scope.ChatID, "error", err.Error())
			errs = append(errs, fmt.Errorf("scope %s: %w", g.Scope.Type, err))
			continue
		}
		logger.Info("menu_applied", "scope", g.Scope.Type, "chat_id", g.Scope.ChatID, "commands", len(g.Commands))
	}
	return errors.Join(errs...)
}
