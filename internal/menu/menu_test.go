package menu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quailyquaily/jab/internal/telegram"
)

const sampleMenu = `
commands:
  - name: /save
    description: Save the replied message
  - name: random
    description: Forward a saved message
  - name: count
    description: How many messages are saved
    scope: chat
    chat_id: -100123
  - name: del
    description: Delete the replied message
    scope: all_chat_administrators
`

func TestParseGroupsByScope(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(sampleMenu))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	groups := m.Groups()
	if len(groups) != 3 {
		t.Fatalf("Groups() = %d, want 3", len(groups))
	}
	if groups[0].Scope.Type != ScopeDefault || len(groups[0].Commands) != 2 || groups[0].Commands[0].Command != "save" {
		t.Fatalf("default group = %+v", groups[0])
	}
	if groups[1].Scope.Type != ScopeChat || groups[1].Scope.ChatID != -100123 {
		t.Fatalf("chat group scope = %+v", groups[1].Scope)
	}
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"upper case name": "commands:\n  - name: Save\n    description: x\n",
		"long name":       "commands:\n  - name: " + strings.Repeat("a", 33) + "\n    description: x\n",
		"no description":  "commands:\n  - name: save\n",
		"long desc":       "commands:\n  - name: save\n    description: " + strings.Repeat("d", 257) + "\n",
		"unknown scope":   "commands:\n  - name: save\n    description: x\n    scope: everyone\n",
		"chat no id":      "commands:\n  - name: save\n    description: x\n    scope: chat\n",
		"member no user":  "commands:\n  - name: save\n    description: x\n    scope: chat_member\n    chat_id: 1\n",
		"duplicate":       "commands:\n  - name: save\n    description: x\n  - name: save\n    description: y\n",
		"not yaml":        "commands: [",
	}
	for name, raw := range cases {
		raw := raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidMenu) {
				t.Fatalf("Parse() error = %v, want ErrInvalidMenu", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, ok, err := Load(filepath.Join(t.TempDir(), "commands.yaml"))
	if err != nil || ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "commands.yaml")
	if err := os.WriteFile(path, []byte(sampleMenu), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	m, ok, err := Load(path)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if len(m.Commands) != 4 {
		t.Fatalf("commands = %d, want 4", len(m.Commands))
	}
}

type recordingSetter struct {
	scopes []*telegram.BotCommandScope
	failOn string
}

func (r *recordingSetter) SetMyCommands(ctx context.Context, commands []telegram.BotCommand, scope *telegram.BotCommandScope) error {
	r.scopes = append(r.scopes, scope)
	if scope != nil && scope.Type == r.failOn {
		return errors.New("rejected")
	}
	return nil
}

func TestApplyCallsEveryScope(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(sampleMenu))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	setter := &recordingSetter{failOn: ScopeChat}
	err = Apply(context.Background(), setter, m, nil)
	if err == nil || !strings.Contains(err.Error(), "scope chat") {
		t.Fatalf("Apply() error = %v, want chat scope failure", err)
	}
	if len(setter.scopes) != 3 {
		t.Fatalf("SetMyCommands calls = %d, want 3", len(setter.scopes))
	}
	if setter.scopes[0] != nil {
		t.Fatalf("default scope sent as %+v, want nil", setter.scopes[0])
	}
	if setter.scopes[2] == nil || setter.scopes[2].Type != ScopeAllChatAdministrators {
		t.Fatalf("third scope = %+v", setter.scopes[2])
	}
}
