package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/quailyquaily/jab/internal/telegram"
)

// BuiltinFunc is an orchestrator-level command. When a command name matches
// a built-in, modules are not consulted for that update.
type BuiltinFunc func(ctx context.Context, comm Communicator, cmd Command, msg *telegram.Message) error

const BuiltinDelete = "del"

var ErrNoReply = errors.New("command must reply to a message")

func defaultBuiltins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		BuiltinDelete: deleteRepliedMessage,
	}
}

// deleteRepliedMessage deletes the message the command replied to. The
// command message itself is left in place.
func deleteRepliedMessage(ctx context.Context, comm Communicator, cmd Command, msg *telegram.Message) error {
	target := msg.ReplyTo
	if target == nil {
		return fmt.Errorf("%s: %w", cmd.Name, ErrNoReply)
	}
	chatID := target.ChatID()
	if chatID == 0 {
		chatID = msg.ChatID()
	}
	if err := comm.DeleteMessage(ctx, chatID, target.MessageID); err != nil {
		return fmt.Errorf("%s: delete message %d: %w", cmd.Name, target.MessageID, err)
	}
	return nil
}
