package bot

import (
	"context"

	"github.com/quailyquaily/jab/internal/telegram"
)

// Communicator produces side effects in Telegram. Errors it returns are
// recoverable: callers log them and carry on.
type Communicator interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	ReplyMessage(ctx context.Context, chatID, replyTo int64, text, parseMode string) (*telegram.Message, error)
	SendPhotoURL(ctx context.Context, chatID int64, url string, replyTo int64) (*telegram.Message, error)
	SendAnimationURL(ctx context.Context, chatID int64, url string, replyTo int64) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error)
	SendChatAction(ctx context.Context, chatID int64, action string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

var _ Communicator = (*telegram.Client)(nil)

// Module is a command handler plugin with private, persisted state.
//
// ExecuteCommand is called for every command; modules ignore names they do
// not handle by returning nil. Calls for one module never overlap, and
// Serialize/Deserialize are never called concurrently with ExecuteCommand.
type Module interface {
	ExecuteCommand(ctx context.Context, comm Communicator, cmd Command, msg *telegram.Message) error
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
}
