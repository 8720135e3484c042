package telegram

import (
	"context"
	"strings"
)

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.ReplyMessage(ctx, chatID, 0, text, "")
}

// ReplyMessage sends text to chatID, replying to replyTo when it is non-zero.
func (c *Client) ReplyMessage(ctx context.Context, chatID, replyTo int64, text, parseMode string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	var out Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
		ReplyToMessageID:      replyTo,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type sendPhotoRequest struct {
	ChatID           int64  `json:"chat_id"`
	Photo            string `json:"photo"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

func (c *Client) SendPhotoURL(ctx context.Context, chatID int64, url string, replyTo int64) (*Message, error) {
	var out Message
	if err := c.call(ctx, "sendPhoto", sendPhotoRequest{ChatID: chatID, Photo: url, ReplyToMessageID: replyTo}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type sendAnimationRequest struct {
	ChatID           int64  `json:"chat_id"`
	Animation        string `json:"animation"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

func (c *Client) SendAnimationURL(ctx context.Context, chatID int64, url string, replyTo int64) (*Message, error) {
	var out Message
	if err := c.call(ctx, "sendAnimation", sendAnimationRequest{ChatID: chatID, Animation: url, ReplyToMessageID: replyTo}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type messageRefRequest struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id,omitempty"`
	MessageID  int64 `json:"message_id"`
}

func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*Message, error) {
	var out Message
	if err := c.call(ctx, "forwardMessage", messageRefRequest{ChatID: toChatID, FromChatID: fromChatID, MessageID: messageID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CopyMessage copies a message without the forward header and returns the new message id.
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "copyMessage", messageRefRequest{ChatID: toChatID, FromChatID: fromChatID, MessageID: messageID}, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

type sendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	var ok bool
	return c.call(ctx, "sendChatAction", sendChatActionRequest{ChatID: chatID, Action: action}, &ok)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	var ok bool
	return c.call(ctx, "deleteMessage", messageRefRequest{ChatID: chatID, MessageID: messageID}, &ok)
}

type setMyCommandsRequest struct {
	Commands []BotCommand     `json:"commands"`
	Scope    *BotCommandScope `json:"scope,omitempty"`
}

// SetMyCommands replaces the command menu shown for scope (nil means default).
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand, scope *BotCommandScope) error {
	var ok bool
	return c.call(ctx, "setMyCommands", setMyCommandsRequest{Commands: commands, Scope: scope}, &ok)
}
