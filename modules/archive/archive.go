// Package archive remembers messages per chat and forwards a random one on
// request.
//
//	/save    (reply) remember the replied message
//	/random  forward a random remembered message of this chat
//	/forget  (reply) drop the replied message
//	/count   how many messages this chat remembers
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quailyquaily/jab/internal/bot"
	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/telegram"
)

const Name = "archive"

const (
	CommandSave    = "save"
	CommandRandom  = "random"
	CommandForward = "forward"
	CommandForget  = "forget"
	CommandCount   = "count"
)

// Entry points at a message that can be forwarded later.
type Entry struct {
	ChatID    int64     `msgpack:"chat_id"`
	MessageID int64     `msgpack:"message_id"`
	Author    string    `msgpack:"author,omitempty"`
	SavedBy   int64     `msgpack:"saved_by,omitempty"`
	SavedAt   time.Time `msgpack:"saved_at"`
}

type chatArchive struct {
	Entries []Entry `msgpack:"entries"`
}

type state struct {
	Chats map[int64]*chatArchive `msgpack:"chats"`
}

type Module struct {
	mu     sync.Mutex
	chats  map[int64]*chatArchive
	pick   func(n int) int
	now    func() time.Time
	logger *slog.Logger
}

var _ bot.Module = (*Module)(nil)

func New(logger *slog.Logger) *Module {
	return &Module{
		chats:  make(map[int64]*chatArchive),
		pick:   rand.IntN,
		now:    time.Now,
		logger: logutil.OrDiscard(logger),
	}
}

func (m *Module) ExecuteCommand(ctx context.Context, comm bot.Communicator, cmd bot.Command, msg *telegram.Message) error {
	switch cmd.Name {
	case CommandSave:
		return m.save(ctx, comm, msg)
	case CommandRandom, CommandForward:
		return m.random(ctx, comm, msg)
	case CommandForget:
		return m.forget(ctx, comm, msg)
	case CommandCount:
		return m.count(ctx, comm, msg)
	default:
		return nil
	}
}

func (m *Module) save(ctx context.Context, comm bot.Communicator, msg *telegram.Message) error {
	target := msg.ReplyTo
	if target == nil {
		return fmt.Errorf("%s: %w", CommandSave, bot.ErrNoReply)
	}
	chatID := msg.ChatID()
	entry := Entry{
		ChatID:    chatID,
		MessageID: target.MessageID,
		SavedAt:   m.now().UTC(),
	}
	if target.From != nil {
		entry.Author = telegram.DisplayName(target.From)
	}
	if msg.From != nil {
		entry.SavedBy = msg.From.ID
	}

	m.mu.Lock()
	added := m.chat(chatID).add(entry)
	m.mu.Unlock()

	m.logger.Debug("archive_save", "chat_id", chatID, "message_id", target.MessageID, "added", added)
	if !added {
		_, err := comm.ReplyMessage(ctx, chatID, msg.MessageID, "Already saved.", "")
		return err
	}
	reply, mode := "Saved!", ""
	if entry.Author != "" {
		reply = fmt.Sprintf("Saved\\! From *%s*", telegram.EscapeMarkdownV2(entry.Author))
		mode = telegram.ParseModeMarkdownV2
	}
	_, err := comm.ReplyMessage(ctx, chatID, msg.MessageID, reply, mode)
	return err
}

func (m *Module) random(ctx context.Context, comm bot.Communicator, msg *telegram.Message) error {
	chatID := msg.ChatID()
	m.mu.Lock()
	var (
		entry Entry
		found bool
	)
	if a := m.chats[chatID]; a != nil && len(a.Entries) > 0 {
		entry = a.Entries[m.pick(len(a.Entries))]
		found = true
	}
	m.mu.Unlock()

	if !found {
		_, err := comm.ReplyMessage(ctx, chatID, msg.MessageID, "No messages saved", "")
		return err
	}
	if _, err := comm.ForwardMessage(ctx, chatID, entry.ChatID, entry.MessageID); err != nil {
		return fmt.Errorf("forward message %d: %w", entry.MessageID, err)
	}
	return nil
}

func (m *Module) forget(ctx context.Context, comm bot.Communicator, msg *telegram.Message) error {
	target := msg.ReplyTo
	if target == nil {
		return fmt.Errorf("%s: %w", CommandForget, bot.ErrNoReply)
	}
	chatID := msg.ChatID()

	m.mu.Lock()
	removed := false
	if a := m.chats[chatID]; a != nil {
		removed = a.remove(target.MessageID)
		if len(a.Entries) == 0 {
			delete(m.chats, chatID)
		}
	}
	m.mu.Unlock()

	reply := "Done!"
	if !removed {
		reply = "That message is not saved."
	}
	_, err := comm.ReplyMessage(ctx, chatID, msg.MessageID, reply, "")
	return err
}

func (m *Module) count(ctx context.Context, comm bot.Communicator, msg *telegram.Message) error {
	chatID := msg.ChatID()
	m.mu.Lock()
	n := 0
	if a := m.chats[chatID]; a != nil {
		n = len(a.Entries)
	}
	m.mu.Unlock()
	_, err := comm.ReplyMessage(ctx, chatID, msg.MessageID, fmt.Sprintf("%d messages saved", n), "")
	return err
}

// Len reports how many messages chatID remembers.
func (m *Module) Len(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.chats[chatID]; a != nil {
		return len(a.Entries)
	}
	return 0
}

func (m *Module) Serialize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return msgpack.Marshal(state{Chats: m.chats})
}

func (m *Module) Deserialize(data []byte) error {
	var s state
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode archive state: %w", err)
	}
	chats := make(map[int64]*chatArchive, len(s.Chats))
	for id, a := range s.Chats {
		if a == nil || len(a.Entries) == 0 {
			continue
		}
		sort.SliceStable(a.Entries, func(i, j int) bool { return a.Entries[i].SavedAt.Before(a.Entries[j].SavedAt) })
		chats[id] = a
	}
	m.mu.Lock()
	m.chats = chats
	m.mu.Unlock()
	return nil
}

func (m *Module) chat(chatID int64) *chatArchive {
	a := m.chats[chatID]
	if a == nil {
		a = &chatArchive{}
		m.chats[chatID] = a
	}
	return a
}

func (a *chatArchive) add(e Entry) bool {
	for _, existing := range a.Entries {
		if existing.MessageID == e.MessageID {
			return false
		}
	}
	a.Entries = append(a.Entries, e)
	return true
}

func (a *chatArchive) remove(messageID int64) bool {
	for i, e := range a.Entries {
		if e.MessageID == messageID {
			a.Entries = append(a.Entries[:i], a.Entries[i+1:]...)
			return true
		}
	}
	return false
}
