package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/quailyquaily/jab/internal/telegram"
)

type scriptedTransport struct {
	mu         sync.Mutex
	batches    [][]telegram.Update
	errs       []error
	startErr   error
	startCalls int
	closeCalls int
	resumed    int64
	drained    func()
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) OnStartup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return s.startErr
}

func (s *scriptedTransport) Resume(mark int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = mark
}

func (s *scriptedTransport) FetchUpdates(ctx context.Context) ([]telegram.Update, error) {
	s.mu.Lock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	drained := s.drained
	s.mu.Unlock()
	if drained != nil {
		drained()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedTransport) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

type deletedMessage struct {
	chatID    int64
	messageID int64
}

type fakeCommunicator struct {
	mu       sync.Mutex
	sent     []string
	deleted  []deletedMessage
	failWith error
}

func (f *fakeCommunicator) SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return &telegram.Message{MessageID: int64(len(f.sent)), Chat: &telegram.Chat{ID: chatID}, Text: text}, f.failWith
}

func (f *fakeCommunicator) ReplyMessage(ctx context.Context, chatID, replyTo int64, text, parseMode string) (*telegram.Message, error) {
	return f.SendMessage(ctx, chatID, text)
}

func (f *fakeCommunicator) SendPhotoURL(ctx context.Context, chatID int64, url string, replyTo int64) (*telegram.Message, error) {
	return f.SendMessage(ctx, chatID, url)
}

func (f *fakeCommunicator) SendAnimationURL(ctx context.Context, chatID int64, url string, replyTo int64) (*telegram.Message, error) {
	return f.SendMessage(ctx, chatID, url)
}

func (f *fakeCommunicator) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
	return &telegram.Message{MessageID: messageID, Chat: &telegram.Chat{ID: toChatID}}, f.failWith
}

func (f *fakeCommunicator) CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
	return messageID, f.failWith
}

func (f *fakeCommunicator) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return f.failWith
}

func (f *fakeCommunicator) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, deletedMessage{chatID: chatID, messageID: messageID})
	return f.failWith
}

func (f *fakeCommunicator) deletedMessages() []deletedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deletedMessage(nil), f.deleted...)
}

// countingModule counts every command it sees; its state is the count.
type countingModule struct {
	mu       sync.Mutex
	count    int
	names    []string
	msgIDs   []int64
	err      error
	panicMsg string
	serErr   error
	deserErr error
}

func (m *countingModule) ExecuteCommand(ctx context.Context, comm Communicator, cmd Command, msg *telegram.Message) error {
	m.mu.Lock()
	m.count++
	m.names = append(m.names, cmd.Name)
	m.msgIDs = append(m.msgIDs, msg.MessageID)
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.err
}

func (m *countingModule) Serialize() ([]byte, error) {
	if m.serErr != nil {
		return nil, m.serErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return []byte(strconv.Itoa(m.count)), nil
}

func (m *countingModule) Deserialize(data []byte) error {
	if m.deserErr != nil {
		return m.deserErr
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return errors.New("counting module: bad state")
	}
	m.mu.Lock()
	m.count = n
	m.mu.Unlock()
	return nil
}

func (m *countingModule) seen() (int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, append([]string(nil), m.names...)
}

func (m *countingModule) messageIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.msgIDs...)
}

type memoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *memoryStore) Load() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func (s *memoryStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

func commandUpdate(id int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: id * 10,
			Chat:      &telegram.Chat{ID: 42, Type: "group"},
			Text:      text,
		},
	}
}

func commandUpdates(ids ...int64) []telegram.Update {
	out := make([]telegram.Update, 0, len(ids))
	for _, id := range ids {
		out = append(out, commandUpdate(id, "ping"))
	}
	return out
}
