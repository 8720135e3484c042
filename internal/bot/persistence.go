package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quailyquaily/jab/internal/fsstore"
	"github.com/quailyquaily/jab/internal/observability"
)

const SnapshotVersion = 1

var (
	ErrSnapshotVersion = errors.New("bot: unsupported snapshot version")
	ErrSnapshotCorrupt = errors.New("bot: corrupt snapshot")
)

// Snapshot is the decoded persistence envelope.
type Snapshot struct {
	HighWaterMark int64
	Modules       map[string][]byte
}

type snapshotEnvelope struct {
	Version      int               `msgpack:"version"`
	LastUpdateID int64             `msgpack:"last_update_id"`
	Modules      map[string][]byte `msgpack:"modules"`
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	modules := s.Modules
	if modules == nil {
		modules = map[string][]byte{}
	}
	data, err := msgpack.Marshal(snapshotEnvelope{
		Version:      SnapshotVersion,
		LastUpdateID: s.HighWaterMark,
		Modules:      modules,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var env snapshotEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, env.Version)
	}
	if env.LastUpdateID < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative last_update_id %d", ErrSnapshotCorrupt, env.LastUpdateID)
	}
	if env.Modules == nil {
		env.Modules = map[string][]byte{}
	}
	return Snapshot{HighWaterMark: env.LastUpdateID, Modules: env.Modules}, nil
}

// SnapshotStore reads and writes the encoded envelope.
type SnapshotStore interface {
	Load() ([]byte, bool, error)
	Save(data []byte) error
}

// FileSnapshotStore keeps the snapshot in a single file, replaced atomically
// on every save.
type FileSnapshotStore struct {
	Path string
	Opts fsstore.FileOptions
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{Path: strings.TrimSpace(path)}
}

func (s *FileSnapshotStore) Load() ([]byte, bool, error) {
	return fsstore.ReadFile(s.Path)
}

func (s *FileSnapshotStore) Save(data []byte) error {
	return fsstore.WriteFileAtomic(s.Path, data, s.Opts)
}

// Save serializes the high-water mark and every module's state. A module
// whose Serialize fails is left out of the envelope and logged; the rest are
// still saved.
func (b *Bot) Save() ([]byte, error) {
	modules := make(map[string][]byte, b.registry.Len())
	for _, name := range b.registry.Names() {
		m, _ := b.registry.Get(name)
		blob, err := m.Serialize()
		if err != nil {
			b.logger.Error("module_serialize_error", "module", name, "error", err.Error())
			continue
		}
		modules[name] = blob
	}
	return EncodeSnapshot(Snapshot{HighWaterMark: b.seq.Mark(), Modules: modules})
}

// Load restores the high-water mark and module state from data. Blobs for
// unknown modules are skipped. A module that fails to deserialize keeps its
// default state; its error is logged and returned joined with any others
// after every other module has been restored.
func (b *Bot) Load(data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	b.seq.Restore(snap.HighWaterMark)

	var errs []error
	for name, blob := range snap.Modules {
		m, ok := b.registry.Get(name)
		if !ok {
			b.logger.Warn("snapshot_module_unknown", "module", name, "bytes", len(blob))
			continue
		}
		if err := m.Deserialize(blob); err != nil {
			b.logger.Error("module_deserialize_error", "module", name, "error", err.Error())
			errs = append(errs, &ModuleError{Module: name, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) loadSnapshot() {
	if b.store == nil {
		return
	}
	data, ok, err := b.store.Load()
	if err != nil {
		observability.RecordSnapshot("load", err)
		b.logger.Error("snapshot_read_error", "error", err.Error())
		return
	}
	if !ok || len(data) == 0 {
		b.logger.Info("snapshot_missing")
		return
	}
	err = b.Load(data)
	observability.RecordSnapshot("load", err)
	if err != nil {
		b.logger.Error("snapshot_load_error", "error", err.Error())
		if errors.Is(err, ErrSnapshotCorrupt) || errors.Is(err, ErrSnapshotVersion) {
			return
		}
	}
	b.logger.Info("snapshot_loaded", "last_update_id", b.seq.Mark(), "bytes", len(data))
}

func (b *Bot) saveSnapshot() {
	if b.store == nil {
		return
	}
	data, err := b.Save()
	if err == nil {
		err = b.store.Save(data)
	}
	observability.RecordSnapshot("save", err)
	if err != nil {
		b.logger.Error("snapshot_save_error", "error", err.Error())
		return
	}
	b.lastSave = b.now()
	b.logger.Debug("snapshot_saved", "last_update_id", b.seq.Mark(), "bytes", len(data))
}
