package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/telegram"
)

var (
	ErrDuplicateModule = errors.New("bot: module already registered")
	ErrInvalidModule   = errors.New("bot: invalid module")
)

// ModuleError attributes a dispatch failure to a module.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// Registry holds modules by unique name. It is filled before the loop starts
// and only read afterwards.
type Registry struct {
	modules map[string]Module
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		modules: make(map[string]Module),
		logger:  logutil.OrDiscard(logger),
	}
}

// Register inserts m under name unless the name is taken. A rejected
// registration is logged and leaves the existing module in place.
func (r *Registry) Register(name string, m Module) error {
	name = strings.TrimSpace(name)
	if name == "" || m == nil {
		r.logger.Error("module_register_invalid", "module", name)
		return fmt.Errorf("%w: name=%q", ErrInvalidModule, name)
	}
	if _, exists := r.modules[name]; exists {
		r.logger.Error("module_register_duplicate", "module", name)
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	r.modules[name] = m
	r.logger.Info("module_registered", "module", name)
	return nil
}

func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

func (r *Registry) Len() int { return len(r.modules) }

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs cmd on every module concurrently and waits for all of them.
// Failures, panics included, are logged with the module name and returned;
// they never stop the other modules.
func (r *Registry) Dispatch(ctx context.Context, comm Communicator, cmd Command, msg *telegram.Message) []*ModuleError {
	if len(r.modules) == 0 {
		return nil
	}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []*ModuleError
	)
	for name, m := range r.modules {
		wg.Add(1)
		go func(name string, m Module) {
			defer wg.Done()
			start := time.Now()
			err := executeIsolated(ctx, m, comm, cmd, msg)
			observability.RecordModuleExecution(name, time.Since(start), err)
			if err == nil {
				return
			}
			r.logger.Error("module_execute_error",
				"module", name,
				"command", cmd.Name,
				"chat_id", msg.ChatID(),
				"error", err.Error(),
			)
			mu.Lock()
			failed = append(failed, &ModuleError{Module: name, Err: err})
			mu.Unlock()
		}(name, m)
	}
	wg.Wait()
	sort.Slice(failed, func(i, j int) bool { return failed[i].Module < failed[j].Module })
	return failed
}

func executeIsolated(ctx context.Context, m Module, comm Communicator, cmd Command, msg *telegram.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return m.ExecuteCommand(ctx, comm, cmd, msg)
}
