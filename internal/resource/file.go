package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// File backs a Cell with a JSON file. A connected file watches its
// directory, so editors that replace the file by rename are picked up.
type File struct {
	path     string
	fallback ir.Value
	logger   *slog.Logger

	live *session
}

// NewFile creates a connector for the JSON file at path. A missing file
// reads as null.
func NewFile(path string, logger *slog.Logger) *File {
	return &File{
		path:     filepath.Clean(path),
		fallback: ir.Null{},
		logger:   loggerOr(logger).With("backend", ir.BackendFile, "path", path),
	}
}

func (f *File) load() Result {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ok(f.fallback)
	}
	if err != nil {
		return failure("read "+f.path, err)
	}
	v, err := ir.Unmarshal(data)
	if err != nil {
		return failure("decode "+f.path, err)
	}
	return ok(v)
}

func (f *File) SingleGet(r *Cell) {
	go func() { deliver(r, f.load()) }()
}

func (f *File) SetupConnection(r *Cell) {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(f.path))
		if err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		f.logger.Warn("watch failed", "error", err)
		r.UpdateResource(failure("watch "+f.path, err))
		return
	}

	f.live = startSession(func(ctx context.Context) {
		defer watcher.Close()
		deliver(r, f.load())

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-watcher.Events:
				if !open {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					deliver(r, f.load())
				}
			case err, open := <-watcher.Errors:
				if !open {
					return
				}
				f.logger.Warn("watch error", "error", err)
			}
		}
	})
}

func (f *File) TeardownConnection(*Cell) {
	f.live.stop()
	f.live = nil
}

// WriteAction replaces the file atomically with v's canonical JSON.
func (f *File) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	done := state.NewFuture[error]()
	watching := f.live != nil
	go func() {
		err := f.write(v)
		if err != nil {
			f.logger.Warn("write failed", "error", err)
		} else if !watching {
			deliver(r, ok(v))
		}
		settle(r, done, err)
	}()
	return done
}

func (f *File) write(v ir.Value) error {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

var _ Connector = (*File)(nil)
