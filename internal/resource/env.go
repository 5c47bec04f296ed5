package resource

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// Env holds the shared handles backends draw on. Zero fields disable the
// backends that need them.
type Env struct {
	Store  *store.Store
	Bolt   *bolt.DB
	Client *http.Client
	Logger *slog.Logger

	// PollInterval applies to polling backends whose spec sets no poll_ms.
	PollInterval time.Duration
	// MaxRequests caps HTTP requests per second per resource; 0 is unlimited.
	MaxRequests float64
	Burst       int

	memories map[string]*Memory
}

// Memory returns the in-process source for key, creating it with initial on
// first use.
func (e *Env) Memory(key string, initial ir.Value) *Memory {
	if e.memories == nil {
		e.memories = make(map[string]*Memory)
	}
	m, ok := e.memories[key]
	if !ok {
		m = NewMemory(initial)
		e.memories[key] = m
	}
	return m
}

// LookupMemory returns the in-process source for key, if one was created.
func (e *Env) LookupMemory(key string) (*Memory, bool) {
	m, ok := e.memories[key]
	return m, ok
}

// Connector builds the connector for a resource state.
func (e *Env) Connector(spec ir.StateSpec) (Connector, error) {
	rs := spec.Resource
	if rs == nil {
		return nil, fmt.Errorf("state %q: missing resource block", spec.Name)
	}
	key := rs.Key
	if key == "" {
		key = spec.Name
	}
	pollEvery := time.Duration(rs.PollMS) * time.Millisecond
	if pollEvery == 0 {
		pollEvery = e.PollInterval
	}
	logger := loggerOr(e.Logger).With("state", spec.Name)

	switch rs.Backend {
	case ir.BackendMemory:
		return e.Memory(key, spec.Initial), nil
	case ir.BackendSQLite:
		if e.Store == nil {
			return nil, fmt.Errorf("state %q: sqlite backend needs a store", spec.Name)
		}
		opts := []SQLiteOption{WithStoreLogger(logger)}
		if pollEvery > 0 {
			opts = append(opts, WithPollInterval(pollEvery))
		}
		if spec.Initial != nil {
			opts = append(opts, WithFallback(spec.Initial))
		}
		return NewSQLiteCell(e.Store, key, opts...), nil
	case ir.BackendBolt:
		if e.Bolt == nil {
			return nil, fmt.Errorf("state %q: bolt backend needs a database", spec.Name)
		}
		return NewBoltVar(e.Bolt, key, pollEvery, logger), nil
	case ir.BackendFile:
		if rs.Path == "" {
			return nil, fmt.Errorf("state %q: file backend needs a path", spec.Name)
		}
		return NewFile(rs.Path, logger), nil
	case ir.BackendHTTP:
		if rs.URL == "" {
			return nil, fmt.Errorf("state %q: http backend needs a url", spec.Name)
		}
		opts := []HTTPOption{WithHTTPLogger(logger)}
		if e.Client != nil {
			opts = append(opts, WithClient(e.Client))
		}
		if pollEvery > 0 {
			opts = append(opts, WithHTTPPoll(pollEvery))
		}
		if e.MaxRequests > 0 {
			opts = append(opts, WithRateLimit(e.MaxRequests, max(e.Burst, 1)))
		}
		return NewHTTP(rs.URL, opts...), nil
	case ir.BackendWebSocket:
		if rs.URL == "" {
			return nil, fmt.Errorf("state %q: websocket backend needs a url", spec.Name)
		}
		return NewWebSocket(rs.URL, logger), nil
	default:
		return nil, fmt.Errorf("state %q: unknown backend %q", spec.Name, rs.Backend)
	}
}
