package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/graph"
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/loop"
	"github.com/roach88/statewire/internal/metrics"
	"github.com/roach88/statewire/internal/resource"
	"github.com/roach88/statewire/internal/state"
	"github.com/roach88/statewire/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Duration time.Duration // 0 runs until interrupted
	Writes   []string      // name=json writes applied after subscribing
	Metrics  bool
	Database string // overrides the configured SQLite path
	Bolt     string // overrides the configured bbolt path
}

// WatchEvent is one notification printed by watch.
type WatchEvent struct {
	Session string           `json:"session"`
	Seq     int64            `json:"seq"`
	State   string           `json:"state"`
	Value   ir.Value         `json:"value,omitempty"`
	Error   *state.ReadError `json:"error,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <graph.cue> [state...]",
		Short: "Subscribe to graph states and print every notification",
		Long: `Build a graph on a live event loop, subscribe to states and print what
they deliver. With no state names every state is watched.

Resource states connect to their real backends. SQLite and bbolt stores
are opened only when the graph uses them.

Examples:
  statewire watch ./graphs/counter.cue
  statewire watch ./graphs/counter.cue sum --write a=5 --duration 2s
  statewire watch ./graphs/feeds.cue --metrics --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringArrayVar(&opts.Writes, "write", nil, "write name=json once subscribed (repeatable)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "serve Prometheus metrics on the configured address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite store for sqlite resources")
	cmd.Flags().StringVar(&opts.Bolt, "bolt", "", "bbolt database for bolt resources")

	return cmd
}

type pendingWrite struct {
	name  string
	value ir.Value
}

func runWatch(opts *WatchOptions, path string, names []string, cmd *cobra.Command) error {
	logger := opts.logger()

	spec, err := loadGraphOrExit(path)
	if err != nil {
		return err
	}
	writes, err := parseWrites(opts.Writes)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --write", err)
	}

	env, closeEnv, err := openEnv(opts, spec, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open resources", err)
	}
	defer closeEnv()

	l := loop.New(loop.WithLogger(logger))
	g, err := graph.Build(spec, l, env,
		graph.WithLogger(logger),
		graph.WithTiming(opts.Config.Resource.Timing),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build graph", err)
	}

	if len(names) == 0 {
		names = g.Names()
	}
	for _, name := range names {
		if _, found := g.Node(name); !found {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown state %q", name))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if opts.Metrics {
		shutdown := serveMetrics(opts.Config.MetricsAddr, logger)
		defer shutdown()
	}

	session := uuid.Must(uuid.NewV7()).String()
	printer := &watchPrinter{
		out:     cmd.OutOrStdout(),
		json:    opts.Format == "json",
		session: session,
		clock:   loop.NewClock(),
	}
	logger.Info("watching graph", "graph", spec.Name, "states", len(names), "session", session)

	// subs is only touched on the loop goroutine.
	var subs []func()
	l.Post(func() {
		for _, name := range names {
			node, _ := g.Node(name)
			cb := node.Subscribe(state.NewCallback(func(r graph.Result) {
				printer.notify(name, r)
			}), true)
			subs = append(subs, func() { node.Unsubscribe(cb) })
		}
		for _, w := range writes {
			g.Write(w.name, w.value).Then(func(err error) {
				if err != nil {
					logger.Warn("write refused", "state", w.name, "error", err)
				}
			})
		}
	})

	go func() {
		<-ctx.Done()
		l.Post(func() {
			for _, unsubscribe := range subs {
				unsubscribe()
			}
			g.Disconnect()
		})
		l.Close()
	}()

	if err := l.Run(context.Background()); err != nil {
		return WrapExitError(ExitFailure, "event loop error", err)
	}
	logger.Info("watch stopped", "session", session, "notifications", printer.clock.Current())
	return nil
}

// parseWrites parses name=json pairs.
func parseWrites(raw []string) ([]pendingWrite, error) {
	writes := make([]pendingWrite, 0, len(raw))
	for _, r := range raw {
		name, value, found := strings.Cut(r, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("%q: want name=json", r)
		}
		v, err := ir.Unmarshal([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", r, err)
		}
		writes = append(writes, pendingWrite{name: name, value: v})
	}
	return writes, nil
}

// openEnv prepares the resource environment, opening the stores the graph
// needs. The returned func closes them.
func openEnv(opts *WatchOptions, spec *ir.GraphSpec, logger *slog.Logger) (*resource.Env, func(), error) {
	cfg := opts.Config
	env := &resource.Env{
		Logger:       logger,
		PollInterval: cfg.Resource.PollInterval,
		MaxRequests:  cfg.Resource.MaxRequests,
		Burst:        cfg.Resource.Burst,
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("close failed", "error", err)
			}
		}
	}

	backends := make(map[string]bool)
	for _, st := range spec.States {
		if st.Resource != nil {
			backends[st.Resource.Backend] = true
		}
	}

	if backends[ir.BackendSQLite] {
		path := firstNonEmpty(opts.Database, cfg.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, err
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, st.Close)
		env.Store = st
		logger.Debug("sqlite store open", "path", path)
	}
	if backends[ir.BackendBolt] {
		path := firstNonEmpty(opts.Bolt, cfg.BoltPath)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			closeAll()
			return nil, nil, err
		}
		db, err := resource.OpenBolt(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		env.Bolt = db
		logger.Debug("bolt database open", "path", path)
	}
	return env, closeAll, nil
}

// serveMetrics serves the Prometheus registry until the returned func is
// called.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// watchPrinter renders notifications. It only runs on the loop goroutine.
type watchPrinter struct {
	out     io.Writer
	json    bool
	session string
	clock   *loop.Clock
}

func (p *watchPrinter) notify(name string, r graph.Result) {
	ev := WatchEvent{Session: p.session, Seq: p.clock.Next(), State: name}
	if r.IsErr() {
		e := r.Error()
		ev.Error = &e
	} else {
		ev.Value = r.Value()
	}

	if p.json {
		data, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(p.out, "{\"state\":%q,\"marshal_error\":%q}\n", name, err.Error())
			return
		}
		fmt.Fprintf(p.out, "%s\n", data)
		return
	}
	if ev.Error != nil {
		fmt.Fprintf(p.out, "[%d] %s error %s: %s\n", ev.Seq, name, ev.Error.Code, ev.Error.Reason)
		return
	}
	fmt.Fprintf(p.out, "[%d] %s = %s\n", ev.Seq, name, ir.Format(ev.Value))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
