// Package app wires the daemon together: WM client, tracking store,
// filter engine, event dispatch, and the control socket.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"i3pm/internal/config"
	"i3pm/internal/dispatch"
	"i3pm/internal/domain"
	"i3pm/internal/domain/events"
	"i3pm/internal/filter"
	"i3pm/internal/hub"
	"i3pm/internal/i3"
	"i3pm/internal/launch"
	"i3pm/internal/procenv"
	"i3pm/internal/project"
	"i3pm/internal/rpc"
	"i3pm/internal/rpc/handler"
	"i3pm/internal/rpc/handler/methods"
	"i3pm/internal/rpc/transport"
	"i3pm/internal/state"
)

// State is the daemon lifecycle state reported over daemon.status and
// pushed as daemon_state notifications.
type State string

const (
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateDegraded     State = "degraded"
	StateReconnecting State = "reconnecting"
	StateStopping     State = "stopping"
)

// persistInterval bounds how stale the on-disk window state can get from
// event-driven mutations alone. Filter operations persist immediately.
const persistInterval = 30 * time.Second

// App is the daemon: it owns every component and coordinates startup,
// the WM reconnect loop, and shutdown.
type App struct {
	cfg     *config.Config
	version string

	hub        *hub.Hub
	wm         *i3.Client
	store      *state.Store
	projects   *project.Registry
	watcher    *project.Watcher
	launches   *launch.Registry
	env        procenv.Reader
	queue      *dispatch.Queue
	engine     *filter.Engine
	dispatcher *dispatch.Dispatcher

	rpcServer  *rpc.Server
	unixServer *transport.UnixServer

	mu        sync.RWMutex
	state     State
	startedAt time.Time

	sweepStop chan struct{}
}

// New creates the application with all its components wired but not
// started.
func New(cfg *config.Config, version string) (*App, error) {
	wm, err := i3.NewClient(cfg.WM.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("wm socket: %w", err)
	}
	wm.SetTimeout(time.Duration(cfg.WM.TimeoutMS) * time.Millisecond)

	a := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		wm:        wm,
		store:     state.NewStore(cfg.WindowStateFile()),
		projects:  project.NewRegistry(cfg.State.ProjectsDir),
		launches:  launch.NewRegistry(time.Duration(cfg.Launch.ExpiryMS) * time.Millisecond),
		env:       procenv.NewReader(),
		queue:     dispatch.NewQueue(cfg.Queue.Depth),
		state:     StateStarting,
		sweepStop: make(chan struct{}),
	}
	a.engine = filter.NewEngine(a.wm, a.store, a.env, a.hub)
	a.dispatcher = dispatch.New(a.wm, a.store, a.launches, a.env, a.hub, a.queue)
	a.watcher = project.NewWatcher(a.projects, time.Duration(cfg.Watcher.DebounceMS)*time.Millisecond)
	return a, nil
}

// Run starts everything and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.startedAt = time.Now()

	log.Info().
		Str("version", a.version).
		Str("socket", a.cfg.Socket.Path).
		Msg("starting i3pm daemon")

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	a.hub.Subscribe(hub.NewLogSubscriber("event-logger", func(event events.Event) {
		log.Trace().Str("event_type", string(event.Type())).Msg("event")
	}))

	if err := os.MkdirAll(a.cfg.State.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.MkdirAll(a.cfg.State.ProjectsDir, 0755); err != nil {
		return fmt.Errorf("failed to create projects directory: %w", err)
	}

	a.store.Load()
	if err := a.projects.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load projects")
	}

	if a.cfg.Watcher.Enabled {
		if err := a.watcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to start project watcher")
		}
	}

	go a.queue.Run()
	go a.launches.RunSweeper(a.sweepStop)
	go a.persistLoop(ctx)

	// The daemon comes up even when the WM is unreachable; the event loop
	// keeps trying and flips the state once the stream connects.
	if err := a.wm.Connect(); err != nil {
		log.Warn().Err(err).Msg("window manager unreachable at startup")
	}

	registry := handler.NewRegistry()
	a.rpcServer = rpc.NewServer(handler.NewDispatcher(registry), a.hub)
	methods.NewProjectService(a, a.projects).RegisterMethods(registry)
	methods.NewWindowsService(a.store).RegisterMethods(registry)
	methods.NewLaunchService(a.launches).RegisterMethods(registry)
	methods.NewDaemonService(a, a.rpcServer).RegisterMethods(registry)

	a.unixServer = transport.NewUnixServer(a.cfg.Socket.Path)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.unixServer.Start(ctx, func(t transport.Transport) {
			_ = a.rpcServer.ServeTransport(ctx, t)
		})
	}()

	if a.cfg.Socket.Stdio {
		go func() {
			_ = a.rpcServer.ServeTransport(ctx, transport.NewStdioTransport())
		}()
	}

	go a.eventLoop(ctx)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			a.shutdown()
			return fmt.Errorf("control server failed: %w", err)
		}
	}

	return a.shutdown()
}

// eventLoop owns the WM subscription. Each (re)connect reconciles the
// store against a fresh tree, then feeds the stream to the dispatcher
// until it breaks; disconnects degrade the daemon and trigger backoff.
func (a *App) eventLoop(ctx context.Context) {
	backoffMin := time.Duration(a.cfg.WM.ReconnectMinMS) * time.Millisecond
	backoffMax := time.Duration(a.cfg.WM.ReconnectMaxMS) * time.Millisecond
	backoff := backoffMin

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := i3.Subscribe(ctx, a.cfg.WM.SocketPath, "window", "workspace", "output")
		if err != nil {
			a.setState(StateReconnecting)
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("wm event subscription failed")

			// Jitter avoids thundering retries when the WM restarts.
			sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/4+1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffMin

		a.reconcile(ctx)
		a.setState(StateRunning)

		// A full event buffer means the dispatcher missed events and the
		// store may have drifted; reconcile without waiting for the next
		// reconnect.
		watchDone := make(chan struct{})
		go func() {
			for {
				select {
				case <-stream.Desync():
					log.Warn().Msg("event stream dropped events, reconciling")
					a.reconcile(ctx)
				case <-watchDone:
					return
				}
			}
		}()

		// Blocks until the stream dies or ctx is cancelled.
		a.dispatcher.Run(ctx, stream.Events())
		close(watchDone)
		stream.Close()

		if ctx.Err() != nil {
			return
		}
		a.setState(StateDegraded)
		log.Warn().Msg("wm event stream lost")
	}
}

// reconcile aligns the store with the live tree on the mutation queue so
// it cannot interleave with in-flight operations.
func (a *App) reconcile(ctx context.Context) {
	err := a.queue.Submit(ctx, "reconcile", func(opCtx context.Context) error {
		tree, err := a.wm.GetTree(opCtx)
		if err != nil {
			return err
		}
		a.store.Reconcile(tree)
		return a.store.Persist()
	})
	if err != nil {
		log.Warn().Err(err).Msg("state reconciliation failed")
	}
}

// persistLoop writes event-driven store changes to disk periodically.
func (a *App) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.store.Persist(); err != nil {
				log.Warn().Err(err).Msg("periodic state persist failed")
			}
		}
	}
}

func (a *App) shutdown() error {
	a.setState(StateStopping)
	log.Info().Msg("shutting down...")

	// Give the daemon_state notification a chance to reach clients.
	time.Sleep(100 * time.Millisecond)

	close(a.sweepStop)
	a.watcher.Stop()

	// Drains in-flight operations before the final persist so their
	// mutations land on disk.
	a.queue.Close()

	if err := a.store.Persist(); err != nil {
		log.Error().Err(err).Msg("failed to persist window state on shutdown")
	}

	if a.unixServer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.unixServer.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("control server stop failed")
		}
		cancel()
	}
	if a.rpcServer != nil {
		_ = a.rpcServer.Stop()
	}

	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}
	return a.wm.Close()
}

// setState transitions the lifecycle state and announces it on the hub.
func (a *App) setState(s State) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	prev := a.state
	a.state = s
	a.mu.Unlock()

	log.Info().Str("from", string(prev)).Str("to", string(s)).Msg("daemon state changed")
	a.hub.Publish(events.NewDaemonStateEvent(string(s)))
}

func (a *App) currentState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// submit runs a mutation on the queue under the configured operation
// timeout, unless the caller brought a tighter deadline.
func (a *App) submit(ctx context.Context, name string, op dispatch.Op) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		timeout := time.Duration(a.cfg.Queue.OperationTimeoutMS) * time.Millisecond
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.queue.Submit(ctx, name, op)
}

// checkOperational rejects mutations while the WM is unreachable.
// Queries keep working on the last known state; mutations would only
// fail half-way.
func (a *App) checkOperational() error {
	if a.currentState() != StateRunning {
		return domain.ErrDaemonDegraded
	}
	return nil
}

// --- methods.Switcher ---

// SwitchProject hides the active project's windows, restores the named
// project's, and moves the active pointer.
func (a *App) SwitchProject(ctx context.Context, name string) (*filter.SwitchResult, error) {
	var result *filter.SwitchResult
	err := a.submit(ctx, "project.switch", func(opCtx context.Context) error {
		if err := a.checkOperational(); err != nil {
			return err
		}
		from := a.projects.Active().Name
		r, err := a.engine.Switch(opCtx, from, name)
		if err != nil {
			return err
		}
		if err := a.projects.SetActive(name); err != nil {
			log.Warn().Err(err).Str("project", name).Msg("failed to persist active project")
		}
		a.hub.Publish(events.NewProjectSwitchedEvent(from, name))
		result = r
		return a.store.Persist()
	})
	return result, err
}

// SwitchWithFiltering composes hide(from) + restore(to) without touching
// the active pointer.
func (a *App) SwitchWithFiltering(ctx context.Context, from, to string) (*filter.SwitchResult, error) {
	var result *filter.SwitchResult
	err := a.submit(ctx, "project.switchWithFiltering", func(opCtx context.Context) error {
		if err := a.checkOperational(); err != nil {
			return err
		}
		r, err := a.engine.Switch(opCtx, from, to)
		if err != nil {
			return err
		}
		result = r
		return a.store.Persist()
	})
	return result, err
}

// HideWindows hides the named project's windows.
func (a *App) HideWindows(ctx context.Context, name string) (*filter.HideResult, error) {
	var result *filter.HideResult
	err := a.submit(ctx, "project.hideWindows", func(opCtx context.Context) error {
		if err := a.checkOperational(); err != nil {
			return err
		}
		r, err := a.engine.Hide(opCtx, name)
		if err != nil {
			return err
		}
		result = r
		return a.store.Persist()
	})
	return result, err
}

// RestoreWindows restores the named project's windows.
func (a *App) RestoreWindows(ctx context.Context, name string) (*filter.RestoreResult, error) {
	var result *filter.RestoreResult
	err := a.submit(ctx, "project.restoreWindows", func(opCtx context.Context) error {
		if err := a.checkOperational(); err != nil {
			return err
		}
		r, err := a.engine.Restore(opCtx, name)
		if err != nil {
			return err
		}
		result = r
		return a.store.Persist()
	})
	return result, err
}

// --- methods.StatusProvider ---

// State returns the daemon lifecycle state.
func (a *App) State() string {
	return string(a.currentState())
}

// ActiveProject returns the active project name, empty when none.
func (a *App) ActiveProject() string {
	return a.projects.Active().Name
}

// TrackedWindows returns the number of tracked windows.
func (a *App) TrackedWindows() int {
	return a.store.Len()
}

// HiddenWindows returns the number of scratchpad-resident windows.
func (a *App) HiddenWindows() int {
	n := 0
	for _, w := range a.store.Snapshot() {
		if w.Hidden {
			n++
		}
	}
	return n
}

// PendingLaunches returns the number of unmatched launch registrations.
func (a *App) PendingLaunches() int {
	return a.launches.Len()
}

// ConnectedClients returns the number of connected control clients.
func (a *App) ConnectedClients() int {
	if a.rpcServer == nil {
		return 0
	}
	return a.rpcServer.ClientCount()
}

// UptimeSeconds returns the daemon uptime in seconds.
func (a *App) UptimeSeconds() int64 {
	return int64(time.Since(a.startedAt).Seconds())
}

// Version returns the daemon version.
func (a *App) Version() string {
	return a.version
}

// SocketPath returns the control socket path.
func (a *App) SocketPath() string {
	return a.cfg.Socket.Path
}

var (
	_ methods.Switcher       = (*App)(nil)
	_ methods.StatusProvider = (*App)(nil)
)
