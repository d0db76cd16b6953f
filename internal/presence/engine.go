// Package presence is the state machine that turns editor events into
// Discord rich presence.
//
// An [Engine] owns the presence configuration, the workspace rule, the idle
// timer and the Discord session. Every input (editor events, configuration
// updates, idle ticks, HEAD changes) is consumed by a single goroutine in
// [Engine.Run], so no two transitions ever interleave.
//
// States:
//
//	Uninitialized -> Disabled | Active
//	Disabled      -> Active  (config/workspace allowed, handshake succeeded)
//	Active        -> Idle    (tick after the idle timeout)
//	Idle          -> Active  (any editor event)
//	Active | Idle -> Disabled (rule rejects the workspace; remote is cleared)
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"tools.zach/dev/discord-presence/internal/config"
	"tools.zach/dev/discord-presence/internal/discord"
	"tools.zach/dev/discord-presence/internal/languages"
	"tools.zach/dev/discord-presence/internal/logger"
	"tools.zach/dev/discord-presence/internal/rules"
)

// ///////////////////////////////////////////////
// Engine State
// ///////////////////////////////////////////////

// State is the logical presence state.
type State int32

const (
	StateUninitialized State = iota
	StateDisabled
	StateActive
	StateIdle
)

// String returns the lowercase state name used in log output.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisabled:
		return "disabled"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// disabledReason records why the engine is Disabled, which decides whether
// the next editor event may re-activate it.
type disabledReason int

const (
	reasonNone disabledReason = iota
	reasonNoConfig
	reasonRuleRejected
	reasonDisconnected
)

// ErrStopped is returned by [Engine.Submit] after [Engine.Run] has returned.
var ErrStopped = errors.New("presence engine stopped")

const (
	// DefaultTickInterval is how often the idle timer is checked.
	DefaultTickInterval = 5 * time.Second
	// QueueSize is the capacity of the event queue.
	QueueSize = 64
)

// clearedHash marks that the last command sent was a clear.
const clearedHash = "cleared"

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Session is the Discord IPC session the engine drives. [*discord.Session]
// implements it.
type Session interface {
	Connect(ctx context.Context) error
	SetActivity(ctx context.Context, activity *discord.Activity) error
	ClearActivity(ctx context.Context) error
	Close() error
	Ready() bool
}

// GitProvider answers repository queries. Failures yield "". [*git.Client]
// implements it.
type GitProvider interface {
	Branch(ctx context.Context, dir string) string
	RemoteURL(ctx context.Context, dir string) string
	GitDir(ctx context.Context, dir string) string
}

// HeadWatcher signals when the checked-out branch may have changed.
type HeadWatcher interface {
	Events() <-chan struct{}
	Close() error
}

// Options configures an [Engine]. Zero values select the defaults.
type Options struct {
	// NewSession creates a session for an application id. Nil dials Discord
	// with [discord.DefaultOptions].
	NewSession func(appID string) Session
	// Git answers branch and remote queries. Nil disables git metadata.
	Git GitProvider
	// WatchHead starts a watcher on a git directory. Nil disables watching.
	WatchHead func(gitDir string) (HeadWatcher, error)
	// Languages returns the current language table. Nil means the built-in one.
	Languages func() *languages.Table
	// TickInterval is the idle check period.
	TickInterval time.Duration
	// Ticks replaces the internal ticker when set.
	Ticks <-chan time.Time
	// Now replaces time.Now when set.
	Now func() time.Time
	// ID tags log records; empty generates a UUID.
	ID string
	// Logger is the base logger; nil means slog.Default.
	Logger *slog.Logger
}

// ///////////////////////////////////////////////
// Engine
// ///////////////////////////////////////////////

// Engine is the presence state machine. Create it with [New], start it with
// [Engine.Run], and feed it with [Engine.Submit].
type Engine struct {
	opts   Options
	id     string
	log    *slog.Logger
	events chan Event
	done   chan struct{}
	state  atomic.Int32

	// Everything below is owned by the Run goroutine.

	cfg       *config.PresenceConfig
	rule      *rules.Rule
	reason    disabledReason
	workspace string
	doc       *Document
	branch    string
	remote    string

	// lastActivity is the time of the last editor event.
	lastActivity time.Time
	// start is the unix time of the first activation, 0 while Disabled.
	start int64

	session    Session
	sessionApp string
	// lastHash is the hash of the last accepted payload, clearedHash after a
	// clear, or "" when the next payload must be sent regardless.
	lastHash string
	lastSent *Activity

	head    HeadWatcher
	headDir string
}

// New creates an engine in the Uninitialized state.
func New(opts Options) *Engine {
	if opts.NewSession == nil {
		opts.NewSession = func(appID string) Session {
			return discord.NewSession(appID, discord.DefaultOptions())
		}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Engine{
		opts:   opts,
		id:     opts.ID,
		log:    base.With("engine", opts.ID),
		events: make(chan Event, QueueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the identifier attached to the engine's log records.
func (e *Engine) ID() string { return e.id }

// State returns the current logical state. Safe from any goroutine.
func (e *Engine) State() State { return State(e.state.Load()) }

// Submit queues ev. It blocks while the queue is full until ctx is done.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Status returns a snapshot taken after every previously submitted event has
// been handled.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := e.Submit(ctx, Event{Kind: statusQuery, reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-e.done:
		return Status{}, ErrStopped
	}
}

// Run consumes events and idle ticks until ctx is done, then closes the
// Discord session without waiting for the remote. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.shutdown()

	ticks := e.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	e.log.Info("presence engine started", "tick_interval", e.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("presence engine stopping")
			return nil
		case ev := <-e.events:
			e.handle(ctx, ev)
		case <-ticks:
			e.tick(ctx)
		case <-e.headEvents():
			e.handle(ctx, Event{Kind: BranchChanged})
		}
	}
}

// ///////////////////////////////////////////////
// Event Handling
// ///////////////////////////////////////////////

func (e *Engine) handle(ctx context.Context, ev Event) {
	if ev.Kind != statusQuery {
		logger.Trace(e.log, "presence event", "kind", ev.Kind, "path", ev.Path, "line", ev.Line)
	}
	switch {
	case ev.Kind == statusQuery:
		ev.reply <- e.snapshot()
	case ev.Kind.isEditorActivity():
		e.onEditor(ctx, ev)
	case ev.Kind == WorkspaceChanged:
		e.workspace = ev.Workspace
		e.refreshGit(ctx)
		e.reevaluate(ctx)
	case ev.Kind == ConfigChanged:
		e.onConfig(ctx, ev.Config)
	case ev.Kind == BranchChanged:
		e.refreshGit(ctx)
		if st := e.State(); st == StateActive || st == StateIdle {
			e.publish(ctx)
		}
	default:
		e.log.Debug("ignoring unknown presence event", "kind", int(ev.Kind))
	}
}

func (e *Engine) onEditor(ctx context.Context, ev Event) {
	e.updateDocument(ev)

	switch e.State() {
	case StateUninitialized:
		return
	case StateDisabled:
		if e.reason == reasonDisconnected {
			e.reevaluate(ctx)
		}
		return
	case StateIdle:
		e.setState(StateActive)
	}
	e.lastActivity = e.opts.Now()
	e.publish(ctx)
}

// updateDocument tracks the current file. The document is replaced, never
// mutated, so snapshots stay stable.
func (e *Engine) updateDocument(ev Event) {
	if ev.Path == "" {
		if e.doc != nil && ev.Line > 0 {
			e.doc = &Document{Path: e.doc.Path, Line: ev.Line}
		}
		return
	}
	if ev.Kind == DocumentOpened || e.doc == nil || e.doc.Path != ev.Path {
		e.doc = &Document{Path: ev.Path, Line: ev.Line}
		return
	}
	if ev.Line > 0 {
		e.doc = &Document{Path: ev.Path, Line: ev.Line}
	}
}

func (e *Engine) onConfig(ctx context.Context, cfg *config.PresenceConfig) {
	if cfg == nil {
		return
	}
	e.cfg = cfg
	e.rule = cfg.Rules.Rule()
	if e.session != nil && e.sessionApp != cfg.ApplicationID {
		e.log.Info("application id changed, reconnecting", "app_id", cfg.ApplicationID)
		e.closeSession()
	}
	e.refreshGit(ctx)
	e.reevaluate(ctx)
}

func (e *Engine) tick(ctx context.Context) {
	if e.State() != StateActive || e.cfg == nil {
		return
	}
	timeout := e.cfg.Idle.Duration()
	if timeout <= 0 {
		return
	}
	idleFor := e.opts.Now().Sub(e.lastActivity)
	if idleFor < timeout {
		return
	}
	e.log.Info("idle timeout reached", "idle_for", idleFor.Round(time.Second), "action", e.cfg.Idle.Action)
	e.setState(StateIdle)
	e.publish(ctx)
}

// ///////////////////////////////////////////////
// Transitions
// ///////////////////////////////////////////////

// reevaluate re-checks the configuration and workspace rule.
func (e *Engine) reevaluate(ctx context.Context) {
	if e.cfg == nil {
		e.disable(ctx, reasonNoConfig)
		return
	}
	if !e.rule.Allowed(e.workspace) {
		e.log.Info("workspace excluded by rules", "workspace", e.workspace, "mode", e.cfg.Rules.Mode)
		e.disable(ctx, reasonRuleRejected)
		return
	}
	e.activate(ctx)
}

func (e *Engine) activate(ctx context.Context) {
	if err := e.ensureSession(ctx); err != nil {
		e.log.Warn("discord unavailable, presence disabled until the next event", "error", err)
		e.disable(ctx, reasonDisconnected)
		return
	}
	now := e.opts.Now()
	if e.start == 0 {
		e.start = now.Unix()
	}
	e.lastActivity = now
	e.reason = reasonNone
	e.setState(StateActive)
	e.publish(ctx)
}

func (e *Engine) disable(ctx context.Context, reason disabledReason) {
	if st := e.State(); st == StateActive || st == StateIdle {
		e.clear(ctx)
	}
	e.reason = reason
	e.start = 0
	e.setState(StateDisabled)
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	if old != s {
		e.log.Debug("presence state changed", "from", old, "to", s)
	}
}

// ///////////////////////////////////////////////
// Publishing
// ///////////////////////////////////////////////

// publish sends whatever the current state calls for.
func (e *Engine) publish(ctx context.Context) {
	if e.cfg == nil {
		return
	}
	switch e.State() {
	case StateActive:
		e.send(ctx, e.render(VariantActive))
	case StateIdle:
		if e.cfg.Idle.Action == config.ClearActivity {
			e.clear(ctx)
			return
		}
		e.send(ctx, e.render(VariantIdle))
	}
}

func (e *Engine) render(variant Variant) *Activity {
	in := Input{
		Workspace: e.workspace,
		Document:  e.doc,
		Branch:    e.branch,
		RemoteURL: e.remote,
		Start:     e.start,
	}
	if e.opts.Languages != nil {
		in.Languages = e.opts.Languages()
	}
	a, diags := Render(e.cfg, variant, in)
	for _, d := range diags {
		e.log.Debug("template diagnostic", "variant", variant, "diagnostic", d.String())
	}
	return a
}

// send delivers a unless it equals the last accepted payload. A failure
// leaves the payload pending for the next event.
func (e *Engine) send(ctx context.Context, a *Activity) {
	hash := a.Hash()
	if hash == e.lastHash {
		logger.Trace(e.log, "presence unchanged, skipping send")
		return
	}
	if err := e.ensureSession(ctx); err != nil {
		e.log.Warn("discord unavailable, will retry on the next event", "error", err)
		e.lastHash = ""
		return
	}
	if err := e.session.SetActivity(ctx, a.Discord()); err != nil {
		e.log.Warn("failed to set activity", "error", err)
		e.lastHash = ""
		return
	}
	e.lastHash = hash
	e.lastSent = a
	e.log.Debug("presence updated", "state", a.State, "details", a.Details)
}

// clear removes the remote activity. A session that is not connected has
// nothing to clear.
func (e *Engine) clear(ctx context.Context) {
	if e.lastHash == clearedHash {
		return
	}
	if e.session == nil || !e.session.Ready() {
		e.lastHash = clearedHash
		e.lastSent = nil
		return
	}
	if err := e.session.ClearActivity(ctx); err != nil {
		e.log.Warn("failed to clear activity", "error", err)
		e.lastHash = ""
		return
	}
	e.lastHash = clearedHash
	e.lastSent = nil
	e.log.Debug("presence cleared")
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// ensureSession connects lazily. A new connection starts with no activity on
// the remote, so the dedup state is reset.
func (e *Engine) ensureSession(ctx context.Context) error {
	appID := e.cfg.ApplicationID
	if e.session != nil && e.sessionApp != appID {
		e.closeSession()
	}
	if e.session == nil {
		e.session = e.opts.NewSession(appID)
		e.sessionApp = appID
	}
	if e.session.Ready() {
		return nil
	}
	if err := e.session.Connect(ctx); err != nil {
		return err
	}
	e.lastHash = ""
	e.lastSent = nil
	e.log.Info("connected to discord", "app_id", appID)
	return nil
}

func (e *Engine) closeSession() {
	if e.session == nil {
		return
	}
	if err := e.session.Close(); err != nil {
		e.log.Debug("discord session close failed", "error", err)
	}
	e.session = nil
	e.sessionApp = ""
	e.lastHash = ""
	e.lastSent = nil
}

func (e *Engine) shutdown() {
	e.stopHead()
	e.closeSession()
	e.log.Info("presence engine stopped")
}

// ///////////////////////////////////////////////
// Git
// ///////////////////////////////////////////////

func (e *Engine) refreshGit(ctx context.Context) {
	if e.cfg == nil || !e.cfg.GitIntegration || e.opts.Git == nil || e.workspace == "" {
		e.branch, e.remote = "", ""
		e.stopHead()
		return
	}
	e.branch = e.opts.Git.Branch(ctx, e.workspace)
	e.remote = e.opts.Git.RemoteURL(ctx, e.workspace)
	e.watchHead(ctx)
}

func (e *Engine) watchHead(ctx context.Context) {
	if e.opts.WatchHead == nil {
		return
	}
	dir := e.opts.Git.GitDir(ctx, e.workspace)
	if dir == e.headDir && e.head != nil {
		return
	}
	e.stopHead()
	if dir == "" {
		return
	}
	w, err := e.opts.WatchHead(dir)
	if err != nil {
		e.log.Debug("cannot watch git HEAD", "dir", dir, "error", err)
		return
	}
	e.head = w
	e.headDir = dir
}

func (e *Engine) stopHead() {
	if e.head == nil {
		return
	}
	if err := e.head.Close(); err != nil {
		e.log.Debug("closing HEAD watcher failed", "error", err)
	}
	e.head = nil
	e.headDir = ""
}

// headEvents returns nil when nothing is watched, which blocks forever in a
// select.
func (e *Engine) headEvents() <-chan struct{} {
	if e.head == nil {
		return nil
	}
	return e.head.Events()
}

func (e *Engine) snapshot() Status {
	st := Status{
		State:     e.State(),
		Workspace: e.workspace,
		Branch:    e.branch,
		RemoteURL: e.remote,
		LastSent:  e.lastSent,
		Connected: e.session != nil && e.session.Ready(),
	}
	if e.doc != nil {
		d := *e.doc
		st.Document = &d
	}
	return st
}
