// ABOUTME: Owns the in-memory set of live worker processes: spawn, dismiss, broadcast.
// ABOUTME: Gates mutations by role permission, drives health/auto-restart, forwards to storage and the push hub.
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/eventstream"
	"github.com/fleetforge/fleetd/internal/gitutil"
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/launcher"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
)

// Config holds the tunable limits spec.md §6 names as environment
// variables, with the defaults §4 states.
type Config struct {
	MaxDepth       int
	MaxRestarts    int
	DismissGraceMs int64
	HealthTickMs   int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 3, MaxRestarts: 3, DismissGraceMs: 5000, HealthTickMs: 15000}
}

// worktreeRoles are the roles whose work touches the git tree directly
// and therefore need an isolated worktree when launched in process mode.
// Read-only and notification roles (scout, oracle, critic, monitor,
// notifier, kraken) operate against the coordinator's existing checkout.
var worktreeRoles = map[model.Role]bool{
	model.RoleCoordinator: true,
	model.RoleWorker:      true,
	model.RoleArchitect:   true,
	model.RoleMerger:      true,
}

// SpawnRequest is the input to Spawn, per spec.md §4.D.
type SpawnRequest struct {
	Handle        string
	Role          model.Role
	TeamName      string
	WorkingDir    string
	InitialPrompt string
	SessionID     *string
	SwarmID       *string
	SpawnMode     model.SpawnMode
	DepthLevel    int
	Command       string
	Args          []string

	// CallerRole gates the operation against the permission matrix. Nil
	// means a privileged caller (the HTTP layer acting on behalf of a
	// human, or the server's own bootstrap) and skips the check.
	CallerRole *model.Role

	// SkipWorktree overrides worktreeRoles for callers that manage their
	// own shared checkout instead of a per-worker worktree, e.g. the
	// compound loop's fixer/verifier fleet, all of which must see the same
	// working tree on the same branch.
	SkipWorktree bool
}

// trackedWorker is the in-memory live state a reader goroutine and the
// health tick loop act on; model.Worker itself is the persisted view.
type trackedWorker struct {
	mu         sync.Mutex
	worker     *model.Worker
	process    launcher.Process
	parser     *eventstream.Parser
	done       chan struct{}
	generation int // bumped on every (re)launch; a readLoop whose generation has gone stale ignores its exit
	repoDir    string // original working dir, used to release an allocated worktree
	cwd        string // actual process cwd (may be a worktree under repoDir)

	spawnCommand string // retained for restart
	spawnArgs    []string
}

// Supervisor is the worker lifecycle owner, component D.
type Supervisor struct {
	store    *storage.Store
	hub      *pushhub.Hub
	clock    clock.Clock
	launcher launcher.Launcher
	git      gitutil.Git
	cfg      Config

	mu      sync.RWMutex
	workers map[string]*trackedWorker // keyed by handle
}

// New constructs a Supervisor. git may be nil if no spawned role ever
// requires a worktree (e.g. an all-readonly fleet); Spawn fails with
// errs.SpawnFailed if a worktree is needed and git is nil.
func New(store *storage.Store, hub *pushhub.Hub, c clock.Clock, l launcher.Launcher, git gitutil.Git, cfg Config) *Supervisor {
	return &Supervisor{
		store:    store,
		hub:      hub,
		clock:    c,
		launcher: l,
		git:      git,
		cfg:      cfg,
		workers:  make(map[string]*trackedWorker),
	}
}

func checkPermission(role *model.Role, want func(permissions) bool) error {
	if role == nil {
		return nil
	}
	perm, ok := rolePermissions[*role]
	if !ok || !want(perm) {
		return errs.Forbidden("role %s lacks the required permission", *role)
	}
	return nil
}

func (s *Supervisor) publish(subj pushhub.Subject, eventType string, data map[string]any) {
	s.hub.Publish(subj, pushhub.Event{Type: eventType, Data: data})
	if subj.Kind != pushhub.SubjectAll {
		s.hub.Publish(pushhub.Subject{Kind: pushhub.SubjectAll}, pushhub.Event{Type: eventType, Data: data})
	}
}

// Spawn creates and launches a new worker, per spec.md §4.D.1.
func (s *Supervisor) Spawn(req SpawnRequest) (*model.Worker, error) {
	if err := checkPermission(req.CallerRole, func(p permissions) bool { return p.canSpawn }); err != nil {
		return nil, err
	}

	if _, err := s.store.GetWorkerByHandle(req.Handle); err == nil {
		return nil, errs.Conflict("handle %s is already in use by a live worker", req.Handle)
	} else if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}

	if req.SwarmID != nil {
		swarm, err := s.store.GetSwarm(*req.SwarmID)
		if err != nil {
			return nil, err
		}
		count, err := s.store.SwarmMemberCount(*req.SwarmID)
		if err != nil {
			return nil, err
		}
		if count >= swarm.MaxAgents {
			return nil, errs.Conflict("swarm %s is at capacity (%d/%d)", swarm.ID, count, swarm.MaxAgents)
		}
	}

	if req.DepthLevel > s.cfg.MaxDepth {
		return nil, errs.InvariantViolation("depth %d exceeds MAX_DEPTH %d", req.DepthLevel, s.cfg.MaxDepth)
	}

	now := s.clock.NowMillis()
	w := &model.Worker{
		ID:            ids.New(),
		Handle:        req.Handle,
		TeamName:      req.TeamName,
		Role:          req.Role,
		State:         model.WorkerStarting,
		Health:        model.HealthHealthy,
		SessionID:     req.SessionID,
		SwarmID:       req.SwarmID,
		SpawnMode:     req.SpawnMode,
		DepthLevel:    req.DepthLevel,
		LastHeartbeat: now,
		SpawnedAt:     now,
	}

	if err := s.store.CreateWorker(w); err != nil {
		return nil, err
	}

	if req.SpawnMode == model.SpawnModeProcess {
		if err := s.launchProcess(w, req); err != nil {
			w.State = model.WorkerStopped
			w.Health = model.HealthUnhealthy
			w.LastError = err.Error()
			_ = s.store.UpdateWorker(w)
			s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: w.Handle}, "worker:exit", map[string]any{"handle": w.Handle})
			return nil, errs.SpawnFailed(err, "launch worker %s", w.Handle)
		}
	}

	s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: w.Handle}, "worker:spawned", map[string]any{"handle": w.Handle, "id": w.ID})
	return w.Clone(), nil
}

// launchProcess allocates a worktree if the role needs one, starts the
// child process, and wires its output into a parser and a reader
// goroutine that keeps heartbeat and health state current.
func (s *Supervisor) launchProcess(w *model.Worker, req SpawnRequest) error {
	cwd := req.WorkingDir
	if worktreeRoles[w.Role] && !req.SkipWorktree {
		if s.git == nil {
			return fmt.Errorf("role %s requires a worktree but no git collaborator is configured", w.Role)
		}
		path := fmt.Sprintf("%s/.fleet-worktrees/%s", req.WorkingDir, w.Handle)
		branch := fmt.Sprintf("fleet/%s", w.Handle)
		if err := s.git.AddWorktree(req.WorkingDir, path, branch); err != nil {
			return fmt.Errorf("allocate worktree: %w", err)
		}
		w.WorktreePath = &path
		w.Branch = &branch
		cwd = path
	}

	proc, err := s.launcher.Spawn(launcher.SpawnRequest{
		Cwd:     cwd,
		Command: req.Command,
		Args:    req.Args,
	})
	if err != nil {
		return err
	}

	pid := proc.PID()
	w.PID = &pid
	w.State = model.WorkerReady

	tracked := &trackedWorker{
		worker:       w.Clone(),
		process:      proc,
		parser:       eventstream.New(s.clock),
		done:         make(chan struct{}),
		repoDir:      req.WorkingDir,
		cwd:          cwd,
		spawnCommand: req.Command,
		spawnArgs:    req.Args,
	}
	s.mu.Lock()
	s.workers[w.Handle] = tracked
	s.mu.Unlock()

	if err := s.store.UpdateWorker(w); err != nil {
		return err
	}

	go s.readLoop(w.Handle, tracked, tracked.generation)

	if req.InitialPrompt != "" {
		_ = proc.Write(req.InitialPrompt)
	}
	return nil
}

// readLoop drains a worker's output, updates its heartbeat on every line
// (favoring liveness detection over precision, per the heartbeat Open
// Question decision), and detects process exit. generation pins this
// goroutine to the process it was started for; if the worker has since
// been restarted onto a newer process, its exit is ignored.
func (s *Supervisor) readLoop(handle string, tracked *trackedWorker, generation int) {
	tracked.mu.Lock()
	proc := tracked.process
	tracked.mu.Unlock()

	defer close(tracked.done)
	for line := range proc.Lines() {
		tracked.mu.Lock()
		tracked.parser.ParseLine(line)
		tracked.mu.Unlock()
		s.Heartbeat(handle, s.clock.NowMillis())
		s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: handle}, "worker:output", map[string]any{"handle": handle, "line": line})
	}

	exitCode, _ := proc.Wait()

	tracked.mu.Lock()
	stale := tracked.generation != generation
	tracked.mu.Unlock()
	if stale {
		return
	}

	s.handleExit(handle, exitCode)
}

func (s *Supervisor) handleExit(handle string, exitCode int) {
	s.mu.Lock()
	tracked, ok := s.workers[handle]
	s.mu.Unlock()
	if !ok {
		return
	}

	w, err := s.store.GetWorkerByHandle(handle)
	if err != nil {
		return
	}
	// Dismiss already owns the stopping -> dismissed transition for this
	// handle; a natural exit racing a graceful shutdown must not overwrite
	// it.
	if w.State == model.WorkerStopping || w.State == model.WorkerDismissed {
		return
	}

	if exitCode != 0 && w.Role.Restartable() && w.RestartCount < s.cfg.MaxRestarts {
		if err := s.restart(w, tracked); err == nil {
			return
		}
	}

	w.State = model.WorkerStopped
	if exitCode != 0 {
		w.Health = model.HealthUnhealthy
	}
	_ = s.store.UpdateWorker(w)

	s.mu.Lock()
	delete(s.workers, handle)
	s.mu.Unlock()

	s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: handle}, "worker:exit", map[string]any{"handle": handle, "exitCode": exitCode})
}

// restart relaunches a worker's process in place after an unexpected exit,
// preserving its handle and latching its prior session id, per spec.md
// §4.D's auto-restart semantics.
func (s *Supervisor) restart(w *model.Worker, tracked *trackedWorker) error {
	proc, err := s.launcher.Spawn(launcher.SpawnRequest{
		Cwd:     tracked.cwd,
		Command: tracked.spawnCommand,
		Args:    tracked.spawnArgs,
	})
	if err != nil {
		return err
	}

	pid := proc.PID()
	w.PID = &pid
	w.RestartCount++
	w.State = model.WorkerReady
	w.Health = model.HealthHealthy
	w.LastHeartbeat = s.clock.NowMillis()
	if err := s.store.UpdateWorker(w); err != nil {
		return err
	}

	tracked.mu.Lock()
	tracked.process = proc
	tracked.worker = w.Clone()
	tracked.done = make(chan struct{})
	tracked.generation++
	generation := tracked.generation
	tracked.mu.Unlock()

	go s.readLoop(w.Handle, tracked, generation)

	s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: w.Handle}, "worker:restarted", map[string]any{"handle": w.Handle, "restartCount": w.RestartCount})
	return nil
}

// Dismiss gracefully stops a worker, per spec.md §4.D.2.
func (s *Supervisor) Dismiss(handle string, callerRole *model.Role) (bool, error) {
	if err := checkPermission(callerRole, func(p permissions) bool { return p.canDismiss }); err != nil {
		return false, err
	}

	w, err := s.store.GetWorkerByHandle(handle)
	if err != nil {
		return false, err
	}
	if w.State.IsTerminal() {
		return false, nil
	}

	w.State = model.WorkerStopping
	if err := s.store.UpdateWorker(w); err != nil {
		return false, err
	}

	s.mu.Lock()
	tracked, ok := s.workers[handle]
	s.mu.Unlock()

	if ok && tracked.process != nil {
		_ = tracked.process.Signal()
		select {
		case <-tracked.done:
		case <-time.After(time.Duration(s.cfg.DismissGraceMs) * time.Millisecond):
			_ = tracked.process.Kill()
			<-tracked.done
		}
	}

	if w.WorktreePath != nil && s.git != nil && ok {
		_ = s.git.RemoveWorktree(tracked.repoDir, *w.WorktreePath)
	}

	now := s.clock.NowMillis()
	w.State = model.WorkerDismissed
	w.DismissedAt = &now
	if err := s.store.UpdateWorker(w); err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.workers, handle)
	s.mu.Unlock()

	s.publish(pushhub.Subject{Kind: pushhub.SubjectWorker, ID: handle}, "worker:dismissed", map[string]any{"handle": handle})
	return true, nil
}

// Broadcast multicasts message to every live worker's input stream, per
// spec.md §4.D.3. Best-effort: a single unreachable worker does not abort
// delivery to the rest.
func (s *Supervisor) Broadcast(message string, fromHandle *string, callerRole *model.Role) error {
	if err := checkPermission(callerRole, func(p permissions) bool { return p.canBroadcast }); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for handle, tracked := range s.workers {
		if fromHandle != nil && handle == *fromHandle {
			continue
		}
		if tracked.process != nil {
			_ = tracked.process.Write(message)
		}
	}
	return nil
}

// WriteToWorker sends a single line of input to one worker's stdin, used
// by the compound loop to re-dispatch a fixer or verifier with feedback
// between iterations. errs.NotFound if the worker has no live process.
func (s *Supervisor) WriteToWorker(handle, message string) error {
	s.mu.RLock()
	tracked, ok := s.workers[handle]
	s.mu.RUnlock()
	if !ok || tracked.process == nil {
		return errs.NotFound("worker %s has no live process", handle)
	}
	return tracked.process.Write(message)
}

// GetRecentOutput returns a snapshot of a worker's output ring, used by the
// compound loop's completion-sentinel polling. errs.NotFound if the worker
// has no live process.
func (s *Supervisor) GetRecentOutput(handle string, limit int) ([]string, error) {
	s.mu.RLock()
	tracked, ok := s.workers[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("worker %s has no live process", handle)
	}
	tracked.mu.Lock()
	defer tracked.mu.Unlock()
	return tracked.parser.GetRecentOutput(limit), nil
}

// Heartbeat updates a worker's lastHeartbeat. Silent if the worker is not
// found, per spec.md §4.D.4.
func (s *Supervisor) Heartbeat(handle string, now int64) {
	w, err := s.store.GetWorkerByHandle(handle)
	if err != nil {
		return
	}
	w.LastHeartbeat = now
	_ = s.store.UpdateWorker(w)
}

// ListWorkers returns workers matching filter ordered by spawnedAt
// ascending, per spec.md §4.D.5.
func (s *Supervisor) ListWorkers(filter storage.WorkerFilter) ([]*model.Worker, error) {
	return s.store.ListWorkers(filter)
}

const (
	healthyGapMs   = 30_000
	degradedGapMs  = 120_000
	healthyErrors  = 5
	degradedErrors = 20
)

// classify derives a worker's health from its heartbeat gap and its
// parser's observed error count, per spec.md §4.D's health state machine:
// healthy requires both the gap and error count to be low; degraded is
// either one alone drifting into its middle band; unhealthy is anything
// past both bands.
func classify(gapMs int64, errorCount int) model.Health {
	if gapMs < healthyGapMs && errorCount < healthyErrors {
		return model.HealthHealthy
	}
	gapDegraded := gapMs >= healthyGapMs && gapMs < degradedGapMs
	errorsDegraded := errorCount >= healthyErrors && errorCount < degradedErrors
	if gapDegraded || errorsDegraded {
		return model.HealthDegraded
	}
	return model.HealthUnhealthy
}

// TickHealth evaluates every tracked worker's health once and attempts
// recovery for unhealthy process-mode workers, per spec.md §4.D's health
// state machine. The kernel's single periodic health task (cmd/fleetd's
// cron schedule, at cfg.HealthTickMs) calls this on each tick.
func (s *Supervisor) TickHealth() {
	s.mu.RLock()
	handles := make([]string, 0, len(s.workers))
	for h := range s.workers {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	now := s.clock.NowMillis()
	for _, handle := range handles {
		s.evaluateOne(handle, now)
	}
}

func (s *Supervisor) evaluateOne(handle string, now int64) {
	s.mu.RLock()
	tracked, ok := s.workers[handle]
	s.mu.RUnlock()
	if !ok {
		return
	}

	w, err := s.store.GetWorkerByHandle(handle)
	if err != nil || w.State.IsTerminal() || w.State == model.WorkerStopping {
		return
	}

	tracked.mu.Lock()
	signal := tracked.parser.GetHealthSignal()
	tracked.mu.Unlock()

	gap := now - w.LastHeartbeat
	health := classify(gap, signal.ErrorCount)
	if health == w.Health {
		return
	}
	w.Health = health
	_ = s.store.UpdateWorker(w)

	if health == model.HealthUnhealthy && w.SpawnMode == model.SpawnModeProcess &&
		w.Role.Restartable() && w.RestartCount < s.cfg.MaxRestarts {
		if tracked.process != nil {
			_ = tracked.process.Kill()
		}
		_ = s.restart(w, tracked)
	}
}

// Status is the aggregate view spec.md §4.D.6 getStatus() returns.
type Status struct {
	*model.StatusCounts
	UptimeMs int64
}

// GetStatus computes the fleet-wide aggregate.
func (s *Supervisor) GetStatus() (*Status, error) {
	now := s.clock.NowMillis()
	counts, err := s.store.StatusCounts(now)
	if err != nil {
		return nil, err
	}
	uptime := int64(0)
	if counts.OldestSpawnAt > 0 {
		uptime = now - counts.OldestSpawnAt
	}
	return &Status{StatusCounts: counts, UptimeMs: uptime}, nil
}
