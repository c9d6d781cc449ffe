// ABOUTME: The compound iteration loop driver, component F: detect, branch,
// ABOUTME: spawn fixer+verifiers, iterate fix/gate/feedback, restore git. See spec.md §4.F.
package compound

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/gitutil"
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/logging"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
	"github.com/fleetforge/fleetd/internal/supervisor"
)

// Per spec.md §5: "Compound loop honors a per-iteration worker timeout (10
// min first iteration, 5 min thereafter)."
const (
	firstIterationTimeout = 10 * time.Minute
	laterIterationTimeout = 5 * time.Minute

	// reEngagedMarker heads every re-dispatch prompt written to a worker.
	// Worker-done detection does not search output for it: on iterations
	// after the first it scopes its search by runState.redispatchMark.
	reEngagedMarker = "RE-ENGAGED"
	completionToken = "TASK COMPLETE"

	stashLabelPrefix = "fleet-compound-"
)

// Config holds the compound loop's tunables.
type Config struct {
	PollIntervalMs int64
}

// DefaultConfig returns the documented default, spec.md §6's
// POLL_INTERVAL_MS.
func DefaultConfig() Config {
	return Config{PollIntervalMs: 2000}
}

// RunRequest is the input to Driver.Run, per spec.md §4.F.
type RunRequest struct {
	Objective     string
	WorkingDir    string
	NumWorkers    int // 1..5: one fixer plus NumWorkers-1 verifiers
	MaxIterations int
}

// Result is Driver.Run's outcome.
type Result struct {
	Succeeded     bool
	Iterations    int
	Feedback      StructuredFeedback
	Branch        string
	AbandonReason string // set when the loop exited early for a reason other than pass/fail
}

// LaunchTemplate fills in the agent-process fields RunRequest doesn't
// carry; every compound worker runs the same binary against the same
// checkout.
type LaunchTemplate struct {
	Command string
	Args    []string
}

// Driver owns the compound iteration loop, component F. It depends on the
// supervisor (D) to spawn and read workers and on the git collaborator for
// branch and stash safety, per spec.md §6: "The compound loop depends only
// on this interface."
type Driver struct {
	sup   *supervisor.Supervisor
	store *storage.Store
	git   gitutil.Git
	clock clock.Clock
	hub   *pushhub.Hub
	cfg   Config
	tmpl  LaunchTemplate
}

// NewDriver constructs a Driver.
func NewDriver(sup *supervisor.Supervisor, store *storage.Store, git gitutil.Git, c clock.Clock, hub *pushhub.Hub, cfg Config, tmpl LaunchTemplate) *Driver {
	return &Driver{sup: sup, store: store, git: git, clock: c, hub: hub, cfg: cfg, tmpl: tmpl}
}

func (d *Driver) publish(eventType string, data map[string]any) {
	if d.hub == nil {
		return
	}
	d.hub.Publish(pushhub.Subject{Kind: pushhub.SubjectAll}, pushhub.Event{Type: eventType, Data: data})
}

// Run executes the full loop described by spec.md §4.F's control-flow
// block. It always attempts to restore the original git state before
// returning, even on error.
func (d *Driver) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if req.NumWorkers < 1 || req.NumWorkers > 5 {
		return nil, errs.InvariantViolation("numWorkers %d outside 1..5", req.NumWorkers)
	}
	if req.MaxIterations < 1 {
		return nil, errs.InvariantViolation("maxIterations must be >= 1")
	}

	typ := DetectProjectType(req.WorkingDir)
	gates := GenerateGates(typ)
	logging.Event("compound", "detected_project", "type", typ, "gates", len(gates))

	origBranch, err := d.git.CurrentBranch(req.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("current branch: %w", err)
	}
	stashed, err := d.stashIfDirty(req.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}

	restore := func() {
		_ = d.git.Checkout(req.WorkingDir, origBranch)
		if stashed {
			_ = d.git.StashPop(req.WorkingDir)
		}
	}

	branch := fmt.Sprintf("fleet/fix-%d", d.clock.NowMillis()/1000)
	if err := d.git.CheckoutNew(req.WorkingDir, branch, origBranch); err != nil {
		restore()
		return nil, fmt.Errorf("checkout fleet branch: %w", err)
	}

	run := &runState{d: d, req: req, typ: typ, gates: gates, branch: branch}
	result, runErr := run.execute(ctx)

	restore()
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// stashIfDirty stashes uncommitted changes under a recognizable label if
// the working tree isn't clean, per spec.md §4.F's git-safety rule.
func (d *Driver) stashIfDirty(dir string) (bool, error) {
	status, err := d.git.PorcelainStatus(dir)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" {
		return false, nil
	}
	label := fmt.Sprintf("%s%d", stashLabelPrefix, d.clock.NowMillis())
	if err := d.git.StashPush(dir, label); err != nil {
		return false, err
	}
	return true, nil
}

// runState is the mutable state of one Driver.Run invocation.
type runState struct {
	d    *Driver
	req  RunRequest
	typ  ProjectType
	gates []Gate
	branch string

	fixerHandle     string
	verifierHandles []string

	// redispatchMark records each worker's output-ring length at the
	// moment it was last re-engaged, so completion detection on later
	// iterations scopes its TASK COMPLETE search to output emitted after
	// that point rather than re-matching a stale completion from the
	// previous iteration.
	redispatchMark map[string]int
}

func (r *runState) allHandles() []string {
	return append([]string{r.fixerHandle}, r.verifierHandles...)
}

// execute spawns the fixer/verifier fleet and runs the fix/gate/feedback
// loop, ordering workers (fixer, verifier, verifier, …) per spec.md §4.F.
func (r *runState) execute(ctx context.Context) (*Result, error) {
	d := r.d
	swarm := &model.Swarm{ID: ids.New(), Name: "compound-" + r.branch, MaxAgents: r.req.NumWorkers, CreatedAt: d.clock.NowMillis()}
	if err := d.store.CreateSwarm(swarm); err != nil {
		return nil, fmt.Errorf("create swarm: %w", err)
	}

	if err := r.spawnFleet(swarm.ID); err != nil {
		return nil, fmt.Errorf("spawn fleet: %w", err)
	}
	defer r.dismissFleet()

	var feedback StructuredFeedback
	for iteration := 1; iteration <= r.req.MaxIterations; iteration++ {
		d.publish("compound:iteration_start", map[string]any{"branch": r.branch, "iteration": iteration})

		outcome := r.waitForCompletion(ctx, iteration)
		if outcome == completionAbandoned {
			return &Result{Succeeded: false, Iterations: iteration, Feedback: feedback, Branch: r.branch, AbandonReason: "supervisor unhealthy"}, nil
		}

		if err := d.git.CommitAll(r.req.WorkingDir, fmt.Sprintf("compound fix iteration %d", iteration)); err != nil {
			return nil, fmt.Errorf("commit iteration %d: %w", iteration, err)
		}

		feedback = runGates(ctx, r.gates, r.typ, r.req.WorkingDir)
		d.publish("compound:iteration_complete", map[string]any{"branch": r.branch, "iteration": iteration, "totalErrors": feedback.TotalErrors})

		if feedback.AllPassed {
			d.publish("compound:succeeded", map[string]any{"branch": r.branch, "iterations": iteration})
			return &Result{Succeeded: true, Iterations: iteration, Feedback: feedback, Branch: r.branch}, nil
		}
		if iteration == r.req.MaxIterations {
			d.publish("compound:failed", map[string]any{"branch": r.branch, "iterations": iteration})
			return &Result{Succeeded: false, Iterations: iteration, Feedback: feedback, Branch: r.branch}, nil
		}

		r.redispatch(feedback, iteration+1)
	}
	return &Result{Succeeded: false, Iterations: r.req.MaxIterations, Feedback: feedback, Branch: r.branch}, nil
}

// spawnFleet launches one fixer (role worker) followed by NumWorkers-1
// verifiers (role critic), all sharing req.WorkingDir's checkout rather
// than per-worker worktrees, per spec.md §4.F: "verifiers never see
// uncommitted fixer output" implies one shared tree, not N isolated ones.
func (r *runState) spawnFleet(swarmID string) error {
	d := r.d
	fixerHandle := "fixer-" + ids.New()
	prompt := buildInitialPrompt(r.req.Objective, sentinelPath(r.req.WorkingDir, fixerHandle, 1))
	w, err := d.sup.Spawn(supervisor.SpawnRequest{
		Handle:        fixerHandle,
		Role:          model.RoleWorker,
		WorkingDir:    r.req.WorkingDir,
		InitialPrompt: prompt,
		SwarmID:       &swarmID,
		SpawnMode:     model.SpawnModeProcess,
		Command:       d.tmpl.Command,
		Args:          d.tmpl.Args,
		SkipWorktree:  true,
	})
	if err != nil {
		return err
	}
	r.fixerHandle = w.Handle

	for i := 1; i < r.req.NumWorkers; i++ {
		handle := fmt.Sprintf("verifier-%d-%s", i, ids.New())
		vw, err := d.sup.Spawn(supervisor.SpawnRequest{
			Handle:        handle,
			Role:          model.RoleCritic,
			WorkingDir:    r.req.WorkingDir,
			InitialPrompt: buildInitialPrompt("Review the fixer's changes for "+r.req.Objective, sentinelPath(r.req.WorkingDir, handle, 1)),
			SwarmID:       &swarmID,
			SpawnMode:     model.SpawnModeProcess,
			Command:       d.tmpl.Command,
			Args:          d.tmpl.Args,
			SkipWorktree:  true,
		})
		if err != nil {
			return err
		}
		r.verifierHandles = append(r.verifierHandles, vw.Handle)
	}
	return nil
}

func (r *runState) dismissFleet() {
	for _, h := range r.allHandles() {
		_, _ = r.d.sup.Dismiss(h, nil)
	}
}

func (r *runState) redispatch(feedback StructuredFeedback, nextIteration int) {
	if r.redispatchMark == nil {
		r.redispatchMark = make(map[string]int)
	}
	for _, h := range r.allHandles() {
		prompt := buildReEngagePrompt(feedback, nextIteration, sentinelPath(r.req.WorkingDir, h, nextIteration))
		_ = r.d.sup.WriteToWorker(h, prompt)
		if lines, err := r.d.sup.GetRecentOutput(h, 0); err == nil {
			r.redispatchMark[h] = len(lines)
		}
	}
}

type completionOutcome string

const (
	completionDone      completionOutcome = "done"
	completionTimedOut  completionOutcome = "timed_out"
	completionAbandoned completionOutcome = "abandoned"
)

// waitForCompletion polls every fleet worker's sentinel file and output
// ring until all report completion, the per-iteration timeout elapses, or
// the supervisor reports a participant unhealthy, per spec.md §4.F.
func (r *runState) waitForCompletion(ctx context.Context, iteration int) completionOutcome {
	timeout := firstIterationTimeout
	if iteration > 1 {
		timeout = laterIterationTimeout
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := time.Duration(r.d.cfg.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		allDone := true
		for _, h := range r.allHandles() {
			if r.isWorkerUnhealthy(h) {
				return completionAbandoned
			}
			if !r.isWorkerDone(h, iteration) {
				allDone = false
			}
		}
		if allDone {
			return completionDone
		}

		select {
		case <-deadlineCtx.Done():
			return completionTimedOut
		case <-ticker.C:
		}
	}
}

func (r *runState) isWorkerUnhealthy(handle string) bool {
	w, err := r.d.store.GetWorkerByHandle(handle)
	if err != nil {
		return true
	}
	return w.Health == model.HealthUnhealthy
}

func (r *runState) isWorkerDone(handle string, iteration int) bool {
	if _, err := os.Stat(sentinelPath(r.req.WorkingDir, handle, iteration)); err == nil {
		return true
	}
	lines, err := r.d.sup.GetRecentOutput(handle, 0)
	if err != nil {
		return false
	}
	if iteration > 1 {
		if mark, ok := r.redispatchMark[handle]; ok && mark <= len(lines) {
			lines = lines[mark:]
		}
	}
	return strings.Contains(strings.Join(lines, "\n"), completionToken)
}

// sentinelPath names the per-iteration, per-worker completion marker, per
// SPEC_FULL.md §5.F's `.fleet-task-complete-<iteration>-<handle>` convention
// (handle-suffixed since the fixer and its verifiers share one worktree).
func sentinelPath(dir, handle string, iteration int) string {
	return filepath.Join(dir, fmt.Sprintf(".fleet-task-complete-%d-%s", iteration, handle))
}

func buildInitialPrompt(objective, sentinel string) string {
	return fmt.Sprintf(
		"%s\n\nWhen finished, create the file %q and reply with the line %q.",
		objective, sentinel, completionToken,
	)
}

func buildReEngagePrompt(feedback StructuredFeedback, nextIteration int, sentinel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: iteration %d feedback\n", reEngagedMarker, nextIteration)
	for _, g := range feedback.Gates {
		if g.Passed {
			continue
		}
		fmt.Fprintf(&b, "gate=%s command=%q exitCode=%d totalErrors=%d\n", g.Gate, g.Command, g.ExitCode, g.TotalErrors)
		for _, e := range g.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
		for _, l := range g.RawTail {
			fmt.Fprintf(&b, "  %s\n", l)
		}
	}
	fmt.Fprintf(&b, "\nAddress the above, create the file %q, and reply %q when done.", sentinel, completionToken)
	return b.String()
}
