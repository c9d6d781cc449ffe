// ABOUTME: Bounded, dependency-aware, depth-limited admission queue for new workers.
// ABOUTME: Hands approved items to the supervisor in dependency-and-priority order. See spec.md §4.E.
package spawnqueue

import (
	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
	"github.com/fleetforge/fleetd/internal/supervisor"
)

// Config holds the admission and scheduling knobs spec.md §4.E and §6 name.
type Config struct {
	MaxDepth    int
	MaxFleet    int
	TickMs      int64
	MaxFanOut   int // bounded fan-out per scheduler tick, default 5
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 3, MaxFleet: 50, TickMs: 1000, MaxFanOut: 5}
}

// EnqueueRequest is a spawn request from an existing worker, per spec.md
// §4.E.
type EnqueueRequest struct {
	RequesterHandle string
	RequesterDepth  int
	RequesterRole   model.Role
	TargetAgentType model.Role
	Priority        model.Priority
	DependsOn       []string
	Payload         model.SpawnPayload
}

// Queue is the spawn-queue owner, component E. It hands approved items to
// a Supervisor (component D) in dependency-and-priority order.
type Queue struct {
	store *storage.Store
	sup   *supervisor.Supervisor
	hub   *pushhub.Hub
	clock clock.Clock
	cfg   Config

	// launch template, fixed for the lifetime of the queue
	spawnMode  model.SpawnMode
	workingDir string
	spawnCmd   string
	spawnArgs  []string
}

// LaunchTemplate fills in the process-launch fields Enqueue doesn't carry
// (every spawn queue item launches the same agent binary against the same
// working tree; only role, payload, and lineage vary).
type LaunchTemplate struct {
	SpawnMode  model.SpawnMode
	WorkingDir string
	Command    string
	Args       []string
}

// New constructs a Queue.
func New(store *storage.Store, sup *supervisor.Supervisor, hub *pushhub.Hub, c clock.Clock, cfg Config, tmpl LaunchTemplate) *Queue {
	return &Queue{
		store:      store,
		sup:        sup,
		hub:        hub,
		clock:      c,
		cfg:        cfg,
		spawnMode:  tmpl.SpawnMode,
		workingDir: tmpl.WorkingDir,
		spawnCmd:   tmpl.Command,
		spawnArgs:  tmpl.Args,
	}
}

// Enqueue admits a spawn request, checking depth and then role
// permission, and records dependency-derived blocking. Capacity is not
// checked here: Tick holds items while the fleet is full rather than
// rejecting them.
func (q *Queue) Enqueue(req EnqueueRequest) (*model.SpawnQueueItem, error) {
	depth := req.RequesterDepth + 1
	if depth > q.cfg.MaxDepth {
		return nil, errs.InvariantViolation("depth %d exceeds MAX_DEPTH %d", depth, q.cfg.MaxDepth)
	}
	if !supervisor.CanSpawn(req.RequesterRole) {
		return nil, errs.Forbidden("role %s lacks canSpawn", req.RequesterRole)
	}

	item := &model.SpawnQueueItem{
		ID:              ids.New(),
		RequesterHandle: req.RequesterHandle,
		TargetAgentType: req.TargetAgentType,
		DepthLevel:      depth,
		Priority:        req.Priority,
		Status:          model.SpawnPending,
		DependsOn:       req.DependsOn,
		Payload:         req.Payload,
		CreatedAt:       q.clock.NowMillis(),
	}
	if item.Priority == "" {
		item.Priority = model.PriorityNormal
	}

	if err := q.store.CreateSpawnItem(item); err != nil {
		return nil, err
	}

	q.publish("spawn:queued", item)
	return item, nil
}

// Cancel marks a still-pending item cancelled, e.g. when its requester is
// dismissed before the scheduler admits it.
func (q *Queue) Cancel(id string) error {
	item, err := q.store.GetSpawnItem(id)
	if err != nil {
		return err
	}
	if item.Status != model.SpawnPending {
		return errs.InvariantViolation("item %s is %s, not pending", id, item.Status)
	}
	return q.store.UpdateSpawnItemStatus(id, model.SpawnCancelled, q.clock.NowMillis(), nil, "")
}

// capacity reports the supervisor's total live worker count plus the
// queued-approved count, per spec.md §4.E rule 3.
func (q *Queue) capacity() (int, error) {
	status, err := q.sup.GetStatus()
	if err != nil {
		return 0, err
	}
	approved, err := q.store.ListSpawnItemsByStatus(model.SpawnApproved)
	if err != nil {
		return 0, err
	}
	return status.Total + len(approved), nil
}

// Tick runs one scheduler pass: select ready items ordered by
// (priority desc, createdAt asc), admit up to MaxFanOut of them if
// capacity allows, and hand each to the supervisor in order, per spec.md
// §4.E's scheduler loop. Called on cfg.TickMs by cmd/fleetd's cron
// schedule.
func (q *Queue) Tick() {
	used, err := q.capacity()
	if err != nil {
		return
	}
	if used >= q.cfg.MaxFleet {
		return
	}
	room := q.cfg.MaxFleet - used
	fanOut := q.cfg.MaxFanOut
	if room < fanOut {
		fanOut = room
	}
	if fanOut <= 0 {
		return
	}

	ready, err := q.store.ListReadySpawnItems(fanOut)
	if err != nil {
		return
	}

	for _, item := range ready {
		q.admit(item)
	}
}

func (q *Queue) admit(item *model.SpawnQueueItem) {
	now := q.clock.NowMillis()
	if err := q.store.UpdateSpawnItemStatus(item.ID, model.SpawnApproved, now, nil, ""); err != nil {
		return
	}
	q.publish("spawn:approved", item)

	w, err := q.sup.Spawn(supervisor.SpawnRequest{
		Handle:        ids.New(),
		Role:          item.TargetAgentType,
		WorkingDir:    q.workingDir,
		InitialPrompt: item.Payload.Task,
		SpawnMode:     q.spawnMode,
		DepthLevel:    item.DepthLevel,
		Command:       q.spawnCmd,
		Args:          q.spawnArgs,
	})
	if err != nil {
		_ = q.store.UpdateSpawnItemStatus(item.ID, model.SpawnRejected, q.clock.NowMillis(), nil, err.Error())
		q.publish("spawn:rejected", item)
		return
	}

	_ = q.store.UpdateSpawnItemStatus(item.ID, model.SpawnSpawned, q.clock.NowMillis(), &w.ID, "")
	q.publish("spawn:spawned", item)
}

func (q *Queue) publish(eventType string, item *model.SpawnQueueItem) {
	if q.hub == nil {
		return
	}
	q.hub.Publish(pushhub.Subject{Kind: pushhub.SubjectAll}, pushhub.Event{
		Type: eventType,
		Data: map[string]any{"id": item.ID, "requesterHandle": item.RequesterHandle, "status": string(item.Status)},
	})
}
