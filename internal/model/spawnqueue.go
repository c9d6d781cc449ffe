// ABOUTME: Spawn queue item entity and priority/status enums.
// ABOUTME: See spec.md §3, §4.E.
package model

// Priority orders spawn queue items and blackboard messages.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityRank gives Priority a total order for scheduler sorting, highest
// first (spec.md §4.E: "(priority desc, createdAt asc)").
var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityNormal:   1,
	PriorityLow:      0,
}

// Rank returns p's sort weight; higher sorts first.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// SpawnQueueStatus is a SpawnQueueItem's lifecycle state.
type SpawnQueueStatus string

const (
	SpawnPending   SpawnQueueStatus = "pending"
	SpawnApproved  SpawnQueueStatus = "approved"
	SpawnRejected  SpawnQueueStatus = "rejected"
	SpawnSpawned   SpawnQueueStatus = "spawned"
	SpawnCancelled SpawnQueueStatus = "cancelled"
	SpawnBlocked   SpawnQueueStatus = "blocked"
)

// SpawnPayload carries the task handoff for a requested worker.
type SpawnPayload struct {
	Task       string
	Context    string
	Checkpoint string
}

// SpawnQueueItem is a pending request from an existing worker to spawn a
// new one. See spec.md §3.
type SpawnQueueItem struct {
	ID               string
	RequesterHandle  string
	TargetAgentType  Role
	DepthLevel       int
	Priority         Priority
	Status           SpawnQueueStatus
	DependsOn        []string
	BlockedByCount   int
	Payload          SpawnPayload
	CreatedAt        int64
	ProcessedAt      *int64
	SpawnedWorkerID  *string
	RejectReason     string
}

// Ready reports whether an item's dependencies are all satisfied and it is
// still pending admission (spec.md §4.E rule 4: "only zero-count items are
// ready").
func (i *SpawnQueueItem) Ready() bool {
	return i.Status == SpawnPending && i.BlockedByCount == 0
}

// EffectiveStatus derives the externally visible status, folding the
// "blocked" pseudo-state in per spec.md §3: "blocked is derived
// (blockedByCount>0)".
func (i *SpawnQueueItem) EffectiveStatus() SpawnQueueStatus {
	if i.Status == SpawnPending && i.BlockedByCount > 0 {
		return SpawnBlocked
	}
	return i.Status
}
