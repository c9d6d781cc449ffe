// ABOUTME: Per-role permission matrix gating which operations each worker role may call.
// ABOUTME: See spec.md §4.D.
package supervisor

import "github.com/fleetforge/fleetd/internal/model"

// permissions is one role's flags from the permission matrix, per spec.md
// §4.D.
type permissions struct {
	canSpawn     bool
	canDismiss   bool
	canAssign    bool
	canBroadcast bool
	canMerge     bool
	canPush      bool
	readAll      bool
	canNotify    bool
}

// CanSpawn reports whether role carries the canSpawn permission, for
// callers (the spawn queue's admission rule 2) that need the check without
// going through a Supervisor method.
func CanSpawn(role model.Role) bool {
	return rolePermissions[role].canSpawn
}

var rolePermissions = map[model.Role]permissions{
	model.RoleCoordinator: {canSpawn: true, canDismiss: true, canAssign: true, canBroadcast: true, canMerge: true, canPush: true, readAll: true, canNotify: true},
	model.RoleWorker:      {canNotify: true},
	model.RoleScout:       {readAll: true, canNotify: true},
	model.RoleKraken:      {canNotify: true},
	model.RoleOracle:      {readAll: true, canNotify: true},
	model.RoleCritic:      {readAll: true, canNotify: true},
	model.RoleArchitect:   {canAssign: true, readAll: true, canNotify: true},
	model.RoleMerger:      {canMerge: true, canPush: true, readAll: true, canNotify: true},
	model.RoleMonitor:     {canBroadcast: true, readAll: true, canNotify: true},
	model.RoleNotifier:    {canNotify: true},
}
