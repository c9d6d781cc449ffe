// ABOUTME: Narrow git-invoker interface the compound driver and supervisor depend on.
// ABOUTME: Neither shells out directly, so both can be driven by a fake in tests. See spec.md §6.
package gitutil

// Git exposes the exact operations spec.md §6 lists, plus the worktree
// allocation §4.D's spawn() needs for process-mode workers that require
// an isolated working copy.
type Git interface {
	CurrentBranch(dir string) (string, error)
	PorcelainStatus(dir string) (string, error)
	CheckoutNew(dir, name, from string) error
	CommitAll(dir, message string) error
	StashPush(dir, label string) error
	StashPop(dir string) error
	Checkout(dir, name string) error

	AddWorktree(repoDir, worktreePath, branch string) error
	RemoveWorktree(repoDir, worktreePath string) error
}
