// ABOUTME: Project-type detection by file presence, and the fixed gate
// ABOUTME: command table per type, per spec.md §4.F.
package compound

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fleetforge/fleetd/internal/logging"
)

// markerFiles is the file-presence vote, in spec.md §4.F's listed order:
// "package.json→node, Cargo.toml→rust, go.mod→go, pyproject.toml/setup.py
// →python, Makefile→make". The first match wins; a repo carrying several
// markers (e.g. a Go service with a Makefile) is classified by its most
// specific tooling, not its build wrapper.
var markerFiles = []struct {
	file string
	typ  ProjectType
}{
	{"package.json", ProjectNode},
	{"Cargo.toml", ProjectRust},
	{"go.mod", ProjectGo},
	{"pyproject.toml", ProjectPython},
	{"setup.py", ProjectPython},
	{"Makefile", ProjectMake},
}

// DetectProjectType votes on the project type of dir by file presence.
func DetectProjectType(dir string) ProjectType {
	for _, m := range markerFiles {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.typ
		}
	}
	return ProjectUnknown
}

// gateTables is the fixed command table per project type, spec.md §4.F:
// "Gate commands per type are a fixed table (typecheck, lint, tests, build
// as applicable)".
var gateTables = map[ProjectType][]Gate{
	ProjectNode: {
		{GateTypecheck, "npx tsc --noEmit"},
		{GateLint, "npx eslint ."},
		{GateTests, "npm test"},
		{GateBuild, "npm run build"},
	},
	ProjectRust: {
		{GateTypecheck, "cargo check"},
		{GateLint, "cargo clippy"},
		{GateTests, "cargo test"},
		{GateBuild, "cargo build"},
	},
	ProjectGo: {
		{GateTypecheck, "go vet ./..."},
		{GateLint, "golangci-lint run"},
		{GateTests, "go test ./..."},
		{GateBuild, "go build ./..."},
	},
	ProjectPython: {
		{GateTypecheck, "mypy ."},
		{GateLint, "ruff check ."},
		{GateTests, "pytest"},
	},
	ProjectMake: {
		{GateBuild, "make"},
		{GateTests, "make test"},
	},
}

// firstWord returns a command string's leading token, the binary a PATH
// lookup needs.
func firstWord(command string) string {
	for i, r := range command {
		if r == ' ' {
			return command[:i]
		}
	}
	return command
}

// GenerateGates returns the gate table for typ, dropping any gate whose
// command is missing on PATH with a logged warning, per spec.md §4.F.
func GenerateGates(typ ProjectType) []Gate {
	return generateGates(typ, exec.LookPath)
}

func generateGates(typ ProjectType, lookPath func(string) (string, error)) []Gate {
	table := gateTables[typ]
	gates := make([]Gate, 0, len(table))
	for _, g := range table {
		if _, err := lookPath(firstWord(g.Command)); err != nil {
			logging.Event("compound", "gate_dropped", "gate", g.Name, "command", g.Command, "reason", "not on PATH")
			continue
		}
		gates = append(gates, g)
	}
	return gates
}
