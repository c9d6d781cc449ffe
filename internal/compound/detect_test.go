// ABOUTME: Tests for project-type detection and gate-table generation.
// ABOUTME: See spec.md §4.F.
package compound

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectProjectTypeByMarkerFile(t *testing.T) {
	cases := []struct {
		marker string
		want   ProjectType
	}{
		{"package.json", ProjectNode},
		{"Cargo.toml", ProjectRust},
		{"go.mod", ProjectGo},
		{"pyproject.toml", ProjectPython},
		{"Makefile", ProjectMake},
	}
	for _, c := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, c.marker), []byte(""), 0o644); err != nil {
			t.Fatalf("write marker: %v", err)
		}
		if got := DetectProjectType(dir); got != c.want {
			t.Errorf("marker %s: got %s, want %s", c.marker, got, c.want)
		}
	}
}

func TestDetectProjectTypeUnknownWhenNoMarker(t *testing.T) {
	dir := t.TempDir()
	if got := DetectProjectType(dir); got != ProjectUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestDetectProjectTypePrefersEarlierMarker(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"package.json", "Makefile"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	if got := DetectProjectType(dir); got != ProjectNode {
		t.Fatalf("expected node to win over make, got %s", got)
	}
}

func TestGenerateGatesDropsMissingBinaries(t *testing.T) {
	lookPath := func(bin string) (string, error) {
		if bin == "go" {
			return "/usr/bin/go", nil
		}
		return "", errors.New("not found")
	}
	gates := generateGates(ProjectGo, lookPath)
	if len(gates) != 3 {
		t.Fatalf("expected 3 go-prefixed gates to survive, got %d: %+v", len(gates), gates)
	}
	for _, g := range gates {
		if firstWord(g.Command) != "go" {
			t.Errorf("expected only go-prefixed commands to survive, got %q", g.Command)
		}
	}
}

func TestGenerateGatesKeepsAllWhenEverythingOnPath(t *testing.T) {
	lookPath := func(bin string) (string, error) { return "/usr/bin/" + bin, nil }
	gates := generateGates(ProjectRust, lookPath)
	if len(gates) != len(gateTables[ProjectRust]) {
		t.Fatalf("expected all %d rust gates, got %d", len(gateTables[ProjectRust]), len(gates))
	}
}
