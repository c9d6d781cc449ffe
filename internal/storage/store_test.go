// ABOUTME: Tests for Open, Close, Healthy, and the schema migration it runs on open.
package storage

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fleetforge/fleetd/internal/clock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", clock.NewFake(1_700_000_000_000))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAndHealthy(t *testing.T) {
	s := newTestStore(t)
	if !s.Healthy() {
		t.Fatal("expected fresh store to be healthy")
	}
}

var errSentinel = errors.New("sentinel")

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	err := s.withTx(func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(`INSERT INTO swarms (id, name, description, max_agents, created_at) VALUES ('s1','x','',5,0)`); execErr != nil {
			t.Fatalf("exec inside tx: %v", execErr)
		}
		return errSentinel
	})
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, err := s.GetSwarm("s1"); err == nil {
		t.Fatal("expected insert to have rolled back")
	}
}
