// ABOUTME: fleetd is the composition root: wires storage, supervisor,
// ABOUTME: spawn queue, compound loop, and swarm intelligence into an HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/compound"
	"github.com/fleetforge/fleetd/internal/gitutil"
	"github.com/fleetforge/fleetd/internal/httpapi"
	"github.com/fleetforge/fleetd/internal/launcher"
	"github.com/fleetforge/fleetd/internal/logging"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/spawnqueue"
	"github.com/fleetforge/fleetd/internal/storage"
	"github.com/fleetforge/fleetd/internal/supervisor"
	"github.com/fleetforge/fleetd/internal/swarmintel"
)

func main() {
	loadDotEnv(".env")
	loadDotEnvAuto()

	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.home, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create %s: %v\n", cfg.home, err)
		return 1
	}

	c := clock.Real{}
	dbPath := filepath.Join(cfg.home, "fleetd.db")
	store, err := storage.Open(dbPath, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	hub := pushhub.New()
	git := gitutil.Real{}
	launch := launcher.Real{}

	sup := supervisor.New(store, hub, c, launch, git, cfg.supervisor)

	queueTmpl := spawnqueue.LaunchTemplate{
		SpawnMode:  model.SpawnModeProcess,
		WorkingDir: ".",
		Command:    envString("FLEETD_AGENT_COMMAND", "claude"),
	}
	queue := spawnqueue.New(store, sup, hub, c, cfg.spawnQueue, queueTmpl)

	intel := swarmintel.New(store, hub, c)

	compoundTmpl := compound.LaunchTemplate{
		Command: envString("FLEETD_AGENT_COMMAND", "claude"),
	}
	driver := compound.NewDriver(sup, store, git, c, hub, cfg.compound, compoundTmpl)

	server := httpapi.NewServer(httpapi.Deps{
		Supervisor: sup,
		Queue:      queue,
		Store:      store,
		Hub:        hub,
		Intel:      intel,
		Compound:   driver,
		Clock:      c,
	})

	sched := cron.New(cron.WithSeconds())
	registerTick(sched, cfg.supervisor.HealthTickMs, func() { sup.TickHealth() })
	registerTick(sched, cfg.spawnQueue.TickMs, func() { queue.Tick() })
	registerTick(sched, cfg.pheromoneDecayIntervalMs, func() {
		if _, err := intel.ProcessDecay(0.1, 0.01); err != nil {
			logging.Event("fleetd", "pheromone_decay_error", "error", err)
		}
	})
	sched.Start()
	defer sched.Stop()

	httpServer := &http.Server{
		Addr:              cfg.bind,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logging.Event("fleetd", "listening", "addr", cfg.bind)
	fmt.Fprintf(os.Stderr, "listening on %s\n", cfg.bind)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// registerTick schedules fn to run every intervalMs milliseconds. A
// non-positive interval disables the tick.
func registerTick(sched *cron.Cron, intervalMs int64, fn func()) {
	if intervalMs <= 0 {
		return
	}
	spec := fmt.Sprintf("@every %dms", intervalMs)
	if _, err := sched.AddFunc(spec, fn); err != nil {
		logging.Event("fleetd", "schedule_error", "spec", spec, "error", err)
	}
}
