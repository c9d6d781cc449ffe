// ABOUTME: Environment-driven configuration for fleetd, per spec.md §6 and
// ABOUTME: the scheduler tick knobs component E and component G need to run.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fleetforge/fleetd/internal/compound"
	"github.com/fleetforge/fleetd/internal/spawnqueue"
	"github.com/fleetforge/fleetd/internal/supervisor"
)

type config struct {
	home        string
	bind        string
	allowRemote bool
	authToken   string

	supervisor supervisor.Config
	spawnQueue spawnqueue.Config
	compound   compound.Config

	pheromoneDecayIntervalMs int64
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envInt(key string, def int) int {
	return int(envInt64(key, int64(def)))
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// loadConfig reads configuration from the environment, applying the
// documented defaults everywhere a variable is unset.
func loadConfig() (config, error) {
	home := envString("FLEETD_HOME", defaultHome())

	supCfg := supervisor.DefaultConfig()
	supCfg.MaxDepth = envInt("MAX_DEPTH", supCfg.MaxDepth)
	supCfg.MaxRestarts = envInt("MAX_RESTARTS", supCfg.MaxRestarts)
	supCfg.DismissGraceMs = envInt64("DISMISS_GRACE_MS", supCfg.DismissGraceMs)
	supCfg.HealthTickMs = envInt64("HEALTH_TICK_MS", supCfg.HealthTickMs)

	sqCfg := spawnqueue.DefaultConfig()
	sqCfg.MaxDepth = envInt("MAX_DEPTH", sqCfg.MaxDepth)
	sqCfg.MaxFleet = envInt("MAX_FLEET", sqCfg.MaxFleet)
	sqCfg.TickMs = envInt64("SPAWN_QUEUE_TICK_MS", sqCfg.TickMs)
	sqCfg.MaxFanOut = envInt("SPAWN_QUEUE_FANOUT", sqCfg.MaxFanOut)

	cmpCfg := compound.DefaultConfig()
	cmpCfg.PollIntervalMs = envInt64("POLL_INTERVAL_MS", cmpCfg.PollIntervalMs)

	cfg := config{
		home:                     home,
		bind:                     envString("FLEETD_BIND", "127.0.0.1:7770"),
		allowRemote:              envBool("FLEETD_ALLOW_REMOTE", false),
		authToken:                envString("FLEETD_AUTH_TOKEN", ""),
		supervisor:               supCfg,
		spawnQueue:               sqCfg,
		compound:                 cmpCfg,
		pheromoneDecayIntervalMs: envInt64("PHEROMONE_DECAY_INTERVAL_MS", 60000),
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// validate enforces the loopback-safety gate: a non-loopback bind address
// requires an explicit auth token, mirroring the reference repository's
// refusal to serve an unauthenticated remote-bound listener.
func (c config) validate() error {
	if c.allowRemote && c.authToken == "" {
		return fmt.Errorf("FLEETD_ALLOW_REMOTE=true requires FLEETD_AUTH_TOKEN to be set")
	}
	if !c.allowRemote && !isLoopback(c.bind) {
		return fmt.Errorf("refusing to bind non-loopback address %q without FLEETD_ALLOW_REMOTE=true", c.bind)
	}
	return nil
}

func isLoopback(bind string) bool {
	host := bind
	if idx := strings.LastIndex(bind, ":"); idx >= 0 {
		host = bind[:idx]
	}
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fleetd"
	}
	return filepath.Join(home, ".fleetd")
}
