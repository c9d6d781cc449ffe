// ABOUTME: Thin HTTP collaborator: decodes query/JSON, calls one core operation per handler,
// ABOUTME: serializes {ok,value} or {err,kind,message}. No business logic lives here. See spec.md §6.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/compound"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/logging"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/spawnqueue"
	"github.com/fleetforge/fleetd/internal/storage"
	"github.com/fleetforge/fleetd/internal/supervisor"
	"github.com/fleetforge/fleetd/internal/swarmintel"
)

// Server is the chi-routed HTTP skin over the orchestration kernel.
type Server struct {
	sup     *supervisor.Supervisor
	queue   *spawnqueue.Queue
	store   *storage.Store
	hub     *pushhub.Hub
	intel   *swarmintel.Service
	compnd  *compound.Driver
	clock   clock.Clock
	router  chi.Router

	compoundRuns *compoundRegistry
}

// Deps bundles every collaborator Server needs, all constructed by
// cmd/fleetd's composition root.
type Deps struct {
	Supervisor *supervisor.Supervisor
	Queue      *spawnqueue.Queue // nil if the spawn queue isn't wired (e.g. in tests)
	Store      *storage.Store
	Hub        *pushhub.Hub
	Intel      *swarmintel.Service
	Compound   *compound.Driver // nil if the compound loop isn't wired
	Clock      clock.Clock
}

// NewServer builds a Server and its router.
func NewServer(d Deps) *Server {
	s := &Server{
		sup:          d.Supervisor,
		queue:        d.Queue,
		store:        d.Store,
		hub:          d.Hub,
		intel:        d.Intel,
		compnd:       d.Compound,
		clock:        d.Clock,
		compoundRuns: newCompoundRegistry(),
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP satisfies http.Handler by delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/v1/events", s.handleEvents)

	r.Route("/v1/workers", func(r chi.Router) {
		r.Get("/", s.handleListWorkers)
		r.Post("/", s.handleSpawnWorker)
		r.Post("/broadcast", s.handleBroadcast)
		r.Delete("/{handle}", s.handleDismissWorker)
		r.Get("/{handle}/output", s.handleWorkerOutput)
	})
	r.Get("/v1/status", s.handleStatus)

	r.Route("/v1/swarms", func(r chi.Router) {
		r.Get("/", s.handleListSwarms)
		r.Post("/", s.handleCreateSwarm)
		r.Get("/{id}", s.handleGetSwarm)
		r.Delete("/{id}", s.handleKillSwarm)
	})

	r.Route("/v1/blackboard", func(r chi.Router) {
		r.Post("/messages", s.handlePostMessage)
		r.Get("/messages", s.handleListMessages)
		r.Post("/messages/{id}/read", s.handleMarkMessageRead)
	})

	r.Route("/v1/spawn-queue", func(r chi.Router) {
		r.Post("/", s.handleEnqueue)
		r.Get("/{id}", s.handleGetSpawnItem)
		r.Post("/{id}/cancel", s.handleCancelSpawnItem)
	})

	r.Route("/v1/compound", func(r chi.Router) {
		r.Post("/runs", s.handleStartCompoundRun)
		r.Get("/runs/{id}", s.handleGetCompoundRun)
	})

	r.Route("/v1/pheromones", func(r chi.Router) {
		r.Post("/", s.handleDepositPheromone)
		r.Get("/", s.handleQueryPheromones)
		r.Get("/activity", s.handlePheromoneActivity)
		r.Get("/resources/{resourceId}", s.handleResourceTrails)
		r.Post("/decay", s.handleDecayPheromones)
	})

	r.Route("/v1/beliefs", func(r chi.Router) {
		r.Post("/", s.handleUpsertBelief)
		r.Get("/consensus", s.handleBeliefConsensus)
	})

	r.Route("/v1/credits", func(r chi.Router) {
		r.Get("/{swarmId}/{handle}", s.handleGetCreditAccount)
		r.Post("/transactions", s.handleRecordTransaction)
		r.Post("/transfer", s.handleTransferCredits)
		r.Post("/reputation", s.handleUpdateReputation)
		r.Get("/{swarmId}/leaderboard", s.handleLeaderboard)
		r.Get("/{swarmId}/{handle}/history", s.handleTransactionHistory)
	})

	r.Route("/v1/consensus", func(r chi.Router) {
		r.Post("/proposals", s.handleCreateProposal)
		r.Post("/proposals/{id}/votes", s.handleCastVote)
		r.Post("/proposals/{id}/close", s.handleCloseAndTally)
	})

	r.Route("/v1/bidding", func(r chi.Router) {
		r.Post("/bids", s.handleSubmitBid)
		r.Post("/tasks/{taskId}/evaluate", s.handleEvaluateBids)
		r.Post("/tasks/{taskId}/second-price-auction", s.handleSecondPriceAuction)
		r.Post("/bids/{bidId}/accept", s.handleAcceptBid)
	})

	r.Route("/v1/payoffs", func(r chi.Router) {
		r.Post("/", s.handleDefinePayoff)
		r.Get("/{taskId}/calculate", s.handleCalculatePayoff)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.store == nil || s.store.Healthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": healthy})
}

// envelope is the uniform {ok,value}/{err,kind,message} response shape
// spec.md §6 assigns to the HTTP collaborator.
type envelope struct {
	OK      bool   `json:"ok"`
	Value   any    `json:"value,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, value any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Value: value})
}

func writeCreated(w http.ResponseWriter, value any) {
	writeJSON(w, http.StatusCreated, envelope{OK: true, Value: value})
}

// writeErr maps an errs.Kind to an HTTP status and serializes the typed
// failure envelope, per spec.md §7's error taxonomy.
func writeErr(w http.ResponseWriter, err error) {
	kind := errs.KindInternal
	status := http.StatusInternalServerError
	if e, ok := err.(*errs.Error); ok {
		kind = e.Kind
		status = statusForKind(kind)
	}
	writeJSON(w, status, envelope{OK: false, Kind: string(kind), Message: err.Error()})
}

func statusForKind(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindInvariantViolation, errs.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindSpawnFailed:
		return http.StatusBadGateway
	case errs.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusRecorder captures the status code and byte count a handler wrote,
// for requestLogger. Mirrors the reference repository's web.statusRecorder.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// publishAll emits an event on the "all" subject, for kernel-level
// occurrences (swarm lifecycle) that don't belong to a single worker or
// swarm-scoped subject a client would already be subscribed to.
func publishAll(s *Server, eventType string, data map[string]any) {
	s.hub.Publish(pushhub.Subject{Kind: pushhub.SubjectAll}, pushhub.Event{Type: eventType, Data: data})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logging.Event("httpapi", "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration", time.Since(start).Round(time.Microsecond),
			"remote", r.RemoteAddr,
		)
	})
}
