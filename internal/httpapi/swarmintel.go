// ABOUTME: HTTP handlers for pheromones, beliefs, credits, consensus, bidding, and payoffs.
// ABOUTME: Each decodes its request and calls exactly one swarmintel.Service operation.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

func intelUnwired(w http.ResponseWriter, s *Server) bool {
	if s.intel == nil {
		writeErr(w, errs.Internal("swarm intelligence is not wired"))
		return true
	}
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// --- pheromones ---

type depositPheromoneRequest struct {
	SwarmID         string            `json:"swarmId"`
	DepositorHandle string            `json:"depositorHandle"`
	ResourceID      string            `json:"resourceId"`
	ResourceType    string            `json:"resourceType"`
	TrailType       string            `json:"trailType"`
	Intensity       float64           `json:"intensity"`
	Metadata        map[string]string `json:"metadata"`
}

func (s *Server) handleDepositPheromone(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req depositPheromoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	trail, err := s.intel.Deposit(req.SwarmID, req.DepositorHandle, req.ResourceID, req.ResourceType, req.TrailType, req.Intensity, req.Metadata)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, trail)
}

func (s *Server) handleQueryPheromones(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	q := r.URL.Query()
	trails, err := s.intel.Query(q.Get("swarmId"), q.Get("resourceType"), q.Get("trailType"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, trails)
}

func (s *Server) handleResourceTrails(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	resourceID := chi.URLParam(r, "resourceId")
	swarmID := r.URL.Query().Get("swarmId")
	trails, err := s.intel.GetResourceTrails(swarmID, resourceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, trails)
}

func (s *Server) handlePheromoneActivity(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	q := r.URL.Query()
	activity, err := s.intel.GetActivity(q.Get("swarmId"), queryInt(r, "limit", 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, activity)
}

type decayPheromonesRequest struct {
	Rate         float64 `json:"rate"`
	MinIntensity float64 `json:"minIntensity"`
}

func (s *Server) handleDecayPheromones(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req decayPheromonesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	result, err := s.intel.ProcessDecay(req.Rate, req.MinIntensity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, result)
}

// --- beliefs ---

type upsertBeliefRequest struct {
	SwarmID     string   `json:"swarmId"`
	AgentHandle string   `json:"agentHandle"`
	Subject     string   `json:"subject"`
	BeliefType  string   `json:"beliefType"`
	Value       string   `json:"value"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence"`
}

func (s *Server) handleUpsertBelief(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req upsertBeliefRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	belief, err := s.intel.Upsert(req.SwarmID, req.AgentHandle, req.Subject, req.BeliefType, req.Value, req.Confidence, req.Evidence)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, belief)
}

func (s *Server) handleBeliefConsensus(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	q := r.URL.Query()
	consensus, err := s.intel.GetSwarmConsensus(q.Get("swarmId"), q.Get("subject"), queryFloat(r, "minConfidence", 0))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, consensus)
}

// --- credits ---

func (s *Server) handleGetCreditAccount(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	swarmID := chi.URLParam(r, "swarmId")
	handle := chi.URLParam(r, "handle")
	account, err := s.intel.GetOrCreate(swarmID, handle)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, account)
}

type recordTransactionRequest struct {
	SwarmID     string  `json:"swarmId"`
	AgentHandle string  `json:"agentHandle"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Reason      string  `json:"reason"`
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req recordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	tx, err := s.intel.RecordTransaction(req.SwarmID, req.AgentHandle, model.TransactionType(req.Type), req.Amount, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, tx)
}

type transferCreditsRequest struct {
	SwarmID    string  `json:"swarmId"`
	FromHandle string  `json:"fromHandle"`
	ToHandle   string  `json:"toHandle"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
}

func (s *Server) handleTransferCredits(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req transferCreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	if err := s.intel.Transfer(req.SwarmID, req.FromHandle, req.ToHandle, req.Amount, req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"transferred": true})
}

type updateReputationRequest struct {
	SwarmID     string  `json:"swarmId"`
	AgentHandle string  `json:"agentHandle"`
	Success     bool    `json:"success"`
	Weight      float64 `json:"weight"`
}

func (s *Server) handleUpdateReputation(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req updateReputationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	reputation, err := s.intel.UpdateReputation(req.SwarmID, req.AgentHandle, req.Success, req.Weight)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"reputation": reputation})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	swarmID := chi.URLParam(r, "swarmId")
	orderBy := r.URL.Query().Get("orderBy")
	entries, err := s.intel.GetLeaderboard(swarmID, orderBy, queryInt(r, "limit", 10))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, entries)
}

func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	swarmID := chi.URLParam(r, "swarmId")
	handle := chi.URLParam(r, "handle")
	history, err := s.intel.GetTransactionHistory(swarmID, handle, queryInt(r, "limit", 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, history)
}

// --- consensus ---

type createProposalRequest struct {
	SwarmID        string   `json:"swarmId"`
	ProposerHandle string   `json:"proposerHandle"`
	Subject        string   `json:"subject"`
	Options        []string `json:"options"`
	Quorum         int      `json:"quorum"`
	Deadline       *int64   `json:"deadline"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req createProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	proposal, err := s.intel.CreateProposal(req.SwarmID, req.ProposerHandle, req.Subject, req.Options, req.Quorum, req.Deadline)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, proposal)
}

type castVoteRequest struct {
	VoterHandle string `json:"voterHandle"`
	Option      string `json:"option"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	id := chi.URLParam(r, "id")
	var req castVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	if err := s.intel.CastVote(id, req.VoterHandle, req.Option); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"voted": true})
}

func (s *Server) handleCloseAndTally(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	id := chi.URLParam(r, "id")
	proposal, err := s.intel.CloseAndTally(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, proposal)
}

// --- bidding ---

type submitBidRequest struct {
	TaskID       string  `json:"taskId"`
	BidderHandle string  `json:"bidderHandle"`
	Amount       float64 `json:"amount"`
	Confidence   float64 `json:"confidence"`
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req submitBidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	bid, err := s.intel.SubmitBid(req.TaskID, req.BidderHandle, req.Amount, req.Confidence)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, bid)
}

type evaluateBidsRequest struct {
	Reputations      map[string]float64 `json:"reputations"`
	WeightBid        float64            `json:"weightBid"`
	WeightConfidence float64            `json:"weightConfidence"`
	WeightReputation float64            `json:"weightReputation"`
	PreferLowerBids  bool               `json:"preferLowerBids"`
}

func (s *Server) handleEvaluateBids(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	taskID := chi.URLParam(r, "taskId")
	var req evaluateBidsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	result, err := s.intel.EvaluateBids(taskID, req.Reputations, req.WeightBid, req.WeightConfidence, req.WeightReputation, req.PreferLowerBids)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleSecondPriceAuction(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	taskID := chi.URLParam(r, "taskId")
	result, err := s.intel.RunSecondPriceAuction(taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	bidID := chi.URLParam(r, "bidId")
	taskID := r.URL.Query().Get("taskId")
	if err := s.intel.AcceptBid(taskID, bidID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"accepted": true})
}

// --- payoffs ---

type definePayoffRequest struct {
	TaskID     string  `json:"taskId"`
	PayoffType string  `json:"payoffType"`
	BaseValue  float64 `json:"baseValue"`
	Multiplier float64 `json:"multiplier"`
	Deadline   *int64  `json:"deadline"`
	DecayRate  float64 `json:"decayRate"`
}

func (s *Server) handleDefinePayoff(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	var req definePayoffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	def, err := s.intel.Define(req.TaskID, req.PayoffType, req.BaseValue, req.Multiplier, req.Deadline, req.DecayRate)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, def)
}

func (s *Server) handleCalculatePayoff(w http.ResponseWriter, r *http.Request) {
	if intelUnwired(w, s) {
		return
	}
	taskID := chi.URLParam(r, "taskId")
	now := s.clock.NowMillis()
	if v := r.URL.Query().Get("now"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			now = n
		}
	}
	value, err := s.intel.Calculate(taskID, now)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"value": value})
}
