// ABOUTME: Swarm-intelligence entities: pheromone trails, beliefs, credit accounts,
// ABOUTME: proposals/votes, task bids, and payoff definitions. See spec.md §3, §4.G.
package model

// PheromoneTrail is a decaying numeric weight deposited on a resource by an
// agent, used for stigmergic coordination. See spec.md §3, §4.G.
type PheromoneTrail struct {
	ID               string
	SwarmID          string
	DepositorHandle  string
	ResourceID       string
	ResourceType     string
	TrailType        string
	Intensity        float64
	Metadata         map[string]string
	CreatedAt        int64
}

// ResourceActivity summarizes the hottest resources for a swarm, per
// spec.md §4.G Pheromones.getActivity.
type ResourceActivity struct {
	ResourceID     string
	ResourceType   string
	TotalIntensity float64
	TrailCount     int
}

// Belief is an agent's typed assertion about a subject, with a confidence
// in [0,1] and supporting evidence. See spec.md §4.G Beliefs.
type Belief struct {
	AgentHandle string
	Subject     string
	BeliefType  string
	Value       string
	Confidence  float64
	Evidence    []string
	UpdatedAt   int64
}

// Consensus is the aggregated result of SwarmConsensus over beliefs
// sharing a subject.
type Consensus struct {
	Subject          string
	MajorityValue    string
	ParticipantCount int
	AgreeingCount    int
	ParticipationPct float64
}

// CreditAccount tracks an agent's balance and reputation within a swarm.
// See spec.md §3, §4.G Credits.
type CreditAccount struct {
	SwarmID         string
	AgentHandle     string
	Balance         float64
	ReputationScore float64
	TotalEarned     float64
	TaskCount       int
	SuccessCount    int
}

// TransactionType discriminates a credit ledger entry.
type TransactionType string

const (
	TxEarn    TransactionType = "earn"
	TxSpend   TransactionType = "spend"
	TxBonus   TransactionType = "bonus"
	TxPenalty TransactionType = "penalty"
)

// CreditTransaction is one ledger entry recorded against an account.
type CreditTransaction struct {
	ID          string
	SwarmID     string
	AgentHandle string
	Type        TransactionType
	Amount      float64
	Reason      string
	CreatedAt   int64
}

// LeaderboardEntry is one row of Credits.getLeaderboard.
type LeaderboardEntry struct {
	AgentHandle string
	Balance     float64
	Reputation  float64
	TaskCount   int
}

// ProposalStatus is a Proposal's lifecycle state.
type ProposalStatus string

const (
	ProposalOpen   ProposalStatus = "open"
	ProposalClosed ProposalStatus = "closed"
)

// Proposal is a swarm decision up for vote. See spec.md §4.G Consensus.
type Proposal struct {
	ID          string
	SwarmID     string
	ProposerHandle string
	Subject     string
	Options     []string
	Status      ProposalStatus
	Deadline    *int64
	CreatedAt   int64
	ClosedAt    *int64
	Winner      string
	Quorum      int
	Participation float64
}

// Vote is one agent's ballot on a Proposal.
type Vote struct {
	ProposalID  string
	VoterHandle string
	Option      string
	CastAt      int64
}

// BidStatus is a TaskBid's lifecycle state.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// TaskBid is an agent's bid to perform a task. See spec.md §4.G Bidding.
type TaskBid struct {
	ID            string
	TaskID        string
	BidderHandle  string
	Amount        float64
	Confidence    float64
	Status        BidStatus
	CreatedAt     int64
}

// AuctionResult is the outcome of evaluating or running an auction over a
// task's pending bids.
type AuctionResult struct {
	TaskID         string
	WinnerHandle   string
	WinningBidID   string
	EffectivePrice float64
	Scores         map[string]float64
}

// PayoffDefinition is an upserted (task, type) reward rule. See spec.md
// §4.G Payoffs.
type PayoffDefinition struct {
	TaskID     string
	Type       string
	BaseValue  float64
	Multiplier float64
	Deadline   *int64
	DecayRate  float64
}
