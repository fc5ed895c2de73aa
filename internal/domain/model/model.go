// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// IdentityLink ties a participant (wallet address) to an external repository account.
type IdentityLink struct {
	ParticipantID    string    `json:"participantId"`
	ExternalUsername string    `json:"username"`
	ExternalToken    string    `json:"-"`
	LinkedAt         time.Time `json:"linkedAt"`
}

// CompletionRecord marks one curriculum week as done. Written once, never mutated.
type CompletionRecord struct {
	ParticipantID string    `json:"participantId"`
	Week          int       `json:"week"`
	CompletedAt   time.Time `json:"completedAt"`
	CommitRef     string    `json:"commitRef"`
	Verified      bool      `json:"verified"`
}

// RewardRecord marks one curriculum week as paid. Written once, after a confirmed transfer.
type RewardRecord struct {
	ParticipantID string    `json:"participantId"`
	Week          int       `json:"week"`
	Amount        int64     `json:"amount"`
	TransferRef   string    `json:"transferRef"`
	DistributedAt time.Time `json:"distributedAt"`
}

// ScoreEntry is one leaderboard row.
type ScoreEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Score         int64  `json:"score"`
}

// IdentitySummary is the public part of an IdentityLink.
type IdentitySummary struct {
	Username string    `json:"username"`
	LinkedAt time.Time `json:"linkedAt"`
}

// Progress is the read model behind the progress query.
type Progress struct {
	ParticipantID    string                   `json:"participantId"`
	Identity         *IdentitySummary         `json:"identity"`
	CompletedWeeks   []int                    `json:"completedWeeks"`
	TotalWeeks       int                      `json:"totalWeeks"`
	Completions      map[int]CompletionRecord `json:"completions"`
	Rewards          map[int]RewardRecord     `json:"rewards"`
	TotalEarned      int64                    `json:"totalEarned"`
	TotalDistributed int64                    `json:"totalDistributed"`
	Pending          int64                    `json:"pendingReward"`
}

// Submission describes a deliverable pushed to the homework repository.
type Submission struct {
	Path      string `json:"path"`
	CommitRef string `json:"commitRef"`
	URL       string `json:"url"`
}

// Ledger event types.
const (
	EventWeekCompleted     = "homework.week_completed"
	EventRewardDistributed = "homework.reward_distributed"
)

// LedgerEvent is a fact emitted after a ledger write succeeds.
type LedgerEvent struct {
	Type          string    `json:"type"`
	ParticipantID string    `json:"participantId"`
	Week          int       `json:"week"`
	Amount        int64     `json:"amount,omitempty"`
	Ref           string    `json:"ref,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NormalizeParticipant canonicalises a wallet address for use as a ledger key.
func NormalizeParticipant(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NormalizeUsername canonicalises an external username for the reverse index.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
