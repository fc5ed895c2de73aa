// Package repository persists the homework ledgers: identity links, completions,
// pending rewards, reward records, the completion leaderboard and in-flight markers.
//
// Every write is a single-key primitive (set-if-absent, add-to-set, remove-from-set,
// increment) so callers can compose them without multi-key transactions.
package repository

import (
	"context"
	"time"

	"github.com/okian/homework/internal/domain/model"
)

// Identities stores identity links and the username reverse index.
type Identities interface {
	// LinkIdentity writes the participant link and the username reverse index together.
	// A participant has at most one active link; relinking replaces it.
	LinkIdentity(ctx context.Context, link model.IdentityLink) error
	// IdentityByParticipant returns ErrNotFound when the participant is not linked.
	IdentityByParticipant(ctx context.Context, participant string) (model.IdentityLink, error)
	// ParticipantByUsername returns ErrNotFound when the username is not linked.
	ParticipantByUsername(ctx context.Context, username string) (string, error)
}

// Completions stores completion records and the per-participant completion set.
type Completions interface {
	// CreateCompletion writes rec only if no record exists for (participant, week).
	// Returns true when this call created it.
	CreateCompletion(ctx context.Context, rec model.CompletionRecord) (bool, error)
	// AddCompletedWeek adds week to the participant's completion set. Idempotent.
	AddCompletedWeek(ctx context.Context, participant string, week int) error
	// CompletedWeeks returns the completion set in ascending order.
	CompletedWeeks(ctx context.Context, participant string) ([]int, error)
	// Completion returns ErrNotFound when no record exists.
	Completion(ctx context.Context, participant string, week int) (model.CompletionRecord, error)
	Completions(ctx context.Context, participant string) (map[int]model.CompletionRecord, error)
}

// Pending stores the per-week set of participants awaiting a reward.
type Pending interface {
	AddPending(ctx context.Context, week int, participant string) error
	RemovePending(ctx context.Context, week int, participant string) error
	// PendingParticipants returns the pending set for week in ascending order.
	PendingParticipants(ctx context.Context, week int) ([]string, error)
}

// Rewards stores reward records.
type Rewards interface {
	// CreateReward writes rec only if no record exists for (participant, week).
	// Returns true when this call created it.
	CreateReward(ctx context.Context, rec model.RewardRecord) (bool, error)
	Rewards(ctx context.Context, participant string) (map[int]model.RewardRecord, error)
}

// Leaderboard keeps the completion score per participant.
type Leaderboard interface {
	// IncrementScore adds delta to the participant's score and returns the new score.
	IncrementScore(ctx context.Context, participant string, delta int64) (int64, error)
	// TopN returns the top-n entries ordered by score desc, participant asc.
	// Equal scores share a rank.
	TopN(ctx context.Context, n int) ([]model.ScoreEntry, error)
	// Rank returns ErrNotFound when the participant has no score.
	Rank(ctx context.Context, participant string) (model.ScoreEntry, error)
	Count(ctx context.Context) (int, error)
}

// Markers holds short-lived owner-tokened in-flight markers.
type Markers interface {
	// AcquireMarker sets key to owner if the key is free or expired. Returns true on success.
	AcquireMarker(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseMarker deletes key only if owner still holds it.
	ReleaseMarker(ctx context.Context, key, owner string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	Identities
	Completions
	Pending
	Rewards
	Leaderboard
	Markers
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
