package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/homework/internal/domain/model"
)

const backendPostgres = "postgres"

// PostgresSchema creates every table the PostgresStore uses. Safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS identities (
	participant TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	token TEXT NOT NULL DEFAULT '',
	linked_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS identity_usernames (
	username TEXT PRIMARY KEY,
	participant TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS completions (
	participant TEXT NOT NULL,
	week INTEGER NOT NULL,
	detail JSONB NOT NULL,
	PRIMARY KEY (participant, week)
);
CREATE TABLE IF NOT EXISTS completed_weeks (
	participant TEXT NOT NULL,
	week INTEGER NOT NULL,
	PRIMARY KEY (participant, week)
);
CREATE TABLE IF NOT EXISTS pending_rewards (
	week INTEGER NOT NULL,
	participant TEXT NOT NULL,
	PRIMARY KEY (week, participant)
);
CREATE TABLE IF NOT EXISTS rewards (
	participant TEXT NOT NULL,
	week INTEGER NOT NULL,
	detail JSONB NOT NULL,
	PRIMARY KEY (participant, week)
);
CREATE TABLE IF NOT EXISTS scores (
	participant TEXT PRIMARY KEY,
	score BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS markers (
	key TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scores_score ON scores (score DESC, participant);
`

// PostgresStore persists the ledgers in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchema)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LinkIdentity(ctx context.Context, link model.IdentityLink) (err error) {
	defer observe(backendPostgres, "link_identity", time.Now())
	p := model.NormalizeParticipant(link.ParticipantID)
	u := model.NormalizeUsername(link.ExternalUsername)
	if p == "" || u == "" {
		return fmt.Errorf("%w: participant and username required", ErrInvalidRecord)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var old string
	err = tx.QueryRow(ctx, `SELECT username FROM identities WHERE participant=$1 FOR UPDATE`, p).Scan(&old)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = nil
	case err != nil:
		return err
	case old != u:
		if _, err = tx.Exec(ctx,
			`DELETE FROM identity_usernames WHERE username=$1 AND participant=$2`, old, p); err != nil {
			return err
		}
	}

	// a username moving to p unlinks its previous owner
	if _, err = tx.Exec(ctx,
		`DELETE FROM identities WHERE username=$1 AND participant<>$2`, u, p); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO identities (participant, username, token, linked_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (participant) DO UPDATE SET username=EXCLUDED.username, token=EXCLUDED.token, linked_at=EXCLUDED.linked_at`,
		p, u, link.ExternalToken, link.LinkedAt.UTC()); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO identity_usernames (username, participant) VALUES ($1,$2)
		 ON CONFLICT (username) DO UPDATE SET participant=EXCLUDED.participant`, u, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) IdentityByParticipant(ctx context.Context, participant string) (model.IdentityLink, error) {
	var link model.IdentityLink
	err := s.pool.QueryRow(ctx,
		`SELECT participant, username, token, linked_at FROM identities WHERE participant=$1`,
		model.NormalizeParticipant(participant)).Scan(&link.ParticipantID, &link.ExternalUsername, &link.ExternalToken, &link.LinkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.IdentityLink{}, ErrNotFound
	}
	return link, err
}

func (s *PostgresStore) ParticipantByUsername(ctx context.Context, username string) (string, error) {
	var p string
	err := s.pool.QueryRow(ctx,
		`SELECT participant FROM identity_usernames WHERE username=$1`, model.NormalizeUsername(username)).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) CreateCompletion(ctx context.Context, rec model.CompletionRecord) (bool, error) {
	defer observe(backendPostgres, "create_completion", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: completion needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO completions (participant, week, detail) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		rec.ParticipantID, rec.Week, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AddCompletedWeek(ctx context.Context, participant string, week int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO completed_weeks (participant, week) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		model.NormalizeParticipant(participant), week)
	return err
}

func (s *PostgresStore) CompletedWeeks(ctx context.Context, participant string) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT week FROM completed_weeks WHERE participant=$1 ORDER BY week`, model.NormalizeParticipant(participant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int{}
	for rows.Next() {
		var w int
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Completion(ctx context.Context, participant string, week int) (model.CompletionRecord, error) {
	var raw any
	err := s.pool.QueryRow(ctx,
		`SELECT detail FROM completions WHERE participant=$1 AND week=$2`,
		model.NormalizeParticipant(participant), week).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CompletionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.CompletionRecord{}, err
	}
	var rec model.CompletionRecord
	return rec, decodeDetail(raw, &rec)
}

func (s *PostgresStore) Completions(ctx context.Context, participant string) (map[int]model.CompletionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT week, detail FROM completions WHERE participant=$1`, model.NormalizeParticipant(participant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int]model.CompletionRecord)
	for rows.Next() {
		var (
			week int
			raw  any
			rec  model.CompletionRecord
		)
		if err := rows.Scan(&week, &raw); err != nil {
			return nil, err
		}
		if err := decodeDetail(raw, &rec); err != nil {
			return nil, err
		}
		out[week] = rec
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddPending(ctx context.Context, week int, participant string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_rewards (week, participant) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		week, model.NormalizeParticipant(participant))
	return err
}

func (s *PostgresStore) RemovePending(ctx context.Context, week int, participant string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_rewards WHERE week=$1 AND participant=$2`, week, model.NormalizeParticipant(participant))
	return err
}

func (s *PostgresStore) PendingParticipants(ctx context.Context, week int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant FROM pending_rewards WHERE week=$1 ORDER BY participant`, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateReward(ctx context.Context, rec model.RewardRecord) (bool, error) {
	defer observe(backendPostgres, "create_reward", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: reward needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO rewards (participant, week, detail) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		rec.ParticipantID, rec.Week, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Rewards(ctx context.Context, participant string) (map[int]model.RewardRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT week, detail FROM rewards WHERE participant=$1`, model.NormalizeParticipant(participant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int]model.RewardRecord)
	for rows.Next() {
		var (
			week int
			raw  any
			rec  model.RewardRecord
		)
		if err := rows.Scan(&week, &raw); err != nil {
			return nil, err
		}
		if err := decodeDetail(raw, &rec); err != nil {
			return nil, err
		}
		out[week] = rec
	}
	return out, rows.Err()
}

func (s *PostgresStore) IncrementScore(ctx context.Context, participant string, delta int64) (int64, error) {
	defer observe(backendPostgres, "increment_score", time.Now())
	var score int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scores (participant, score) VALUES ($1,$2)
		 ON CONFLICT (participant) DO UPDATE SET score = scores.score + EXCLUDED.score
		 RETURNING score`,
		model.NormalizeParticipant(participant), delta).Scan(&score)
	return score, err
}

func (s *PostgresStore) TopN(ctx context.Context, n int) ([]model.ScoreEntry, error) {
	defer observe(backendPostgres, "top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT participant, score FROM scores ORDER BY score DESC, participant ASC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ScoreEntry, 0, n)
	for rows.Next() {
		var e model.ScoreEntry
		if err := rows.Scan(&e.ParticipantID, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	assignRanksWithTies(out)
	return out, nil
}

func (s *PostgresStore) Rank(ctx context.Context, participant string) (model.ScoreEntry, error) {
	defer observe(backendPostgres, "rank", time.Now())
	p := model.NormalizeParticipant(participant)
	var e model.ScoreEntry
	err := s.pool.QueryRow(ctx,
		`SELECT s.score, (SELECT COUNT(DISTINCT o.score) FROM scores o WHERE o.score > s.score) + 1
		 FROM scores s WHERE s.participant=$1`, p).Scan(&e.Score, &e.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScoreEntry{}, ErrNotFound
	}
	if err != nil {
		return model.ScoreEntry{}, err
	}
	e.ParticipantID = p
	return e, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores`).Scan(&n)
	return n, err
}

func (s *PostgresStore) AcquireMarker(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO markers (key, owner, expires_at) VALUES ($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET owner=EXCLUDED.owner, expires_at=EXCLUDED.expires_at
		 WHERE markers.expires_at <= $4`,
		key, owner, now.Add(ttl), now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseMarker(ctx context.Context, key, owner string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM markers WHERE key=$1 AND owner=$2`, key, owner)
	return err
}
