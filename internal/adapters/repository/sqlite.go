package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/homework/internal/domain/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

const backendSQLite = "sqlite"

// SQLiteStore persists the ledgers in a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps SQLITE_BUSY out of the picture
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			participant TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			token TEXT NOT NULL DEFAULT '',
			linked_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS identity_usernames (
			username TEXT PRIMARY KEY,
			participant TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS completions (
			participant TEXT NOT NULL,
			week INTEGER NOT NULL,
			detail TEXT NOT NULL,
			PRIMARY KEY (participant, week)
		);`,
		`CREATE TABLE IF NOT EXISTS completed_weeks (
			participant TEXT NOT NULL,
			week INTEGER NOT NULL,
			PRIMARY KEY (participant, week)
		);`,
		`CREATE TABLE IF NOT EXISTS pending_rewards (
			week INTEGER NOT NULL,
			participant TEXT NOT NULL,
			PRIMARY KEY (week, participant)
		);`,
		`CREATE TABLE IF NOT EXISTS rewards (
			participant TEXT NOT NULL,
			week INTEGER NOT NULL,
			detail TEXT NOT NULL,
			PRIMARY KEY (participant, week)
		);`,
		`CREATE TABLE IF NOT EXISTS scores (
			participant TEXT PRIMARY KEY,
			score INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS markers (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_score ON scores(score DESC, participant);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) LinkIdentity(ctx context.Context, link model.IdentityLink) (err error) {
	defer observe(backendSQLite, "link_identity", time.Now())
	p := model.NormalizeParticipant(link.ParticipantID)
	u := model.NormalizeUsername(link.ExternalUsername)
	if p == "" || u == "" {
		return fmt.Errorf("%w: participant and username required", ErrInvalidRecord)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT username FROM identities WHERE participant = ?`, p).Scan(&old)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return err
	case old != u:
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM identity_usernames WHERE username = ? AND participant = ?`, old, p); err != nil {
			return err
		}
	}

	// a username moving to p unlinks its previous owner
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM identities WHERE username = ? AND participant <> ?`, u, p); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO identities (participant, username, token, linked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(participant) DO UPDATE SET username = excluded.username, token = excluded.token, linked_at = excluded.linked_at`,
		p, u, link.ExternalToken, link.LinkedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO identity_usernames (username, participant) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET participant = excluded.participant`, u, p); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) IdentityByParticipant(ctx context.Context, participant string) (model.IdentityLink, error) {
	var link model.IdentityLink
	var linkedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT participant, username, token, linked_at FROM identities WHERE participant = ?`,
		model.NormalizeParticipant(participant)).Scan(&link.ParticipantID, &link.ExternalUsername, &link.ExternalToken, &linkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IdentityLink{}, ErrNotFound
	}
	if err != nil {
		return model.IdentityLink{}, err
	}
	if link.LinkedAt, err = time.Parse(time.RFC3339Nano, linkedAt); err != nil {
		return model.IdentityLink{}, fmt.Errorf("%w: linked_at: %v", ErrCorruptedValue, err)
	}
	return link, nil
}

func (s *SQLiteStore) ParticipantByUsername(ctx context.Context, username string) (string, error) {
	var p string
	err := s.db.QueryRowContext(ctx,
		`SELECT participant FROM identity_usernames WHERE username = ?`, model.NormalizeUsername(username)).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) CreateCompletion(ctx context.Context, rec model.CompletionRecord) (bool, error) {
	defer observe(backendSQLite, "create_completion", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: completion needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (participant, week, detail) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		rec.ParticipantID, rec.Week, string(raw))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) AddCompletedWeek(ctx context.Context, participant string, week int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completed_weeks (participant, week) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		model.NormalizeParticipant(participant), week)
	return err
}

func (s *SQLiteStore) CompletedWeeks(ctx context.Context, participant string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week FROM completed_weeks WHERE participant = ? ORDER BY week`, model.NormalizeParticipant(participant))
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

func (s *SQLiteStore) Completion(ctx context.Context, participant string, week int) (model.CompletionRecord, error) {
	var raw any
	err := s.db.QueryRowContext(ctx,
		`SELECT detail FROM completions WHERE participant = ? AND week = ?`,
		model.NormalizeParticipant(participant), week).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CompletionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.CompletionRecord{}, err
	}
	var rec model.CompletionRecord
	return rec, decodeDetail(raw, &rec)
}

func (s *SQLiteStore) Completions(ctx context.Context, participant string) (map[int]model.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week, detail FROM completions WHERE participant = ?`, model.NormalizeParticipant(participant))
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

func (s *SQLiteStore) AddPending(ctx context.Context, week int, participant string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_rewards (week, participant) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		week, model.NormalizeParticipant(participant))
	return err
}

func (s *SQLiteStore) RemovePending(ctx context.Context, week int, participant string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_rewards WHERE week = ? AND participant = ?`, week, model.NormalizeParticipant(participant))
	return err
}

func (s *SQLiteStore) PendingParticipants(ctx context.Context, week int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant FROM pending_rewards WHERE week = ? ORDER BY participant`, week)
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

func (s *SQLiteStore) CreateReward(ctx context.Context, rec model.RewardRecord) (bool, error) {
	defer observe(backendSQLite, "create_reward", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: reward needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (participant, week, detail) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		rec.ParticipantID, rec.Week, string(raw))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) Rewards(ctx context.Context, participant string) (map[int]model.RewardRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week, detail FROM rewards WHERE participant = ?`, model.NormalizeParticipant(participant))
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

func (s *SQLiteStore) IncrementScore(ctx context.Context, participant string, delta int64) (int64, error) {
	defer observe(backendSQLite, "increment_score", time.Now())
	var score int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO scores (participant, score) VALUES (?, ?)
		 ON CONFLICT(participant) DO UPDATE SET score = scores.score + excluded.score
		 RETURNING score`,
		model.NormalizeParticipant(participant), delta).Scan(&score)
	return score, err
}

func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]model.ScoreEntry, error) {
	defer observe(backendSQLite, "top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant, score FROM scores ORDER BY score DESC, participant ASC LIMIT ?`, n)
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

func (s *SQLiteStore) Rank(ctx context.Context, participant string) (model.ScoreEntry, error) {
	defer observe(backendSQLite, "rank", time.Now())
	p := model.NormalizeParticipant(participant)
	var score int64
	err := s.db.QueryRowContext(ctx, `SELECT score FROM scores WHERE participant = ?`, p).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreEntry{}, ErrNotFound
	}
	if err != nil {
		return model.ScoreEntry{}, err
	}
	var above int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT score) FROM scores WHERE score > ?`, score).Scan(&above); err != nil {
		return model.ScoreEntry{}, err
	}
	return model.ScoreEntry{Rank: above + 1, ParticipantID: p, Score: score}, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scores`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AcquireMarker(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (key, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		 WHERE markers.expires_at <= ?`,
		key, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) ReleaseMarker(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE key = ? AND owner = ?`, key, owner)
	return err
}
