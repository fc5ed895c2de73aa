package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/homework/internal/domain/inflight"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/metrics"
)

const backendMemory = "memory"

type participantWeek struct {
	participant string
	week        int
}

// MemoryStore keeps every ledger in process. Detail records are held as
// encoded JSON so reads go through the same decode path as the SQL backends.
type MemoryStore struct {
	mu sync.RWMutex

	links      map[string]model.IdentityLink
	byUsername map[string]string

	completionSet    map[string]map[int]struct{}
	completionDetail map[participantWeek][]byte
	pending          map[int]map[string]struct{}
	rewardDetail     map[participantWeek][]byte

	root   *node
	scores map[string]int64

	markers inflight.Markers
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		links:            make(map[string]model.IdentityLink),
		byUsername:       make(map[string]string),
		completionSet:    make(map[string]map[int]struct{}),
		completionDetail: make(map[participantWeek][]byte),
		pending:          make(map[int]map[string]struct{}),
		rewardDetail:     make(map[participantWeek][]byte),
		scores:           make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.markers == nil {
		s.markers = inflight.NewMemory()
	}
	return s
}

func observe(backend, op string, start time.Time) {
	metrics.RecordStoreOp(backend, op, float64(time.Since(start).Microseconds())/1000)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) LinkIdentity(_ context.Context, link model.IdentityLink) error {
	defer observe(backendMemory, "link_identity", time.Now())
	p := model.NormalizeParticipant(link.ParticipantID)
	u := model.NormalizeUsername(link.ExternalUsername)
	if p == "" || u == "" {
		return fmt.Errorf("%w: participant and username required", ErrInvalidRecord)
	}
	link.ParticipantID, link.ExternalUsername = p, u

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.links[p]; ok && old.ExternalUsername != u {
		if s.byUsername[old.ExternalUsername] == p {
			delete(s.byUsername, old.ExternalUsername)
		}
	}
	// a username moving to p unlinks its previous owner
	if prev, ok := s.byUsername[u]; ok && prev != p && s.links[prev].ExternalUsername == u {
		delete(s.links, prev)
	}
	s.links[p] = link
	s.byUsername[u] = p
	return nil
}

func (s *MemoryStore) IdentityByParticipant(_ context.Context, participant string) (model.IdentityLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[model.NormalizeParticipant(participant)]
	if !ok {
		return model.IdentityLink{}, ErrNotFound
	}
	return link, nil
}

func (s *MemoryStore) ParticipantByUsername(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byUsername[model.NormalizeUsername(username)]
	if !ok {
		return "", ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) CreateCompletion(_ context.Context, rec model.CompletionRecord) (bool, error) {
	defer observe(backendMemory, "create_completion", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: completion needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	key := participantWeek{rec.ParticipantID, rec.Week}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.completionDetail[key]; exists {
		return false, nil
	}
	s.completionDetail[key] = raw
	return true, nil
}

func (s *MemoryStore) AddCompletedWeek(_ context.Context, participant string, week int) error {
	p := model.NormalizeParticipant(participant)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.completionSet[p]
	if !ok {
		set = make(map[int]struct{})
		s.completionSet[p] = set
	}
	set[week] = struct{}{}
	return nil
}

func (s *MemoryStore) CompletedWeeks(_ context.Context, participant string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.completionSet[model.NormalizeParticipant(participant)]
	out := make([]int, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Ints(out)
	return out, nil
}

func (s *MemoryStore) Completion(_ context.Context, participant string, week int) (model.CompletionRecord, error) {
	s.mu.RLock()
	raw, ok := s.completionDetail[participantWeek{model.NormalizeParticipant(participant), week}]
	s.mu.RUnlock()
	if !ok {
		return model.CompletionRecord{}, ErrNotFound
	}
	var rec model.CompletionRecord
	if err := decodeDetail(raw, &rec); err != nil {
		return model.CompletionRecord{}, err
	}
	return rec, nil
}

func (s *MemoryStore) Completions(_ context.Context, participant string) (map[int]model.CompletionRecord, error) {
	p := model.NormalizeParticipant(participant)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]model.CompletionRecord)
	for key, raw := range s.completionDetail {
		if key.participant != p {
			continue
		}
		var rec model.CompletionRecord
		if err := decodeDetail(raw, &rec); err != nil {
			return nil, err
		}
		out[key.week] = rec
	}
	return out, nil
}

func (s *MemoryStore) AddPending(_ context.Context, week int, participant string) error {
	p := model.NormalizeParticipant(participant)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pending[week]
	if !ok {
		set = make(map[string]struct{})
		s.pending[week] = set
	}
	set[p] = struct{}{}
	return nil
}

func (s *MemoryStore) RemovePending(_ context.Context, week int, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.pending[week]; ok {
		delete(set, model.NormalizeParticipant(participant))
		if len(set) == 0 {
			delete(s.pending, week)
		}
	}
	return nil
}

func (s *MemoryStore) PendingParticipants(_ context.Context, week int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.pending[week]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateReward(_ context.Context, rec model.RewardRecord) (bool, error) {
	defer observe(backendMemory, "create_reward", time.Now())
	rec.ParticipantID = model.NormalizeParticipant(rec.ParticipantID)
	if rec.ParticipantID == "" || rec.Week < 1 {
		return false, fmt.Errorf("%w: reward needs participant and week", ErrInvalidRecord)
	}
	raw, err := encodeDetail(rec)
	if err != nil {
		return false, err
	}
	key := participantWeek{rec.ParticipantID, rec.Week}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rewardDetail[key]; exists {
		return false, nil
	}
	s.rewardDetail[key] = raw
	return true, nil
}

func (s *MemoryStore) Rewards(_ context.Context, participant string) (map[int]model.RewardRecord, error) {
	p := model.NormalizeParticipant(participant)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]model.RewardRecord)
	for key, raw := range s.rewardDetail {
		if key.participant != p {
			continue
		}
		var rec model.RewardRecord
		if err := decodeDetail(raw, &rec); err != nil {
			return nil, err
		}
		out[key.week] = rec
	}
	return out, nil
}

func (s *MemoryStore) IncrementScore(_ context.Context, participant string, delta int64) (int64, error) {
	defer observe(backendMemory, "increment_score", time.Now())
	p := model.NormalizeParticipant(participant)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.scores[p]
	if ok {
		s.root = deleteNode(s.root, p, old)
	}
	next := old + delta
	s.scores[p] = next
	s.root = insert(s.root, p, next)
	return next, nil
}

func (s *MemoryStore) TopN(_ context.Context, n int) ([]model.ScoreEntry, error) {
	defer observe(backendMemory, "top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScoreEntry, 0, min(n, len(s.scores)))
	collectTopN(s.root, n, &out)
	assignRanksWithTies(out)
	return out, nil
}

func (s *MemoryStore) Rank(_ context.Context, participant string) (model.ScoreEntry, error) {
	defer observe(backendMemory, "rank", time.Now())
	p := model.NormalizeParticipant(participant)
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[p]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.ScoreEntry{}, ErrNotFound
	}
	above := make(map[int64]struct{})
	distinctAbove(s.root, score, above)
	return model.ScoreEntry{Rank: len(above) + 1, ParticipantID: p, Score: score}, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores), nil
}

func (s *MemoryStore) AcquireMarker(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.markers.TryAcquire(ctx, key, owner, ttl), nil
}

func (s *MemoryStore) ReleaseMarker(ctx context.Context, key, owner string) error {
	s.markers.Release(ctx, key, owner)
	return nil
}
