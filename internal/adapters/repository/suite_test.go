package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/homework/internal/domain/model"
)

// runStoreSuite exercises the Store contract shared by every backend.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("identity links", func(t *testing.T) {
		s := open(t)
		if _, err := s.IdentityByParticipant(ctx, "0xabc"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xABC", ExternalUsername: "Alice", ExternalToken: "tok", LinkedAt: at}); err != nil {
			t.Fatalf("link: %v", err)
		}
		p, err := s.ParticipantByUsername(ctx, "ALICE")
		if err != nil || p != "0xabc" {
			t.Fatalf("expected 0xabc, got %q (%v)", p, err)
		}
		link, err := s.IdentityByParticipant(ctx, "0xabc")
		if err != nil {
			t.Fatalf("identity: %v", err)
		}
		if link.ExternalUsername != "alice" || link.ExternalToken != "tok" || !link.LinkedAt.Equal(at) {
			t.Errorf("unexpected link %+v", link)
		}

		// relinking drops the stale reverse entry
		if err := s.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xabc", ExternalUsername: "alice2", LinkedAt: at}); err != nil {
			t.Fatalf("relink: %v", err)
		}
		if _, err := s.ParticipantByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected old username to be unlinked, got %v", err)
		}
		if p, _ := s.ParticipantByUsername(ctx, "alice2"); p != "0xabc" {
			t.Errorf("expected new username to resolve, got %q", p)
		}

		// moving a username to another participant unlinks the previous owner
		if err := s.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xdef", ExternalUsername: "alice2", LinkedAt: at}); err != nil {
			t.Fatalf("move username: %v", err)
		}
		if p, _ := s.ParticipantByUsername(ctx, "alice2"); p != "0xdef" {
			t.Errorf("expected alice2 to resolve to 0xdef, got %q", p)
		}
		if link, err := s.IdentityByParticipant(ctx, "0xabc"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected previous owner to be unlinked, got %+v (%v)", link, err)
		}
		if link, err := s.IdentityByParticipant(ctx, "0xdef"); err != nil || link.ExternalUsername != "alice2" {
			t.Errorf("unexpected link for new owner %+v (%v)", link, err)
		}

		if err := s.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "", ExternalUsername: "x"}); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("expected ErrInvalidRecord, got %v", err)
		}
	})

	t.Run("completion created once", func(t *testing.T) {
		s := open(t)
		rec := model.CompletionRecord{ParticipantID: "0xabc", Week: 3, CompletedAt: at, CommitRef: "c1", Verified: true}
		created, err := s.CreateCompletion(ctx, rec)
		if err != nil || !created {
			t.Fatalf("first create: created=%v err=%v", created, err)
		}
		rec.CommitRef = "c2"
		created, err = s.CreateCompletion(ctx, rec)
		if err != nil || created {
			t.Fatalf("second create: created=%v err=%v", created, err)
		}
		got, err := s.Completion(ctx, "0xABC", 3)
		if err != nil {
			t.Fatalf("completion: %v", err)
		}
		if got.CommitRef != "c1" || !got.Verified || !got.CompletedAt.Equal(at) {
			t.Errorf("record mutated: %+v", got)
		}
		if _, err := s.Completion(ctx, "0xabc", 4); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		all, err := s.Completions(ctx, "0xabc")
		if err != nil || len(all) != 1 || all[3].Week != 3 {
			t.Errorf("unexpected completions %v (%v)", all, err)
		}
	})

	t.Run("completion set", func(t *testing.T) {
		s := open(t)
		for _, w := range []int{5, 1, 5, 3} {
			if err := s.AddCompletedWeek(ctx, "0xabc", w); err != nil {
				t.Fatalf("add week: %v", err)
			}
		}
		weeks, err := s.CompletedWeeks(ctx, "0xabc")
		if err != nil {
			t.Fatalf("weeks: %v", err)
		}
		if fmt.Sprint(weeks) != "[1 3 5]" {
			t.Errorf("expected [1 3 5], got %v", weeks)
		}
		empty, err := s.CompletedWeeks(ctx, "0xnobody")
		if err != nil || len(empty) != 0 {
			t.Errorf("expected empty set, got %v (%v)", empty, err)
		}
	})

	t.Run("pending set", func(t *testing.T) {
		s := open(t)
		_ = s.AddPending(ctx, 8, "0xb")
		_ = s.AddPending(ctx, 8, "0xa")
		_ = s.AddPending(ctx, 8, "0xa")
		got, err := s.PendingParticipants(ctx, 8)
		if err != nil || fmt.Sprint(got) != "[0xa 0xb]" {
			t.Fatalf("expected [0xa 0xb], got %v (%v)", got, err)
		}
		_ = s.RemovePending(ctx, 8, "0xa")
		_ = s.RemovePending(ctx, 8, "0xmissing")
		got, _ = s.PendingParticipants(ctx, 8)
		if fmt.Sprint(got) != "[0xb]" {
			t.Errorf("expected [0xb], got %v", got)
		}
	})

	t.Run("reward created once", func(t *testing.T) {
		s := open(t)
		rec := model.RewardRecord{ParticipantID: "0xabc", Week: 8, Amount: 600, TransferRef: "tx1", DistributedAt: at}
		created, err := s.CreateReward(ctx, rec)
		if err != nil || !created {
			t.Fatalf("first create: created=%v err=%v", created, err)
		}
		rec.TransferRef = "tx2"
		if created, _ := s.CreateReward(ctx, rec); created {
			t.Fatal("reward written twice")
		}
		rewards, err := s.Rewards(ctx, "0xabc")
		if err != nil || rewards[8].TransferRef != "tx1" || rewards[8].Amount != 600 {
			t.Errorf("unexpected rewards %v (%v)", rewards, err)
		}
	})

	t.Run("leaderboard", func(t *testing.T) {
		s := open(t)
		if _, err := s.Rank(ctx, "0xa"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		for _, p := range []string{"0xa", "0xa", "0xa", "0xb", "0xb", "0xc", "0xc", "0xd"} {
			if _, err := s.IncrementScore(ctx, p, 1); err != nil {
				t.Fatalf("increment: %v", err)
			}
		}
		top, err := s.TopN(ctx, 3)
		if err != nil {
			t.Fatalf("topn: %v", err)
		}
		want := []model.ScoreEntry{
			{Rank: 1, ParticipantID: "0xa", Score: 3},
			{Rank: 2, ParticipantID: "0xb", Score: 2},
			{Rank: 2, ParticipantID: "0xc", Score: 2},
		}
		if fmt.Sprint(top) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, top)
		}
		e, err := s.Rank(ctx, "0xd")
		if err != nil || e.Rank != 3 || e.Score != 1 {
			t.Errorf("unexpected rank %+v (%v)", e, err)
		}
		if n, _ := s.Count(ctx); n != 4 {
			t.Errorf("expected 4 participants, got %d", n)
		}
		if _, err := s.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	})

	t.Run("markers", func(t *testing.T) {
		s := open(t)
		ok, err := s.AcquireMarker(ctx, "reward:0xa:3", "o1", time.Minute)
		if err != nil || !ok {
			t.Fatalf("acquire: ok=%v err=%v", ok, err)
		}
		if ok, _ := s.AcquireMarker(ctx, "reward:0xa:3", "o2", time.Minute); ok {
			t.Fatal("second owner acquired a held marker")
		}
		_ = s.ReleaseMarker(ctx, "reward:0xa:3", "o2")
		if ok, _ := s.AcquireMarker(ctx, "reward:0xa:3", "o2", time.Minute); ok {
			t.Fatal("non-owner release freed the marker")
		}
		_ = s.ReleaseMarker(ctx, "reward:0xa:3", "o1")
		if ok, _ := s.AcquireMarker(ctx, "reward:0xa:3", "o2", time.Minute); !ok {
			t.Fatal("marker not free after owner release")
		}
		if ok, _ := s.AcquireMarker(ctx, "short", "o1", -time.Second); !ok {
			t.Fatal("acquire short")
		}
		if ok, _ := s.AcquireMarker(ctx, "short", "o2", time.Minute); !ok {
			t.Error("expired marker was not taken over")
		}
	})

	t.Run("concurrent create is exclusive", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.CreateCompletion(ctx, model.CompletionRecord{ParticipantID: "0xrace", Week: 1, CommitRef: fmt.Sprint(i), CompletedAt: at})
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		if created != 1 {
			t.Errorf("expected exactly one creation, got %d", created)
		}
	})
}
