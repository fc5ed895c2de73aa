package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/homework/internal/adapters/repository"
	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/dedupe"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/internal/domain/webhook"
	. "github.com/smartystreets/goconvey/convey"
)

const secret = "s3cret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// flakyLedger fails selected follow-up writes.
type flakyLedger struct {
	*repository.MemoryStore
	failPending bool
	failWeekSet bool
	failResolve map[string]bool // by username
	failReadSet map[string]bool // by participant
}

func (f *flakyLedger) ParticipantByUsername(ctx context.Context, username string) (string, error) {
	if f.failResolve[username] {
		return "", errors.New("identity index unavailable")
	}
	return f.MemoryStore.ParticipantByUsername(ctx, username)
}

func (f *flakyLedger) CompletedWeeks(ctx context.Context, participant string) ([]int, error) {
	if f.failReadSet[participant] {
		return nil, errors.New("completion set unavailable")
	}
	return f.MemoryStore.CompletedWeeks(ctx, participant)
}

func (f *flakyLedger) AddCompletedWeek(ctx context.Context, participant string, week int) error {
	if f.failWeekSet {
		return errors.New("completion set unavailable")
	}
	return f.MemoryStore.AddCompletedWeek(ctx, participant, week)
}

func (f *flakyLedger) AddPending(ctx context.Context, week int, participant string) error {
	if f.failPending {
		return errors.New("pending unavailable")
	}
	return f.MemoryStore.AddPending(ctx, week, participant)
}

func pushBody(after, pusher string, files ...string) []byte {
	ev := map[string]any{
		"after":   after,
		"pusher":  map[string]string{"name": pusher},
		"commits": []map[string]any{{"id": "c-first", "added": files, "modified": []string{}}},
	}
	b, _ := json.Marshal(ev)
	return b
}

func TestVerifySignature(t *testing.T) {
	Convey("Given a body and its signature", t, func() {
		body := []byte(`{"after":"x"}`)
		sig := webhook.Sign(secret, body)

		Convey("Then the matching signature verifies", func() {
			So(webhook.VerifySignature(secret, body, sig), ShouldBeNil)
		})

		Convey("Then uppercase hex digits verify too", func() {
			upper := "sha256=" + strings.ToUpper(sig[len("sha256="):])
			So(webhook.VerifySignature(secret, body, upper), ShouldBeNil)
		})

		Convey("Then every malformed or mismatched input is an auth error", func() {
			cases := map[string]error{
				"empty secret":    webhook.VerifySignature("", body, sig),
				"empty header":    webhook.VerifySignature(secret, body, ""),
				"no prefix":       webhook.VerifySignature(secret, body, sig[len("sha256="):]),
				"other secret":    webhook.VerifySignature("other", body, sig),
				"tampered body":   webhook.VerifySignature(secret, []byte(`{"after":"y"}`), sig),
				"truncated value": webhook.VerifySignature(secret, body, sig[:20]),
				"not hex":         webhook.VerifySignature(secret, body, "sha256=zz"+sig[len("sha256=")+2:]),
			}
			for _, err := range cases {
				So(errors.Is(err, model.ErrInvalidSignature), ShouldBeTrue)
				So(model.KindOf(err), ShouldEqual, model.KindAuth)
			}
		})
	})
}

func TestMatcher(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	Convey("Given a linked participant alice", t, func() {
		store := repository.NewMemoryStore()
		So(store.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xABC", ExternalUsername: "Alice", LinkedAt: fixed}), ShouldBeNil)
		pub := &recordingPublisher{}
		m := webhook.NewMatcher(secret, curriculum.Default(), store,
			webhook.WithClock(func() time.Time { return fixed }),
			webhook.WithPublisher(pub))

		deliver := func(event string, body []byte) (webhook.Result, error) {
			return m.HandleDelivery(ctx, "", event, webhook.Sign(secret, body), body)
		}

		Convey("When alice pushes the week 3 deliverable", func() {
			body := pushBody("abc123", "someone", "participants/alice/week-03/first-repo.md")
			res, err := deliver("push", body)

			Convey("Then week 3 is recorded with all follow-up writes", func() {
				So(err, ShouldBeNil)
				So(res.Matched, ShouldEqual, 1)

				rec, err := store.Completion(ctx, "0xabc", 3)
				So(err, ShouldBeNil)
				So(rec.CommitRef, ShouldEqual, "abc123")
				So(rec.Verified, ShouldBeTrue)
				So(rec.CompletedAt.Equal(fixed), ShouldBeTrue)

				weeks, _ := store.CompletedWeeks(ctx, "0xabc")
				So(weeks, ShouldResemble, []int{3})
				pending, _ := store.PendingParticipants(ctx, 3)
				So(pending, ShouldResemble, []string{"0xabc"})
				rank, _ := store.Rank(ctx, "0xabc")
				So(rank.Score, ShouldEqual, 1)

				So(len(pub.events), ShouldEqual, 1)
				So(pub.events[0].Type, ShouldEqual, model.EventWeekCompleted)
				So(pub.events[0].Week, ShouldEqual, 3)
			})

			Convey("And the same push is redelivered", func() {
				again, err := deliver("push", body)

				Convey("Then nothing is recorded twice", func() {
					So(err, ShouldBeNil)
					So(again.Matched, ShouldEqual, 0)
					rank, _ := store.Rank(ctx, "0xabc")
					So(rank.Score, ShouldEqual, 1)
					pending, _ := store.PendingParticipants(ctx, 3)
					So(pending, ShouldResemble, []string{"0xabc"})
					So(len(pub.events), ShouldEqual, 1)
				})
			})
		})

		Convey("When a record exists but the completion set lost the week", func() {
			created, err := store.CreateCompletion(ctx, model.CompletionRecord{ParticipantID: "0xabc", Week: 3, CommitRef: "old", CompletedAt: fixed})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			res, err := deliver("push", pushBody("new", "", "participants/alice/week-03/first-repo.md"))

			Convey("Then only the set membership is repaired", func() {
				So(err, ShouldBeNil)
				So(res.Matched, ShouldEqual, 0)
				So(res.Outcomes[0].Status, ShouldEqual, webhook.StatusRepaired)
				weeks, _ := store.CompletedWeeks(ctx, "0xabc")
				So(weeks, ShouldResemble, []int{3})
				rec, _ := store.Completion(ctx, "0xabc", 3)
				So(rec.CommitRef, ShouldEqual, "old")
				pending, _ := store.PendingParticipants(ctx, 3)
				So(pending, ShouldBeEmpty)
				_, err = store.Rank(ctx, "0xabc")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a push touches no deliverable", func() {
			res, err := deliver("push", pushBody("x", "alice", "participants/alice/notes.txt"))

			Convey("Then matched is zero and state is unchanged", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldBeFalse)
				So(res.Matched, ShouldEqual, 0)
				weeks, _ := store.CompletedWeeks(ctx, "0xabc")
				So(weeks, ShouldBeEmpty)
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the pusher name is the only link to alice", func() {
			res, err := deliver("push", pushBody("x", "ALICE", "docs/week-08/index.html"))

			Convey("Then the deliverable still matches", func() {
				So(err, ShouldBeNil)
				So(res.Matched, ShouldEqual, 1)
				_, err := store.Completion(ctx, "0xabc", 8)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the pushing user is not linked", func() {
			res, err := deliver("push", pushBody("x", "mallory", "participants/mallory/week-03/first-repo.md"))

			Convey("Then the push is ignored", func() {
				So(err, ShouldBeNil)
				So(res.Matched, ShouldEqual, 0)
				So(res.Outcomes, ShouldBeEmpty)
			})
		})

		Convey("When a non-push event arrives", func() {
			res, err := deliver("ping", []byte(`{}`))
			So(err, ShouldBeNil)
			So(res.Skipped, ShouldBeTrue)
		})

		Convey("When a push carries no files", func() {
			res, err := deliver("push", []byte(`{"after":"x","commits":[]}`))
			So(err, ShouldBeNil)
			So(res.Skipped, ShouldBeTrue)
		})

		Convey("When the signature is wrong", func() {
			body := pushBody("x", "alice", "participants/alice/week-03/first-repo.md")
			_, err := m.HandleDelivery(ctx, "", "push", webhook.Sign("wrong", body), body)

			Convey("Then nothing is processed", func() {
				So(model.KindOf(err), ShouldEqual, model.KindAuth)
				weeks, _ := store.CompletedWeeks(ctx, "0xabc")
				So(weeks, ShouldBeEmpty)
			})
		})

		Convey("When the body is not JSON", func() {
			body := []byte("not json")
			_, err := deliver("push", body)
			So(model.KindOf(err), ShouldEqual, model.KindValidation)
		})
	})

	Convey("Given a ledger whose pending write fails", t, func() {
		store := &flakyLedger{MemoryStore: repository.NewMemoryStore(), failPending: true}
		So(store.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xabc", ExternalUsername: "alice"}), ShouldBeNil)
		m := webhook.NewMatcher(secret, curriculum.Default(), store, webhook.WithPathPrefix("students"))

		res := m.Process(ctx, webhook.PushEvent{
			After: "abc",
			Commits: []webhook.Commit{{
				ID:    "abc",
				Added: []string{"students/alice/week-01/profile.md", "students/alice/week-02/commands.md"},
			}},
		})

		Convey("Then the other writes still happen for every week", func() {
			So(res.Matched, ShouldEqual, 2)
			So(len(res.Outcomes), ShouldEqual, 2)
			for _, o := range res.Outcomes {
				So(o.Status, ShouldEqual, webhook.StatusCreated)
				So(o.Failures[0].Step, ShouldEqual, webhook.StepPending)
			}
			weeks, _ := store.CompletedWeeks(ctx, "0xabc")
			So(weeks, ShouldResemble, []int{1, 2})
			rank, _ := store.Rank(ctx, "0xabc")
			So(rank.Score, ShouldEqual, 2)
		})
	})
}

func TestMatcherParticipantIsolation(t *testing.T) {
	ctx := context.Background()

	Convey("Given one push touching three linked participants", t, func() {
		store := &flakyLedger{
			MemoryStore: repository.NewMemoryStore(),
			failResolve: map[string]bool{"bob": true},
			failReadSet: map[string]bool{"0xc": true},
		}
		for p, u := range map[string]string{"0xa": "alice", "0xb": "bob", "0xc": "carol"} {
			So(store.LinkIdentity(ctx, model.IdentityLink{ParticipantID: p, ExternalUsername: u}), ShouldBeNil)
		}
		m := webhook.NewMatcher(secret, curriculum.Default(), store)

		res := m.Process(ctx, webhook.PushEvent{
			After: "abc",
			Commits: []webhook.Commit{{
				ID: "abc",
				Added: []string{
					"participants/alice/week-01/profile.md",
					"participants/bob/week-01/profile.md",
					"participants/carol/week-02/commands.md",
				},
			}},
		})

		Convey("When bob cannot be resolved and carol's completion set cannot be read", func() {
			Convey("Then alice's week is still recorded", func() {
				So(res.Matched, ShouldEqual, 1)
				weeks, _ := store.MemoryStore.CompletedWeeks(ctx, "0xa")
				So(weeks, ShouldResemble, []int{1})
				pending, _ := store.PendingParticipants(ctx, 1)
				So(pending, ShouldResemble, []string{"0xa"})
			})

			Convey("Then each failure is reported against its own participant", func() {
				So(res.Failed(), ShouldBeTrue)
				steps := map[string]string{}
				for _, o := range res.Outcomes {
					if o.Status != webhook.StatusFailed {
						So(o.Participant, ShouldEqual, "0xa")
						continue
					}
					So(len(o.Failures), ShouldEqual, 1)
					steps[o.Username] = o.Failures[0].Step
				}
				So(steps, ShouldResemble, map[string]string{
					"bob":   webhook.StepResolve,
					"carol": webhook.StepReadSet,
				})
				_, err := store.Completion(ctx, "0xc", 2)
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestMatcherDeduplication(t *testing.T) {
	ctx := context.Background()
	body := pushBody("abc", "alice", "participants/alice/week-01/profile.md", "participants/alice/week-02/commands.md")
	sig := webhook.Sign(secret, body)

	Convey("Given a matcher that remembers delivery IDs", t, func() {
		store := &flakyLedger{MemoryStore: repository.NewMemoryStore()}
		So(store.LinkIdentity(ctx, model.IdentityLink{ParticipantID: "0xabc", ExternalUsername: "alice"}), ShouldBeNil)
		m := webhook.NewMatcher(secret, curriculum.Default(), store, webhook.WithDeduper(dedupe.NewInMemoryDeduper()))

		Convey("When the same delivery arrives twice", func() {
			first, err := m.HandleDelivery(ctx, "d-1", "push", sig, body)
			So(err, ShouldBeNil)
			second, err := m.HandleDelivery(ctx, "d-1", "push", sig, body)
			So(err, ShouldBeNil)

			Convey("Then the second is acknowledged without matching", func() {
				So(first.Matched, ShouldEqual, 2)
				So(second.Duplicate, ShouldBeTrue)
				So(second.Matched, ShouldEqual, 0)
			})
		})

		Convey("When a new delivery ID carries the same push", func() {
			_, _ = m.HandleDelivery(ctx, "d-1", "push", sig, body)
			res, err := m.HandleDelivery(ctx, "d-2", "push", sig, body)

			Convey("Then the ledger still refuses duplicate weeks", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Matched, ShouldEqual, 0)
			})
		})

		Convey("When a delivery fails part way", func() {
			store.failWeekSet = true
			first, err := m.HandleDelivery(ctx, "d-1", "push", sig, body)
			So(err, ShouldBeNil)
			So(first.Failed(), ShouldBeTrue)

			store.failWeekSet = false
			retry, err := m.HandleDelivery(ctx, "d-1", "push", sig, body)

			Convey("Then its redelivery is processed and repairs the ledger", func() {
				So(err, ShouldBeNil)
				So(retry.Duplicate, ShouldBeFalse)
				So(retry.Failed(), ShouldBeFalse)
				So(retry.Outcomes[0].Status, ShouldEqual, webhook.StatusRepaired)
				weeks, _ := store.CompletedWeeks(ctx, "0xabc")
				So(weeks, ShouldResemble, []int{1, 2})
			})
		})

		Convey("When the signature is wrong", func() {
			_, err := m.HandleDelivery(ctx, "d-1", "push", webhook.Sign("wrong", body), body)
			So(model.KindOf(err), ShouldEqual, model.KindAuth)

			Convey("Then the ID is not consumed", func() {
				res, err := m.HandleDelivery(ctx, "d-1", "push", sig, body)
				So(err, ShouldBeNil)
				So(res.Matched, ShouldEqual, 2)
			})
		})
	})
}

func TestMatchesDeliverable(t *testing.T) {
	Convey("Given the permissive deliverable rule", t, func() {
		So(webhook.MatchesDeliverable([]string{"participants/a/week-03/first-repo.md"}, "week-03/first-repo.md"), ShouldBeTrue)
		So(webhook.MatchesDeliverable([]string{"x/week-03/first-repo.md.bak"}, "week-03/first-repo.md"), ShouldBeTrue)
		So(webhook.MatchesDeliverable([]string{"week-03/other.md"}, "week-03/first-repo.md"), ShouldBeFalse)
		So(webhook.MatchesDeliverable([]string{"anything"}, ""), ShouldBeFalse)
	})
}

func TestPushEvent(t *testing.T) {
	Convey("Given a push with several commits", t, func() {
		ev := webhook.PushEvent{Commits: []webhook.Commit{
			{ID: "c1", Added: []string{"b.md", "a.md"}},
			{ID: "c2", Modified: []string{"a.md", "c.md"}},
		}}

		Convey("Then changed files are the sorted union", func() {
			So(ev.ChangedFiles(), ShouldResemble, []string{"a.md", "b.md", "c.md"})
		})

		Convey("Then the commit ref falls back to the first commit", func() {
			So(ev.CommitRef(), ShouldEqual, "c1")
			ev.After = "head"
			So(ev.CommitRef(), ShouldEqual, "head")
		})
	})
}
