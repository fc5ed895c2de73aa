package rewards_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/homework/internal/adapters/repository"
	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/internal/domain/rewards"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeTransfer struct {
	calls   atomic.Int32
	amounts []int64
	mu      sync.Mutex
	err     error
	delay   time.Duration
}

func (f *fakeTransfer) Transfer(_ context.Context, to string, amount int64) (string, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.amounts = append(f.amounts, amount)
	f.mu.Unlock()
	return fmt.Sprintf("tx-%s-%d", to, n), nil
}

type countingPublisher struct {
	n atomic.Int32
}

func (p *countingPublisher) Publish(context.Context, model.LedgerEvent) error {
	p.n.Add(1)
	return nil
}

type brokenRewardStore struct {
	*repository.MemoryStore
}

func (b brokenRewardStore) CreateReward(context.Context, model.RewardRecord) (bool, error) {
	return false, errors.New("disk full")
}

// ctxStore fails writes on a cancelled context, as the SQL stores do.
type ctxStore struct {
	*repository.MemoryStore
}

func (c ctxStore) CreateReward(ctx context.Context, rec model.RewardRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.MemoryStore.CreateReward(ctx, rec)
}

func (c ctxStore) RemovePending(ctx context.Context, week int, participant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.RemovePending(ctx, week, participant)
}

// hangUpTransfer confirms the transfer and then cancels the caller's context.
type hangUpTransfer struct {
	fakeTransfer
	cancel context.CancelFunc
}

func (h *hangUpTransfer) Transfer(ctx context.Context, to string, amount int64) (string, error) {
	ref, err := h.fakeTransfer.Transfer(ctx, to, amount)
	h.cancel()
	return ref, err
}

func complete(ctx context.Context, s *repository.MemoryStore, p string, weeks ...int) {
	for _, w := range weeks {
		_, _ = s.CreateCompletion(ctx, model.CompletionRecord{ParticipantID: p, Week: w, CompletedAt: time.Now(), Verified: true})
		_ = s.AddCompletedWeek(ctx, p, w)
		_ = s.AddPending(ctx, w, p)
	}
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	Convey("Given a participant with weeks 1, 2 and 8 completed", t, func() {
		store := repository.NewMemoryStore()
		complete(ctx, store, "0xabc", 1, 2, 8)
		tr := &fakeTransfer{}
		pub := &countingPublisher{}
		d := rewards.NewDistributor(curriculum.Default(), store, tr, rewards.WithPublisher(pub))

		Convey("When the participant claims", func() {
			res, err := d.Claim(ctx, "0xABC")

			Convey("Then one transfer pays every week and the ledger is settled", func() {
				So(err, ShouldBeNil)
				So(res.TotalAmount, ShouldEqual, 800)
				So(res.Weeks, ShouldResemble, []int{1, 2, 8})
				So(tr.calls.Load(), ShouldEqual, 1)

				recs, _ := store.Rewards(ctx, "0xabc")
				So(len(recs), ShouldEqual, 3)
				So(recs[8].Amount, ShouldEqual, 600)
				So(recs[1].TransferRef, ShouldEqual, res.TransferRef)
				for _, w := range []int{1, 2, 8} {
					pending, _ := store.PendingParticipants(ctx, w)
					So(pending, ShouldBeEmpty)
				}
				So(pub.n.Load(), ShouldEqual, 3)
			})

			Convey("And claims again after full settlement", func() {
				_, err := d.Claim(ctx, "0xabc")

				Convey("Then there is nothing to claim and no transfer", func() {
					So(errors.Is(err, model.ErrNothingToClaim), ShouldBeTrue)
					So(model.KindOf(err), ShouldEqual, model.KindState)
					So(tr.calls.Load(), ShouldEqual, 1)
				})
			})

			Convey("And completes another week", func() {
				complete(ctx, store, "0xabc", 3)
				again, err := d.Claim(ctx, "0xabc")

				Convey("Then only the new week is paid", func() {
					So(err, ShouldBeNil)
					So(again.Weeks, ShouldResemble, []int{3})
					So(again.TotalAmount, ShouldEqual, 100)
				})
			})
		})

		Convey("When the transfer fails", func() {
			tr.err = model.ErrTransferFailed
			_, err := d.Claim(ctx, "0xabc")

			Convey("Then nothing is written and a retry can succeed", func() {
				So(model.KindOf(err), ShouldEqual, model.KindUpstream)
				So(errors.Is(err, model.ErrTransferFailed), ShouldBeTrue)
				recs, _ := store.Rewards(ctx, "0xabc")
				So(recs, ShouldBeEmpty)
				pending, _ := store.PendingParticipants(ctx, 8)
				So(pending, ShouldResemble, []string{"0xabc"})

				tr.err = nil
				res, err := d.Claim(ctx, "0xabc")
				So(err, ShouldBeNil)
				So(res.TotalAmount, ShouldEqual, 800)
			})
		})

		Convey("When another distribution holds one of the weeks", func() {
			ok, _ := store.AcquireMarker(ctx, rewards.MarkerKey("0xabc", 2), "someone-else", time.Minute)
			So(ok, ShouldBeTrue)
			_, err := d.Claim(ctx, "0xabc")

			Convey("Then the claim is refused as in progress without a transfer", func() {
				So(errors.Is(err, model.ErrClaimInProgress), ShouldBeTrue)
				So(model.KindOf(err), ShouldEqual, model.KindState)
				So(tr.calls.Load(), ShouldEqual, 0)

				// markers taken before the conflict were released
				ok, _ := store.AcquireMarker(ctx, rewards.MarkerKey("0xabc", 1), "probe", time.Minute)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the participant is empty", func() {
			_, err := d.Claim(ctx, "  ")
			So(model.KindOf(err), ShouldEqual, model.KindValidation)
		})
	})

	Convey("Given a participant with nothing completed", t, func() {
		store := repository.NewMemoryStore()
		tr := &fakeTransfer{}
		d := rewards.NewDistributor(curriculum.Default(), store, tr)

		_, err := d.Claim(ctx, "0xnew")
		So(errors.Is(err, model.ErrNothingToClaim), ShouldBeTrue)
		So(tr.calls.Load(), ShouldEqual, 0)
	})

	Convey("Given reward records cannot be written", t, func() {
		mem := repository.NewMemoryStore()
		complete(ctx, mem, "0xabc", 5)
		tr := &fakeTransfer{}
		d := rewards.NewDistributor(curriculum.Default(), brokenRewardStore{mem}, tr,
			rewards.WithOwnerFunc(func() string { return "owner-1" }))

		_, err := d.Claim(ctx, "0xabc")

		Convey("Then the error is internal and the week stays locked", func() {
			So(model.KindOf(err), ShouldEqual, model.KindInternal)
			So(err.Error(), ShouldContainSubstring, "tx-0xabc-1")
			ok, _ := mem.AcquireMarker(ctx, rewards.MarkerKey("0xabc", 5), "other", time.Minute)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given the caller goes away right after the transfer confirms", t, func() {
		mem := repository.NewMemoryStore()
		complete(ctx, mem, "0xabc", 1, 2)
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		tr := &hangUpTransfer{cancel: cancel}
		d := rewards.NewDistributor(curriculum.Default(), ctxStore{mem}, tr)

		res, err := d.Claim(reqCtx, "0xabc")

		Convey("Then every week is still recorded and a retry pays nothing", func() {
			So(err, ShouldBeNil)
			So(res.Weeks, ShouldResemble, []int{1, 2})
			recs, _ := mem.Rewards(ctx, "0xabc")
			So(len(recs), ShouldEqual, 2)

			_, err := d.Claim(ctx, "0xabc")
			So(errors.Is(err, model.ErrNothingToClaim), ShouldBeTrue)
			So(tr.calls.Load(), ShouldEqual, 1)
		})
	})
}

func TestDistribute(t *testing.T) {
	ctx := context.Background()

	Convey("Given a participant who completed week 8", t, func() {
		store := repository.NewMemoryStore()
		complete(ctx, store, "0xabc", 8)
		tr := &fakeTransfer{}
		d := rewards.NewDistributor(curriculum.Default(), store, tr)

		Convey("When an operator distributes week 8", func() {
			res, err := d.Distribute(ctx, "0xabc", 8)

			Convey("Then the milestone amount is paid once", func() {
				So(err, ShouldBeNil)
				So(res.Amount, ShouldEqual, 600)
				So(tr.amounts, ShouldResemble, []int64{600})
				pending, _ := store.PendingParticipants(ctx, 8)
				So(pending, ShouldBeEmpty)

				_, err := d.Distribute(ctx, "0xabc", 8)
				So(errors.Is(err, model.ErrAlreadyRewarded), ShouldBeTrue)
				So(tr.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the week is not in the catalog", func() {
			_, err := d.Distribute(ctx, "0xabc", 53)
			So(errors.Is(err, model.ErrUnknownWeek), ShouldBeTrue)
			So(model.KindOf(err), ShouldEqual, model.KindValidation)
		})

		Convey("When the week is not completed", func() {
			_, err := d.Distribute(ctx, "0xabc", 9)
			So(errors.Is(err, model.ErrWeekNotCompleted), ShouldBeTrue)
			So(tr.calls.Load(), ShouldEqual, 0)
		})

		Convey("When the transfer times out", func() {
			tr.err = fmt.Errorf("%w: %w", model.ErrTransferUnconfirmed, context.DeadlineExceeded)
			_, err := d.Distribute(ctx, "0xabc", 8)
			So(model.KindOf(err), ShouldEqual, model.KindUpstream)
			recs, _ := store.Rewards(ctx, "0xabc")
			So(recs, ShouldBeEmpty)
		})
	})

	Convey("Given an operator request cancelled after the transfer confirms", t, func() {
		mem := repository.NewMemoryStore()
		complete(ctx, mem, "0xabc", 3)
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		tr := &hangUpTransfer{cancel: cancel}
		d := rewards.NewDistributor(curriculum.Default(), ctxStore{mem}, tr,
			rewards.WithMarkerTTL(time.Millisecond))

		_, err := d.Distribute(reqCtx, "0xabc", 3)
		So(err, ShouldBeNil)

		Convey("Then the record exists and a later retry is refused without a transfer", func() {
			recs, _ := mem.Rewards(ctx, "0xabc")
			So(recs[3].TransferRef, ShouldEqual, "tx-0xabc-1")
			pending, _ := mem.PendingParticipants(ctx, 3)
			So(pending, ShouldBeEmpty)

			time.Sleep(5 * time.Millisecond)
			_, err := d.Distribute(ctx, "0xabc", 3)
			So(errors.Is(err, model.ErrAlreadyRewarded), ShouldBeTrue)
			So(tr.calls.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given concurrent operators distributing the same week", t, func() {
		store := repository.NewMemoryStore()
		complete(ctx, store, "0xabc", 20)
		tr := &fakeTransfer{delay: 30 * time.Millisecond}
		d := rewards.NewDistributor(curriculum.Default(), store, tr)

		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.Distribute(ctx, "0xabc", 20)
				if err == nil {
					ok.Add(1)
					return
				}
				if !errors.Is(err, model.ErrClaimInProgress) && !errors.Is(err, model.ErrAlreadyRewarded) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one transfer and one record happen", func() {
			So(ok.Load(), ShouldEqual, 1)
			So(tr.calls.Load(), ShouldEqual, 1)
			recs, _ := store.Rewards(ctx, "0xabc")
			So(len(recs), ShouldEqual, 1)
			So(recs[20].Amount, ShouldEqual, 1100)
		})
	})
}
