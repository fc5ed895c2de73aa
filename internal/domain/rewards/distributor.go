// Package rewards pays curriculum rewards exactly once per (participant, week).
//
// Every payout follows the same sequence: check state, take an in-flight
// marker per week, re-read the reward ledger, call the transfer primitive
// once, then write reward records and clear the pending set. A failed
// transfer writes nothing and releases the markers, so the caller may retry.
package rewards

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// DefaultMarkerTTL bounds how long a crashed distribution can block a week.
const DefaultMarkerTTL = 5 * time.Minute

// settleTimeout bounds the ledger writes that follow a confirmed transfer.
const settleTimeout = 30 * time.Second

// Ledger is the store surface the distributor reads and writes.
type Ledger interface {
	CompletedWeeks(ctx context.Context, participant string) ([]int, error)
	Rewards(ctx context.Context, participant string) (map[int]model.RewardRecord, error)
	CreateReward(ctx context.Context, rec model.RewardRecord) (bool, error)
	RemovePending(ctx context.Context, week int, participant string) error
	AcquireMarker(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseMarker(ctx context.Context, key, owner string) error
}

// Transferrer sends amount reward tokens to a participant and blocks until
// the transfer is confirmed. It returns the transfer reference.
type Transferrer interface {
	Transfer(ctx context.Context, to string, amount int64) (string, error)
}

// Publisher receives ledger events after a reward is written.
type Publisher interface {
	Publish(ctx context.Context, ev model.LedgerEvent) error
}

// ClaimResult is returned by a successful Claim.
type ClaimResult struct {
	TotalAmount int64  `json:"totalAmount"`
	Weeks       []int  `json:"weeks"`
	TransferRef string `json:"transferRef"`
}

// DistributeResult is returned by a successful Distribute.
type DistributeResult struct {
	Week        int    `json:"week"`
	Amount      int64  `json:"amount"`
	TransferRef string `json:"transferRef"`
}

// Distributor settles rewards against the ledger.
type Distributor struct {
	catalog   *curriculum.Catalog
	ledger    Ledger
	transfer  Transferrer
	publisher Publisher
	markerTTL time.Duration
	now       func() time.Time
	newOwner  func() string
	log       logger.Logger
}

// NewDistributor creates a distributor.
func NewDistributor(catalog *curriculum.Catalog, ledger Ledger, transfer Transferrer, opts ...Option) *Distributor {
	d := &Distributor{
		catalog:   catalog,
		ledger:    ledger,
		transfer:  transfer,
		markerTTL: DefaultMarkerTTL,
		now:       time.Now,
		newOwner:  uuid.NewString,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MarkerKey names the in-flight marker for (participant, week).
func MarkerKey(participant string, week int) string {
	return fmt.Sprintf("reward:%s:%d", participant, week)
}

// Claim pays every completed but unrewarded week in a single transfer.
func (d *Distributor) Claim(ctx context.Context, participant string) (ClaimResult, error) {
	const op = "rewards.claim"
	p := model.NormalizeParticipant(participant)
	if p == "" {
		metrics.RecordClaim("invalid")
		return ClaimResult{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}

	remaining, err := d.unrewarded(ctx, p)
	if err != nil {
		metrics.RecordClaim("error")
		return ClaimResult{}, model.E(op, model.KindInternal, err)
	}
	if len(remaining) == 0 {
		metrics.RecordClaim("nothing")
		return ClaimResult{}, model.E(op, model.KindState, model.ErrNothingToClaim)
	}

	held, err := d.acquire(ctx, p, remaining)
	if err != nil {
		metrics.RecordClaim(outcomeFor(err))
		return ClaimResult{}, model.E(op, model.KindOf(err), err)
	}

	// another claim may have settled weeks between the read and the markers
	rewarded, err := d.ledger.Rewards(ctx, p)
	if err != nil {
		d.release(ctx, held)
		metrics.RecordClaim("error")
		return ClaimResult{}, model.E(op, model.KindInternal, err)
	}
	var weeks []int
	for _, w := range remaining {
		if _, done := rewarded[w]; done {
			d.release(ctx, held.only(w))
			delete(held.keys, w)
			continue
		}
		weeks = append(weeks, w)
	}
	if len(weeks) == 0 {
		metrics.RecordClaim("nothing")
		return ClaimResult{}, model.E(op, model.KindState, model.ErrNothingToClaim)
	}

	total := curriculum.SumRewards(weeks)
	ref, err := d.transfer.Transfer(ctx, p, total)
	if err != nil {
		d.release(ctx, held)
		metrics.RecordClaim("transfer_failed")
		d.log.Error(ctx, "claim transfer failed",
			logger.String("participant", p),
			logger.Int64("amount", total),
			logger.Error(err))
		return ClaimResult{}, model.E(op, model.KindUpstream, err)
	}

	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := d.settle(sctx, p, weeks, ref, held); err != nil {
		metrics.RecordClaim("ledger_failed")
		return ClaimResult{}, model.E(op, model.KindInternal, err)
	}
	metrics.RecordClaim("success")
	metrics.RecordTokensDistributed(total)
	d.log.Info(ctx, "reward claimed",
		logger.String("participant", p),
		logger.Int64("amount", total),
		logger.Int("weeks", len(weeks)),
		logger.String("transfer_ref", ref))
	return ClaimResult{TotalAmount: total, Weeks: weeks, TransferRef: ref}, nil
}

// Distribute pays one week on an operator's behalf.
func (d *Distributor) Distribute(ctx context.Context, participant string, week int) (DistributeResult, error) {
	const op = "rewards.distribute"
	p := model.NormalizeParticipant(participant)
	if p == "" {
		metrics.RecordDistribution("invalid")
		return DistributeResult{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}
	if _, ok := d.catalog.Lookup(week); !ok {
		metrics.RecordDistribution("invalid")
		return DistributeResult{}, model.Ef(op, model.KindValidation, model.ErrUnknownWeek, "week %d", week)
	}

	weeks, err := d.ledger.CompletedWeeks(ctx, p)
	if err != nil {
		metrics.RecordDistribution("error")
		return DistributeResult{}, model.E(op, model.KindInternal, err)
	}
	if !slices.Contains(weeks, week) {
		metrics.RecordDistribution("not_completed")
		return DistributeResult{}, model.E(op, model.KindState, model.ErrWeekNotCompleted)
	}
	if rewarded, err := d.isRewarded(ctx, p, week); err != nil {
		metrics.RecordDistribution("error")
		return DistributeResult{}, model.E(op, model.KindInternal, err)
	} else if rewarded {
		metrics.RecordDistribution("already_rewarded")
		return DistributeResult{}, model.E(op, model.KindState, model.ErrAlreadyRewarded)
	}

	held, err := d.acquire(ctx, p, []int{week})
	if err != nil {
		metrics.RecordDistribution(outcomeFor(err))
		return DistributeResult{}, model.E(op, model.KindOf(err), err)
	}
	if rewarded, err := d.isRewarded(ctx, p, week); err != nil || rewarded {
		d.release(ctx, held)
		if err != nil {
			metrics.RecordDistribution("error")
			return DistributeResult{}, model.E(op, model.KindInternal, err)
		}
		metrics.RecordDistribution("already_rewarded")
		return DistributeResult{}, model.E(op, model.KindState, model.ErrAlreadyRewarded)
	}

	amount := curriculum.WeekReward(week)
	ref, err := d.transfer.Transfer(ctx, p, amount)
	if err != nil {
		d.release(ctx, held)
		metrics.RecordDistribution("transfer_failed")
		d.log.Error(ctx, "distribution transfer failed",
			logger.String("participant", p),
			logger.Int("week", week),
			logger.Error(err))
		return DistributeResult{}, model.E(op, model.KindUpstream, err)
	}
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := d.settle(sctx, p, []int{week}, ref, held); err != nil {
		metrics.RecordDistribution("ledger_failed")
		return DistributeResult{}, model.E(op, model.KindInternal, err)
	}
	metrics.RecordDistribution("success")
	metrics.RecordTokensDistributed(amount)
	d.log.Info(ctx, "reward distributed",
		logger.String("participant", p),
		logger.Int("week", week),
		logger.Int64("amount", amount),
		logger.String("transfer_ref", ref))
	return DistributeResult{Week: week, Amount: amount, TransferRef: ref}, nil
}

// Unclaimed returns completed weeks without a reward record, ascending.
func (d *Distributor) Unclaimed(ctx context.Context, participant string) ([]int, error) {
	return d.unrewarded(ctx, model.NormalizeParticipant(participant))
}

func (d *Distributor) unrewarded(ctx context.Context, p string) ([]int, error) {
	weeks, err := d.ledger.CompletedWeeks(ctx, p)
	if err != nil {
		return nil, err
	}
	rewarded, err := d.ledger.Rewards(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(weeks))
	for _, w := range weeks {
		if _, done := rewarded[w]; !done {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (d *Distributor) isRewarded(ctx context.Context, p string, week int) (bool, error) {
	rewarded, err := d.ledger.Rewards(ctx, p)
	if err != nil {
		return false, err
	}
	_, ok := rewarded[week]
	return ok, nil
}

// settleContext detaches from the caller. Once tokens have moved the records
// must be written even if the request that asked for them has gone away.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// settle writes one reward record per week and clears pending. A record that
// cannot be written keeps its marker so no second transfer starts before the TTL.
func (d *Distributor) settle(ctx context.Context, p string, weeks []int, ref string, held markers) error {
	at := d.now().UTC()
	var failed []int
	for _, w := range weeks {
		rec := model.RewardRecord{
			ParticipantID: p,
			Week:          w,
			Amount:        curriculum.WeekReward(w),
			TransferRef:   ref,
			DistributedAt: at,
		}
		created, err := d.ledger.CreateReward(ctx, rec)
		if err != nil {
			failed = append(failed, w)
			d.log.Error(ctx, "reward record not written after transfer",
				logger.String("participant", p),
				logger.Int("week", w),
				logger.String("transfer_ref", ref),
				logger.Error(err))
			continue
		}
		if !created {
			d.log.Warn(ctx, "reward record already present",
				logger.String("participant", p),
				logger.Int("week", w),
				logger.String("transfer_ref", ref))
		}
		if err := d.ledger.RemovePending(ctx, w, p); err != nil {
			d.log.Warn(ctx, "pending entry not cleared",
				logger.String("participant", p),
				logger.Int("week", w),
				logger.Error(err))
		}
		d.release(ctx, held.only(w))
		d.publish(ctx, model.LedgerEvent{
			Type:          model.EventRewardDistributed,
			ParticipantID: p,
			Week:          w,
			Amount:        rec.Amount,
			Ref:           ref,
			OccurredAt:    at,
		})
	}
	if len(failed) > 0 {
		return fmt.Errorf("transfer %s confirmed but reward records for weeks %v were not written", ref, failed)
	}
	return nil
}

func (d *Distributor) publish(ctx context.Context, ev model.LedgerEvent) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.log.Warn(ctx, "ledger event not published",
			logger.String("type", ev.Type),
			logger.String("participant", ev.ParticipantID),
			logger.Error(err))
	}
}

func outcomeFor(err error) string {
	if model.KindOf(err) == model.KindState {
		return "in_progress"
	}
	return "error"
}
