package rewards

import (
	"context"

	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// markers is a set of held (participant, week) markers sharing one owner token.
type markers struct {
	participant string
	owner       string
	keys        map[int]string
}

func (m markers) only(week int) markers {
	out := markers{participant: m.participant, owner: m.owner, keys: map[int]string{}}
	if k, ok := m.keys[week]; ok {
		out.keys[week] = k
	}
	return out
}

// acquire takes a marker for every week or none of them.
func (d *Distributor) acquire(ctx context.Context, p string, weeks []int) (markers, error) {
	held := markers{participant: p, owner: d.newOwner(), keys: make(map[int]string, len(weeks))}
	for _, w := range weeks {
		key := MarkerKey(p, w)
		ok, err := d.ledger.AcquireMarker(ctx, key, held.owner, d.markerTTL)
		if err != nil {
			d.release(ctx, held)
			return markers{}, err
		}
		if !ok {
			d.release(ctx, held)
			metrics.RecordMarkerContention()
			return markers{}, model.Ef("rewards.acquire", model.KindState, model.ErrClaimInProgress, "week %d", w)
		}
		held.keys[w] = key
	}
	return held, nil
}

func (d *Distributor) release(ctx context.Context, held markers) {
	for w, key := range held.keys {
		if err := d.ledger.ReleaseMarker(ctx, key, held.owner); err != nil {
			d.log.Warn(ctx, "marker not released",
				logger.String("participant", held.participant),
				logger.Int("week", w),
				logger.Error(err))
		}
	}
}
