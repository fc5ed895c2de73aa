package inflight_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/homework/internal/domain/inflight"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryMarkers(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty marker set", t, func() {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		m := inflight.NewMemory(inflight.WithClock(clock.Now))

		Convey("When a key is acquired", func() {
			ok := m.TryAcquire(ctx, "reward:0xabc:3", "owner-a", time.Minute)

			Convey("Then it is held and a second owner is refused", func() {
				So(ok, ShouldBeTrue)
				So(m.Size(), ShouldEqual, 1)
				So(m.TryAcquire(ctx, "reward:0xabc:3", "owner-b", time.Minute), ShouldBeFalse)
			})

			Convey("Then only the holder can release it", func() {
				So(m.Release(ctx, "reward:0xabc:3", "owner-b"), ShouldBeFalse)
				So(m.Release(ctx, "reward:0xabc:3", "owner-a"), ShouldBeTrue)
				So(m.Size(), ShouldEqual, 0)
				So(m.TryAcquire(ctx, "reward:0xabc:3", "owner-b", time.Minute), ShouldBeTrue)
			})

			Convey("Then an expired marker can be taken over", func() {
				clock.Advance(2 * time.Minute)
				So(m.TryAcquire(ctx, "reward:0xabc:3", "owner-b", time.Minute), ShouldBeTrue)
				So(m.Size(), ShouldEqual, 1)
				So(m.Release(ctx, "reward:0xabc:3", "owner-a"), ShouldBeFalse)
			})
		})

		Convey("When releasing a key that was never held", func() {
			So(m.Release(ctx, "missing", "x"), ShouldBeFalse)
		})
	})

	Convey("Given sweeping after every acquisition", t, func() {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		m := inflight.NewMemory(inflight.WithClock(clock.Now), inflight.WithSweepEvery(1))

		for i := 0; i < 5; i++ {
			m.TryAcquire(ctx, fmt.Sprintf("k%d", i), "o", time.Second)
		}
		clock.Advance(time.Minute)
		m.TryAcquire(ctx, "fresh", "o", time.Second)

		Convey("Then expired markers are dropped", func() {
			So(m.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given many goroutines racing for one key", t, func() {
		m := inflight.NewMemory()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if m.TryAcquire(ctx, "hot", fmt.Sprintf("o%d", i), time.Minute) {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one wins", func() {
			So(wins.Load(), ShouldEqual, 1)
		})
	})
}
