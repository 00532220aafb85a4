package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/boostcalc/internal/adapters/mq/queue"
	"github.com/okian/boostcalc/internal/adapters/mq/worker"
	"github.com/okian/boostcalc/internal/domain/model"
	logging "github.com/okian/boostcalc/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockEvaluator struct {
	mu     sync.RWMutex
	errors map[string]error
	delay  map[string]time.Duration
	calls  int
}

func newMockEvaluator() *mockEvaluator {
	return &mockEvaluator{
		errors: make(map[string]error),
		delay:  make(map[string]time.Duration),
	}
}

func (m *mockEvaluator) Evaluate(ctx context.Context, p model.Participant) (model.CohortSample, error) {
	m.mu.Lock()
	m.calls++
	err := m.errors[p.ProfileID]
	d := m.delay[p.ProfileID]
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return model.CohortSample{}, ctx.Err()
		}
	}
	if err != nil {
		return model.CohortSample{}, err
	}
	return model.CohortSample{Name: p.Name, ProfileID: p.ProfileID, Badges: 1, TotalItems: 1, Points: 25}, nil
}

func (m *mockEvaluator) setError(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[id] = err
}

func (m *mockEvaluator) setDelay(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[id] = d
}

type result struct {
	job    queue.Job
	sample model.CohortSample
	err    error
}

type mockCollector struct {
	mu      sync.Mutex
	results map[int]result
}

func newMockCollector() *mockCollector {
	return &mockCollector{results: make(map[int]result)}
}

func (c *mockCollector) Collect(_ context.Context, j queue.Job, sample model.CohortSample, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[j.Index] = result{job: j, sample: sample, err: err}
}

func (c *mockCollector) get(i int) (result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[i]
	return r, ok
}

func (c *mockCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func fill(q *queue.InMemoryQueue, n int) {
	for i := 0; i < n; i++ {
		_ = q.Enqueue(context.Background(), queue.Job{
			Index:       i,
			Participant: model.Participant{ProfileID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Person %d", i)},
		})
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a closed queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		eval := newMockEvaluator()
		col := newMockCollector()

		convey.Convey("When every job succeeds", func() {
			fill(q, 3)
			_ = q.Close()
			w := worker.NewInMemoryWorker(q, eval, col, worker.WithName("test-worker"))
			w.Run(context.Background())

			convey.Convey("Then every result reaches the collector", func() {
				convey.So(col.len(), convey.ShouldEqual, 3)
				r, ok := col.get(2)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(r.err, convey.ShouldBeNil)
				convey.So(r.sample.ProfileID, convey.ShouldEqual, "p2")
			})
		})

		convey.Convey("When a job fails", func() {
			fill(q, 2)
			_ = q.Close()
			eval.setError("p0", errors.New("fetch exploded"))
			w := worker.NewInMemoryWorker(q, eval, col)
			w.Run(context.Background())

			convey.Convey("Then the failure is collected and the next job still runs", func() {
				r, _ := col.get(0)
				convey.So(r.err, convey.ShouldNotBeNil)
				r, _ = col.get(1)
				convey.So(r.err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job exceeds the unit timeout", func() {
			fill(q, 2)
			_ = q.Close()
			eval.setDelay("p0", time.Second)
			w := worker.NewInMemoryWorker(q, eval, col, worker.WithUnitTimeout(20*time.Millisecond))

			start := time.Now()
			w.Run(context.Background())

			convey.Convey("Then it is recorded as a timeout without stalling the pass", func() {
				convey.So(time.Since(start), convey.ShouldBeLessThan, 500*time.Millisecond)
				r, _ := col.get(0)
				convey.So(errors.Is(r.err, context.DeadlineExceeded), convey.ShouldBeTrue)
				r, _ = col.get(1)
				convey.So(r.err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When shut down while idle", func() {
			w := worker.NewInMemoryWorker(q, eval, col)
			go w.Run(context.Background())
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.Convey("Then it stops promptly and a second shutdown is harmless", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()

		const n = 50
		q := queue.NewInMemoryQueue(queue.WithCapacity(n))
		eval := newMockEvaluator()
		col := newMockCollector()
		fill(q, n)
		_ = q.Close()

		pool := worker.NewPool(4, q, eval, col, worker.WithUnitTimeout(time.Second))

		convey.Convey("When started and waited on", func() {
			pool.Start(context.Background())
			pool.Wait()

			convey.Convey("Then every job is processed exactly once", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 4)
				convey.So(col.len(), convey.ShouldEqual, n)
				convey.So(eval.calls, convey.ShouldEqual, n)
			})

			convey.Convey("Then shutdown after draining is a no-op", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When created with no worker count", func() {
			p := worker.NewPool(0, q, eval, col)

			convey.Convey("Then it falls back to the default size", func() {
				convey.So(p.Size(), convey.ShouldEqual, worker.DefaultWorkerCount)
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}
