package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/picklist/internal/adapters/mq/queue"
	"github.com/okian/picklist/internal/adapters/mq/worker"
	"github.com/okian/picklist/internal/domain/model"
	logging "github.com/okian/picklist/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type recordingRunner struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	wait time.Duration
}

func (r *recordingRunner) Run(ctx context.Context, j model.Job) error {
	if r.wait > 0 {
		time.Sleep(r.wait)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, j.Fingerprint)
	return r.fail[j.Fingerprint]
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestWorker(t *testing.T) {
	Convey("Given a worker reading a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		runner := &recordingRunner{fail: map[string]error{"bad": errors.New("boom")}}
		w := worker.NewInMemoryWorker(q, runner, worker.WithName("w-test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		Convey("When jobs are queued, including a failing one", func() {
			So(q.Enqueue(ctx, model.Job{Fingerprint: "bad", EnqueuedAt: time.Now()}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.Job{Fingerprint: "good"}), ShouldBeTrue)

			Convey("Then every job is run and the worker keeps going", func() {
				So(func() bool {
					deadline := time.Now().Add(time.Second)
					for time.Now().Before(deadline) {
						if runner.count() == 2 {
							return true
						}
						time.Sleep(5 * time.Millisecond)
					}
					return false
				}(), ShouldBeTrue)
				So(w.Shutdown(context.Background()), ShouldBeNil)
			})
		})

		Convey("When shut down twice", func() {
			So(w.Shutdown(context.Background()), ShouldBeNil)
			So(w.Shutdown(context.Background()), ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of three workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(50))
		runner := &recordingRunner{wait: time.Millisecond}
		pool := worker.NewPool(3, q, runner)
		ctx := context.Background()
		pool.Start(ctx)

		Convey("When jobs are queued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				So(q.Enqueue(ctx, model.Job{Fingerprint: string(rune('a' + i))}), ShouldBeTrue)
			}
			err := pool.Shutdown(ctx)

			Convey("Then the queue is drained before workers exit", func() {
				So(err, ShouldBeNil)
				So(pool.Size(), ShouldEqual, 3)
				So(runner.count(), ShouldEqual, 20)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a pool with no explicit size", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, worker.RunnerFunc(func(context.Context, model.Job) error { return nil }))

		Convey("Then it sizes itself from the CPU count", func() {
			So(pool.Size(), ShouldBeGreaterThan, 0)
		})
	})
}
