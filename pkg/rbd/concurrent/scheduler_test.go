package concurrent

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestScheduler_ExecutesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewScheduler()

	jobs := 100
	var mutex sync.Mutex
	var order []int

	wg := &sync.WaitGroup{}
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		i := i
		scheduler.Schedule(func(ctx context.Context) {
			mutex.Lock()
			order = append(order, i)
			mutex.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	scheduler.Stop()

	if len(order) != jobs {
		t.Fatalf("expected %d executed jobs, found %d", jobs, len(order))
	}
	for i, found := range order {
		if found != i {
			t.Fatalf("job %d executed at position %d", found, i)
		}
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewScheduler()
	scheduler.Stop()
	scheduler.Stop()
}

func TestScheduler_ScheduleAfterStopPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewScheduler()
	scheduler.Stop()

	defer func() {
		if recover() == nil {
			t.Error("schedule after stop should panic")
		}
	}()
	scheduler.Schedule(func(ctx context.Context) {})
}
