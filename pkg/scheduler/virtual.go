package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Virtual is a Scheduler whose clock only moves when Advance is called.
// Due tasks run synchronously on the caller's goroutine, earliest first and
// in registration order on ties.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	tasks  []*virtualTask
	ctx    context.Context
	cancel context.CancelFunc
}

type virtualTask struct {
	seq       int
	interval  time.Duration
	next      time.Time
	task      Task
	cancelled bool
}

// NewVirtual creates a virtual scheduler starting at start.
func NewVirtual(start time.Time) *Virtual {
	ctx, cancel := context.WithCancel(context.Background())
	return &Virtual{now: start, ctx: ctx, cancel: cancel}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Schedule registers task to first run one interval from now.
func (v *Virtual) Schedule(interval time.Duration, task Task) CancelFunc {
	v.mu.Lock()
	defer v.mu.Unlock()
	if interval <= 0 {
		return func() {}
	}
	v.seq++
	vt := &virtualTask{seq: v.seq, interval: interval, next: v.now.Add(interval), task: task}
	v.tasks = append(v.tasks, vt)
	return func() {
		v.mu.Lock()
		vt.cancelled = true
		v.mu.Unlock()
	}
}

// Advance moves the clock forward by d, running every task that falls due.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		due := v.nextDue(target)
		if due == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = due.next
		due.next = due.next.Add(due.interval)
		run := due.task
		v.mu.Unlock()

		run(v.ctx)
	}
}

// Pending returns the number of live tasks.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Stop cancels every task.
func (v *Virtual) Stop() {
	v.mu.Lock()
	for _, t := range v.tasks {
		t.cancelled = true
	}
	v.mu.Unlock()
	v.cancel()
}

func (v *Virtual) nextDue(target time.Time) *virtualTask {
	live := make([]*virtualTask, 0, len(v.tasks))
	for _, t := range v.tasks {
		if !t.cancelled && !t.next.After(target) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].next.Equal(live[j].next) {
			return live[i].seq < live[j].seq
		}
		return live[i].next.Before(live[j].next)
	})
	return live[0]
}
