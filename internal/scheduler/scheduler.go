// Package scheduler tracks when each block is next due for a polling update.
//
// The scheduler is a plain data structure owned by the dispatch loop. It holds
// at most one task per block id: pushing a new deadline replaces the old one,
// so a slow loop iteration can never fire the same block twice for a single
// missed interval.
package scheduler

import "time"

// Task is a pending polling deadline for one block.
type Task struct {
	ID  int
	Due time.Time
}

// Scheduler holds the pending tasks. It is not safe for concurrent use; only
// the dispatcher goroutine touches it.
type Scheduler struct {
	tasks []Task
}

// New returns an empty scheduler with room for n blocks.
func New(n int) *Scheduler {
	if n < 0 {
		n = 0
	}
	return &Scheduler{tasks: make([]Task, 0, n)}
}

// Push inserts the task for id, replacing any existing deadline.
func (s *Scheduler) Push(id int, due time.Time) {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Due = due
			return
		}
	}
	s.tasks = append(s.tasks, Task{ID: id, Due: due})
}

// Pop removes every task for id.
func (s *Scheduler) Pop(id int) {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
}

// TimeToNextWake returns the shortest wait until a task is due. It returns
// zero if a task is already due, and false when nothing is pending.
func (s *Scheduler) TimeToNextWake(now time.Time) (time.Duration, bool) {
	if len(s.tasks) == 0 {
		return 0, false
	}
	var next time.Duration
	for i, t := range s.tasks {
		if !t.Due.After(now) {
			return 0, true
		}
		d := t.Due.Sub(now)
		if i == 0 || d < next {
			next = d
		}
	}
	return next, true
}

// PopDue removes all tasks due at or before now and returns their ids in
// scheduling order.
func (s *Scheduler) PopDue(now time.Time) []int {
	var due []int
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Due.After(now) {
			due = append(due, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	return due
}

// Due reports the deadline for id, if one is pending.
func (s *Scheduler) Due(id int) (time.Time, bool) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t.Due, true
		}
	}
	return time.Time{}, false
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }
