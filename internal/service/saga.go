package service

import (
	"context"
	"log"
)

// compensation is the undo half of one forward checkout step.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// compensationStack collects compensating actions as forward steps
// succeed. On failure unwind runs them LIFO so partial reservations always
// unwind in the exact reverse of the order they were taken.
type compensationStack struct {
	actions []compensation
}

func (s *compensationStack) push(name string, undo func(ctx context.Context) error) {
	s.actions = append(s.actions, compensation{name: name, undo: undo})
}

// unwind is best-effort: a failed compensation is logged and the remaining
// actions still run. The expiration sweeper is the backstop for anything
// that cannot be undone synchronously.
func (s *compensationStack) unwind(ctx context.Context) {
	for i := len(s.actions) - 1; i >= 0; i-- {
		action := s.actions[i]
		log.Printf("Compensating step: %s", action.name)
		if err := action.undo(ctx); err != nil {
			log.Printf("CRITICAL: failed to compensate step %s: %v", action.name, err)
		}
	}
	s.actions = nil
}
