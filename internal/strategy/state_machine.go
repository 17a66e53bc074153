package strategy

import "sync"

// StateMachine tracks one evaluation cycle: Idle -> Evaluating and from
// there to Approved or Rejected, then back to Idle on reset. Invalid events
// leave the state unchanged.
type StateMachine struct {
	mu    sync.Mutex
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextState(s.State, event)
	return s.State
}

func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextState(current State, event Event) State {
	switch current {
	case StateIdle:
		if event == EventEvaluate {
			return StateEvaluating
		}
	case StateEvaluating:
		if event == EventApprove {
			return StateApproved
		}
		if event == EventReject {
			return StateRejected
		}
	case StateApproved, StateRejected:
		if event == EventReset {
			return StateIdle
		}
	}
	return current
}
