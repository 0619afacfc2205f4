package sessions

import (
	"errors"
	"fmt"
	"sync"
)

// ThreadState represents the conversational state of one thread.
type ThreadState string

const (
	// ThreadIdle means no turn is active.
	ThreadIdle ThreadState = "idle"
	// ThreadProcessing means exactly one turn is executing.
	ThreadProcessing ThreadState = "processing"
	// ThreadAwaitingApproval means the active turn is parked on exactly
	// one pending tool approval.
	ThreadAwaitingApproval ThreadState = "awaiting_approval"
	// ThreadInterrupted means the user cancelled the active turn.
	ThreadInterrupted ThreadState = "interrupted"
	// ThreadCompleted means the thread was closed.
	ThreadCompleted ThreadState = "completed"
)

// TurnState represents the lifecycle of a single user/assistant exchange.
type TurnState string

const (
	TurnProcessing  TurnState = "processing"
	TurnCompleted   TurnState = "completed"
	TurnFailed      TurnState = "failed"
	TurnInterrupted TurnState = "interrupted"
)

// ErrIllegalTransition is wrapped by every rejected state change.
var ErrIllegalTransition = errors.New("sessions: illegal thread transition")

// ErrTurnInFlight is returned when a second turn tries to start while one
// is already processing.
var ErrTurnInFlight = errors.New("sessions: a turn is already processing")

// legalThreadTransitions is the full transition table; anything absent is
// illegal.
var legalThreadTransitions = map[ThreadState]map[ThreadState]bool{
	ThreadIdle: {
		ThreadProcessing: true,
		ThreadCompleted:  true,
	},
	ThreadProcessing: {
		ThreadIdle:             true, // turn finished or failed
		ThreadAwaitingApproval: true,
		ThreadInterrupted:      true,
	},
	ThreadAwaitingApproval: {
		ThreadProcessing:  true, // approval granted, turn resumes
		ThreadIdle:        true, // approval denied, turn abandoned
		ThreadInterrupted: true,
	},
	ThreadInterrupted: {
		ThreadIdle:      true,
		ThreadCompleted: true,
	},
	ThreadCompleted: {},
}

// CanTransitionThread reports whether from -> to is a legal thread
// transition.
func CanTransitionThread(from, to ThreadState) bool {
	return legalThreadTransitions[from][to]
}

// ThreadStateMachine serializes the turns of one thread: at most one turn
// is in TurnProcessing at any time, and a thread in AwaitingApproval holds
// exactly one pending approval ID.
type ThreadStateMachine struct {
	mu              sync.Mutex
	state           ThreadState
	activeTurn      int
	pendingApproval string
}

// NewThreadStateMachine starts a thread in ThreadIdle.
func NewThreadStateMachine() *ThreadStateMachine {
	return &ThreadStateMachine{state: ThreadIdle}
}

// State returns the current thread state.
func (t *ThreadStateMachine) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PendingApproval returns the approval ID the thread is parked on, empty
// unless the state is ThreadAwaitingApproval.
func (t *ThreadStateMachine) PendingApproval() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingApproval
}

// BeginTurn transitions Idle -> Processing and returns the monotonic turn
// number. Starting a turn while another is active fails with
// ErrTurnInFlight.
func (t *ThreadStateMachine) BeginTurn() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ThreadProcessing || t.state == ThreadAwaitingApproval {
		return 0, ErrTurnInFlight
	}
	if err := t.transitionLocked(ThreadProcessing); err != nil {
		return 0, err
	}
	t.activeTurn++
	return t.activeTurn, nil
}

// FinishTurn transitions the active turn out of Processing with the given
// terminal turn state and returns the thread to Idle.
func (t *ThreadStateMachine) FinishTurn(result TurnState) error {
	if result == TurnProcessing {
		return fmt.Errorf("%w: %s is not a terminal turn state", ErrIllegalTransition, result)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	target := ThreadIdle
	if result == TurnInterrupted {
		target = ThreadInterrupted
	}
	return t.transitionLocked(target)
}

// AwaitApproval parks the active turn on one pending approval.
func (t *ThreadStateMachine) AwaitApproval(approvalID string) error {
	if approvalID == "" {
		return fmt.Errorf("%w: awaiting approval requires an approval id", ErrIllegalTransition)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(ThreadAwaitingApproval); err != nil {
		return err
	}
	t.pendingApproval = approvalID
	return nil
}

// ResolveApproval resumes (granted) or abandons (denied) the parked turn.
func (t *ThreadStateMachine) ResolveApproval(granted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != ThreadAwaitingApproval {
		return fmt.Errorf("%w: no pending approval in state %s", ErrIllegalTransition, t.state)
	}
	target := ThreadIdle
	if granted {
		target = ThreadProcessing
	}
	if err := t.transitionLocked(target); err != nil {
		return err
	}
	t.pendingApproval = ""
	return nil
}

// Resume transitions Interrupted -> Idle so the thread can take new turns.
func (t *ThreadStateMachine) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(ThreadIdle)
}

// Close finalizes the thread.
func (t *ThreadStateMachine) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(ThreadCompleted)
}

func (t *ThreadStateMachine) transitionLocked(to ThreadState) error {
	if !CanTransitionThread(t.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.state, to)
	}
	if to != ThreadAwaitingApproval {
		t.pendingApproval = ""
	}
	t.state = to
	return nil
}
