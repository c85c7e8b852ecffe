// Package session owns the lifecycle of live voice sessions and bridges
// model-issued function calls to the retrieval service. The bridge is message
// passing: calls are submitted on one channel, results delivered on another,
// decoupling the audio transport's concurrency model from retrieval latency.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/voicekb/internal/retrieval"
)

// ErrClosed is returned when submitting to a session that is no longer
// accepting calls.
var ErrClosed = errors.New("session closed")

// Searcher is the retrieval capability exposed to sessions.
type Searcher interface {
	Search(ctx context.Context, userID, query string, k int) ([]retrieval.Result, error)
}

const callBuffer = 16

// Session is one live voice conversation. Its state machine is single-writer:
// all mutation happens under mu, and queue ordering is owned by the dispatch
// goroutine. Independent sessions proceed fully in parallel.
type Session struct {
	ID       string
	UserID   string
	OpenedAt time.Time

	searcher Searcher
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	calls   chan FunctionCall
	results chan FunctionResult
	done    chan struct{}

	mu          sync.Mutex
	state       State
	invocations map[string]*Invocation
}

func newSession(userID string, searcher Searcher, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		OpenedAt:    time.Now(),
		searcher:    searcher,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		calls:       make(chan FunctionCall, callBuffer),
		results:     make(chan FunctionResult, callBuffer),
		done:        make(chan struct{}),
		state:       StateConnecting,
		invocations: make(map[string]*Invocation),
	}
	go s.run()
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected records that transport and channel setup completed.
func (s *Session) Connected() error {
	return s.transition(StateConnected)
}

// Activate moves the session into the steady conversational state.
func (s *Session) Activate() error {
	return s.transition(StateActive)
}

// Submit hands a model-issued function call to the session. Calls received
// while a prior one is still resolving are queued FIFO, never dropped.
func (s *Session) Submit(call FunctionCall) error {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateFunctionCallPending {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot accept call in state %s", ErrClosed, state)
	}
	s.mu.Unlock()

	select {
	case s.calls <- call:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// Results is the channel on which function results are delivered, in the
// order their calls were received. It is closed when the session ends.
func (s *Session) Results() <-chan FunctionResult {
	return s.results
}

// Close terminates the session. Pending invocations are marked failed and
// discarded; an in-flight retrieval call may finish but its result goes
// nowhere.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.state.terminal() && s.state != StateClosing {
		s.state = StateClosing
	}
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// Fail moves the session to the error state on a fatal transport fault.
// Other sessions and the user's collection are unaffected.
func (s *Session) Fail(cause error) {
	s.mu.Lock()
	if !s.state.terminal() {
		s.state = StateError
	}
	s.mu.Unlock()
	s.logger.Warn("session failed", "session", s.ID, "error", cause)
	s.cancel()
	<-s.done
}

// Invocation returns a snapshot of a tracked invocation.
func (s *Session) Invocation(id string) (Invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[id]
	if !ok {
		return Invocation{}, false
	}
	return *inv, true
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTransition(s.state, to) {
		return fmt.Errorf("invalid transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// slot is one queued invocation's result delivery channel. The dispatch loop
// only ever waits on the head slot, which gives FIFO delivery even when
// invocations execute concurrently.
type slot struct {
	invocationID string
	ch           chan FunctionResult
}

// run is the dispatch loop: the single writer of queue order.
func (s *Session) run() {
	defer close(s.done)
	defer close(s.results)

	var queue []slot
	for {
		var head chan FunctionResult
		if len(queue) > 0 {
			head = queue[0].ch
		}

		select {
		case <-s.ctx.Done():
			s.discard(queue)
			return

		case call := <-s.calls:
			inv := &Invocation{
				ID:        call.ID,
				SessionID: s.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Status:    InvocationReceived,
			}
			if inv.ID == "" {
				inv.ID = uuid.New().String()
			}
			s.mu.Lock()
			s.invocations[inv.ID] = inv
			if s.state == StateActive {
				s.state = StateFunctionCallPending
			}
			s.mu.Unlock()

			sl := slot{invocationID: inv.ID, ch: make(chan FunctionResult, 1)}
			queue = append(queue, sl)
			go s.execute(inv, sl.ch)

		case result := <-head:
			queue = queue[1:]
			// A result racing the close is discarded, never delivered.
			if s.ctx.Err() != nil {
				s.discard(queue)
				return
			}
			select {
			case s.results <- result:
			case <-s.ctx.Done():
				s.discard(queue)
				return
			}
			if len(queue) == 0 {
				s.mu.Lock()
				if s.state == StateFunctionCallPending {
					s.state = StateActive
				}
				s.mu.Unlock()
			}
		}
	}
}

// discard marks every queued invocation failed and finishes the close. No
// result is delivered after this point.
func (s *Session) discard(queue []slot) {
	s.mu.Lock()
	for _, sl := range queue {
		if inv, ok := s.invocations[sl.invocationID]; ok && inv.Status != InvocationCompleted {
			inv.Status = InvocationFailed
		}
	}
	if s.state == StateClosing {
		s.state = StateClosed
	} else if !s.state.terminal() {
		s.state = StateError
	}
	s.mu.Unlock()

	if len(queue) > 0 {
		s.logger.Info("discarded pending invocations", "session", s.ID, "count", len(queue))
	}
}

// execute runs one invocation. It writes into a buffered channel, so a result
// arriving after the session closed is simply never read.
func (s *Session) execute(inv *Invocation, out chan<- FunctionResult) {
	s.setInvocationStatus(inv.ID, InvocationExecuting)
	result := s.invoke(inv)
	if result.Error != "" {
		s.setInvocationStatus(inv.ID, InvocationFailed)
	} else {
		s.setInvocationStatus(inv.ID, InvocationCompleted)
	}
	out <- result
}

func (s *Session) invoke(inv *Invocation) FunctionResult {
	if inv.Name != SearchFunction {
		return FunctionResult{
			InvocationID: inv.ID,
			Error:        fmt.Sprintf("unknown function: %s", inv.Name),
		}
	}

	var args SearchArgs
	if len(inv.Arguments) > 0 {
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return FunctionResult{
				InvocationID: inv.ID,
				Error:        fmt.Sprintf("invalid arguments: %v", err),
			}
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return FunctionResult{InvocationID: inv.ID, Error: "query is required"}
	}

	results, err := s.searcher.Search(s.ctx, s.UserID, args.Query, args.K)
	if err != nil {
		s.logger.Warn("retrieval failed", "session", s.ID, "invocation", inv.ID, "error", err)
		return FunctionResult{InvocationID: inv.ID, Error: err.Error()}
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return FunctionResult{InvocationID: inv.ID, Result: results}
}

func (s *Session) setInvocationStatus(id string, status InvocationStatus) {
	s.mu.Lock()
	if inv, ok := s.invocations[id]; ok {
		inv.Status = status
	}
	s.mu.Unlock()
}
