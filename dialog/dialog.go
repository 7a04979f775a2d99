// Package dialog is the modal lifecycle around one form: it owns
// visibility and the task context, never business data.
//
//	closed --open--> open --confirm--> submitting --succeed--> closed
//	                  |  <----fail---------'  |
//	                  '--cancel--> closed     '--dismiss--> closed
package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/unkn0wn-root/entcache"
	"github.com/unkn0wn-root/entcache/form"
)

const (
	StateClosed     = "closed"
	StateOpen       = "open"
	StateSubmitting = "submitting"
)

const (
	EventOpen    = "open"
	EventConfirm = "confirm"
	EventSucceed = "succeed"
	EventFail    = "fail"
	EventCancel  = "cancel"
	EventDismiss = "dismiss"
)

var (
	ErrNotOpen   = errors.New("dialog: not open")
	ErrDestroyed = errors.New("dialog: destroyed")
)

// Handle is what parent views get: visibility control only.
type Handle[C any] interface {
	Open(c C) error
	Close() error
}

// Shell composes a form controller with a modal lifecycle. C is the task
// context handed in on open (e.g. which subscription), R the mutation
// result.
type Shell[C, R any] struct {
	name string
	form *form.Controller[R]
	log  entcache.Logger

	mu        sync.Mutex
	machine   *fsm.FSM
	task      C
	hasTask   bool
	session   uint64 // bumps on every open; a result from an older session skips local state
	destroyed bool
	watchers  []func(from, to string)
}

// New builds a closed shell around f. f's submit func reads the task
// context through Context.
func New[C, R any](name string, f *form.Controller[R], log entcache.Logger) *Shell[C, R] {
	if log == nil {
		log = entcache.NopLogger{}
	}
	s := &Shell[C, R]{name: name, form: f, log: log}
	s.machine = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: EventOpen, Src: []string{StateClosed}, Dst: StateOpen},
			{Name: EventConfirm, Src: []string{StateOpen}, Dst: StateSubmitting},
			{Name: EventSucceed, Src: []string{StateSubmitting}, Dst: StateClosed},
			{Name: EventFail, Src: []string{StateSubmitting}, Dst: StateOpen},
			{Name: EventCancel, Src: []string{StateOpen}, Dst: StateClosed},
			{Name: EventDismiss, Src: []string{StateSubmitting}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.Debug("dialog state", entcache.Fields{"dialog": s.name, "event": e.Event, "from": e.Src, "to": e.Dst})
				for _, w := range s.watchers {
					w(e.Src, e.Dst)
				}
			},
		},
	)
	return s
}

// OnTransition registers fn for every state change. fn runs with the
// shell lock held and must not call back into the shell.
func (s *Shell[C, R]) OnTransition(fn func(from, to string)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Shell[C, R]) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Context returns the task context of the current (or last) open.
func (s *Shell[C, R]) Context() (C, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task, s.hasTask
}

func (s *Shell[C, R]) Form() *form.Controller[R] { return s.form }

// Open shows the dialog for task c with a fresh form.
func (s *Shell[C, R]) Open(c C) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.event(EventOpen); err != nil {
		return err
	}
	s.form.Reset()
	s.task, s.hasTask = c, true
	s.session++
	return nil
}

// Close cancels an open dialog, discarding form input. Closing while a
// submission is pending dismisses the dialog and discards the input too;
// the result is still reconciled when it arrives. Closing a closed dialog
// is a no-op.
func (s *Shell[C, R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	switch s.machine.Current() {
	case StateOpen:
		if err := s.event(EventCancel); err != nil {
			return err
		}
		s.form.Reset()
	case StateSubmitting:
		if err := s.event(EventDismiss); err != nil {
			return err
		}
		s.form.Reset()
	}
	return nil
}

// Confirm submits the form. An invalid form keeps the dialog open and
// returns the *form.ValidationError. On success the dialog closes and the
// form resets; on failure it returns to open with input intact.
func (s *Shell[C, R]) Confirm(ctx context.Context) (R, error) {
	var zero R
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return zero, ErrDestroyed
	}
	switch s.machine.Current() {
	case StateOpen:
	case StateSubmitting:
		s.mu.Unlock()
		return zero, form.ErrSubmitInFlight
	default:
		s.mu.Unlock()
		return zero, ErrNotOpen
	}
	if s.form.Submitting() {
		// an earlier task's submission, dismissed but not finished
		s.mu.Unlock()
		return zero, form.ErrSubmitInFlight
	}
	if err := s.form.Validate(); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	if err := s.event(EventConfirm); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	session := s.session
	s.mu.Unlock()

	// the lock is not held across the network call
	res, err := s.form.Submit(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		s.log.Debug("result after destroy; local state skipped", entcache.Fields{"dialog": s.name})
		return res, err
	}
	if session != s.session {
		// dismissed and reopened for another task meanwhile
		return res, err
	}
	dismissed := s.machine.Current() == StateClosed
	switch {
	case err != nil && !dismissed:
		if terr := s.event(EventFail); terr != nil {
			s.log.Warn("dialog transition failed", entcache.Fields{"dialog": s.name, "err": terr})
		}
	case err != nil:
		s.form.Reset()
	default:
		if !dismissed {
			if terr := s.event(EventSucceed); terr != nil {
				s.log.Warn("dialog transition failed", entcache.Fields{"dialog": s.name, "err": terr})
			}
		}
		s.form.Reset()
	}
	return res, err
}

// Destroy tears the shell down. Results still in flight are reconciled by
// their runner but never touch this shell's state.
func (s *Shell[C, R]) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.watchers = nil
	s.mu.Unlock()
}

// Handle returns the open/close view of the shell for parent views.
func (s *Shell[C, R]) Handle() Handle[C] { return handle[C, R]{s} }

type handle[C, R any] struct{ s *Shell[C, R] }

func (h handle[C, R]) Open(c C) error { return h.s.Open(c) }
func (h handle[C, R]) Close() error   { return h.s.Close() }

func (s *Shell[C, R]) event(name string) error {
	// background ctx: a cancelled request must not strand a transition
	if err := s.machine.Event(context.Background(), name); err != nil {
		return fmt.Errorf("dialog %s: %s in state %s: %w", s.name, name, s.machine.Current(), err)
	}
	return nil
}
