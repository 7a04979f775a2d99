// Package form owns the field values, validation state and submission
// lifecycle of one entity-editing task.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrUnknownField   = errors.New("form: unknown field")
	ErrSubmitInFlight = errors.New("form: a submission is already in flight")
)

// ValidationError carries the inline errors of every invalid field.
// Submitting an invalid form never reaches the network.
type ValidationError struct {
	Fields map[string]error
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e.Fields[n].Error()
	}
	return "form: invalid: " + strings.Join(parts, "; ")
}

// Field declares one form input.
type Field struct {
	Name    string
	Initial string
	Rules   []Rule
	// Format runs in order on every SetField value.
	Format []Formatter
	// DependsOn lists fields whose change re-validates this one.
	DependsOn []string
}

// SubmitFunc turns validated values into the mutation call. values is a
// private copy.
type SubmitFunc[R any] func(ctx context.Context, values map[string]string) (R, error)

type Controller[R any] struct {
	fields []Field
	index  map[string]int
	// dependents[x] are the fields that re-validate when x changes
	dependents map[string][]string
	submit     SubmitFunc[R]

	mu     sync.Mutex
	values map[string]string
	errs   map[string]error

	inFlight atomic.Bool
}

func New[R any](fields []Field, submit SubmitFunc[R]) (*Controller[R], error) {
	if submit == nil {
		return nil, errors.New("form: submit func is required")
	}
	c := &Controller[R]{
		fields:     fields,
		index:      make(map[string]int, len(fields)),
		dependents: make(map[string][]string),
		submit:     submit,
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("form: field %d has no name", i)
		}
		if _, dup := c.index[f.Name]; dup {
			return nil, fmt.Errorf("form: duplicate field %q", f.Name)
		}
		c.index[f.Name] = i
	}
	for _, f := range fields {
		for _, d := range f.DependsOn {
			if _, ok := c.index[d]; !ok {
				return nil, fmt.Errorf("%w: %q depends on %q", ErrUnknownField, f.Name, d)
			}
			c.dependents[d] = append(c.dependents[d], f.Name)
		}
	}
	c.Reset()
	return c, nil
}

// SetField formats raw, stores it and re-validates the field plus every
// field that depends on it.
func (c *Controller[R]) SetField(name, raw string) error {
	i, ok := c.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	for _, f := range c.fields[i].Format {
		raw = f(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = raw
	c.validateLocked(name)
	for _, d := range c.dependents[name] {
		c.validateLocked(d)
	}
	return nil
}

func (c *Controller[R]) validateLocked(name string) {
	if err := c.checkLocked(c.fields[c.index[name]]); err != nil {
		c.errs[name] = err
	} else {
		delete(c.errs, name)
	}
}

func (c *Controller[R]) checkLocked(f Field) error {
	v := c.values[f.Name]
	for _, r := range f.Rules {
		if err := r(v, c.values); err != nil {
			return err
		}
	}
	return nil
}

// IsValid evaluates every rule against the current values.
func (c *Controller[R]) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.fields {
		if c.checkLocked(f) != nil {
			return false
		}
	}
	return true
}

// Validate re-checks every field, records inline errors for all of them and
// returns a *ValidationError when any fails.
func (c *Controller[R]) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateAllLocked()
}

func (c *Controller[R]) validateAllLocked() error {
	for _, f := range c.fields {
		c.validateLocked(f.Name)
	}
	if len(c.errs) == 0 {
		return nil
	}
	out := make(map[string]error, len(c.errs))
	for k, v := range c.errs {
		out[k] = v
	}
	return &ValidationError{Fields: out}
}

// Errors returns the inline errors of fields checked since the last reset.
func (c *Controller[R]) Errors() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error, len(c.errs))
	for k, v := range c.errs {
		out[k] = v
	}
	return out
}

func (c *Controller[R]) Value(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Values returns a copy of the current raw values.
func (c *Controller[R]) Values() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyValuesLocked()
}

func (c *Controller[R]) copyValuesLocked() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Reset restores every field to its initial value and clears errors.
func (c *Controller[R]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		c.values[f.Name] = f.Initial
	}
	c.errs = make(map[string]error)
}

// Submitting reports whether a submission is pending.
func (c *Controller[R]) Submitting() bool { return c.inFlight.Load() }

// Submit validates the form and hands a copy of its values to the submit
// func. At most one submission runs at a time; a second call while one is
// pending fails with ErrSubmitInFlight. Form state is left as is whatever
// the outcome.
func (c *Controller[R]) Submit(ctx context.Context) (R, error) {
	var zero R
	if !c.inFlight.CompareAndSwap(false, true) {
		return zero, ErrSubmitInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	if err := c.validateAllLocked(); err != nil {
		c.mu.Unlock()
		return zero, err
	}
	values := c.copyValuesLocked()
	c.mu.Unlock()

	return c.submit(ctx, values)
}
