package dialog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entcache/form"
)

type subscriptionTask struct {
	ID   string
	Name string
}

type fakeSend struct {
	calls   atomic.Int32
	err     error
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeSend) submit(context.Context, map[string]string) (string, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	return "ok", f.err
}

func newShell(t *testing.T, send *fakeSend) *Shell[subscriptionTask, string] {
	t.Helper()
	f, err := form.New([]form.Field{
		{Name: "reason", Initial: "", Rules: []form.Rule{form.Required}},
	}, send.submit)
	require.NoError(t, err)
	return New[subscriptionTask, string]("terminate", f, nil)
}

func TestHappyPathClosesAndResets(t *testing.T) {
	send := &fakeSend{}
	s := newShell(t, send)
	var trail []string
	s.OnTransition(func(_, to string) { trail = append(trail, to) })

	require.NoError(t, s.Handle().Open(subscriptionTask{ID: "S1", Name: "Gold"}))
	assert.Equal(t, StateOpen, s.State())
	task, ok := s.Context()
	require.True(t, ok)
	assert.Equal(t, "S1", task.ID)

	require.NoError(t, s.Form().SetField("reason", "churn"))
	res, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "", s.Form().Value("reason"), "form resets after success")
	assert.Equal(t, []string{StateOpen, StateSubmitting, StateClosed}, trail)
}

func TestFailureReturnsToOpenWithInput(t *testing.T) {
	send := &fakeSend{err: errors.New("server said no")}
	s := newShell(t, send)
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "churn"))

	_, err := s.Confirm(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "churn", s.Form().Value("reason"))
}

func TestInvalidConfirmStaysOpenWithoutSending(t *testing.T) {
	send := &fakeSend{}
	s := newShell(t, send)
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))

	_, err := s.Confirm(context.Background())
	var ve *form.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, StateOpen, s.State())
	assert.Zero(t, send.calls.Load())
}

func TestCancelDiscardsInput(t *testing.T) {
	s := newShell(t, &fakeSend{})
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "typo"))

	require.NoError(t, s.Handle().Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "", s.Form().Value("reason"))
	assert.NoError(t, s.Close(), "closing a closed dialog is a no-op")
}

func TestConfirmRequiresOpen(t *testing.T) {
	s := newShell(t, &fakeSend{})
	_, err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	assert.Error(t, s.Open(subscriptionTask{ID: "S2"}), "already open")
}

func TestSecondConfirmWhileSubmittingIsRejected(t *testing.T) {
	send := &fakeSend{gate: make(chan struct{}), started: make(chan struct{})}
	s := newShell(t, send)
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "churn"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background())
		done <- err
	}()
	<-send.started
	assert.Equal(t, StateSubmitting, s.State())

	_, err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, form.ErrSubmitInFlight)

	close(send.gate)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, send.calls.Load())
}

func TestDismissWhileSubmitting(t *testing.T) {
	send := &fakeSend{gate: make(chan struct{}), started: make(chan struct{})}
	s := newShell(t, send)
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "churn"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background())
		done <- err
	}()
	<-send.started
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	close(send.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "", s.Form().Value("reason"), "local reset still applies")
}

func TestDestroyedShellSkipsLocalState(t *testing.T) {
	send := &fakeSend{gate: make(chan struct{}), started: make(chan struct{})}
	s := newShell(t, send)
	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "churn"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background())
		done <- err
	}()
	<-send.started
	s.Destroy()
	close(send.gate)

	require.NoError(t, <-done, "the mutation itself still completes")
	assert.Equal(t, StateSubmitting, s.State(), "no transition after destroy")
	assert.Equal(t, "churn", s.Form().Value("reason"))
	assert.ErrorIs(t, s.Open(subscriptionTask{ID: "S2"}), ErrDestroyed)
}

func TestReopenAfterDismissStartsFresh(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	gate := make(chan struct{})
	started := make(chan struct{}, 2)
	f, err := form.New([]form.Field{
		{Name: "reason", Rules: []form.Rule{form.Required}},
	}, func(_ context.Context, v map[string]string) (string, error) {
		mu.Lock()
		sent = append(sent, v["reason"])
		first := len(sent) == 1
		mu.Unlock()
		started <- struct{}{}
		if first {
			<-gate
		}
		return "ok", nil
	})
	require.NoError(t, err)
	s := New[subscriptionTask, string]("terminate", f, nil)

	require.NoError(t, s.Open(subscriptionTask{ID: "S1"}))
	require.NoError(t, s.Form().SetField("reason", "churn"))
	done := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background())
		done <- err
	}()
	<-started
	require.NoError(t, s.Close())
	assert.Equal(t, "", s.Form().Value("reason"), "dismiss discards the input")

	require.NoError(t, s.Open(subscriptionTask{ID: "S2"}))
	assert.Equal(t, "", s.Form().Value("reason"))
	require.NoError(t, s.Form().SetField("reason", "downgrade"))
	_, err = s.Confirm(context.Background())
	require.ErrorIs(t, err, form.ErrSubmitInFlight, "S1 is still pending")
	assert.Equal(t, StateOpen, s.State())

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateOpen, s.State(), "the S1 result leaves the S2 session alone")
	assert.Equal(t, "downgrade", s.Form().Value("reason"))

	_, err = s.Confirm(context.Background())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"churn", "downgrade"}, sent)
}
