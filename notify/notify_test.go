package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entcache"
)

type captureLogger struct {
	entcache.NopLogger
	mu    sync.Mutex
	lines []string
	level []string
}

func (c *captureLogger) Info(msg string, _ entcache.Fields) { c.add("info", msg) }
func (c *captureLogger) Warn(msg string, _ entcache.Fields) { c.add("warn", msg) }

func (c *captureLogger) add(level, msg string) {
	c.mu.Lock()
	c.level = append(c.level, level)
	c.lines = append(c.lines, msg)
	c.mu.Unlock()
}

type upper map[string]string

func (u upper) Translate(key string, _ map[string]any, _ ...float64) string {
	if s, ok := u[key]; ok {
		return s
	}
	return key
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New(SeveritySuccess, "k", nil)
	b := New(SeveritySuccess, "k", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMultiFansOutInOrder(t *testing.T) {
	var order []string
	rec := &Recorder{}
	m := Multi{
		Func(func(Toast) { order = append(order, "first") }),
		nil,
		rec,
		Func(func(Toast) { order = append(order, "last") }),
	}
	m.Notify(New(SeverityInfo, "k", nil))

	assert.Equal(t, []string{"first", "last"}, order)
	require.Len(t, rec.Toasts(), 1)
	rec.Reset()
	assert.Empty(t, rec.Toasts())
}

func TestLogNotifierTranslates(t *testing.T) {
	log := &captureLogger{}
	n := LogNotifier{Log: log, T: upper{"text_ok": "Subscription successfully terminated"}}

	n.Notify(New(SeveritySuccess, "text_ok", nil))
	n.Notify(New(SeverityDanger, "text_missing", nil))

	assert.Equal(t, []string{"Subscription successfully terminated", "text_missing"}, log.lines)
	assert.Equal(t, []string{"info", "warn"}, log.level)

	LogNotifier{}.Notify(New(SeverityInfo, "k", nil))
}
